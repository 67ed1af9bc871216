package llm

import (
	"context"
	"sync"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/embedding"
	"github.com/abraxas-365/personal-ai-core/pkg/asyncx"
	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
)

// charsPerToken is the char-based token-estimation ratio; good enough
// for budget decisions, not for exact provider billing.
const charsPerToken = 4

// wrappedModel adapts a bare ChatProvider (and, for most providers, an
// embedding.Embedder) into the Model interface by attaching the static
// info the router needs to budget and select among backends.
type wrappedModel struct {
	provider ChatProvider
	embedder embedding.Embedder // nil for providers with no embedding endpoint (aianthropic, aibedrock)
	info     ModelInfo
}

// NewModel wraps a chat-only provider (e.g. aibedrock.BedrockProvider) as a
// router Model.
func NewModel(provider ChatProvider, info ModelInfo) Model {
	info.SupportsEmbedding = false
	return &wrappedModel{provider: provider, info: info}
}

// NewEmbeddingModel wraps a provider that also implements embedding.Embedder
// (aianthropic has no embeddings of its own; aiopenai/aiazure/aigemini do).
func NewEmbeddingModel(provider ChatProvider, embedder embedding.Embedder, info ModelInfo) Model {
	info.SupportsEmbedding = embedder != nil
	return &wrappedModel{provider: provider, embedder: embedder, info: info}
}

func (m *wrappedModel) Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error) {
	return m.provider.Chat(ctx, messages, opts...)
}

func (m *wrappedModel) ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error) {
	return m.provider.ChatStream(ctx, messages, opts...)
}

func (m *wrappedModel) EmbedDocuments(ctx context.Context, texts []string, opts ...embedding.Option) ([]embedding.Embedding, error) {
	if m.embedder == nil {
		return nil, errorRegistry.New(ErrEmbeddingNotSupported).WithDetail("model", m.info.Name)
	}
	return m.embedder.EmbedDocuments(ctx, texts, opts...)
}

func (m *wrappedModel) EmbedQuery(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error) {
	if m.embedder == nil {
		return embedding.Embedding{}, errorRegistry.New(ErrEmbeddingNotSupported).WithDetail("model", m.info.Name)
	}
	return m.embedder.EmbedQuery(ctx, text, opts...)
}

func (m *wrappedModel) GetTokenCount(text string) int {
	return len(text) / charsPerToken
}

func (m *wrappedModel) GetMaxTokens() int {
	return m.info.MaxContextTokens
}

func (m *wrappedModel) IsAvailable(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	_, err := m.provider.Chat(ctx, []Message{NewUserMessage("ping")}, WithMaxTokens(1))
	return err == nil
}

func (m *wrappedModel) GetModelInfo() ModelInfo {
	return m.info
}

// RouterConfig tunes the Router's retry and fallback behavior.
type RouterConfig struct {
	Attempts     int
	InitialDelay time.Duration
}

// DefaultRouterConfig is three attempts with a one-second initial
// backoff.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{Attempts: 3, InitialDelay: time.Second}
}

// Router dispatches chat requests to a Primary model, retrying with
// exponential backoff, and falling back to Fallback (if set) once the
// primary is exhausted. With a nil Fallback, a fallback-worthy failure
// skips straight to the stable error response.
type Router struct {
	Primary  Model
	Fallback Model
	cfg      RouterConfig
	bus      *eventx.Bus

	mu       sync.Mutex
	usage    UsageStatistics
}

// UsageStatistics accumulates call counts the Router has observed.
// Requests count attempts; Completions count successes, split by which
// model ultimately answered.
type UsageStatistics struct {
	PrimaryRequests     int
	PrimaryCompletions  int
	FallbackRequests    int
	FallbackCompletions int
	FailedRequests      int
	EmbeddingRequests   int
}

// NewRouter builds a Router. bus may be nil, in which case fallback events
// are not published.
func NewRouter(primary, fallback Model, bus *eventx.Bus, cfg RouterConfig) *Router {
	if cfg.Attempts <= 0 {
		cfg = DefaultRouterConfig()
	}
	return &Router{Primary: primary, Fallback: fallback, cfg: cfg, bus: bus}
}

// GetUsageStatistics returns a snapshot of accumulated call counts.
func (r *Router) GetUsageStatistics() UsageStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

func (r *Router) recordFallback(reason error) {
	r.mu.Lock()
	r.usage.FallbackRequests++
	r.mu.Unlock()

	logx.WithField("error", reason.Error()).Warn("llm router falling back to secondary model")
	// The primary's definitive failure is reported as llm:error even when
	// the fallback goes on to answer, so bus history records the outage.
	r.publishLLMEvent(eventx.EventLLMError, r.Primary, reason)
	if r.bus != nil {
		r.bus.Publish(eventx.EventLLMFallbackTriggered, map[string]any{
			"primary":  r.Primary.GetModelInfo().Name,
			"fallback": r.Fallback.GetModelInfo().Name,
			"error":    reason.Error(),
		})
	}
}

// StableErrorResponse is the fixed reply Chat returns once every
// configured model has failed: callers surface it as the assistant's text
// instead of an error, so a total provider outage degrades the reply
// rather than failing the user's turn.
const StableErrorResponse = "I'm sorry, but I'm having trouble generating a response right now. Please try again in a moment."

func stableErrorResponse() Response {
	return Response{Message: NewAssistantMessage(StableErrorResponse), FinishReason: "error"}
}

// Chat attempts the primary model with retry/backoff, then falls back only
// if the exhausted error is not a validation failure that the fallback
// model would reproduce identically. Provider/availability failures never
// propagate as errors: once primary (and fallback, when configured) are
// exhausted, Chat logs, publishes llm:error, and returns the stable error
// string as the response text. Only programming errors (malformed
// requests) surface as Go errors.
func (r *Router) Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error) {
	r.mu.Lock()
	r.usage.PrimaryRequests++
	r.mu.Unlock()

	resp, err := asyncx.RetryWithBackoff(ctx, r.cfg.Attempts, r.cfg.InitialDelay, func(ctx context.Context) (Response, error) {
		return r.Primary.Chat(ctx, messages, opts...)
	})
	if err == nil {
		r.mu.Lock()
		r.usage.PrimaryCompletions++
		r.mu.Unlock()
		r.publishLLMEvent(eventx.EventLLMResponseGenerated, r.Primary, nil)
		return resp, nil
	}
	if !ShouldFallback(err) {
		r.mu.Lock()
		r.usage.FailedRequests++
		r.mu.Unlock()
		r.publishLLMEvent(eventx.EventLLMError, r.Primary, err)
		return Response{}, err
	}
	if r.Fallback == nil {
		r.mu.Lock()
		r.usage.FailedRequests++
		r.mu.Unlock()
		logx.WithError(err).Error("llm router: primary exhausted with no fallback, returning stable error response")
		r.publishLLMEvent(eventx.EventLLMError, r.Primary, err)
		return stableErrorResponse(), nil
	}

	r.recordFallback(err)
	resp, err = r.Fallback.Chat(ctx, messages, opts...)
	if err != nil {
		r.mu.Lock()
		r.usage.FailedRequests++
		r.mu.Unlock()
		logx.WithError(err).Error("llm router: fallback exhausted, returning stable error response")
		r.publishLLMEvent(eventx.EventLLMError, r.Fallback, err)
		return stableErrorResponse(), nil
	}
	r.mu.Lock()
	r.usage.FallbackCompletions++
	r.mu.Unlock()
	r.publishLLMEvent(eventx.EventLLMResponseGenerated, r.Fallback, nil)
	return resp, nil
}

func (r *Router) publishLLMEvent(eventType string, model Model, err error) {
	if r.bus == nil {
		return
	}
	payload := map[string]any{"model": model.GetModelInfo().Name}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.bus.Publish(eventType, payload)
}

// ChatStream streams from the primary model, falling back once on a
// fallback-worthy error (streams cannot be retried mid-flight, so there is
// no per-chunk retry).
func (r *Router) ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error) {
	r.mu.Lock()
	r.usage.PrimaryRequests++
	r.mu.Unlock()

	stream, err := r.Primary.ChatStream(ctx, messages, opts...)
	if err == nil {
		return stream, nil
	}
	if r.Fallback == nil || !ShouldFallback(err) {
		r.mu.Lock()
		r.usage.FailedRequests++
		r.mu.Unlock()
		return nil, err
	}

	r.recordFallback(err)
	stream, err = r.Fallback.ChatStream(ctx, messages, opts...)
	if err != nil {
		r.mu.Lock()
		r.usage.FailedRequests++
		r.mu.Unlock()
	}
	return stream, err
}

// Embed routes an embedding request to the primary model, falling back if
// it does not support embeddings or fails with a fallback-worthy error.
func (r *Router) Embed(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error) {
	r.mu.Lock()
	r.usage.EmbeddingRequests++
	r.mu.Unlock()

	primary, ok := r.Primary.(EmbeddingCapable)
	if !ok {
		err := errorRegistry.New(ErrEmbeddingNotSupported).WithDetail("model", r.Primary.GetModelInfo().Name)
		if r.Fallback == nil {
			r.publishLLMEvent(eventx.EventLLMError, r.Primary, err)
			return embedding.Embedding{}, err
		}
		return r.embedFallback(ctx, text, err, opts...)
	}

	emb, err := primary.EmbedQuery(ctx, text, opts...)
	if err == nil {
		r.publishLLMEvent(eventx.EventLLMEmbeddingGenerated, r.Primary, nil)
		return emb, nil
	}
	var xerr *errx.Error
	unsupported := errx.As(err, &xerr) && xerr.Code == ErrEmbeddingNotSupported.Code
	if r.Fallback == nil || !(unsupported || ShouldFallback(err)) {
		r.publishLLMEvent(eventx.EventLLMError, r.Primary, err)
		return embedding.Embedding{}, err
	}
	return r.embedFallback(ctx, text, err, opts...)
}

func (r *Router) embedFallback(ctx context.Context, text string, reason error, opts ...embedding.Option) (embedding.Embedding, error) {
	r.recordFallback(reason)
	fallback, ok := r.Fallback.(EmbeddingCapable)
	if !ok {
		err := errorRegistry.New(ErrEmbeddingNotSupported).WithDetail("model", r.Fallback.GetModelInfo().Name)
		r.publishLLMEvent(eventx.EventLLMError, r.Fallback, err)
		return embedding.Embedding{}, err
	}
	emb, err := fallback.EmbedQuery(ctx, text, opts...)
	if err != nil {
		r.publishLLMEvent(eventx.EventLLMError, r.Fallback, err)
	} else {
		r.publishLLMEvent(eventx.EventLLMEmbeddingGenerated, r.Fallback, nil)
	}
	return emb, err
}

// ActiveModel reports whichever model last served (or would serve) a
// request, for callers that need to log which backend answered.
func (r *Router) ActiveModel(ctx context.Context) Model {
	if r.Primary.IsAvailable(ctx) {
		return r.Primary
	}
	if r.Fallback != nil {
		return r.Fallback
	}
	return r.Primary
}
