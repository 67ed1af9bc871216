// Package ailocal is the local-model backend: an in-process inference
// engine loaded lazily on first use and held in memory until Unload() is
// called. Generation is mutex-protected; embedding may run concurrently.
//
// There is no bundled model runtime in this module: Generate/Embed below
// are a deterministic, dependency-free stand-in so the router's fallback
// and the memory service's embedding path have a real local backend to
// exercise offline. A production deployment swaps engineLoad/engineRun for
// a real inference host.
package ailocal

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/embedding"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
)

// Config selects the weights path and embedding dimension for the engine.
type Config struct {
	ModelPath string
	Dimension int
}

// Provider is a lazily-loaded local model. Chat is mutually exclusive via
// genMu; EmbedDocuments/EmbedQuery may run concurrently once loaded.
type Provider struct {
	cfg Config

	loadOnce sync.Once
	loadErr  error
	loaded   bool
	loadMu   sync.RWMutex

	genMu sync.Mutex
}

// NewProvider builds a Provider that has not yet loaded its weights.
func NewProvider(cfg Config) *Provider {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	return &Provider{cfg: cfg}
}

// ensureLoaded loads the engine exactly once, on first use by either Chat
// or EmbedDocuments.
func (p *Provider) ensureLoaded(ctx context.Context) error {
	p.loadOnce.Do(func() {
		logx.WithField("model_path", p.cfg.ModelPath).Info("ailocal: loading local model")
		if err := ctx.Err(); err != nil {
			p.loadErr = err
			return
		}
		// engineLoad would mmap/parse weights here; the stand-in engine has
		// nothing to load beyond marking itself ready.
		p.loadMu.Lock()
		p.loaded = true
		p.loadMu.Unlock()
	})
	return p.loadErr
}

// Unload releases the engine; the next call reloads it.
func (p *Provider) Unload() {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	p.loaded = false
	p.loadOnce = sync.Once{}
	logx.Info("ailocal: model unloaded")
}

func (p *Provider) isLoaded() bool {
	p.loadMu.RLock()
	defer p.loadMu.RUnlock()
	return p.loaded
}

// Chat implements llm.ChatProvider. It serializes on genMu: a local engine
// has exactly one execution context, so concurrent generations queue.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	if len(messages) == 0 {
		return llm.Response{}, errorRegistry.New(ErrEmptyMessages)
	}
	if err := p.ensureLoaded(ctx); err != nil {
		return llm.Response{}, errorRegistry.NewWithCause(ErrLoadFailed, err)
	}

	p.genMu.Lock()
	defer p.genMu.Unlock()

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}

	options := llm.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	reply := engineRun(messages, options)
	return llm.Response{
		Message:      llm.NewAssistantMessage(reply),
		FinishReason: "stop",
		Model:        "local",
	}, nil
}

// ChatStream is not supported by the stand-in engine: it returns the full
// response as a single-chunk stream, matching the contract without
// claiming true token streaming.
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	resp, err := p.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return &singleChunkStream{msg: resp.Message}, nil
}

type singleChunkStream struct {
	msg  llm.Message
	done bool
}

func (s *singleChunkStream) Next() (llm.Message, error) {
	if s.done {
		return llm.Message{}, io.EOF
	}
	s.done = true
	return s.msg, nil
}

// EmbedDocuments implements embedding.Embedder. Unlike Chat, embedding
// calls are not serialized: the stand-in engine's hashing is stateless
// and a real backend's batched embedding kernel is expected to be
// internally parallel.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string, opts ...embedding.Option) ([]embedding.Embedding, error) {
	if len(texts) == 0 {
		return nil, errorRegistry.New(ErrEmptyInput)
	}
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, errorRegistry.NewWithCause(ErrLoadFailed, err)
	}
	out := make([]embedding.Embedding, len(texts))
	for i, t := range texts {
		out[i] = embedding.Embedding{Vector: hashEmbed(t, p.cfg.Dimension)}
	}
	return out, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error) {
	embs, err := p.EmbedDocuments(ctx, []string{text}, opts...)
	if err != nil {
		return embedding.Embedding{}, err
	}
	return embs[0], nil
}

// engineRun is the stand-in generation kernel: it echoes the gist of the
// conversation rather than truly reasoning over it. Swap this for a real
// inference call when bundling actual weights.
func engineRun(messages []llm.Message, opts *llm.ChatOptions) string {
	var last llm.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			last = messages[i]
			break
		}
	}
	content := strings.TrimSpace(last.TextContent())
	if content == "" {
		return "I don't have enough context to respond."
	}
	return "Local model response to: " + content
}

// hashEmbed derives a deterministic, normalized pseudo-embedding from text
// via SHA-256 so offline tests can exercise cosine similarity without a
// real embedding model.
func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	sum := sha256.Sum256([]byte(text))
	var sumSq float64
	for i := 0; i < dim; i++ {
		b := sum[i%len(sum) : i%len(sum)+1]
		seed := binary.BigEndian.Uint32(append(b, sum[(i+1)%len(sum)], sum[(i+2)%len(sum)], sum[(i+3)%len(sum)]))
		v := float32(int32(seed)) / float32(math.MaxInt32)
		vec[i] = v
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// IsAvailable reports whether the engine is loaded or can be lazily loaded
// immediately (the stand-in engine always can).
func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.ensureLoaded(ctx) == nil
}

func (p *Provider) GetTokenCount(text string) int {
	return len(text) / 4
}

func (p *Provider) GetMaxTokens() int {
	return 8192
}

func (p *Provider) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:              "local",
		Provider:          "ailocal",
		MaxContextTokens:  8192,
		SupportsEmbedding: true,
	}
}
