package llm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
)

// fakeModel is a scripted llm.Model: it answers with reply, or fails every
// call with failWith when set.
type fakeModel struct {
	name     string
	reply    string
	failWith error
	calls    int
}

func (f *fakeModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	f.calls++
	if f.failWith != nil {
		return llm.Response{}, f.failWith
	}
	return llm.Response{Message: llm.NewAssistantMessage(f.reply), Model: f.name}, nil
}

func (f *fakeModel) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	return nil, errx.Internal("streaming not scripted")
}

func (f *fakeModel) GetTokenCount(text string) int { return len(text) / 4 }
func (f *fakeModel) GetMaxTokens() int             { return 8192 }
func (f *fakeModel) IsAvailable(ctx context.Context) bool {
	return f.failWith == nil
}
func (f *fakeModel) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: f.name, Provider: "fake", MaxContextTokens: 8192}
}

func rateLimited() *errx.Error {
	return &errx.Error{
		Code:       "LLM_RATE_LIMITED",
		Message:    "provider rate limit exceeded",
		Type:       errx.TypeUnavailable,
		HTTPStatus: 429,
	}
}

func TestChat_FallsBackWhenPrimaryRateLimited(t *testing.T) {
	primary := &fakeModel{name: "primary", failWith: rateLimited()}
	fallback := &fakeModel{name: "fallback", reply: "OK"}
	bus := eventx.New()

	router := llm.NewRouter(primary, fallback, bus, llm.RouterConfig{Attempts: 3, InitialDelay: time.Millisecond})

	resp, err := router.Chat(context.Background(), []llm.Message{llm.NewUserMessage("x")})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "OK" {
		t.Fatalf("expected fallback reply OK, got %q", resp.Message.Content)
	}
	if primary.calls != 3 {
		t.Fatalf("expected 3 primary attempts before fallback, got %d", primary.calls)
	}

	stats := router.GetUsageStatistics()
	if stats.PrimaryCompletions != 0 {
		t.Fatalf("expected 0 primary completions, got %d", stats.PrimaryCompletions)
	}
	if stats.FallbackCompletions != 1 {
		t.Fatalf("expected 1 fallback completion, got %d", stats.FallbackCompletions)
	}

	// The primary's definitive failure must land in bus history as llm:error
	// even though the turn ultimately succeeded.
	errEvents := bus.History(eventx.EventLLMError)
	if len(errEvents) != 1 {
		t.Fatalf("expected exactly one llm:error event, got %d", len(errEvents))
	}
	if msg, _ := errEvents[0].Payload["error"].(string); !strings.Contains(msg, "RATE_LIMITED") {
		t.Fatalf("expected llm:error payload to carry the rate-limit error, got %q", msg)
	}
}

func TestChat_ValidationErrorDoesNotFallBack(t *testing.T) {
	badRequest := &errx.Error{
		Code:       "LLM_INVALID_REQUEST",
		Message:    "request rejected by provider as malformed",
		Type:       errx.TypeValidation,
		HTTPStatus: 400,
	}
	primary := &fakeModel{name: "primary", failWith: badRequest}
	fallback := &fakeModel{name: "fallback", reply: "should not be used"}

	router := llm.NewRouter(primary, fallback, nil, llm.RouterConfig{Attempts: 2, InitialDelay: time.Millisecond})

	_, err := router.Chat(context.Background(), []llm.Message{llm.NewUserMessage("x")})
	if err == nil {
		t.Fatal("expected validation error to propagate")
	}
	if fallback.calls != 0 {
		t.Fatalf("expected fallback to stay untouched on validation failure, got %d calls", fallback.calls)
	}
}

func TestChat_BothModelsExhaustedReturnsStableErrorString(t *testing.T) {
	primary := &fakeModel{name: "primary", failWith: rateLimited()}
	fallback := &fakeModel{name: "fallback", failWith: rateLimited()}
	bus := eventx.New()

	router := llm.NewRouter(primary, fallback, bus, llm.RouterConfig{Attempts: 2, InitialDelay: time.Millisecond})

	resp, err := router.Chat(context.Background(), []llm.Message{llm.NewUserMessage("x")})
	if err != nil {
		t.Fatalf("expected a degraded response, not an error, got %v", err)
	}
	if resp.Message.Content != llm.StableErrorResponse {
		t.Fatalf("expected the stable error string, got %q", resp.Message.Content)
	}

	stats := router.GetUsageStatistics()
	if stats.FailedRequests != 1 {
		t.Fatalf("expected 1 failed request, got %d", stats.FailedRequests)
	}
	// Both the primary's and the fallback's definitive failures land in
	// history.
	if got := len(bus.History(eventx.EventLLMError)); got != 2 {
		t.Fatalf("expected two llm:error events, got %d", got)
	}
}

func TestChat_NoFallbackConfiguredDegradesToStableErrorString(t *testing.T) {
	primary := &fakeModel{name: "primary", failWith: rateLimited()}

	router := llm.NewRouter(primary, nil, nil, llm.RouterConfig{Attempts: 1, InitialDelay: time.Millisecond})

	resp, err := router.Chat(context.Background(), []llm.Message{llm.NewUserMessage("x")})
	if err != nil {
		t.Fatalf("expected a degraded response, not an error, got %v", err)
	}
	if resp.Message.Content != llm.StableErrorResponse {
		t.Fatalf("expected the stable error string, got %q", resp.Message.Content)
	}
}

func TestChat_AuthFailureFallsBack(t *testing.T) {
	authErr := &errx.Error{
		Code:       "LLM_AUTH",
		Message:    "provider rejected credentials",
		Type:       errx.TypeAuthorization,
		HTTPStatus: 401,
	}
	primary := &fakeModel{name: "primary", failWith: authErr}
	fallback := &fakeModel{name: "fallback", reply: "OK"}

	router := llm.NewRouter(primary, fallback, nil, llm.RouterConfig{Attempts: 1, InitialDelay: time.Millisecond})

	resp, err := router.Chat(context.Background(), []llm.Message{llm.NewUserMessage("x")})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "OK" {
		t.Fatalf("expected the fallback's own credentials to serve the turn, got %q", resp.Message.Content)
	}
}
