package llm

import (
	"context"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/embedding"
)

// Response is the result of a single (non-streaming) chat completion call.
type Response struct {
	Message      Message
	Usage        Usage
	FinishReason string
	Model        string
}

// Stream yields a Message per chunk as a streaming chat completion
// progresses. Next returns io.EOF once the stream is exhausted.
type Stream interface {
	Next() (Message, error)
}

// ChatProvider is satisfied by every concrete provider package
// (aianthropic, aiopenai, aiazure, aigemini, aibedrock).
type ChatProvider interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error)
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error)
}

// ModelInfo describes a model's static capabilities, used by the router and
// the context assembler's token budget.
type ModelInfo struct {
	Name             string
	Provider         string
	MaxContextTokens int
	SupportsTools    bool
	SupportsVision   bool
	SupportsEmbedding bool
}

// Model is the router's view of a single configured backend: a chat
// provider plus the bookkeeping needed to decide whether it's usable and
// how much context it can hold. Embedding is deliberately NOT part of this
// interface — aibedrock has no embedding endpoint, so embedding capability
// is detected separately via EmbeddingCapable, mirroring how pkg/ai/vstore
// layers optional capabilities on top of its core VectorStorer interface.
type Model interface {
	ChatProvider
	GetTokenCount(text string) int
	GetMaxTokens() int
	IsAvailable(ctx context.Context) bool
	GetModelInfo() ModelInfo
}

// EmbeddingCapable is the document/query embedding surface of a Model.
// Every Model built by NewModel or NewEmbeddingModel implements it; one
// built without an embedder (aianthropic, aibedrock) returns
// ErrEmbeddingNotSupported from both methods.
type EmbeddingCapable interface {
	EmbedDocuments(ctx context.Context, texts []string, opts ...embedding.Option) ([]embedding.Embedding, error)
	EmbedQuery(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error)
}
