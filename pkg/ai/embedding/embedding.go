// Package embedding defines the provider-agnostic text embedding contract
// used by the vector store integration and the LLM router's embedding
// models.
package embedding

import "context"

// Embedding is a single embedding result.
type Embedding struct {
	Vector []float32
	Usage  Usage
}

// Usage reports token consumption for an embedding call.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// Embedder generates embeddings for documents and queries. Implementations
// may batch EmbedDocuments internally; EmbedQuery is kept separate because
// some providers (e.g. asymmetric retrieval models) embed queries and
// documents differently.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string, opts ...Option) ([]Embedding, error)
	EmbedQuery(ctx context.Context, text string, opts ...Option) (Embedding, error)
}

// Options configures a single embedding call.
type Options struct {
	Model      string
	Dimensions int
	User       string
}

// Option mutates Options.
type Option func(*Options)

// WithModel selects the embedding model by name.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithDimensions requests a reduced output dimensionality, for providers
// that support it (e.g. OpenAI's text-embedding-3 family).
func WithDimensions(dims int) Option {
	return func(o *Options) { o.Dimensions = dims }
}

// WithUser attaches an opaque end-user identifier for abuse monitoring.
func WithUser(user string) Option {
	return func(o *Options) { o.User = user }
}

// DefaultOptions returns zero-value options; providers fill in their own
// model default when Model is empty.
func DefaultOptions() *Options {
	return &Options{}
}

// ApplyOptions folds opts onto a fresh Options value.
func ApplyOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
