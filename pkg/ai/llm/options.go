package llm

// ChatOptions configures a single chat completion call. Every provider
// package in pkg/ai/providers/* reads a subset of these fields; a field
// left at its zero value is omitted from the outgoing request.
type ChatOptions struct {
	Model                string
	Temperature          float32
	TopP                 float32
	MaxTokens            int
	MaxCompletionTokens  int
	Stop                 []string
	Tools                []Tool
	Functions            []Function
	ToolChoice           any
	ResponseFormat       *ResponseFormat
	FrequencyPenalty     float32
	PresencePenalty      float32
	LogitBias            map[string]int
	Seed                 *int
	User                 string
	JSONMode             bool
	ReasoningEffort      string
}

// Option mutates ChatOptions.
type Option func(*ChatOptions)

// DefaultOptions returns a ChatOptions with Temperature 0.7 and TopP 1.0
// and every other field zero-valued; each
// provider's defaultChatOptions() starts from this and fills in its own
// default Model.
func DefaultOptions() *ChatOptions {
	return &ChatOptions{
		Temperature: 0.7,
		TopP:        1.0,
	}
}

// ApplyOptions folds opts onto a fresh ChatOptions value.
func ApplyOptions(opts ...Option) *ChatOptions {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithModel selects the model by name.
func WithModel(model string) Option {
	return func(o *ChatOptions) { o.Model = model }
}

// WithTemperature sets sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *ChatOptions) { o.Temperature = t }
}

// WithTopP sets nucleus sampling probability mass.
func WithTopP(p float32) Option {
	return func(o *ChatOptions) { o.TopP = p }
}

// WithMaxTokens caps the total tokens a provider may generate.
func WithMaxTokens(n int) Option {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

// WithMaxCompletionTokens caps generated tokens on providers that
// distinguish this from MaxTokens (reasoning models).
func WithMaxCompletionTokens(n int) Option {
	return func(o *ChatOptions) { o.MaxCompletionTokens = n }
}

// WithStop sets stop sequences.
func WithStop(sequences ...string) Option {
	return func(o *ChatOptions) { o.Stop = sequences }
}

// WithTools makes the given tools callable by the model.
func WithTools(tools ...Tool) Option {
	return func(o *ChatOptions) { o.Tools = tools }
}

// WithToolChoice forces or restricts tool selection.
func WithToolChoice(choice any) Option {
	return func(o *ChatOptions) { o.ToolChoice = choice }
}

// WithSeed requests deterministic sampling where supported.
func WithSeed(seed int) Option {
	return func(o *ChatOptions) { o.Seed = &seed }
}

// WithUser attaches an opaque end-user identifier for abuse monitoring.
func WithUser(user string) Option {
	return func(o *ChatOptions) { o.User = user }
}

// WithReasoningEffort hints at how much internal reasoning a model should
// perform (low/medium/high), for providers that support it.
func WithReasoningEffort(effort string) Option {
	return func(o *ChatOptions) { o.ReasoningEffort = effort }
}
