// Package options carries the small set of per-call overrides a Provider
// Adapter call accepts beyond the base ModelConfig: a structured-output
// schema, a max-tokens override, a thinking toggle, and a flag
// distinguishing a title-generation call (which some adapters route to a
// cheaper/faster model variant) from a normal completion.
package options

// StructuredOutput requests the provider constrain its response to a JSON
// schema. Strict, when supported, rejects any output that doesn't validate.
type StructuredOutput struct {
	Name        string
	Description string
	Schema      any
	Strict      bool
}

// ModelOptions holds per-call overrides applied on top of a ModelConfig.
type ModelOptions struct {
	structuredOutput *StructuredOutput
	generatingTitle  bool
	maxTokens        int64
	thinking         *bool
}

func (m *ModelOptions) StructuredOutput() *StructuredOutput { return m.structuredOutput }
func (m *ModelOptions) GeneratingTitle() bool               { return m.generatingTitle }
func (m *ModelOptions) MaxTokens() int64                    { return m.maxTokens }
func (m *ModelOptions) Thinking() *bool                     { return m.thinking }

// Opt mutates a ModelOptions being built up by New.
type Opt func(*ModelOptions)

func New(opts ...Opt) ModelOptions {
	var m ModelOptions
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func WithStructuredOutput(so StructuredOutput) Opt {
	return func(m *ModelOptions) { m.structuredOutput = &so }
}

func WithGeneratingTitle() Opt {
	return func(m *ModelOptions) { m.generatingTitle = true }
}

func WithMaxTokens(maxTokens int64) Opt {
	return func(m *ModelOptions) { m.maxTokens = maxTokens }
}

func WithThinking(enabled bool) Opt {
	return func(m *ModelOptions) { m.thinking = &enabled }
}
