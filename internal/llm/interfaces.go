package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// CompletionOptions tunes a single completion.
type CompletionOptions struct {
	// Temperature controls sampling; extraction uses values near zero.
	Temperature float64

	// JSON asks the backend to constrain output to a JSON object when it
	// supports doing so.
	JSON bool
}

// TunableGenerator is a TextGenerator that accepts per-call options.
// Every client in this package implements it.
type TunableGenerator interface {
	TextGenerator
	CompleteWithOptions(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// StructuredGenerator returns output decoded into out and validated against
// schema. Non-conforming output yields a *SchemaError and leaves out unusable.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error
}
