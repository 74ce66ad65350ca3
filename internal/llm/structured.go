package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrSchema matches every *SchemaError via errors.Is.
var ErrSchema = errors.New("llm: output does not conform to schema")

// SchemaError reports output that could not be decoded into, or validated
// against, the requested schema. The response must be discarded whole.
type SchemaError struct {
	Schema string
	Reason string
	Raw    string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm: %s output rejected: %s", e.Schema, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSchema) true for any SchemaError.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Schema describes the JSON document a prompt asks for. Example is shown to
// the model verbatim; the Go type passed as out carries the validate tags
// that are actually enforced.
type Schema struct {
	Name    string
	Example string
}

// Structured implements StructuredGenerator on top of any TextGenerator.
type Structured struct {
	gen         TextGenerator
	temperature float64
	validate    *validator.Validate
}

// NewStructured wraps gen. temperature applies when gen is a TunableGenerator.
func NewStructured(gen TextGenerator, temperature float64) *Structured {
	return &Structured{
		gen:         gen,
		temperature: temperature,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// GetModel returns the wrapped model name.
func (s *Structured) GetModel() string { return s.gen.GetModel() }

// GenerateStructured asks for a JSON document matching schema, decodes it
// into out and validates it. Any failure after the completion returns is a
// *SchemaError.
func (s *Structured) GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error {
	full := prompt
	if schema.Example != "" {
		full += "\n\nRespond with ONLY a JSON object of this shape, no prose:\n" + schema.Example + "\n"
	}

	var raw string
	var err error
	if tg, ok := s.gen.(TunableGenerator); ok {
		raw, err = tg.CompleteWithOptions(ctx, full, CompletionOptions{Temperature: s.temperature, JSON: true})
	} else {
		raw, err = s.gen.Complete(ctx, full)
	}
	if err != nil {
		return fmt.Errorf("llm: %s completion failed: %w", schema.Name, err)
	}

	cleaned := extractJSON(raw)
	if cleaned == "" {
		return &SchemaError{Schema: schema.Name, Reason: "no JSON document in response", Raw: raw}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &SchemaError{Schema: schema.Name, Reason: "invalid JSON: " + err.Error(), Raw: raw, Err: err}
	}
	if err := s.validate.Struct(out); err != nil {
		reason := err.Error()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			reason = fmt.Sprintf("%s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return &SchemaError{Schema: schema.Name, Reason: reason, Raw: raw, Err: err}
	}
	return nil
}

var _ StructuredGenerator = (*Structured)(nil)

// extractJSON extracts the first complete JSON object or array from a string
// that may contain markdown fences or surrounding prose. Returns "" when no
// balanced document is present.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return ""
	}
	open, closing := text[start], byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch char {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
