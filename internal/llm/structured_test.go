package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLLMClient is a mock implementation of TunableGenerator for testing
type mockLLMClient struct {
	responses  []string
	errors     []error
	callCount  int
	lastOpts   CompletionOptions
	lastPrompt string
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithOptions(ctx, prompt, CompletionOptions{Temperature: -1})
}

func (m *mockLLMClient) CompleteWithOptions(_ context.Context, prompt string, opts CompletionOptions) (string, error) {
	defer func() { m.callCount++ }()
	m.lastOpts = opts
	m.lastPrompt = prompt

	if m.callCount < len(m.errors) && m.errors[m.callCount] != nil {
		return "", m.errors[m.callCount]
	}
	if m.callCount < len(m.responses) {
		return m.responses[m.callCount], nil
	}
	return "", errors.New("mock LLM: no more responses configured")
}

func (m *mockLLMClient) GetModel() string { return "mock-model" }

type testEvents struct {
	Events []testEvent `json:"events" validate:"max=10,dive"`
}

type testEvent struct {
	Organization string `json:"organization" validate:"required"`
	Role         string `json:"role" validate:"required"`
}

var testSchema = Schema{Name: "timeline", Example: `{"events":[{"organization":"","role":""}]}`}

func TestGenerateStructured_ValidOutput(t *testing.T) {
	mock := &mockLLMClient{responses: []string{"Sure! ```json\n{\"events\":[{\"organization\":\"Acme Labs\",\"role\":\"Researcher\"}]}\n```"}}
	s := NewStructured(mock, 0.1)

	var out testEvents
	require.NoError(t, s.GenerateStructured(context.Background(), "extract", testSchema, &out))
	require.Len(t, out.Events, 1)
	assert.Equal(t, "Acme Labs", out.Events[0].Organization)

	assert.True(t, mock.lastOpts.JSON)
	assert.Equal(t, 0.1, mock.lastOpts.Temperature)
	assert.Contains(t, mock.lastPrompt, testSchema.Example)
}

func TestGenerateStructured_MissingRequiredField(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{"events":[{"organization":"Acme Labs","role":"Researcher"},{"organization":"Beta"}]}`}}
	s := NewStructured(mock, 0)

	var out testEvents
	err := s.GenerateStructured(context.Background(), "extract", testSchema, &out)
	require.ErrorIs(t, err, ErrSchema)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "timeline", se.Schema)
	assert.Contains(t, se.Reason, "Role")
}

func TestGenerateStructured_NotJSON(t *testing.T) {
	mock := &mockLLMClient{responses: []string{"I could not find any career information."}}
	s := NewStructured(mock, 0)

	var out testEvents
	assert.ErrorIs(t, s.GenerateStructured(context.Background(), "extract", testSchema, &out), ErrSchema)
}

func TestGenerateStructured_WrongTypes(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{"events":"none"}`}}
	s := NewStructured(mock, 0)

	var out testEvents
	assert.ErrorIs(t, s.GenerateStructured(context.Background(), "extract", testSchema, &out), ErrSchema)
}

func TestGenerateStructured_TransportErrorIsNotSchemaError(t *testing.T) {
	mock := &mockLLMClient{errors: []error{errors.New("connection refused")}}
	s := NewStructured(mock, 0)

	var out testEvents
	err := s.GenerateStructured(context.Background(), "extract", testSchema, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchema)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":"}"} hope it helps`, `{"a":"}"}`},
		{"array", `result: [{"a":1},{"b":2}] done`, `[{"a":1},{"b":2}]`},
		{"escaped quote", `{"a":"say \"hi\" {"}`, `{"a":"say \"hi\" {"}`},
		{"unbalanced", `{"a":1`, ""},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
