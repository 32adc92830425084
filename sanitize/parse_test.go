package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcastel/agentloop"
)

func TestParseToolCalls_Structured(t *testing.T) {
	type input struct {
		raw *agentloop.RawResponse
	}

	type expected struct {
		count  int
		name   string
		args   map[string]any
		idKept string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:  "nil response yields nothing",
			input: input{raw: nil},
			expected: expected{
				count: 0,
			},
		},
		{
			name: "structured call passes through with its ID",
			input: input{
				raw: &agentloop.RawResponse{
					Calls: []agentloop.StructuredCall{{
						ID:        "call-1",
						Name:      "read_file",
						Arguments: map[string]any{"path": "notes.txt"},
					}},
				},
			},
			expected: expected{
				count:  1,
				name:   "read_file",
				args:   map[string]any{"path": "notes.txt"},
				idKept: "call-1",
			},
		},
		{
			name: "missing ID gets one minted",
			input: input{
				raw: &agentloop.RawResponse{
					Calls: []agentloop.StructuredCall{{
						Name:      "list_files",
						Arguments: map[string]any{},
					}},
				},
			},
			expected: expected{
				count: 1,
				name:  "list_files",
				args:  map[string]any{},
			},
		},
		{
			name: "value wrappers are flattened",
			input: input{
				raw: &agentloop.RawResponse{
					Calls: []agentloop.StructuredCall{{
						ID:   "call-2",
						Name: "query_db",
						Arguments: map[string]any{
							"sql":   map[string]any{"value": "SELECT 1"},
							"limit": float64(10),
						},
					}},
				},
			},
			expected: expected{
				count:  1,
				name:   "query_db",
				args:   map[string]any{"sql": "SELECT 1", "limit": float64(10)},
				idKept: "call-2",
			},
		},
		{
			name: "corrupted argument JSON is repaired",
			input: input{
				raw: &agentloop.RawResponse{
					Calls: []agentloop.StructuredCall{{
						ID:           "call-3",
						Name:         "query_db",
						RawArguments: `{"sql": "SELECT * FROM notes WHERE title LIKE '\%x\%'"}`,
					}},
				},
			},
			expected: expected{
				count:  1,
				name:   "query_db",
				args:   map[string]any{"sql": `SELECT * FROM notes WHERE title LIKE '%x%'`},
				idKept: "call-3",
			},
		},
		{
			name: "unrepairable argument JSON falls back to empty arguments",
			input: input{
				raw: &agentloop.RawResponse{
					Calls: []agentloop.StructuredCall{{
						ID:           "call-4",
						Name:         "query_db",
						RawArguments: `{"sql": broken`,
					}},
				},
			},
			expected: expected{
				count:  1,
				name:   "query_db",
				args:   map[string]any{},
				idKept: "call-4",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := ParseToolCalls(tc.input.raw)

			require.Len(t, calls, tc.expected.count)
			if tc.expected.count == 0 {
				return
			}

			call := calls[0]
			assert.Equal(t, tc.expected.name, call.Name)
			assert.Equal(t, tc.expected.args, call.RawArgs)
			if tc.expected.idKept != "" {
				assert.Equal(t, tc.expected.idKept, call.ID)
			} else {
				assert.NotEmpty(t, call.ID, "a call without an engine ID must get one minted")
			}
		})
	}
}

func TestParseToolCalls_Embedded(t *testing.T) {
	type input struct {
		text string
	}

	type expected struct {
		count int
		name  string
		args  map[string]any
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:  "plain prose is a final answer",
			input: input{text: "The answer is 42."},
			expected: expected{
				count: 0,
			},
		},
		{
			name:  "braces without a call shape are a final answer",
			input: input{text: `The config is {"debug": true}.`},
			expected: expected{
				count: 0,
			},
		},
		{
			name: "call object embedded in prose is recovered",
			input: input{
				text: `I'll look that up. {"name": "read_file", "arguments": {"path": "notes.txt"}}`,
			},
			expected: expected{
				count: 1,
				name:  "read_file",
				args:  map[string]any{"path": "notes.txt"},
			},
		},
		{
			name: "parameters is accepted as a synonym of arguments",
			input: input{
				text: `{"name": "list_files", "parameters": {}}`,
			},
			expected: expected{
				count: 1,
				name:  "list_files",
				args:  map[string]any{},
			},
		},
		{
			name: "double-encoded arguments are decoded",
			input: input{
				text: `{"name": "query_db", "arguments": "{\"sql\": \"SELECT 1\"}"}`,
			},
			expected: expected{
				count: 1,
				name:  "query_db",
				args:  map[string]any{"sql": "SELECT 1"},
			},
		},
		{
			name: "invalid escapes inside the object are repaired",
			input: input{
				text: `{"name": "query_db", "arguments": {"sql": "SELECT * FROM t WHERE c LIKE '\%a\_'"}}`,
			},
			expected: expected{
				count: 1,
				name:  "query_db",
				args:  map[string]any{"sql": `SELECT * FROM t WHERE c LIKE '%a_'`},
			},
		},
		{
			name: "null arguments become an empty map",
			input: input{
				text: `{"name": "list_files", "arguments": null}`,
			},
			expected: expected{
				count: 1,
				name:  "list_files",
				args:  map[string]any{},
			},
		},
		{
			name: "text that resists every repair is a final answer",
			input: input{
				text: `{"name": "read_file", "arguments": {{{`,
			},
			expected: expected{
				count: 0,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := ParseToolCalls(&agentloop.RawResponse{Text: tc.input.text})

			require.Len(t, calls, tc.expected.count)
			if tc.expected.count == 0 {
				return
			}
			assert.Equal(t, tc.expected.name, calls[0].Name)
			assert.Equal(t, tc.expected.args, calls[0].RawArgs)
			assert.NotEmpty(t, calls[0].ID)
		})
	}
}

func TestCleanJSONText(t *testing.T) {
	type input struct {
		text string
	}

	type expected struct {
		text string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "valid JSON is untouched",
			input:    input{text: `{"a": "b\nc", "d": "e\"f\"", "g": "h\\i"}`},
			expected: expected{text: `{"a": "b\nc", "d": "e\"f\"", "g": "h\\i"}`},
		},
		{
			name:     "invalid escapes lose the backslash",
			input:    input{text: `{"sql": "LIKE '\%alice\%'"}`},
			expected: expected{text: `{"sql": "LIKE '%alice%'"}`},
		},
		{
			name:     "unicode escapes are kept",
			input:    input{text: `{"name": "caf\u00e9"}`},
			expected: expected{text: `{"name": "caf\u00e9"}`},
		},
		{
			name:     "trailing backslash is kept",
			input:    input{text: `broken\`},
			expected: expected{text: `broken\`},
		},
		{
			name:     "cleaning is idempotent",
			input:    input{text: CleanJSONText(`{"sql": "LIKE '\%a\_'"}`)},
			expected: expected{text: `{"sql": "LIKE '%a_'"}`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected.text, CleanJSONText(tc.input.text))
		})
	}
}

func TestNormalizeCall(t *testing.T) {
	type input struct {
		obj map[string]any
	}

	type expected struct {
		ok   bool
		name string
		args map[string]any
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "arguments member",
			input: input{obj: map[string]any{
				"name":      "read_file",
				"arguments": map[string]any{"path": "a.txt"},
			}},
			expected: expected{ok: true, name: "read_file", args: map[string]any{"path": "a.txt"}},
		},
		{
			name: "parameters member",
			input: input{obj: map[string]any{
				"name":       "read_file",
				"parameters": map[string]any{"path": "a.txt"},
			}},
			expected: expected{ok: true, name: "read_file", args: map[string]any{"path": "a.txt"}},
		},
		{
			name: "missing name",
			input: input{obj: map[string]any{
				"arguments": map[string]any{},
			}},
			expected: expected{ok: false},
		},
		{
			name: "missing arguments and parameters",
			input: input{obj: map[string]any{
				"name": "read_file",
			}},
			expected: expected{ok: false},
		},
		{
			name: "non-object arguments",
			input: input{obj: map[string]any{
				"name":      "read_file",
				"arguments": float64(7),
			}},
			expected: expected{ok: false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			name, args, ok := NormalizeCall(tc.input.obj)

			assert.Equal(t, tc.expected.ok, ok)
			if tc.expected.ok {
				assert.Equal(t, tc.expected.name, name)
				assert.Equal(t, tc.expected.args, args)
			}
		})
	}
}
