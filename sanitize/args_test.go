package sanitize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/internal/tt"
	"github.com/gcastel/agentloop/schema"
)

func queryTool(allowsMutation bool) *agentloop.ToolDescriptor {
	return &agentloop.ToolDescriptor{
		Name:           "query_db",
		Endpoint:       "db",
		AllowsMutation: allowsMutation,
	}
}

func fileTool() *agentloop.ToolDescriptor {
	return &agentloop.ToolDescriptor{
		Name:     "read_file",
		Endpoint: "files",
	}
}

func TestArguments_SecurityGates(t *testing.T) {
	type input struct {
		tool *agentloop.ToolDescriptor
		args map[string]any
	}

	type expected struct {
		kind         agentloop.Kind
		hintContains string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "destructive query is rejected",
			input: input{
				tool: queryTool(false),
				args: map[string]any{"sql": "DROP TABLE users;"},
			},
			expected: expected{
				kind:         agentloop.KindSecurity,
				hintContains: "read-only",
			},
		},
		{
			name: "destructive verb is caught regardless of case",
			input: input{
				tool: queryTool(false),
				args: map[string]any{"sql": "delete from notes where id = 1"},
			},
			expected: expected{
				kind: agentloop.KindSecurity,
			},
		},
		{
			name: "update statement is rejected",
			input: input{
				tool: queryTool(false),
				args: map[string]any{"query": "UPDATE users SET name = 'x'"},
			},
			expected: expected{
				kind: agentloop.KindSecurity,
			},
		},
		{
			name: "parent-directory traversal is rejected",
			input: input{
				tool: fileTool(),
				args: map[string]any{"path": "../../etc/passwd"},
			},
			expected: expected{
				kind:         agentloop.KindSecurity,
				hintContains: "relative",
			},
		},
		{
			name: "traversal with backslashes is rejected",
			input: input{
				tool: fileTool(),
				args: map[string]any{"path": `..\..\secrets.txt`},
			},
			expected: expected{
				kind: agentloop.KindSecurity,
			},
		},
		{
			name: "traversal under any path-like key is rejected",
			input: input{
				tool: fileTool(),
				args: map[string]any{"directory": "logs/../../private"},
			},
			expected: expected{
				kind: agentloop.KindSecurity,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := Arguments(tc.input.tool, nil, tc.input.args)

			require.NotNil(t, err)
			assert.Nil(t, args)
			assert.Equal(t, tc.expected.kind, err.Kind)
			if tc.expected.hintContains != "" {
				assert.Contains(t, err.Hint, tc.expected.hintContains)
			}
		})
	}
}

func TestArguments_PassThrough(t *testing.T) {
	type input struct {
		tool *agentloop.ToolDescriptor
		args map[string]any
	}

	type expected struct {
		args map[string]any
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "clean arguments come back unchanged",
			input: input{
				tool: queryTool(false),
				args: map[string]any{"sql": "SELECT * FROM notes WHERE title ILIKE '%shopping%'"},
			},
			expected: expected{
				args: map[string]any{"sql": "SELECT * FROM notes WHERE title ILIKE '%shopping%'"},
			},
		},
		{
			name: "dotted filenames are not traversal",
			input: input{
				tool: fileTool(),
				args: map[string]any{"path": "reports/q3..final.txt"},
			},
			expected: expected{
				args: map[string]any{"path": "reports/q3..final.txt"},
			},
		},
		{
			name: "destructive verbs pass when the tool allows mutation",
			input: input{
				tool: queryTool(true),
				args: map[string]any{"sql": "DELETE FROM sessions WHERE expired"},
			},
			expected: expected{
				args: map[string]any{"sql": "DELETE FROM sessions WHERE expired"},
			},
		},
		{
			name: "destructive words outside query keys are not queries",
			input: input{
				tool: fileTool(),
				args: map[string]any{"path": "how-to-drop-tables.md"},
			},
			expected: expected{
				args: map[string]any{"path": "how-to-drop-tables.md"},
			},
		},
		{
			name: "non-string values are untouched",
			input: input{
				tool: queryTool(false),
				args: map[string]any{"sql": "SELECT 1", "limit": 10, "explain": true},
			},
			expected: expected{
				args: map[string]any{"sql": "SELECT 1", "limit": 10, "explain": true},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			original := make(map[string]any, len(tc.input.args))
			for k, v := range tc.input.args {
				original[k] = v
			}

			args, err := Arguments(tc.input.tool, nil, tc.input.args)

			require.Nil(t, err)
			assert.Equal(t, tc.expected.args, args)
			assert.Equal(t, original, tc.input.args, "the caller's map must not be mutated")
		})
	}
}

func TestArguments_SchemaValidation(t *testing.T) {
	inputSchema := schema.MustCompile(schema.Object(map[string]*schema.Property{
		"sql":   schema.String("Query to run"),
		"limit": schema.Integer("Row cap").Min(1),
	}, "sql"))

	t.Run("conforming arguments pass", func(t *testing.T) {
		args, err := Arguments(queryTool(false), inputSchema, map[string]any{
			"sql":   "SELECT 1",
			"limit": 5,
		})

		require.Nil(t, err)
		assert.Equal(t, "SELECT 1", args["sql"])
	})

	t.Run("missing required member is a parse error", func(t *testing.T) {
		args, err := Arguments(queryTool(false), inputSchema, map[string]any{
			"limit": 5,
		})

		require.NotNil(t, err)
		assert.Nil(t, args)
		assert.Equal(t, agentloop.KindParse, err.Kind)

		var validationErr *schema.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})

	t.Run("wrong member type is a parse error", func(t *testing.T) {
		_, err := Arguments(queryTool(false), inputSchema, map[string]any{
			"sql":   "SELECT 1",
			"limit": "five",
		})

		require.NotNil(t, err)
		assert.Equal(t, agentloop.KindParse, err.Kind)
	})

	t.Run("validation runs on the repaired query", func(t *testing.T) {
		patternSchema := schema.MustCompile(schema.Object(map[string]*schema.Property{
			"sql": schema.String("Query").Pattern(`ILIKE '`),
		}, "sql"))

		args, err := Arguments(queryTool(false), patternSchema, map[string]any{
			"sql": "SELECT * FROM notes WHERE title ILIKE %x%",
		})

		require.Nil(t, err)
		assert.Equal(t, "SELECT * FROM notes WHERE title ILIKE '%x%'", args["sql"])
	})
}

func TestFixQuery(t *testing.T) {
	type input struct {
		query string
	}

	type expected struct {
		query string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "well-formed query is untouched",
			input:    input{query: "SELECT * FROM notes WHERE title ILIKE '%shopping%'"},
			expected: expected{query: "SELECT * FROM notes WHERE title ILIKE '%shopping%'"},
		},
		{
			name:     "unquoted ILIKE pattern is quoted",
			input:    input{query: "SELECT * FROM users WHERE name ILIKE %alice%"},
			expected: expected{query: "SELECT * FROM users WHERE name ILIKE '%alice%'"},
		},
		{
			name:     "unquoted LIKE pattern is quoted",
			input:    input{query: "SELECT * FROM t WHERE c LIKE %x% AND d = 1"},
			expected: expected{query: "SELECT * FROM t WHERE c LIKE '%x%' AND d = 1"},
		},
		{
			name:     "column operand without wildcard stays bare",
			input:    input{query: "SELECT * FROM t WHERE a ILIKE b"},
			expected: expected{query: "SELECT * FROM t WHERE a ILIKE b"},
		},
		{
			name:     "percent escapes are decoded",
			input:    input{query: "SELECT%20*%20FROM%20notes"},
			expected: expected{query: "SELECT * FROM notes"},
		},
		{
			name:     "wildcard hex lookalikes inside patterns survive",
			input:    input{query: "SELECT * FROM t WHERE c ILIKE '%deployment%'"},
			expected: expected{query: "SELECT * FROM t WHERE c ILIKE '%deployment%'"},
		},
		{
			name:     "repair is idempotent",
			input:    input{query: FixQuery("SELECT * FROM users WHERE name ILIKE %alice%")},
			expected: expected{query: "SELECT * FROM users WHERE name ILIKE '%alice%'"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt.AssertTextEqual(t, tc.expected.query, FixQuery(tc.input.query))
		})
	}
}
