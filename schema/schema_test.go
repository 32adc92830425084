package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	type input struct {
		raw map[string]any
	}

	type expected struct {
		isNil  bool
		hasErr bool
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "nil schema returns nil",
			input:    input{raw: nil},
			expected: expected{isNil: true},
		},
		{
			name: "valid schema compiles",
			input: input{
				raw: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
					},
				},
			},
			expected: expected{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compile(tt.input.raw)

			if tt.expected.hasErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			if tt.expected.isNil {
				assert.Nil(t, s)
			} else {
				assert.NotNil(t, s)
				assert.NotNil(t, s.Raw())
			}
		})
	}
}

func TestCompileJSON(t *testing.T) {
	type input struct {
		data []byte
	}

	type expected struct {
		isNil  bool
		hasErr bool
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "empty input returns nil schema",
			input:    input{data: nil},
			expected: expected{isNil: true},
		},
		{
			name:     "valid schema JSON compiles",
			input:    input{data: []byte(`{"type":"object","properties":{"sql":{"type":"string"}}}`)},
			expected: expected{},
		},
		{
			name:     "malformed JSON fails",
			input:    input{data: []byte(`{"type":`)},
			expected: expected{isNil: true, hasErr: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CompileJSON(tt.input.data)

			if tt.expected.hasErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.expected.isNil {
				assert.Nil(t, s)
			} else {
				assert.NotNil(t, s)
			}
		})
	}
}

func TestSchema_Validate(t *testing.T) {
	type input struct {
		schema map[string]any
		data   map[string]any
	}

	type expected struct {
		hasErr          bool
		isValidationErr bool
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "valid data passes",
			input: input{
				schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
						"age":  map[string]any{"type": "integer"},
					},
					"required": []any{"name"},
				},
				data: map[string]any{
					"name": "John",
					"age":  30,
				},
			},
			expected: expected{},
		},
		{
			name: "missing required field fails",
			input: input{
				schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
					},
					"required": []any{"name"},
				},
				data: map[string]any{},
			},
			expected: expected{hasErr: true, isValidationErr: true},
		},
		{
			name: "wrong type fails",
			input: input{
				schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"count": map[string]any{"type": "integer"},
					},
				},
				data: map[string]any{
					"count": "not an integer",
				},
			},
			expected: expected{hasErr: true, isValidationErr: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compile(tt.input.schema)
			require.NoError(t, err)

			err = s.Validate(tt.input.data)

			if tt.expected.hasErr {
				assert.Error(t, err)
				if tt.expected.isValidationErr {
					_, ok := err.(*ValidationError)
					assert.True(t, ok, "expected *ValidationError, got %T", err)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchema_Validate_NilSchema(t *testing.T) {
	var s *Schema
	err := s.Validate(map[string]any{"foo": "bar"})
	assert.NoError(t, err, "nil schema should always pass validation")
}

func TestMustCompile_PanicsOnInvalid(t *testing.T) {
	assert.NotPanics(t, func() { MustCompile(map[string]any{"type": "object"}) })
	assert.Panics(t, func() {
		MustCompile(map[string]any{"type": make(chan int)})
	})
}

func TestObject_Basic(t *testing.T) {
	raw := Object(map[string]*Property{
		"name": String("The name"),
		"age":  Integer("The age"),
	}, "name")

	assert.Equal(t, "object", raw["type"])

	props, ok := raw["properties"].(map[string]any)
	require.True(t, ok, "expected properties map")
	assert.Len(t, props, 2)

	required, ok := raw["required"].([]string)
	require.True(t, ok, "expected required array")
	assert.Equal(t, []string{"name"}, required)
}

func TestProperty_Constraints(t *testing.T) {
	built := Integer("A count").Min(0).Max(100).build()
	assert.Equal(t, "integer", built["type"])
	assert.Equal(t, float64(0), built["minimum"])
	assert.Equal(t, float64(100), built["maximum"])

	built = String("A status").Enum("pending", "active").Pattern("^[a-z]+$").build()
	assert.Equal(t, []any{"pending", "active"}, built["enum"])
	assert.Equal(t, "^[a-z]+$", built["pattern"])

	built = Array("A list", map[string]any{"type": "string"}).build()
	assert.Equal(t, "array", built["type"])
	assert.NotNil(t, built["items"])

	built = Boolean("A flag").Default(true).build()
	assert.Equal(t, "boolean", built["type"])
	assert.Equal(t, true, built["default"])
}

func TestBuilderSchema_Validation(t *testing.T) {
	type input struct {
		data map[string]any
	}

	type expected struct {
		hasErr bool
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "valid data passes",
			input: input{
				data: map[string]any{"sql": "SELECT 1", "limit": 10},
			},
			expected: expected{},
		},
		{
			name: "missing required sql fails",
			input: input{
				data: map[string]any{"limit": 10},
			},
			expected: expected{hasErr: true},
		},
		{
			name: "limit below minimum fails",
			input: input{
				data: map[string]any{"sql": "SELECT 1", "limit": 0},
			},
			expected: expected{hasErr: true},
		},
	}

	raw := Object(map[string]*Property{
		"sql":   String("Query to run"),
		"limit": Integer("Row cap").Min(1).Max(1000),
	}, "sql")

	s, err := Compile(raw)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.input.data)

			if tt.expected.hasErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
