package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestValidate_Valid(t *testing.T) {
	res := Validate(`{"type":"object","required":["id"]}`, decodeJSON(t, `{"id":1}`))

	assert.True(t, res.Valid)
	assert.NotNil(t, res.Errors)
	assert.Empty(t, res.Errors)
}

func TestValidate_MissingRequired(t *testing.T) {
	res := Validate(`{"type":"object","required":["id"]}`, decodeJSON(t, `{}`))

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "<root> "), res.Errors[0])
	assert.Contains(t, res.Errors[0], "id")
}

func TestValidate_InvalidSchema(t *testing.T) {
	res := Validate(`{"type":`, map[string]any{})

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Invalid Schema: "), res.Errors[0])
}

func TestValidate_GroupsArrayElements(t *testing.T) {
	schemaText := `{
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {"x": {"type": "string"}}
				}
			}
		}
	}`
	data := decodeJSON(t, `{"items":[{"x":1},{"x":2},{"x":3}]}`)

	res := Validate(schemaText, data)

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "items[*].x "), res.Errors[0])
	assert.True(t, strings.HasSuffix(res.Errors[0], "(x3)"), res.Errors[0])
}

func TestValidate_SingleArrayErrorKeepsIndex(t *testing.T) {
	schemaText := `{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"x":{"type":"string"}}}}}}`
	data := decodeJSON(t, `{"items":[{"x":1},{"x":"ok"}]}`)

	res := Validate(schemaText, data)

	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "items[0].x "), res.Errors[0])
	assert.NotContains(t, res.Errors[0], "(x")
}

func TestValidate_NumericKeysAreNotIndexes(t *testing.T) {
	schemaText := `{
		"type": "object",
		"properties": {
			"200": {"type": "string"},
			"404": {"type": "string"},
			"codes": {"type": "array", "items": {"type": "object", "properties": {"7": {"type": "string"}}}}
		}
	}`
	data := decodeJSON(t, `{"200":1,"404":2,"codes":[{"7":1}]}`)

	res := Validate(schemaText, data)

	require.Len(t, res.Errors, 3, res.Errors)
	var paths []string
	for _, e := range res.Errors {
		assert.NotContains(t, e, "(x")
		paths = append(paths, strings.SplitN(e, " ", 2)[0])
	}
	assert.ElementsMatch(t, []string{"['200']", "['404']", "codes[0]['7']"}, paths)
}

func TestGroup(t *testing.T) {
	tests := []struct {
		name       string
		violations []Violation
		expected   []string
	}{
		{
			name: "three collapse into one",
			violations: []Violation{
				{Path: "items[0].x", Message: "must be string"},
				{Path: "items[1].x", Message: "must be string"},
				{Path: "items[2].x", Message: "must be string"},
			},
			expected: []string{"items[*].x must be string (x3)"},
		},
		{
			name: "singleton keeps original path",
			violations: []Violation{
				{Path: "items[0].x", Message: "must be string"},
			},
			expected: []string{"items[0].x must be string"},
		},
		{
			name: "different messages stay apart in first-seen order",
			violations: []Violation{
				{Path: "a[0]", Message: "m2"},
				{Path: "a[1]", Message: "m1"},
				{Path: "a[2]", Message: "m2"},
			},
			expected: []string{"a[*] m2 (x2)", "a[1] m1"},
		},
		{
			name: "nested indexes masked",
			violations: []Violation{
				{Path: "rows[0].cells[3]", Message: "bad"},
				{Path: "rows[5].cells[1]", Message: "bad"},
			},
			expected: []string{"rows[*].cells[*] bad (x2)"},
		},
		{
			name:       "degenerate failure",
			violations: nil,
			expected:   []string{"Unknown error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Group(tt.violations))
		})
	}
}

func TestGenerate(t *testing.T) {
	data := decodeJSON(t, `{"id":1,"name":"a","ok":true,"tags":["x"],"empty":[],"meta":null}`)

	out, err := Generate(data)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"id": {"type": "number"},
			"name": {"type": "string"},
			"ok": {"type": "boolean"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"empty": {"type": "array", "items": {}},
			"meta": {"type": "null"}
		}
	}`, out)

	// generated schemas accept their own sample
	assert.True(t, Validate(out, data).Valid)
}
