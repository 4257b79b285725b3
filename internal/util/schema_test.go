package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query   string   `json:"query" description:"Search query"`
	Limit   int      `json:"limit,omitempty"`
	Exact   bool     `json:"exact,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Cursor  *string  `json:"cursor"`
	Skipped string   `json:"-"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search query", query["description"])

	limit := props["limit"].(map[string]any)
	assert.Equal(t, "integer", limit["type"])
	exact := props["exact"].(map[string]any)
	assert.Equal(t, "boolean", exact["type"])
	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
	cursor := props["cursor"].(map[string]any)
	assert.Equal(t, "string", cursor["type"])

	_, hasSkipped := props["Skipped"]
	assert.False(t, hasSkipped)

	// only query is required: omitempty and pointer fields are optional
	assert.Equal(t, []string{"query"}, schema["required"])
}

func TestCreateSchemaNonStruct(t *testing.T) {
	schema := CreateSchema("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	err := ValidateParameters(map[string]any{"query": "go"}, schema)
	assert.NoError(t, err)

	err = ValidateParameters(map[string]any{"limit": 3}, schema)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "query", verr.Field)

	err = ValidateParameters(map[string]any{"query": "go", "limit": "ten"}, schema)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "limit", verr.Field)

	// JSON numbers arrive as float64; whole values satisfy integer
	err = ValidateParameters(map[string]any{"query": "go", "limit": float64(10)}, schema)
	assert.NoError(t, err)
	err = ValidateParameters(map[string]any{"query": "go", "limit": 10.5}, schema)
	assert.Error(t, err)

	// unknown fields pass through
	err = ValidateParameters(map[string]any{"query": "go", "extra": struct{}{}}, schema)
	assert.NoError(t, err)

	// nil matches any declared type
	err = ValidateParameters(map[string]any{"query": "go", "tags": nil}, schema)
	assert.NoError(t, err)
}

func TestValidateParametersDecodedSchema(t *testing.T) {
	// schemas decoded from JSON carry []any for required
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	}
	err := ValidateParameters(map[string]any{}, schema)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate("hello {{ .name | upper }}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello WORLD", out)

	out, err = RenderTemplate(`{{ .missing | default "fallback" }}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)

	out, err = RenderTemplate(`{{ join ", " .items }}`, map[string]any{"items": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a, b", out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}
