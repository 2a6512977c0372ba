package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Max results"`
}

func TestGenerateSchemaMarksRequiredFields(t *testing.T) {
	schema, err := GenerateSchema[searchArgs]()
	require.NoError(t, err)
	require.Equal(t, "object", schema["type"])

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	require.Contains(t, required, "query")
}

func TestValidatorAcceptsAndRejectsArguments(t *testing.T) {
	schema, err := GenerateSchema[searchArgs]()
	require.NoError(t, err)

	v := NewValidator()
	require.NoError(t, v.Validate("search", schema, []byte(`{"query":"go"}`)))
	require.Error(t, v.Validate("search", schema, []byte(`{"limit":5}`)))
}
