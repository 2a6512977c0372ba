package toolregistry

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects a Go argument type into the JSON Schema object
// advertised to the model backend as a tool's InputSchema (spec §3.1
// ToolDefinition, §6).
//
// Supported struct tags:
//   - json:"name"                      parameter name
//   - json:",omitempty"                optional parameter
//   - jsonschema:"required"            explicitly mark as required
//   - jsonschema:"description=..."     parameter description
//   - jsonschema:"enum=a|b|c"          allowed values
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	return schemaToMap(schema)
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: marshal schema: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("toolregistry: decode schema: %w", err)
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
