package toolregistry

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates raw tool-call arguments against a tool's JSON Schema
// before dispatch (spec §4.2 "arguments are schema-validated before
// execution"). Compiled schemas are cached by resource URL since a tool's
// schema does not change within a run.
type Validator struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]*jsonschema.Schema)}
}

// Validate checks args (raw JSON) against the tool's schema, compiling and
// caching it under name on first use.
func (v *Validator) Validate(name string, schema map[string]any, args []byte) error {
	compiled, err := v.compile(name, schema)
	if err != nil {
		return fmt.Errorf("toolregistry: compile schema for %q: %w", name, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("toolregistry: decode arguments for %q: %w", name, err)
	}
	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("toolregistry: arguments for %q failed validation: %w", name, err)
	}
	return nil
}

func (v *Validator) compile(name string, schema map[string]any) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, ok := v.schemas[name]; ok {
		return cached, nil
	}

	url := "massgen://tool/" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, schema); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	v.schemas[name] = compiled
	return compiled, nil
}
