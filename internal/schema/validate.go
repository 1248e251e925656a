// Package schema validates decoded documents against JSON Schema payloads.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks value against the JSON schema in schemaBytes.
// value may be raw JSON ([]byte or json.RawMessage) or an already decoded value.
func Validate(id string, schemaBytes []byte, value any) error {
	if len(schemaBytes) == 0 {
		return fmt.Errorf("schema %q is empty", id)
	}
	resourceID := resourceURL(id)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	payload, err := decode(value)
	if err != nil {
		return err
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func decode(value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return value, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func resourceURL(id string) string {
	if id == "" {
		id = "schema"
	}
	return "inmemory://" + id + ".json"
}
