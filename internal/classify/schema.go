package classify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// replySchema describes the model server's answer: the predicted class and
// the per-class probabilities, class 0 first.
func replySchema() map[string]any {
	prob := map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prediction": map[string]any{"type": "integer", "enum": []int{0, 1}},
			"probabilities": map[string]any{
				"type":     "array",
				"items":    prob,
				"minItems": 2,
				"maxItems": 2,
			},
		},
		"required": []string{"prediction", "probabilities"},
	}
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(name)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
