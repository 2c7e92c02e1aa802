package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
)

// Schema returns the JSON Schema of a marshaled Record.
func Schema() map[string]any {
	props := make(map[string]any, len(constants.ModelFeatures()))
	for _, name := range constants.ModelFeatures() {
		if constants.IsCategorical(name) {
			props[name] = map[string]any{"type": "integer", "enum": []int{0, 1}}
		} else {
			props[name] = map[string]any{"type": "number"}
		}
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                "LabRecord",
		"type":                 "object",
		"properties":           props,
		"required":             constants.ModelFeatures(),
		"additionalProperties": false,
	}
}

var (
	schemaOnce sync.Once
	compiled   *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(Schema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("lab_record.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, schemaErr = c.Compile("lab_record.json")
	})
	return compiled, schemaErr
}

// Validate checks a record against Schema.
func Validate(r Record) error {
	s, err := compiledSchema()
	if err != nil {
		return common.WrapError(err, "compile record schema")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return common.WrapError(err, "marshal record")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return common.WrapError(err, "decode record")
	}
	if err := s.Validate(v); err != nil {
		return common.NewAppError("RECORD_SCHEMA", "record does not match schema", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	return nil
}
