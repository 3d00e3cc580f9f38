package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is the JSON schema every backend response must satisfy
func responseSchema() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"recipient": str,
			"amount":    str,
			"currency":  str,
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"label"},
					"properties": map[string]any{
						"label":       map[string]any{"type": "string", "minLength": 1},
						"quantity":    str,
						"unit_amount": str,
					},
				},
			},
			"due_date":     str,
			"append_items": map[string]any{"type": "boolean"},
			"confidence":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
	}
}

// geminiSchema mirrors responseSchema in the form the Gemini API accepts
func geminiSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"recipient": str("who the invoice is billed to"),
			"amount":    str("total amount as digits, e.g. 50000 or 1250.50"),
			"currency":  str("ISO 4217 code"),
			"line_items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"label":       str("what was sold or done"),
						"quantity":    str("quantity as digits"),
						"unit_amount": str("price per unit as digits"),
					},
					Required: []string{"label"},
				},
			},
			"due_date":     str("YYYY-MM-DD"),
			"append_items": {Type: genai.TypeBoolean},
			"confidence":   {Type: genai.TypeNumber},
		},
	}
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(responseSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("extraction.json")
})

// validateAgainstSchema checks sanitized backend output against responseSchema
func validateAgainstSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
