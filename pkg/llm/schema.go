package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/skillforge/engine/pkg/pathresolver"
)

// BuildOutputSchema assembles the JSON Schema a skill's structured LLM
// output must satisfy: one property per entry in produces ∪
// optionalProduces. Only produces entries are listed in "required"; every
// property is the open schema `{}`, which also admits null, so
// optionalProduces entries are nullable without an explicit marker (spec
// §4.4: "all O fields marked nullable"). Only the top-level
// dotted-path segment becomes a schema property — nested shape below that
// is left open (`{}`) since the resolver accepts arbitrary JSON there.
func BuildOutputSchema(produces, optionalProduces []string) (json.RawMessage, error) {
	properties := map[string]any{}
	var required []string

	addTop := func(path string, nullable bool) error {
		top := pathresolver.Split(path)
		if len(top) == 0 {
			return fmt.Errorf("llm: empty output path")
		}
		key := top[0]
		if _, exists := properties[key]; exists {
			return nil
		}
		if nullable {
			properties[key] = map[string]any{}
		} else {
			properties[key] = map[string]any{}
			required = append(required, key)
		}
		return nil
	}

	for _, p := range produces {
		if err := addTop(p, false); err != nil {
			return nil, err
		}
	}
	for _, p := range optionalProduces {
		if err := addTop(p, true); err != nil {
			return nil, err
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return json.Marshal(schema)
}

// BuildEnumSchema assembles a JSON Schema constraining fieldName to one of
// choices — used by the Planner (C9) to force its decision into a closed
// enum over the eligible skill names plus "END" (spec §4.8: "output
// schema is a closed enum over the eligible skill names plus END").
func BuildEnumSchema(fieldName string, choices []string) json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			fieldName: map[string]any{
				"type": "string",
				"enum": choices,
			},
		},
		"required":             []string{fieldName},
		"additionalProperties": true,
	}
	b, err := json.Marshal(schema)
	if err != nil {
		// choices is always a []string and fieldName a string: this
		// structure always marshals.
		panic(fmt.Sprintf("llm: build enum schema: %v", err))
	}
	return b
}

// ValidateOutput compiles schemaBytes and checks payload against it,
// grounded on the teacher pack's validatePayloadJSONAgainstSchema
// (goadesign-goa-ai/registry/service.go): unmarshal both documents,
// compile the schema with a fresh jsonschema.Compiler per call (schemas
// here are small and call-scoped, not worth caching), and validate.
func ValidateOutput(schemaBytes, payload json.RawMessage) error {
	if len(schemaBytes) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("llm: unmarshal output schema: %w", err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return fmt.Errorf("llm: unmarshal output payload: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("output.json", schemaDoc); err != nil {
		return fmt.Errorf("llm: add schema resource: %w", err)
	}
	schema, err := c.Compile("output.json")
	if err != nil {
		return fmt.Errorf("llm: compile output schema: %w", err)
	}

	if err := schema.Validate(payloadDoc); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}
	return nil
}
