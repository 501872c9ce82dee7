package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docparse/internal/common"
)

var customFieldsSchema = jsonschema.MustCompileString("custom_fields.json", `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"description": {"type": "string"}
		},
		"required": ["field"]
	}
}`)

// ParseCustomFields decodes the custom_fields form value: a JSON array of
// {field, description} objects. Blank input and an empty array both mean
// "no custom fields" and return nil.
func ParseCustomFields(raw string) ([]CustomField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, common.NewAppError("INVALID_CUSTOM_FIELDS", "custom_fields is not valid JSON", errors.Join(common.ErrInvalidInput, err))
	}
	if err := customFieldsSchema.Validate(doc); err != nil {
		return nil, common.NewAppError("INVALID_CUSTOM_FIELDS", strings.Join(violations(err), "; "), common.ErrInvalidInput)
	}

	var fields []CustomField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, common.NewAppError("INVALID_CUSTOM_FIELDS", "custom_fields has the wrong shape", errors.Join(common.ErrInvalidInput, err))
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// ValidateJSONAgainstSchema validates a decoded JSON value against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data any) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// CheckRecord validates a recovered record against the template's schema and
// returns one message per violation. Nil means the record conforms.
func CheckRecord(t Template, record map[string]any) ([]string, error) {
	// _metadata is ours, not the model's
	doc := make(map[string]any, len(record))
	for k, v := range record {
		if k != MetadataKey {
			doc[k] = v
		}
	}
	err := ValidateJSONAgainstSchema(t.JSONSchema(), doc)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	return violations(ve), nil
}

func violations(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range ve.BasicOutput().Errors {
		// the root entry only says "doesn't validate with schema.json#"
		if e.Error == "" || e.InstanceLocation == "" {
			continue
		}
		out = append(out, e.InstanceLocation+": "+e.Error)
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}
