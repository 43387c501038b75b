package llmprovider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaFor reflects a Go struct into a JSON Schema document, the way stage
// contracts advertise their expected structured-output shape to the model.
func SchemaFor(v any) ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	s := r.Reflect(v)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// ValidateAgainstSchema compiles schemaJSON and validates raw (a JSON
// document) against it, returning a flattened error on mismatch.
func ValidateAgainstSchema(schemaJSON []byte, raw string) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	const resourceID = "stage-output.json"
	if err := c.AddResource(resourceID, schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("unmarshal candidate output: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			var msgs []string
			for _, cause := range flattenCauses(ve) {
				msgs = append(msgs, fmt.Sprintf("%s: %v", strings.Join(cause.InstanceLocation, "/"), cause.ErrorKind))
			}
			return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// flattenCauses recursively collects leaf validation errors.
func flattenCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenCauses(cause)...)
	}
	return flat
}

// DecodeStructured validates the model's raw text against the schema for
// dst's type, then unmarshals into dst.
func DecodeStructured(raw string, dst any) error {
	schemaJSON, err := SchemaFor(dst)
	if err != nil {
		return err
	}
	if err := ValidateAgainstSchema(schemaJSON, raw); err != nil {
		return err
	}
	return DecodeJSON(raw, dst)
}
