package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"opsdesk/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// PayloadSchema returns the JSON Schema document for one kind's payload, the
// same object rendering used for engine declarations.
func PayloadSchema(k KindSchema) map[string]interface{} {
	return objectSchema(k.Fields)
}

func compileSchemas(kinds []KindSchema) (map[models.ActionKind]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()

	out := make(map[models.ActionKind]*jsonschema.Schema, len(kinds))
	for _, k := range kinds {
		doc, err := asJSONValue(PayloadSchema(k))
		if err != nil {
			return nil, fmt.Errorf("encoding %s schema: %w", k.Kind, err)
		}
		url := "contract/" + string(k.Kind) + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("adding %s schema: %w", k.Kind, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", k.Kind, err)
		}
		out[k.Kind] = sch
	}
	return out, nil
}

// asJSONValue round-trips v through JSON so the validator sees plain
// decoded values with json.Number for numbers.
func asJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// Validate checks a request against its kind's schema. Empty strings and
// nulls count as absent.
func (c *Contract) Validate(req models.ActionRequest) error {
	sch, ok := c.schemas[req.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	payload := make(map[string]any, len(req.Payload))
	for k, v := range req.Payload {
		if v != nil && v != "" {
			payload[k] = v
		}
	}
	inst, err := asJSONValue(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, req.Kind, err)
	}
	if err := sch.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, req.Kind, describeViolation(verr))
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, req.Kind, err)
	}
	return nil
}

// describeViolation reports the innermost failure, which names the field.
func describeViolation(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return verr.Error()
}
