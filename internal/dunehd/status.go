package dunehd

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed status.schema.json
var statusSchemaJSON []byte

var (
	statusSchemaOnce sync.Once
	statusSchema     *jsonschema.Schema
	statusSchemaErr  error
)

func compiledStatusSchema() (*jsonschema.Schema, error) {
	statusSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(statusSchemaJSON))
		if err != nil {
			statusSchemaErr = fmt.Errorf("unmarshal status schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("status.schema.json", doc); err != nil {
			statusSchemaErr = fmt.Errorf("add status schema: %w", err)
			return
		}
		statusSchema, statusSchemaErr = c.Compile("status.schema.json")
	})
	return statusSchema, statusSchemaErr
}

// ParseStatus decodes and validates a status document. Any failure is
// returned as a *ParseError so callers can treat it like a transport error.
func ParseStatus(cmd Command, payload []byte) (*Status, error) {
	schema, err := compiledStatusSchema()
	if err != nil {
		return nil, &ParseError{Command: cmd, Err: err}
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, &ParseError{Command: cmd, Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &ParseError{Command: cmd, Err: err}
	}

	var status Status
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, &ParseError{Command: cmd, Err: err}
	}
	if raw, ok := doc.(map[string]any); ok {
		status.Raw = raw
	}
	return &status, nil
}
