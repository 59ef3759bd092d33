package devicemanager

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// validator holds the compiled schemas for the three device manager messages.
type validator struct {
	info       *jsonschema.Schema
	status     *jsonschema.Schema
	datapoints *jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()

	names := []string{"info.json", "status.json", "datapoints.json"}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
	}

	compiled := make([]*jsonschema.Schema, len(names))
	for i, name := range names {
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		compiled[i] = s
	}

	return &validator{info: compiled[0], status: compiled[1], datapoints: compiled[2]}, nil
}

// validate checks payload against schema.
func validate(schema *jsonschema.Schema, payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}
