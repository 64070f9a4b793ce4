package ingest

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dvloznov/pocketsync/internal/apperr"
)

// Schema is a compiled JSON Schema used as the shape gate in front of a
// provider's normalize function.
type Schema struct {
	name string
	sch  *jsonschema.Schema
}

// CompileSchema compiles doc, registered under name for error messages.
func CompileSchema(name string, doc []byte) (*Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("CompileSchema: parsing %s: %w", name, err)
	}

	url := "https://pocketsync.local/schemas/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("CompileSchema: adding %s: %w", name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("CompileSchema: compiling %s: %w", name, err)
	}
	return &Schema{name: name, sch: sch}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name string, doc []byte) *Schema {
	s, err := CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string {
	return s.name
}

// Validate checks payload. Failures are Validation errors.
func (s *Schema) Validate(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return apperr.Validation(err, "%s: payload is not JSON", s.name)
	}
	if err := s.sch.Validate(inst); err != nil {
		return apperr.Validation(err, "%s: JSON validation failed", s.name)
	}
	return nil
}
