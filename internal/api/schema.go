package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://dungeonflip.dev/schemas/"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Validator holds the compiled request schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	var names []string
	for _, e := range entries {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".schema.json"))
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaBase + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// FieldError is a request body that failed its schema.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Decode reads r's body, validates it against the named schema and
// unmarshals it into dst.
func (v *Validator) Decode(r *http.Request, schema string, dst any) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &FieldError{Field: "body", Message: "unreadable body"}
	}
	if len(body) > maxBodyBytes {
		return &FieldError{Field: "body", Message: "body too large"}
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &FieldError{Field: "body", Message: "invalid JSON"}
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepest(ve)
			field := strings.TrimPrefix(leaf.InstanceLocation, "/")
			if field == "" {
				field = "body"
			}
			return &FieldError{Field: field, Message: leaf.Message}
		}
		return &FieldError{Field: "body", Message: err.Error()}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &FieldError{Field: "body", Message: err.Error()}
	}
	return nil
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
