// Package schema validates inbound records against embedded JSON Schemas
// (draft 2020-12) before they are decoded into domain types.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// Name identifies an embedded schema.
type Name string

// Embedded schemas.
const (
	Approval      Name = "approval"
	SafetyContext Name = "safety-context"
	PolicyBundle  Name = "policy-bundle"
)

//go:embed *.schema.json
var files embed.FS

var (
	compileOnce sync.Once
	compiled    map[Name]*jsonschema.Schema
	compileErr  error
)

func schemaURL(n Name) string {
	return fmt.Sprintf("https://portarium.schemas.local/%s.schema.json", n)
}

func load() (map[Name]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true

		names := []Name{Approval, SafetyContext, PolicyBundle}
		for _, n := range names {
			data, err := files.ReadFile(string(n) + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("schema: read %s: %w", n, err)
				return
			}
			if err := c.AddResource(schemaURL(n), bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("schema: load %s: %w", n, err)
				return
			}
		}

		out := make(map[Name]*jsonschema.Schema, len(names))
		for _, n := range names {
			s, err := c.Compile(schemaURL(n))
			if err != nil {
				compileErr = fmt.Errorf("schema: compile %s: %w", n, err)
				return
			}
			out[n] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks an already-decoded JSON document (maps, slices,
// json.Number, strings, bools) against schema n.
func Validate(n Name, doc any) error {
	schemas, err := load()
	if err != nil {
		return err
	}
	s, ok := schemas[n]
	if !ok {
		return fmt.Errorf("schema: unknown schema %q", n)
	}
	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := deepest(verr)
			return contracts.Invalid(title(n), leaf.InstanceLocation, "%s", leaf.Message)
		}
		return fmt.Errorf("schema: validate %s: %w", n, err)
	}
	return nil
}

// ValidateJSON decodes data and validates it against schema n.
func ValidateJSON(n Name, data []byte) error {
	doc, err := Decode(data)
	if err != nil {
		return contracts.Invalid(title(n), "", "malformed JSON: %v", err)
	}
	return Validate(n, doc)
}

// Decode parses JSON into the generic form the validator expects, keeping
// numbers exact.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func deepest(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}

func title(n Name) string {
	switch n {
	case Approval:
		return "Approval"
	case SafetyContext:
		return "SafetyContext"
	case PolicyBundle:
		return "PolicyBundle"
	}
	return string(n)
}
