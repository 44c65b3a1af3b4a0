/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema publishes the JSON schema of the pipeline result so
// downstream scripts can validate what a run prints.
package schema

import (
	"encoding/json"
	"fmt"
	"io"

	"chainguard.dev/issuedebug/triage"
	"github.com/invopop/jsonschema"
)

// ID identifies the result schema.
const ID = "https://chainguard.dev/issuedebug/pipeline-result.schema.json"

// Generator wraps jsonschema.Reflector with project defaults.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator constructs a generator that inlines nested types and rejects
// unknown properties.
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			DoNotReference:             true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.reflector.Reflect(v)
}

// Result returns the schema of triage.PipelineResult.
func Result() *jsonschema.Schema {
	s := NewGenerator().Reflect(&triage.PipelineResult{})
	s.ID = ID
	s.Title = "issuedebug pipeline result"
	return s
}

// Write writes the result schema as indented JSON.
func Write(w io.Writer) error {
	b, err := json.MarshalIndent(Result(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(b)); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	return nil
}
