// Package schema implements A4: JSON Schema synthesis for registered
// functions' input/output record classes, using
// github.com/google/jsonschema-go — a dependency that ships in the
// teacher's go.mod (pulled in for its MCP tool surface) but has no
// consumer anywhere in the retrieved tree, so this package is the home
// SPEC_FULL.md §4.14 gives it.
package schema

import (
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

// ForType reflects t (expected to be a struct type, e.g. a registered
// function's kwargs struct or its return type) into a JSON Schema
// document describing its exported fields.
func ForType(t reflect.Type) (*jsonschema.Schema, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return jsonschema.ForType(t, nil)
}
