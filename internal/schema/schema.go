// Package schema loads the field-type declaration that tells the
// change-detection engine which record fields are scalar and which are
// composite (arrays or objects).
//
// The declaration is read from a Frictionless datapackage.json. The engine
// never inspects values to guess a field's kind: a composite field that is
// temporarily null is still compared as composite.
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Kind classifies a field.
type Kind int

const (
	// Scalar fields are compared as a whole.
	Scalar Kind = iota
	// Composite fields are arrays or objects compared leaf by leaf.
	Composite
)

func (k Kind) String() string {
	if k == Composite {
		return "composite"
	}
	return "scalar"
}

// compositeTypes are the Frictionless field types holding nested values.
var compositeTypes = map[string]bool{
	"array":  true,
	"object": true,
}

// Declaration maps field names to their kind.
type Declaration struct {
	fields map[string]Kind
}

// FromMap builds a Declaration from an explicit mapping.
func FromMap(fields map[string]Kind) Declaration {
	d := Declaration{fields: make(map[string]Kind, len(fields))}
	for name, kind := range fields {
		d.fields[name] = kind
	}
	return d
}

// Kind returns the declared kind of a field. Undeclared fields are scalar.
func (d Declaration) Kind(field string) Kind {
	return d.fields[field]
}

// Declared reports whether the field appears in the declaration.
func (d Declaration) Declared(field string) bool {
	_, ok := d.fields[field]
	return ok
}

// Composite returns the sorted names of all composite fields.
func (d Declaration) Composite() []string {
	var names []string
	for name, kind := range d.fields {
		if kind == Composite {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of declared fields.
func (d Declaration) Len() int {
	return len(d.fields)
}

// Error codes for declaration loading.
const (
	ErrCodeNotFound        = "S001" // datapackage file missing
	ErrCodeParse           = "S002" // not valid JSON/CUE
	ErrCodeNoResources     = "S003" // resources list empty or absent
	ErrCodeMissingResource = "S004" // named resource not present
	ErrCodeInvalidField    = "S005" // field entry without a name
)

// LoadError reports why a declaration could not be loaded.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads a datapackage.json and returns the declaration of the resource
// with the given name. An empty name selects the first resource.
//
// Fields typed "array" or "object" are composite; every other declared
// field is scalar.
func Load(path, resource string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "reading datapackage", Err: err}
	}

	// JSON is valid CUE, so the datapackage compiles directly.
	ctx := cuecontext.New()
	root := ctx.CompileBytes(data, cue.Filename(path))
	if err := root.Err(); err != nil {
		return Declaration{}, &LoadError{Code: ErrCodeParse, Path: path, Message: "parsing datapackage", Err: err}
	}

	res, err := findResource(root, resource)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return Declaration{}, err
	}

	return parseFields(res, path)
}

func findResource(root cue.Value, name string) (cue.Value, error) {
	resources := root.LookupPath(cue.ParsePath("resources"))
	if !resources.Exists() {
		return cue.Value{}, &LoadError{Code: ErrCodeNoResources, Message: "no resources declared"}
	}

	iter, err := resources.List()
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNoResources, Message: "resources is not a list", Err: err}
	}

	seen := 0
	for iter.Next() {
		seen++
		res := iter.Value()
		if name == "" {
			return res, nil
		}
		label, err := res.LookupPath(cue.ParsePath("name")).String()
		if err == nil && label == name {
			return res, nil
		}
	}

	if seen == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoResources, Message: "no resources declared"}
	}
	return cue.Value{}, &LoadError{Code: ErrCodeMissingResource, Message: fmt.Sprintf("resource %q not found", name)}
}

func parseFields(res cue.Value, path string) (Declaration, error) {
	decl := Declaration{fields: map[string]Kind{}}

	fields := res.LookupPath(cue.ParsePath("schema.fields"))
	if !fields.Exists() {
		return decl, nil
	}

	iter, err := fields.List()
	if err != nil {
		return Declaration{}, &LoadError{Code: ErrCodeInvalidField, Path: path, Message: "schema.fields is not a list", Err: err}
	}

	for i := 0; iter.Next(); i++ {
		field := iter.Value()
		name, err := field.LookupPath(cue.ParsePath("name")).String()
		if err != nil || name == "" {
			return Declaration{}, &LoadError{Code: ErrCodeInvalidField, Path: path, Message: fmt.Sprintf("field %d has no name", i)}
		}

		kind := Scalar
		if typ, err := field.LookupPath(cue.ParsePath("type")).String(); err == nil && compositeTypes[typ] {
			kind = Composite
		}
		decl.fields[name] = kind
	}

	return decl, nil
}
