package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Sentinel errors. Callers should use errors.Is.
var (
	ErrNilType      = errors.New("schema: type must not be nil")
	ErrInvalidJSON  = errors.New("schema: document is not valid JSON")
	ErrInvalidValue = errors.New("schema: document does not match schema")
)

// ValidationError lists every violation found by Validate.
type ValidationError struct {
	Violations []string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %d violation(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Unwrap lets errors.Is match ErrInvalidValue.
func (e *ValidationError) Unwrap() error { return ErrInvalidValue }

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: false,
	}
}

// Reflect returns the JSON Schema of t as a generic map, ready to embed in a request.
func Reflect(t reflect.Type) (map[string]any, error) {
	if t == nil {
		return nil, ErrNilType
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	s := newReflector().ReflectFromType(t)
	s.Version = ""
	s.ID = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal %s: %w", t, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("schema: unmarshal %s: %w", t, err)
	}
	return out, nil
}

// For returns the JSON Schema of T.
func For[T any]() (map[string]any, error) {
	return Reflect(reflect.TypeFor[T]())
}

// Validate checks doc against schema and returns a *ValidationError listing violations.
func Validate(schema map[string]any, doc []byte) error {
	if !json.Valid(doc) {
		return ErrInvalidJSON
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &ValidationError{Violations: violations}
}

// Decode validates doc against the schema of T and unmarshals it into a T.
func Decode[T any](doc []byte) (T, error) {
	var out T
	s, err := For[T]()
	if err != nil {
		return out, err
	}
	if err := Validate(s, doc); err != nil {
		return out, err
	}
	if err := json.Unmarshal(doc, &out); err != nil {
		return out, fmt.Errorf("schema: decode: %w", err)
	}
	return out, nil
}
