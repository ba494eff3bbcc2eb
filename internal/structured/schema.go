package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rotisserie/eris"
)

// Schema validates oracle output destined for T in three layers: a JSON
// Schema derived from T (types and required fields), validator/v10 struct
// tags (enums, ranges, cardinality) and an optional semantic check.
type Schema[T any] struct {
	name     string
	document string
	resolved *jsonschema.Resolved
	validate *validator.Validate
	check    func(*T) []Issue
}

// NewSchema derives the schema for T. check may be nil.
func NewSchema[T any](name string, check func(*T) []Issue) (*Schema[T], error) {
	js, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, eris.Wrapf(err, "structured: infer schema %s", name)
	}
	allowExtraProperties(js)

	resolved, err := js.Resolve(nil)
	if err != nil {
		return nil, eris.Wrapf(err, "structured: resolve schema %s", name)
	}

	doc, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return nil, eris.Wrapf(err, "structured: marshal schema %s", name)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return &Schema[T]{
		name:     name,
		document: string(doc),
		resolved: resolved,
		validate: v,
		check:    check,
	}, nil
}

// MustSchema is NewSchema for package-level schemas.
func MustSchema[T any](name string, check func(*T) []Issue) *Schema[T] {
	s, err := NewSchema(name, check)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema's label.
func (s *Schema[T]) Name() string { return s.name }

// Document returns the JSON Schema as indented JSON for use in prompts.
func (s *Schema[T]) Document() string { return s.document }

// Validate decodes raw into T. A non-nil error means raw is not JSON; a
// non-empty issue list means it is JSON that fails the schema.
func (s *Schema[T]) Validate(raw string) (*T, []Issue, error) {
	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return nil, nil, eris.Wrap(err, "structured: parse json")
	}
	if _, ok := instance.(map[string]any); !ok {
		return nil, []Issue{{Path: "$", Message: "expected a JSON object"}}, nil
	}

	if err := s.resolved.Validate(instance); err != nil {
		return nil, []Issue{{Path: "$", Message: err.Error()}}, nil
	}

	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&out); err != nil {
		return nil, []Issue{{Path: "$", Message: err.Error()}}, nil
	}

	var issues []Issue
	if err := s.validate.Struct(&out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, nil, eris.Wrap(err, "structured: validate struct")
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{Path: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
		}
	}
	if len(issues) == 0 && s.check != nil {
		issues = s.check(&out)
	}
	if len(issues) > 0 {
		return nil, issues, nil
	}
	return &out, nil, nil
}

// allowExtraProperties relaxes the inferred schema so unknown keys from the
// oracle are ignored rather than rejected.
func allowExtraProperties(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if ap := s.AdditionalProperties; ap != nil && ap.Not != nil && ap.Type == "" && len(ap.Types) == 0 {
		s.AdditionalProperties = nil
	}
	for _, p := range s.Properties {
		allowExtraProperties(p)
	}
	allowExtraProperties(s.Items)
	allowExtraProperties(s.AdditionalProperties)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must have at least %s (got %v)", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must have at most %s (got %v)", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "datetime":
		return fmt.Sprintf("must match layout %s, got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q (%s), got %v", fe.Tag(), fe.Param(), fe.Value())
	}
}
