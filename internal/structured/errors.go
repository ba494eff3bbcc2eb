package structured

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidModelOutput means the oracle's final attempt was not
	// parseable as JSON.
	ErrInvalidModelOutput = eris.New("structured: invalid model output")
	// ErrSchemaValidationFailed means the oracle's final attempt parsed but
	// did not satisfy the schema.
	ErrSchemaValidationFailed = eris.New("structured: schema validation failed")
)

// Issue is one validation problem at a JSON path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Attempt records one oracle round-trip.
type Attempt struct {
	Raw        string  `json:"raw"`
	ParseError string  `json:"parseError,omitempty"`
	Issues     []Issue `json:"issues,omitempty"`
}

func (a Attempt) failed() bool {
	return a.ParseError != "" || len(a.Issues) > 0
}

// GenerationError is returned when both attempts failed. It unwraps to
// ErrInvalidModelOutput or ErrSchemaValidationFailed depending on how the
// final attempt failed.
type GenerationError struct {
	Kind     error
	Schema   string
	Attempts []Attempt
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %d attempts)", e.Kind.Error(), e.Schema, len(e.Attempts))
	if issues := e.Issues(); len(issues) > 0 {
		b.WriteString(": ")
		for i, is := range issues {
			if i > 0 {
				b.WriteString("; ")
			}
			if i == 5 {
				fmt.Fprintf(&b, "and %d more", len(issues)-5)
				break
			}
			b.WriteString(is.String())
		}
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error {
	return e.Kind
}

// Issues returns the final attempt's problems. A parse failure is reported
// as a single issue at the document root.
func (e *GenerationError) Issues() []Issue {
	if len(e.Attempts) == 0 {
		return nil
	}
	last := e.Attempts[len(e.Attempts)-1]
	if last.ParseError != "" {
		return []Issue{{Path: "$", Message: last.ParseError}}
	}
	return last.Issues
}
