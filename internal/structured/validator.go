// Package structured turns free-form oracle completions into typed values.
// Every completion is checked against a schema; one repair round is allowed
// before the generation fails.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/oracle"
)

// maxAttempts caps oracle calls per generation: the original prompt plus a
// single repair.
const maxAttempts = 2

// Request is one structured generation.
type Request struct {
	System  string
	User    string
	Purpose string
}

// Result is a validated generation.
type Result[T any] struct {
	Value    *T
	JSON     json.RawMessage
	Attempts []Attempt
}

// Validator runs generations through a shared oracle gateway.
type Validator struct {
	gateway oracle.Gateway
}

// NewValidator creates a Validator on top of gw.
func NewValidator(gw oracle.Gateway) *Validator {
	return &Validator{gateway: gw}
}

// Generate asks the oracle for a T. Gateway failures are returned as-is;
// output that cannot be validated after the repair round is reported as a
// *GenerationError.
func Generate[T any](ctx context.Context, v *Validator, req Request, schema *Schema[T]) (*Result[T], error) {
	log := zap.L().With(zap.String("schema", schema.Name()), zap.String("purpose", req.Purpose))
	if req.Purpose != "" {
		ctx = oracle.WithPurpose(ctx, req.Purpose)
	}

	var attempts []Attempt
	user := req.User
	for i := 0; i < maxAttempts; i++ {
		text, err := v.gateway.Complete(ctx, req.System, user)
		if err != nil {
			return nil, err
		}

		raw := ExtractJSON(text)
		value, issues, parseErr := schema.Validate(raw)
		attempt := Attempt{Raw: raw, Issues: issues}
		if parseErr != nil {
			attempt.ParseError = parseErr.Error()
		}
		attempts = append(attempts, attempt)

		if !attempt.failed() {
			if i > 0 {
				log.Info("structured: repaired oracle output", zap.Int("attempt", i+1))
			}
			return &Result[T]{Value: value, JSON: json.RawMessage(raw), Attempts: attempts}, nil
		}

		log.Warn("structured: oracle output rejected",
			zap.Int("attempt", i+1),
			zap.String("parse_error", attempt.ParseError),
			zap.Int("issues", len(issues)),
		)
		user = repairPrompt(req.User, attempt, schema.Document())
	}

	last := attempts[len(attempts)-1]
	kind := ErrSchemaValidationFailed
	if last.ParseError != "" {
		kind = ErrInvalidModelOutput
	}
	return nil, &GenerationError{Kind: kind, Schema: schema.Name(), Attempts: attempts}
}

func repairPrompt(original string, prev Attempt, schemaDoc string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n---\nYour previous response could not be accepted.\n")
	if prev.ParseError != "" {
		fmt.Fprintf(&b, "It was not valid JSON: %s\n", prev.ParseError)
	}
	if len(prev.Issues) > 0 {
		b.WriteString("It failed validation:\n")
		for _, iss := range prev.Issues {
			fmt.Fprintf(&b, "- %s\n", iss)
		}
	}
	b.WriteString("\nPrevious response:\n")
	b.WriteString(prev.Raw)
	b.WriteString("\n\nReturn ONLY a corrected JSON object that conforms to this JSON Schema:\n")
	b.WriteString(schemaDoc)
	return b.String()
}

// IsGenerationError reports whether err is a *GenerationError and returns it.
func IsGenerationError(err error) (*GenerationError, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
