package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/oracle"
	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string             `json:"error"`
	Code   string             `json:"code"`
	Issues []structured.Issue `json:"issues,omitempty"`
}

// statusFor maps a domain error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, structured.ErrInvalidModelOutput):
		return http.StatusServiceUnavailable, "invalid_model_output"
	case errors.Is(err, structured.ErrSchemaValidationFailed):
		return http.StatusServiceUnavailable, "schema_validation_failed"
	case errors.Is(err, oracle.ErrUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, patch.ErrTargetNotFound):
		return http.StatusNotFound, "target_not_found"
	case errors.Is(err, patch.ErrInvalidSelection):
		return http.StatusUnprocessableEntity, "invalid_selection"
	case errors.Is(err, patch.ErrOperationDataMissing):
		return http.StatusUnprocessableEntity, "operation_data_missing"
	case errors.Is(err, patch.ErrEmptyText):
		return http.StatusUnprocessableEntity, "empty_text"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: code}
	if ge, ok := structured.IsGenerationError(err); ok {
		body.Issues = ge.Issues()
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("http: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeStatus(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationIssues converts validator errors into request issues.
func validationIssues(err error) []structured.Issue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []structured.Issue{{Path: "$", Message: err.Error()}}
	}
	issues := make([]structured.Issue, 0, len(verrs))
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		issues = append(issues, structured.Issue{Path: fe.Field(), Message: msg})
	}
	return issues
}
