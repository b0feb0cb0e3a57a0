// Package response holds the JSON error envelope shared by the HTTP handlers
// and middleware.
package response

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

const StatusError = "error"

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status:  StatusError,
		Message: msg,
	}
}

var (
	EmptyRequestBody   = Error("empty request body")
	InvalidRequestBody = Error("invalid request body")
	ServerError        = Error("server error occurred")
)

// Validation builds a "validation error" response with one entry per failed field.
func Validation(err error) ErrorResponse {
	resp := Error("validation error")
	resp.Errors = validationErrors(err)
	return resp
}

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "url", "http_url":
		return "invalid url"
	case "shortcode":
		return "code must be 6-8 letters or digits and not a reserved name"
	default:
		return "invalid value"
	}
}

func validationErrors(err error) []ValidationError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}

	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ValidationError{
			Field:   e.Field(),
			Message: messageForTag(e.Tag()),
		})
	}

	return out
}
