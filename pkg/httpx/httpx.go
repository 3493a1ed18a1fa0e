// Package httpx holds the JSON request and response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/pkg/log"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	Retryable bool     `json:"retryable"`
	Details   []string `json:"details,omitempty"`
}

// ErrBadRequest marks malformed request bodies.
var ErrBadRequest = apperr.New(apperr.ErrValidation, "invalid request")

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response: %v", err)
	}
}

// WriteError maps err onto a status code and a JSON body telling the client
// whether to retry, fix the request or give up.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, apperr.ErrUnavailable) {
		log.Error("Request failed: %v", err)
	}
	WriteJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Kind:      apperr.KindName(err),
		Retryable: apperr.Retryable(err),
		Details:   apperr.Details(err),
	})
}

// Decode reads a JSON body into v and runs its validate tags. An empty body
// leaves v at its zero value.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrBadRequest.WithDetails([]string{fmt.Sprintf("malformed JSON: %v", err)})
	}
	if err := validate.Struct(v); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			details := make([]string, 0, len(validationErrs))
			for _, e := range validationErrs {
				details = append(details, fmt.Sprintf("field '%s' failed validation: %s", fieldName(e.Namespace()), e.Tag()))
			}
			return ErrBadRequest.WithDetails(details)
		}
		return ErrBadRequest.WithDetails([]string{err.Error()})
	}
	return nil
}

func fieldName(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
