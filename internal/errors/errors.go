// Package errors defines application errors that carry a stable code and an
// HTTP status, and writes them as JSON error responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Error codes shared by the CLI and the feed server.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is an error with a code, a client-safe message and a status.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails returns a copy of e with details attached.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func NewBadRequest(msg string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: msg, Status: http.StatusBadRequest}
}

func NewNotFound(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Message: msg, Status: http.StatusNotFound}
}

func NewMethodNotAllowed(msg string) *AppError {
	return &AppError{Code: CodeMethodNotAllowed, Message: msg, Status: http.StatusMethodNotAllowed}
}

func NewServiceUnavailable(msg string) *AppError {
	return &AppError{Code: CodeServiceUnavailable, Message: msg, Status: http.StatusServiceUnavailable}
}

// NewExternalServiceError reports a dependency (Sheets, the store, an object
// store) that could not be reached.
func NewExternalServiceError(msg string) *AppError {
	return &AppError{Code: CodeExternalService, Message: msg, Status: http.StatusBadGateway}
}

// WrapInternal wraps err as an internal error. The request id in ctx, if
// any, is kept in the details.
func WrapInternal(ctx context.Context, err error, msg string) *AppError {
	e := &AppError{Code: CodeInternal, Message: msg, Status: http.StatusInternalServerError, Err: err}
	if ctx != nil {
		if id := middleware.GetReqID(ctx); id != "" {
			e.Details = map[string]any{"request_id": id}
		}
	}
	return e
}

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError writes err as JSON. Errors that are not *AppError are
// reported as INTERNAL_ERROR without exposing their text.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = &AppError{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
	}

	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := HTTPErrorResponse{Error: HTTPError{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}}
	if r != nil {
		body.Error.RequestID = middleware.GetReqID(r.Context())
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
