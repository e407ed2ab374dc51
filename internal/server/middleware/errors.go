// Package middleware holds the HTTP middleware shared by every route of the
// feed server.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/observability"
)

// RequestIDHeader is read from requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the JSON body written for recovered failures.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RequestID assigns a request id (keeping the client's X-Request-ID when
// present) and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
	return chimw.RequestID(echo)
}

// Recovery turns a handler panic into a 500 INTERNAL_ERROR response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			reqID := chimw.GetReqID(r.Context())
			observability.CLILogger.Error("Recovered handler panic",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", reqID),
				zap.ByteString("stack", debug.Stack()))

			env := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec))
			if reqID != "" {
				env = env.WithCorrelationID(reqID)
			}
			writeEnvelope(w, env, http.StatusInternalServerError, reqID)
		}()
		next.ServeHTTP(w, r)
	})
}

// writeEnvelope flattens a gofulmen envelope into ErrorResponse. The
// envelope is read through its JSON form so only its wire contract matters.
func writeEnvelope(w http.ResponseWriter, env *errors.ErrorEnvelope, status int, requestID string) {
	body := ErrorResponse{Error: ErrorBody{Code: "INTERNAL_ERROR", Message: http.StatusText(status)}}

	if env != nil {
		var fields map[string]any
		if raw, err := json.Marshal(env); err == nil && json.Unmarshal(raw, &fields) == nil {
			body.Error.Code = stringField(fields, body.Error.Code, "code")
			body.Error.Message = stringField(fields, body.Error.Message, "message")
			if requestID == "" {
				requestID = stringField(fields, "", "correlation_id", "correlationId")
			}
			for _, key := range []string{"context", "details"} {
				if m, ok := fields[key].(map[string]any); ok && len(m) > 0 {
					body.Error.Details = m
					break
				}
			}
		}
	}
	body.Error.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func stringField(fields map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
