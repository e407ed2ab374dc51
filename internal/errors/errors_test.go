package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "not found",
			err:        NewNotFound("program abc not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
			wantMsg:    "program abc not found",
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("handler: %w", NewBadRequest("limit must be positive")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeBadRequest,
			wantMsg:    "limit must be positive",
		},
		{
			name:       "plain error is hidden",
			err:        stderrors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
			wantMsg:    "internal server error",
		},
		{
			name:       "external service",
			err:        NewExternalServiceError("store unreachable"),
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeExternalService,
			wantMsg:    "store unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/programs", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
		})
	}
}

func TestRespondWithErrorIncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/programs/x", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewNotFound("missing").WithDetails(map[string]any{"id": "x"}))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.Equal(t, "x", body.Error.Details["id"])
}

func TestWrapInternal(t *testing.T) {
	cause := stderrors.New("disk full")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")

	err := WrapInternal(ctx, cause, "cannot write feed")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cannot write feed: disk full", err.Error())
	assert.Equal(t, "req-1", err.Details["request_id"])

	assert.Nil(t, WrapInternal(context.Background(), cause, "x").Details)
}
