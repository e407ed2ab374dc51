package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/gopathways/internal/observability"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name      string
		panicWith any
		requestID string
		wantMsg   string
	}{
		{name: "string panic", panicWith: "feed encoder blew up", wantMsg: "panic: feed encoder blew up"},
		{name: "error panic", panicWith: assert.AnError, wantMsg: "panic: " + assert.AnError.Error()},
		{name: "keeps request id", panicWith: "boom", requestID: "req-feed-9", wantMsg: "panic: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequestID(Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.panicWith)
			})))

			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tt.requestID != "" {
				req.Header.Set(RequestIDHeader, tt.requestID)
			}
			rec := httptest.NewRecorder()
			require.NotPanics(t, func() { h.ServeHTTP(rec, req) })

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "INTERNAL_ERROR", body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, body.RequestID)
			} else {
				assert.NotEmpty(t, body.RequestID)
			}
		})
	}
}

func TestRecovery_LogsPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	prev := observability.CLILogger
	observability.SetCLILogger(zap.New(core))
	t.Cleanup(func() { observability.SetCLILogger(prev) })

	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("store gone") }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/programs/p-1", nil))

	entries := logs.FilterMessage("Recovered handler panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/programs/p-1", entries[0].ContextMap()["path"])
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))
	})
}

func TestRecovery_PassesThrough(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"@type":"DataFeed"}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"@type":"DataFeed"}`, rec.Body.String())
}

func TestWriteEnvelope(t *testing.T) {
	withContext, err := errors.NewErrorEnvelope("INVALID_ROW", "row rejected").
		WithContext(map[string]interface{}{"row_id": "p-7", "column": "Program Name"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		env         *errors.ErrorEnvelope
		status      int
		requestID   string
		wantCode    string
		wantMsg     string
		wantReqID   string
		wantDetails map[string]any
	}{
		{
			name:     "nil envelope uses status text",
			status:   http.StatusBadGateway,
			wantCode: "INTERNAL_ERROR",
			wantMsg:  "Bad Gateway",
		},
		{
			name:     "envelope code and message",
			env:      errors.NewErrorEnvelope("NOT_FOUND", "program not found"),
			status:   http.StatusNotFound,
			wantCode: "NOT_FOUND",
			wantMsg:  "program not found",
		},
		{
			name:      "explicit request id wins",
			env:       errors.NewErrorEnvelope("NOT_FOUND", "run not found").WithCorrelationID("corr-3"),
			status:    http.StatusNotFound,
			requestID: "req-1",
			wantCode:  "NOT_FOUND",
			wantMsg:   "run not found",
			wantReqID: "req-1",
		},
		{
			name:        "context becomes details",
			env:         withContext,
			status:      http.StatusUnprocessableEntity,
			wantCode:    "INVALID_ROW",
			wantMsg:     "row rejected",
			wantDetails: map[string]any{"row_id": "p-7", "column": "Program Name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeEnvelope(rec, tt.env, tt.status, tt.requestID)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
			if tt.wantReqID != "" || tt.env == nil {
				assert.Equal(t, tt.wantReqID, body.RequestID)
			}
			for k, v := range tt.wantDetails {
				assert.Equal(t, v, body.Details[k], k)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("keeps client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/programs", nil)
		req.Header.Set(RequestIDHeader, "client-7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "client-7", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "client-7", seen)
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/programs", nil))
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestID(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("{}"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/programs", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))

	ok := logs.FilterMessage("HTTP request").All()
	require.Len(t, ok, 1)
	assert.Equal(t, zapcore.DebugLevel, ok[0].Level)
	assert.EqualValues(t, http.StatusOK, ok[0].ContextMap()["status"])

	failed := logs.FilterMessage("HTTP request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.NotEmpty(t, failed[0].ContextMap()["request_id"])
}
