package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/gopathways/internal/errors"
	"github.com/3leaps/gopathways/internal/server/handlers"
	"github.com/3leaps/gopathways/pkg/programstore"
)

func TestServer_ErrorRoutes(t *testing.T) {
	srv := New("127.0.0.1", 0)

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{http.MethodGet, "/does-not-exist", http.StatusNotFound, apperrors.CodeNotFound},
		{http.MethodPost, "/version", http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body.Error.Code)
		})
	}
}

func TestServer_ProgramsAPIMounted(t *testing.T) {
	ctx := context.Background()
	store, err := programstore.Open(ctx, programstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.UpsertProgram(ctx, programstore.ProgramRow{
		ID:        "welding-101",
		SourceID:  "sheet-1",
		UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Document:  json.RawMessage(`{"@type":"EducationalOccupationalProgram","name":"Welding"}`),
	}))

	handlers.InitHealthManager("test").RegisterChecker("store", handlers.HealthCheckerFunc(store.Ping))
	srv := New("127.0.0.1", 0, WithProgramsAPI(&handlers.ProgramsAPI{Store: store, FeedName: "Pathways"}))

	for path, want := range map[string]int{
		"/health/ready":         http.StatusOK,
		"/programs":             http.StatusOK,
		"/programs/welding-101": http.StatusOK,
		"/programs/unknown":     http.StatusNotFound,
		"/feed":                 http.StatusOK,
		"/runs":                 http.StatusOK,
		"/runs/unknown":         http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestServer_HealthRoutes(t *testing.T) {
	handlers.InitHealthManager("test")
	srv := New("127.0.0.1", 8080)
	assert.Equal(t, 8080, srv.Port())

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup", "/version"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_VersionEndpoint(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersion(VersionInfo{Version: "1.4.0", Commit: "abc123", BuildDate: "2026-01-01"}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "1.4.0", got.Version)
	assert.Equal(t, "abc123", got.Commit)
}

func TestServer_OptionalRoutes(t *testing.T) {
	handlers.InitHealthManager("test")

	tests := []struct {
		name string
		opts []Option
		path string
		want int
	}{
		{name: "programs api not mounted", path: "/programs", want: http.StatusNotFound},
		{name: "pprof off by default", path: "/debug/pprof/", want: http.StatusNotFound},
		{name: "pprof enabled", opts: []Option{WithPprof(true)}, path: "/debug/pprof/", want: http.StatusOK},
		{name: "health disabled", opts: []Option{WithHealth(false)}, path: "/health", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", 0, tt.opts...)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	srv := New("127.0.0.1", 0)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestServer_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", New("127.0.0.1", 8080).Addr())
	assert.Equal(t, "[::1]:9000", New("::1", 9000).Addr())
}
