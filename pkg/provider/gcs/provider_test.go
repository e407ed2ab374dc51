package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/3leaps/gopathways/pkg/provider"
)

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Bucket: "  "}.Validate())
	assert.NoError(t, Config{Bucket: "feeds"}.Validate())
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestNewWithoutAuthentication(t *testing.T) {
	p, err := New(context.Background(), Config{Bucket: "feeds", Endpoint: "http://127.0.0.1:4443/storage/v1/"},
		option.WithoutAuthentication())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestWrapError(t *testing.T) {
	p := &Provider{bucket: "feeds"}

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"object missing", storage.ErrObjectNotExist, provider.ErrNotFound},
		{"bucket missing", fmt.Errorf("writer: %w", storage.ErrBucketNotExist), provider.ErrBucketNotFound},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "no"}, provider.ErrAccessDenied},
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, provider.ErrInvalidCredentials},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, provider.ErrThrottled},
		{"backend error", &googleapi.Error{Code: http.StatusServiceUnavailable}, provider.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.wrapError("PutObject", "pathways.json", tt.err)
			assert.True(t, errors.Is(err, tt.expected), err.Error())

			var pe *provider.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, provider.ProviderGCS, pe.Provider)
			assert.Equal(t, "feeds", pe.Bucket)
		})
	}

	t.Run("unmapped error kept", func(t *testing.T) {
		orig := errors.New("connection reset")
		assert.True(t, errors.Is(p.wrapError("GetObject", "k", orig), orig))
	})
}
