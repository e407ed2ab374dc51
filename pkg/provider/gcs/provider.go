// Package gcs publishes objects to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/3leaps/gopathways/pkg/provider"
)

// Config configures the GCS publisher. Credentials default to Application
// Default Credentials.
type Config struct {
	// Bucket is the GCS bucket name (required).
	Bucket string

	// CredentialsFile is an optional service-account key file.
	CredentialsFile string

	// Endpoint overrides the storage endpoint (emulators such as
	// fake-gcs-server).
	Endpoint string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("gcs config: Bucket: bucket name is required")
	}
	return nil
}

// Provider implements provider.Provider for GCS.
type Provider struct {
	client *storage.Client
	bucket string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a GCS provider. Extra client options are appended after the
// ones derived from cfg.
func New(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderGCS, Bucket: cfg.Bucket, Err: err}
	}
	return &Provider{client: client, bucket: cfg.Bucket}, nil
}

// PutObject streams body into a new object generation. The object becomes
// visible only when the writer closes successfully.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return p.wrapError("PutObject", key, err)
	}
	if err := w.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// GetObject opens an object for reading.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := p.client.Bucket(p.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, p.wrapError("GetObject", key, err)
	}
	return r, nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderGCS,
		Bucket:   p.bucket,
		Key:      key,
		Err:      err,
	}

	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.Is(err, storage.ErrBucketNotExist):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if sentinel := sentinelForStatus(apiErr.Code); sentinel != nil {
			wrapped.Err = fmt.Errorf("%w: %s", sentinel, apiErr.Message)
		}
	}
	return wrapped
}

func sentinelForStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return provider.ErrNotFound
	case http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case http.StatusForbidden:
		return provider.ErrAccessDenied
	case http.StatusTooManyRequests:
		return provider.ErrThrottled
	case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return provider.ErrProviderUnavailable
	}
	return nil
}
