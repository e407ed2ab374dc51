// Package provider abstracts the object stores the DataFeed is published to.
//
// Providers only write and read whole objects. Authentication uses SDK
// default credential chains (AWS default config, GCP ADC); providers do not
// implement custom auth logic.
package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Provider writes and reads whole objects.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// PutObject creates or replaces key. contentLength may be -1 when unknown.
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error

	// GetObject opens key for reading. The caller closes the body.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderType identifies the storage backend.
type ProviderType string

const (
	// ProviderS3 is AWS S3 or an S3-compatible store.
	ProviderS3 ProviderType = "s3"

	// ProviderGCS is Google Cloud Storage.
	ProviderGCS ProviderType = "gcs"

	// ProviderFile is the local filesystem.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// Location is a parsed destination URI.
type Location struct {
	Provider ProviderType

	// Bucket is empty for ProviderFile.
	Bucket string

	// Key is the object key, or the filesystem path for ProviderFile.
	Key string
}

// ParseLocation parses s3://bucket/key, gs://bucket/key, file:<path> or a
// bare filesystem path.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("empty destination")
	}

	for prefix, typ := range map[string]ProviderType{"s3://": ProviderS3, "gs://": ProviderGCS} {
		if !strings.HasPrefix(uri, prefix) {
			continue
		}
		rest := strings.TrimPrefix(uri, prefix)
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("%s: bucket is required", uri)
		}
		if key == "" || strings.HasSuffix(key, "/") {
			return Location{}, fmt.Errorf("%s: object key is required", uri)
		}
		return Location{Provider: typ, Bucket: bucket, Key: key}, nil
	}

	if strings.Contains(uri, "://") {
		return Location{}, fmt.Errorf("unsupported destination scheme: %s", uri)
	}

	path := strings.TrimPrefix(uri, "file:")
	if path == "" {
		return Location{}, fmt.Errorf("%s: path is required", uri)
	}
	return Location{Provider: ProviderFile, Key: path}, nil
}

// String renders the location as a URI.
func (l Location) String() string {
	switch l.Provider {
	case ProviderS3:
		return "s3://" + l.Bucket + "/" + l.Key
	case ProviderGCS:
		return "gs://" + l.Bucket + "/" + l.Key
	default:
		return "file:" + l.Key
	}
}
