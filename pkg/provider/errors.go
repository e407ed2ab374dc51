package provider

import (
	"errors"
	"fmt"
)

// Provider failures are mapped onto these so callers never inspect SDK
// error types.
var (
	ErrNotFound            = errors.New("object not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// ProviderError wraps backend errors with the failing operation.
type ProviderError struct {
	Op       string
	Provider ProviderType
	Bucket   string
	Key      string
	Err      error
}

func (e *ProviderError) Error() string {
	target := e.Bucket
	switch {
	case e.Bucket != "" && e.Key != "":
		target = e.Bucket + "/" + e.Key
	case e.Key != "":
		target = e.Key
	}
	if target == "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, target, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsNotFound reports whether err indicates a missing object or bucket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrBucketNotFound)
}

// IsRetryable reports whether a publish may succeed if attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrProviderUnavailable)
}

// IsAuth reports whether err is a credential or permission failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}
