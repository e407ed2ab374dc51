// Package file implements provider.Provider on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gopathways/pkg/provider"
)

// Provider stores objects as files. Keys are paths relative to BaseDir;
// absolute keys are used as-is.
type Provider struct {
	baseDir string
}

var _ provider.Provider = (*Provider)(nil)

type Config struct {
	BaseDir string
}

// New returns a Provider rooted at cfg.BaseDir (the working directory when
// empty).
func New(cfg Config) *Provider {
	base := strings.TrimSpace(cfg.BaseDir)
	if base == "" {
		base = "."
	}
	return &Provider{baseDir: filepath.Clean(base)}
}

func (p *Provider) Close() error { return nil }

func (p *Provider) path(key string) string {
	if filepath.IsAbs(key) {
		return filepath.Clean(key)
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(key))
}

// PutObject writes body to a temp file beside the target and renames it into
// place, so readers never observe a partial feed.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := p.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return p.wrapError("PutObject", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return p.wrapError("PutObject", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.path(key))
	if err != nil {
		return nil, p.wrapError("GetObject", key, err)
	}
	return f, nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrAccessDenied, err)
	}
	return wrapped
}
