package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/provider"
	"github.com/3leaps/gopathways/pkg/provider/file"
	"github.com/3leaps/gopathways/pkg/provider/gcs"
	"github.com/3leaps/gopathways/pkg/provider/s3"
)

// ContentType is the media type of a published feed.
const ContentType = "application/ld+json"

const (
	publishAttempts   = 3
	publishRetryDelay = 500 * time.Millisecond
)

// ErrVerifyMismatch reports a published object that does not read back as
// the uploaded feed.
var ErrVerifyMismatch = errors.New("published feed does not match upload")

// PublishConfig selects and configures the destination store.
type PublishConfig struct {
	// Destination is a local path, file:<path>, s3://bucket/key or
	// gs://bucket/key.
	Destination string

	// S3 settings.
	Region         string
	Endpoint       string
	Profile        string
	ForcePathStyle bool

	// GCS service-account key file. Empty uses ADC.
	CredentialsFile string
}

// Publisher writes feeds to one destination.
type Publisher struct {
	store      provider.Provider
	loc        provider.Location
	log        *zap.Logger
	retryDelay time.Duration
}

// PublishResult describes a completed publish.
type PublishResult struct {
	Location string `json:"location"`
	Programs int    `json:"programs"`
	Bytes    int64  `json:"bytes"`
}

// NewPublisher parses cfg.Destination and opens the matching provider.
func NewPublisher(ctx context.Context, cfg PublishConfig, log *zap.Logger) (*Publisher, error) {
	loc, err := provider.ParseLocation(cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("export destination: %w", err)
	}

	var store provider.Provider
	switch loc.Provider {
	case provider.ProviderS3:
		store, err = s3.New(ctx, s3.Config{
			Bucket:         loc.Bucket,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			Profile:        cfg.Profile,
			ForcePathStyle: cfg.ForcePathStyle,
		})
	case provider.ProviderGCS:
		store, err = gcs.New(ctx, gcs.Config{
			Bucket:          loc.Bucket,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
	default:
		store = file.New(file.Config{})
	}
	if err != nil {
		return nil, err
	}
	return NewPublisherWith(store, loc, log), nil
}

// NewPublisherWith wraps an already-open provider.
func NewPublisherWith(store provider.Provider, loc provider.Location, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{store: store, loc: loc, log: log, retryDelay: publishRetryDelay}
}

// Location returns the destination URI.
func (p *Publisher) Location() string { return p.loc.String() }

// Publish encodes f, replaces the destination object and reads it back to
// confirm the store holds the uploaded bytes.
func (p *Publisher) Publish(ctx context.Context, f *DataFeed) (PublishResult, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return PublishResult{}, fmt.Errorf("encode feed: %w", err)
	}
	size := int64(buf.Len())

	if err := p.put(ctx, buf.Bytes()); err != nil {
		return PublishResult{}, fmt.Errorf("publish feed to %s: %w", p.loc, err)
	}
	if err := p.verify(ctx, buf.Bytes()); err != nil {
		return PublishResult{}, fmt.Errorf("verify feed at %s: %w", p.loc, err)
	}

	res := PublishResult{Location: p.loc.String(), Programs: f.Len(), Bytes: size}
	p.log.Info("Published feed",
		zap.String("location", res.Location),
		zap.Int("programs", res.Programs),
		zap.Int64("bytes", res.Bytes))
	return res, nil
}

// put uploads body, retrying throttled or unavailable stores.
func (p *Publisher) put(ctx context.Context, body []byte) error {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.store.PutObject(ctx, p.loc.Key, bytes.NewReader(body), int64(len(body)), ContentType)
		if err == nil || !provider.IsRetryable(err) || attempt == publishAttempts {
			return err
		}
		p.log.Warn("Feed upload failed, retrying",
			zap.String("location", p.loc.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.retryDelay):
		}
	}
	return err
}

func (p *Publisher) verify(ctx context.Context, want []byte) error {
	rc, err := p.store.GetObject(ctx, p.loc.Key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: uploaded %d bytes, read %d", ErrVerifyMismatch, len(want), len(got))
	}
	return nil
}

// Close releases the underlying provider.
func (p *Publisher) Close() error {
	return p.store.Close()
}
