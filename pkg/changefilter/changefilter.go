// Package changefilter selects rows modified since the last successful load.
//
// The watermark is the newest updated_at already persisted. Rows whose
// LastUpdated timestamp is strictly after the watermark are kept; when the
// store holds no rows every row is kept, including rows whose timestamp does
// not parse.
package changefilter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/grid"
)

// Default timestamp layouts, tried in order.
const (
	PrimaryLayout  = "1/2/2006 15:04:05"
	FallbackLayout = "2006-01-02 15:04:05"
)

// ErrMalformedTimestamp is returned by ParseTimestamp when no layout matches.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// WatermarkSource reports the newest persisted timestamp for a source. An
// empty sourceID means every persisted row. A nil time with a nil error means
// nothing has been persisted yet.
type WatermarkSource interface {
	MaxUpdatedAt(ctx context.Context, sourceID string) (*time.Time, error)
}

// Options configures Filter.
type Options struct {
	// SourceID scopes the watermark. Empty means global.
	SourceID string

	// Field holds the row timestamp. Defaults to grid.FieldLastUpdated.
	Field string

	// Layouts are tried in order. Defaults to PrimaryLayout, FallbackLayout.
	Layouts []string

	// Location interprets timestamps without a zone. Defaults to UTC.
	Location *time.Location

	// RunStart stamps rows kept on a first run despite a malformed
	// timestamp. Defaults to the current time.
	RunStart time.Time

	Logger *zap.Logger
}

// Row is a record that passed the filter together with its parsed timestamp.
type Row struct {
	Record    grid.Record
	UpdatedAt time.Time
}

// Malformed describes a row whose timestamp did not parse. Kept is set on a
// first run, where the row passes with UpdatedAt set to the run start.
type Malformed struct {
	Index int
	ID    string
	Value string
	Kept  bool
}

// Result is the outcome of Filter.
type Result struct {
	Rows      []Row
	Malformed []Malformed

	// Watermark is nil on a first run.
	Watermark *time.Time
}

// Filter returns the rows of t newer than the watermark for opts.SourceID.
// Input order is preserved. Every row's timestamp is parsed, including on a
// first run, so the loader can persist it.
func Filter(ctx context.Context, t grid.Table, ws WatermarkSource, opts Options) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ws == nil {
		return Result{}, errors.New("watermark source is nil")
	}
	opts = withDefaults(opts)

	watermark, err := ws.MaxUpdatedAt(ctx, opts.SourceID)
	if err != nil {
		return Result{}, fmt.Errorf("read watermark: %w", err)
	}

	res := Result{Watermark: watermark, Rows: make([]Row, 0, len(t))}
	for i, rec := range t {
		raw := rec.Get(opts.Field)
		ts, err := ParseTimestamp(raw, opts.Location, opts.Layouts...)
		if err != nil {
			id := rec.Get(grid.FieldRowIdentifier)
			kept := watermark == nil
			res.Malformed = append(res.Malformed, Malformed{Index: i, ID: id, Value: raw, Kept: kept})
			if kept {
				opts.Logger.Warn("Keeping first-run row with malformed timestamp",
					zap.Int("index", i),
					zap.String("row_id", id),
					zap.String("value", raw),
					zap.Time("stamped", opts.RunStart))
				res.Rows = append(res.Rows, Row{Record: rec, UpdatedAt: opts.RunStart})
				continue
			}
			opts.Logger.Warn("Skipping row with malformed timestamp",
				zap.Int("index", i),
				zap.String("row_id", id),
				zap.String("value", raw))
			continue
		}
		if watermark != nil && !ts.After(*watermark) {
			continue
		}
		res.Rows = append(res.Rows, Row{Record: rec, UpdatedAt: ts})
	}

	opts.Logger.Debug("Change filter applied",
		zap.String("source", opts.SourceID),
		zap.Bool("first_run", watermark == nil),
		zap.Int("input", len(t)),
		zap.Int("kept", len(res.Rows)),
		zap.Int("malformed", len(res.Malformed)))

	return res, nil
}

// ParseTimestamp parses s with each layout in turn. With no layouts the
// defaults are used. A nil loc means UTC.
func ParseTimestamp(s string, loc *time.Location, layouts ...string) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(layouts) == 0 {
		layouts = []string{PrimaryLayout, FallbackLayout}
	}
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTimestamp)
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, v, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

func withDefaults(opts Options) Options {
	if opts.Field == "" {
		opts.Field = grid.FieldLastUpdated
	}
	if len(opts.Layouts) == 0 {
		opts.Layouts = []string{PrimaryLayout, FallbackLayout}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RunStart.IsZero() {
		opts.RunStart = time.Now()
	}
	opts.RunStart = opts.RunStart.UTC().Truncate(time.Second)
	return opts
}
