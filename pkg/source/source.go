// Package source fetches raw intake grids.
//
// A Ref names one sheet. SheetsSource reads it through the Google Sheets
// API; FileSource reads a local CSV or JSON export with the same shape.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/gopathways/pkg/grid"
)

// ErrNotFound is returned when the referenced sheet does not exist.
var ErrNotFound = errors.New("source not found")

// Kind selects the Source that serves a Ref.
type Kind string

const (
	KindSheets Kind = "sheets"
	KindFile   Kind = "file"
)

// Ref identifies one grid.
type Ref struct {
	// Name is the human label used in logs and as the default source id.
	Name string

	// Kind defaults to KindSheets.
	Kind Kind

	// ID is the spreadsheet id (Sheets) or file path (File).
	ID string

	// Range is an A1 range. Empty uses the source default.
	Range string
}

// SourceID is the identifier persisted alongside programs from this ref.
func (r Ref) SourceID() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Name)
}

func (r Ref) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Source fetches a grid. Row 0 is the header row.
type Source interface {
	FetchGrid(ctx context.Context, ref Ref) (grid.Grid, error)
}

// Router dispatches refs to a Source by Kind.
type Router struct {
	Sheets Source
	Files  Source
}

// FetchGrid implements Source.
func (r Router) FetchGrid(ctx context.Context, ref Ref) (grid.Grid, error) {
	var src Source
	switch ref.Kind {
	case KindFile:
		src = r.Files
	case KindSheets, "":
		src = r.Sheets
	default:
		return nil, fmt.Errorf("unknown source kind %q", ref.Kind)
	}
	if src == nil {
		return nil, fmt.Errorf("no %s source configured for %s", ref.Kind, ref)
	}
	return src.FetchGrid(ctx, ref)
}

// Fetched is the outcome of fetching one ref.
type Fetched struct {
	Ref  Ref
	Grid grid.Grid
}

// FetchAll fetches refs concurrently with at most concurrency requests in
// flight and returns the grids in ref order. The first error cancels the
// remaining fetches.
func FetchAll(ctx context.Context, src Source, refs []Ref, concurrency int, log *zap.Logger) ([]Fetched, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if src == nil {
		return nil, errors.New("source is nil")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	out := make([]Fetched, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ref := range refs {
		g.Go(func() error {
			grd, err := src.FetchGrid(gctx, ref)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref, err)
			}
			log.Debug("Fetched grid",
				zap.String("source", ref.String()),
				zap.Int("rows", len(grd)))
			out[i] = Fetched{Ref: ref, Grid: grd}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
