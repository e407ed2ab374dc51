// Package feed assembles persisted Pathways documents into a schema.org
// DataFeed and publishes it to a file, S3 or GCS.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/3leaps/gopathways/pkg/programstore"
)

// DefaultPageSize is the number of programs read per store query.
const DefaultPageSize = 500

// Lister pages through persisted programs.
type Lister interface {
	ListPrograms(ctx context.Context, params programstore.ListParams) ([]programstore.ProgramRow, error)
}

// Options configures Build.
type Options struct {
	Name        string
	Description string

	// SourceID restricts the feed to one source. Empty includes all.
	SourceID string

	PageSize int

	// Now stamps dateModified for an empty feed. Defaults to time.Now.
	Now func() time.Time
}

// DataFeed is a schema.org DataFeed whose elements are Pathways program
// documents.
type DataFeed struct {
	Context      string            `json:"@context"`
	Type         string            `json:"@type"`
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	DateModified string            `json:"dateModified"`
	Elements     []json.RawMessage `json:"dataFeedElement"`
}

// Len returns the number of programs in the feed.
func (f *DataFeed) Len() int { return len(f.Elements) }

// Build reads every program from l, newest first, and wraps the stored
// documents in a DataFeed. dateModified is the newest program update.
func Build(ctx context.Context, l Lister, opts Options) (*DataFeed, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l == nil {
		return nil, errors.New("feed: lister is nil")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	f := &DataFeed{
		Context:     "https://schema.org/",
		Type:        "DataFeed",
		Name:        opts.Name,
		Description: opts.Description,
		Elements:    []json.RawMessage{},
	}

	var newest time.Time
	for offset := 0; ; offset += pageSize {
		rows, err := l.ListPrograms(ctx, programstore.ListParams{
			SourceID: opts.SourceID,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list programs at offset %d: %w", offset, err)
		}
		for _, row := range rows {
			if !json.Valid(row.Document) {
				return nil, fmt.Errorf("program %s: stored document is not valid JSON", row.ID)
			}
			f.Elements = append(f.Elements, row.Document)
			if row.UpdatedAt.After(newest) {
				newest = row.UpdatedAt
			}
		}
		if len(rows) < pageSize {
			break
		}
	}

	if newest.IsZero() {
		newest = now()
	}
	f.DateModified = newest.UTC().Format(time.RFC3339)
	return f, nil
}

// Encode writes the feed as indented JSON.
func (f *DataFeed) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(f)
}
