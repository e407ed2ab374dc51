package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/gopathways/pkg/grid"
)

// FileSource reads grids from local exports. A ref's ID is the file path,
// resolved against Dir when relative. ".json" files hold a [][]string;
// everything else is read as CSV.
type FileSource struct {
	Dir string
}

// FetchGrid reads the file named by ref.ID.
func (f FileSource) FetchGrid(ctx context.Context, ref Ref) (grid.Grid, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	path := strings.TrimSpace(ref.ID)
	if path == "" {
		return nil, errors.New("file path is required")
	}
	if !filepath.IsAbs(path) && f.Dir != "" {
		path = filepath.Join(f.Dir, path)
	}

	file, err := os.Open(path) // #nosec G304 -- path comes from the job manifest
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return decodeJSONGrid(file)
	}
	return decodeCSVGrid(file)
}

func decodeJSONGrid(r io.Reader) (grid.Grid, error) {
	var g grid.Grid
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode json grid: %w", err)
	}
	return g, nil
}

func decodeCSVGrid(r io.Reader) (grid.Grid, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var g grid.Grid
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv grid: %w", err)
		}
		g = append(g, trimTrailingEmpty(rec))
	}
	return g, nil
}

// trimTrailingEmpty matches the Sheets API, which omits trailing blank cells.
func trimTrailingEmpty(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}
