package pathways

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/changefilter"
	"github.com/3leaps/gopathways/pkg/fields"
	"github.com/3leaps/gopathways/pkg/grid"
)

// DefaultOptIn is the only PathwaysEnabled value that publishes a program.
const DefaultOptIn = "Yes"

// SkipReason classifies rows the mapper dropped.
type SkipReason string

const (
	SkipInvalidDuration SkipReason = "invalid_duration"
	SkipInvalidDocument SkipReason = "invalid_document"
)

// Output is one mapped program, ready to persist.
type Output struct {
	ID        string
	SourceID  string
	UpdatedAt time.Time
	Type      ProgramType
	Document  *Document
}

// DocumentJSON encodes the document for storage.
func (o Output) DocumentJSON() (json.RawMessage, error) {
	return json.Marshal(o.Document)
}

// Skip records a row the mapper could not convert.
type Skip struct {
	ID     string
	Reason SkipReason
	Err    error
}

// Result is the outcome of Mapper.Map.
type Result struct {
	Outputs []Output
	Skipped []Skip

	// NotEnabled counts rows filtered out by the opt-in flag.
	NotEnabled int
}

// MapperConfig configures a Mapper.
type MapperConfig struct {
	// Country is stamped on every address. Defaults to "US".
	Country string

	// OptIn is the PathwaysEnabled value that selects a row. Defaults to "Yes".
	OptIn string

	// SkipSchemaValidation disables the embedded JSON schema check.
	SkipSchemaValidation bool
}

// Mapper converts filtered rows into Pathways documents.
type Mapper struct {
	cfg MapperConfig
	log *zap.Logger
}

// NewMapper returns a Mapper. A nil logger discards output.
func NewMapper(cfg MapperConfig, log *zap.Logger) *Mapper {
	if cfg.OptIn == "" {
		cfg.OptIn = DefaultOptIn
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mapper{cfg: cfg, log: log}
}

// Map converts rows in order. Rows not opted in are ignored; rows whose
// duration or document is invalid are logged and reported in Result.Skipped.
func (m *Mapper) Map(rows []changefilter.Row) Result {
	var res Result
	for _, row := range rows {
		rec := row.Record
		if rec.Get(grid.FieldPathwaysEnabled) != m.cfg.OptIn {
			res.NotEnabled++
			continue
		}

		out, err := m.mapOne(rec, row.UpdatedAt)
		if err != nil {
			id := rec.Get(grid.FieldRowIdentifier)
			reason := SkipInvalidDocument
			msg := "Skipping row: document construction failed"
			if errors.Is(err, fields.ErrInvalidDuration) {
				reason = SkipInvalidDuration
				msg = "Skipping row: invalid program duration"
			}
			m.log.Warn(msg,
				zap.String("row_id", id),
				zap.String("source", rec.Get(grid.FieldSourceSheetID)),
				zap.Error(err))
			res.Skipped = append(res.Skipped, Skip{ID: id, Reason: reason, Err: err})
			continue
		}
		res.Outputs = append(res.Outputs, out)
	}
	return res
}

func (m *Mapper) mapOne(rec grid.Record, updatedAt time.Time) (Output, error) {
	p, err := NewProgram(rec, updatedAt, ProgramOptions{Country: m.cfg.Country, Logger: m.log})
	if err != nil {
		return Output{}, err
	}

	doc, err := BuildDocument(p)
	if err != nil {
		return Output{}, err
	}
	if !m.cfg.SkipSchemaValidation {
		if err := ValidateDocument(doc); err != nil {
			return Output{}, fmt.Errorf("validate %s: %w", p.ID, err)
		}
	}

	return Output{ID: p.ID, SourceID: p.SourceID, UpdatedAt: p.UpdatedAt, Type: p.Type, Document: doc}, nil
}
