// Package pipeline runs one sheet through normalize, transform, change
// filter, map, load and reconcile.
//
// Transform and load are sequential within a run. RunAll fetches several
// sheets concurrently and then processes them one at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/changefilter"
	"github.com/3leaps/gopathways/pkg/fields"
	"github.com/3leaps/gopathways/pkg/grid"
	"github.com/3leaps/gopathways/pkg/loader"
	"github.com/3leaps/gopathways/pkg/output"
	"github.com/3leaps/gopathways/pkg/pathways"
	"github.com/3leaps/gopathways/pkg/programstore"
	"github.com/3leaps/gopathways/pkg/reconcile"
	"github.com/3leaps/gopathways/pkg/source"
)

// Store is everything a run reads from and writes to.
type Store interface {
	changefilter.WatermarkSource
	reconcile.Store
	loader.Store
}

// RunRecorder persists run provenance. *programstore.Store implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, sourceID string) (*programstore.IngestRun, error)
	FinishRun(ctx context.Context, runID string, status programstore.RunStatus, counts programstore.RunCounts) error
	RecordRunEvent(ctx context.Context, event programstore.RunEvent) error
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	HeaderMap grid.HeaderMap
	Sentinel  string
	Country   string
	OptIn     string

	// GlobalScope compares against every persisted row instead of the rows
	// of the current source, for both the watermark and reconciliation.
	GlobalScope bool

	Location         *time.Location
	TimestampLayouts []string

	Relation  string
	UniqueKey string
	Policy    loader.ErrorPolicy

	RemoveDeleted  bool
	RemoveOptedOut bool

	SkipSchemaValidation bool

	// DryRun maps rows and emits records without writing to the store.
	DryRun bool
}

// Result summarizes one run.
type Result struct {
	RunID    string
	SourceID string
	Status   programstore.RunStatus

	RowsSeen    int
	RowsChanged int
	Malformed   int
	Restamped   int
	NotEnabled  int
	Skipped     int
	Upserted    int
	Failed      int

	Deleted  []string
	OptedOut []string

	Watermark *time.Time
	Outputs   []pathways.Output
	Duration  time.Duration
}

// Counts converts the result to persisted run counts.
func (r Result) Counts() programstore.RunCounts {
	return programstore.RunCounts{
		Seen:     r.RowsSeen,
		Upserted: r.Upserted,
		Skipped:  r.Skipped + r.Malformed + r.Failed,
		Deleted:  len(r.Deleted) + len(r.OptedOut),
	}
}

// Pipeline processes sheets against one store.
type Pipeline struct {
	store Store
	runs  RunRecorder
	out   output.Writer
	opts  Options
	log   *zap.Logger
}

// New returns a Pipeline writing to store.
func New(store Store, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.HeaderMap == nil {
		opts.HeaderMap = grid.DefaultHeaderMap()
	}
	if opts.Sentinel == "" {
		opts.Sentinel = fields.DefaultSentinel
	}
	if opts.OptIn == "" {
		opts.OptIn = pathways.DefaultOptIn
	}
	if opts.Relation == "" {
		opts.Relation = programstore.DefaultTable
	}
	if opts.UniqueKey == "" {
		opts.UniqueKey = programstore.ColumnID
	}
	if opts.Policy == "" {
		opts.Policy = loader.PolicyTyped
	}
	return &Pipeline{store: store, out: output.Discard, opts: opts, log: log}
}

// WithRunRecorder enables run provenance.
func (p *Pipeline) WithRunRecorder(r RunRecorder) *Pipeline {
	p.runs = r
	return p
}

// WithOutput emits JSONL run records to w.
func (p *Pipeline) WithOutput(w output.Writer) *Pipeline {
	if w != nil {
		p.out = w
	}
	return p
}

// RunAll fetches refs with at most concurrency requests in flight, then
// runs each grid in ref order. It stops at the first failed run and returns
// the results gathered so far.
func (p *Pipeline) RunAll(ctx context.Context, src source.Source, refs []source.Ref, concurrency int) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	fetched, err := source.FetchAll(ctx, src, refs, concurrency, p.log)
	if err != nil {
		_ = p.out.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeSource, Message: err.Error()})
		return nil, err
	}

	results := make([]Result, 0, len(fetched))
	for _, f := range fetched {
		res, err := p.Run(ctx, f.Ref, f.Grid)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("run %s: %w", f.Ref, err)
		}
	}
	return results, nil
}

// Run processes one fetched grid.
func (p *Pipeline) Run(ctx context.Context, ref source.Ref, g grid.Grid) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.store == nil {
		return Result{}, errors.New("pipeline store is nil")
	}

	start := time.Now()
	res := Result{SourceID: ref.SourceID(), Status: programstore.RunStatusRunning}
	log := p.log.With(zap.String("source", ref.String()))

	if err := p.startRun(ctx, &res); err != nil {
		return res, err
	}
	log = log.With(zap.String("run_id", res.RunID))
	out := p.runOutput(res.RunID, res.SourceID)

	err := p.process(ctx, &res, g, out, log)
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		res.Status = programstore.RunStatusFailed
		_ = out.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeStore, Message: err.Error()})
	case res.Skipped+res.Malformed+res.Failed > 0:
		res.Status = programstore.RunStatusPartial
	default:
		res.Status = programstore.RunStatusSuccess
	}

	p.finishRun(ctx, res, log)
	_ = out.WriteSummary(ctx, summaryRecord(res, p.opts.DryRun))

	log.Info("Run finished",
		zap.String("status", string(res.Status)),
		zap.Int("rows_seen", res.RowsSeen),
		zap.Int("rows_changed", res.RowsChanged),
		zap.Int("upserted", res.Upserted),
		zap.Int("skipped", res.Skipped+res.Malformed),
		zap.Int("restamped", res.Restamped),
		zap.Int("failed", res.Failed),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("opted_out", len(res.OptedOut)),
		zap.Duration("duration", res.Duration))

	return res, err
}

// Prune applies only the reconcile step to a fetched grid: programs missing
// from the sheet or no longer opted in are removed, nothing is upserted.
func (p *Pipeline) Prune(ctx context.Context, ref source.Ref, g grid.Grid) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.store == nil {
		return Result{}, errors.New("pipeline store is nil")
	}

	start := time.Now()
	res := Result{SourceID: ref.SourceID(), Status: programstore.RunStatusRunning}
	log := p.log.With(zap.String("source", ref.String()))
	if err := p.startRun(ctx, &res); err != nil {
		return res, err
	}
	out := p.runOutput(res.RunID, res.SourceID)

	table := grid.AddColumn(grid.Normalize(g, p.opts.HeaderMap), grid.FieldSourceSheetID, res.SourceID)
	res.RowsSeen = len(table)
	scope := res.SourceID
	if p.opts.GlobalScope {
		scope = ""
	}

	var err error
	if !p.opts.DryRun {
		err = p.reconcile(ctx, &res, table, scope, out, log)
	}
	res.Duration = time.Since(start)
	res.Status = programstore.RunStatusSuccess
	if err != nil {
		res.Status = programstore.RunStatusFailed
		_ = out.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeStore, Message: err.Error()})
	}
	p.finishRun(ctx, res, log)
	_ = out.WriteSummary(ctx, summaryRecord(res, p.opts.DryRun))
	return res, err
}

func (p *Pipeline) process(ctx context.Context, res *Result, g grid.Grid, out output.Writer, log *zap.Logger) error {
	table := grid.Normalize(g, p.opts.HeaderMap)
	table = grid.AddColumn(table, grid.FieldSourceSheetID, res.SourceID)
	table = fields.NewTransformer(p.opts.Sentinel).Apply(table)
	res.RowsSeen = len(table)

	scope := res.SourceID
	if p.opts.GlobalScope {
		scope = ""
	}

	filtered, err := changefilter.Filter(ctx, table, p.store, changefilter.Options{
		SourceID: scope,
		Layouts:  p.opts.TimestampLayouts,
		Location: p.opts.Location,
		RunStart: time.Now(),
		Logger:   log,
	})
	if err != nil {
		return err
	}
	res.Watermark = filtered.Watermark
	res.RowsChanged = len(filtered.Rows)
	for _, m := range filtered.Malformed {
		if m.Kept {
			res.Restamped++
			continue
		}
		res.Malformed++
		idx := m.Index
		_ = out.WriteSkip(ctx, &output.SkipRecord{
			RowID:   m.ID,
			Reason:  output.SkipMalformedTimestamp,
			Message: fmt.Sprintf("unparseable timestamp %q", m.Value),
			Index:   &idx,
		})
		p.recordSkip(ctx, res.RunID, m.ID, output.SkipMalformedTimestamp, m.Value, log)
	}

	mapped := pathways.NewMapper(pathways.MapperConfig{
		Country:              p.opts.Country,
		OptIn:                p.opts.OptIn,
		SkipSchemaValidation: p.opts.SkipSchemaValidation,
	}, log).Map(filtered.Rows)
	res.NotEnabled = mapped.NotEnabled
	for _, s := range mapped.Skipped {
		p.skip(ctx, res, out, s.ID, string(s.Reason), s.Err, log)
	}

	rows := make([]loader.Row, 0, len(mapped.Outputs))
	for _, o := range mapped.Outputs {
		doc, err := o.DocumentJSON()
		if err != nil {
			p.skip(ctx, res, out, o.ID, string(pathways.SkipInvalidDocument), err, log)
			continue
		}
		res.Outputs = append(res.Outputs, o)
		_ = out.WriteProgram(ctx, &output.ProgramRecord{
			ID:          o.ID,
			ProgramType: string(o.Type),
			UpdatedAt:   o.UpdatedAt,
			Document:    doc,
		})
		rows = append(rows, loader.Row{
			programstore.ColumnID:        o.ID,
			programstore.ColumnSourceID:  o.SourceID,
			programstore.ColumnUpdatedAt: o.UpdatedAt,
			programstore.ColumnDocument:  doc,
		})
	}

	if p.opts.DryRun {
		log.Info("Dry run: skipping load and reconcile", zap.Int("mapped", len(rows)))
		return nil
	}

	l := &loader.Loader{
		Store:     p.store,
		Relation:  p.opts.Relation,
		UniqueKey: p.opts.UniqueKey,
		Policy:    p.opts.Policy,
		Log:       log,
	}
	loaded, err := l.Load(ctx, rows)
	res.Upserted = loaded.Upserted
	res.Failed = loaded.Failed
	for _, id := range loaded.FailedIDs {
		_ = out.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeWriteFailed, Message: "upsert rejected", RowID: id})
		p.recordEvent(ctx, programstore.RunEvent{
			RunID:         res.RunID,
			EventType:     programstore.EventTypeRowFailed,
			EventCategory: programstore.EventCategoryError,
			RowID:         optional(id),
			ErrorCode:     optional(output.ErrCodeWriteFailed),
		}, log)
	}
	if err != nil {
		return err
	}

	return p.reconcile(ctx, res, table, scope, out, log)
}

func (p *Pipeline) reconcile(ctx context.Context, res *Result, table grid.Table, scope string, out output.Writer, log *zap.Logger) error {
	if !p.opts.RemoveDeleted && !p.opts.RemoveOptedOut {
		return nil
	}
	if len(table) == 0 {
		log.Warn("Source has no data rows, skipping reconcile")
		return nil
	}
	r := reconcile.New(table, p.store, scope, log).WithOptIn(p.opts.OptIn)

	if p.opts.RemoveDeleted {
		ids, err := r.RemoveDeletedPrograms(ctx)
		if err != nil {
			return err
		}
		res.Deleted = ids
		p.recordRemovals(ctx, res.RunID, output.ActionDeleted, programstore.EventTypeProgramDeleted, ids, out, log)
	}

	if p.opts.RemoveOptedOut {
		ids, err := r.RemoveProgramsNotMarkedForPathways(ctx)
		if err != nil {
			return err
		}
		res.OptedOut = ids
		p.recordRemovals(ctx, res.RunID, output.ActionOptedOut, programstore.EventTypeOptedOut, ids, out, log)
	}
	return nil
}

func (p *Pipeline) recordRemovals(ctx context.Context, runID, action string, eventType programstore.EventType, ids []string, out output.Writer, log *zap.Logger) {
	if len(ids) == 0 {
		return
	}
	_ = out.WriteReconcile(ctx, &output.ReconcileRecord{Action: action, IDs: ids})
	for _, id := range ids {
		p.recordEvent(ctx, programstore.RunEvent{
			RunID:         runID,
			EventType:     eventType,
			EventCategory: programstore.EventCategoryInfo,
			RowID:         optional(id),
		}, log)
	}
}

func (p *Pipeline) skip(ctx context.Context, res *Result, out output.Writer, id, reason string, err error, log *zap.Logger) {
	res.Skipped++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = out.WriteSkip(ctx, &output.SkipRecord{RowID: id, Reason: reason, Message: msg})
	p.recordSkip(ctx, res.RunID, id, reason, msg, log)
}

func (p *Pipeline) startRun(ctx context.Context, res *Result) error {
	if p.runs == nil || p.opts.DryRun {
		res.RunID = "run_" + uuid.NewString()
		return nil
	}
	run, err := p.runs.CreateRun(ctx, res.SourceID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	res.RunID = run.RunID
	return nil
}

func (p *Pipeline) finishRun(ctx context.Context, res Result, log *zap.Logger) {
	if p.runs == nil || p.opts.DryRun {
		return
	}
	// The run context may already be cancelled; provenance is still written.
	fctx := context.WithoutCancel(ctx)
	if err := p.runs.FinishRun(fctx, res.RunID, res.Status, res.Counts()); err != nil {
		log.Warn("Failed to finish run record", zap.Error(err))
	}
	p.recordEvent(fctx, programstore.RunEvent{
		RunID:         res.RunID,
		EventType:     programstore.EventTypeRunCompleted,
		EventCategory: programstore.EventCategoryInfo,
		Detail:        optional(string(res.Status)),
	}, log)
}

func (p *Pipeline) recordSkip(ctx context.Context, runID, rowID, code, detail string, log *zap.Logger) {
	p.recordEvent(ctx, programstore.RunEvent{
		RunID:         runID,
		EventType:     programstore.EventTypeRowSkipped,
		EventCategory: programstore.EventCategoryWarning,
		RowID:         optional(rowID),
		ErrorCode:     optional(code),
		Detail:        optional(detail),
	}, log)
}

func (p *Pipeline) recordEvent(ctx context.Context, ev programstore.RunEvent, log *zap.Logger) {
	if p.runs == nil || p.opts.DryRun {
		return
	}
	if err := p.runs.RecordRunEvent(ctx, ev); err != nil {
		log.Warn("Failed to record run event",
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err))
	}
}

func (p *Pipeline) runOutput(runID, sourceID string) output.Writer {
	if jw, ok := p.out.(*output.JSONLWriter); ok {
		return jw.WithRun(runID, sourceID)
	}
	return p.out
}

func summaryRecord(res Result, dryRun bool) *output.SummaryRecord {
	return &output.SummaryRecord{
		Status:        string(res.Status),
		RowsSeen:      res.RowsSeen,
		RowsChanged:   res.RowsChanged,
		Malformed:     res.Malformed,
		Restamped:     res.Restamped,
		NotEnabled:    res.NotEnabled,
		Mapped:        len(res.Outputs),
		Skipped:       res.Skipped,
		Upserted:      res.Upserted,
		Failed:        res.Failed,
		Deleted:       len(res.Deleted),
		OptedOut:      len(res.OptedOut),
		Watermark:     res.Watermark,
		DryRun:        dryRun,
		Duration:      res.Duration,
		DurationHuman: res.Duration.Round(time.Millisecond).String(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
