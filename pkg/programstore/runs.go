package programstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of an IngestRun.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusSuccess indicates every row was processed.
	RunStatusSuccess RunStatus = "success"
	// RunStatusPartial indicates some rows were skipped.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed indicates the run aborted.
	RunStatusFailed RunStatus = "failed"
)

// IngestRun is one pipeline execution against one source.
type IngestRun struct {
	RunID        string
	SourceID     string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       RunStatus
	RowsSeen     int
	RowsUpserted int
	RowsSkipped  int
	RowsDeleted  int
}

// RunCounts are the totals recorded when a run finishes.
type RunCounts struct {
	Seen     int
	Upserted int
	Skipped  int
	Deleted  int
}

// EventCategory groups events by severity.
type EventCategory string

const (
	EventCategoryInfo    EventCategory = "info"
	EventCategoryWarning EventCategory = "warning"
	EventCategoryError   EventCategory = "error"
)

// EventType identifies specific event types.
type EventType string

const (
	EventTypeRowSkipped     EventType = "row_skipped"
	EventTypeRowFailed      EventType = "row_failed"
	EventTypeProgramDeleted EventType = "program_deleted"
	EventTypeOptedOut       EventType = "program_opted_out"
	EventTypeRunCompleted   EventType = "run_completed"
)

// RunEvent is a structured diagnostic attached to a run.
type RunEvent struct {
	EventID       string
	RunID         string
	OccurredAt    time.Time
	EventType     EventType
	EventCategory EventCategory
	Detail        *string
	RowID         *string
	ErrorCode     *string
}

// CreateRun inserts a new run in running status.
func (s *Store) CreateRun(ctx context.Context, sourceID string) (*IngestRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC()
	run := &IngestRun{
		RunID:     generateRunID(),
		SourceID:  sourceID,
		StartedAt: now,
		Status:    RunStatusRunning,
	}

	_, err := s.exec(ctx,
		`INSERT INTO ingest_runs (run_id, source_id, started_at, status)
		 VALUES (?, ?, ?, ?)`,
		run.RunID, run.SourceID, run.StartedAt, string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("create ingest_run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the end time, status and counts of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, counts RunCounts) error {
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.exec(ctx,
		`UPDATE ingest_runs
		 SET status = ?, ended_at = ?, rows_seen = ?, rows_upserted = ?, rows_skipped = ?, rows_deleted = ?
		 WHERE run_id = ?`,
		string(status), time.Now().UTC(), counts.Seen, counts.Upserted, counts.Skipped, counts.Deleted, runID)
	if err != nil {
		return fmt.Errorf("finish ingest_run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*IngestRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.queryRow(ctx,
		`SELECT run_id, source_id, started_at, ended_at, status,
		        rows_seen, rows_upserted, rows_skipped, rows_deleted
		 FROM ingest_runs WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ingest_run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first, optionally for one source.
func (s *Store) ListRuns(ctx context.Context, sourceID string, limit int) ([]IngestRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q := `SELECT run_id, source_id, started_at, ended_at, status,
	             rows_seen, rows_upserted, rows_skipped, rows_deleted
	      FROM ingest_runs`
	var args []any
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY started_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ingest_runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingest_run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RecordRunEvent records an event for a run. Missing IDs and timestamps are
// filled in.
func (s *Store) RecordRunEvent(ctx context.Context, event RunEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO ingest_run_events
		 (event_id, run_id, occurred_at, event_type, event_category, detail, row_id, error_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.OccurredAt,
		string(event.EventType), string(event.EventCategory),
		event.Detail, event.RowID, event.ErrorCode)
	if err != nil {
		return fmt.Errorf("record run event: %w", err)
	}
	return nil
}

// RecordRowSkipped records why a row was not loaded.
func (s *Store) RecordRowSkipped(ctx context.Context, runID, rowID, code, detail string) error {
	return s.RecordRunEvent(ctx, RunEvent{
		RunID:         runID,
		EventType:     EventTypeRowSkipped,
		EventCategory: EventCategoryWarning,
		RowID:         stringPtr(rowID),
		ErrorCode:     stringPtr(code),
		Detail:        stringPtr(detail),
	})
}

// ListRunEvents retrieves events for a run, optionally filtered by category.
func (s *Store) ListRunEvents(ctx context.Context, runID string, category *EventCategory) ([]RunEvent, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q := `SELECT event_id, run_id, occurred_at, event_type, event_category, detail, row_id, error_code
	      FROM ingest_run_events WHERE run_id = ?`
	args := []any{runID}
	if category != nil {
		q += ` AND event_category = ?`
		args = append(args, string(*category))
	}
	q += ` ORDER BY occurred_at ASC, event_id ASC`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var occurredRaw any
		var eventType, eventCategory string
		var detail, rowID, errorCode sql.NullString

		if err := rows.Scan(&e.EventID, &e.RunID, &occurredRaw, &eventType, &eventCategory, &detail, &rowID, &errorCode); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		occurred, err := parseDBTimeValue(occurredRaw)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		e.OccurredAt = occurred
		e.EventType = EventType(eventType)
		e.EventCategory = EventCategory(eventCategory)
		if detail.Valid {
			e.Detail = &detail.String
		}
		if rowID.Valid {
			e.RowID = &rowID.String
		}
		if errorCode.Valid {
			e.ErrorCode = &errorCode.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanRun(sc scanner) (*IngestRun, error) {
	var run IngestRun
	var startedRaw, endedRaw any
	var status string

	err := sc.Scan(&run.RunID, &run.SourceID, &startedRaw, &endedRaw, &status,
		&run.RowsSeen, &run.RowsUpserted, &run.RowsSkipped, &run.RowsDeleted)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)

	started, err := parseDBTimeValue(startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started

	ended, err := parseOptionalDBTime(endedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	run.EndedAt = ended
	return &run, nil
}

func generateRunID() string {
	return "run_" + uuid.NewString()
}

func generateEventID() string {
	return "evt_" + uuid.NewString()
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
