package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gopathways/internal/errors"
	"github.com/3leaps/gopathways/pkg/feed"
	"github.com/3leaps/gopathways/pkg/programstore"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ProgramStore is the read side of the program store served over HTTP.
type ProgramStore interface {
	GetProgram(ctx context.Context, id string) (*programstore.ProgramRow, error)
	ListPrograms(ctx context.Context, params programstore.ListParams) ([]programstore.ProgramRow, error)
	CountMatching(ctx context.Context, params programstore.ListParams) (int64, error)
	GetRun(ctx context.Context, runID string) (*programstore.IngestRun, error)
	ListRuns(ctx context.Context, sourceID string, limit int) ([]programstore.IngestRun, error)
	ListRunEvents(ctx context.Context, runID string, category *programstore.EventCategory) ([]programstore.RunEvent, error)
}

// ProgramsAPI serves persisted Pathways documents, the DataFeed and run
// provenance. It never writes.
type ProgramsAPI struct {
	Store    ProgramStore
	FeedName string
}

// Routes mounts the API on r.
func (a *ProgramsAPI) Routes(r chi.Router) {
	r.Get("/programs", a.ListPrograms)
	r.Get("/programs/{id}", a.GetProgram)
	r.Get("/feed", a.Feed)
	r.Get("/runs", a.ListRuns)
	r.Get("/runs/{id}", a.GetRun)
}

// ProgramList is the /programs response.
type ProgramList struct {
	Programs []ProgramSummary `json:"programs"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ProgramSummary pairs a stored document with its bookkeeping columns.
type ProgramSummary struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	UpdatedAt string `json:"updated_at"`
	Document  any    `json:"document"`
}

func (a *ProgramsAPI) ListPrograms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pageParams(q.Get("limit"), q.Get("offset"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	params := programstore.ListParams{SourceID: q.Get("source"), Limit: limit, Offset: offset}
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		since, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			respondWithError(w, r, apperrors.NewBadRequest("since must be an RFC3339 timestamp"))
			return
		}
		params.Since = &since
	}

	rows, err := a.Store.ListPrograms(r.Context(), params)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "list programs"))
		return
	}
	total, err := a.Store.CountMatching(r.Context(), params)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "count programs"))
		return
	}

	out := ProgramList{Programs: make([]ProgramSummary, 0, len(rows)), Total: total, Limit: limit, Offset: offset}
	for _, row := range rows {
		out.Programs = append(out.Programs, ProgramSummary{
			ID:        row.ID,
			SourceID:  row.SourceID,
			UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339),
			Document:  row.Document,
		})
	}
	apperrors.WriteJSON(w, http.StatusOK, out)
}

// GetProgram writes the stored JSON-LD document verbatim.
func (a *ProgramsAPI) GetProgram(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := a.Store.GetProgram(r.Context(), id)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "get program"))
		return
	}
	if row == nil {
		respondWithError(w, r, apperrors.NewNotFound(fmt.Sprintf("program %q not found", id)))
		return
	}

	w.Header().Set("Content-Type", feed.ContentType)
	w.Header().Set("Last-Modified", row.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(row.Document)
}

// Feed builds the DataFeed on request.
func (a *ProgramsAPI) Feed(w http.ResponseWriter, r *http.Request) {
	f, err := feed.Build(r.Context(), a.Store, feed.Options{
		Name:     a.FeedName,
		SourceID: r.URL.Query().Get("source"),
	})
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "build feed"))
		return
	}
	w.Header().Set("Content-Type", feed.ContentType)
	w.WriteHeader(http.StatusOK)
	_ = f.Encode(w)
}

// RunView is one run in API responses.
type RunView struct {
	RunID    string         `json:"run_id"`
	SourceID string         `json:"source_id"`
	Status   string         `json:"status"`
	Started  string         `json:"started_at"`
	Ended    string         `json:"ended_at,omitempty"`
	Seen     int            `json:"rows_seen"`
	Upserted int            `json:"rows_upserted"`
	Skipped  int            `json:"rows_skipped"`
	Deleted  int            `json:"rows_deleted"`
	Events   []RunEventView `json:"events,omitempty"`
}

type RunEventView struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	At       string `json:"occurred_at"`
	RowID    string `json:"row_id,omitempty"`
	Code     string `json:"error_code,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (a *ProgramsAPI) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pageParams(r.URL.Query().Get("limit"), "")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	runs, err := a.Store.ListRuns(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "list runs"))
		return
	}
	out := make([]RunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView(run))
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (a *ProgramsAPI) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := a.Store.GetRun(r.Context(), id)
	if errors.Is(err, programstore.ErrRunNotFound) {
		respondWithError(w, r, apperrors.NewNotFound(fmt.Sprintf("run %q not found", id)))
		return
	}
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "get run"))
		return
	}

	events, err := a.Store.ListRunEvents(r.Context(), id, nil)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "list run events"))
		return
	}

	view := runView(*run)
	for _, ev := range events {
		view.Events = append(view.Events, RunEventView{
			Type:     string(ev.EventType),
			Category: string(ev.EventCategory),
			At:       ev.OccurredAt.UTC().Format(time.RFC3339),
			RowID:    deref(ev.RowID),
			Code:     deref(ev.ErrorCode),
			Detail:   deref(ev.Detail),
		})
	}
	apperrors.WriteJSON(w, http.StatusOK, view)
}

func runView(run programstore.IngestRun) RunView {
	v := RunView{
		RunID:    run.RunID,
		SourceID: run.SourceID,
		Status:   string(run.Status),
		Started:  run.StartedAt.UTC().Format(time.RFC3339),
		Seen:     run.RowsSeen,
		Upserted: run.RowsUpserted,
		Skipped:  run.RowsSkipped,
		Deleted:  run.RowsDeleted,
	}
	if run.EndedAt != nil {
		v.Ended = run.EndedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func pageParams(limitRaw, offsetRaw string) (limit, offset int, err error) {
	limit = defaultListLimit
	if s := strings.TrimSpace(limitRaw); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxListLimit {
			return 0, 0, apperrors.NewBadRequest(fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		}
	}
	if s := strings.TrimSpace(offsetRaw); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.NewBadRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
