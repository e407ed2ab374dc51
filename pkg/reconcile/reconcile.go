// Package reconcile removes persisted programs that the source no longer
// offers: rows deleted from the sheet and rows whose owners withdrew them
// from Pathways.
//
// A Reconciler works on the full normalized sheet, not the change-filtered
// subset, so a row that has not changed since the last run still counts as
// present.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/grid"
)

// DefaultOptIn is the PathwaysEnabled value that keeps a program published.
const DefaultOptIn = "Yes"

// Store is the persistence surface the reconciler needs.
type Store interface {
	AllIDs(ctx context.Context, sourceID string) ([]string, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// Reconciler compares one source snapshot against the store.
type Reconciler struct {
	table    grid.Table
	store    Store
	sourceID string
	optIn    string
	log      *zap.Logger
}

// New captures t as the current snapshot of sourceID. An empty sourceID
// compares against every persisted row.
func New(t grid.Table, store Store, sourceID string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		table:    t,
		store:    store,
		sourceID: sourceID,
		optIn:    DefaultOptIn,
		log:      log,
	}
}

// WithOptIn overrides the opt-in literal.
func (r *Reconciler) WithOptIn(v string) *Reconciler {
	if v != "" {
		r.optIn = v
	}
	return r
}

// RemoveDeletedPrograms deletes persisted programs whose id no longer
// appears in the snapshot and returns their ids, sorted. Nothing is deleted
// when every persisted id is still present, or when the snapshot carries no
// row identifiers at all (an empty or truncated sheet).
func (r *Reconciler) RemoveDeletedPrograms(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.store == nil {
		return nil, errors.New("reconcile store is nil")
	}

	present := make(map[string]struct{}, len(r.table))
	for _, rec := range r.table {
		if id := strings.TrimSpace(rec.Get(grid.FieldRowIdentifier)); id != "" {
			present[id] = struct{}{}
		}
	}
	if len(present) == 0 {
		r.log.Warn("Snapshot has no row identifiers, keeping persisted programs",
			zap.String("source", r.sourceID),
			zap.Int("rows", len(r.table)))
		return nil, nil
	}

	persisted, err := r.store.AllIDs(ctx, r.sourceID)
	if err != nil {
		return nil, fmt.Errorf("list persisted ids: %w", err)
	}

	var stale []string
	for _, id := range persisted {
		if _, ok := present[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		r.log.Debug("No deleted programs to remove", zap.String("source", r.sourceID))
		return nil, nil
	}
	sort.Strings(stale)

	n, err := r.store.DeleteIDs(ctx, stale)
	if err != nil {
		return nil, fmt.Errorf("delete removed programs: %w", err)
	}
	r.log.Info("Removed programs deleted from source",
		zap.String("source", r.sourceID),
		zap.Int("targeted", len(stale)),
		zap.Int64("deleted", n))
	return stale, nil
}

// RemoveProgramsNotMarkedForPathways deletes the programs whose row does not
// carry the opt-in value and returns the targeted ids in sheet order. Rows
// without an identifier are ignored.
func (r *Reconciler) RemoveProgramsNotMarkedForPathways(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.store == nil {
		return nil, errors.New("reconcile store is nil")
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, rec := range r.table {
		if rec.Get(grid.FieldPathwaysEnabled) == r.optIn {
			continue
		}
		id := strings.TrimSpace(rec.Get(grid.FieldRowIdentifier))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	n, err := r.store.DeleteIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("delete opted-out programs: %w", err)
	}
	r.log.Info("Removed programs not marked for Pathways",
		zap.String("source", r.sourceID),
		zap.Int("targeted", len(ids)),
		zap.Int64("deleted", n))
	return ids, nil
}
