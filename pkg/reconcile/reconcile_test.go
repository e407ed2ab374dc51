package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/grid"
	"github.com/3leaps/gopathways/pkg/programstore"
	"github.com/3leaps/gopathways/test/fixture"
)

type fakeStore struct {
	ids       []string
	deletes   [][]string
	listErr   error
	deleteErr error
}

func (f *fakeStore) AllIDs(_ context.Context, _ string) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeStore) DeleteIDs(_ context.Context, ids []string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletes = append(f.deletes, append([]string(nil), ids...))
	return int64(len(ids)), nil
}

func rec(id, enabled string) grid.Record {
	r := grid.Record{grid.FieldPathwaysEnabled: enabled}
	if id != "" {
		r[grid.FieldRowIdentifier] = id
	}
	return r
}

func TestRemoveDeletedPrograms(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes ids missing from the sheet", func(t *testing.T) {
		store := &fakeStore{ids: []string{"b", "gone-2", "a", "gone-1"}}
		table := grid.Table{rec("a", "Yes"), rec("b", "No"), rec("", "Yes")}

		got, err := New(table, store, "sheet-1", zap.NewNop()).RemoveDeletedPrograms(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"gone-1", "gone-2"}, got)
		require.Len(t, store.deletes, 1)
		assert.Equal(t, []string{"gone-1", "gone-2"}, store.deletes[0])
	})

	t.Run("no delete call when nothing is stale", func(t *testing.T) {
		store := &fakeStore{ids: []string{"a"}}
		got, err := New(grid.Table{rec("a", "Yes")}, store, "", nil).RemoveDeletedPrograms(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, store.deletes)
	})

	t.Run("empty store", func(t *testing.T) {
		store := &fakeStore{}
		got, err := New(grid.Table{rec("a", "Yes")}, store, "", nil).RemoveDeletedPrograms(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, store.deletes)
	})

	t.Run("identifiers are compared trimmed", func(t *testing.T) {
		store := &fakeStore{ids: []string{"a"}}
		got, err := New(grid.Table{rec("  a ", "Yes")}, store, "", nil).RemoveDeletedPrograms(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("list error propagates", func(t *testing.T) {
		store := &fakeStore{listErr: errors.New("boom")}
		_, err := New(grid.Table{rec("a", "Yes")}, store, "", nil).RemoveDeletedPrograms(ctx)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("delete error propagates", func(t *testing.T) {
		store := &fakeStore{ids: []string{"x"}, deleteErr: errors.New("locked")}
		_, err := New(grid.Table{rec("a", "Yes")}, store, "", nil).RemoveDeletedPrograms(ctx)
		assert.ErrorContains(t, err, "locked")
	})

	for name, table := range map[string]grid.Table{
		"header-only sheet keeps everything":       nil,
		"rows without identifiers keep everything": {rec("", "Yes"), rec("  ", "No")},
	} {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{ids: []string{"kept-1", "kept-2"}}
			got, err := New(table, store, "sheet-1", nil).RemoveDeletedPrograms(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Empty(t, store.deletes)
		})
	}
}

func TestRemoveProgramsNotMarkedForPathways(t *testing.T) {
	ctx := context.Background()

	t.Run("targets every non-Yes row in sheet order", func(t *testing.T) {
		store := &fakeStore{}
		table := grid.Table{
			rec("z", "No"),
			rec("a", "Yes"),
			rec("m", ""),
			rec("", "No"),
			rec("q", "yes"),
			rec("z", "No"),
		}

		got, err := New(table, store, "", nil).RemoveProgramsNotMarkedForPathways(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "m", "q"}, got)
		require.Len(t, store.deletes, 1)
		assert.Equal(t, got, store.deletes[0])
	})

	t.Run("no delete call when every row opted in", func(t *testing.T) {
		store := &fakeStore{}
		got, err := New(grid.Table{rec("a", "Yes")}, store, "", nil).RemoveProgramsNotMarkedForPathways(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, store.deletes)
	})

	t.Run("custom opt-in literal", func(t *testing.T) {
		store := &fakeStore{}
		table := grid.Table{rec("a", "Y"), rec("b", "Yes")}
		got, err := New(table, store, "", nil).WithOptIn("Y").RemoveProgramsNotMarkedForPathways(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, got)
	})
}

func TestReconcileAgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := programstore.Open(ctx, programstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	now := time.Now().UTC()
	for _, p := range []struct{ id, source string }{
		{fixture.DefaultRowIdentifier, "sheet-1"},
		{"deleted-row", "sheet-1"},
		{"other-sheet-row", "sheet-2"},
		{"opted-out", "sheet-1"},
	} {
		require.NoError(t, store.UpsertProgram(ctx, programstore.ProgramRow{
			ID: p.id, SourceID: p.source, UpdatedAt: now, Document: json.RawMessage(`{}`),
		}))
	}

	g := fixture.Grid(
		fixture.Row(nil),
		fixture.Row(map[string]string{
			fixture.ColRowIdentifier: "opted-out",
			fixture.ColPathways:      "No",
		}),
	)
	table := grid.Normalize(g, grid.DefaultHeaderMap())

	r := New(table, store, "sheet-1", zap.NewNop())

	deleted, err := r.RemoveDeletedPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"deleted-row"}, deleted)

	optedOut, err := r.RemoveProgramsNotMarkedForPathways(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"opted-out"}, optedOut)

	ids, err := store.AllIDs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{fixture.DefaultRowIdentifier, "other-sheet-row"}, ids)
}
