package programstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.CreateRun(ctx, "sheet-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Contains(t, run.RunID, "run_")

	require.NoError(t, s.RecordRowSkipped(ctx, run.RunID, "row-1", "invalid_duration", "two weeks"))
	require.NoError(t, s.RecordRunEvent(ctx, RunEvent{
		RunID:         run.RunID,
		EventType:     EventTypeProgramDeleted,
		EventCategory: EventCategoryInfo,
		RowID:         stringPtr("row-2"),
	}))

	require.NoError(t, s.FinishRun(ctx, run.RunID, RunStatusPartial, RunCounts{Seen: 3, Upserted: 1, Skipped: 1, Deleted: 1}))

	got, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPartial, got.Status)
	assert.Equal(t, 3, got.RowsSeen)
	assert.Equal(t, 1, got.RowsDeleted)
	require.NotNil(t, got.EndedAt)
	assert.False(t, got.EndedAt.Before(got.StartedAt))

	t.Run("list events", func(t *testing.T) {
		events, err := s.ListRunEvents(ctx, run.RunID, nil)
		require.NoError(t, err)
		require.Len(t, events, 2)

		warn := EventCategoryWarning
		warnings, err := s.ListRunEvents(ctx, run.RunID, &warn)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Equal(t, EventTypeRowSkipped, warnings[0].EventType)
		require.NotNil(t, warnings[0].RowID)
		assert.Equal(t, "row-1", *warnings[0].RowID)
		require.NotNil(t, warnings[0].ErrorCode)
		assert.Equal(t, "invalid_duration", *warnings[0].ErrorCode)
	})

	t.Run("list runs", func(t *testing.T) {
		_, err := s.CreateRun(ctx, "sheet-2")
		require.NoError(t, err)

		runs, err := s.ListRuns(ctx, "sheet-1", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, run.RunID, runs[0].RunID)

		all, err := s.ListRuns(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("missing run", func(t *testing.T) {
		_, err := s.GetRun(ctx, "run_missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}
