package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopathways/pkg/output"
	"github.com/3leaps/gopathways/test/fixture"
)

func resetReadOnly(t *testing.T) {
	t.Helper()
	readOnly = false
	viper.Set("readonly", false)
	require.NoError(t, rootCmd.PersistentFlags().Set("readonly", "false"))
}

// resetCommandFlags clears flag variables that persist between Execute
// calls on the shared rootCmd.
func resetCommandFlags(t *testing.T) {
	t.Helper()
	resetReadOnly(t)
	runDryRun, runOutput, runSource = false, "", ""
	optoutDryRun, optoutOutput, optoutSource = false, "", ""
	exportDest, exportJobPath, exportSourceID = "", "", ""
	dbFlag = ""
	rootCmd.SetArgs(nil)
}

func executeRoot(t *testing.T, args ...string) error {
	t.Helper()
	resetCommandFlags(t)
	t.Cleanup(func() { resetCommandFlags(t) })

	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())
	return rootCmd.Execute()
}

// writeJob writes a CSV intake sheet from the fixture rows and a manifest
// reading it, returning the manifest path.
func writeJob(t *testing.T, rows ...[]string) string {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "intake.csv")
	f, err := os.Create(csvPath)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(fixture.Headers()))
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, f.Close())

	jobPath := filepath.Join(dir, "job.yaml")
	job := fmt.Sprintf(`version: "1.0"
sources:
  - name: Local intake
    file: %s
`, csvPath)
	require.NoError(t, os.WriteFile(jobPath, []byte(job), 0o644))
	return jobPath
}

func TestRun_ReadOnly_BlocksWrites(t *testing.T) {
	err := executeRoot(t, "--readonly", "run", "--job", "does-not-matter.yaml")

	require.Error(t, err)
	require.Contains(t, err.Error(), "readonly")
}

func TestRun_ReadOnly_AllowsDryRun(t *testing.T) {
	job := writeJob(t, fixture.Row(nil))
	out := filepath.Join(t.TempDir(), "records.jsonl")

	err := executeRoot(t, "--readonly", "--db", ":memory:",
		"run", "--job", job, "--dry-run", "--output", "file:"+out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), output.TypeProgram)
	assert.Contains(t, string(data), output.TypeSummary)
	assert.Contains(t, string(data), `"dry_run":true`)
}

func TestOptout_ReadOnly_BlocksWrites(t *testing.T) {
	job := writeJob(t, fixture.Row(nil))

	err := executeRoot(t, "--readonly", "optout", "--job", job)

	require.Error(t, err)
	require.Contains(t, err.Error(), "readonly")
}

func TestExport_ReadOnly_BlocksDestinationWrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "feed.json")

	err := executeRoot(t, "--readonly", "export", "--dest", dest)

	require.Error(t, err)
	require.Contains(t, err.Error(), "readonly")
	assert.NoFileExists(t, dest)
}

func TestExport_RequiresDestination(t *testing.T) {
	t.Setenv("GOPATHWAYS_EXPORT_DESTINATION", "")

	err := executeRoot(t, "--db", ":memory:", "export")

	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDestination)
}

func TestRunThenExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pathways.db")
	job := writeJob(t, fixture.Row(nil))
	records := filepath.Join(dir, "records.jsonl")
	feedPath := filepath.Join(dir, "feed.json")

	require.NoError(t, executeRoot(t, "--db", db, "run", "--job", job, "--output", "file:"+records))
	require.NoError(t, executeRoot(t, "--db", db, "export", "--dest", "file:"+feedPath))

	data, err := os.ReadFile(feedPath)
	require.NoError(t, err)
	var got struct {
		Type     string            `json:"@type"`
		Elements []json.RawMessage `json:"dataFeedElement"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "DataFeed", got.Type)
	assert.Len(t, got.Elements, 1)
}
