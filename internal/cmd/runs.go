package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gopathways/pkg/programstore"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ingest run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Long: `List recent runs recorded in the program store.

Example:
  gopathways runs list
  gopathways runs list --source 1x2y3z --limit 5`,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its events",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var (
	runsSource string
	runsLimit  int
	runsJSON   bool
	runsEvents string
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
	runsListCmd.Flags().StringVar(&runsSource, "source", "", "Only runs for this source id")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsShowCmd.Flags().StringVar(&runsEvents, "category", "", "Only events of this category (info|warning|error)")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, nil)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(ctx, runsSource, runsLimit)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list runs", err)
	}
	if runsJSON {
		return printJSON(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-8s  %6s  %8s  %7s  %7s\n", "RUN", "STARTED", "STATUS", "SEEN", "UPSERTED", "SKIPPED", "DELETED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s  %-8s  %6d  %8d  %7d  %7d\n",
			r.RunID, r.StartedAt.UTC().Format(time.RFC3339), r.Status,
			r.RowsSeen, r.RowsUpserted, r.RowsSkipped, r.RowsDeleted)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var category *programstore.EventCategory
	switch c := programstore.EventCategory(runsEvents); c {
	case "":
	case programstore.EventCategoryInfo, programstore.EventCategoryWarning, programstore.EventCategoryError:
		category = &c
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --category", fmt.Errorf("unknown event category %q", runsEvents))
	}

	store, err := openStore(ctx, nil)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		if errors.Is(err, programstore.ErrRunNotFound) {
			return exitError(foundry.ExitFileNotFound, "Run not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read run", err)
	}
	events, err := store.ListRunEvents(ctx, run.RunID, category)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read run events", err)
	}

	if runsJSON {
		return printJSON(struct {
			Run    *programstore.IngestRun `json:"run"`
			Events []programstore.RunEvent `json:"events"`
		}{run, events})
	}

	fmt.Printf("Run:       %s\n", run.RunID)
	fmt.Printf("Source:    %s\n", run.SourceID)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Started:   %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.EndedAt != nil {
		fmt.Printf("Ended:     %s\n", run.EndedAt.UTC().Format(time.RFC3339))
	}
	fmt.Printf("Rows:      seen=%d upserted=%d skipped=%d deleted=%d\n",
		run.RowsSeen, run.RowsUpserted, run.RowsSkipped, run.RowsDeleted)
	if len(events) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Events:")
	for _, ev := range events {
		fmt.Printf("  %s  %-7s  %-18s  row=%s  %s\n",
			ev.OccurredAt.UTC().Format(time.RFC3339), ev.EventCategory, ev.EventType,
			deref(ev.RowID), joinNonEmpty(deref(ev.ErrorCode), deref(ev.Detail)))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + ": " + b
}
