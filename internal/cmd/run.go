package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/pkg/manifest"
	"github.com/3leaps/gopathways/pkg/pipeline"
	"github.com/3leaps/gopathways/pkg/programstore"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sheet to store pipeline from a job manifest",
	Long: `Fetch every source in the job manifest, convert changed opted-in rows to
Pathways JSON-LD and upsert them into the program store. Programs removed
from a sheet, or no longer opted in, are deleted afterwards.

Each source is one run with its own run id. Records for every program,
skip and removal are streamed as JSONL to the output destination.

Example:
  gopathways run --job pathways.yaml
  gopathways run --job pathways.yaml --source 'Goodwill*'
  gopathways run --job pathways.yaml --dry-run --output file:plan.jsonl`,
	RunE: runRun,
}

var (
	runJobPath string
	runSource  string
	runDryRun  bool
	runOutput  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job manifest (required)")
	runCmd.Flags().StringVar(&runSource, "source", "", "Only run sources whose name matches this glob")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Map rows and emit records without writing to the store")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Override output destination (stdout|file:<path>)")

	_ = runCmd.MarkFlagRequired("job")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if readOnly && !runDryRun {
		return exitError(foundry.ExitInvalidArgument, "run writes to the program store; use --dry-run in readonly mode", errReadOnly)
	}

	m, err := loadManifest(runJobPath, runSource)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", runJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	if runOutput != "" {
		m.Output.Destination = runOutput
	}

	observability.CLILogger.Debug("Loaded manifest",
		zap.String("path", runJobPath),
		zap.Int("sources", len(m.Sources)),
		zap.Bool("dry_run", runDryRun))

	return executeRun(ctx, m, runDryRun)
}

func executeRun(ctx context.Context, m *manifest.Manifest, dryRun bool) error {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	store, err := openStore(ctx, m)
	if err != nil {
		observability.CLILogger.Error("Failed to open program store", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	src, err := buildSource(ctx, cfg, m)
	if err != nil {
		observability.CLILogger.Error("Failed to create Sheets client", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to Google Sheets", err)
	}

	opts, err := pipelineOptions(m, store, dryRun)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	batchID := uuid.New().String()
	writer, cleanup, err := createWriter(m.Output.Destination, batchID, "")
	if err != nil {
		observability.CLILogger.Error("Failed to create writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	p := pipeline.New(store, opts, observability.CLILogger).WithOutput(writer)
	if !dryRun {
		p.WithRunRecorder(store)
	}

	observability.CLILogger.Info("Starting run",
		zap.String("batch_id", batchID),
		zap.Int("sources", len(m.Sources)),
		zap.Int("concurrency", m.Sheets.Concurrency),
		zap.Bool("dry_run", dryRun))

	results, err := p.RunAll(ctx, src, m.Refs(), m.Sheets.Concurrency)
	logResults(results)
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Run cancelled", zap.String("batch_id", batchID))
			return exitError(foundry.ExitSignalInt, "Run cancelled", err)
		}
		observability.CLILogger.Error("Run failed",
			zap.String("batch_id", batchID),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Run failed", err)
	}
	return nil
}

func logResults(results []pipeline.Result) {
	var partial []string
	for _, r := range results {
		if r.Status == programstore.RunStatusPartial {
			partial = append(partial, r.SourceID)
		}
	}
	if len(partial) > 0 {
		observability.CLILogger.Warn("Some rows were skipped",
			zap.String("sources", strings.Join(partial, ",")))
	}
}

// refuseReadOnly returns an exit error naming op when --readonly is set.
func refuseReadOnly(op string) error {
	if !readOnly {
		return nil
	}
	return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("%s is not allowed in readonly mode", op), errReadOnly)
}
