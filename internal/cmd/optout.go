package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/pkg/pipeline"
	"github.com/3leaps/gopathways/pkg/source"
)

var optoutCmd = &cobra.Command{
	Use:   "optout",
	Short: "Remove programs deleted from or opted out of their sheet",
	Long: `Fetch every source in the job manifest and delete stored programs whose
row is gone or no longer opted in. Nothing is upserted; use this to
honour opt-outs between full runs.

Example:
  gopathways optout --job pathways.yaml
  gopathways optout --job pathways.yaml --source 'Goodwill*' --dry-run`,
	RunE: runOptout,
}

var (
	optoutJobPath string
	optoutSource  string
	optoutDryRun  bool
	optoutOutput  string
)

func init() {
	rootCmd.AddCommand(optoutCmd)

	optoutCmd.Flags().StringVarP(&optoutJobPath, "job", "j", "", "Path to job manifest (required)")
	optoutCmd.Flags().StringVar(&optoutSource, "source", "", "Only prune sources whose name matches this glob")
	optoutCmd.Flags().BoolVar(&optoutDryRun, "dry-run", false, "Fetch and normalize sheets without deleting")
	optoutCmd.Flags().StringVarP(&optoutOutput, "output", "o", "", "Override output destination (stdout|file:<path>)")

	_ = optoutCmd.MarkFlagRequired("job")
}

func runOptout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !optoutDryRun {
		if err := refuseReadOnly("optout"); err != nil {
			return err
		}
	}

	m, err := loadManifest(optoutJobPath, optoutSource)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	if optoutOutput != "" {
		m.Output.Destination = optoutOutput
	}

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	store, err := openStore(ctx, m)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	src, err := buildSource(ctx, cfg, m)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to Google Sheets", err)
	}

	opts, err := pipelineOptions(m, store, optoutDryRun)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	// optout always applies both removal steps.
	opts.RemoveDeleted = true
	opts.RemoveOptedOut = true

	batchID := uuid.New().String()
	writer, cleanup, err := createWriter(m.Output.Destination, batchID, "")
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	p := pipeline.New(store, opts, observability.CLILogger).WithOutput(writer)
	if !optoutDryRun {
		p.WithRunRecorder(store)
	}

	fetched, err := source.FetchAll(ctx, src, m.Refs(), m.Sheets.Concurrency, observability.CLILogger)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Optout cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to fetch sheets", err)
	}

	removed := 0
	for _, f := range fetched {
		res, err := p.Prune(ctx, f.Ref, f.Grid)
		removed += len(res.Deleted) + len(res.OptedOut)
		if err != nil {
			if ctx.Err() != nil {
				return exitError(foundry.ExitSignalInt, "Optout cancelled", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Optout failed", err)
		}
		observability.CLILogger.Info("Pruned source",
			zap.String("source", f.Ref.String()),
			zap.Strings("deleted", res.Deleted),
			zap.Strings("opted_out", res.OptedOut))
	}

	observability.CLILogger.Info("Optout completed",
		zap.String("batch_id", batchID),
		zap.Int("sources", len(fetched)),
		zap.Int("removed", removed),
		zap.Bool("dry_run", optoutDryRun))
	return nil
}
