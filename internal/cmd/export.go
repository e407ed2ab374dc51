package cmd

import (
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/pkg/feed"
	"github.com/3leaps/gopathways/pkg/manifest"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Publish stored programs as a schema.org DataFeed",
	Long: `Read every program from the store, newest first, and publish them as one
DataFeed document to a local file, S3 or GCS.

The destination comes from --dest, the job manifest's export section or
the export.destination config key, in that order. Use --dest - to print
the feed to stdout.

Example:
  gopathways export --job pathways.yaml
  gopathways export --dest s3://feeds/pathways.json --region us-east-1
  gopathways export --dest - --source 1x2y3z`,
	RunE: runExport,
}

var (
	exportJobPath  string
	exportDest     string
	exportSourceID string
	exportName     string
	exportRegion   string
	exportEndpoint string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportJobPath, "job", "j", "", "Path to job manifest (optional)")
	exportCmd.Flags().StringVar(&exportDest, "dest", "", "Destination: path, file:<path>, s3://bucket/key, gs://bucket/key or - for stdout")
	exportCmd.Flags().StringVar(&exportSourceID, "source", "", "Only export programs from this source id")
	exportCmd.Flags().StringVar(&exportName, "name", "", "Feed name")
	exportCmd.Flags().StringVar(&exportRegion, "region", "", "S3 region override")
	exportCmd.Flags().StringVar(&exportEndpoint, "endpoint", "", "S3/GCS endpoint override")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	var m *manifest.Manifest
	if exportJobPath != "" {
		m, err = manifest.Load(exportJobPath)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
	}

	pub := feed.PublishConfig{
		Destination:     cfg.Export.Destination,
		Region:          cfg.Export.Region,
		Endpoint:        cfg.Export.Endpoint,
		Profile:         cfg.Export.Profile,
		ForcePathStyle:  cfg.Export.ForcePathStyle,
		CredentialsFile: cfg.Sheets.CredentialsFile,
	}
	opts := feed.Options{Name: manifest.DefaultExportName, SourceID: exportSourceID}
	if m != nil {
		e := m.Export
		if e.Destination != "" {
			pub.Destination = e.Destination
		}
		if e.Region != "" {
			pub.Region = e.Region
		}
		if e.Endpoint != "" {
			pub.Endpoint = e.Endpoint
		}
		if e.Profile != "" {
			pub.Profile = e.Profile
		}
		pub.ForcePathStyle = pub.ForcePathStyle || e.ForcePathStyle
		if m.Sheets.CredentialsFile != "" {
			pub.CredentialsFile = m.Sheets.CredentialsFile
		}
		opts.Name = e.Name
		opts.Description = e.Description
	}
	if exportDest != "" {
		pub.Destination = exportDest
	}
	if exportRegion != "" {
		pub.Region = exportRegion
	}
	if exportEndpoint != "" {
		pub.Endpoint = exportEndpoint
		pub.ForcePathStyle = true
	}
	if exportName != "" {
		opts.Name = exportName
	}

	toStdout := pub.Destination == "-" || pub.Destination == "stdout"
	if pub.Destination == "" {
		return exitError(foundry.ExitInvalidArgument, "No export destination", errNoDestination)
	}
	if !toStdout {
		if err := refuseReadOnly("export to " + pub.Destination); err != nil {
			return err
		}
	}

	store, err := openStore(ctx, m)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	f, err := feed.Build(ctx, store, opts)
	if err != nil {
		observability.CLILogger.Error("Failed to build feed", zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Failed to build feed", err)
	}

	if toStdout {
		if err := f.Encode(os.Stdout); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write feed", err)
		}
		return nil
	}

	publisher, err := feed.NewPublisher(ctx, pub, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid export destination", err)
	}
	defer func() { _ = publisher.Close() }()

	res, err := publisher.Publish(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Export cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to publish feed", err)
	}

	observability.CLILogger.Info("Export completed",
		zap.String("location", res.Location),
		zap.Int("programs", res.Programs),
		zap.Int64("bytes", res.Bytes))
	return nil
}
