package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/internal/server"
	"github.com/3leaps/gopathways/internal/server/handlers"
	"github.com/3leaps/gopathways/pkg/manifest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored programs and the DataFeed over HTTP",
	Long: `Start a read-only HTTP server over the program store.

Routes:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /programs, /programs/{id}
  GET /feed
  GET /runs, /runs/{id}

Example:
  gopathways serve
  gopathways serve --port 9000 --job pathways.yaml`,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveJobPath string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVarP(&serveJobPath, "job", "j", "", "Job manifest selecting the store and feed name (optional)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	var m *manifest.Manifest
	feedName := manifest.DefaultExportName
	if serveJobPath != "" {
		if m, err = manifest.Load(serveJobPath); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		feedName = m.Export.Name
	}

	store, err := openStore(ctx, m)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open program store", err)
	}
	defer func() { _ = store.Close() }()

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signals", signalHealthChecker{})
	if id := GetAppIdentity(); id != nil {
		health.RegisterChecker("identity", identityHealthChecker{
			binaryName: id.BinaryName,
			envPrefix:  id.EnvPrefix,
			configName: id.ConfigName,
		})
	}
	health.RegisterChecker("store", storeHealthChecker{pinger: store})

	srv := server.New(host, port,
		server.WithLogger(observability.CLILogger),
		server.WithVersion(server.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		server.WithHealth(cfg.Health.Enabled),
		server.WithPprof(cfg.Debug.Enabled && cfg.Debug.PprofEnabled),
		server.WithProgramsAPI(&handlers.ProgramsAPI{Store: store, FeedName: feedName}),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	observability.CLILogger.Info("Shutting down server",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Graceful shutdown failed", err)
	}
	return <-errCh
}

// signalHealthChecker reports healthy while the process is serving; a
// received signal cancels the server before checks could observe it.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(context.Context) error { return nil }

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("app identity: missing binary name")
	case c.envPrefix == "":
		return errors.New("app identity: missing env prefix")
	case c.configName == "":
		return errors.New("app identity: missing config name")
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// storeHealthChecker pings the program store within a short deadline.
type storeHealthChecker struct {
	pinger pinger
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.pinger == nil {
		return errors.New("program store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("program store: %w", err)
	}
	return nil
}
