// Package cmd implements the gopathways command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/config"
	"github.com/3leaps/gopathways/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	appIdentity *config.Identity

	cfgFile   string
	logLevel  string
	logFormat string
	verbose   bool
	dbFlag    string
	readOnly  bool
)

var rootCmd = &cobra.Command{
	Use:   "gopathways",
	Short: "Load program intake sheets into Pathways JSON-LD",
	Long: `gopathways reads program intake spreadsheets, converts each opted-in row
into a Pathways JSON-LD document and keeps a relational store in sync with
the sheet: changed rows are upserted, rows removed from the sheet or no
longer opted in are deleted.

Persisted documents can be exported as a schema.org DataFeed to a file,
S3 or GCS, or served read-only over HTTP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: discovered gopathways.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console|json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
	pf.StringVar(&dbFlag, "db", "", "Program store: SQLite path, libsql:// or postgres:// URL")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse every operation that writes to the store or an export destination")

	_ = viper.BindPFlag("readonly", pf.Lookup("readonly"))
	_ = viper.BindEnv("readonly", "GOPATHWAYS_READONLY")
}

// SetVersionInfo is called from main with linker-provided values.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved at startup, or nil before
// any command ran.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

// setDefaults seeds the global viper instance with the config defaults so
// commands can read settings before a config file is loaded.
func setDefaults() {
	for key, val := range config.Defaults {
		viper.SetDefault(key, val)
	}
	viper.SetDefault("readonly", false)
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	setDefaults()
	if appIdentity == nil {
		appIdentity = config.DefaultIdentity()
	}

	config.SetConfigFile(cfgFile)
	overrides := map[string]any{}
	logging := map[string]any{}
	if logLevel != "" {
		logging["level"] = logLevel
	}
	if verbose {
		logging["level"] = "debug"
	}
	if logFormat != "" {
		logging["format"] = logFormat
	}
	if len(logging) > 0 {
		overrides["logging"] = logging
	}
	if dbFlag != "" {
		if isStoreURL(dbFlag) {
			overrides["store"] = map[string]any{"url": dbFlag, "path": ""}
		} else {
			overrides["store"] = map[string]any{"path": dbFlag, "url": ""}
		}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := observability.Init(appIdentity.BinaryName, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}

	readOnly = readOnly || viper.GetBool("readonly")
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("store_path", cfg.Store.Path),
		zap.Bool("store_url_set", cfg.Store.URL != ""),
		zap.Bool("readonly", readOnly))
	return nil
}

// Execute runs the root command with SIGINT/SIGTERM cancelling the context
// and exits with the code carried by the returned error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	code := exitFailure
	var ce *exitCodeError
	if errors.As(err, &ce) {
		code = ce.code
	}
	observability.CLILogger.Error("Command failed", zap.Error(err), zap.Int("exit_code", code))
	_ = observability.CLILogger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
