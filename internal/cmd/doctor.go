package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/config"
	errwrap "github.com/3leaps/gopathways/internal/errors"
	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/pkg/manifest"
)

var (
	doctorProvider string
	doctorJobPath  string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  gopathways doctor                      # Environment, store and Sheets credentials
  gopathways doctor --job pathways.yaml  # Use the manifest's store and credentials
  gopathways doctor --provider s3        # S3 export checks`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run export provider checks (s3)")
	doctorCmd.Flags().StringVarP(&doctorJobPath, "job", "j", "", "Job manifest to check (optional)")
}

// checkReporter prints numbered "[n/total] Checking <what>..." lines.
type checkReporter struct {
	n, total int
	healthy  bool
}

func (r *checkReporter) line(what, mark, detail string) string {
	r.n++
	return fmt.Sprintf("[%d/%d] Checking %s... %s %s", r.n, r.total, what, mark, detail)
}

func (r *checkReporter) pass(what, detail string, fields ...zap.Field) {
	observability.CLILogger.Info(r.line(what, "✅", detail), fields...)
}

func (r *checkReporter) warn(what, detail string, fields ...zap.Field) {
	observability.CLILogger.Warn(r.line(what, "⚠️ ", detail), fields...)
}

func (r *checkReporter) fail(what, detail string, fields ...zap.Field) {
	r.healthy = false
	observability.CLILogger.Error(r.line(what, "❌", detail), fields...)
}

func runDoctor(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	bannerName := "doctor"
	if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
		bannerName = id.BinaryName + " doctor"
	}
	log := observability.CLILogger
	log.Info("=== " + bannerName + " ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	r := &checkReporter{total: 7, healthy: true}
	if doctorProvider == "s3" {
		r.total = 9
	}

	if goVersion := runtime.Version(); goVersion >= "go1.23" {
		r.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		r.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
		r.healthy = false
	}

	version := crucible.GetVersion()
	if version.Crucible == "" {
		r.fail("Crucible access", "Cannot access Crucible")
		ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
	}
	r.pass("Crucible access", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))

	if version.Gofulmen != "" {
		r.pass("Gofulmen access", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		r.fail("Gofulmen access", "Cannot access Gofulmen")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		r.fail("config directory", "Cannot find config directory", zap.Error(err))
		ExitWithCode(log, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(ctx, err, "Cannot find config directory"))
	}
	r.pass("config directory", configDir, zap.String("config_dir", configDir))
	r.pass("environment", runtime.GOOS+"/"+runtime.GOARCH, zap.String("os", runtime.GOOS), zap.String("arch", runtime.GOARCH))

	var m *manifest.Manifest
	if doctorJobPath != "" {
		if m, err = manifest.Load(doctorJobPath); err != nil {
			log.Error("Manifest is invalid", zap.String("path", doctorJobPath), zap.Error(err))
			r.healthy = false
			m = nil
		}
	}

	checkStore(ctx, m, r)
	checkSheetsCredentials(ctx, m, r)
	if doctorProvider == "s3" {
		runS3Checks(ctx, r)
	}

	log.Info("")
	if r.healthy {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
}

// checkStore opens, migrates and pings the program store.
func checkStore(ctx context.Context, m *manifest.Manifest, r *checkReporter) bool {
	const what = "program store"
	store, err := openStore(ctx, m)
	if err != nil {
		r.fail(what, "Cannot open store", zap.Error(err))
		return false
	}
	defer func() { _ = store.Close() }()

	if err := store.Ping(ctx); err != nil {
		r.fail(what, "Ping failed", zap.Error(err))
		return false
	}
	count, err := store.CountPrograms(ctx, "")
	if err != nil {
		r.fail(what, "Cannot read "+store.Table(), zap.Error(err))
		return false
	}
	r.pass(what, fmt.Sprintf("%s (%d programs)", store.Dialect(), count),
		zap.String("table", store.Table()),
		zap.Int64("programs", count))
	return true
}

// checkSheetsCredentials reports where Sheets credentials would come from.
// Application default credentials are accepted without a network check.
func checkSheetsCredentials(ctx context.Context, m *manifest.Manifest, r *checkReporter) bool {
	const what = "Sheets credentials"
	cfg, err := currentConfig(ctx)
	if err != nil {
		cfg = &config.Config{}
	}

	file := cfg.Sheets.CredentialsFile
	if m != nil {
		if m.Sheets.CredentialsJSON() != "" {
			r.pass(what, "inline key from $"+m.Sheets.CredentialsEnv)
			return true
		}
		if m.Sheets.CredentialsFile != "" {
			file = m.Sheets.CredentialsFile
		}
	}

	switch {
	case file != "":
		if _, err := os.Stat(file); err != nil {
			r.fail(what, file+" not readable", zap.Error(err))
			return false
		}
		r.pass(what, file)
	case os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON") != "":
		r.pass(what, "GOOGLE_APPLICATION_CREDENTIALS_JSON")
	case os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "":
		r.pass(what, "GOOGLE_APPLICATION_CREDENTIALS")
	default:
		r.warn(what, "none configured, falling back to application default credentials")
	}
	return true
}

// runS3Checks resolves AWS credentials the way feed export to s3:// will.
func runS3Checks(ctx context.Context, r *checkReporter) {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("S3 Export Checks:")

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		r.fail("AWS credentials", "Cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp()
		return
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		r.fail("AWS credentials", "Cannot retrieve credentials", zap.Error(err))
		printAWSCredentialsHelp()
		return
	}

	r.pass("AWS credentials", "Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	r.pass("credential source", source, zap.String("credential_source", source))
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials for feed export:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	observability.CLILogger.Info("  2. Set export.profile in the job manifest or GOPATHWAYS_EXPORT_PROFILE, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - export.endpoint in the manifest or the --endpoint flag on export")
	observability.CLILogger.Info("")
}
