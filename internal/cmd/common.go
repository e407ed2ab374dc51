package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/internal/config"
	"github.com/3leaps/gopathways/internal/observability"
	"github.com/3leaps/gopathways/pkg/manifest"
	"github.com/3leaps/gopathways/pkg/output"
	"github.com/3leaps/gopathways/pkg/pipeline"
	"github.com/3leaps/gopathways/pkg/programstore"
	"github.com/3leaps/gopathways/pkg/source"
)

var (
	// errReadOnly is wrapped by every command refused under --readonly.
	errReadOnly      = errors.New("refused in readonly mode")
	errNoDestination = errors.New("set --dest, export.destination in the job manifest or GOPATHWAYS_EXPORT_DESTINATION")
)

func isStoreURL(s string) bool {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"libsql://", "http://", "https://", "postgres://", "postgresql://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// currentConfig returns the loaded config, or defaults when no command
// pre-run has loaded one (tests invoking helpers directly).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load(ctx)
}

// storeConfig resolves the program store: --db wins, then the manifest,
// then the process config.
func storeConfig(cfg *config.Config, m *manifest.Manifest) programstore.Config {
	sc := programstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
		Table:     cfg.Store.Table,
	}
	if m == nil {
		return sc
	}
	if dbFlag == "" && (m.Store.Path != "" || m.Store.URL != "") {
		sc.Path = m.Store.Path
		sc.URL = m.Store.URL
		sc.AuthToken = m.Store.AuthToken()
	}
	if m.Store.Table != "" {
		sc.Table = m.Store.Table
	}
	return sc
}

// openStore opens and migrates the program store.
func openStore(ctx context.Context, m *manifest.Manifest) (*programstore.Store, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, err
	}
	sc := storeConfig(cfg, m)
	store, err := programstore.Open(ctx, sc)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate program store: %w", err)
	}
	observability.CLILogger.Debug("Opened program store",
		zap.String("dialect", string(store.Dialect())),
		zap.String("table", store.Table()))
	return store, nil
}

// loadManifest loads the job manifest and narrows it to the sources
// matching pattern.
func loadManifest(path, pattern string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	selected, err := m.SelectSources(pattern)
	if err != nil {
		return nil, err
	}
	m.Sources = selected
	return m, nil
}

func needsSheets(refs []source.Ref) bool {
	for _, r := range refs {
		if r.Kind == source.KindSheets || r.Kind == "" {
			return true
		}
	}
	return false
}

// buildSource wires a Router for the refs. The Sheets client is only
// created when a ref needs it, so file-only jobs run without credentials.
func buildSource(ctx context.Context, cfg *config.Config, m *manifest.Manifest) (source.Source, error) {
	router := source.Router{Files: source.FileSource{}}
	if !needsSheets(m.Refs()) {
		return router, nil
	}

	sheetsCfg := source.SheetsConfig{
		CredentialsFile: m.Sheets.CredentialsFile,
		CredentialsJSON: m.Sheets.CredentialsJSON(),
		Range:           m.Sheets.Range,
	}
	if m.Sheets.RateLimit != nil {
		sheetsCfg.RateLimit = *m.Sheets.RateLimit
	}
	if sheetsCfg.CredentialsFile == "" && sheetsCfg.CredentialsJSON == "" {
		sheetsCfg.CredentialsFile = cfg.Sheets.CredentialsFile
	}

	sheetsSrc, err := source.NewSheetsSource(ctx, sheetsCfg, observability.CLILogger)
	if err != nil {
		return nil, err
	}
	router.Sheets = sheetsSrc
	return router, nil
}

// pipelineOptions maps the manifest onto pipeline options for store.
func pipelineOptions(m *manifest.Manifest, store *programstore.Store, dryRun bool) (pipeline.Options, error) {
	loc, err := m.Transform.Location()
	if err != nil {
		return pipeline.Options{}, err
	}
	policy, err := m.Load.Policy()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		HeaderMap:            m.Transform.HeaderMap(),
		Sentinel:             m.Transform.Sentinel,
		Country:              m.Transform.Country,
		OptIn:                m.Transform.OptIn,
		GlobalScope:          m.Load.Global(),
		Location:             loc,
		TimestampLayouts:     m.Transform.TimestampLayouts,
		Relation:             store.Table(),
		Policy:               policy,
		RemoveDeleted:        m.Reconcile.DeletedEnabled(),
		RemoveOptedOut:       m.Reconcile.OptedOutEnabled(),
		SkipSchemaValidation: m.Transform.SkipSchemaValidation,
		DryRun:               dryRun,
	}, nil
}

// createWriter opens the JSONL record destination: "stdout" or a path,
// optionally prefixed with file:.
func createWriter(dest, runID, sourceName string) (output.Writer, func(), error) {
	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, runID, sourceName)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, runID, sourceName)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
