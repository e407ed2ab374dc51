// Package manifest provides loading and validation of gopathways job
// manifests.
//
// A job manifest is a YAML or JSON file naming the intake sheets to read,
// the program store, and how rows are transformed, loaded, reconciled and
// exported. Manifests are validated against an embedded JSON Schema before
// use; unknown properties are rejected.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	sources:
//	  - name: Goodwill Springfield
//	    spreadsheet_id: 1x2y3z
//	  - name: Local export
//	    file: ./exports/intake.csv
//	sheets:
//	  credentials_file: /etc/gopathways/sa.json
//	  rate_limit: 1
//	store:
//	  path: ./pathways.db
//	reconcile:
//	  remove_deleted: true
//	  remove_opted_out: true
//	export:
//	  destination: s3://feeds/pathways.json
package manifest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/gopathways/pkg/grid"
	"github.com/3leaps/gopathways/pkg/loader"
	"github.com/3leaps/gopathways/pkg/source"
)

// Manifest represents a validated job manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	Sources   []SourceConfig  `json:"sources" yaml:"sources"`
	Sheets    SheetsConfig    `json:"sheets,omitempty" yaml:"sheets,omitempty"`
	Store     StoreConfig     `json:"store,omitempty" yaml:"store,omitempty"`
	Transform TransformConfig `json:"transform,omitempty" yaml:"transform,omitempty"`
	Load      LoadConfig      `json:"load,omitempty" yaml:"load,omitempty"`
	Reconcile ReconcileConfig `json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Export    ExportConfig    `json:"export,omitempty" yaml:"export,omitempty"`
	Output    OutputConfig    `json:"output,omitempty" yaml:"output,omitempty"`
}

// SourceConfig names one intake sheet. Exactly one of SpreadsheetID and
// File is set.
type SourceConfig struct {
	Name          string `json:"name" yaml:"name"`
	SpreadsheetID string `json:"spreadsheet_id,omitempty" yaml:"spreadsheet_id,omitempty"`
	File          string `json:"file,omitempty" yaml:"file,omitempty"`

	// Range overrides sheets.range for this source.
	Range string `json:"range,omitempty" yaml:"range,omitempty"`
}

// Ref converts the source to a fetch reference.
func (s SourceConfig) Ref() source.Ref {
	if s.File != "" {
		return source.Ref{Name: s.Name, Kind: source.KindFile, ID: s.File, Range: s.Range}
	}
	return source.Ref{Name: s.Name, Kind: source.KindSheets, ID: s.SpreadsheetID, Range: s.Range}
}

// SheetsConfig configures the Google Sheets client.
type SheetsConfig struct {
	// CredentialsFile is a service-account key file.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// CredentialsEnv names an environment variable holding the key JSON.
	CredentialsEnv string `json:"credentials_env,omitempty" yaml:"credentials_env,omitempty"`

	// RateLimit caps requests per second (0 = unlimited). Default: 1.
	RateLimit *float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Concurrency bounds concurrent sheet fetches. Default: 2.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Range is the default A1 range. Default: every row of the first sheet.
	Range string `json:"range,omitempty" yaml:"range,omitempty"`
}

// CredentialsJSON resolves CredentialsEnv.
func (s SheetsConfig) CredentialsJSON() string {
	if s.CredentialsEnv == "" {
		return ""
	}
	return os.Getenv(s.CredentialsEnv)
}

// StoreConfig selects the program store. Empty fields fall back to the
// application config.
type StoreConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`

	// AuthTokenEnv names an environment variable holding a libsql token.
	AuthTokenEnv string `json:"auth_token_env,omitempty" yaml:"auth_token_env,omitempty"`

	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// AuthToken resolves AuthTokenEnv.
func (s StoreConfig) AuthToken() string {
	if s.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(s.AuthTokenEnv)
}

// TransformConfig configures row normalization and mapping.
type TransformConfig struct {
	// Sentinel replaces unparseable application deadlines (YYYY-MM-DD).
	Sentinel string `json:"sentinel,omitempty" yaml:"sentinel,omitempty"`

	// Country is the ISO 3166 alpha-2 code stamped on addresses.
	Country string `json:"country,omitempty" yaml:"country,omitempty"`

	// OptIn is the PathwaysEnabled value that publishes a program.
	OptIn string `json:"opt_in,omitempty" yaml:"opt_in,omitempty"`

	// Timezone interprets sheet timestamps (IANA name). Default: UTC.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// TimestampLayouts replace the default Go time layouts, tried in order.
	TimestampLayouts []string `json:"timestamp_layouts,omitempty" yaml:"timestamp_layouts,omitempty"`

	// HeaderOverrides add or replace sheet label to field mappings.
	HeaderOverrides map[string]string `json:"header_overrides,omitempty" yaml:"header_overrides,omitempty"`

	SkipSchemaValidation bool `json:"skip_schema_validation,omitempty" yaml:"skip_schema_validation,omitempty"`
}

// HeaderMap returns the default header map with overrides applied.
func (t TransformConfig) HeaderMap() grid.HeaderMap {
	return grid.DefaultHeaderMap().Merge(t.HeaderOverrides)
}

// Location loads Timezone.
func (t TransformConfig) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// LoadConfig configures the upsert step.
type LoadConfig struct {
	// ErrorPolicy is "typed" (default) or "lenient".
	ErrorPolicy string `json:"error_policy,omitempty" yaml:"error_policy,omitempty"`

	// WatermarkScope is "source" (default) or "global".
	WatermarkScope string `json:"watermark_scope,omitempty" yaml:"watermark_scope,omitempty"`
}

// Policy parses ErrorPolicy.
func (l LoadConfig) Policy() (loader.ErrorPolicy, error) {
	return loader.ParsePolicy(l.ErrorPolicy)
}

// Global reports whether the watermark spans every source.
func (l LoadConfig) Global() bool {
	return l.WatermarkScope == ScopeGlobal
}

// ReconcileConfig enables the removal steps. Both default to true.
type ReconcileConfig struct {
	RemoveDeleted  *bool `json:"remove_deleted,omitempty" yaml:"remove_deleted,omitempty"`
	RemoveOptedOut *bool `json:"remove_opted_out,omitempty" yaml:"remove_opted_out,omitempty"`
}

// DeletedEnabled reports whether programs missing from the sheet are removed.
func (r ReconcileConfig) DeletedEnabled() bool {
	return r.RemoveDeleted == nil || *r.RemoveDeleted
}

// OptedOutEnabled reports whether programs no longer opted in are removed.
func (r ReconcileConfig) OptedOutEnabled() bool {
	return r.RemoveOptedOut == nil || *r.RemoveOptedOut
}

// ExportConfig configures the DataFeed export.
type ExportConfig struct {
	// Destination is a local path, file:<path>, s3://bucket/key or
	// gs://bucket/key.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// S3 connection settings.
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// OutputConfig configures the JSONL run record stream.
type OutputConfig struct {
	// Destination is "stdout" or "file:/path/to/output.jsonl".
	// Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	DefaultRateLimit   = 1.0
	DefaultConcurrency = 2

	DefaultCountry = "US"
	DefaultOptIn   = "Yes"

	DefaultErrorPolicy = string(loader.PolicyTyped)

	ScopeSource = "source"
	ScopeGlobal = "global"

	DefaultExportName  = "Pathways programs"
	DefaultDestination = "stdout"
)

// ApplyDefaults fills in default values for optional fields. It runs after
// schema validation.
func (m *Manifest) ApplyDefaults() {
	if m.Sheets.RateLimit == nil {
		rl := DefaultRateLimit
		m.Sheets.RateLimit = &rl
	}
	if m.Sheets.Concurrency == 0 {
		m.Sheets.Concurrency = DefaultConcurrency
	}

	if m.Transform.Country == "" {
		m.Transform.Country = DefaultCountry
	}
	if m.Transform.OptIn == "" {
		m.Transform.OptIn = DefaultOptIn
	}

	if m.Load.ErrorPolicy == "" {
		m.Load.ErrorPolicy = DefaultErrorPolicy
	}
	if m.Load.WatermarkScope == "" {
		m.Load.WatermarkScope = ScopeSource
	}

	if m.Export.Name == "" {
		m.Export.Name = DefaultExportName
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
}

// Refs returns fetch references for every source, in manifest order.
func (m *Manifest) Refs() []source.Ref {
	refs := make([]source.Ref, 0, len(m.Sources))
	for _, s := range m.Sources {
		refs = append(refs, s.Ref())
	}
	return refs
}

// SelectSources returns the sources whose name matches the doublestar
// pattern. An empty pattern selects every source.
func (m *Manifest) SelectSources(pattern string) ([]SourceConfig, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return append([]SourceConfig(nil), m.Sources...), nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid source pattern %q", pattern)
	}

	var out []SourceConfig
	for _, s := range m.Sources {
		if ok, _ := doublestar.Match(pattern, s.Name); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no source matches %q", pattern)
	}
	return out, nil
}
