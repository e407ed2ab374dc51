package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopathways/pkg/grid"
	"github.com/3leaps/gopathways/pkg/loader"
	"github.com/3leaps/gopathways/pkg/source"
)

// validManifestYAML returns a minimal valid manifest in YAML format.
func validManifestYAML() string {
	return `version: "1.0"
sources:
  - name: Springfield
    spreadsheet_id: sheet-123
`
}

// validManifestJSON returns a minimal valid manifest in JSON format.
func validManifestJSON() string {
	return `{
  "version": "1.0",
  "sources": [{"name": "Springfield", "spreadsheet_id": "sheet-123"}]
}`
}

// fullManifestYAML returns a manifest with every section populated.
func fullManifestYAML() string {
	return `$schema: https://schemas.3leaps.dev/gopathways/v1.0.0/job-manifest.schema.json
version: "1.0"
sources:
  - name: Goodwill Springfield
    spreadsheet_id: sheet-123
    range: "Form Responses 1!1:5000"
  - name: Goodwill Shelbyville
    file: ./exports/shelbyville.csv
sheets:
  credentials_file: /etc/gopathways/sa.json
  rate_limit: 0.5
  concurrency: 4
store:
  url: postgres://pathways@localhost/pathways
  table: programs
transform:
  sentinel: "2099-09-09"
  country: CA
  opt_in: "Oui"
  timezone: America/New_York
  timestamp_layouts: ["2006-01-02 15:04:05"]
  header_overrides:
    "Nom du programme": program_name
load:
  error_policy: lenient
reconcile:
  remove_deleted: false
export:
  destination: s3://feeds/pathways.json
  region: us-east-1
  force_path_style: true
output:
  destination: file:/tmp/run.jsonl
`
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, m *Manifest)
	}{
		{
			name:     "valid YAML manifest",
			content:  validManifestYAML(),
			filename: "job.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				require.Len(t, m.Sources, 1)
				assert.Equal(t, "sheet-123", m.Sources[0].SpreadsheetID)

				require.NotNil(t, m.Sheets.RateLimit)
				assert.Equal(t, DefaultRateLimit, *m.Sheets.RateLimit)
				assert.Equal(t, DefaultConcurrency, m.Sheets.Concurrency)
				assert.Equal(t, DefaultCountry, m.Transform.Country)
				assert.Equal(t, DefaultOptIn, m.Transform.OptIn)
				assert.Equal(t, DefaultErrorPolicy, m.Load.ErrorPolicy)
				assert.Equal(t, ScopeSource, m.Load.WatermarkScope)
				assert.Equal(t, DefaultDestination, m.Output.Destination)
				assert.True(t, m.Reconcile.DeletedEnabled())
				assert.True(t, m.Reconcile.OptedOutEnabled())
			},
		},
		{
			name:     "valid JSON manifest",
			content:  validManifestJSON(),
			filename: "job.json",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "Springfield", m.Sources[0].Name)
			},
		},
		{
			name:     "full manifest with all options",
			content:  fullManifestYAML(),
			filename: "full.yaml",
			validate: func(t *testing.T, m *Manifest) {
				require.Len(t, m.Sources, 2)
				assert.Equal(t, "./exports/shelbyville.csv", m.Sources[1].File)
				assert.Equal(t, 0.5, *m.Sheets.RateLimit)
				assert.Equal(t, 4, m.Sheets.Concurrency)
				assert.Equal(t, "programs", m.Store.Table)
				assert.Equal(t, "CA", m.Transform.Country)
				assert.Equal(t, "Oui", m.Transform.OptIn)
				assert.Equal(t, "lenient", m.Load.ErrorPolicy)
				assert.False(t, m.Reconcile.DeletedEnabled())
				assert.True(t, m.Reconcile.OptedOutEnabled())
				assert.True(t, m.Export.ForcePathStyle)
				assert.Equal(t, "file:/tmp/run.jsonl", m.Output.Destination)

				policy, err := m.Load.Policy()
				require.NoError(t, err)
				assert.Equal(t, loader.PolicyLenient, policy)
			},
		},
		{
			name:     "yml extension works",
			content:  validManifestYAML(),
			filename: "job.yml",
		},
		{
			name:        "empty file",
			content:     "",
			filename:    "empty.yaml",
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid YAML syntax",
			content:     "version: [1.0\nsources:",
			filename:    "bad.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "invalid JSON syntax",
			content:     `{"version": "1.0",`,
			filename:    "bad.json",
			wantErr:     true,
			errContains: "invalid JSON",
		},
		{
			name:     "wrong version",
			content:  "version: \"2.0\"\nsources:\n  - name: a\n    spreadsheet_id: x\n",
			filename: "wrong-version.yaml",
			wantErr:  true,
		},
		{
			name:     "no sources",
			content:  "version: \"1.0\"\nsources: []\n",
			filename: "no-sources.yaml",
			wantErr:  true,
		},
		{
			name:     "source with both sheet and file",
			content:  "version: \"1.0\"\nsources:\n  - name: a\n    spreadsheet_id: x\n    file: a.csv\n",
			filename: "both.yaml",
			wantErr:  true,
		},
		{
			name:     "store with both path and url",
			content:  validManifestYAML() + "store:\n  path: a.db\n  url: libsql://db.example\n",
			filename: "store.yaml",
			wantErr:  true,
		},
		{
			name:     "unknown error policy",
			content:  validManifestYAML() + "load:\n  error_policy: strict\n",
			filename: "policy.yaml",
			wantErr:  true,
		},
		{
			name:        "unknown field rejected",
			content:     validManifestYAML() + "scheduler: daily\n",
			filename:    "unknown-field.yaml",
			wantErr:     true,
			errContains: "additional",
		},
		{
			name:        "unknown timezone",
			content:     validManifestYAML() + "transform:\n  timezone: Mars/Olympus\n",
			filename:    "tz.yaml",
			wantErr:     true,
			errContains: "/transform/timezone",
		},
		{
			name:        "impossible sentinel date",
			content:     validManifestYAML() + "transform:\n  sentinel: \"2099-13-45\"\n",
			filename:    "sentinel.yaml",
			wantErr:     true,
			errContains: "/transform/sentinel",
		},
		{
			name: "global watermark with several sources",
			content: `version: "1.0"
sources:
  - name: a
    spreadsheet_id: x
  - name: b
    spreadsheet_id: y
load:
  watermark_scope: global
`,
			filename:    "global.yaml",
			wantErr:     true,
			errContains: "exactly one source",
		},
		{
			name: "global watermark with one source",
			content: validManifestYAML() + `load:
  watermark_scope: global
`,
			filename: "global-one.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.True(t, m.Load.Global())
			},
		},
		{
			name: "duplicate source names",
			content: `version: "1.0"
sources:
  - name: a
    spreadsheet_id: x
  - name: a
    spreadsheet_id: y
`,
			filename:    "dup.yaml",
			wantErr:     true,
			errContains: "duplicate source name",
		},
		{
			name: "same spreadsheet twice",
			content: `version: "1.0"
sources:
  - name: a
    spreadsheet_id: x
  - name: b
    spreadsheet_id: x
`,
			filename:    "dup-id.yaml",
			wantErr:     true,
			errContains: "already configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			m, err := Load(path)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.errContains),
						"error should contain %q", tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, m)
			if tt.validate != nil {
				tt.validate(t, m)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/job.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadFromBytes(t *testing.T) {
	t.Run("auto-detect YAML", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "")
		require.NoError(t, err)
		assert.Equal(t, "Springfield", m.Sources[0].Name)
	})

	t.Run("auto-detect JSON", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestJSON()), "job.conf")
		require.NoError(t, err)
		assert.Equal(t, "sheet-123", m.Sources[0].SpreadsheetID)
	})
}

func TestLoadFromReader(t *testing.T) {
	m, err := LoadFromReader(strings.NewReader(validManifestYAML()), "job.yaml")
	require.NoError(t, err)
	assert.Len(t, m.Sources, 1)
}

func TestApplyDefaults(t *testing.T) {
	t.Run("preserves explicit values", func(t *testing.T) {
		zero := 0.0
		m := &Manifest{
			Sheets:    SheetsConfig{RateLimit: &zero, Concurrency: 8},
			Transform: TransformConfig{Country: "MX", OptIn: "Si"},
			Load:      LoadConfig{ErrorPolicy: "lenient", WatermarkScope: ScopeGlobal},
			Output:    OutputConfig{Destination: "file:/tmp/x.jsonl"},
		}
		m.ApplyDefaults()

		assert.Equal(t, 0.0, *m.Sheets.RateLimit)
		assert.Equal(t, 8, m.Sheets.Concurrency)
		assert.Equal(t, "MX", m.Transform.Country)
		assert.Equal(t, "Si", m.Transform.OptIn)
		assert.Equal(t, "lenient", m.Load.ErrorPolicy)
		assert.Equal(t, ScopeGlobal, m.Load.WatermarkScope)
		assert.Equal(t, "file:/tmp/x.jsonl", m.Output.Destination)
	})
}

func TestSourcesAndRefs(t *testing.T) {
	m := &Manifest{Sources: []SourceConfig{
		{Name: "Goodwill Springfield", SpreadsheetID: "s1"},
		{Name: "Goodwill Shelbyville", SpreadsheetID: "s2", Range: "A1:Z10"},
		{Name: "Archive", File: "archive.csv"},
	}}

	refs := m.Refs()
	require.Len(t, refs, 3)
	assert.Equal(t, source.Ref{Name: "Goodwill Springfield", Kind: source.KindSheets, ID: "s1"}, refs[0])
	assert.Equal(t, "A1:Z10", refs[1].Range)
	assert.Equal(t, source.KindFile, refs[2].Kind)
	assert.Equal(t, "archive.csv", refs[2].ID)

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{name: "empty selects all", pattern: "", want: []string{"Goodwill Springfield", "Goodwill Shelbyville", "Archive"}},
		{name: "prefix glob", pattern: "Goodwill*", want: []string{"Goodwill Springfield", "Goodwill Shelbyville"}},
		{name: "exact", pattern: "Archive", want: []string{"Archive"}},
		{name: "no match", pattern: "Capital*", wantErr: true},
		{name: "bad pattern", pattern: "Goodwill[", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.SelectSources(tt.pattern)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, s := range got {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestTransformHelpers(t *testing.T) {
	tr := TransformConfig{HeaderOverrides: map[string]string{"Nom": grid.FieldProgramName}}
	hm := tr.HeaderMap()
	assert.Equal(t, grid.FieldProgramName, hm["Nom"])
	assert.Equal(t, grid.FieldProgramName, hm["Program Name"])

	loc, err := tr.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	tr.Timezone = "America/Chicago"
	loc, err = tr.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestCredentialEnvLookups(t *testing.T) {
	t.Setenv("PATHWAYS_SA", `{"type":"service_account"}`)
	t.Setenv("PATHWAYS_DB_TOKEN", "tok")

	assert.Equal(t, `{"type":"service_account"}`, SheetsConfig{CredentialsEnv: "PATHWAYS_SA"}.CredentialsJSON())
	assert.Empty(t, SheetsConfig{}.CredentialsJSON())
	assert.Equal(t, "tok", StoreConfig{AuthTokenEnv: "PATHWAYS_DB_TOKEN"}.AuthToken())
}

func TestValidationErrors(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/sources", Message: "required"}}
		assert.Equal(t, "/sources: required", errs.Error())
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/version", Message: "required"},
			{Path: "/sources", Message: "required"},
		}
		assert.Contains(t, errs.Error(), "2 errors")
	})

	t.Run("unwrap returns ErrValidationFailed", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/x", Message: "bad"}}
		assert.True(t, errors.Is(errs, ErrValidationFailed))
	})

	t.Run("without path", func(t *testing.T) {
		assert.Equal(t, "something wrong", ValidationError{Message: "something wrong"}.Error())
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid manifest passes", func(t *testing.T) {
		m := &Manifest{
			Version: "1.0",
			Sources: []SourceConfig{{Name: "a", SpreadsheetID: "x"}},
		}
		assert.NoError(t, Validate(m))
	})

	t.Run("source without sheet or file fails", func(t *testing.T) {
		m := &Manifest{
			Version: "1.0",
			Sources: []SourceConfig{{Name: "a"}},
		}
		err := Validate(m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})

	t.Run("works from arbitrary directory", func(t *testing.T) {
		originalDir, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(originalDir) })

		m := &Manifest{Version: "1.0", Sources: []SourceConfig{{Name: "a", File: "a.csv"}}}
		assert.NoError(t, Validate(m))
	})
}
