package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
	configFile  string
)

// envSpec maps one environment variable (with prefix) to a config path.
type envSpec struct {
	Name string
	Path string
}

// envSuffixes are the supported variables, without the app prefix.
var envSuffixes = map[string]string{
	"HOST":             "server.host",
	"PORT":             "server.port",
	"READ_TIMEOUT":     "server.read_timeout",
	"WRITE_TIMEOUT":    "server.write_timeout",
	"IDLE_TIMEOUT":     "server.idle_timeout",
	"SHUTDOWN_TIMEOUT": "server.shutdown_timeout",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",

	"HEALTH_ENABLED": "health.enabled",
	"DEBUG":          "debug.enabled",
	"PPROF_ENABLED":  "debug.pprof_enabled",

	"DB_PATH":       "store.path",
	"DB_URL":        "store.url",
	"DB_AUTH_TOKEN": "store.auth_token",
	"DB_TABLE":      "store.table",

	"SHEETS_CREDENTIALS_FILE": "sheets.credentials_file",

	"EXPORT_DESTINATION": "export.destination",
	"EXPORT_REGION":      "export.region",
	"EXPORT_ENDPOINT":    "export.endpoint",
	"EXPORT_PROFILE":     "export.profile",
}

// Load resolves the configuration and stores it for GetConfig. Each
// override is a nested map (e.g. {"server": {"port": 9000}}) applied above
// every other layer; later overrides win.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	if appIdentity == nil {
		appIdentity = DefaultIdentity()
	}
	configMu.Unlock()

	v := viper.New()
	for key, val := range Defaults {
		v.SetDefault(key, val)
	}

	for _, path := range configFiles() {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.Path == "" && cfg.Store.URL == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// SetConfigFile makes Load read path after the discovered config files.
// An empty path clears it.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// GetConfig returns the last loaded configuration, or nil before Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// GetIdentity returns the application identity, or nil before Load.
func GetIdentity() *Identity {
	configMu.RLock()
	defer configMu.RUnlock()
	return appIdentity
}

// DefaultStorePath is the SQLite database under the app data directory.
func DefaultStorePath() string {
	name := "gopathways"
	if id := GetIdentity(); id != nil && id.ConfigName != "" {
		name = id.ConfigName
	}
	return filepath.Join(gfconfig.GetAppDataDir(name), "pathways.db")
}

func getEnvSpecs() []envSpec {
	id := GetIdentity()
	if id == nil || id.EnvPrefix == "" {
		return []envSpec{}
	}

	specs := make([]envSpec, 0, len(envSuffixes))
	for suffix, path := range envSuffixes {
		specs = append(specs, envSpec{Name: id.EnvPrefix + suffix, Path: path})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func getUserConfigPaths() []string {
	id := GetIdentity()
	if id == nil || id.ConfigName == "" {
		return []string{}
	}

	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, id.ConfigName, "config.yaml"),
			filepath.Join(dir, id.ConfigName, "config.yml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+id.ConfigName+".yaml"))
	}
	return paths
}

func getProjectConfigPaths() []string {
	id := GetIdentity()
	if id == nil || id.ConfigName == "" {
		return nil
	}
	root, err := findProjectRoot()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(root, id.ConfigName+".yaml"),
		filepath.Join(root, "config", id.ConfigName+".yaml"),
	}
}

// configFiles returns the config files to merge, lowest precedence first.
// An explicit file is returned even when missing so Load reports it.
func configFiles() []string {
	var found []string
	for _, p := range append(getUserConfigPaths(), getProjectConfigPaths()...) {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			found = append(found, p)
		}
	}
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		found = append(found, explicit)
	}
	return found
}

// ciBoundaryVars are checked in order when running under CI.
var ciBoundaryVars = []string{"FULMEN_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"}

// findProjectRoot walks up from the working directory to the nearest
// directory holding go.mod or .git. Under CI, a workspace variable that is
// absolute, exists and contains the working directory bounds the walk.
// When no marker is found the working directory is returned.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	boundary := ""
	if isCI() {
		boundary = ciBoundary(cwd)
	}

	if root, ok := walkForMarker(cwd, boundary); ok {
		return root, nil
	}
	if boundary != "" {
		if root, ok := walkForMarker(cwd, ""); ok {
			return root, nil
		}
	}
	return cwd, nil
}

func isCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS"} {
		if strings.EqualFold(os.Getenv(name), "true") {
			return true
		}
	}
	return false
}

func ciBoundary(cwd string) string {
	for _, name := range ciBoundaryVars {
		dir := strings.TrimSpace(os.Getenv(name))
		if dir == "" || !filepath.IsAbs(dir) {
			continue
		}
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}
		rel, err := filepath.Rel(dir, cwd)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.Clean(dir)
	}
	return ""
}

func walkForMarker(start, boundary string) (string, bool) {
	dir := start
	for {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, true
			}
		}
		if boundary != "" && dir == boundary {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
