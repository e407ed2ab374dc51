package cmd

import (
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })

	SetVersionInfo("0.4.0", "9f1c2ab", "2026-03-02T10:00:00Z")
	assert.Equal(t, "0.4.0", versionInfo.Version)
	assert.Equal(t, "9f1c2ab", versionInfo.Commit)
	assert.Equal(t, "2026-03-02T10:00:00Z", versionInfo.BuildDate)
}

func TestGetAppIdentity_BeforeInit(t *testing.T) {
	orig := appIdentity
	appIdentity = nil
	t.Cleanup(func() { appIdentity = orig })

	assert.Nil(t, GetAppIdentity())
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setDefaults()

	want := map[string]string{
		"server.host":         "localhost",
		"server.port":         "8080",
		"server.read_timeout": "30s",
		"logging.level":       "info",
		"logging.format":      "console",
		"store.table":         "pathways_program",
	}
	for key, val := range want {
		assert.Equal(t, val, viper.GetString(key), key)
	}
	assert.True(t, viper.GetBool("health.enabled"))
	assert.False(t, viper.GetBool("readonly"))
	assert.False(t, viper.GetBool("debug.pprof_enabled"))
}

func TestIsStoreURL(t *testing.T) {
	tests := map[string]bool{
		"libsql://pathways.turso.io":         true,
		"postgres://user@localhost/pathways": true,
		"postgresql://localhost/pathways":    true,
		"https://pathways.turso.io":          true,
		"  libsql://padded.turso.io":         true,
		"./pathways.db":                      false,
		"file:/tmp/pathways.db":              false,
		":memory:":                           false,
	}
	for in, want := range tests {
		assert.Equal(t, want, isStoreURL(in), in)
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("sheet 1x2y3z: 403 forbidden")
	err := exitError(int(foundry.ExitExternalServiceUnavailable), "Run failed", cause)

	var ce *exitCodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), ce.code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Run failed: sheet 1x2y3z: 403 forbidden (exit code ")

	assert.Equal(t, "Refused (exit code 3)", exitError(3, "Refused", nil).Error())
}

func TestExecute_ExitCodes(t *testing.T) {
	err := executeRoot(t, "validate", "--job", "does-not-exist.yaml")

	var ce *exitCodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int(foundry.ExitInvalidArgument), ce.code)
	assert.Contains(t, err.Error(), "manifest file not found")
}
