package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.False(t, cfg.Semantic.Enabled)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DOCSYNC_CONCURRENCY", "4")
	t.Setenv("DOCSYNC_SEMANTIC_SAMPLE_RATE", "0.5")
	t.Setenv("DOCSYNC_AUTO_RESOLVE_MEDIUM", "true")
	t.Setenv("DOCSYNC_PREFERRED_SIDE", "mirror")
	t.Setenv("DOCSYNC_LEDGER_PATH", ":memory:")
	t.Setenv("DOCSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Detection.Concurrency)
	assert.InDelta(t, 0.5, cfg.Detection.SemanticSampleRate, 1e-9)
	assert.True(t, cfg.Detection.AutoResolveMedium)
	assert.Equal(t, types.OriginMirror, cfg.Detection.PreferredSide)
	assert.Equal(t, ":memory:", cfg.Ledger.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFieldTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	table := []byte(`identity:
  - id
  - uuid
governed:
  - owner
free:
  - notes
`)
	require.NoError(t, os.WriteFile(path, table, 0o600))

	classes, err := LoadFieldTable(path)
	require.NoError(t, err)
	assert.Equal(t, types.FieldClassIdentity, classes["id"])
	assert.Equal(t, types.FieldClassIdentity, classes["uuid"])
	assert.Equal(t, types.FieldClassGoverned, classes["owner"])
	assert.Equal(t, types.FieldClassFree, classes["notes"])
}

func TestLoadFieldTableErrors(t *testing.T) {
	_, err := LoadFieldTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("identity: {not a list"), 0o600))
	_, err = LoadFieldTable(path)
	require.Error(t, err)
}

func TestDetectionConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*DetectionConfig)
	}{
		{"zero concurrency", func(d *DetectionConfig) { d.Concurrency = 0 }},
		{"sample rate above one", func(d *DetectionConfig) { d.SemanticSampleRate = 1.5 }},
		{"breakpoints out of order", func(d *DetectionConfig) { d.SimilarityLow = 0.99 }},
		{"merge threshold negative", func(d *DetectionConfig) { d.MergeConfidenceThreshold = -0.1 }},
		{"bad preferred side", func(d *DetectionConfig) { d.PreferredSide = "upstream" }},
		{"governed severity none", func(d *DetectionConfig) { d.GovernedFieldSeverity = types.SeverityNone }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultDetectionConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	valid := DefaultDetectionConfig()
	assert.NoError(t, valid.Validate())
}

func TestConfigValidateLedgerDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ledger.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ledger.Driver = "postgres"
	assert.Error(t, cfg.Validate()) // missing DSN
	cfg.Ledger.DSN = "postgres://localhost/conflicts"
	assert.NoError(t, cfg.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	original := DefaultDetectionConfig()
	clone := original.Clone()
	clone.FieldClasses["owner"] = types.FieldClassGoverned
	clone.Concurrency = 99

	assert.NotContains(t, original.FieldClasses, "owner")
	assert.Equal(t, 10, original.Concurrency)
}

func TestClassOfDefaultsToFree(t *testing.T) {
	cfg := DefaultDetectionConfig()
	assert.Equal(t, types.FieldClassIdentity, cfg.ClassOf("id"))
	assert.Equal(t, types.FieldClassGoverned, cfg.ClassOf("title"))
	assert.Equal(t, types.FieldClassFree, cfg.ClassOf("tags"))
	assert.Equal(t, types.FieldClassFree, cfg.ClassOf("unlisted"))
}
