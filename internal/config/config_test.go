package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pfs.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "auto", cfg.Input.Format)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Equal(t, "diameter", cfg.Input.DiameterPrefix)
	assert.Contains(t, cfg.Input.DateLayouts, "2006-01-02")
	assert.Equal(t, 0, cfg.Cohort.ExpectedSize)
	assert.Equal(t, 3, cfg.Cohort.SitePrefixLen)
	assert.Equal(t, 0, cfg.QC.ProgressionGapMinDays)
	assert.Equal(t, 60, cfg.QC.ProgressionGapMaxDays)
	assert.InDelta(t, -30.0, cfg.RECIST.PRThresholdPct, 0.001)
	assert.InDelta(t, 20.0, cfg.RECIST.PDThresholdPct, 0.001)
	assert.InDelta(t, 5.0, cfg.RECIST.PDMinIncreaseMM, 0.001)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Empty(t, cfg.Vocab.ReasonsPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/pfs
log:
  level: debug
  format: console
cohort:
  expected_size: 120
  withdrawn: ["004-0012"]
input:
  sheets:
    discontinuation: Descontinuacao
  columns:
    intake:
      first_dose_date: "Data da primeira dose"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 120, cfg.Cohort.ExpectedSize)
	assert.Equal(t, []string{"004-0012"}, cfg.Cohort.Withdrawn)
	assert.Equal(t, "Descontinuacao", cfg.Input.Sheets["discontinuation"])
	assert.Equal(t, "Data da primeira dose", cfg.Input.Columns["intake"]["first_dose_date"])
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Cohort.SitePrefixLen)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PFS_STORE_DRIVER", "sqlite")
	t.Setenv("PFS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PFS_COHORT_EXPECTED_SIZE", "87")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 87, cfg.Cohort.ExpectedSize)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output:\n  format: pdf\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Input.Format = "auto"
	cfg.Input.DateLayouts = []string{"2006-01-02"}
	cfg.Output.Format = "csv"
	cfg.QC.ProgressionGapMaxDays = 60
	return cfg
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())

	cfg := validDefaults()
	cfg.Input.Format = "parquet"
	assert.ErrorContains(t, cfg.Validate(), "unsupported input format")

	cfg = validDefaults()
	cfg.Cohort.ExpectedSize = -1
	assert.ErrorContains(t, cfg.Validate(), "expected_size")

	cfg = validDefaults()
	cfg.QC.ProgressionGapMinDays = 90
	assert.ErrorContains(t, cfg.Validate(), "qc gap range is empty")

	cfg = validDefaults()
	cfg.Input.DateLayouts = nil
	assert.ErrorContains(t, cfg.Validate(), "date_layouts")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
