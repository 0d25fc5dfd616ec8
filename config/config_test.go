package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadDecodesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inputlayer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/tmp/kg"
auto_create = false
flush_threshold = 500
worker_pool_size = 8
query_timeout = "5s"
max_result_tuples = 100
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/kg", cfg.DataDir)
	require.False(t, cfg.AutoCreate)
	require.Equal(t, 500, cfg.FlushThreshold)
	require.Equal(t, 8, cfg.WorkerPoolSize)
	require.Equal(t, "5s", cfg.QueryTimeout)
	require.Equal(t, 100, cfg.MaxResultTuples)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveWorkerPool(t *testing.T) {
	cfg := Default()
	cfg.WorkerPoolSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnparseableTimeout(t *testing.T) {
	cfg := Default()
	cfg.QueryTimeout = "not-a-duration"
	require.Error(t, cfg.Validate())
}

func TestLimitsFallsBackToDefaultsWhenUnset(t *testing.T) {
	cfg := Config{DataDir: "./data", WorkerPoolSize: 1}
	limits := cfg.Limits()
	require.Greater(t, limits.MaxResultTuples, 0)
	require.Greater(t, limits.MaxIntermediateSize, 0)
}

func TestStorageConfigCarriesFields(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/kg2"
	sc := cfg.StorageConfig()
	require.Equal(t, "/tmp/kg2", sc.DataDir)
	require.Equal(t, cfg.AutoCreate, sc.AutoCreate)
	require.Equal(t, cfg.FlushThreshold, sc.FlushThreshold)
}
