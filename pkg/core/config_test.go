package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectrust.yaml")

	cfg := DefaultCreateIndexConfig()
	cfg.DistanceMetric = Euclidean
	cfg.HNSWConfig.M = 32

	require.NoError(t, SaveConfigFile(path, cfg))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, Euclidean, loaded.DistanceMetric)
	assert.Equal(t, 32, loaded.HNSWConfig.M)
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestLoadConfigFilePartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectrust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("distanceMetric: dotProduct\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, DotProduct, cfg.DistanceMetric)
	assert.Equal(t, DefaultHNSWConfig().M, cfg.HNSWConfig.M, "fields absent from the file keep their default")
}
