package core

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of a vectrust.yaml config file: the same
// fields as CreateIndexConfig, tagged for YAML rather than JSON since it is
// meant to be hand-edited.
type FileConfig struct {
	Version        int            `yaml:"version"`
	DeleteIfExists bool           `yaml:"deleteIfExists"`
	DistanceMetric DistanceMetric `yaml:"distanceMetric"`
	MetadataConfig MetadataConfig `yaml:"metadataConfig"`
	HNSWConfig     HNSWConfig     `yaml:"hnswConfig"`
}

// ToCreateIndexConfig converts a loaded FileConfig to the form CreateIndex
// accepts.
func (f FileConfig) ToCreateIndexConfig() CreateIndexConfig {
	return CreateIndexConfig{
		Version:        f.Version,
		DeleteIfExists: f.DeleteIfExists,
		DistanceMetric: f.DistanceMetric,
		MetadataConfig: f.MetadataConfig,
		HNSWConfig:     f.HNSWConfig,
	}
}

// LoadConfigFile reads and parses a vectrust.yaml config file at path.
func LoadConfigFile(path string) (CreateIndexConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CreateIndexConfig{}, WrapErr("core.LoadConfigFile", KindIO, err)
	}

	cfg := DefaultCreateIndexConfig()
	fc := FileConfig{
		Version:        cfg.Version,
		DeleteIfExists: cfg.DeleteIfExists,
		DistanceMetric: cfg.DistanceMetric,
		MetadataConfig: cfg.MetadataConfig,
		HNSWConfig:     cfg.HNSWConfig,
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return CreateIndexConfig{}, WrapErr("core.LoadConfigFile", KindSerialization, err)
	}

	return fc.ToCreateIndexConfig(), nil
}

// SaveConfigFile writes cfg to path as YAML, for `vectrust create --save-config`.
func SaveConfigFile(path string, cfg CreateIndexConfig) error {
	fc := FileConfig{
		Version:        cfg.Version,
		DeleteIfExists: cfg.DeleteIfExists,
		DistanceMetric: cfg.DistanceMetric,
		MetadataConfig: cfg.MetadataConfig,
		HNSWConfig:     cfg.HNSWConfig,
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return WrapErr("core.SaveConfigFile", KindSerialization, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WrapErr("core.SaveConfigFile", KindIO, err)
	}
	return nil
}
