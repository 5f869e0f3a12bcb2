package curation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AssetKindDemographic = "demographic"
	AssetKindEvent       = "event"
)

// SourceConfig describes one table that can supply values for an asset.
// Columns maps internal field names to source column names; a patient_id
// mapping is mandatory.
type SourceConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Table       string            `yaml:"table" json:"table"`
	Priority    int               `yaml:"priority" json:"priority"`
	Quality     Quality           `yaml:"quality" json:"quality"`
	Coverage    float64           `yaml:"coverage" json:"coverage"`
	LastUpdated string            `yaml:"last_updated" json:"last_updated"`
	Columns     map[string]string `yaml:"columns" json:"columns"`
}

func (s SourceConfig) LastUpdatedDate() time.Time {
	if s.LastUpdated == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}

type AssetConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Kind    string         `yaml:"kind" json:"kind"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
}

type Config struct {
	Assets []AssetConfig `yaml:"assets" json:"assets"`
}

func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("curation config declares no assets")
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Name == "" {
			return fmt.Errorf("curation config contains an asset with no name")
		}
		if _, ok := seen[asset.Name]; ok {
			return fmt.Errorf("asset %s configured more than once", asset.Name)
		}
		seen[asset.Name] = struct{}{}
		if asset.Kind != AssetKindDemographic && asset.Kind != AssetKindEvent {
			return fmt.Errorf("asset %s: unknown kind %q", asset.Name, asset.Kind)
		}
		if len(asset.Sources) == 0 {
			return fmt.Errorf("asset %s has no sources", asset.Name)
		}
		sourceNames := make(map[string]struct{}, len(asset.Sources))
		for _, src := range asset.Sources {
			if src.Name == "" {
				return fmt.Errorf("asset %s: source with no name", asset.Name)
			}
			if _, ok := sourceNames[src.Name]; ok {
				return fmt.Errorf("asset %s: source %s configured more than once", asset.Name, src.Name)
			}
			sourceNames[src.Name] = struct{}{}
			if src.Table == "" {
				return fmt.Errorf("asset %s: source %s has no table", asset.Name, src.Name)
			}
			if src.Priority <= 0 {
				return fmt.Errorf("asset %s: source %s priority must be a positive integer", asset.Name, src.Name)
			}
			if !src.Quality.Valid() {
				return fmt.Errorf("asset %s: source %s has invalid quality %q", asset.Name, src.Name, src.Quality)
			}
			if src.Coverage < 0 || src.Coverage > 1 {
				return fmt.Errorf("asset %s: source %s coverage %v outside [0,1]", asset.Name, src.Name, src.Coverage)
			}
			if _, ok := src.Columns["patient_id"]; !ok {
				return fmt.Errorf("asset %s: source %s is missing a patient_id column mapping", asset.Name, src.Name)
			}
		}
	}
	return nil
}

// Asset looks up an asset configuration by name. Unknown assets are a
// configuration error.
func (c Config) Asset(name string) (AssetConfig, error) {
	for _, asset := range c.Assets {
		if asset.Name == name {
			return asset, nil
		}
	}
	return AssetConfig{}, fmt.Errorf("unknown asset %q", name)
}

// ApplyPreferredSource promotes the named source ahead of every other source
// for the asset by forcing its priority below the configured minimum. Unknown
// source names are a configuration error.
func ApplyPreferredSource(asset AssetConfig, preferred string) (AssetConfig, error) {
	if preferred == "" {
		return asset, nil
	}
	found := false
	sources := make([]SourceConfig, len(asset.Sources))
	copy(sources, asset.Sources)
	for i := range sources {
		if sources[i].Name == preferred {
			sources[i].Priority = 0
			found = true
		}
	}
	if !found {
		return AssetConfig{}, fmt.Errorf("asset %s: preferred source %q is not configured", asset.Name, preferred)
	}
	asset.Sources = sources
	return asset, nil
}
