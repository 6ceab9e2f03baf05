// Package config provides configuration loading and validation for the halo
// finder. Defaults are embedded; a YAML file overrides them field by field.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all runtime parameters.
type Config struct {
	Finder FinderConfig `yaml:"finder"`
	Domain DomainConfig `yaml:"domain"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// FinderConfig parameterizes the clustering engine itself.
type FinderConfig struct {
	Threshold    float64 `yaml:"threshold"`
	SaddleFactor float64 `yaml:"saddle_factor"`
	PeakFactor   float64 `yaml:"peak_factor"`
	NumNeighbors int     `yaml:"num_neighbors"`
	NMerge       int     `yaml:"n_merge"`
	MaxRounds    int     `yaml:"max_rounds"`
}

// SaddleThreshold is the derived merge threshold for two peak chains.
func (f FinderConfig) SaddleThreshold() float64 { return f.SaddleFactor * f.Threshold }

// PeakThreshold is the derived density a chain needs to seed a group.
func (f FinderConfig) PeakThreshold() float64 { return f.PeakFactor * f.Threshold }

// DomainConfig describes the partitioning of the simulation box.
type DomainConfig struct {
	Grid     []int   `yaml:"grid"`
	Periodic []bool  `yaml:"periodic"`
	Padding  float64 `yaml:"padding"`
}

// GridDims returns the partition grid as a fixed triple.
func (d DomainConfig) GridDims() [3]int {
	return [3]int{d.Grid[0], d.Grid[1], d.Grid[2]}
}

// PeriodicAxes returns the periodicity flags as a fixed triple.
func (d DomainConfig) PeriodicAxes() [3]bool {
	return [3]bool{d.Periodic[0], d.Periodic[1], d.Periodic[2]}
}

// ServerConfig configures the catalog HTTP server.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML file over the embedded defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the finder would refuse anyway, with
// better messages.
func (c *Config) Validate() error {
	if c.Finder.Threshold <= 0 {
		return fmt.Errorf("config: finder.threshold must be positive, got %g", c.Finder.Threshold)
	}
	if c.Finder.SaddleFactor <= 0 || c.Finder.PeakFactor <= 0 {
		return fmt.Errorf("config: threshold factors must be positive, got saddle=%g peak=%g",
			c.Finder.SaddleFactor, c.Finder.PeakFactor)
	}
	if c.Finder.NumNeighbors < 2 {
		return fmt.Errorf("config: finder.num_neighbors must be at least 2, got %d", c.Finder.NumNeighbors)
	}
	if c.Finder.NMerge < 1 {
		return fmt.Errorf("config: finder.n_merge must be at least 1, got %d", c.Finder.NMerge)
	}
	if len(c.Domain.Grid) != 3 {
		return fmt.Errorf("config: domain.grid needs 3 entries, got %d", len(c.Domain.Grid))
	}
	for _, g := range c.Domain.Grid {
		if g < 1 {
			return fmt.Errorf("config: domain.grid entries must be at least 1, got %v", c.Domain.Grid)
		}
	}
	if len(c.Domain.Periodic) != 3 {
		return fmt.Errorf("config: domain.periodic needs 3 entries, got %d", len(c.Domain.Periodic))
	}
	if c.Domain.Padding < 0 {
		return fmt.Errorf("config: domain.padding must not be negative, got %g", c.Domain.Padding)
	}
	return nil
}
