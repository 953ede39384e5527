package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collection carries the descriptive metadata stamped into every edition
// record.
type Collection struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Size is the pixel size of the output canvas.
type Size struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// WorkerSlots bounds the number of concurrent render workers. Selection and
// duplicate detection always run on a single owner.
type WorkerSlots struct {
	Render int `yaml:"render" json:"render"`
}

// LokiConfig enables forwarding of log lines to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	URL     string            `yaml:"url" json:"url"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty" json:"level,omitempty"`
	Format string     `yaml:"format,omitempty" json:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty" json:"loki,omitempty"`
}

// TelemetryConfig controls the metrics collector.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// Config describes one generation run. It is read-only for the duration of
// the run.
type Config struct {
	LayersDir      string      `yaml:"layers_dir" json:"layers_dir"`
	OutputDir      string      `yaml:"output_dir" json:"output_dir"`
	LayerOrder     []string    `yaml:"layer_order,omitempty" json:"layer_order,omitempty"`
	ExcludedLayers []string    `yaml:"excluded_layers,omitempty" json:"excluded_layers,omitempty"`
	MappingSets    []string    `yaml:"mapping_sets,omitempty" json:"mapping_sets,omitempty"`
	Collection     Collection  `yaml:"collection" json:"collection"`
	Size           Size        `yaml:"size" json:"size"`
	Workers        WorkerSlots `yaml:"workers,omitempty" json:"workers,omitempty"`

	Logging   LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// MappingSet is a named, reusable bundle of rarity and inclusion/exclusion
// rules. Rarity values are integer percentages; trait rarity keys use the
// "Layer:Trait" form. Constraints are expression sources evaluated per
// candidate trait during selection.
type MappingSet struct {
	LayerRarities map[string]int `yaml:"layer_rarities,omitempty" json:"layer_rarities,omitempty"`
	TraitRarities map[string]int `yaml:"rarities,omitempty" json:"rarities,omitempty"`
	IncludePairs  []Pair         `yaml:"include_pairs,omitempty" json:"include_pairs,omitempty"`
	ExcludePairs  []Pair         `yaml:"exclude_pairs,omitempty" json:"exclude_pairs,omitempty"`
	Constraints   []string       `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

const (
	defaultWidth  = 980
	defaultHeight = 1280
)

// Load reads a configuration file. YAML is the primary format; files ending
// in ".cue" are evaluated as CUE before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		if err := decodeCUE(path, data, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate applies defaults and rejects structurally invalid settings. A
// missing layers directory is deliberately not an error here; an absent
// directory yields an empty catalog and therefore zero successful editions.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.Size.Width == 0 && c.Size.Height == 0 {
		c.Size = Size{Width: defaultWidth, Height: defaultHeight}
	}
	if c.Size.Width <= 0 || c.Size.Height <= 0 {
		return fmt.Errorf("size must be positive, got %dx%d", c.Size.Width, c.Size.Height)
	}
	if c.Collection.Name == "" {
		c.Collection.Name = "Collection"
	}
	if c.Workers.Render <= 0 {
		c.Workers.Render = 1
	}
	seen := make(map[string]struct{}, len(c.LayerOrder))
	for _, layer := range c.LayerOrder {
		if strings.TrimSpace(layer) == "" {
			return fmt.Errorf("layer_order contains an empty layer name")
		}
		if _, ok := seen[layer]; ok {
			return fmt.Errorf("layer_order lists layer %q twice", layer)
		}
		seen[layer] = struct{}{}
	}
	return nil
}

// Validate checks that every rarity key parses as a trait key. Pairs are
// validated during decoding.
func (m *MappingSet) Validate() error {
	if m == nil {
		return fmt.Errorf("mapping set must not be nil")
	}
	keys := make([]string, 0, len(m.TraitRarities))
	for key := range m.TraitRarities {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := ParseKey(key); err != nil {
			return fmt.Errorf("trait rarity: %w", err)
		}
	}
	for layer := range m.LayerRarities {
		if strings.TrimSpace(layer) == "" {
			return fmt.Errorf("layer rarity: layer name must not be empty")
		}
	}
	for _, src := range m.Constraints {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("constraint expression must not be empty")
		}
	}
	return nil
}
