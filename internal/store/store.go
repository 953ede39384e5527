package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/timzifer/layerforge/internal/config"
)

const (
	configsFile  = "saved_configs.json"
	mappingsFile = "saved_mappings.json"
)

// Store persists named configurations and mapping sets as JSON documents in
// a single directory. Missing files are treated as empty stores so a fresh
// checkout works without any setup.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// Open returns a store rooted at dir. The directory is created lazily on the
// first save.
func Open(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// ConfigsPath returns the path of the configurations file.
func (s *Store) ConfigsPath() string {
	return filepath.Join(s.dir, configsFile)
}

// MappingsPath returns the path of the mapping sets file.
func (s *Store) MappingsPath() string {
	return filepath.Join(s.dir, mappingsFile)
}

// Configs loads all named configurations. Every loaded configuration is
// validated so malformed entries surface here instead of mid-run.
func (s *Store) Configs() (map[string]*config.Config, error) {
	configs := make(map[string]*config.Config)
	if err := loadJSON(s.ConfigsPath(), &configs); err != nil {
		return nil, err
	}
	for name, cfg := range configs {
		if cfg == nil {
			delete(configs, name)
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config %q: %w", name, err)
		}
	}
	return configs, nil
}

// MappingSets loads all named mapping sets, validating trait keys up front.
func (s *Store) MappingSets() (map[string]*config.MappingSet, error) {
	sets := make(map[string]*config.MappingSet)
	if err := loadJSON(s.MappingsPath(), &sets); err != nil {
		return nil, err
	}
	for name, set := range sets {
		if set == nil {
			delete(sets, name)
			continue
		}
		if err := set.Validate(); err != nil {
			return nil, fmt.Errorf("mapping set %q: %w", name, err)
		}
	}
	return sets, nil
}

// SaveConfig writes or replaces one named configuration.
func (s *Store) SaveConfig(name string, cfg *config.Config) error {
	if name == "" {
		return errors.New("config name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %q: %w", name, err)
	}
	configs, err := s.Configs()
	if err != nil {
		return err
	}
	configs[name] = cfg
	return s.writeJSON(s.ConfigsPath(), configs)
}

// SaveMappingSet writes or replaces one named mapping set.
func (s *Store) SaveMappingSet(name string, set *config.MappingSet) error {
	if name == "" {
		return errors.New("mapping set name must not be empty")
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("mapping set %q: %w", name, err)
	}
	sets, err := s.MappingSets()
	if err != nil {
		return err
	}
	sets[name] = set
	return s.writeJSON(s.MappingsPath(), sets)
}

// Reset removes both store files and clears the generated outputs of every
// known configuration.
func (s *Store) Reset() error {
	configs, err := s.Configs()
	if err != nil {
		s.logger.Warn().Err(err).Msg("reset: discarding unreadable config store")
		configs = nil
	}
	for name, cfg := range configs {
		if err := ClearOutputs(cfg.OutputDir); err != nil {
			s.logger.Warn().Err(err).Str("config", name).Msg("reset: failed to clear outputs")
		}
	}
	for _, path := range []string{s.ConfigsPath(), s.MappingsPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// ClearOutputs removes the images and metadata directories below the given
// output root.
func ClearOutputs(outputDir string) error {
	if outputDir == "" {
		return nil
	}
	for _, sub := range []string{"images", "metadata"} {
		path := filepath.Join(outputDir, sub)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func loadJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) writeJSON(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
