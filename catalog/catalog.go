// Package catalog discovers the available trait images below a layers
// directory. The expected layout is one subdirectory per layer containing
// one PNG file per trait.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the accepted trait image extension.
const Ext = ".png"

// ErrImageNotFound is returned when neither an exact nor a case-insensitive
// filename match exists for a trait.
var ErrImageNotFound = errors.New("trait image not found")

// Catalog maps layer names to their trait names, both in sorted order.
// Layers without any qualifying image file are omitted entirely.
type Catalog struct {
	traits map[string][]string
}

// Load scans the immediate subdirectories of layersDir. A missing or
// unreadable directory yields an empty catalog; the caller then produces
// zero successful editions instead of failing hard.
func Load(layersDir string) Catalog {
	cat := Catalog{traits: make(map[string][]string)}
	entries, err := os.ReadDir(layersDir)
	if err != nil {
		return cat
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		layer := entry.Name()
		files, err := os.ReadDir(filepath.Join(layersDir, layer))
		if err != nil {
			continue
		}
		traits := make([]string, 0, len(files))
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			name := file.Name()
			if !hasImageExt(name) {
				continue
			}
			traits = append(traits, strings.TrimSuffix(name, filepath.Ext(name)))
		}
		if len(traits) == 0 {
			continue
		}
		sort.Strings(traits)
		cat.traits[layer] = traits
	}
	return cat
}

// Traits returns the trait names of the given layer, or nil if the layer is
// unknown.
func (c Catalog) Traits(layer string) []string {
	return c.traits[layer]
}

// Has reports whether the layer exists with at least one trait.
func (c Catalog) Has(layer string) bool {
	return len(c.traits[layer]) > 0
}

// HasTrait reports whether the layer contains the exact trait name.
func (c Catalog) HasTrait(layer, trait string) bool {
	for _, t := range c.traits[layer] {
		if t == trait {
			return true
		}
	}
	return false
}

// Layers returns the discovered layer names in sorted order.
func (c Catalog) Layers() []string {
	layers := make([]string, 0, len(c.traits))
	for layer := range c.traits {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	return layers
}

// Len returns the number of discovered layers.
func (c Catalog) Len() int {
	return len(c.traits)
}

// TraitCount returns the total number of traits across all layers.
func (c Catalog) TraitCount() int {
	total := 0
	for _, traits := range c.traits {
		total += len(traits)
	}
	return total
}

// ResolveImage locates the image file backing a trait. It tries an exact
// filename match first and falls back to a case-insensitive comparison of
// filename stems within the layer directory.
func ResolveImage(layersDir, layer, trait string) (string, error) {
	layerDir := filepath.Join(layersDir, layer)
	exact := filepath.Join(layerDir, trait+Ext)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, nil
	}
	files, err := os.ReadDir(layerDir)
	if err != nil {
		return "", fmt.Errorf("layer %s: %w", layer, ErrImageNotFound)
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if !hasImageExt(name) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.EqualFold(stem, trait) {
			return filepath.Join(layerDir, name), nil
		}
	}
	return "", fmt.Errorf("%s:%s: %w", layer, trait, ErrImageNotFound)
}

func hasImageExt(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Ext)
}
