// Package metadata builds and persists the attribute record accompanying
// each accepted edition.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/timzifer/layerforge/internal/config"
)

// Attribute names one concrete trait of an edition.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Record is the persisted per-edition document.
type Record struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
	Edition     int         `json:"edition"`
}

// Build assembles the record for one edition. Only layers with a concrete
// selection contribute an attribute, in effective layer order.
func Build(collection config.Collection, edition int, imageName string, order []string, selected map[string]string) Record {
	attributes := make([]Attribute, 0, len(selected))
	for _, layer := range order {
		trait, ok := selected[layer]
		if !ok {
			continue
		}
		attributes = append(attributes, Attribute{TraitType: layer, Value: trait})
	}
	return Record{
		Name:        fmt.Sprintf("%s #%d", collection.Name, edition),
		Description: collection.Description,
		Image:       imageName,
		Attributes:  attributes,
		Edition:     edition,
	}
}

// Write persists the record as indented UTF-8 JSON.
func (r Record) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
