package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// TraitOccurrence is one entry of the post-run rarity report. Percent is
// exact to two decimal places, relative to the editions in which the trait's
// layer is present.
type TraitOccurrence struct {
	Count   int    `json:"count"`
	Percent string `json:"percent"`
}

// RarityReport maps layer name to trait name to occurrence data across the
// successful editions of one run.
type RarityReport map[string]map[string]TraitOccurrence

func buildRarityReport(counts map[string]map[string]int) RarityReport {
	report := make(RarityReport, len(counts))
	hundred := decimal.NewFromInt(100)
	for layer, traits := range counts {
		present := 0
		for _, count := range traits {
			present += count
		}
		entries := make(map[string]TraitOccurrence, len(traits))
		for trait, count := range traits {
			percent := decimal.NewFromInt(int64(count)).Mul(hundred).Div(decimal.NewFromInt(int64(present))).Round(2)
			entries[trait] = TraitOccurrence{Count: count, Percent: percent.String()}
		}
		report[layer] = entries
	}
	return report
}

func writeRarityReport(path string, counts map[string]map[string]int) error {
	report := buildRarityReport(counts)
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("encode rarity report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
