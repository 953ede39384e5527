// Package selection picks one trait (or none) per layer for a single
// edition, honouring layer presence probabilities, inclusion forcing,
// exclusion filtering and constraint expressions.
package selection

import (
	"github.com/rs/zerolog"

	"github.com/timzifer/layerforge/catalog"
	"github.com/timzifer/layerforge/internal/config"
	"github.com/timzifer/layerforge/rules"
)

// Engine performs the per-edition selection walk. It is safe to reuse
// across editions; all per-edition state lives inside Pick.
//
// Inclusion forcing is strictly forward: a pair can only force layers that
// appear after its source in the effective layer order. Pairs targeting
// earlier layers are inert.
type Engine struct {
	catalog catalog.Catalog
	rules   *rules.Merged
	order   []string
	rng     Source
	logger  zerolog.Logger
}

// NewEngine builds a selection engine over the effective layer order.
func NewEngine(cat catalog.Catalog, merged *rules.Merged, order []string, rng Source, logger zerolog.Logger) *Engine {
	return &Engine{catalog: cat, rules: merged, order: order, rng: rng, logger: logger}
}

// FinalLayerOrder intersects the configured order with the catalog layers
// and removes excluded layers, preserving the configured order. An empty
// configured order defaults to the sorted discovered layers.
func FinalLayerOrder(order, excluded []string, cat catalog.Catalog) []string {
	if len(order) == 0 {
		order = cat.Layers()
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, layer := range excluded {
		skip[layer] = struct{}{}
	}
	final := make([]string, 0, len(order))
	for _, layer := range order {
		if !cat.Has(layer) {
			continue
		}
		if _, ok := skip[layer]; ok {
			continue
		}
		final = append(final, layer)
	}
	return final
}

// Pick selects traits for one edition and returns the layer to trait
// mapping. Absent layers are simply missing from the result.
func (e *Engine) Pick() map[string]string {
	selected := make(map[string]string, len(e.order))
	selectedKeys := make([]config.TraitKey, 0, len(e.order))
	forced := make(map[string]string)

	for _, layer := range e.order {
		options := e.catalog.Traits(layer)
		if len(options) == 0 {
			continue
		}

		trait, isForced := forced[layer]
		if !isForced {
			probability := float64(e.rules.LayerRarity(layer)) / 100.0
			if e.rng.Float64() > probability {
				continue
			}
		}

		if !isForced {
			if required, ok := e.rules.RequiredTrait(layer, selected); ok {
				if !e.catalog.HasTrait(layer, required) {
					e.logger.Warn().Str("layer", layer).Str("trait", required).Msg("inclusion requires missing trait, skipping layer")
					continue
				}
				trait = required
				isForced = true
			}
		}

		if !isForced {
			trait = e.pickWeighted(layer, options, selected, selectedKeys)
			if trait == "" {
				continue
			}
		}

		selected[layer] = trait
		key := config.TraitKey{Layer: layer, Trait: trait}
		selectedKeys = append(selectedKeys, key)

		for _, target := range e.rules.ForcedTargets(key) {
			if _, done := selected[target.Layer]; done {
				continue
			}
			if _, already := forced[target.Layer]; already {
				continue
			}
			forced[target.Layer] = target.Trait
		}
	}
	return selected
}

// pickWeighted filters the layer's options against exclusion pairs and
// constraints, then performs a weighted random choice. Returns "" when no
// viable option remains.
func (e *Engine) pickWeighted(layer string, options []string, selected map[string]string, selectedKeys []config.TraitKey) string {
	viable := make([]string, 0, len(options))
	weights := make([]int, 0, len(options))
	for _, option := range options {
		key := config.TraitKey{Layer: layer, Trait: option}
		if e.rules.Excludes(key, selectedKeys) {
			continue
		}
		if !e.rules.Allows(key, selected, e.logger) {
			continue
		}
		viable = append(viable, option)
		weights = append(weights, e.rules.TraitWeight(key))
	}
	if len(viable) == 0 {
		return ""
	}
	return weightedChoice(e.rng, viable, weights)
}

// weightedChoice draws one option proportionally to its weight. Options
// with non-positive weight are never picked unless the weight sum is not
// positive, in which case the pick is uniform over all options. The last
// option is the deterministic fallback against floating-point drift.
func weightedChoice(rng Source, options []string, weights []int) string {
	total := 0
	for _, weight := range weights {
		if weight > 0 {
			total += weight
		}
	}
	if total <= 0 {
		idx := int(rng.Float64() * float64(len(options)))
		if idx >= len(options) {
			idx = len(options) - 1
		}
		return options[idx]
	}
	draw := rng.Float64() * float64(total)
	accumulated := 0.0
	for i, option := range options {
		weight := weights[i]
		if weight <= 0 {
			continue
		}
		if accumulated+float64(weight) >= draw {
			return option
		}
		accumulated += float64(weight)
	}
	return options[len(options)-1]
}
