// Package rules flattens an ordered list of named mapping sets into one
// effective ruleset. Rarity maps merge last-writer-wins per key while pair
// and constraint lists are appended, so the same merge order always yields
// the same result.
package rules

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/timzifer/layerforge/internal/config"
)

const defaultRarity = 100

// Constraint is a compiled candidate filter attached by a mapping set. The
// expression sees the candidate layer and trait plus the traits selected so
// far and must return true for the candidate to stay viable.
type Constraint struct {
	Source  string
	program *vm.Program
	warned  bool
}

// Merged is the effective ruleset for one run, read-only after Merge.
type Merged struct {
	LayerRarities map[string]int
	TraitRarities map[config.TraitKey]int
	IncludePairs  []config.Pair
	ExcludePairs  []config.Pair
	Constraints   []*Constraint
}

// Merge overlays the named mapping sets in order. Names without a persisted
// set are logged as warnings and contribute nothing. Constraint expressions
// are compiled here so a malformed rule is a configuration error rather
// than a silent per-edition skip.
func Merge(names []string, sets map[string]*config.MappingSet, logger zerolog.Logger) (*Merged, error) {
	merged := &Merged{
		LayerRarities: make(map[string]int),
		TraitRarities: make(map[config.TraitKey]int),
	}
	for _, name := range names {
		set, ok := sets[name]
		if !ok || set == nil {
			logger.Warn().Str("mapping_set", name).Msg("mapping set not found, skipping")
			continue
		}
		for layer, rarity := range set.LayerRarities {
			merged.LayerRarities[layer] = rarity
		}
		for raw, rarity := range set.TraitRarities {
			key, err := config.ParseKey(raw)
			if err != nil {
				return nil, fmt.Errorf("mapping set %s: %w", name, err)
			}
			merged.TraitRarities[key] = rarity
		}
		merged.IncludePairs = append(merged.IncludePairs, set.IncludePairs...)
		merged.ExcludePairs = append(merged.ExcludePairs, set.ExcludePairs...)
		for _, src := range set.Constraints {
			program, err := expr.Compile(src, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
			if err != nil {
				return nil, fmt.Errorf("mapping set %s: compile constraint %q: %w", name, src, err)
			}
			merged.Constraints = append(merged.Constraints, &Constraint{Source: src, program: program})
		}
	}
	return merged, nil
}

// LayerRarity returns the presence probability percentage for a layer,
// defaulting to 100 and clamped to be non-negative.
func (m *Merged) LayerRarity(layer string) int {
	rarity, ok := m.LayerRarities[layer]
	if !ok {
		return defaultRarity
	}
	if rarity < 0 {
		return 0
	}
	return rarity
}

// TraitWeight returns the selection weight for a trait key, defaulting to
// 100 and floored at zero.
func (m *Merged) TraitWeight(key config.TraitKey) int {
	weight, ok := m.TraitRarities[key]
	if !ok {
		return defaultRarity
	}
	if weight < 0 {
		return 0
	}
	return weight
}

// Excludes reports whether the candidate key conflicts with any already
// selected key through an exclusion pair, in either pair order.
func (m *Merged) Excludes(candidate config.TraitKey, selected []config.TraitKey) bool {
	if len(m.ExcludePairs) == 0 {
		return false
	}
	for _, key := range selected {
		for _, pair := range m.ExcludePairs {
			if (candidate == pair.Source && key == pair.Target) || (candidate == pair.Target && key == pair.Source) {
				return true
			}
		}
	}
	return false
}

// RequiredTrait returns the trait an inclusion pair forces onto the given
// layer based on the keys selected so far. The first matching pair in list
// order wins.
func (m *Merged) RequiredTrait(layer string, selected map[string]string) (string, bool) {
	for _, pair := range m.IncludePairs {
		if pair.Target.Layer != layer {
			continue
		}
		if trait, ok := selected[pair.Source.Layer]; ok && trait == pair.Source.Trait {
			return pair.Target.Trait, true
		}
	}
	return "", false
}

// ForcedTargets returns the targets of every inclusion pair whose source is
// the just-selected key, in list order.
func (m *Merged) ForcedTargets(key config.TraitKey) []config.TraitKey {
	var targets []config.TraitKey
	for _, pair := range m.IncludePairs {
		if pair.Source == key {
			targets = append(targets, pair.Target)
		}
	}
	return targets
}

// Allows evaluates all constraints against a candidate trait. Evaluation
// failures are logged once per rule and treated as allowing the candidate,
// so one bad rule cannot empty every layer.
func (m *Merged) Allows(key config.TraitKey, selected map[string]string, logger zerolog.Logger) bool {
	if len(m.Constraints) == 0 {
		return true
	}
	env := map[string]interface{}{
		"layer":    key.Layer,
		"trait":    key.Trait,
		"selected": selected,
	}
	for _, constraint := range m.Constraints {
		out, err := vm.Run(constraint.program, env)
		if err != nil {
			if !constraint.warned {
				constraint.warned = true
				logger.Warn().Err(err).Str("constraint", constraint.Source).Msg("constraint evaluation failed, ignoring rule")
			}
			continue
		}
		allowed, ok := out.(bool)
		if !ok {
			if !constraint.warned {
				constraint.warned = true
				logger.Warn().Str("constraint", constraint.Source).Msgf("constraint returned %T, expected bool, ignoring rule", out)
			}
			continue
		}
		if !allowed {
			return false
		}
	}
	return true
}
