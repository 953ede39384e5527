package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TraitKey addresses one concrete trait inside a layer. Keys are persisted in
// the compact "Layer:Trait" form but parsed into their components at load
// time so malformed keys surface as configuration errors.
type TraitKey struct {
	Layer string
	Trait string
}

// ParseKey splits a "Layer:Trait" string into its components.
func ParseKey(raw string) (TraitKey, error) {
	layer, trait, ok := strings.Cut(raw, ":")
	if !ok {
		return TraitKey{}, fmt.Errorf("trait key %q: missing ':' separator", raw)
	}
	layer = strings.TrimSpace(layer)
	trait = strings.TrimSpace(trait)
	if layer == "" || trait == "" {
		return TraitKey{}, fmt.Errorf("trait key %q: layer and trait must not be empty", raw)
	}
	return TraitKey{Layer: layer, Trait: trait}, nil
}

// String renders the key in its persisted form.
func (k TraitKey) String() string {
	return k.Layer + ":" + k.Trait
}

// IsZero reports whether the key is unset.
func (k TraitKey) IsZero() bool {
	return k.Layer == "" && k.Trait == ""
}

// Pair couples two trait keys. For inclusion rules the pair is directed
// (Source forces Target); for exclusion rules the order carries no meaning.
// The wire form is a two-element string list, matching the stored mapping
// set layout.
type Pair struct {
	Source TraitKey
	Target TraitKey
}

func pairFromStrings(raw []string) (Pair, error) {
	if len(raw) != 2 {
		return Pair{}, fmt.Errorf("pair must have exactly two entries, got %d", len(raw))
	}
	source, err := ParseKey(raw[0])
	if err != nil {
		return Pair{}, err
	}
	target, err := ParseKey(raw[1])
	if err != nil {
		return Pair{}, err
	}
	return Pair{Source: source, Target: target}, nil
}

// UnmarshalJSON decodes a pair from its two-element list form.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode pair: %w", err)
	}
	pair, err := pairFromStrings(raw)
	if err != nil {
		return err
	}
	*p = pair
	return nil
}

// MarshalJSON renders the pair as a two-element list.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Source.String(), p.Target.String()})
}

// UnmarshalYAML decodes a pair from its two-element list form.
func (p *Pair) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("pair node is nil")
	}
	var raw []string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode pair: %w", err)
	}
	pair, err := pairFromStrings(raw)
	if err != nil {
		return err
	}
	*p = pair
	return nil
}

// MarshalYAML renders the pair as a two-element list.
func (p Pair) MarshalYAML() (interface{}, error) {
	return [2]string{p.Source.String(), p.Target.String()}, nil
}
