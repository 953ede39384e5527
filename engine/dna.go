package engine

import "strings"

// absentTrait marks a layer without a concrete trait inside a fingerprint.
const absentTrait = "-"

const dnaSeparator = "|"

// fingerprint encodes an edition's full per-layer selection into the
// canonical DNA string used for duplicate detection. Every layer of the
// effective order contributes a segment, absent layers included, so two
// editions collide exactly when their selections are identical.
func fingerprint(order []string, selected map[string]string) string {
	parts := make([]string, 0, len(order))
	for _, layer := range order {
		trait, ok := selected[layer]
		if !ok {
			trait = absentTrait
		}
		parts = append(parts, layer+":"+trait)
	}
	return strings.Join(parts, dnaSeparator)
}
