package selection

import (
	mathrand "math/rand"
	"time"
)

// Source abstracts the random number generator driving selection. Draws are
// uniform in [0,1). Injecting the source keeps batches reproducible and
// testable without global state.
type Source interface {
	Float64() float64
}

// pseudoSource wraps math/rand to provide deterministic pseudo random draws.
type pseudoSource struct {
	rng *mathrand.Rand
}

// NewPseudoSource returns a deterministic source for the given seed.
func NewPseudoSource(seed int64) Source {
	return &pseudoSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

// NewTimeSeededSource returns a source seeded from the current time.
func NewTimeSeededSource() Source {
	return NewPseudoSource(time.Now().UnixNano())
}

func (s *pseudoSource) Float64() float64 {
	return s.rng.Float64()
}
