package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// decodeCUE evaluates a CUE document and decodes the result into cfg. The
// document must evaluate to a single concrete struct.
func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("compile cue config %s: %w", path, err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate cue config %s: %w", path, err)
	}
	if err := value.Decode(cfg); err != nil {
		return fmt.Errorf("decode cue config %s: %w", path, err)
	}
	return nil
}
