// Package render stacks selected trait images onto a fixed-size
// transparent canvas and persists the composite.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/timzifer/layerforge/catalog"
	"github.com/timzifer/layerforge/internal/config"
)

// Compositor renders editions for one run. It holds no per-edition state
// and is safe for concurrent use by render workers.
type Compositor struct {
	layersDir string
	width     int
	height    int
	logger    zerolog.Logger
}

// NewCompositor builds a compositor for the given layers directory and
// canvas size.
func NewCompositor(layersDir string, size config.Size, logger zerolog.Logger) *Compositor {
	return &Compositor{layersDir: layersDir, width: size.Width, height: size.Height, logger: logger}
}

// Compose stacks the selected traits in layer order onto a transparent
// canvas. A trait whose image file cannot be located is skipped with a
// warning; it stays in the edition's metadata regardless. A located file
// that fails to decode is an error and fails the whole edition.
func (c *Compositor) Compose(order []string, selected map[string]string) (*image.NRGBA, error) {
	canvas := imaging.New(c.width, c.height, color.NRGBA{})
	for _, layer := range order {
		trait, ok := selected[layer]
		if !ok {
			continue
		}
		path, err := catalog.ResolveImage(c.layersDir, layer, trait)
		if err != nil {
			if errors.Is(err, catalog.ErrImageNotFound) {
				c.logger.Warn().Str("layer", layer).Str("trait", trait).Msg("missing trait image, skipping layer pixels")
				continue
			}
			return nil, err
		}
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != c.width || bounds.Dy() != c.height {
			img = imaging.Resize(img, c.width, c.height, imaging.Lanczos)
		}
		canvas = imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	}
	return canvas, nil
}

// Save persists the composite; the encoding follows the file extension.
func (c *Compositor) Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
