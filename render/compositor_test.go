package render

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/layerforge/internal/config"
)

func writeTrait(t *testing.T, root, layer, trait string, width, height int, fill color.NRGBA) {
	t.Helper()
	dir := filepath.Join(root, layer)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	img := imaging.New(width, height, fill)
	require.NoError(t, imaging.Save(img, filepath.Join(dir, trait+".png")))
}

func TestComposeStacksLayers(t *testing.T) {
	root := t.TempDir()
	writeTrait(t, root, "Background", "Blue", 8, 8, color.NRGBA{B: 255, A: 255})
	writeTrait(t, root, "Eyes", "Red", 8, 8, color.NRGBA{R: 255, A: 255})

	c := NewCompositor(root, config.Size{Width: 8, Height: 8}, zerolog.Nop())
	img, err := c.Compose([]string{"Background", "Eyes"}, map[string]string{
		"Background": "Blue",
		"Eyes":       "Red",
	})
	require.NoError(t, err)
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())

	// The later layer fully covers the earlier one.
	r, _, b, a := img.At(4, 4).RGBA()
	require.NotZero(t, r)
	require.Zero(t, b)
	require.NotZero(t, a)
}

func TestComposeResizesMismatchedImages(t *testing.T) {
	root := t.TempDir()
	writeTrait(t, root, "Background", "Blue", 4, 4, color.NRGBA{B: 255, A: 255})

	c := NewCompositor(root, config.Size{Width: 16, Height: 16}, zerolog.Nop())
	img, err := c.Compose([]string{"Background"}, map[string]string{"Background": "Blue"})
	require.NoError(t, err)
	require.Equal(t, 16, img.Bounds().Dx())
	require.Equal(t, 16, img.Bounds().Dy())
	_, _, _, a := img.At(8, 8).RGBA()
	require.NotZero(t, a)
}

func TestComposeSkipsMissingImage(t *testing.T) {
	root := t.TempDir()
	writeTrait(t, root, "Background", "Blue", 8, 8, color.NRGBA{B: 255, A: 255})

	c := NewCompositor(root, config.Size{Width: 8, Height: 8}, zerolog.Nop())
	img, err := c.Compose([]string{"Background", "Eyes"}, map[string]string{
		"Background": "Blue",
		"Eyes":       "Ghost",
	})
	require.NoError(t, err)
	require.NotNil(t, img)
}

func TestComposeFailsOnUndecodableImage(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Background")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.png"), []byte("not a png"), 0o644))

	c := NewCompositor(root, config.Size{Width: 8, Height: 8}, zerolog.Nop())
	_, err := c.Compose([]string{"Background"}, map[string]string{"Background": "Broken"})
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	c := NewCompositor(t.TempDir(), config.Size{Width: 8, Height: 8}, zerolog.Nop())
	img := imaging.New(8, 8, color.NRGBA{G: 255, A: 255})
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, c.Save(img, path))

	loaded, err := imaging.Open(path)
	require.NoError(t, err)
	require.Equal(t, 8, loaded.Bounds().Dx())
}
