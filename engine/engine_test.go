package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/layerforge/internal/config"
	"github.com/timzifer/layerforge/metadata"
	"github.com/timzifer/layerforge/selection"
)

// cycleSource replays a fixed draw sequence, wrapping around at the end.
type cycleSource struct {
	draws []float64
	idx   int
}

func (s *cycleSource) Float64() float64 {
	v := s.draws[s.idx%len(s.draws)]
	s.idx++
	return v
}

func writeTrait(t *testing.T, root, layer, trait string, fill color.NRGBA) {
	t.Helper()
	dir := filepath.Join(root, layer)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	img := imaging.New(32, 32, fill)
	require.NoError(t, imaging.Save(img, filepath.Join(dir, trait+".png")))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	layers := t.TempDir()
	writeTrait(t, layers, "Background", "Black", color.NRGBA{A: 255})
	writeTrait(t, layers, "Background", "White", color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	writeTrait(t, layers, "Eyes", "Closed", color.NRGBA{B: 255, A: 255})
	writeTrait(t, layers, "Eyes", "Open", color.NRGBA{G: 255, A: 255})
	return &config.Config{
		LayersDir:  layers,
		OutputDir:  t.TempDir(),
		LayerOrder: []string{"Background", "Eyes"},
		Collection: config.Collection{Name: "Test", Description: "test run"},
		Size:       config.Size{Width: 32, Height: 32},
	}
}

func drainEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	for event := range events {
		all = append(all, event)
	}
	return all
}

func TestRunGeneratesDistinctEditions(t *testing.T) {
	cfg := testConfig(t)
	// Per edition: presence and weighted draw for each of the two layers.
	// The weighted draw picks the first trait for values up to 0.5.
	src := &cycleSource{draws: []float64{
		0, 0.2, 0, 0.2,
		0, 0.2, 0, 0.8,
		0, 0.8, 0, 0.2,
		0, 0.8, 0, 0.8,
	}}
	eng, err := New(cfg, nil, zerolog.Nop(), WithRandomSource(src))
	require.NoError(t, err)
	require.Equal(t, []string{"Background", "Eyes"}, eng.LayerOrder())

	stats, err := eng.Run(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, Stats{Success: 4}, stats)

	for edition := 1; edition <= 4; edition++ {
		name := fmt.Sprintf("%d", edition)
		img, err := imaging.Open(filepath.Join(cfg.OutputDir, "images", name+".png"))
		require.NoError(t, err)
		require.Equal(t, 32, img.Bounds().Dx())
		require.Equal(t, 32, img.Bounds().Dy())

		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "metadata", name+".json"))
		require.NoError(t, err)
		var record metadata.Record
		require.NoError(t, json.Unmarshal(data, &record))
		require.Len(t, record.Attributes, 2)
		require.Equal(t, "Background", record.Attributes[0].TraitType)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "metadata", "2.json"))
	require.NoError(t, err)
	var record metadata.Record
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, "Test #2", record.Name)
	require.Equal(t, "2.png", record.Image)
	require.Equal(t, []metadata.Attribute{
		{TraitType: "Background", Value: "Black"},
		{TraitType: "Eyes", Value: "Open"},
	}, record.Attributes)

	// A successful run leaves a rarity report beside the output folders.
	report, err := os.ReadFile(filepath.Join(cfg.OutputDir, "rarity.json"))
	require.NoError(t, err)
	var rarity RarityReport
	require.NoError(t, json.Unmarshal(report, &rarity))
	require.Equal(t, 2, rarity["Background"]["Black"].Count)
	require.Equal(t, "50", rarity["Background"]["Black"].Percent)
}

func TestRunCountsDuplicates(t *testing.T) {
	cfg := testConfig(t)
	// A constant source selects the same combination every edition.
	src := &cycleSource{draws: []float64{0}}
	eng, err := New(cfg, nil, zerolog.Nop(), WithRandomSource(src))
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, Stats{Success: 1, Duplicates: 4}, stats)

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "images", "1.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "images", "2.png"))
	require.True(t, os.IsNotExist(err))
}

func TestRunWithoutLayersCountsErrors(t *testing.T) {
	cfg := &config.Config{
		LayersDir: filepath.Join(t.TempDir(), "missing"),
		OutputDir: t.TempDir(),
	}
	eng, err := New(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, eng.LayerOrder())

	stats, err := eng.Run(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, Stats{Errors: 3}, stats)

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "rarity.json"))
	require.True(t, os.IsNotExist(err))
}

func TestRunStatsSumToCount(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Render = 4
	eng, err := New(cfg, nil, zerolog.Nop(), WithRandomSource(selection.NewPseudoSource(1)))
	require.NoError(t, err)

	const count = 20
	stats, err := eng.Run(context.Background(), count)
	require.NoError(t, err)
	require.Equal(t, count, stats.Success+stats.Duplicates+stats.Errors)
	require.Zero(t, stats.Errors)
}

func TestRunEventsEndWithDone(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, nil, zerolog.Nop(), WithRandomSource(selection.NewPseudoSource(7)))
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), 3)
	require.NoError(t, err)

	events := drainEvents(t, eng.Events())
	require.NotEmpty(t, events)
	done, ok := events[len(events)-1].(DoneEvent)
	require.True(t, ok)
	require.Equal(t, stats, done.Stats)

	var progress []ProgressEvent
	for _, event := range events {
		if p, ok := event.(ProgressEvent); ok {
			progress = append(progress, p)
		}
	}
	require.Len(t, progress, 3)
	for i, p := range progress {
		require.Equal(t, i+1, p.Completed)
		require.Equal(t, 3, p.Total)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := eng.Run(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, Stats{}, stats)

	events := drainEvents(t, eng.Events())
	_, ok := events[len(events)-1].(DoneEvent)
	require.True(t, ok)
}

func TestRunZeroCount(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
	events := drainEvents(t, eng.Events())
	require.Len(t, events, 1)
}

func TestFingerprint(t *testing.T) {
	order := []string{"Background", "Eyes", "Hat"}
	selected := map[string]string{"Background": "Black", "Hat": "Crown"}
	require.Equal(t, "Background:Black|Eyes:-|Hat:Crown", fingerprint(order, selected))

	require.Equal(t, "Background:-|Eyes:-|Hat:-", fingerprint(order, nil))
}

func TestSummarize(t *testing.T) {
	cfg := testConfig(t)
	sets := map[string]*config.MappingSet{
		"base": {
			LayerRarities: map[string]int{"Eyes": 50},
			TraitRarities: map[string]int{"Eyes:Open": 10},
			ExcludePairs: []config.Pair{{
				Source: config.TraitKey{Layer: "Background", Trait: "Black"},
				Target: config.TraitKey{Layer: "Eyes", Trait: "Closed"},
			}},
		},
	}
	cfg.MappingSets = []string{"base"}
	eng, err := New(cfg, sets, zerolog.Nop())
	require.NoError(t, err)

	summary := eng.Summarize()
	require.Equal(t, []string{"Background", "Eyes"}, summary.LayerOrder)
	require.Equal(t, 2, summary.Layers)
	require.Equal(t, 4, summary.Traits)
	require.Equal(t, 1, summary.LayerRules)
	require.Equal(t, 1, summary.TraitRules)
	require.Equal(t, 1, summary.ExcludePairs)
	require.Zero(t, summary.IncludePairs)
	require.Zero(t, summary.Constraints)
}
