// Package engine drives the per-edition generation loop: selection,
// duplicate detection, compositing and metadata emission, with progress and
// log events delivered to the host over a channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/layerforge/catalog"
	"github.com/timzifer/layerforge/internal/config"
	"github.com/timzifer/layerforge/metadata"
	"github.com/timzifer/layerforge/render"
	"github.com/timzifer/layerforge/rules"
	"github.com/timzifer/layerforge/selection"
	"github.com/timzifer/layerforge/telemetry"
)

const eventBuffer = 128

// Engine generates one batch of editions. Selection and duplicate
// detection run on a single owner goroutine; compositing may fan out to
// render workers. An engine instance drives exactly one Run.
type Engine struct {
	cfg       *config.Config
	logger    zerolog.Logger
	collector telemetry.Collector
	rng       selection.Source

	catalog catalog.Catalog
	merged  *rules.Merged
	order   []string

	selector   *selection.Engine
	compositor *render.Compositor

	events  chan Event
	workers int

	imagesDir   string
	metadataDir string
}

// Option customises engine construction.
type Option func(*Engine)

// WithRandomSource injects the random source used for selection. Runs with
// the same source and configuration are reproducible.
func WithRandomSource(src selection.Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.rng = src
		}
	}
}

// WithCollector wires a telemetry collector.
func WithCollector(collector telemetry.Collector) Option {
	return func(e *Engine) {
		if collector != nil {
			e.collector = collector
		}
	}
}

// New builds an engine for one run: the mapping sets named by the
// configuration are merged once, the trait catalog is loaded once and the
// effective layer order is fixed.
func New(cfg *config.Config, sets map[string]*config.MappingSet, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	merged, err := rules.Merge(cfg.MappingSets, sets, logger)
	if err != nil {
		return nil, err
	}
	cat := catalog.Load(cfg.LayersDir)
	if cat.Len() == 0 {
		logger.Warn().Str("layers_dir", cfg.LayersDir).Msg("no layers discovered")
	}
	order := selection.FinalLayerOrder(cfg.LayerOrder, cfg.ExcludedLayers, cat)

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		collector:   telemetry.Noop(),
		rng:         selection.NewTimeSeededSource(),
		catalog:     cat,
		merged:      merged,
		order:       order,
		events:      make(chan Event, eventBuffer),
		workers:     cfg.Workers.Render,
		imagesDir:   filepath.Join(cfg.OutputDir, "images"),
		metadataDir: filepath.Join(cfg.OutputDir, "metadata"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.selector = selection.NewEngine(cat, merged, order, e.rng, logger)
	e.compositor = render.NewCompositor(cfg.LayersDir, cfg.Size, logger)
	return e, nil
}

// Events returns the channel carrying log, progress and done events. The
// channel is closed after the DoneEvent of the run.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// LayerOrder returns a copy of the effective layer order.
func (e *Engine) LayerOrder() []string {
	return append([]string(nil), e.order...)
}

// Summary describes the resolved inputs of a run for dry-run inspection.
type Summary struct {
	LayerOrder   []string
	Layers       int
	Traits       int
	LayerRules   int
	TraitRules   int
	IncludePairs int
	ExcludePairs int
	Constraints  int
}

// Summarize reports the resolved catalog and ruleset sizes.
func (e *Engine) Summarize() Summary {
	return Summary{
		LayerOrder:   e.LayerOrder(),
		Layers:       e.catalog.Len(),
		Traits:       e.catalog.TraitCount(),
		LayerRules:   len(e.merged.LayerRarities),
		TraitRules:   len(e.merged.TraitRarities),
		IncludePairs: len(e.merged.IncludePairs),
		ExcludePairs: len(e.merged.ExcludePairs),
		Constraints:  len(e.merged.Constraints),
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeDuplicate
	outcomeError
)

type renderJob struct {
	edition  int
	selected map[string]string
}

type editionResult struct {
	edition  int
	outcome  outcome
	selected map[string]string
	err      error
}

// Run generates editions 1..count. No per-edition failure aborts the batch;
// for an uncancelled run success+duplicates+errors equals count. The
// context is checked between editions, so cancellation yields partial
// stats together with the context error.
func (e *Engine) Run(ctx context.Context, count int) (Stats, error) {
	defer close(e.events)
	stats := Stats{}
	if count <= 0 {
		e.emit(DoneEvent{Stats: stats})
		return stats, nil
	}
	for _, dir := range []string{e.imagesDir, e.metadataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stats, fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	jobs := make(chan renderJob)
	results := make(chan editionResult)

	// The producer is the single owner of the random source and the DNA
	// set; editions are selected strictly in order.
	go func() {
		defer close(jobs)
		seen := make(map[string]struct{}, count)
		for edition := 1; edition <= count; edition++ {
			if ctx.Err() != nil {
				return
			}
			if len(e.order) == 0 {
				results <- editionResult{edition: edition, outcome: outcomeError, err: errors.New("no layers available")}
				continue
			}
			selected := e.selector.Pick()
			dna := fingerprint(e.order, selected)
			if _, dup := seen[dna]; dup {
				results <- editionResult{edition: edition, outcome: outcomeDuplicate}
				continue
			}
			seen[dna] = struct{}{}
			jobs <- renderJob{edition: edition, selected: selected}
		}
	}()

	workers := startWorkers(ctx, e.workers, jobs, results, e.renderEdition)
	go func() {
		workers.Wait()
		close(results)
	}()

	rarityCounts := make(map[string]map[string]int)
	completed := 0
	for result := range results {
		switch result.outcome {
		case outcomeSuccess:
			stats.Success++
			e.collector.IncEdition("success")
			e.countSelection(rarityCounts, result.selected)
			e.logger.Info().Int("edition", result.edition).Msg("edition generated")
			e.emit(LogEvent{Message: fmt.Sprintf("generated #%d", result.edition)})
		case outcomeDuplicate:
			stats.Duplicates++
			e.collector.IncEdition("duplicate")
			e.logger.Info().Int("edition", result.edition).Msg("duplicate DNA, skipping")
			e.emit(LogEvent{Message: fmt.Sprintf("duplicate at #%d, skipping", result.edition)})
		case outcomeError:
			stats.Errors++
			e.collector.IncEdition("error")
			e.logger.Error().Err(result.err).Int("edition", result.edition).Msg("edition failed")
			e.emit(LogEvent{Message: fmt.Sprintf("error on #%d: %v", result.edition, result.err)})
		}
		completed++
		e.collector.SetBatchProgress(completed, count)
		e.emit(ProgressEvent{Completed: completed, Total: count})
	}

	if stats.Success > 0 {
		path := filepath.Join(e.cfg.OutputDir, "rarity.json")
		if err := writeRarityReport(path, rarityCounts); err != nil {
			e.logger.Warn().Err(err).Msg("failed to write rarity report")
		}
	}

	e.emit(DoneEvent{Stats: stats})
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// renderEdition composites and persists one accepted edition. Failures are
// contained: any error or panic is reported as an edition error and the
// batch continues.
func (e *Engine) renderEdition(_ context.Context, job renderJob) (result editionResult) {
	result = editionResult{edition: job.edition, selected: job.selected}
	defer func() {
		if r := recover(); r != nil {
			result.outcome = outcomeError
			result.err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	img, err := e.compositor.Compose(e.order, job.selected)
	if err != nil {
		result.outcome = outcomeError
		result.err = err
		return result
	}
	imageName := fmt.Sprintf("%d%s", job.edition, catalog.Ext)
	if err := e.compositor.Save(img, filepath.Join(e.imagesDir, imageName)); err != nil {
		result.outcome = outcomeError
		result.err = err
		return result
	}
	record := metadata.Build(e.cfg.Collection, job.edition, imageName, e.order, job.selected)
	if err := record.Write(filepath.Join(e.metadataDir, fmt.Sprintf("%d.json", job.edition))); err != nil {
		result.outcome = outcomeError
		result.err = err
		return result
	}
	e.collector.ObserveRenderSeconds(time.Since(start).Seconds())
	result.outcome = outcomeSuccess
	return result
}

func (e *Engine) countSelection(counts map[string]map[string]int, selected map[string]string) {
	for layer, trait := range selected {
		traits, ok := counts[layer]
		if !ok {
			traits = make(map[string]int)
			counts[layer] = traits
		}
		traits[trait]++
	}
}
