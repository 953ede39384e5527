package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/layerforge/engine"
	"github.com/timzifer/layerforge/internal/config"
	"github.com/timzifer/layerforge/internal/logging"
	"github.com/timzifer/layerforge/internal/store"
	"github.com/timzifer/layerforge/selection"
	"github.com/timzifer/layerforge/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a configuration file (YAML or CUE)")
	storeDir := flag.String("store", "configs", "Directory holding saved configurations and mapping sets")
	cfgName := flag.String("config-name", "", "Name of a saved configuration to load from the store")
	count := flag.Int("count", 10, "Number of editions to generate")
	seed := flag.Int64("seed", 0, "Random seed; 0 seeds from the current time")
	workers := flag.Int("workers", 0, "Render worker count override; 0 keeps the configured value")
	configCheck := flag.Bool("config-check", false, "Resolve configuration and rules, print a summary and exit")
	reset := flag.Bool("reset", false, "Remove saved configurations, mapping sets and generated outputs, then exit")
	metricsListen := flag.String("metrics-listen", "", "Expose Prometheus metrics on this address")
	flag.Parse()

	st := store.Open(*storeDir, zerolog.Nop())

	if *reset {
		if err := st.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Store and generated outputs cleared.")
		return
	}

	cfg, err := loadConfig(*cfgPath, *cfgName, st)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *workers > 0 {
		cfg.Workers.Render = *workers
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	sets, err := store.Open(*storeDir, logger).MappingSets()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load mapping sets")
	}

	collector, err := newTelemetryCollector(cfg.Telemetry, *metricsListen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}

	opts := []engine.Option{engine.WithCollector(collector)}
	if *seed != 0 {
		opts = append(opts, engine.WithRandomSource(selection.NewPseudoSource(*seed)))
	}
	eng, err := engine.New(cfg, sets, logger, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create engine")
	}

	if *configCheck {
		printSummary(eng.Summarize())
		return
	}

	if *metricsListen != "" {
		go serveMetrics(*metricsListen, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(eng.Events())
	}()

	stats, err := eng.Run(ctx, *count)
	wg.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("run aborted")
	}
	fmt.Printf("success=%d duplicates=%d errors=%d\n", stats.Success, stats.Duplicates, stats.Errors)
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig(path, name string, st *store.Store) (*config.Config, error) {
	switch {
	case path != "" && name != "":
		return nil, fmt.Errorf("use either -config or -config-name, not both")
	case path != "":
		return config.Load(path)
	case name != "":
		configs, err := st.Configs()
		if err != nil {
			return nil, err
		}
		cfg, ok := configs[name]
		if !ok {
			return nil, fmt.Errorf("saved configuration %q not found", name)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("one of -config or -config-name is required")
	}
}

func consumeEvents(events <-chan engine.Event) {
	for event := range events {
		switch ev := event.(type) {
		case engine.ProgressEvent:
			fmt.Printf("\r%d/%d", ev.Completed, ev.Total)
			if ev.Completed == ev.Total {
				fmt.Println()
			}
		case engine.DoneEvent:
			// Final stats are printed by main after Run returns.
		}
	}
}

func printSummary(summary engine.Summary) {
	fmt.Printf("Layer order: %s\n", strings.Join(summary.LayerOrder, ", "))
	fmt.Printf("Catalog: %d layers, %d traits\n", summary.Layers, summary.Traits)
	fmt.Printf("Rules: %d layer rarities, %d trait rarities, %d include pairs, %d exclude pairs, %d constraints\n",
		summary.LayerRules, summary.TraitRules, summary.IncludePairs, summary.ExcludePairs, summary.Constraints)
	if len(summary.LayerOrder) == 0 {
		fmt.Println("No generatable layers; a run would produce zero successful editions.")
	}
}

func newTelemetryCollector(cfg config.TelemetryConfig, metricsListen string) (telemetry.Collector, error) {
	if !cfg.Enabled && metricsListen == "" {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		return telemetry.NewPrometheusCollector(nil)
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

func serveMetrics(listen string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error().Err(err).Str("listen", listen).Msg("metrics server stopped")
	}
}
