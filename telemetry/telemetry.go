package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the generation engine.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the per-edition loop.
type Collector interface {
	IncEdition(outcome string)
	ObserveRenderSeconds(seconds float64)
	SetBatchProgress(completed, total int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncEdition(string)            {}
func (noopCollector) ObserveRenderSeconds(float64) {}
func (noopCollector) SetBatchProgress(int, int)    {}

// PrometheusCollector exposes engine counters via Prometheus.
type PrometheusCollector struct {
	editions       *prometheus.CounterVec
	renderDuration prometheus.Histogram
	batchProgress  *prometheus.GaugeVec
}

var (
	editionCounter         *prometheus.CounterVec
	editionCounterLock     sync.Mutex
	renderHistogram        prometheus.Histogram
	renderHistogramLock    sync.Mutex
	batchProgressGauge     *prometheus.GaugeVec
	batchProgressGaugeLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Passing nil uses the default registerer. Repeated calls reuse
// already registered collectors.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	editionCounterLock.Lock()
	if editionCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layerforge_editions_total",
			Help: "Number of processed editions per outcome (success, duplicate, error).",
		}, []string{"outcome"})
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					editionCounter = existing
				} else {
					editionCounterLock.Unlock()
					return nil, err
				}
			} else {
				editionCounterLock.Unlock()
				return nil, err
			}
		} else {
			editionCounter = counter
		}
	}
	editionCounterLock.Unlock()

	renderHistogramLock.Lock()
	if renderHistogram == nil {
		histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layerforge_render_duration_seconds",
			Help:    "Time spent compositing and persisting one edition.",
			Buckets: prometheus.DefBuckets,
		})
		if err := reg.Register(histogram); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
					renderHistogram = existing
				} else {
					renderHistogramLock.Unlock()
					return nil, err
				}
			} else {
				renderHistogramLock.Unlock()
				return nil, err
			}
		} else {
			renderHistogram = histogram
		}
	}
	renderHistogramLock.Unlock()

	batchProgressGaugeLock.Lock()
	if batchProgressGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "layerforge_batch_progress",
			Help: "Completed and total edition counts of the current batch.",
		}, []string{"state"})
		if err := reg.Register(gauge); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
					batchProgressGauge = existing
				} else {
					batchProgressGaugeLock.Unlock()
					return nil, err
				}
			} else {
				batchProgressGaugeLock.Unlock()
				return nil, err
			}
		} else {
			batchProgressGauge = gauge
		}
	}
	batchProgressGaugeLock.Unlock()

	return &PrometheusCollector{
		editions:       editionCounter,
		renderDuration: renderHistogram,
		batchProgress:  batchProgressGauge,
	}, nil
}

// IncEdition increments the counter for the given outcome.
func (p *PrometheusCollector) IncEdition(outcome string) {
	if p == nil || p.editions == nil {
		return
	}
	p.editions.WithLabelValues(outcome).Inc()
}

// ObserveRenderSeconds records the duration of one render.
func (p *PrometheusCollector) ObserveRenderSeconds(seconds float64) {
	if p == nil || p.renderDuration == nil {
		return
	}
	p.renderDuration.Observe(seconds)
}

// SetBatchProgress updates the progress gauges of the running batch.
func (p *PrometheusCollector) SetBatchProgress(completed, total int) {
	if p == nil || p.batchProgress == nil {
		return
	}
	p.batchProgress.WithLabelValues("completed").Set(float64(completed))
	p.batchProgress.WithLabelValues("total").Set(float64(total))
}
