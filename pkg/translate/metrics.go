package translate

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fallback request metrics
	fallbackRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_fallback_requests_total",
			Help: "Total number of fallback translation requests",
		},
		[]string{"engine", "status"},
	)

	fallbackRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmengine_fallback_request_duration_seconds",
			Help:    "Duration of fallback translation requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"engine", "status"},
	)

	fallbackRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmengine_fallback_request_size_bytes",
			Help:    "Size of segments sent to the fallback translator in bytes",
			Buckets: []float64{16, 64, 128, 256, 512, 1024, 4096},
		},
		[]string{"engine"},
	)

	fallbackResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmengine_fallback_response_size_bytes",
			Help:    "Size of translations returned by the fallback translator in bytes",
			Buckets: []float64{16, 64, 128, 256, 512, 1024, 4096},
		},
		[]string{"engine"},
	)

	// Breaker state: 0 closed, 1 half-open, 2 open.
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tmengine_fallback_breaker_state",
			Help: "Circuit breaker state of the fallback translator (0 closed, 1 half-open, 2 open)",
		},
		[]string{"engine"},
	)
)

// InstrumentedTranslator records metrics for every call to the wrapped
// translator.
type InstrumentedTranslator struct {
	next   Translator
	engine string
}

// NewInstrumentedTranslator wraps next, labelling metrics with engine.
func NewInstrumentedTranslator(next Translator, engine EngineType) *InstrumentedTranslator {
	return &InstrumentedTranslator{next: next, engine: string(engine)}
}

func (t *InstrumentedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	start := time.Now()
	out, err := t.next.Translate(ctx, text, sourceLang, targetLang)
	t.record(time.Since(start), err == nil, len(text), len(out))
	return out, err
}

func (t *InstrumentedTranslator) CheckHealth(ctx context.Context) error {
	return t.next.CheckHealth(ctx)
}

func (t *InstrumentedTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return t.next.SupportedLanguages(ctx)
}

func (t *InstrumentedTranslator) record(duration time.Duration, success bool, requestSize, responseSize int) {
	status := "success"
	if !success {
		status = "error"
	}
	fallbackRequestsTotal.WithLabelValues(t.engine, status).Inc()
	fallbackRequestDuration.WithLabelValues(t.engine, status).Observe(duration.Seconds())
	fallbackRequestSize.WithLabelValues(t.engine).Observe(float64(requestSize))
	if success {
		fallbackResponseSize.WithLabelValues(t.engine).Observe(float64(responseSize))
	}
}
