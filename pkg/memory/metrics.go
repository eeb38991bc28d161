package memory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_requests_total",
			Help: "Total number of engine requests by flow and status",
		},
		[]string{"flow", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmengine_request_duration_seconds",
			Help:    "Duration of engine requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"flow", "status"},
	)

	// Segment metrics
	segmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_segments_total",
			Help: "Translated segments by origin and match kind",
		},
		[]string{"origin", "match"},
	)

	segmentSimilarity = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tmengine_segment_similarity",
			Help:    "Similarity between input segments and their best stored candidate",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	upsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_upserts_total",
			Help: "Stored segments by upsert action",
		},
		[]string{"action"},
	)

	unalignedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmengine_unaligned_requests_total",
			Help: "Add requests whose segment counts differed and were stored whole",
		},
	)
)

func recordRequest(flow string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = KindOf(err).String()
	}
	requestsTotal.WithLabelValues(flow, status).Inc()
	requestDuration.WithLabelValues(flow, status).Observe(time.Since(start).Seconds())
}

func recordSegment(origin Origin, match MatchResult) {
	segmentsTotal.WithLabelValues(string(origin), match.Kind.String()).Inc()
	if match.Identifier != "" {
		segmentSimilarity.Observe(match.Score)
	}
}
