package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_import_jobs_total",
			Help: "Import jobs by lifecycle state reached",
		},
		[]string{"status"},
	)

	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_import_rows_total",
			Help: "Imported rows by outcome",
		},
		[]string{"status"},
	)

	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmengine_grpc_requests_total",
			Help: "gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)
)
