// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsIngested counts force samples accepted into a recording.
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thrustbench_readings_ingested_total",
		Help: "Force readings buffered into an active recording.",
	})

	// ReadingsDropped counts samples that arrived while not recording.
	ReadingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thrustbench_readings_dropped_total",
		Help: "Force readings received outside an active recording.",
	})

	// Analyses counts pipeline runs by outcome (ok, insufficient_data,
	// no_burn).
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thrustbench_analyses_total",
		Help: "Thrust-curve analysis runs by outcome.",
	}, []string{"outcome"})

	// TestsPersisted counts finalized test records.
	TestsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thrustbench_tests_persisted_total",
		Help: "Finalized test records written to the store.",
	})

	// DashboardClients tracks connected dashboard websocket clients.
	DashboardClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thrustbench_dashboard_clients",
		Help: "Currently connected dashboard websocket clients.",
	})

	// Recording is 1 while a test is being recorded.
	Recording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thrustbench_recording",
		Help: "1 while a recording session is active.",
	})
)
