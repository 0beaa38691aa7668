package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipher_core_provider_attempts_total",
			Help: "Total number of provider attempts",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cipher_core_provider_latency_seconds",
			Help: "Provider call latency in seconds",
		},
		[]string{"provider"},
	)

	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipher_core_memory_operations_total",
			Help: "Total number of memory store operations",
		},
		[]string{"operation"},
	)

	NodesDecayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipher_core_nodes_decayed_total",
			Help: "Total number of memory nodes decayed",
		},
	)

	WritebackResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipher_core_writeback_nodes_total",
			Help: "Total number of nodes written or reinforced by writeback",
		},
		[]string{"result"},
	)

	EvolutionTier = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cipher_core_evolution_tier",
			Help: "Current evolution tier of the orchestrator",
		},
	)
)
