package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Turn metrics
	TurnRequests prometheus.Counter
	TurnLatency  prometheus.Histogram
	TurnErrors   *prometheus.CounterVec

	// Tool metrics
	ToolInvocations *prometheus.CounterVec

	// Sweeper metrics
	SweepCleared prometheus.Counter
	SweepFailed  prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(pool *KeyPool) *Metrics {
	metrics := &Metrics{
		TurnRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fundpilot_turn_requests_total",
			Help: "Total number of conversation turns processed",
		}),

		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundpilot_turn_duration_seconds",
			Help:    "Conversation turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),

		TurnErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpilot_turn_errors_total",
			Help: "Total number of turn errors by type",
		}, []string{"error_type"}),

		ToolInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fundpilot_tool_invocations_total",
			Help: "Total number of tool invocations by tool name",
		}, []string{"tool"}),

		SweepCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fundpilot_sweep_sessions_cleared_total",
			Help: "Total number of sessions reclaimed by the expiry sweeper",
		}),

		SweepFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fundpilot_sweep_sessions_failed_total",
			Help: "Total number of sessions the expiry sweeper failed to reclaim",
		}),
	}

	// Expose live pool pressure from the key pool's own counters
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fundpilot_key_pool_sessions_active",
			Help: "Number of sessions currently holding an upstream API key",
		},
		func() float64 {
			if pool == nil {
				return 0
			}
			total := 0
			for _, n := range pool.UsageSnapshot() {
				total += n
			}
			return float64(total)
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
