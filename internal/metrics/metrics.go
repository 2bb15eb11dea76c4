// Package metrics defines the gateway's Prometheus collectors. Collectors
// are registered once at package load so they can be used from anywhere
// without double-registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_chat_requests_total",
		Help: "Total number of chat requests received",
	}, []string{"model"})

	StreamingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_streaming_requests_total",
		Help: "Total number of streaming chat requests",
	}, []string{"model"})

	SafetyViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_safety_violations_total",
		Help: "Total inputs blocked by the safety pipeline",
	}, []string{"reason"})

	InferenceLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "converse_inference_latency_seconds",
		Help:    "Time taken by model inference (generation only)",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	}, []string{"model"})

	RequestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "converse_request_latency_seconds",
		Help:    "End-to-end request latency including safety checks and persistence",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	}, []string{"endpoint"})

	TokensGenerated = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "converse_tokens_generated",
		Help: "Distribution of output token counts per response",
	})

	InferenceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_inference_errors_total",
		Help: "Total number of model inference failures",
	}, []string{"error_type"})

	SummarizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_summarizations_total",
		Help: "Conversation summarization attempts by outcome",
	}, []string{"outcome"})
)
