package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	commandsTotal  *prometheus.CounterVec
	framesRejected *prometheus.CounterVec

	agentTurnTotal    *prometheus.CounterVec
	agentTurnDuration *prometheus.HistogramVec
	tokensTotal       *prometheus.CounterVec
	chunksTotal       *prometheus.CounterVec
	providerErrors    *prometheus.CounterVec

	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	observerRuns     *prometheus.CounterVec
	observerFailures *prometheus.CounterVec

	storeOpDuration *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_discussions",
					Help: "Current number of connected discussion sessions.",
				},
			),
			commandsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "discussion_commands_total",
					Help: "Inbound client commands by action.",
				},
				[]string{"action"},
			),
			framesRejected: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "discussion_frames_rejected_total",
					Help: "Inbound frames rejected before dispatch by reason.",
				},
				[]string{"reason"},
			),
			agentTurnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_turn_total",
					Help: "Completed agent turns by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentTurnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_turn_duration_seconds",
					Help:    "Agent turn duration in seconds by provider.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
				},
				[]string{"provider"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_tokens_total",
					Help: "Tokens consumed by provider and direction.",
				},
				[]string{"provider", "direction"},
			),
			chunksTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_chunks_total",
					Help: "Streamed text fragments forwarded to clients by provider.",
				},
				[]string{"provider"},
			),
			providerErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_errors_total",
					Help: "Failed backend calls by provider and error kind.",
				},
				[]string{"provider", "kind"},
			),
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_call_total",
					Help: "Tool calls dispatched from the tool loop by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_call_duration_seconds",
					Help:    "Tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			observerRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "observer_runs_total",
					Help: "Observer invocations by observer and outcome.",
				},
				[]string{"observer", "outcome"},
			),
			observerFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "observer_failures_total",
					Help: "Observer calls whose output could not be used, by observer and reason.",
				},
				[]string{"observer", "reason"},
			),
			storeOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "store_operation_duration_seconds",
					Help:    "Persistence operation duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			storeErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_errors_total",
					Help: "Failed persistence operations by operation.",
				},
				[]string{"op"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.commandsTotal,
			m.framesRejected,
			m.agentTurnTotal,
			m.agentTurnDuration,
			m.tokensTotal,
			m.chunksTotal,
			m.providerErrors,
			m.toolCallTotal,
			m.toolCallDuration,
			m.observerRuns,
			m.observerFailures,
			m.storeOpDuration,
			m.storeErrors,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SessionOpened() {
	getMetrics().activeSessions.Inc()
}

func SessionClosed() {
	getMetrics().activeSessions.Dec()
}

func RecordCommand(action string) {
	getMetrics().commandsTotal.WithLabelValues(action).Inc()
}

func RecordFrameRejected(reason string) {
	getMetrics().framesRejected.WithLabelValues(reason).Inc()
}

func RecordAgentTurn(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentTurnTotal.WithLabelValues(provider, status).Inc()
	m.agentTurnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordTokens(provider string, input, output int) {
	m := getMetrics()
	m.tokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	m.tokensTotal.WithLabelValues(provider, "output").Add(float64(output))
}

func RecordChunk(provider string) {
	getMetrics().chunksTotal.WithLabelValues(provider).Inc()
}

func RecordProviderError(provider, kind string) {
	getMetrics().providerErrors.WithLabelValues(provider, kind).Inc()
}

func RecordToolCall(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolCallTotal.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordObserverRun(observer, outcome string) {
	getMetrics().observerRuns.WithLabelValues(observer, outcome).Inc()
}

func RecordObserverFailure(observer, reason string) {
	getMetrics().observerFailures.WithLabelValues(observer, reason).Inc()
}

func RecordStoreOp(op string, duration time.Duration, err error) {
	m := getMetrics()
	m.storeOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}
