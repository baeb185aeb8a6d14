package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletvisor",
			Subsystem: "orchestrator",
			Name:      "operations_total",
			Help:      "Number of orchestrator operations by result.",
		}, []string{"op", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletvisor",
			Subsystem: "orchestrator",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of orchestrator operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
	runtimeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletvisor",
			Subsystem: "runtime",
			Name:      "errors_total",
			Help:      "Container runtime errors by call and class.",
		}, []string{"call", "class"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletvisor",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Wallet RPC calls by method and result.",
		}, []string{"method", "result"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletvisor",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Wallet RPC round trip time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"},
	)
	reaped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletvisor",
			Subsystem: "reaper",
			Name:      "users_total",
			Help:      "Users handled by the session reaper by outcome (expired, cleared, failed).",
		}, []string{"outcome"},
	)
	cleanupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "walletvisor",
			Subsystem: "reaper",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full cleanup pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	connectedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletvisor",
			Subsystem: "reaper",
			Name:      "connected_sessions",
			Help:      "Connected records seen by the last cleanup pass.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{operations, operationDuration, runtimeErrors, rpcCalls, rpcDuration, reaped, cleanupDuration, connectedSessions, hostRSS, hostCPU, hostDiskFree}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveOperation(op string, err error, seconds float64) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(seconds)
}

func IncRuntimeError(call, class string) {
	if regOK.Load() {
		runtimeErrors.WithLabelValues(call, class).Inc()
	}
}

func ObserveRPC(method, result string, seconds float64) {
	if regOK.Load() {
		rpcCalls.WithLabelValues(method, result).Inc()
		rpcDuration.WithLabelValues(method).Observe(seconds)
	}
}

func AddReaped(outcome string, n int) {
	if regOK.Load() && n > 0 {
		reaped.WithLabelValues(outcome).Add(float64(n))
	}
}

func ObserveCleanup(seconds float64, connected int) {
	if regOK.Load() {
		cleanupDuration.Observe(seconds)
		connectedSessions.Set(float64(connected))
	}
}
