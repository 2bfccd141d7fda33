package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRelays tracks the number of wallbox sessions currently relayed.
	ActiveRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxy_active_relays",
		Help: "The number of active wallbox-controller relay pairs.",
	})

	// MessagesRelayed counts forwarded frames, labeled by direction.
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_messages_relayed_total",
		Help: "Total number of frames forwarded between wallbox and controller.",
	}, []string{"direction"})

	// MessagesBlocked counts frames dropped by the configuration filter.
	MessagesBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_messages_blocked_total",
		Help: "Total number of frames intentionally blocked by a correction rule.",
	})

	// RulesApplied counts correction rule hits, labeled by rule name.
	RulesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_rules_applied_total",
		Help: "Total number of payload rewrites, per correction rule.",
	}, []string{"rule"})

	// SyntheticMessages counts frames fabricated by the proxy, labeled by kind.
	SyntheticMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_synthetic_messages_total",
		Help: "Total number of frames fabricated on behalf of an endpoint.",
	}, []string{"kind"})

	// DialFailures counts failed controller dial attempts.
	DialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxy_controller_dial_failures_total",
		Help: "Total number of failed outbound connections to the controller.",
	})

	// RelayErrors counts pump terminations caused by read/write errors, labeled by direction.
	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxy_relay_errors_total",
		Help: "Total number of relay pump errors.",
	}, []string{"direction"})
)

// RegisterMetrics registers all the defined Prometheus metrics.
// With promauto, registration is automatic; the function is kept so main
// reads the same as before the promauto migration.
func RegisterMetrics() {}
