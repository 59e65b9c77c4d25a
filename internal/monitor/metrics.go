package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the monitor's Prometheus metrics.
type Collector struct {
	Registry *prometheus.Registry

	probeUp       *prometheus.GaugeVec
	probeDuration *prometheus.HistogramVec
	probesTotal   *prometheus.CounterVec
	probeErrors   *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry. Safe to
// call multiple times (e.g., in tests) — each call creates an
// independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		probeUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgline_probe_up",
				Help: "Whether the last probe of a profile succeeded (1=up, 0=down)",
			},
			[]string{"profile"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgline_probe_duration_seconds",
				Help:    "Duration of liveness probes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"profile"},
		),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgline_probes_total",
				Help: "Total probes per profile and outcome",
			},
			[]string{"profile", "outcome"},
		),
		probeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgline_probe_errors_total",
				Help: "Probe errors per profile and reason",
			},
			[]string{"profile", "reason"},
		),
	}

	reg.MustRegister(c.probeUp, c.probeDuration, c.probesTotal, c.probeErrors)
	return c
}

// ProbeCompleted records one finished probe.
func (c *Collector) ProbeCompleted(profile string, d time.Duration, up bool) {
	c.probeDuration.WithLabelValues(profile).Observe(d.Seconds())
	outcome := "success"
	v := 1.0
	if !up {
		outcome = "failure"
		v = 0
	}
	c.probesTotal.WithLabelValues(profile, outcome).Inc()
	c.probeUp.WithLabelValues(profile).Set(v)
}

// ProbeError counts a categorized probe error.
func (c *Collector) ProbeError(profile, reason string) {
	c.probeErrors.WithLabelValues(profile, reason).Inc()
}

// RemoveProfile drops all series for a profile removed from the config.
func (c *Collector) RemoveProfile(profile string) {
	labels := prometheus.Labels{"profile": profile}
	c.probeUp.DeletePartialMatch(labels)
	c.probeDuration.DeletePartialMatch(labels)
	c.probesTotal.DeletePartialMatch(labels)
	c.probeErrors.DeletePartialMatch(labels)
}
