package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// pushMetrics adds the default registry to the Pushgateway group of this
// job and host. A failed push is logged; the command result stands.
func (a *app) pushMetrics() {
	if a.opts.MetricsPushURL == "" {
		return
	}
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "unknown"
	}
	err = push.New(a.opts.MetricsPushURL, a.opts.MetricsJob).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("instance", instance).
		AddContext(a.ctx)
	if err != nil {
		a.logger.WithError(err).WithField("url", a.opts.MetricsPushURL).Warn("assignments.metrics.push_failed")
	}
}
