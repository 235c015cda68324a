package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsJob = "sqs_contact_formatter"

// per cycle counters. The process exits after one cycle so nothing scrapes
// it; metrics are pushed to a Pushgateway instead.
type CycleMetrics struct {
	registry *prometheus.Registry
	messages *prometheus.CounterVec
	duration prometheus.Gauge
	lastRun  prometheus.Gauge
}

func NewCycleMetrics() *CycleMetrics {
	m := &CycleMetrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_formatter_messages_total",
			Help: "Messages handled in the cycle, by failure stage (none for success).",
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contact_formatter_cycle_duration_seconds",
			Help: "Wall time of the last polling cycle.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contact_formatter_last_cycle_timestamp_seconds",
			Help: "Unix time the last polling cycle finished.",
		}),
	}
	m.registry.MustRegister(m.messages, m.duration, m.lastRun)
	return m
}

func (m *CycleMetrics) Observe(outcomes []ProcessingOutcome, took time.Duration, finished time.Time) {
	for _, o := range outcomes {
		m.messages.WithLabelValues(string(o.FailureStage)).Inc()
	}
	m.duration.Set(took.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

func (m *CycleMetrics) Push(gatewayURL string) error {
	if err := push.New(gatewayURL, metricsJob).Gatherer(m.registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
