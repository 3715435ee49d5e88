package token

import (
	metrics "github.com/hashicorp/go-metrics"
)

// Metrics emits authority outcomes as vortex.token.* counters. Rejections
// carry the internal reason as a label.
type Metrics struct {
	sink *metrics.Metrics
}

// NewMetrics emits through m, or through the global go-metrics instance
// when m is nil.
func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{sink: m}
}

func (m *Metrics) incr(name string, reason Reason) {
	key := []string{"vortex", "token", name}
	var labels []metrics.Label
	if reason != "" {
		labels = []metrics.Label{{Name: "reason", Value: string(reason)}}
	}
	if m.sink != nil {
		m.sink.IncrCounterWithLabels(key, 1, labels)
		return
	}
	metrics.IncrCounterWithLabels(key, 1, labels)
}

func (m *Metrics) IncrementIssued()           { m.incr("issued", "") }
func (m *Metrics) IncrementIssueFailed()      { m.incr("issue_failed", "") }
func (m *Metrics) IncrementValidated()        { m.incr("validated", "") }
func (m *Metrics) IncrementRejected(r Reason) { m.incr("rejected", r) }
func (m *Metrics) IncrementInvalidated()      { m.incr("invalidated", "") }
