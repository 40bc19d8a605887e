// Package metrics exposes Prometheus counters for the asset store and the sync pipeline.
//
// A nil *Metrics is valid and records nothing, so components can be built without a
// registry.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector of the application.
type Metrics struct {
	assets     *prometheus.CounterVec
	uses       *prometheus.CounterVec
	sessions   *prometheus.CounterVec
	planOps    *prometheus.CounterVec
	appliedOps *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// New registers the collectors on reg. Returns nil if reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		assets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_assets_total",
				Help: "Assets created, reused or collected by the store",
			},
			[]string{"event"}, // "created", "reused", "collected"
		),
		uses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_uses_total",
				Help: "Asset uses added or removed, by mode",
			},
			[]string{"op", "mode"}, // op: "add", "remove"; mode: "immediate", "pending"
		),
		sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_sessions_total",
				Help: "Editing sessions closed, by outcome",
			},
			[]string{"outcome"}, // "saved", "discarded"
		),
		planOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_plan_operations_total",
				Help: "Operations produced by the sync planner",
			},
			[]string{"op"}, // "cleanup", "copy"
		),
		appliedOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_applied_operations_total",
				Help: "Sync plan operations executed",
			},
			[]string{"op"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxstore_failures_total",
				Help: "Failed operations by kind",
			},
			[]string{"kind"}, // "read", "write", "consistency"
		),
	}
}

func (m *Metrics) AssetCreated() {
	if m == nil {
		return
	}
	m.assets.WithLabelValues("created").Inc()
}

func (m *Metrics) AssetReused() {
	if m == nil {
		return
	}
	m.assets.WithLabelValues("reused").Inc()
}

func (m *Metrics) AssetCollected() {
	if m == nil {
		return
	}
	m.assets.WithLabelValues("collected").Inc()
}

// UsesChanged records count uses added (op "add") or removed (op "remove").
func (m *Metrics) UsesChanged(op string, immediate bool, count int) {
	if m == nil {
		return
	}
	mode := "pending"
	if immediate {
		mode = "immediate"
	}
	m.uses.WithLabelValues(op, mode).Add(float64(count))
}

func (m *Metrics) SessionClosed(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// PlanProduced records the size of a sync plan.
func (m *Metrics) PlanProduced(cleanup, copies int) {
	if m == nil {
		return
	}
	m.planOps.WithLabelValues("cleanup").Add(float64(cleanup))
	m.planOps.WithLabelValues("copy").Add(float64(copies))
}

func (m *Metrics) OperationApplied(op string) {
	if m == nil {
		return
	}
	m.appliedOps.WithLabelValues(op).Inc()
}

func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// Sample is one counter value flattened for display.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Collect gathers every counter of g, sorted by name and labels.
func Collect(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for i, lp := range m.GetLabel() {
				if i > 0 {
					labels += ","
				}
				labels += lp.GetName() + "=" + lp.GetValue()
			}
			out = append(out, Sample{Name: mf.GetName(), Labels: labels, Value: m.GetCounter().GetValue()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}
