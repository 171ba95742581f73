// Package metrics exposes prometheus collectors for the pending-action
// lifecycle. It implements ledger.LifecycleMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/finbot/ledger-engine/ledger"
)

type Recorder struct {
	staged    *prometheus.CounterVec
	confirmed *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	expired   *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// New registers the lifecycle counters on the given registerer. Pass
// prometheus.DefaultRegisterer in the server.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		staged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_actions_staged_total",
			Help: "Pending actions created, by action kind.",
		}, []string{"kind"}),
		confirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_actions_confirmed_total",
			Help: "Pending actions confirmed and applied, by action kind.",
		}, []string{"kind"}),
		cancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_actions_cancelled_total",
			Help: "Pending actions cancelled before applying, by action kind.",
		}, []string{"kind"}),
		expired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_actions_expired_total",
			Help: "Pending actions that expired unconfirmed, by action kind.",
		}, []string{"kind"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_action_apply_failures_total",
			Help: "Confirmed actions whose apply failed, by action kind.",
		}, []string{"kind"}),
	}
}

var _ ledger.LifecycleMetrics = (*Recorder)(nil)

func (r *Recorder) ActionStaged(kind ledger.ActionKind)    { r.staged.WithLabelValues(string(kind)).Inc() }
func (r *Recorder) ActionConfirmed(kind ledger.ActionKind) { r.confirmed.WithLabelValues(string(kind)).Inc() }
func (r *Recorder) ActionCancelled(kind ledger.ActionKind) { r.cancelled.WithLabelValues(string(kind)).Inc() }
func (r *Recorder) ActionExpired(kind ledger.ActionKind)   { r.expired.WithLabelValues(string(kind)).Inc() }
func (r *Recorder) ApplyFailed(kind ledger.ActionKind)     { r.failed.WithLabelValues(string(kind)).Inc() }
