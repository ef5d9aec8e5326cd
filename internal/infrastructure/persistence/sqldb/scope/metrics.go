package scope

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"todoapi/internal/errs"
)

// Transaction outcomes recorded by ObserveTransaction.
const (
	OutcomeCommit         = "commit"
	OutcomeRollback       = "rollback"
	OutcomeBeginFailed    = "begin_failed"
	OutcomeCommitFailed   = "commit_failed"
	OutcomeRollbackFailed = "rollback_failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	scopesOpened    prometheus.Counter
	acquireFailures prometheus.Counter
	checkedOut      prometheus.Gauge
	guardWait       prometheus.Histogram
	transactions    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		scopesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todoapi",
			Subsystem: "db_scope",
			Name:      "opened_total",
			Help:      "Top-level connection scopes opened.",
		}),
		acquireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todoapi",
			Subsystem: "db_scope",
			Name:      "acquire_failures_total",
			Help:      "Connection checkouts that failed.",
		}),
		checkedOut: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "todoapi",
			Subsystem: "db_scope",
			Name:      "connections_checked_out",
			Help:      "Connections currently bound to a scope.",
		}),
		guardWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "todoapi",
			Subsystem: "db_scope",
			Name:      "guard_wait_seconds",
			Help:      "Time spent waiting for exclusive access to a scope's connection.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todoapi",
			Subsystem: "db_tx",
			Name:      "finished_total",
			Help:      "Units of work by outcome.",
		}, []string{"outcome"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.scopesOpened, m.acquireFailures, m.checkedOut, m.guardWait, m.transactions} {
		if err := reg.Register(c); err != nil {
			return nil, errs.Wrap(err, "register scope metrics")
		}
	}
	return m, nil
}

func (m *Metrics) opened() {
	if m == nil {
		return
	}
	m.scopesOpened.Inc()
	m.checkedOut.Inc()
}

func (m *Metrics) released() {
	if m == nil {
		return
	}
	m.checkedOut.Dec()
}

func (m *Metrics) acquireFailed() {
	if m == nil {
		return
	}
	m.acquireFailures.Inc()
}

func (m *Metrics) waited(d time.Duration) {
	if m == nil {
		return
	}
	m.guardWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveTransaction(outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}
