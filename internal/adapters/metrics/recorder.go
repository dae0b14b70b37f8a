// Package metrics exports intake counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/bnema/order-intake-bot/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake"

type Recorder struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	inputsRejected   *prometheus.CounterVec
	quantityReported prometheus.Counter
	ledgerFailures   *prometheus.CounterVec
}

var _ ports.IntakeMetrics = (*Recorder)(nil)

// NewRecorder registers the intake counters, plus Go runtime and process
// collectors, on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions opened with /start.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions destroyed, by reason.",
		}, []string{"reason"}),
		inputsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_rejected_total",
			Help:      "Inputs that did not match the offered choices, by step.",
		}, []string{"step"}),
		quantityReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quantity_reported_total",
			Help:      "Units recorded against the ledger.",
		}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_failures_total",
			Help:      "Ledger reads or writes that failed, by operation.",
		}, []string{"op"}),
	}

	r.registry.MustRegister(
		r.sessionsStarted,
		r.sessionsEnded,
		r.inputsRejected,
		r.quantityReported,
		r.ledgerFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

func (r *Recorder) SessionStarted() {
	r.sessionsStarted.Inc()
}

func (r *Recorder) SessionEnded(reason domain.EndReason) {
	r.sessionsEnded.WithLabelValues(string(reason)).Inc()
}

func (r *Recorder) InputRejected(step domain.Step) {
	r.inputsRejected.WithLabelValues(string(step)).Inc()
}

func (r *Recorder) QuantityReported(quantity int) {
	if quantity > 0 {
		r.quantityReported.Add(float64(quantity))
	}
}

func (r *Recorder) LedgerFailure(op string) {
	r.ledgerFailures.WithLabelValues(op).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
