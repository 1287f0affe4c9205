// Package metrics records dialog engine counters with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error kinds used as the "kind" label of orderbot_errors_total.
const (
	KindNLUUnavailable   = "nlu_unavailable"
	KindNLUMalformed     = "nlu_malformed_response"
	KindInvalidSlotValue = "invalid_slot_value"
	KindStoreUnavailable = "order_store_unavailable"
	KindOrderConflict    = "order_conflict"
)

// NLU outcomes used as the "outcome" label of the duration histogram.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
)

// PrometheusRecorder counts turns and errors of the dialog engine.
type PrometheusRecorder struct {
	turnsTotal      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	duplicatesTotal prometheus.Counter
	nluDuration     *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderbot_turns_total",
				Help: "Processed inbound messages by resulting order status",
			},
			[]string{"status"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderbot_errors_total",
				Help: "Errors handled during turns by kind",
			},
			[]string{"kind"},
		),
		duplicatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orderbot_duplicate_turns_total",
				Help: "Inbound messages answered from a stored turn",
			},
		),
		nluDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderbot_nlu_duration_seconds",
				Help:    "Duration of slot extraction calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

func (p *PrometheusRecorder) ObserveTurn(status string) {
	p.turnsTotal.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncError(kind string) {
	p.errorsTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncDuplicate() {
	p.duplicatesTotal.Inc()
}

func (p *PrometheusRecorder) ObserveNLU(outcome string, d time.Duration) {
	p.nluDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
