// Package metrics implementación Prometheus del puerto de métricas.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/Cotizador-api/internal/application/ports"
)

var _ ports.Metrics = (*Metrics)(nil)

// Metrics colectores del núcleo de fletes. Un *Metrics nil descarta todo.
type Metrics struct {
	reservations   *prometheus.CounterVec
	aggregatorReqs *prometheus.CounterVec
	aggregatorLat  *prometheus.HistogramVec
	quotes         *prometheus.CounterVec
	labels         *prometheus.CounterVec
}

// New registra los colectores en reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_reservations_total",
			Help: "Intentos de reserva de stock por resultado",
		}, []string{"result"}),
		aggregatorReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_aggregator_requests_total",
			Help: "Llamadas al agregador de fletes por operación y resultado",
		}, []string{"operation", "outcome"}),
		aggregatorLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freight_aggregator_request_duration_seconds",
			Help:    "Latencia de las llamadas al agregador",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_quotes_total",
			Help: "Cotizaciones por estado resultante",
		}, []string{"status"}),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_label_sagas_total",
			Help: "Emisiones de etiqueta por resultado",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.reservations, m.aggregatorReqs, m.aggregatorLat, m.quotes, m.labels)
	return m
}

func (m *Metrics) ReservationResult(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) AggregatorCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.aggregatorReqs.WithLabelValues(op, outcome).Inc()
	m.aggregatorLat.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) QuoteStatus(status string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(status).Inc()
}

func (m *Metrics) LabelSaga(outcome string) {
	if m == nil {
		return
	}
	m.labels.WithLabelValues(outcome).Inc()
}
