package ports

import "time"

// Metrics puerto de métricas del núcleo. La implementación Prometheus vive en infrastructure/metrics.
type Metrics interface {
	ReservationResult(result string)
	AggregatorCall(op, outcome string, elapsed time.Duration)
	QuoteStatus(status string)
	LabelSaga(outcome string)
}

// NopMetrics descarta todo; útil en tests.
type NopMetrics struct{}

func (NopMetrics) ReservationResult(string)                     {}
func (NopMetrics) AggregatorCall(string, string, time.Duration) {}
func (NopMetrics) QuoteStatus(string)                           {}
func (NopMetrics) LabelSaga(string)                             {}
