package entity

import "time"

// OutboxMessage evento pendiente de publicar, escrito en la misma transacción que el cambio de estado.
type OutboxMessage struct {
	ID          string
	Type        string
	AggregateID string
	Payload     []byte
	RetryCount  int
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
