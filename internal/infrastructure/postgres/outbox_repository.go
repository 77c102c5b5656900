package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

var _ repository.OutboxRepository = (*OutboxRepo)(nil)

// OutboxRepo outbox transaccional sobre PostgreSQL.
type OutboxRepo struct {
	q Querier
}

// NewOutboxRepository construye el adaptador.
func NewOutboxRepository(q Querier) *OutboxRepo {
	return &OutboxRepo{q: q}
}

// Insert guarda el evento; dentro de una tx se confirma junto con el cambio de estado.
func (r *OutboxRepo) Insert(ctx context.Context, msg *entity.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO outbox_messages (id, type, aggregate_id, payload, retry_count, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
		msg.ID, msg.Type, msg.AggregateID, msg.Payload, msg.RetryCount, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

// GetPendingBatch pendientes sin procesar y con reintentos disponibles, más antiguos primero.
func (r *OutboxRepo) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]*entity.OutboxMessage, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, type, aggregate_id, payload, retry_count, created_at, processed_at
		FROM outbox_messages
		WHERE processed_at IS NULL AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2`,
		maxRetry, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	defer rows.Close()
	var list []*entity.OutboxMessage
	for rows.Next() {
		var m entity.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Type, &m.AggregateID, &m.Payload, &m.RetryCount, &m.CreatedAt, &m.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// Save actualiza reintentos y, si viene, la marca de procesado.
func (r *OutboxRepo) Save(ctx context.Context, msg *entity.OutboxMessage) error {
	if msg.ID == "" {
		return errors.New("outbox message id is empty")
	}
	_, err := r.q.Exec(ctx, `
		UPDATE outbox_messages
		SET retry_count = $2, processed_at = COALESCE($3::timestamptz, processed_at)
		WHERE id = $1`,
		msg.ID, msg.RetryCount, msg.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("save outbox: %w", err)
	}
	return nil
}
