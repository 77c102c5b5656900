package repository

import (
	"context"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// OutboxRepository persistencia de eventos pendientes de publicación.
type OutboxRepository interface {
	Insert(ctx context.Context, msg *entity.OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]*entity.OutboxMessage, error)
	Save(ctx context.Context, msg *entity.OutboxMessage) error
}
