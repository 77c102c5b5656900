package inventory

import (
	"context"

	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

// Repos agrupa los repositorios que participan en una unidad de trabajo.
// Fuera de una transacción se usan atados al pool; dentro, atados a la tx.
type Repos struct {
	Products  repository.ProductRepository
	Movements repository.StockMovementRepository
	Quotes    repository.QuoteRepository
	Outbox    repository.OutboxRepository
}

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Commit si fn devuelve nil, Rollback en cualquier otro caso.
type TxRunner interface {
	Run(ctx context.Context, fn func(tx Repos) error) error
}
