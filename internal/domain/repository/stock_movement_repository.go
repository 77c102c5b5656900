package repository

import (
	"context"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// StockMovementRepository puerto del libro de movimientos (append-only).
type StockMovementRepository interface {
	Create(ctx context.Context, movement *entity.StockMovement) error
	OnHand(ctx context.Context, productID string) (int64, error)
	OnHandMany(ctx context.Context, productIDs []string) (map[string]int64, error)
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.StockMovement, error)
	// SettledForQuote suma las salidas que referencian la cotización para el producto.
	SettledForQuote(ctx context.Context, quoteID, productID string) (int64, error)
}
