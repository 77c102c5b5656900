package repository

import (
	"context"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// ProductRepository puerto de lectura del catálogo más el contador de provisionado.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Product, error)
	List(ctx context.Context) ([]*entity.Product, error)
	// LockForUpdate bloquea las filas en orden ascendente de id (SELECT ... FOR UPDATE).
	// Solo tiene sentido dentro de una transacción.
	LockForUpdate(ctx context.Context, ids []string) (map[string]*entity.Product, error)
	// AddProvisioned suma delta (puede ser negativo) al provisionado del producto.
	AddProvisioned(ctx context.Context, productID string, delta int64) error
}
