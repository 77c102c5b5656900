package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

// StockMovementRepo libro de movimientos append-only sobre PostgreSQL.
type StockMovementRepo struct {
	q Querier
}

// NewStockMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockMovementRepository(q Querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

// Create persiste un movimiento. No existe Update ni Delete.
func (r *StockMovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO stock_movements (id, product_id, direction, quantity, note, external_reference, quote_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.ProductID, m.Direction, m.Quantity, m.Note, m.ExternalReference,
		nullable(m.QuoteID), nullable(m.ActorID), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create stock movement: %w", err)
	}
	return nil
}

// OnHand Σ IN − Σ OUT del producto.
func (r *StockMovementRepo) OnHand(ctx context.Context, productID string) (int64, error) {
	m, err := r.OnHandMany(ctx, []string{productID})
	if err != nil {
		return 0, err
	}
	return m[productID], nil
}

// OnHandMany stock físico de varios productos; los que no tienen movimientos valen 0.
func (r *StockMovementRepo) OnHandMany(ctx context.Context, productIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT product_id, COALESCE(SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END), 0)::BIGINT
		FROM stock_movements WHERE product_id = ANY($1)
		GROUP BY product_id`
	rows, err := r.q.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("on hand: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scan on hand: %w", err)
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// ListByProduct historial del producto, más reciente primero.
func (r *StockMovementRepo) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.StockMovement, error) {
	query := `
		SELECT id, product_id, direction, quantity, note, external_reference, quote_id, actor_id, created_at
		FROM stock_movements WHERE product_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockMovement
	for rows.Next() {
		var m entity.StockMovement
		var quoteID, actorID *string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Direction, &m.Quantity, &m.Note,
			&m.ExternalReference, &quoteID, &actorID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.QuoteID, m.ActorID = deref(quoteID), deref(actorID)
		list = append(list, &m)
	}
	return list, rows.Err()
}

// SettledForQuote unidades ya liquidadas (OUT) de la cotización para el producto.
func (r *StockMovementRepo) SettledForQuote(ctx context.Context, quoteID, productID string) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::BIGINT FROM stock_movements
		WHERE quote_id = $1 AND product_id = $2 AND direction = 'OUT'`,
		quoteID, productID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("settled for quote: %w", err)
	}
	return total, nil
}
