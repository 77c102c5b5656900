package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// MovementInput datos para registrar un movimiento en el libro.
type MovementInput struct {
	ProductID         string
	Direction         string
	Quantity          int64
	Note              string
	ExternalReference string
	QuoteID           string // solo OUT: liquida la reserva de una cotización FINALIZED
	ActorID           string
}

// StockLedger libro de movimientos de stock. on_hand es la suma con signo de los movimientos.
type StockLedger struct {
	txRunner TxRunner
	repos    Repos
	locks    *ProductLocks
	log      *logger.Logger
	now      func() time.Time
}

// NewStockLedger construye el libro. Comparte ProductLocks con ReservationManager.
func NewStockLedger(txRunner TxRunner, repos Repos, locks *ProductLocks, log *logger.Logger) *StockLedger {
	return &StockLedger{txRunner: txRunner, repos: repos, locks: locks, log: log, now: time.Now}
}

// OnHand stock físico del producto.
func (l *StockLedger) OnHand(ctx context.Context, productID string) (int64, error) {
	lvl, err := l.Level(ctx, productID)
	if err != nil {
		return 0, err
	}
	return lvl.OnHand, nil
}

// Level físico, provisionado y disponible de un producto.
func (l *StockLedger) Level(ctx context.Context, productID string) (*entity.StockLevel, error) {
	if productID == "" {
		return nil, domain.Invalid("producto requerido")
	}
	p, err := l.repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, productID)
	}
	onHand, err := l.repos.Movements.OnHand(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &entity.StockLevel{
		ProductID:   p.ID,
		Code:        p.Code,
		Name:        p.Name,
		OnHand:      onHand,
		Provisioned: p.ProvisionedQuantity,
	}, nil
}

// Levels foto de stock de todo el catálogo.
func (l *StockLedger) Levels(ctx context.Context) ([]entity.StockLevel, error) {
	products, err := l.repos.Products.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	onHand, err := l.repos.Movements.OnHandMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]entity.StockLevel, 0, len(products))
	for _, p := range products {
		out = append(out, entity.StockLevel{
			ProductID:   p.ID,
			Code:        p.Code,
			Name:        p.Name,
			OnHand:      onHand[p.ID],
			Provisioned: p.ProvisionedQuantity,
		})
	}
	return out, nil
}

// History movimientos del producto, más recientes primero.
func (l *StockLedger) History(ctx context.Context, productID string, limit, offset int) ([]*entity.StockMovement, error) {
	if productID == "" {
		return nil, domain.Invalid("producto requerido")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return l.repos.Movements.ListByProduct(ctx, productID, limit, offset)
}

// AppendMovement registra un movimiento validando el disponible.
// Una salida sin cotización no puede superar el disponible (no consume stock reservado).
// Una salida con QuoteID liquida la reserva: descuenta físico y provisionado a la vez,
// limitada a lo reservado y aún no liquidado por la cotización.
func (l *StockLedger) AppendMovement(ctx context.Context, in MovementInput) (*entity.StockMovement, error) {
	dir := strings.ToUpper(strings.TrimSpace(in.Direction))
	if in.ProductID == "" {
		return nil, domain.Invalid("producto requerido")
	}
	if dir != entity.MovementIN && dir != entity.MovementOUT {
		return nil, domain.Invalid("tipo de movimiento inválido: %q (IN u OUT)", in.Direction)
	}
	if in.Quantity <= 0 {
		return nil, domain.Invalid("cantidad debe ser mayor a cero")
	}
	if dir == entity.MovementIN && in.QuoteID != "" {
		return nil, domain.Invalid("una entrada no puede referenciar una cotización")
	}

	unlock, err := l.locks.Lock(ctx, []string{in.ProductID})
	if err != nil {
		return nil, err
	}
	defer unlock()

	mov := &entity.StockMovement{
		ID:                uuid.New().String(),
		ProductID:         in.ProductID,
		Direction:         dir,
		Quantity:          in.Quantity,
		Note:              strings.TrimSpace(in.Note),
		ExternalReference: strings.TrimSpace(in.ExternalReference),
		QuoteID:           in.QuoteID,
		ActorID:           in.ActorID,
		CreatedAt:         l.now().UTC(),
	}
	err = l.txRunner.Run(ctx, func(tx Repos) error {
		products, err := tx.Products.LockForUpdate(ctx, []string{in.ProductID})
		if err != nil {
			return err
		}
		p, ok := products[in.ProductID]
		if !ok {
			return fmt.Errorf("%w: producto %s", domain.ErrNotFound, in.ProductID)
		}
		if dir == entity.MovementOUT {
			onHand, err := tx.Movements.OnHand(ctx, in.ProductID)
			if err != nil {
				return err
			}
			if in.QuoteID != "" {
				if err := settleReservation(ctx, tx, p, onHand, mov); err != nil {
					return err
				}
			} else if available := onHand - p.ProvisionedQuantity; in.Quantity > available {
				return &domain.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   in.Quantity,
					Available:   available,
				}
			}
		}
		return tx.Movements.Create(ctx, mov)
	})
	if err != nil {
		return nil, err
	}
	if l.log != nil {
		l.log.Info().
			Str("product_id", mov.ProductID).
			Str("tipo", mov.Direction).
			Int64("cantidad", mov.Quantity).
			Str("quote_id", mov.QuoteID).
			Msg("movimiento de stock registrado")
	}
	return mov, nil
}

func settleReservation(ctx context.Context, tx Repos, p *entity.Product, onHand int64, mov *entity.StockMovement) error {
	quote, err := tx.Quotes.GetByID(ctx, mov.QuoteID)
	if err != nil {
		return err
	}
	if quote == nil {
		return fmt.Errorf("%w: cotización %s", domain.ErrNotFound, mov.QuoteID)
	}
	if quote.Status != entity.QuoteFinalized {
		return domain.Conflict("solo se liquidan cotizaciones finalizadas (estado actual %s)", quote.Status)
	}
	items, err := tx.Quotes.ListItems(ctx, quote.ID)
	if err != nil {
		return err
	}
	var reserved int64
	for _, it := range items {
		if it.ProductID == p.ID {
			reserved += it.Quantity
		}
	}
	if reserved == 0 {
		return domain.Invalid("el producto %s no pertenece a la cotización %s", p.ID, quote.ID)
	}
	settled, err := tx.Movements.SettledForQuote(ctx, quote.ID, p.ID)
	if err != nil {
		return err
	}
	if pending := reserved - settled; mov.Quantity > pending {
		return domain.Conflict("la salida excede lo reservado pendiente de liquidar (%d)", pending)
	}
	if mov.Quantity > onHand {
		return &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: mov.Quantity, Available: onHand}
	}
	if err := tx.Products.AddProvisioned(ctx, p.ID, -mov.Quantity); err != nil {
		return err
	}
	return events.Enqueue(ctx, tx.Outbox, events.TypeReservationSettled, quote.ID, events.QuoteEvent{
		QuoteID:    quote.ID,
		Status:     string(quote.Status),
		Lines:      []events.Line{{ProductID: p.ID, Quantity: mov.Quantity}},
		OccurredAt: mov.CreatedAt,
	})
}
