package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// Resultados de reserva reportados a métricas.
const (
	ReservationOK           = "ok"
	ReservationInsufficient = "insufficient"
	ReservationFailed       = "error"
)

// ReleaseHook se ejecuta dentro de la misma transacción que la liberación,
// con la cotización bloqueada y los ítems ya devueltos al disponible.
type ReleaseHook func(ctx context.Context, tx Repos, quote *entity.Quote, released []entity.QuoteLineItem) error

// ReservationManager reserva y libera stock para cotizaciones.
// Reserva y liberación del mismo producto están mutuamente excluidas: bloqueo en proceso
// (ProductLocks) más FOR UPDATE sobre las filas de producto.
type ReservationManager struct {
	txRunner TxRunner
	repos    Repos
	locks    *ProductLocks
	metrics  ports.Metrics
	log      *logger.Logger
}

// NewReservationManager construye el gestor. repos son los repositorios fuera de transacción.
func NewReservationManager(txRunner TxRunner, repos Repos, locks *ProductLocks, metrics ports.Metrics, log *logger.Logger) *ReservationManager {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &ReservationManager{txRunner: txRunner, repos: repos, locks: locks, metrics: metrics, log: log}
}

// Reserve provisiona toda la canasta o nada y, en la misma transacción, crea la cotización
// (estado PROCESSING) con sus ítems. Si algún producto no alcanza devuelve *domain.InsufficientStockError
// con el primer producto (en orden de id) que falla, sin efectos.
func (m *ReservationManager) Reserve(ctx context.Context, quote *entity.Quote, lines []freight.BasketLine) error {
	if quote == nil || quote.ID == "" {
		return domain.Invalid("cotización sin id")
	}
	if len(lines) == 0 {
		return domain.Invalid("la canasta debe tener al menos un producto")
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return domain.Invalid("producto sin id en la canasta")
		}
		if l.Quantity <= 0 {
			return domain.Invalid("cantidad debe ser mayor a cero para el producto %s", l.ProductID)
		}
	}
	basket := freight.MergeBasket(lines)
	ids := make([]string, 0, len(basket))
	for _, l := range basket {
		ids = append(ids, l.ProductID)
	}

	unlock, err := m.locks.Lock(ctx, ids)
	if err != nil {
		return err
	}
	defer unlock()

	err = m.txRunner.Run(ctx, func(tx Repos) error {
		products, err := tx.Products.LockForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		onHand, err := tx.Movements.OnHandMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, l := range basket {
			p, ok := products[l.ProductID]
			if !ok {
				return domain.Invalid("producto %s no existe", l.ProductID)
			}
			available := onHand[l.ProductID] - p.ProvisionedQuantity
			if l.Quantity > available {
				return &domain.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   l.Quantity,
					Available:   available,
				}
			}
		}
		for _, l := range basket {
			if err := tx.Products.AddProvisioned(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		quote.Status = entity.QuoteProcessing
		if err := tx.Quotes.Create(ctx, quote); err != nil {
			return fmt.Errorf("crear cotización: %w", err)
		}
		items := make([]entity.QuoteLineItem, 0, len(basket))
		for _, l := range basket {
			items = append(items, entity.QuoteLineItem{QuoteID: quote.ID, ProductID: l.ProductID, Quantity: l.Quantity})
		}
		if err := tx.Quotes.CreateItems(ctx, items); err != nil {
			return fmt.Errorf("crear ítems de cotización: %w", err)
		}
		return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteReserved, quote.ID, events.QuoteEvent{
			QuoteID:    quote.ID,
			Status:     string(entity.QuoteProcessing),
			Lines:      events.LinesFrom(items),
			OccurredAt: quote.CreatedAt,
		})
	})
	switch {
	case err == nil:
		m.metrics.ReservationResult(ReservationOK)
	case errors.Is(err, domain.ErrInsufficientStock):
		m.metrics.ReservationResult(ReservationInsufficient)
	default:
		m.metrics.ReservationResult(ReservationFailed)
	}
	return err
}

// Release devuelve al disponible todo lo provisionado por la cotización y borra sus ítems.
// Es idempotente: sin ítems no hay nada que devolver. allowed restringe los estados desde los que
// se libera (vacío = cualquiera salvo FINALIZED). after corre en la misma transacción.
// Devuelve el total de unidades liberadas.
func (m *ReservationManager) Release(ctx context.Context, quoteID string, allowed []entity.QuoteStatus, after ReleaseHook) (int64, error) {
	if quoteID == "" {
		return 0, domain.Invalid("id de cotización requerido")
	}
	// lectura previa sin bloqueo: solo para saber qué productos bloquear en proceso
	items, err := m.repos.Quotes.ListItems(ctx, quoteID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	unlock, err := m.locks.Lock(ctx, ids)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var released int64
	err = m.txRunner.Run(ctx, func(tx Repos) error {
		released = 0
		quote, err := tx.Quotes.GetForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return fmt.Errorf("%w: cotización %s", domain.ErrNotFound, quoteID)
		}
		if quote.Status == entity.QuoteFinalized {
			return domain.Conflict("la cotización %s ya fue finalizada", quoteID)
		}
		if len(allowed) > 0 && !statusIn(quote.Status, allowed) {
			return domain.Conflict("la cotización %s está en estado %s", quoteID, quote.Status)
		}

		current, err := tx.Quotes.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		if len(current) > 0 {
			lockIDs := make([]string, 0, len(current))
			for _, it := range current {
				lockIDs = append(lockIDs, it.ProductID)
			}
			if _, err := tx.Products.LockForUpdate(ctx, uniqueSorted(lockIDs)); err != nil {
				return err
			}
			for _, it := range current {
				if err := tx.Products.AddProvisioned(ctx, it.ProductID, -it.Quantity); err != nil {
					return err
				}
				released += it.Quantity
			}
			if _, err := tx.Quotes.DeleteItems(ctx, quoteID); err != nil {
				return err
			}
		}
		if after != nil {
			return after(ctx, tx, quote, current)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if m.log != nil && released > 0 {
		m.log.Debug().Str("quote_id", quoteID).Int64("unidades", released).Msg("reserva liberada")
	}
	return released, nil
}

func statusIn(s entity.QuoteStatus, set []entity.QuoteStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
