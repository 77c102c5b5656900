package freight

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// Compensator cancela cotizaciones no finalizadas devolviendo su stock provisionado.
type Compensator struct {
	repos        inventory.Repos
	reservations *inventory.ReservationManager
	log          *logger.Logger
	now          func() time.Time
}

// NewCompensator construye el caso de uso de cancelación.
func NewCompensator(repos inventory.Repos, reservations *inventory.ReservationManager, log *logger.Logger) *Compensator {
	if log == nil {
		log = logger.Nop()
	}
	return &Compensator{repos: repos, reservations: reservations, log: log, now: time.Now}
}

// CancelQuote libera la reserva y borra la cotización con sus opciones en una sola transacción.
// Una segunda cancelación devuelve ErrNotFound sin volver a descontar.
func (c *Compensator) CancelQuote(ctx context.Context, quoteID string) error {
	if quoteID == "" {
		return domain.Invalid("id de cotización requerido")
	}
	quote, err := c.repos.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return err
	}
	if quote == nil {
		return fmt.Errorf("%w: cotización %s", domain.ErrNotFound, quoteID)
	}
	if !quote.Status.Deletable() {
		return domain.Conflict("la cotización %s ya fue finalizada y no puede cancelarse", quoteID)
	}

	released, err := c.reservations.Release(ctx, quoteID, nil,
		func(ctx context.Context, tx inventory.Repos, q *entity.Quote, items []entity.QuoteLineItem) error {
			if err := tx.Quotes.Delete(ctx, q.ID); err != nil {
				return err
			}
			return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteCancelled, q.ID, events.QuoteEvent{
				QuoteID:    q.ID,
				Status:     string(q.Status),
				Lines:      events.LinesFrom(items),
				OccurredAt: c.now().UTC(),
			})
		})
	if err != nil {
		return err
	}
	c.log.Info().Str("quote_id", quoteID).Str("estado", string(quote.Status)).Int64("unidades", released).Msg("cotización cancelada")
	return nil
}
