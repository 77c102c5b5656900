package freight

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

const staleReason = "cotización abandonada en PROCESSING"

// StaleQuoteReaper pasa a ERROR las cotizaciones que quedaron en PROCESSING (caída del proceso
// entre la reserva y la respuesta del agregador) y libera su stock.
type StaleQuoteReaper struct {
	repos        inventory.Repos
	reservations *inventory.ReservationManager
	log          *logger.Logger
	cfg          Config
	now          func() time.Time
}

// NewStaleQuoteReaper construye el recolector.
func NewStaleQuoteReaper(repos inventory.Repos, reservations *inventory.ReservationManager, log *logger.Logger, cfg Config) *StaleQuoteReaper {
	if log == nil {
		log = logger.Nop()
	}
	return &StaleQuoteReaper{repos: repos, reservations: reservations, log: log, cfg: cfg, now: time.Now}
}

// Run ejecuta ReapOnce en cada tick hasta que ctx se cancele.
func (r *StaleQuoteReaper) Run(ctx context.Context) {
	interval := r.cfg.StaleReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Msg("recolector de cotizaciones")
			}
		}
	}
}

// ReapOnce procesa las cotizaciones vencidas. Devuelve cuántas pasaron a ERROR.
func (r *StaleQuoteReaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.cfg.StaleAfter)
	ids, err := r.repos.Quotes.ListStale(ctx, entity.QuoteProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, id := range ids {
		_, err := r.reservations.Release(ctx, id, []entity.QuoteStatus{entity.QuoteProcessing},
			func(ctx context.Context, tx inventory.Repos, q *entity.Quote, items []entity.QuoteLineItem) error {
				ok, err := advance(ctx, tx, q, entity.QuoteError, staleReason)
				if err != nil {
					return err
				}
				if !ok {
					return domain.Conflict("la cotización %s cambió de estado", q.ID)
				}
				return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteFailed, q.ID, events.QuoteEvent{
					QuoteID:    q.ID,
					Status:     string(entity.QuoteError),
					Reason:     staleReason,
					Lines:      events.LinesFrom(items),
					OccurredAt: r.now().UTC(),
				})
			})
		switch {
		case err == nil:
			reaped++
			r.log.Warn().Str("quote_id", id).Msg("cotización abandonada pasada a ERROR, reserva liberada")
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
			// resuelta o cancelada entre el listado y la liberación
		default:
			return reaped, err
		}
	}
	return reaped, nil
}
