// Package outbox publica los eventos guardados en outbox_messages.
package outbox

import (
	"context"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// Publisher destino de los eventos (Kafka en producción).
type Publisher interface {
	Publish(ctx context.Context, msg *entity.OutboxMessage) error
}

// Dispatcher toma lotes pendientes y los publica. Un mensaje que falla incrementa su
// contador de reintentos; con maxRetry alcanzado deja de intentarse.
type Dispatcher struct {
	repo      repository.OutboxRepository
	publisher Publisher
	maxRetry  int
	batchSize int
	log       *logger.Logger
}

// NewDispatcher construye el despachador.
func NewDispatcher(repo repository.OutboxRepository, publisher Publisher, maxRetry, batchSize int, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{repo: repo, publisher: publisher, maxRetry: maxRetry, batchSize: batchSize, log: log}
}

// DispatchOnce procesa un lote. Devuelve cuántos mensajes se publicaron.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.repo.GetPendingBatch(ctx, d.maxRetry, d.batchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, msg); err != nil {
			msg.RetryCount++
			d.log.Warn().Err(err).Str("event_id", msg.ID).Str("tipo", msg.Type).Int("reintentos", msg.RetryCount).
				Msg("outbox: no se pudo publicar")
			if msg.RetryCount >= d.maxRetry {
				d.log.Error().Str("event_id", msg.ID).Str("tipo", msg.Type).Msg("outbox: reintentos agotados")
			}
		} else {
			now := time.Now().UTC()
			msg.ProcessedAt = &now
			processed++
		}
		if err := d.repo.Save(ctx, msg); err != nil {
			d.log.Error().Err(err).Str("event_id", msg.ID).Msg("outbox: no se pudo guardar el mensaje")
		}
	}
	return processed, nil
}
