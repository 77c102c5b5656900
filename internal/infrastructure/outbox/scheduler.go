package outbox

import (
	"context"
	"time"

	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// Scheduler ejecuta el despachador en cada tick.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	log        *logger.Logger
}

// NewScheduler construye el planificador.
func NewScheduler(d *Dispatcher, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{dispatcher: d, interval: interval, log: log}
}

// Start lanza el loop en una goroutine; termina al cancelar ctx.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("outbox: planificador detenido")
				return
			case <-ticker.C:
				n, err := s.dispatcher.DispatchOnce(ctx)
				if err != nil {
					s.log.Error().Err(err).Msg("outbox: error de despacho")
				} else if n > 0 {
					s.log.Debug().Int("mensajes", n).Msg("outbox: lote publicado")
				}
			}
		}
	}()
}
