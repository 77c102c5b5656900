package freight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// CreateQuoteInput datos de una nueva cotización.
type CreateQuoteInput struct {
	OriginCompanyID       string
	DestinationPostalCode string
	RecipientName         string
	Items                 []freight.BasketLine
	ActorID               string
}

// QuoteOrchestrator reserva stock, consulta el agregador y persiste el resultado.
//
//	reservar (tx) → consultar agregador (sin locks) → QUOTED | INVALID | ERROR (tx)
//
// Ningún bloqueo ni transacción se mantiene durante la llamada de red.
type QuoteOrchestrator struct {
	txRunner     inventory.TxRunner
	repos        inventory.Repos
	companyRepo  repository.CompanyRepository
	reservations *inventory.ReservationManager
	rates        ports.RateAggregator
	metrics      ports.Metrics
	log          *logger.Logger
	cfg          Config
	now          func() time.Time
}

// NewQuoteOrchestrator construye el orquestador.
func NewQuoteOrchestrator(
	txRunner inventory.TxRunner,
	repos inventory.Repos,
	companyRepo repository.CompanyRepository,
	reservations *inventory.ReservationManager,
	rates ports.RateAggregator,
	metrics ports.Metrics,
	log *logger.Logger,
	cfg Config,
) *QuoteOrchestrator {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &QuoteOrchestrator{
		txRunner:     txRunner,
		repos:        repos,
		companyRepo:  companyRepo,
		reservations: reservations,
		rates:        rates,
		metrics:      metrics,
		log:          log,
		cfg:          cfg,
		now:          time.Now,
	}
}

// CreateQuote ejecuta el flujo completo. Con falla del agregador devuelve la cotización
// en ERROR junto con un *domain.AggregatorError; la reserva ya fue liberada.
func (o *QuoteOrchestrator) CreateQuote(ctx context.Context, in CreateQuoteInput) (*QuoteView, error) {
	// ── 1. Validación ─────────────────────────────────────────────────────────
	postal := freight.NormalizePostalCode(in.DestinationPostalCode)
	if strings.TrimSpace(in.OriginCompanyID) == "" {
		return nil, domain.Invalid("empresa de origen requerida")
	}
	if !freight.ValidPostalCode(postal) {
		return nil, domain.Invalid("CEP de destino inválido: %q", in.DestinationPostalCode)
	}
	recipient := strings.TrimSpace(in.RecipientName)
	if recipient == "" {
		recipient = o.cfg.DefaultRecipientName
	}
	if recipient == "" {
		return nil, domain.Invalid("nombre del destinatario requerido")
	}
	if len(in.Items) == 0 {
		return nil, domain.Invalid("la cotización debe tener al menos un producto")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, domain.Invalid("producto requerido en todos los ítems")
		}
		if it.Quantity <= 0 {
			return nil, domain.Invalid("cantidad debe ser mayor a cero para el producto %s", it.ProductID)
		}
	}

	// La empresa de origen es dato del request: se resuelve antes de reservar.
	fromPostal, err := o.originPostalCode(ctx, in.OriginCompanyID)
	if err != nil {
		return nil, err
	}

	// ── 2. Reserva (crea la cotización PROCESSING en la misma tx) ─────────────
	now := o.now().UTC()
	quote := &entity.Quote{
		ID:                    uuid.New().String(),
		OriginCompanyID:       in.OriginCompanyID,
		DestinationPostalCode: postal,
		RecipientName:         recipient,
		Status:                entity.QuoteProcessing,
		CreatedBy:             in.ActorID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := o.reservations.Reserve(ctx, quote, in.Items); err != nil {
		return nil, err
	}
	o.log.Info().Str("quote_id", quote.ID).Int("items", len(in.Items)).Msg("stock reservado, consultando agregador")

	// ── 3-5. Consulta al agregador (sin locks) ────────────────────────────────
	basket := freight.MergeBasket(in.Items)
	rates, err := o.quoteRates(ctx, quote, fromPostal, basket)
	if err != nil {
		return o.fail(ctx, quote, err)
	}

	// ── 6. Resultado ──────────────────────────────────────────────────────────
	options := make([]entity.CarrierOption, 0, len(rates))
	for _, r := range rates {
		if r.Error != "" {
			continue
		}
		options = append(options, entity.CarrierOption{
			ID:                uuid.New().String(),
			QuoteID:           quote.ID,
			ExternalServiceID: r.ServiceID,
			CarrierName:       r.CarrierName,
			ServiceName:       r.ServiceName,
			Price:             r.Price,
			LeadTimeDays:      r.DeliveryDays,
			LogoURL:           r.LogoURL,
		})
	}
	if len(options) == 0 {
		return o.markInvalid(ctx, quote)
	}
	return o.markQuoted(ctx, quote, options)
}

// originPostalCode devuelve el CEP de la empresa de origen, o un error de request si no existe
// o su CEP no es válido.
func (o *QuoteOrchestrator) originPostalCode(ctx context.Context, companyID string) (string, error) {
	company, err := o.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("obtener empresa de origen: %w", err)
	}
	if company == nil {
		return "", fmt.Errorf("%w: empresa de origen %s", domain.ErrNotFound, companyID)
	}
	from := freight.NormalizePostalCode(company.PostalCode)
	if !freight.ValidPostalCode(from) {
		return "", domain.Invalid("CEP de origen inválido para la empresa %s", company.ID)
	}
	return from, nil
}

func (o *QuoteOrchestrator) quoteRates(ctx context.Context, quote *entity.Quote, from string, basket []freight.BasketLine) ([]ports.RateQuote, error) {
	ids := make([]string, 0, len(basket))
	for _, l := range basket {
		ids = append(ids, l.ProductID)
	}
	products, err := o.repos.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("obtener productos: %w", err)
	}
	req := ports.RateRequest{FromPostalCode: from, ToPostalCode: quote.DestinationPostalCode}
	for _, l := range basket {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, l.ProductID)
		}
		insurance := o.cfg.QuoteInsuranceValue
		if p.DeclaredValue.IsPositive() {
			insurance = p.DeclaredValue
		}
		req.Parcels = append(req.Parcels, ports.Parcel{
			ID:             p.ID,
			Width:          p.Width,
			Height:         p.Height,
			Length:         p.Depth,
			Weight:         p.Weight,
			InsuranceValue: insurance,
			Quantity:       l.Quantity,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CarrierTimeout)
	defer cancel()
	start := time.Now()
	rates, err := o.rates.Calculate(callCtx, req)
	o.metrics.AggregatorCall("calculate", outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// fail libera la reserva y marca ERROR en una sola tx. Usa un contexto sin cancelación:
// la compensación debe completarse aunque el request original haya expirado.
func (o *QuoteOrchestrator) fail(ctx context.Context, quote *entity.Quote, cause error) (*QuoteView, error) {
	aggErr := asAggregatorError("calculate", cause)
	reason := aggErr.Error()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := o.reservations.Release(cctx, quote.ID, []entity.QuoteStatus{entity.QuoteProcessing},
		func(ctx context.Context, tx inventory.Repos, q *entity.Quote, released []entity.QuoteLineItem) error {
			ok, err := advance(ctx, tx, q, entity.QuoteError, reason)
			if err != nil {
				return err
			}
			if !ok {
				return domain.Conflict("la cotización %s cambió de estado", q.ID)
			}
			return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteFailed, q.ID, events.QuoteEvent{
				QuoteID:    q.ID,
				Status:     string(entity.QuoteError),
				Reason:     reason,
				Lines:      events.LinesFrom(released),
				OccurredAt: o.now().UTC(),
			})
		})
	if err != nil {
		// cancelada mientras esperábamos al agregador: no queda nada que compensar
		o.log.Error().Err(err).Str("quote_id", quote.ID).Msg("no se pudo compensar la cotización tras falla del agregador")
		return nil, aggErr
	}
	o.metrics.QuoteStatus(string(entity.QuoteError))
	o.log.Warn().Err(cause).Str("quote_id", quote.ID).Msg("agregador falló, reserva liberada")

	quote.Status = entity.QuoteError
	quote.FailureReason = reason
	return &QuoteView{Quote: quote}, aggErr
}

// markInvalid libera la reserva y marca INVALID en una sola tx: sin opciones no hay nada que
// elegir y el stock vuelve al disponible.
func (o *QuoteOrchestrator) markInvalid(ctx context.Context, quote *entity.Quote) (*QuoteView, error) {
	var items []entity.QuoteLineItem
	_, err := o.reservations.Release(ctx, quote.ID, []entity.QuoteStatus{entity.QuoteProcessing},
		func(ctx context.Context, tx inventory.Repos, q *entity.Quote, released []entity.QuoteLineItem) error {
			ok, err := advance(ctx, tx, q, entity.QuoteInvalid, noOptionsReason)
			if err != nil {
				return err
			}
			if !ok {
				return domain.Conflict("la cotización %s cambió de estado", q.ID)
			}
			items = released
			return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteInvalid, q.ID, events.QuoteEvent{
				QuoteID:    q.ID,
				Status:     string(entity.QuoteInvalid),
				Reason:     noOptionsReason,
				Lines:      events.LinesFrom(released),
				OccurredAt: o.now().UTC(),
			})
		})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: la cotización %s fue cancelada o expiró durante la consulta", domain.ErrNotFound, quote.ID)
		}
		return nil, err
	}
	o.metrics.QuoteStatus(string(entity.QuoteInvalid))
	o.log.Info().Str("quote_id", quote.ID).Msg("agregador sin opciones válidas, cotización INVALID y reserva liberada")
	quote.Status = entity.QuoteInvalid
	quote.FailureReason = noOptionsReason
	return &QuoteView{Quote: quote, Items: items}, nil
}

func (o *QuoteOrchestrator) markQuoted(ctx context.Context, quote *entity.Quote, options []entity.CarrierOption) (*QuoteView, error) {
	view := &QuoteView{Quote: quote}
	err := o.txRunner.Run(ctx, func(tx inventory.Repos) error {
		current, err := tx.Quotes.GetForUpdate(ctx, quote.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: la cotización %s fue cancelada o expiró durante la consulta", domain.ErrNotFound, quote.ID)
		}
		ok, err := advance(ctx, tx, current, entity.QuoteQuoted, "")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: la cotización %s fue cancelada o expiró durante la consulta", domain.ErrNotFound, quote.ID)
		}
		if err := tx.Quotes.SaveOptions(ctx, options); err != nil {
			return err
		}
		if view.Items, err = tx.Quotes.ListItems(ctx, quote.ID); err != nil {
			return err
		}
		if view.Options, err = tx.Quotes.ListOptions(ctx, quote.ID); err != nil {
			return err
		}
		return events.Enqueue(ctx, tx.Outbox, events.TypeQuoteQuoted, quote.ID, events.QuoteEvent{
			QuoteID:    quote.ID,
			Status:     string(entity.QuoteQuoted),
			Lines:      events.LinesFrom(view.Items),
			OccurredAt: o.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	o.metrics.QuoteStatus(string(entity.QuoteQuoted))
	o.log.Info().Str("quote_id", quote.ID).Int("opciones", len(options)).Msg("cotización QUOTED")
	quote.Status = entity.QuoteQuoted
	return view, nil
}

const noOptionsReason = "sin opciones de envío disponibles"

// advance aplica la transición de la cotización bloqueada si la máquina de estados la admite.
// false = el estado actual no permite pasar a next (o cambió entre la lectura y el update).
func advance(ctx context.Context, tx inventory.Repos, q *entity.Quote, next entity.QuoteStatus, reason string) (bool, error) {
	if !q.Status.CanTransitionTo(next) {
		return false, nil
	}
	return tx.Quotes.TransitionStatus(ctx, q.ID, []entity.QuoteStatus{q.Status}, next, reason)
}

// asAggregatorError normaliza cualquier falla del paso de consulta a *domain.AggregatorError.
func asAggregatorError(op string, err error) *domain.AggregatorError {
	var aggErr *domain.AggregatorError
	if errors.As(err, &aggErr) {
		return aggErr
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "tiempo de espera agotado"
	}
	return &domain.AggregatorError{Op: op, Message: msg, Err: err}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
