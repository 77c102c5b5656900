package freight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Cotizador-api/internal/application/events"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// Resultados del saga reportados a métricas.
const (
	LabelIssued   = "issued"
	LabelFailed   = "failed"
	LabelOrphaned = "orphaned"
)

var stageRank = map[string]int{
	entity.LabelStageNone:     0,
	entity.LabelStageCart:     1,
	entity.LabelStageCheckout: 2,
	entity.LabelStageGenerate: 3,
}

// IssueLabelInput datos para emitir la etiqueta de una opción cotizada.
// From vacío = dirección de la empresa de origen.
type IssueLabelInput struct {
	QuoteID  string
	OptionID string
	From     *ports.Address
	To       ports.Address
	ActorID  string
}

// LabelResult resultado del saga. Finalized=false si la cotización desapareció antes de finalizar.
type LabelResult struct {
	URL       string
	OrderID   string
	Finalized bool
}

// LabelSaga emite la etiqueta en cuatro pasos contra el agregador:
//
//	carrito → checkout → generar → (esperar) → imprimir → FINALIZED
//
// No hay transacción que abarque los pasos: antes de cada uno se revalida que la cotización
// siga existiendo y en QUOTED. El avance se persiste para reanudar sin duplicar el carrito.
type LabelSaga struct {
	txRunner    inventory.TxRunner
	repos       inventory.Repos
	companyRepo repository.CompanyRepository
	issuer      ports.LabelIssuer
	lock        ports.LabelLock
	metrics     ports.Metrics
	log         *logger.Logger
	cfg         Config
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewLabelSaga construye el saga.
func NewLabelSaga(
	txRunner inventory.TxRunner,
	repos inventory.Repos,
	companyRepo repository.CompanyRepository,
	issuer ports.LabelIssuer,
	lock ports.LabelLock,
	metrics ports.Metrics,
	log *logger.Logger,
	cfg Config,
) *LabelSaga {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LabelSaga{
		txRunner:    txRunner,
		repos:       repos,
		companyRepo: companyRepo,
		issuer:      issuer,
		lock:        lock,
		metrics:     metrics,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// IssueLabel ejecuta el saga. Ante cualquier falla la cotización queda QUOTED con la reserva intacta.
func (s *LabelSaga) IssueLabel(ctx context.Context, in IssueLabelInput) (*LabelResult, error) {
	res, err := s.issue(ctx, in)
	switch {
	case err != nil:
		s.metrics.LabelSaga(LabelFailed)
	case !res.Finalized:
		s.metrics.LabelSaga(LabelOrphaned)
	default:
		s.metrics.LabelSaga(LabelIssued)
	}
	return res, err
}

func (s *LabelSaga) issue(ctx context.Context, in IssueLabelInput) (*LabelResult, error) {
	// ── 0. Precondiciones ─────────────────────────────────────────────────────
	if in.QuoteID == "" || in.OptionID == "" {
		return nil, domain.Invalid("cotización y opción son requeridas")
	}
	if strings.TrimSpace(in.To.Name) == "" {
		return nil, domain.Invalid("nombre del destinatario requerido")
	}
	quote, err := s.checkQuoted(ctx, in.QuoteID)
	if err != nil {
		return nil, err
	}
	option, err := s.repos.Quotes.GetOption(ctx, in.OptionID)
	if err != nil {
		return nil, err
	}
	if option == nil {
		return nil, fmt.Errorf("%w: opción %s", domain.ErrNotFound, in.OptionID)
	}
	if option.QuoteID != quote.ID {
		return nil, domain.Conflict("la opción %s no pertenece a la cotización %s", in.OptionID, quote.ID)
	}

	release, ok, err := s.lock.Acquire(ctx, "label:"+quote.ID, s.cfg.LabelLockLease())
	if err != nil {
		return nil, fmt.Errorf("adquirir candado de etiqueta: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("ya hay una emisión de etiqueta en curso para la cotización %s", quote.ID)
	}
	defer release()

	// releer con el candado tomado: otro saga pudo finalizarla mientras esperábamos
	if quote, err = s.checkQuoted(ctx, quote.ID); err != nil {
		return nil, err
	}
	items, err := s.repos.Quotes.ListItems(ctx, quote.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.Conflict("la cotización %s no tiene ítems reservados", quote.ID)
	}

	orderID, stage := "", entity.LabelStageNone
	if quote.LabelOptionID == option.ID && quote.LabelOrderID != "" {
		orderID, stage = quote.LabelOrderID, quote.LabelStage
		s.log.Info().Str("quote_id", quote.ID).Str("order_id", orderID).Str("stage", stage).Msg("reanudando emisión de etiqueta")
	}

	// ── 1. Carrito ────────────────────────────────────────────────────────────
	if stageRank[stage] < stageRank[entity.LabelStageCart] {
		req, err := s.cartRequest(ctx, quote, option, items, in)
		if err != nil {
			return nil, err
		}
		if _, err := s.checkQuoted(ctx, quote.ID); err != nil {
			return nil, err
		}
		err = s.call(ctx, "cart", func(ctx context.Context) error {
			orderID, err = s.issuer.AddToCart(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		if orderID == "" {
			return nil, &domain.AggregatorError{Op: "cart", Message: "el agregador no devolvió id de pedido"}
		}
		stage = entity.LabelStageCart
		s.saveProgress(ctx, quote.ID, option.ID, orderID, stage)
	}

	// ── 2. Checkout ───────────────────────────────────────────────────────────
	if stageRank[stage] < stageRank[entity.LabelStageCheckout] {
		if err := s.step(ctx, quote.ID, orderID, "checkout", func(ctx context.Context) error {
			return s.issuer.Checkout(ctx, orderID)
		}); err != nil {
			return nil, err
		}
		stage = entity.LabelStageCheckout
		s.saveProgress(ctx, quote.ID, option.ID, orderID, stage)
	}

	// ── 3. Generar ────────────────────────────────────────────────────────────
	if stageRank[stage] < stageRank[entity.LabelStageGenerate] {
		if err := s.step(ctx, quote.ID, orderID, "generate", func(ctx context.Context) error {
			return s.issuer.Generate(ctx, orderID)
		}); err != nil {
			return nil, err
		}
		stage = entity.LabelStageGenerate
		s.saveProgress(ctx, quote.ID, option.ID, orderID, stage)
	}
	if err := s.awaitGenerated(ctx, quote.ID, orderID); err != nil {
		return nil, err
	}

	// ── 4. Imprimir ───────────────────────────────────────────────────────────
	var url string
	if err := s.step(ctx, quote.ID, orderID, "print", func(ctx context.Context) error {
		var err error
		url, err = s.issuer.Print(ctx, orderID)
		if err == nil && url == "" {
			err = &domain.AggregatorError{Op: "print", Message: "el agregador no devolvió URL de impresión"}
		}
		return err
	}); err != nil {
		return nil, err
	}

	// ── 5. Finalizar ──────────────────────────────────────────────────────────
	return s.finalize(ctx, quote.ID, orderID, url, items)
}

func (s *LabelSaga) finalize(ctx context.Context, quoteID, orderID, url string, items []entity.QuoteLineItem) (*LabelResult, error) {
	at := s.now().UTC()
	var finalized bool
	err := s.txRunner.Run(ctx, func(tx inventory.Repos) error {
		current, err := tx.Quotes.GetForUpdate(ctx, quoteID)
		if err != nil || current == nil || !current.Status.CanTransitionTo(entity.QuoteFinalized) {
			return err
		}
		ok, err := tx.Quotes.Finalize(ctx, quoteID, url, at)
		if err != nil || !ok {
			return err
		}
		finalized = true
		return events.Enqueue(ctx, tx.Outbox, events.TypeLabelIssued, quoteID, events.QuoteEvent{
			QuoteID:    quoteID,
			Status:     string(entity.QuoteFinalized),
			OrderID:    orderID,
			LabelURL:   url,
			Lines:      events.LinesFrom(items),
			OccurredAt: at,
		})
	})
	if err != nil {
		s.log.Error().Err(err).Str("quote_id", quoteID).Str("order_id", orderID).Msg("etiqueta impresa pero no se pudo finalizar la cotización")
		return nil, fmt.Errorf("finalizar cotización: %w", err)
	}
	if !finalized {
		s.log.Error().Str("quote_id", quoteID).Str("order_id", orderID).Str("url", url).
			Msg("etiqueta emitida para una cotización que ya no está en QUOTED")
		return &LabelResult{URL: url, OrderID: orderID, Finalized: false}, nil
	}
	s.log.Info().Str("quote_id", quoteID).Str("order_id", orderID).Msg("etiqueta emitida, cotización FINALIZED")
	return &LabelResult{URL: url, OrderID: orderID, Finalized: true}, nil
}

// checkQuoted relee la cotización: NotFound si fue cancelada, Conflict si no está QUOTED.
func (s *LabelSaga) checkQuoted(ctx context.Context, quoteID string) (*entity.Quote, error) {
	quote, err := s.repos.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: cotización %s", domain.ErrNotFound, quoteID)
	}
	if quote.Status == entity.QuoteFinalized {
		return nil, domain.Conflict("la etiqueta de la cotización %s ya fue emitida", quoteID)
	}
	if quote.Status != entity.QuoteQuoted {
		return nil, domain.Conflict("la cotización %s está en estado %s", quoteID, quote.Status)
	}
	return quote, nil
}

// step revalida la cotización y ejecuta un paso posterior al carrito. Una falla deja
// el pedido huérfano en el agregador: se registra con el id del pedido.
func (s *LabelSaga) step(ctx context.Context, quoteID, orderID, op string, fn func(ctx context.Context) error) error {
	if _, err := s.checkQuoted(ctx, quoteID); err != nil {
		s.log.Error().Err(err).Str("quote_id", quoteID).Str("order_id", orderID).Str("stage", op).
			Msg("cotización cambió durante la emisión, pedido huérfano en el agregador")
		return err
	}
	if err := s.call(ctx, op, fn); err != nil {
		s.log.Error().Err(err).Str("quote_id", quoteID).Str("order_id", orderID).Str("stage", op).
			Msg("falló paso de emisión de etiqueta")
		return err
	}
	return nil
}

func (s *LabelSaga) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CarrierTimeout)
	defer cancel()
	start := time.Now()
	err := fn(callCtx)
	s.metrics.AggregatorCall(op, outcome(err), time.Since(start))
	if err != nil {
		return asAggregatorError(op, err)
	}
	return nil
}

// awaitGenerated espera a que el pedido quede generado: polling con backoff exponencial acotado
// o, sin polling configurado, una espera fija. Agotados los intentos se intenta imprimir igual.
func (s *LabelSaga) awaitGenerated(ctx context.Context, quoteID, orderID string) error {
	if s.cfg.LabelPollAttempts <= 0 {
		return s.sleep(ctx, s.cfg.LabelSettle)
	}
	delay := s.cfg.LabelPollInitial
	for attempt := 1; attempt <= s.cfg.LabelPollAttempts; attempt++ {
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		var status string
		err := s.call(ctx, "status", func(ctx context.Context) error {
			var err error
			status, err = s.issuer.OrderStatus(ctx, orderID)
			return err
		})
		if err == nil && generatedStatus(status) {
			return nil
		}
		s.log.Debug().Err(err).Str("quote_id", quoteID).Str("order_id", orderID).Str("estado", status).
			Int("intento", attempt).Msg("etiqueta aún no generada")
		delay *= 2
		if s.cfg.LabelPollMax > 0 && delay > s.cfg.LabelPollMax {
			delay = s.cfg.LabelPollMax
		}
	}
	s.log.Warn().Str("quote_id", quoteID).Str("order_id", orderID).Msg("polling agotado, intentando imprimir")
	return nil
}

func (s *LabelSaga) saveProgress(ctx context.Context, quoteID, optionID, orderID, stage string) {
	if err := s.repos.Quotes.SaveLabelProgress(ctx, quoteID, optionID, orderID, stage); err != nil {
		// no es fatal: en un reintento se repetiría el paso
		s.log.Error().Err(err).Str("quote_id", quoteID).Str("order_id", orderID).Str("stage", stage).
			Msg("no se pudo persistir el avance de la etiqueta")
	}
}

func (s *LabelSaga) cartRequest(ctx context.Context, quote *entity.Quote, option *entity.CarrierOption, items []entity.QuoteLineItem, in IssueLabelInput) (ports.CartRequest, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.repos.Products.GetByIDs(ctx, ids)
	if err != nil {
		return ports.CartRequest{}, err
	}

	from, err := s.sender(ctx, quote, in.From)
	if err != nil {
		return ports.CartRequest{}, err
	}
	to := in.To
	to.PostalCode = freight.NormalizePostalCode(to.PostalCode)
	if to.PostalCode == "" {
		to.PostalCode = quote.DestinationPostalCode
	}
	if to.CountryID == "" {
		to.CountryID = s.cfg.DefaultCountryID
	}

	req := ports.CartRequest{
		ServiceID:     option.ExternalServiceID,
		From:          from,
		To:            to,
		NonCommercial: true,
	}
	values := make([]int64, 0, len(items))
	units := make([]decimal.Decimal, 0, len(items))
	for _, it := range items {
		name := it.ProductID
		unit := s.cfg.DeclaredUnitValue
		if p, ok := products[it.ProductID]; ok {
			name = p.Name
			if p.DeclaredValue.IsPositive() {
				unit = p.DeclaredValue
			}
		}
		req.Products = append(req.Products, ports.CartProduct{Name: name, Quantity: it.Quantity, UnitaryValue: unit})
		values = append(values, it.Quantity)
		units = append(units, unit)
	}
	req.InsuranceValue = freight.InsuranceValue(units, values)
	return req, nil
}

// sender remitente explícito o, si viene vacío, la dirección de la empresa de origen.
func (s *LabelSaga) sender(ctx context.Context, quote *entity.Quote, explicit *ports.Address) (ports.Address, error) {
	if explicit != nil && strings.TrimSpace(explicit.Name) != "" {
		from := *explicit
		from.PostalCode = freight.NormalizePostalCode(from.PostalCode)
		if from.CountryID == "" {
			from.CountryID = s.cfg.DefaultCountryID
		}
		return from, nil
	}
	company, err := s.companyRepo.GetByID(ctx, quote.OriginCompanyID)
	if err != nil {
		return ports.Address{}, err
	}
	if company == nil {
		return ports.Address{}, fmt.Errorf("%w: empresa de origen %s", domain.ErrNotFound, quote.OriginCompanyID)
	}
	name := company.LegalName
	if name == "" {
		name = company.TradeName
	}
	return ports.Address{
		Name:       name,
		Phone:      company.Phone,
		Email:      company.Email,
		Document:   company.TaxID,
		Street:     company.Street,
		Number:     company.Number,
		Complement: company.Complement,
		District:   company.District,
		City:       company.City,
		StateAbbr:  company.State,
		CountryID:  s.cfg.DefaultCountryID,
		PostalCode: freight.NormalizePostalCode(company.PostalCode),
	}, nil
}

func generatedStatus(status string) bool {
	switch strings.ToLower(status) {
	case ports.OrderStatusGenerated, ports.OrderStatusPosted, ports.OrderStatusDelivered:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
