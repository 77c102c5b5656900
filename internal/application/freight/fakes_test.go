package freight_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	domfreight "github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Agregador falso
// ──────────────────────────────────────────────────────────────────────────────

type fakeCarrier struct {
	mu sync.Mutex

	rates    []ports.RateQuote
	rateErr  error
	rateReqs []ports.RateRequest

	carts      []ports.CartRequest
	cartErr    error
	checkouts  int
	checkErr   error
	generates  int
	genErr     error
	prints     int
	printURL   string
	printErr   error
	statuses   []string
	orderSeq   int
	beforeStep func(op string)
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{
		rates: []ports.RateQuote{
			{ServiceID: 2, CarrierName: "Correios", ServiceName: "SEDEX", Price: decimal.RequireFromString("45.90"), DeliveryDays: 2},
			{ServiceID: 1, CarrierName: "Correios", ServiceName: "PAC", Price: decimal.RequireFromString("22.50"), DeliveryDays: 7},
			{ServiceID: 3, CarrierName: "Jadlog", ServiceName: ".Com", Error: "Serviço indisponível para o trecho."},
		},
		printURL: "https://melhorenvio.test/imprimir/abc",
	}
}

func (f *fakeCarrier) hook(op string) {
	if f.beforeStep != nil {
		f.beforeStep(op)
	}
}

func (f *fakeCarrier) Calculate(ctx context.Context, req ports.RateRequest) ([]ports.RateQuote, error) {
	f.mu.Lock()
	f.rateReqs = append(f.rateReqs, req)
	rates, err := f.rates, f.rateErr
	f.mu.Unlock()
	f.hook("calculate")
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (f *fakeCarrier) AddToCart(ctx context.Context, req ports.CartRequest) (string, error) {
	f.hook("cart")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts = append(f.carts, req)
	if f.cartErr != nil {
		return "", f.cartErr
	}
	f.orderSeq++
	return fmt.Sprintf("order-%d", f.orderSeq), nil
}

func (f *fakeCarrier) Checkout(ctx context.Context, orderID string) error {
	f.hook("checkout")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts++
	return f.checkErr
}

func (f *fakeCarrier) Generate(ctx context.Context, orderID string) error {
	f.hook("generate")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generates++
	return f.genErr
}

func (f *fakeCarrier) Print(ctx context.Context, orderID string) (string, error) {
	f.hook("print")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prints++
	return f.printURL, f.printErr
}

func (f *fakeCarrier) OrderStatus(ctx context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ports.OrderStatusGenerated, nil
	}
	s := f.statuses[0]
	f.statuses = f.statuses[1:]
	return s, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Entorno
// ──────────────────────────────────────────────────────────────────────────────

type env struct {
	store        *memory.Store
	carrier      *fakeCarrier
	ledger       *inventory.StockLedger
	reservations *inventory.ReservationManager
	orchestrator *freight.QuoteOrchestrator
	saga         *freight.LabelSaga
	compensator  *freight.Compensator
	queries      *freight.QuoteQueries
	reaper       *freight.StaleQuoteReaper
	cfg          freight.Config
}

func testConfig() freight.Config {
	cfg := freight.DefaultConfig()
	cfg.CarrierTimeout = time.Second
	cfg.LabelSettle = 0
	cfg.LabelPollAttempts = 3
	cfg.LabelPollInitial = time.Millisecond
	cfg.LabelPollMax = 2 * time.Millisecond
	return cfg
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	carrier := newFakeCarrier()
	cfg := testConfig()
	locks := inventory.NewProductLocks()
	repos := store.Repos()
	reservations := inventory.NewReservationManager(store, repos, locks, nil, nil)
	e := &env{
		store:        store,
		carrier:      carrier,
		ledger:       inventory.NewStockLedger(store, repos, locks, nil),
		reservations: reservations,
		orchestrator: freight.NewQuoteOrchestrator(store, repos, store.Companies(), reservations, carrier, nil, nil, cfg),
		saga:         freight.NewLabelSaga(store, repos, store.Companies(), carrier, memory.NewLabelLock(), nil, nil, cfg),
		compensator:  freight.NewCompensator(repos, reservations, nil),
		queries:      freight.NewQuoteQueries(repos, carrier, nil, cfg),
		reaper:       freight.NewStaleQuoteReaper(repos, reservations, nil, cfg),
		cfg:          cfg,
	}
	store.PutCompany(entity.Company{
		ID: "c1", LegalName: "Loja Exemplo LTDA", TradeName: "Loja Exemplo", TaxID: "12345678000199",
		Email: "contato@loja.test", Phone: "11999990000", PostalCode: "01001-000",
		Street: "Praça da Sé", Number: "100", District: "Sé", City: "São Paulo", State: "SP", Active: true,
	})
	return e
}

func (e *env) product(t *testing.T, id string, onHand int64) {
	t.Helper()
	e.store.PutProduct(entity.Product{
		ID: id, Code: "SKU-" + id, Name: "Produto " + id,
		Height: decimal.NewFromInt(10), Width: decimal.NewFromInt(15), Depth: decimal.NewFromInt(20),
		Weight: decimal.RequireFromString("0.3"),
	})
	if onHand > 0 {
		_, err := e.ledger.AppendMovement(context.Background(), inventory.MovementInput{ProductID: id, Direction: entity.MovementIN, Quantity: onHand})
		require.NoError(t, err)
	}
}

func (e *env) level(t *testing.T, id string) *entity.StockLevel {
	t.Helper()
	lvl, err := e.ledger.Level(context.Background(), id)
	require.NoError(t, err)
	return lvl
}

func (e *env) quote(t *testing.T, items ...domfreight.BasketLine) *freight.QuoteView {
	t.Helper()
	view, err := e.orchestrator.CreateQuote(context.Background(), freight.CreateQuoteInput{
		OriginCompanyID:       "c1",
		DestinationPostalCode: "20040-020",
		RecipientName:         "Maria Silva",
		Items:                 items,
	})
	require.NoError(t, err)
	return view
}

func (e *env) outboxTypes() []string {
	var out []string
	for _, m := range e.store.Outbox() {
		out = append(out, m.Type)
	}
	return out
}

func recipient() ports.Address {
	return ports.Address{Name: "Maria Silva", Street: "Rua do Ouvidor", Number: "50", City: "Rio de Janeiro", StateAbbr: "RJ", PostalCode: "20040-020"}
}

var errNetwork = errors.New("dial tcp: connection refused")

func decimalFromInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
