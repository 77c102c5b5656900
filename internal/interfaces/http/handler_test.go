package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/application/dto"
	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/melhorenvio"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/memory"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/pdf"
	apphttp "github.com/jhoicas/Cotizador-api/internal/interfaces/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Agregador simulado (forma de la API v2 de Melhor Envio)
// ──────────────────────────────────────────────────────────────────────────────

type fakeMelhorEnvio struct {
	failCalculate atomic.Bool
	carts         atomic.Int64
}

func (f *fakeMelhorEnvio) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/me/shipment/calculate", func(w http.ResponseWriter, r *http.Request) {
		if f.failCalculate.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"serviço em manutenção"}`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":2,"name":"SEDEX","price":"45.90","delivery_time":2,"company":{"name":"Correios"}},
			{"id":1,"name":"PAC","price":"22.50","delivery_time":7,"company":{"name":"Correios"}},
			{"id":3,"name":".Com","error":"Serviço indisponível para o trecho.","company":{"name":"Jadlog"}}
		]`))
	})
	mux.HandleFunc("/api/v2/me/cart", func(w http.ResponseWriter, r *http.Request) {
		f.carts.Add(1)
		_, _ = w.Write([]byte(`{"id":"order-1"}`))
	})
	mux.HandleFunc("/api/v2/me/shipment/checkout", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v2/me/shipment/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v2/me/shipment/print", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://melhorenvio.test/imprimir/order-1"}`))
	})
	mux.HandleFunc("/api/v2/me/orders/order-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"order-1","status":"generated"}`))
	})
	return mux
}

// ──────────────────────────────────────────────────────────────────────────────
// App de test
// ──────────────────────────────────────────────────────────────────────────────

type testAPI struct {
	app    *fiber.App
	store  *memory.Store
	ledger *inventory.StockLedger
	me     *fakeMelhorEnvio
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	me := &fakeMelhorEnvio{}
	srv := httptest.NewServer(me.handler())
	t.Cleanup(srv.Close)

	client := melhorenvio.NewClient(melhorenvio.Config{BaseURL: srv.URL, Token: "tok", UserAgent: "test", Timeout: time.Second})
	cfg := freight.DefaultConfig()
	cfg.CarrierTimeout = time.Second
	cfg.LabelSettle = 0
	cfg.LabelPollInitial = time.Millisecond
	cfg.LabelPollMax = time.Millisecond

	store := memory.NewStore()
	repos := store.Repos()
	locks := inventory.NewProductLocks()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	reservations := inventory.NewReservationManager(store, repos, locks, m, nil)
	ledger := inventory.NewStockLedger(store, repos, locks, nil)
	queries := freight.NewQuoteQueries(repos, client, m, cfg)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Orchestrator: freight.NewQuoteOrchestrator(store, repos, store.Companies(), reservations, client, m, nil, cfg),
		LabelSaga:    freight.NewLabelSaga(store, repos, store.Companies(), client, memory.NewLabelLock(), m, nil, cfg),
		Compensator:  freight.NewCompensator(repos, reservations, nil),
		Queries:      queries,
		QuotePDF:     freight.NewPDFUseCase(queries, store.Companies(), repos.Products, pdf.NewMarotoPDFGenerator()),
		Ledger:       ledger,
		Gatherer:     reg,
		JWTSecret:    testJWTSecret,
		ServiceName:  "cotizador-test",
	})

	store.PutCompany(entity.Company{
		ID: testCompanyID, LegalName: "Loja Exemplo LTDA", PostalCode: "01001-000",
		Street: "Praça da Sé", Number: "100", District: "Sé", City: "São Paulo", State: "SP",
	})
	store.PutProduct(entity.Product{
		ID: "p1", Code: "CAN-01", Name: "Caneca",
		Height: decimal.NewFromInt(10), Width: decimal.NewFromInt(10), Depth: decimal.NewFromInt(10),
		Weight: decimal.RequireFromString("0.3"),
	})
	_, err := ledger.AppendMovement(context.Background(), inventory.MovementInput{ProductID: "p1", Direction: entity.MovementIN, Quantity: 5})
	require.NoError(t, err)

	return &testAPI{app: app, store: store, ledger: ledger, me: me}
}

func (a *testAPI) do(t *testing.T, method, path, role string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (a *testAPI) createQuote(t *testing.T, qty int64) *http.Response {
	return a.do(t, http.MethodPost, "/api/frete/cotacoes", apphttp.RoleVendedor, dto.CreateQuoteRequest{
		DestinationPostalCode: "20040-020",
		RecipientName:         "Maria Silva",
		Items:                 []dto.QuoteItemRequest{{ProductID: "p1", Quantity: qty}},
	})
}

func (a *testAPI) available(t *testing.T) int64 {
	lvl, err := a.ledger.Level(context.Background(), "p1")
	require.NoError(t, err)
	return lvl.Available()
}

// ──────────────────────────────────────────────────────────────────────────────
// Cotizaciones
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateQuote_201ConOpcionesOrdenadas(t *testing.T) {
	api := newTestAPI(t)
	resp := api.createQuote(t, 2)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	q := decode[dto.QuoteResponse](t, resp)
	assert.Equal(t, string(entity.QuoteQuoted), q.Status)
	assert.Equal(t, testCompanyID, q.OriginCompanyID)
	assert.Equal(t, "20040020", q.DestinationPostalCode)
	require.Len(t, q.Options, 2, "la opción con error se descarta")
	assert.Equal(t, "PAC", q.Options[0].Service)
	assert.True(t, q.Options[0].Price.Equal(decimal.RequireFromString("22.50")))
	assert.Equal(t, int64(3), api.available(t))
}

func TestCreateQuote_400StockInsuficiente(t *testing.T) {
	api := newTestAPI(t)
	resp := api.createQuote(t, 6)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[struct {
		Code    string                       `json:"code"`
		Message string                       `json:"message"`
		Details dto.InsufficientStockDetails `json:"details"`
	}](t, resp)
	assert.Equal(t, "INSUFFICIENT_STOCK", body.Code)
	assert.Equal(t, "p1", body.Details.ProductID)
	assert.Equal(t, int64(6), body.Details.Requested)
	assert.Equal(t, int64(5), body.Details.Available)
	assert.Equal(t, int64(5), api.available(t))
}

func TestCreateQuote_400Validacion(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/frete/cotacoes", apphttp.RoleVendedor, dto.CreateQuoteRequest{
		DestinationPostalCode: "123",
		RecipientName:         "Maria",
		Items:                 []dto.QuoteItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decode[dto.ErrorResponse](t, resp).Code)
}

func TestCreateQuote_502AgregadorLiberaReserva(t *testing.T) {
	api := newTestAPI(t)
	api.me.failCalculate.Store(true)

	resp := api.createQuote(t, 2)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, "AGGREGATOR_ERROR", body.Code)
	assert.True(t, strings.HasPrefix(body.Message, "intente más tarde: "), body.Message)
	assert.Contains(t, body.Message, "manutenção")
	assert.Equal(t, int64(5), api.available(t))
}

func TestCreateQuote_404EmpresaDeOrigenDesconocida(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/frete/cotacoes", apphttp.RoleVendedor, dto.CreateQuoteRequest{
		OriginCompanyID:       "no-existe",
		DestinationPostalCode: "20040-020",
		RecipientName:         "Maria Silva",
		Items:                 []dto.QuoteItemRequest{{ProductID: "p1", Quantity: 1}},
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, resp).Code)
	assert.Equal(t, int64(5), api.available(t))

	resp = api.do(t, http.MethodGet, "/api/frete/cotacoes", apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[dto.QuoteListResponse](t, resp).Items)
}

func TestGetYListarCotizaciones(t *testing.T) {
	api := newTestAPI(t)
	created := decode[dto.QuoteResponse](t, api.createQuote(t, 1))

	resp := api.do(t, http.MethodGet, "/api/frete/cotacoes/"+created.ID, apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[dto.QuoteResponse](t, resp)
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Options, 2)
	assert.True(t, got.Options[0].Price.LessThan(got.Options[1].Price))

	resp = api.do(t, http.MethodGet, "/api/frete/cotacoes?limit=5", apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[dto.QuoteListResponse](t, resp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 5, list.Page.Limit)

	resp = api.do(t, http.MethodGet, "/api/frete/cotacoes/no-existe", apphttp.RoleVendedor, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelQuote_204Luego404(t *testing.T) {
	api := newTestAPI(t)
	created := decode[dto.QuoteResponse](t, api.createQuote(t, 2))
	require.Equal(t, int64(3), api.available(t))

	resp := api.do(t, http.MethodDelete, "/api/frete/cotacoes/"+created.ID, apphttp.RoleVendedor, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(5), api.available(t))

	resp = api.do(t, http.MethodDelete, "/api/frete/cotacoes/"+created.ID, apphttp.RoleVendedor, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int64(5), api.available(t), "la segunda cancelación no libera dos veces")
}

// ──────────────────────────────────────────────────────────────────────────────
// Etiqueta
// ──────────────────────────────────────────────────────────────────────────────

func TestIssueLabel_FinalizaYLuegoNoSeCancela(t *testing.T) {
	api := newTestAPI(t)
	created := decode[dto.QuoteResponse](t, api.createQuote(t, 2))

	resp := api.do(t, http.MethodPost, "/api/frete/gerar-etiqueta", apphttp.RoleVendedor, dto.IssueLabelRequest{
		QuoteID:  created.ID,
		OptionID: created.Options[0].ID,
		To:       dto.AddressRequest{Name: "Maria Silva", Street: "Rua A", Number: "1", District: "Centro", City: "Rio de Janeiro", StateAbbr: "RJ"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	label := decode[dto.IssueLabelResponse](t, resp)
	assert.Equal(t, "https://melhorenvio.test/imprimir/order-1", label.URL)
	assert.Equal(t, "order-1", label.OrderID)
	assert.True(t, label.Finalized)

	resp = api.do(t, http.MethodDelete, "/api/frete/cotacoes/"+created.ID, apphttp.RoleVendedor, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(3), api.available(t), "la reserva sigue provisionada tras finalizar")

	resp = api.do(t, http.MethodPost, "/api/frete/gerar-etiqueta", apphttp.RoleVendedor, dto.IssueLabelRequest{
		QuoteID: created.ID, OptionID: created.Options[0].ID, To: dto.AddressRequest{Name: "Maria"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(1), api.me.carts.Load())

	resp = api.do(t, http.MethodGet, "/api/frete/reimprimir-etiqueta/"+created.ID, apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, label.URL, decode[dto.LabelURLResponse](t, resp).URL)
}

func TestReprint_409SinEtiqueta(t *testing.T) {
	api := newTestAPI(t)
	created := decode[dto.QuoteResponse](t, api.createQuote(t, 1))
	resp := api.do(t, http.MethodGet, "/api/frete/reimprimir-etiqueta/"+created.ID, apphttp.RoleVendedor, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDownloadQuotePDF(t *testing.T) {
	api := newTestAPI(t)
	created := decode[dto.QuoteResponse](t, api.createQuote(t, 1))

	resp := api.do(t, http.MethodGet, "/api/frete/cotacoes/"+created.ID+"/pdf", apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), created.ID)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

// ──────────────────────────────────────────────────────────────────────────────
// Stock
// ──────────────────────────────────────────────────────────────────────────────

func TestEstoque_NivelesYMovimientos(t *testing.T) {
	api := newTestAPI(t)
	_ = decode[dto.QuoteResponse](t, api.createQuote(t, 2))

	resp := api.do(t, http.MethodGet, "/api/estoque?produto_id=p1", apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	levels := decode[[]dto.StockLevelResponse](t, resp)
	require.Len(t, levels, 1)
	assert.Equal(t, int64(5), levels[0].OnHand)
	assert.Equal(t, int64(2), levels[0].Provisioned)
	assert.Equal(t, int64(3), levels[0].Available)

	// OUT sin cotización no puede tocar lo reservado
	resp = api.do(t, http.MethodPost, "/api/estoque/movimentos", apphttp.RoleBodeguero, dto.AppendMovementRequest{
		ProductID: "p1", Direction: "out", Quantity: 4,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[dto.ErrorResponse](t, resp).Code)

	resp = api.do(t, http.MethodPost, "/api/estoque/movimentos", apphttp.RoleBodeguero, dto.AppendMovementRequest{
		ProductID: "p1", Direction: "IN", Quantity: 10, ExternalReference: "NF-123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mov := decode[dto.MovementResponse](t, resp)
	assert.Equal(t, "IN", mov.Direction)
	assert.Equal(t, testUserID, mov.ActorID)

	resp = api.do(t, http.MethodGet, "/api/estoque/movimentos/p1", apphttp.RoleVendedor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[dto.MovementListResponse](t, resp)
	require.Len(t, hist.Items, 2)
	assert.Equal(t, "NF-123", hist.Items[0].ExternalReference)
}

func TestEstoque_MovimientoRequiereRol(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, http.MethodPost, "/api/estoque/movimentos", apphttp.RoleVendedor, dto.AppendMovementRequest{
		ProductID: "p1", Direction: "IN", Quantity: 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/estoque", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthYMetrics(t *testing.T) {
	api := newTestAPI(t)
	_ = decode[dto.QuoteResponse](t, api.createQuote(t, 1))

	resp := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "freight_reservations_total")
}
