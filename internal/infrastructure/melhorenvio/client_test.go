package melhorenvio_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/melhorenvio"
)

func newClient(t *testing.T, h http.HandlerFunc) *melhorenvio.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return melhorenvio.NewClient(melhorenvio.Config{
		BaseURL:   srv.URL,
		Token:     "tok",
		UserAgent: "Cotizador (ops@loja.test)",
		Timeout:   2 * time.Second,
	})
}

func TestCalculate_EnviaCanastaYMapeaOpciones(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/me/shipment/calculate", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "Cotizador (ops@loja.test)", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`[
			{"id":1,"name":"PAC","price":"22.50","delivery_time":7,"company":{"name":"Correios","picture":"https://img/correios.png"}},
			{"id":2,"name":"SEDEX","price":45.9,"delivery_time":2,"company":{"name":"Correios"}},
			{"id":3,"name":".Com","error":"Serviço indisponível para o trecho.","company":{"name":"Jadlog"}}
		]`))
	})

	rates, err := c.Calculate(context.Background(), ports.RateRequest{
		FromPostalCode: "01001000",
		ToPostalCode:   "20040020",
		Parcels: []ports.Parcel{{
			ID: "p1", Width: decimal.NewFromInt(15), Height: decimal.NewFromInt(10), Length: decimal.NewFromInt(20),
			Weight: decimal.RequireFromString("0.3"), InsuranceValue: decimal.NewFromInt(10), Quantity: 2,
		}},
	})
	require.NoError(t, err)
	require.Len(t, rates, 3)
	assert.Equal(t, int64(1), rates[0].ServiceID)
	assert.Equal(t, "Correios", rates[0].CarrierName)
	assert.True(t, rates[0].Price.Equal(decimal.RequireFromString("22.50")))
	assert.Equal(t, 7, rates[0].DeliveryDays)
	assert.Equal(t, "https://img/correios.png", rates[0].LogoURL)
	assert.True(t, rates[1].Price.Equal(decimal.RequireFromString("45.9")))
	assert.NotEmpty(t, rates[2].Error)

	assert.Equal(t, "01001000", got["from"].(map[string]any)["postal_code"])
	products := got["products"].([]any)
	require.Len(t, products, 1)
	p := products[0].(map[string]any)
	assert.Equal(t, float64(20), p["length"])
	assert.Equal(t, float64(2), p["quantity"])
	assert.Equal(t, float64(10), p["insurance_value"])
}

func TestCalculate_ErrorHTTPConMensaje(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The given data was invalid.","errors":{"to.postal_code":["CEP inválido"]}}`))
	})
	_, err := c.Calculate(context.Background(), ports.RateRequest{FromPostalCode: "01001000", ToPostalCode: "00000000"})
	require.Error(t, err)
	var aggErr *domain.AggregatorError
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, 422, aggErr.StatusCode)
	assert.Equal(t, "calculate", aggErr.Op)
	assert.Contains(t, aggErr.Message, "CEP inválido")
	assert.True(t, errors.Is(err, domain.ErrAggregator))
}

func TestCalculate_Timeout(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Calculate(ctx, ports.RateRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAggregator))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLabelFlow_CarritoCheckoutGenerarImprimir(t *testing.T) {
	calls := map[string]map[string]any{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				require.NoError(t, json.Unmarshal(raw, &body))
			}
		}
		calls[r.URL.Path] = body
		switch r.URL.Path {
		case "/api/v2/me/cart":
			_, _ = w.Write([]byte(`{"id":"9a1b-order","protocol":"ORD-1"}`))
		case "/api/v2/me/shipment/checkout", "/api/v2/me/shipment/generate":
			_, _ = w.Write([]byte(`{}`))
		case "/api/v2/me/shipment/print":
			_, _ = w.Write([]byte(`{"url":"https://sandbox/imprimir/xyz"}`))
		case "/api/v2/me/orders/9a1b-order":
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"id":"9a1b-order","status":"generated"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	orderID, err := c.AddToCart(ctx, ports.CartRequest{
		ServiceID:      1,
		From:           ports.Address{Name: "Loja", Street: "Praça da Sé", PostalCode: "01001000"},
		To:             ports.Address{Name: "Maria", PostalCode: "20040020", CountryID: "BR"},
		Products:       []ports.CartProduct{{Name: "Caneca", Quantity: 2, UnitaryValue: decimal.NewFromInt(50)}},
		InsuranceValue: decimal.NewFromInt(100),
		NonCommercial:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "9a1b-order", orderID)
	cart := calls["/api/v2/me/cart"]
	assert.Equal(t, float64(1), cart["service"])
	assert.Equal(t, "Praça da Sé", cart["from"].(map[string]any)["address"])
	opts := cart["options"].(map[string]any)
	assert.Equal(t, float64(100), opts["insurance_value"])
	assert.Equal(t, true, opts["non_commercial"])
	assert.Equal(t, false, opts["receipt"])

	require.NoError(t, c.Checkout(ctx, orderID))
	assert.Equal(t, []any{"9a1b-order"}, calls["/api/v2/me/shipment/checkout"]["orders"])
	require.NoError(t, c.Generate(ctx, orderID))

	status, err := c.OrderStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, ports.OrderStatusGenerated, status)

	url, err := c.Print(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox/imprimir/xyz", url)
	assert.Equal(t, "private", calls["/api/v2/me/shipment/print"]["mode"])
}

func TestSinToken(t *testing.T) {
	c := melhorenvio.NewClient(melhorenvio.Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Print(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAggregator))
}
