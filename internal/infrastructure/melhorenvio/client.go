// Package melhorenvio adaptador REST del agregador de fletes (API v2 de Melhor Envio).
package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
)

// Verificar en tiempo de compilación que Client implementa ambos puertos.
var (
	_ ports.RateAggregator = (*Client)(nil)
	_ ports.LabelIssuer    = (*Client)(nil)
)

const (
	// SandboxURL base del ambiente de pruebas.
	SandboxURL = "https://sandbox.melhorenvio.com.br"

	pathCalculate = "/api/v2/me/shipment/calculate"
	pathCart      = "/api/v2/me/cart"
	pathCheckout  = "/api/v2/me/shipment/checkout"
	pathGenerate  = "/api/v2/me/shipment/generate"
	pathPrint     = "/api/v2/me/shipment/print"
	pathOrder     = "/api/v2/me/orders/"

	maxBody = 256 * 1024
)

// Config conexión con el agregador.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string // el agregador exige "Aplicación (email de contacto)"
	Timeout   time.Duration
}

// Client cliente HTTP del agregador. Cada llamada lleva Bearer token, User-Agent y un span.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient construye el cliente. Timeout es el tope de red; el caso de uso impone además
// un context.WithTimeout por llamada.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("melhorenvio"),
	}
}

// ── Protocolo ─────────────────────────────────────────────────────────────────

type calculateRequest struct {
	From     postal           `json:"from"`
	To       postal           `json:"to"`
	Products []calculateItem  `json:"products"`
	Options  calculateOptions `json:"options"`
}

type postal struct {
	PostalCode string `json:"postal_code"`
}

type calculateItem struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	Weight         float64 `json:"weight"`
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int64   `json:"quantity"`
}

type calculateOptions struct {
	Receipt bool `json:"receipt"`
	OwnHand bool `json:"own_hand"`
}

type calculateOption struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Price        json.Number `json:"price"`
	DeliveryTime int         `json:"delivery_time"`
	Error        string      `json:"error"`
	Company      struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"company"`
}

type address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Document   string `json:"document,omitempty"`
	Address    string `json:"address,omitempty"`
	Complement string `json:"complement,omitempty"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	StateAbbr  string `json:"state_abbr,omitempty"`
	CountryID  string `json:"country_id,omitempty"`
	PostalCode string `json:"postal_code"`
}

type cartProduct struct {
	Name         string  `json:"name"`
	Quantity     int64   `json:"quantity"`
	UnitaryValue float64 `json:"unitary_value"`
}

type cartOptions struct {
	InsuranceValue float64 `json:"insurance_value"`
	Receipt        bool    `json:"receipt"`
	OwnHand        bool    `json:"own_hand"`
	Reverse        bool    `json:"reverse"`
	NonCommercial  bool    `json:"non_commercial"`
}

type cartRequest struct {
	Service  int64         `json:"service"`
	From     address       `json:"from"`
	To       address       `json:"to"`
	Products []cartProduct `json:"products"`
	Options  cartOptions   `json:"options"`
}

type ordersRequest struct {
	Mode   string   `json:"mode,omitempty"`
	Orders []string `json:"orders"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

// ── Implementación de los puertos ─────────────────────────────────────────────

// Calculate consulta todas las opciones de envío para la canasta.
func (c *Client) Calculate(ctx context.Context, req ports.RateRequest) ([]ports.RateQuote, error) {
	body := calculateRequest{
		From: postal{PostalCode: req.FromPostalCode},
		To:   postal{PostalCode: req.ToPostalCode},
	}
	for _, p := range req.Parcels {
		body.Products = append(body.Products, calculateItem{
			ID:             p.ID,
			Width:          p.Width.InexactFloat64(),
			Height:         p.Height.InexactFloat64(),
			Length:         p.Length.InexactFloat64(),
			Weight:         p.Weight.InexactFloat64(),
			InsuranceValue: p.InsuranceValue.InexactFloat64(),
			Quantity:       p.Quantity,
		})
	}
	var raw []calculateOption
	if err := c.do(ctx, "calculate", http.MethodPost, pathCalculate, body, &raw); err != nil {
		return nil, err
	}
	out := make([]ports.RateQuote, 0, len(raw))
	for _, o := range raw {
		q := ports.RateQuote{
			ServiceID:    o.ID,
			CarrierName:  o.Company.Name,
			ServiceName:  o.Name,
			DeliveryDays: o.DeliveryTime,
			LogoURL:      o.Company.Picture,
			Error:        o.Error,
		}
		if o.Error == "" {
			price, err := parseDecimal(o.Price)
			if err != nil {
				q.Error = fmt.Sprintf("precio inválido %q", o.Price)
			}
			q.Price = price
		}
		out = append(out, q)
	}
	return out, nil
}

// AddToCart agrega el envío al carrito y devuelve el id del pedido.
func (c *Client) AddToCart(ctx context.Context, req ports.CartRequest) (string, error) {
	body := cartRequest{
		Service: req.ServiceID,
		From:    toAddress(req.From),
		To:      toAddress(req.To),
		Options: cartOptions{
			InsuranceValue: req.InsuranceValue.InexactFloat64(),
			Receipt:        req.Receipt,
			OwnHand:        req.OwnHand,
			Reverse:        req.Reverse,
			NonCommercial:  req.NonCommercial,
		},
	}
	for _, p := range req.Products {
		body.Products = append(body.Products, cartProduct{Name: p.Name, Quantity: p.Quantity, UnitaryValue: p.UnitaryValue.InexactFloat64()})
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "cart", http.MethodPost, pathCart, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Checkout paga el pedido con el saldo de la cuenta.
func (c *Client) Checkout(ctx context.Context, orderID string) error {
	return c.do(ctx, "checkout", http.MethodPost, pathCheckout, ordersRequest{Orders: []string{orderID}}, nil)
}

// Generate solicita la generación de la etiqueta.
func (c *Client) Generate(ctx context.Context, orderID string) error {
	return c.do(ctx, "generate", http.MethodPost, pathGenerate, ordersRequest{Orders: []string{orderID}}, nil)
}

// Print devuelve la URL del documento imprimible.
func (c *Client) Print(ctx context.Context, orderID string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "print", http.MethodPost, pathPrint, ordersRequest{Mode: "private", Orders: []string{orderID}}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// OrderStatus estado actual del pedido (pending, released, generated, posted...).
func (c *Client) OrderStatus(ctx context.Context, orderID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "status", http.MethodGet, pathOrder+orderID, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// do ejecuta la llamada y traduce cualquier falla a *domain.AggregatorError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "melhorenvio."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("freight.operation", op)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op)
		}
		span.End()
	}()

	if c.cfg.Token == "" {
		return &domain.AggregatorError{Op: op, Message: "MELHOR_ENVIO_TOKEN no configurado"}
	}
	var reader io.Reader
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			return &domain.AggregatorError{Op: op, Message: "serializar request", Err: mErr}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return &domain.AggregatorError{Op: op, Message: "crear request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &domain.AggregatorError{Op: op, Message: "tiempo de espera agotado", Err: ctx.Err()}
		}
		return &domain.AggregatorError{Op: op, Message: "llamada HTTP fallida", Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &domain.AggregatorError{Op: op, StatusCode: resp.StatusCode, Message: "leer respuesta", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.AggregatorError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.AggregatorError{Op: op, StatusCode: resp.StatusCode, Message: "respuesta no reconocida", Err: err}
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil {
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		for field, list := range e.Errors {
			if len(list) > 0 {
				msg = strings.TrimSpace(fmt.Sprintf("%s %s: %s", msg, field, list[0]))
				break
			}
		}
		if msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}

func toAddress(a ports.Address) address {
	return address{
		Name:       a.Name,
		Phone:      a.Phone,
		Email:      a.Email,
		Document:   a.Document,
		Address:    a.Street,
		Complement: a.Complement,
		Number:     a.Number,
		District:   a.District,
		City:       a.City,
		StateAbbr:  a.StateAbbr,
		CountryID:  a.CountryID,
		PostalCode: a.PostalCode,
	}
}
