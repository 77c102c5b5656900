package freight

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// QuoteQueries lecturas de cotizaciones y reimpresión de etiquetas.
type QuoteQueries struct {
	repos   inventory.Repos
	issuer  ports.LabelIssuer
	metrics ports.Metrics
	cfg     Config
}

// NewQuoteQueries construye el caso de uso de consulta.
func NewQuoteQueries(repos inventory.Repos, issuer ports.LabelIssuer, metrics ports.Metrics, cfg Config) *QuoteQueries {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &QuoteQueries{repos: repos, issuer: issuer, metrics: metrics, cfg: cfg}
}

// Get cotización con ítems y opciones ordenadas por precio ascendente.
func (q *QuoteQueries) Get(ctx context.Context, quoteID string) (*QuoteView, error) {
	if quoteID == "" {
		return nil, domain.Invalid("id de cotización requerido")
	}
	quote, err := q.repos.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: cotización %s", domain.ErrNotFound, quoteID)
	}
	items, err := q.repos.Quotes.ListItems(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	options, err := q.repos.Quotes.ListOptions(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return &QuoteView{Quote: quote, Items: items, Options: options}, nil
}

// List cotizaciones más recientes primero.
func (q *QuoteQueries) List(ctx context.Context, limit, offset int) ([]*entity.Quote, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return q.repos.Quotes.List(ctx, limit, offset)
}

// Reprint vuelve a pedir la URL de impresión de una cotización FINALIZED.
func (q *QuoteQueries) Reprint(ctx context.Context, quoteID string) (string, error) {
	if quoteID == "" {
		return "", domain.Invalid("id de cotización requerido")
	}
	quote, err := q.repos.Quotes.GetByID(ctx, quoteID)
	if err != nil {
		return "", err
	}
	if quote == nil {
		return "", fmt.Errorf("%w: cotización %s", domain.ErrNotFound, quoteID)
	}
	if quote.Status != entity.QuoteFinalized || quote.LabelOrderID == "" {
		return "", domain.Conflict("la cotización %s no tiene etiqueta emitida", quoteID)
	}

	callCtx, cancel := context.WithTimeout(ctx, q.cfg.CarrierTimeout)
	defer cancel()
	start := time.Now()
	url, err := q.issuer.Print(callCtx, quote.LabelOrderID)
	q.metrics.AggregatorCall("print", outcome(err), time.Since(start))
	if err != nil {
		return "", asAggregatorError("print", err)
	}
	if url == "" {
		// la URL original sigue siendo válida
		url = quote.LabelURL
	}
	if url == "" {
		return "", &domain.AggregatorError{Op: "print", Message: "el agregador no devolvió URL de impresión"}
	}
	return url, nil
}
