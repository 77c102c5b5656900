package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Orchestrator *freight.QuoteOrchestrator
	LabelSaga    *freight.LabelSaga
	Compensator  *freight.Compensator
	Queries      *freight.QuoteQueries
	QuotePDF     *freight.PDFUseCase
	Ledger       *inventory.StockLedger
	Gatherer     prometheus.Gatherer // nil = sin /metrics
	JWTSecret    string
	ServiceName  string
	Log          *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Fletes
	frete := protected.Group("/frete")
	freightHandler := NewFreightHandler(deps.Orchestrator, deps.LabelSaga, deps.Compensator, deps.Queries, deps.QuotePDF, deps.Log)
	frete.Post("/cotacoes", freightHandler.CreateQuote)
	frete.Get("/cotacoes", freightHandler.ListQuotes)
	frete.Get("/cotacoes/:id", freightHandler.GetQuote)
	frete.Get("/cotacoes/:id/pdf", freightHandler.DownloadQuotePDF)
	frete.Delete("/cotacoes/:id", freightHandler.CancelQuote)
	frete.Post("/gerar-etiqueta", freightHandler.IssueLabel)
	frete.Get("/reimprimir-etiqueta/:quoteId", freightHandler.ReprintLabel)

	// Stock: la escritura del libro es del colaborador de inventario
	estoque := protected.Group("/estoque")
	inventoryHandler := NewInventoryHandler(deps.Ledger, deps.Log)
	estoque.Get("/", inventoryHandler.ListLevels)
	estoque.Get("/movimentos/:productId", inventoryHandler.History)
	estoque.Post("/movimentos", RequireRole(RoleAdmin, RoleBodeguero), inventoryHandler.AppendMovement)
}
