package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Cotizador-api/internal/application/dto"
	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	domainfreight "github.com/jhoicas/Cotizador-api/internal/domain/freight"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// FreightHandler cotizaciones de flete y etiquetas (protegido).
type FreightHandler struct {
	orchestrator *freight.QuoteOrchestrator
	saga         *freight.LabelSaga
	compensator  *freight.Compensator
	queries      *freight.QuoteQueries
	pdf          *freight.PDFUseCase
	log          *logger.Logger
}

// NewFreightHandler construye el handler.
func NewFreightHandler(
	orchestrator *freight.QuoteOrchestrator,
	saga *freight.LabelSaga,
	compensator *freight.Compensator,
	queries *freight.QuoteQueries,
	pdf *freight.PDFUseCase,
	log *logger.Logger,
) *FreightHandler {
	return &FreightHandler{orchestrator: orchestrator, saga: saga, compensator: compensator, queries: queries, pdf: pdf, log: log}
}

// CreateQuote godoc
// @Summary      Crear cotización de flete
// @Description  Reserva el stock de la canasta y consulta el agregador. Si el agregador falla la
//
//	cotización queda en ERROR, la reserva se libera y se responde 502.
//
// @Tags         frete
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateQuoteRequest  true  "CEP de destino, destinatario e ítems"
// @Success      201   {object}  dto.QuoteResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/frete/cotacoes [post]
func (h *FreightHandler) CreateQuote(c *fiber.Ctx) error {
	var in dto.CreateQuoteRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	origin := strings.TrimSpace(in.OriginCompanyID)
	if origin == "" {
		origin = GetCompanyID(c)
	}
	items := make([]domainfreight.BasketLine, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, domainfreight.BasketLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	view, err := h.orchestrator.CreateQuote(c.UserContext(), freight.CreateQuoteInput{
		OriginCompanyID:       origin,
		DestinationPostalCode: in.DestinationPostalCode,
		RecipientName:         in.RecipientName,
		Items:                 items,
		ActorID:               GetUserID(c),
	})
	if err != nil {
		var details any
		if view != nil {
			details = toQuoteResponse(view)
		}
		return respondError(c, h.log, err, details)
	}
	return c.Status(fiber.StatusCreated).JSON(toQuoteResponse(view))
}

// ListQuotes godoc
// @Summary      Listar cotizaciones
// @Tags         frete
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int  false  "máximo 100"
// @Param        offset  query  int  false  "desplazamiento"
// @Success      200  {object}  dto.QuoteListResponse
// @Router       /api/frete/cotacoes [get]
func (h *FreightHandler) ListQuotes(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	list, err := h.queries.List(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	out := dto.QuoteListResponse{Items: make([]dto.QuoteResponse, 0, len(list)), Page: dto.PageResponse{Limit: page.Limit, Offset: page.Offset}}
	for _, q := range list {
		out.Items = append(out.Items, toQuoteResponse(&freight.QuoteView{Quote: q}))
	}
	return c.JSON(out)
}

// GetQuote godoc
// @Summary      Obtener cotización con sus opciones (precio ascendente)
// @Tags         frete
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la cotización"
// @Success      200  {object}  dto.QuoteResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/frete/cotacoes/{id} [get]
func (h *FreightHandler) GetQuote(c *fiber.Ctx) error {
	view, err := h.queries.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(toQuoteResponse(view))
}

// DownloadQuotePDF godoc
// @Summary      Hoja de cotización en PDF
// @Tags         frete
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "ID de la cotización"
// @Success      200  {file}  binary
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/frete/cotacoes/{id}/pdf [get]
func (h *FreightHandler) DownloadQuotePDF(c *fiber.Ctx) error {
	body, filename, err := h.pdf.DownloadQuotePDF(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(body)
}

// CancelQuote godoc
// @Summary      Cancelar cotización y liberar la reserva
// @Tags         frete
// @Security     Bearer
// @Param        id   path  string  true  "ID de la cotización"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/frete/cotacoes/{id} [delete]
func (h *FreightHandler) CancelQuote(c *fiber.Ctx) error {
	if err := h.compensator.CancelQuote(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueLabel godoc
// @Summary      Emitir etiqueta para la opción elegida
// @Description  carrito → checkout → generate → print. Finaliza la cotización.
// @Tags         frete
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.IssueLabelRequest  true  "cotización, opción y direcciones"
// @Success      200   {object}  dto.IssueLabelResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/frete/gerar-etiqueta [post]
func (h *FreightHandler) IssueLabel(c *fiber.Ctx) error {
	var in dto.IssueLabelRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	input := freight.IssueLabelInput{
		QuoteID:  in.QuoteID,
		OptionID: in.OptionID,
		To:       toAddress(in.To),
		ActorID:  GetUserID(c),
	}
	if in.From != nil {
		from := toAddress(*in.From)
		input.From = &from
	}
	res, err := h.saga.IssueLabel(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.IssueLabelResponse{URL: res.URL, OrderID: res.OrderID, Finalized: res.Finalized})
}

// ReprintLabel godoc
// @Summary      Reimprimir etiqueta de una cotización finalizada
// @Tags         frete
// @Security     Bearer
// @Produce      json
// @Param        quoteId  path  string  true  "ID de la cotización"
// @Success      200  {object}  dto.LabelURLResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/frete/reimprimir-etiqueta/{quoteId} [get]
func (h *FreightHandler) ReprintLabel(c *fiber.Ctx) error {
	url, err := h.queries.Reprint(c.UserContext(), c.Params("quoteId"))
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.LabelURLResponse{URL: url})
}

func toQuoteResponse(v *freight.QuoteView) dto.QuoteResponse {
	q := v.Quote
	out := dto.QuoteResponse{
		ID:                    q.ID,
		OriginCompanyID:       q.OriginCompanyID,
		DestinationPostalCode: q.DestinationPostalCode,
		RecipientName:         q.RecipientName,
		Status:                string(q.Status),
		FailureReason:         q.FailureReason,
		LabelOrderID:          q.LabelOrderID,
		LabelURL:              q.LabelURL,
		FinalizedAt:           q.FinalizedAt,
		CreatedBy:             q.CreatedBy,
		CreatedAt:             q.CreatedAt,
		Options:               toOptionResponses(v.Options),
	}
	for _, it := range v.Items {
		out.Items = append(out.Items, dto.QuoteItemResponse{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func toOptionResponses(options []entity.CarrierOption) []dto.CarrierOptionResponse {
	out := make([]dto.CarrierOptionResponse, 0, len(options))
	for _, o := range options {
		out = append(out, dto.CarrierOptionResponse{
			ID:           o.ID,
			ServiceID:    o.ExternalServiceID,
			Carrier:      o.CarrierName,
			Service:      o.ServiceName,
			Price:        o.Price,
			DeliveryDays: o.LeadTimeDays,
			LogoURL:      o.LogoURL,
		})
	}
	return out
}

func toAddress(a dto.AddressRequest) ports.Address {
	return ports.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Email:      a.Email,
		Document:   a.Document,
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		StateAbbr:  a.StateAbbr,
		CountryID:  a.CountryID,
		PostalCode: a.PostalCode,
	}
}
