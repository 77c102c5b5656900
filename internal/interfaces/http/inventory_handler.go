package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Cotizador-api/internal/application/dto"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// InventoryHandler consulta de stock y escritura del libro de movimientos (protegido).
type InventoryHandler struct {
	ledger *inventory.StockLedger
	log    *logger.Logger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(ledger *inventory.StockLedger, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, log: log}
}

// ListLevels godoc
// @Summary      Stock por producto: físico, provisionado y disponible
// @Tags         estoque
// @Security     Bearer
// @Produce      json
// @Param        produto_id  query  string  false  "filtrar por producto"
// @Success      200  {array}   dto.StockLevelResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/estoque [get]
func (h *InventoryHandler) ListLevels(c *fiber.Ctx) error {
	if id := c.Query("produto_id"); id != "" {
		lvl, err := h.ledger.Level(c.UserContext(), id)
		if err != nil {
			return respondError(c, h.log, err, nil)
		}
		return c.JSON([]dto.StockLevelResponse{toLevelResponse(*lvl)})
	}
	levels, err := h.ledger.Levels(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	out := make([]dto.StockLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, toLevelResponse(l))
	}
	return c.JSON(out)
}

// AppendMovement godoc
// @Summary      Registrar movimiento de stock
// @Description  IN suma al físico. OUT no puede consumir lo provisionado, salvo que referencie una
//
//	cotización FINALIZED, en cuyo caso liquida su reserva.
//
// @Tags         estoque
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AppendMovementRequest  true  "product_id, direction, quantity"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/estoque/movimentos [post]
func (h *InventoryHandler) AppendMovement(c *fiber.Ctx) error {
	var in dto.AppendMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	mov, err := h.ledger.AppendMovement(c.UserContext(), inventory.MovementInput{
		ProductID:         in.ProductID,
		Direction:         in.Direction,
		Quantity:          in.Quantity,
		Note:              in.Note,
		ExternalReference: in.ExternalReference,
		QuoteID:           in.QuoteID,
		ActorID:           GetUserID(c),
	})
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(mov))
}

// History godoc
// @Summary      Historial de movimientos de un producto
// @Tags         estoque
// @Security     Bearer
// @Produce      json
// @Param        productId  path   string  true   "ID del producto"
// @Param        limit      query  int     false  "máximo 200"
// @Param        offset     query  int     false  "desplazamiento"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/estoque/movimentos/{productId} [get]
func (h *InventoryHandler) History(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	if page.Limit <= 0 {
		page.Limit = 50
	}
	if page.Limit > 200 {
		page.Limit = 200
	}
	list, err := h.ledger.History(c.UserContext(), c.Params("productId"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	out := dto.MovementListResponse{Items: make([]dto.MovementResponse, 0, len(list)), Page: dto.PageResponse{Limit: page.Limit, Offset: page.Offset}}
	for _, m := range list {
		out.Items = append(out.Items, toMovementResponse(m))
	}
	return c.JSON(out)
}

func toLevelResponse(l entity.StockLevel) dto.StockLevelResponse {
	return dto.StockLevelResponse{
		ProductID:   l.ProductID,
		Code:        l.Code,
		Name:        l.Name,
		OnHand:      l.OnHand,
		Provisioned: l.Provisioned,
		Available:   l.Available(),
	}
}

func toMovementResponse(m *entity.StockMovement) dto.MovementResponse {
	return dto.MovementResponse{
		ID:                m.ID,
		ProductID:         m.ProductID,
		Direction:         m.Direction,
		Quantity:          m.Quantity,
		Note:              m.Note,
		ExternalReference: m.ExternalReference,
		QuoteID:           m.QuoteID,
		ActorID:           m.ActorID,
		CreatedAt:         m.CreatedAt,
	}
}
