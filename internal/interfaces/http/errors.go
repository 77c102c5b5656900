package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Cotizador-api/internal/application/dto"
	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
)

// respondError traduce errores de dominio a HTTP. details se adjunta a la respuesta si no es nil.
func respondError(c *fiber.Ctx, log *logger.Logger, err error, details any) error {
	var short *domain.InsufficientStockError
	if errors.As(err, &short) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code:    "INSUFFICIENT_STOCK",
			Message: short.Error(),
			Details: dto.InsufficientStockDetails{
				ProductID:   short.ProductID,
				ProductName: short.ProductName,
				Requested:   short.Requested,
				Available:   short.Available,
			},
		})
	}
	var agg *domain.AggregatorError
	if errors.As(err, &agg) {
		msg := agg.Message
		if msg == "" {
			msg = agg.Error()
		}
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Code:    "AGGREGATOR_ERROR",
			Message: "intente más tarde: " + msg,
			Details: details,
		})
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
	}
	if log != nil {
		log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
