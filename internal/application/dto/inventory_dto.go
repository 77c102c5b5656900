package dto

import "time"

// AppendMovementRequest body para POST /api/estoque/movimentos.
type AppendMovementRequest struct {
	ProductID         string `json:"product_id"`
	Direction         string `json:"direction"` // IN | OUT
	Quantity          int64  `json:"quantity"`
	Note              string `json:"note,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
	QuoteID           string `json:"quote_id,omitempty"` // OUT que liquida la reserva de una cotización finalizada
}

// MovementResponse movimiento del libro de stock.
type MovementResponse struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	Direction         string    `json:"direction"`
	Quantity          int64     `json:"quantity"`
	Note              string    `json:"note,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	QuoteID           string    `json:"quote_id,omitempty"`
	ActorID           string    `json:"actor_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// StockLevelResponse físico, provisionado y disponible de un producto.
type StockLevelResponse struct {
	ProductID   string `json:"product_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	OnHand      int64  `json:"on_hand"`
	Provisioned int64  `json:"provisioned"`
	Available   int64  `json:"available"`
}

// MovementListResponse historial paginado.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}
