package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteItemRequest producto y cantidad de la canasta.
type QuoteItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CreateQuoteRequest body para POST /api/frete/cotacoes.
// OriginCompanyID vacío = empresa del token.
type CreateQuoteRequest struct {
	OriginCompanyID       string             `json:"origin_company_id,omitempty"`
	DestinationPostalCode string             `json:"destination_postal_code"`
	RecipientName         string             `json:"recipient_name"`
	Items                 []QuoteItemRequest `json:"items"`
}

// QuoteItemResponse ítem reservado.
type QuoteItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CarrierOptionResponse opción de envío.
type CarrierOptionResponse struct {
	ID           string          `json:"id"`
	ServiceID    int64           `json:"service_id"`
	Carrier      string          `json:"carrier"`
	Service      string          `json:"service"`
	Price        decimal.Decimal `json:"price"`
	DeliveryDays int             `json:"delivery_days"`
	LogoURL      string          `json:"logo_url,omitempty"`
}

// QuoteResponse cotización con ítems y opciones ordenadas por precio ascendente.
type QuoteResponse struct {
	ID                    string                  `json:"id"`
	OriginCompanyID       string                  `json:"origin_company_id"`
	DestinationPostalCode string                  `json:"destination_postal_code"`
	RecipientName         string                  `json:"recipient_name"`
	Status                string                  `json:"status"`
	FailureReason         string                  `json:"failure_reason,omitempty"`
	LabelOrderID          string                  `json:"label_order_id,omitempty"`
	LabelURL              string                  `json:"label_url,omitempty"`
	FinalizedAt           *time.Time              `json:"finalized_at,omitempty"`
	CreatedBy             string                  `json:"created_by,omitempty"`
	CreatedAt             time.Time               `json:"created_at"`
	Items                 []QuoteItemResponse     `json:"items,omitempty"`
	Options               []CarrierOptionResponse `json:"options"`
}

// QuoteListResponse listado paginado (sin ítems ni opciones).
type QuoteListResponse struct {
	Items []QuoteResponse `json:"items"`
	Page  PageResponse    `json:"page"`
}

// AddressRequest dirección de remitente o destinatario de la etiqueta.
type AddressRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Document   string `json:"document,omitempty"` // CPF o CNPJ
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	StateAbbr  string `json:"state_abbr"`
	CountryID  string `json:"country_id,omitempty"`
	PostalCode string `json:"postal_code"`
}

// IssueLabelRequest body para POST /api/frete/gerar-etiqueta. From vacío = dirección de la empresa.
type IssueLabelRequest struct {
	QuoteID  string          `json:"quote_id"`
	OptionID string          `json:"option_id"`
	From     *AddressRequest `json:"from,omitempty"`
	To       AddressRequest  `json:"to"`
}

// IssueLabelResponse resultado del saga de etiqueta.
type IssueLabelResponse struct {
	URL       string `json:"url"`
	OrderID   string `json:"order_id"`
	Finalized bool   `json:"finalized"`
}

// LabelURLResponse URL de impresión.
type LabelURLResponse struct {
	URL string `json:"url"`
}
