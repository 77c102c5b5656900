package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// Estados de pedido del agregador que indican etiqueta lista para imprimir.
const (
	OrderStatusGenerated = "generated"
	OrderStatusPosted    = "posted"
	OrderStatusDelivered = "delivered"
)

// Parcel un producto distinto de la canasta con su cantidad.
type Parcel struct {
	ID             string
	Width          decimal.Decimal
	Height         decimal.Decimal
	Length         decimal.Decimal
	Weight         decimal.Decimal
	InsuranceValue decimal.Decimal
	Quantity       int64
}

// RateRequest una sola consulta de tarifas para toda la canasta. CEPs solo dígitos.
type RateRequest struct {
	FromPostalCode string
	ToPostalCode   string
	Parcels        []Parcel
}

// RateQuote opción devuelta por el agregador. Error no vacío = opción no disponible.
type RateQuote struct {
	ServiceID    int64
	CarrierName  string
	ServiceName  string
	Price        decimal.Decimal
	DeliveryDays int
	LogoURL      string
	Error        string
}

// Address remitente o destinatario de la etiqueta.
type Address struct {
	Name       string
	Phone      string
	Email      string
	Document   string
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	StateAbbr  string
	CountryID  string
	PostalCode string
}

// CartProduct producto declarado en el carrito de etiqueta.
type CartProduct struct {
	Name         string
	Quantity     int64
	UnitaryValue decimal.Decimal
}

// CartRequest paso 1 del saga de etiqueta.
type CartRequest struct {
	ServiceID      int64
	From           Address
	To             Address
	Products       []CartProduct
	InsuranceValue decimal.Decimal
	Receipt        bool
	OwnHand        bool
	Reverse        bool
	NonCommercial  bool
}

// RateAggregator puerto de salida para la cotización de fletes.
// El contexto debe llevar timeout: la latencia del agregador no está acotada.
type RateAggregator interface {
	Calculate(ctx context.Context, req RateRequest) ([]RateQuote, error)
}

// LabelIssuer puerto de salida para la compra e impresión de etiquetas (carrito → checkout → generar → imprimir).
type LabelIssuer interface {
	AddToCart(ctx context.Context, req CartRequest) (orderID string, err error)
	Checkout(ctx context.Context, orderID string) error
	Generate(ctx context.Context, orderID string) error
	Print(ctx context.Context, orderID string) (url string, err error)
	OrderStatus(ctx context.Context, orderID string) (string, error)
}
