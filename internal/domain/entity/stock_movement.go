package entity

import "time"

// Direcciones de movimiento del libro de stock.
const (
	MovementIN  = "IN"  // entrada
	MovementOUT = "OUT" // salida
)

// StockMovement hecho inmutable del libro de stock. Nunca se actualiza ni se borra.
// QuoteID es opcional: una salida que referencia una cotización FINALIZED liquida su reserva.
type StockMovement struct {
	ID                string
	ProductID         string
	Direction         string // IN, OUT
	Quantity          int64  // siempre positivo
	Note              string
	ExternalReference string // número de nota fiscal, orden, etc.
	QuoteID           string
	ActorID           string
	CreatedAt         time.Time
}

// Signed cantidad con signo según la dirección.
func (m *StockMovement) Signed() int64 {
	if m.Direction == MovementOUT {
		return -m.Quantity
	}
	return m.Quantity
}
