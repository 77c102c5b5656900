package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto del catálogo (colaborador externo).
// El núcleo de fletes solo lee dimensiones y peso y muta ProvisionedQuantity.
type Product struct {
	ID                  string
	Code                string
	Name                string
	Height              decimal.Decimal // cm
	Width               decimal.Decimal // cm
	Depth               decimal.Decimal // cm
	Weight              decimal.Decimal // kg
	DeclaredValue       decimal.Decimal // valor declarado unitario; cero = usar el default configurado
	ProvisionedQuantity int64           // unidades comprometidas en cotizaciones vigentes
	UpdatedAt           time.Time
}

// StockLevel foto del stock de un producto: físico, provisionado y disponible.
type StockLevel struct {
	ProductID   string
	Code        string
	Name        string
	OnHand      int64
	Provisioned int64
}

// Available on_hand - provisioned.
func (l StockLevel) Available() int64 {
	return l.OnHand - l.Provisioned
}
