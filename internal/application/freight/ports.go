package freight

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// Config parámetros de negocio del flujo de fletes.
type Config struct {
	CarrierTimeout       time.Duration   // timeout de cada llamada al agregador
	QuoteInsuranceValue  decimal.Decimal // valor asegurado por producto en la cotización si el producto no declara uno
	DeclaredUnitValue    decimal.Decimal // valor unitario declarado en el carrito si el producto no declara uno
	LabelSettle          time.Duration   // espera fija entre generar e imprimir (sin polling)
	LabelPollAttempts    int             // 0 = sin polling, solo LabelSettle
	LabelPollInitial     time.Duration
	LabelPollMax         time.Duration
	LabelLockTTL         time.Duration // mínimo del candado de emisión; ver LabelLockLease
	StaleAfter           time.Duration // antigüedad a partir de la cual una cotización PROCESSING se considera huérfana
	StaleReapInterval    time.Duration
	DefaultCountryID     string
	DefaultRecipientName string
}

// DefaultConfig valores por defecto.
func DefaultConfig() Config {
	return Config{
		CarrierTimeout:      15 * time.Second,
		QuoteInsuranceValue: decimal.NewFromInt(10),
		DeclaredUnitValue:   decimal.NewFromInt(50),
		LabelSettle:         2 * time.Second,
		LabelPollAttempts:   5,
		LabelPollInitial:    500 * time.Millisecond,
		LabelPollMax:        4 * time.Second,
		LabelLockTTL:        2 * time.Minute,
		StaleAfter:          10 * time.Minute,
		StaleReapInterval:   time.Minute,
		DefaultCountryID:    "BR",
	}
}

// labelLockMargin holgura sobre el peor caso del saga para las escrituras en BD.
const labelLockMargin = 30 * time.Second

// LabelLockLease duración con la que se toma el candado de emisión: LabelLockTTL, elevado al
// peor caso del saga (cart, checkout, generate, print y cada consulta de estado agotando
// CarrierTimeout, más las esperas entre consultas) para que no expire con el saga en curso.
func (c Config) LabelLockLease() time.Duration {
	calls := 4 + max(c.LabelPollAttempts, 0)
	worst := time.Duration(calls)*c.CarrierTimeout + c.labelWaitBudget() + labelLockMargin
	return max(c.LabelLockTTL, worst)
}

// labelWaitBudget suma las esperas de awaitGenerated entre generate y print.
func (c Config) labelWaitBudget() time.Duration {
	if c.LabelPollAttempts <= 0 {
		return c.LabelSettle
	}
	var total time.Duration
	delay := c.LabelPollInitial
	for i := 0; i < c.LabelPollAttempts; i++ {
		total += delay
		delay *= 2
		if c.LabelPollMax > 0 && delay > c.LabelPollMax {
			delay = c.LabelPollMax
		}
	}
	return total
}

// QuotePDFGenerator puerto de salida para la hoja de cotización en PDF.
type QuotePDFGenerator interface {
	GenerateQuotePDF(ctx context.Context, sheet QuoteSheet) ([]byte, error)
}

// QuoteSheet datos consolidados para la hoja de cotización.
type QuoteSheet struct {
	Quote   *entity.Quote
	Company *entity.Company
	Lines   []SheetLine
	Options []entity.CarrierOption
}

// SheetLine ítem de la hoja con datos de producto.
type SheetLine struct {
	ProductID string
	Code      string
	Name      string
	Quantity  int64
	Weight    decimal.Decimal
}

// QuoteView cotización con sus ítems y opciones (ordenadas por precio ascendente).
type QuoteView struct {
	Quote   *entity.Quote
	Items   []entity.QuoteLineItem
	Options []entity.CarrierOption
}
