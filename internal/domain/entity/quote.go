package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus estado de una cotización de flete.
type QuoteStatus string

const (
	QuoteProcessing QuoteStatus = "PROCESSING" // stock reservado, esperando al agregador
	QuoteQuoted     QuoteStatus = "QUOTED"     // opciones disponibles para elegir
	QuoteInvalid    QuoteStatus = "INVALID"    // el agregador no devolvió opciones válidas; reserva liberada
	QuoteError      QuoteStatus = "ERROR"      // falla del agregador; reserva liberada
	QuoteFinalized  QuoteStatus = "FINALIZED"  // etiqueta emitida; terminal
)

// Etapas del saga de etiqueta ya completadas (LabelStage).
const (
	LabelStageNone     = ""
	LabelStageCart     = "CART"
	LabelStageCheckout = "CHECKOUT"
	LabelStageGenerate = "GENERATE"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteProcessing: {QuoteQuoted, QuoteInvalid, QuoteError},
	QuoteQuoted:     {QuoteFinalized},
}

// CanTransitionTo indica si el paso s -> next es válido en la máquina de estados.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deletable: solo una cotización no finalizada puede cancelarse.
func (s QuoteStatus) Deletable() bool {
	return s != QuoteFinalized
}

// Quote agregado de cotización de flete.
type Quote struct {
	ID                    string
	OriginCompanyID       string
	DestinationPostalCode string // solo dígitos
	RecipientName         string
	Status                QuoteStatus
	FailureReason         string
	LabelOptionID         string
	LabelOrderID          string
	LabelStage            string
	LabelURL              string
	FinalizedAt           *time.Time
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// QuoteLineItem producto reservado por una cotización. Inmutable tras su creación.
type QuoteLineItem struct {
	QuoteID   string
	ProductID string
	Quantity  int64
}

// CarrierOption servicio de transporte devuelto por el agregador para una cotización.
type CarrierOption struct {
	ID                string
	QuoteID           string
	ExternalServiceID int64
	CarrierName       string
	ServiceName       string
	Price             decimal.Decimal
	LeadTimeDays      int
	LogoURL           string
}
