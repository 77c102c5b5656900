package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

// Tipos de evento publicados por el núcleo de fletes.
const (
	TypeQuoteReserved      = "freight.quote.reserved"
	TypeQuoteQuoted        = "freight.quote.quoted"
	TypeQuoteInvalid       = "freight.quote.invalid"
	TypeQuoteFailed        = "freight.quote.failed"
	TypeQuoteCancelled     = "freight.quote.cancelled"
	TypeLabelIssued        = "freight.label.issued"
	TypeReservationSettled = "inventory.reservation.settled"
)

// Line producto y cantidad dentro de un evento.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// QuoteEvent payload común de los eventos de ciclo de vida de una cotización.
// TypeLabelIssued es la señal para que el inventario registre la salida física (OUT).
type QuoteEvent struct {
	QuoteID    string    `json:"quote_id"`
	Status     string    `json:"status"`
	OrderID    string    `json:"order_id,omitempty"`
	LabelURL   string    `json:"label_url,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Lines      []Line    `json:"lines,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LinesFrom convierte ítems de cotización en líneas de evento.
func LinesFrom(items []entity.QuoteLineItem) []Line {
	out := make([]Line, 0, len(items))
	for _, it := range items {
		out = append(out, Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// Enqueue serializa el payload y lo guarda en el outbox usando el repo recibido.
// Pasar el repo atado a la transacción para que el evento se confirme junto con el cambio de estado.
func Enqueue(ctx context.Context, repo repository.OutboxRepository, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializar evento %s: %w", eventType, err)
	}
	msg := &entity.OutboxMessage{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     body,
		CreatedAt:   time.Now().UTC(),
	}
	return repo.Insert(ctx, msg)
}
