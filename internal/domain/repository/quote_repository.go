package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// QuoteRepository puerto de persistencia de cotizaciones, ítems y opciones.
type QuoteRepository interface {
	Create(ctx context.Context, quote *entity.Quote) error
	CreateItems(ctx context.Context, items []entity.QuoteLineItem) error
	GetByID(ctx context.Context, id string) (*entity.Quote, error)
	// GetForUpdate bloquea la fila de la cotización hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.Quote, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Quote, error)
	ListItems(ctx context.Context, quoteID string) ([]entity.QuoteLineItem, error)
	DeleteItems(ctx context.Context, quoteID string) (int64, error)

	// TransitionStatus cambia el estado solo si el actual está en from. false si no aplicó.
	TransitionStatus(ctx context.Context, id string, from []entity.QuoteStatus, to entity.QuoteStatus, reason string) (bool, error)
	SaveOptions(ctx context.Context, options []entity.CarrierOption) error
	// ListOptions devuelve las opciones ordenadas por precio ascendente.
	ListOptions(ctx context.Context, quoteID string) ([]entity.CarrierOption, error)
	GetOption(ctx context.Context, optionID string) (*entity.CarrierOption, error)

	SaveLabelProgress(ctx context.Context, id, optionID, orderID, stage string) error
	// Finalize pasa QUOTED -> FINALIZED guardando la URL. false si la cotización ya no está QUOTED o no existe.
	Finalize(ctx context.Context, id, labelURL string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	ListStale(ctx context.Context, status entity.QuoteStatus, olderThan time.Time) ([]string, error)
}
