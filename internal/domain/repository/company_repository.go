package repository

import (
	"context"

	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
)

// CompanyRepository puerto de solo lectura de empresas de origen.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}
