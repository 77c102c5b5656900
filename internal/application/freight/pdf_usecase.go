package freight

import (
	"context"
	"fmt"

	"github.com/jhoicas/Cotizador-api/internal/domain"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
)

// PDFUseCase genera la hoja de cotización en PDF.
type PDFUseCase struct {
	queries     *QuoteQueries
	companyRepo repository.CompanyRepository
	productRepo repository.ProductRepository
	generator   QuotePDFGenerator
}

// NewPDFUseCase construye el caso de uso inyectando sus dependencias.
func NewPDFUseCase(queries *QuoteQueries, companyRepo repository.CompanyRepository, productRepo repository.ProductRepository, generator QuotePDFGenerator) *PDFUseCase {
	return &PDFUseCase{queries: queries, companyRepo: companyRepo, productRepo: productRepo, generator: generator}
}

// DownloadQuotePDF devuelve los bytes del PDF y el nombre de archivo sugerido.
func (uc *PDFUseCase) DownloadQuotePDF(ctx context.Context, quoteID string) ([]byte, string, error) {
	view, err := uc.queries.Get(ctx, quoteID)
	if err != nil {
		return nil, "", err
	}
	company, err := uc.companyRepo.GetByID(ctx, view.Quote.OriginCompanyID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener empresa: %w", err)
	}
	if company == nil {
		return nil, "", fmt.Errorf("%w: empresa %s", domain.ErrNotFound, view.Quote.OriginCompanyID)
	}

	ids := make([]string, 0, len(view.Items))
	for _, it := range view.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := uc.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener productos: %w", err)
	}
	sheet := QuoteSheet{Quote: view.Quote, Company: company, Options: view.Options}
	for _, it := range view.Items {
		line := SheetLine{ProductID: it.ProductID, Name: it.ProductID, Quantity: it.Quantity}
		if p, ok := products[it.ProductID]; ok {
			line.Code, line.Name, line.Weight = p.Code, p.Name, p.Weight
		}
		sheet.Lines = append(sheet.Lines, line)
	}

	pdf, err := uc.generator.GenerateQuotePDF(ctx, sheet)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generar: %w", err)
	}
	return pdf, fmt.Sprintf("cotizacao-%s.pdf", view.Quote.ID), nil
}
