// Package pdf genera la hoja de cotización de flete con Maroto v2.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Empresa + CNPJ      │  N° Cotización + Fecha        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RUTA: CEP origen → CEP destino / Destinatario / Estado      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  ÍTEMS: Cant | Código | Producto | Peso                      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  OPCIONES: Transportadora | Servicio | Plazo | Precio        │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	appfreight "github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/domain/entity"
	"github.com/jhoicas/Cotizador-api/internal/domain/freight"
)

var _ appfreight.QuotePDFGenerator = (*MarotoPDFGenerator)(nil)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// los montos se muestran en reales con separadores pt-BR
var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa freight.QuotePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateQuotePDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateQuotePDF(_ context.Context, sheet appfreight.QuoteSheet) ([]byte, error) {
	if sheet.Quote == nil || sheet.Company == nil {
		return nil, fmt.Errorf("pdf: cotización y empresa son requeridas")
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Cotização de frete", true).
		WithAuthor(nonEmpty(sheet.Company.TradeName, sheet.Company.LegalName), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(sheet.Quote, sheet.Company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(routeRow(sheet.Quote, sheet.Company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(sectionTitle("ITENS"))
	m.AddRows(itemsHeaderRow())
	for _, r := range itemRows(sheet.Lines) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(sectionTitle("OPÇÕES DE ENVIO"))
	if len(sheet.Options) == 0 {
		m.AddRows(row.New(8).Add(col.New(12).Add(
			text.New(emptyOptionsText(sheet.Quote), props.Text{Size: 8, Color: colorGray, Top: 2}),
		)))
	} else {
		m.AddRows(optionsHeaderRow())
		for _, r := range optionRows(sheet.Options, sheet.Quote.LabelOptionID) {
			m.AddRows(r)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(quote *entity.Quote, company *entity.Company) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(nonEmpty(company.LegalName, company.TradeName), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+nonEmpty(company.TaxID, "-"), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("COTAÇÃO DE FRETE", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(shortID(quote.ID), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Data: "+quote.CreatedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func routeRow(quote *entity.Quote, company *entity.Company) core.Row {
	return row.New(16).Add(
		col.New(8).Add(
			text.New("ROTA", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(fmt.Sprintf("CEP %s  →  CEP %s",
				formatCEP(freight.NormalizePostalCode(company.PostalCode)),
				formatCEP(quote.DestinationPostalCode),
			), props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New("Destinatário: "+nonEmpty(quote.RecipientName, "-"), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
		col.New(4).Add(
			text.New("Status: "+string(quote.Status), props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right, Top: 6,
			}),
		),
	)
}

func sectionTitle(s string) core.Row {
	return row.New(7).Add(col.New(12).Add(
		text.New(s, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2}),
	))
}

func itemsHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Align: a, Top: 1}))
	}
	return row.New(6).Add(
		h("Qtd.", 1, align.Center),
		h("Código", 3, align.Left),
		h("Produto", 6, align.Left),
		h("Peso (kg)", 2, align.Right),
	)
}

func itemRows(lines []appfreight.SheetLine) []core.Row {
	out := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		out = append(out, row.New(6).Add(
			col.New(1).Add(text.New(fmt.Sprintf("%d", l.Quantity), props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(3).Add(text.New(nonEmpty(l.Code, "-"), props.Text{Size: 8, Top: 1})),
			col.New(6).Add(text.New(l.Name, props.Text{Size: 8, Top: 1})),
			col.New(2).Add(text.New(l.Weight.StringFixed(3), props.Text{Size: 8, Align: align.Right, Top: 1})),
		))
	}
	return out
}

func optionsHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Align: a, Top: 1}))
	}
	return row.New(6).Add(
		h("Transportadora", 4, align.Left),
		h("Serviço", 4, align.Left),
		h("Prazo", 2, align.Center),
		h("Preço", 2, align.Right),
	)
}

// optionRows una fila por opción; la elegida para la etiqueta va en negrita.
func optionRows(options []entity.CarrierOption, chosenID string) []core.Row {
	out := make([]core.Row, 0, len(options))
	for _, o := range options {
		style := fontstyle.Normal
		if o.ID == chosenID {
			style = fontstyle.Bold
		}
		p := props.Text{Size: 8, Top: 1, Style: style}
		out = append(out, row.New(6).Add(
			col.New(4).Add(text.New(o.CarrierName, p)),
			col.New(4).Add(text.New(o.ServiceName, p)),
			col.New(2).Add(text.New(fmt.Sprintf("%d dias", o.LeadTimeDays), props.Text{Size: 8, Top: 1, Style: style, Align: align.Center})),
			col.New(2).Add(text.New(FormatBRL(o.Price), props.Text{Size: 8, Top: 1, Style: style, Align: align.Right})),
		))
	}
	return out
}

// ── helpers ───────────────────────────────────────────────────────────────────

// FormatBRL formatea un monto en reales: "R$ 1.234,50".
func FormatBRL(d decimal.Decimal) string {
	return brPrinter.Sprintf("R$ %.2f", d.Round(2).InexactFloat64())
}

func formatCEP(digits string) string {
	if len(digits) != freight.PostalCodeLength {
		return digits
	}
	return digits[:5] + "-" + digits[5:]
}

func emptyOptionsText(q *entity.Quote) string {
	if q.FailureReason != "" {
		return "Sem opções disponíveis: " + q.FailureReason
	}
	return "Sem opções disponíveis."
}

func shortID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
