package freight

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BasketLine producto y cantidad solicitados en una cotización.
type BasketLine struct {
	ProductID string
	Quantity  int64
}

// MergeBasket suma las cantidades de productos repetidos y ordena por product id ascendente.
// El orden es el mismo en que se adquieren los bloqueos por producto.
func MergeBasket(lines []BasketLine) []BasketLine {
	byID := make(map[string]int64, len(lines))
	for _, l := range lines {
		byID[l.ProductID] += l.Quantity
	}
	out := make([]BasketLine, 0, len(byID))
	for id, qty := range byID {
		out = append(out, BasketLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// InsuranceValue valor asegurado total: suma de valor unitario declarado por cantidad.
func InsuranceValue(unitValues []decimal.Decimal, quantities []int64) decimal.Decimal {
	total := decimal.Zero
	for i := range unitValues {
		if i >= len(quantities) {
			break
		}
		total = total.Add(unitValues[i].Mul(decimal.NewFromInt(quantities[i])))
	}
	return total
}
