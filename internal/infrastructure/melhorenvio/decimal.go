package melhorenvio

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// parseDecimal el agregador devuelve precios como string ("23.45") o número según el servicio.
func parseDecimal(n json.Number) (decimal.Decimal, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
