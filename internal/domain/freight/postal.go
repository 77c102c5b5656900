package freight

import "strings"

// PostalCodeLength longitud de un CEP brasileño normalizado.
const PostalCodeLength = 8

// NormalizePostalCode deja solo los dígitos del CEP ("01310-100" -> "01310100").
func NormalizePostalCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPostalCode indica si el CEP normalizado tiene la longitud esperada.
func ValidPostalCode(raw string) bool {
	return len(NormalizePostalCode(raw)) == PostalCodeLength
}
