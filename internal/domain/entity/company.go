package entity

import "time"

// Company empresa de origen de los envíos (colaborador externo, solo lectura).
// Los campos de dirección alimentan el remitente por defecto de la etiqueta.
type Company struct {
	ID         string
	TradeName  string // nombre fantasía
	LegalName  string // razón social
	TaxID      string // CNPJ
	Email      string
	Phone      string
	PostalCode string
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string // UF
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
