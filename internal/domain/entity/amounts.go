package entity

import "github.com/shopspring/decimal"

// Amounts montos por medio de pago usados en conteos, aperturas y diferencias de cierre.
type Amounts struct {
	Bs        decimal.Decimal `json:"bs"`
	Usd       decimal.Decimal `json:"usd"`
	PagoMovil decimal.Decimal `json:"pagoMovil"`
}

// IsZero true si los tres montos son cero.
func (a Amounts) IsZero() bool {
	return a.Bs.IsZero() && a.Usd.IsZero() && a.PagoMovil.IsZero()
}

// HasNegative true si algún monto es negativo.
func (a Amounts) HasNegative() bool {
	return a.Bs.IsNegative() || a.Usd.IsNegative() || a.PagoMovil.IsNegative()
}
