package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterState estados de una sesión de caja.
type RegisterState string

const (
	RegisterAbierta               RegisterState = "ABIERTA"
	RegisterPendienteCierreFisico RegisterState = "PENDIENTE_CIERRE_FISICO"
	RegisterCerrada               RegisterState = "CERRADA"
)

// RegisterSession una caja: el periodo contable de un turno/día entre apertura y cierre.
// Nunca se borra; las transiciones quedan en la misma fila como traza.
type RegisterSession struct {
	ID                    string
	State                 RegisterState
	OpenedBy              string
	OpenedByName          string
	OpenedAt              time.Time
	OpeningAmounts        Amounts
	ExchangeRate          decimal.Decimal
	OpeningNotes          string
	AutoCloseAt           *time.Time
	RequiresPhysicalCount bool
	ResponsibleUser       *string
	AutoCloseReason       *string
	ClosedBy              *string
	ClosedAt              *time.Time
	CountedAmounts        *Amounts
	ClosingNotes          string
	UpdatedAt             time.Time
}

// AcceptsPostings solo una caja ABIERTA admite ventas y movimientos nuevos.
func (s *RegisterSession) AcceptsPostings() bool {
	return s.State == RegisterAbierta
}

// IsActive abierta o pendiente de cierre físico (ocupa la caja global).
func (s *RegisterSession) IsActive() bool {
	return s.State == RegisterAbierta || s.State == RegisterPendienteCierreFisico
}

// Clone copia profunda para mutar sin tocar el original.
func (s *RegisterSession) Clone() *RegisterSession {
	c := *s
	if s.AutoCloseAt != nil {
		t := *s.AutoCloseAt
		c.AutoCloseAt = &t
	}
	if s.ResponsibleUser != nil {
		u := *s.ResponsibleUser
		c.ResponsibleUser = &u
	}
	if s.AutoCloseReason != nil {
		r := *s.AutoCloseReason
		c.AutoCloseReason = &r
	}
	if s.ClosedBy != nil {
		u := *s.ClosedBy
		c.ClosedBy = &u
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	if s.CountedAmounts != nil {
		a := *s.CountedAmounts
		c.CountedAmounts = &a
	}
	return &c
}
