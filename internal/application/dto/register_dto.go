package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

// AmountsDTO montos por medio de pago.
type AmountsDTO struct {
	Bs        decimal.Decimal `json:"bs"`
	Usd       decimal.Decimal `json:"usd"`
	PagoMovil decimal.Decimal `json:"pago_movil"`
}

// ToEntity convierte al valor de dominio.
func (a AmountsDTO) ToEntity() entity.Amounts {
	return entity.Amounts{Bs: a.Bs, Usd: a.Usd, PagoMovil: a.PagoMovil}
}

// OpenRegisterRequest body para POST /api/registers.
type OpenRegisterRequest struct {
	OpeningAmounts AmountsDTO `json:"opening_amounts"`
	Notes          string     `json:"notes"`
}

// CloseRegisterRequest body para POST /api/registers/:id/close (conteo físico).
type CloseRegisterRequest struct {
	CountedAmounts AmountsDTO `json:"counted_amounts"`
	Notes          string     `json:"notes"`
}

// RegisterSessionResponse sesión de caja.
type RegisterSessionResponse struct {
	ID                    string          `json:"id"`
	State                 string          `json:"state"`
	OpenedBy              string          `json:"opened_by"`
	OpenedByName          string          `json:"opened_by_name,omitempty"`
	OpenedAt              time.Time       `json:"opened_at"`
	OpeningAmounts        AmountsDTO      `json:"opening_amounts"`
	ExchangeRate          decimal.Decimal `json:"exchange_rate"`
	OpeningNotes          string          `json:"opening_notes,omitempty"`
	AutoCloseAt           *time.Time      `json:"auto_close_at"`
	RequiresPhysicalCount bool            `json:"requires_physical_count"`
	ResponsibleUser       *string         `json:"responsible_user"`
	AutoCloseReason       *string         `json:"auto_close_reason"`
	ClosedBy              *string         `json:"closed_by,omitempty"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
	CountedAmounts        *AmountsDTO     `json:"counted_amounts,omitempty"`
	ClosingNotes          string          `json:"closing_notes,omitempty"`
}

// AutoCloseEvent payload de auto_cierre_ejecutado.
type AutoCloseEvent struct {
	Reason   string                    `json:"reason"`
	Count    int                       `json:"count"`
	Sessions []RegisterSessionResponse `json:"sessions"`
}

// RegisterClosedEvent payload de caja_cerrada / caja_pendiente_resuelta.
type RegisterClosedEvent struct {
	Session    RegisterSessionResponse `json:"session"`
	ClosedBy   string                  `json:"closed_by"`
	WasPending bool                    `json:"was_pending"`
}
