package dto

import "github.com/shopspring/decimal"

// SetRateRequest body para PUT /api/rate (solo admin).
type SetRateRequest struct {
	Value decimal.Decimal `json:"value"`
}

// RateChangedEvent payload de tasa_auto_updated / tasa_manual_updated.
type RateChangedEvent struct {
	Previous decimal.Decimal `json:"previous"`
	Value    decimal.Decimal `json:"value"`
	Mode     string          `json:"mode"`
	Source   string          `json:"source,omitempty"`
	By       string          `json:"by,omitempty"`
}
