package postgres

import (
	"context"
	"fmt"
)

// schemaStatements DDL idempotente. La caja global admite una sola sesión activa: lo impone el
// índice único parcial sobre una expresión constante.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS register_sessions (
		id                      TEXT PRIMARY KEY,
		state                   TEXT NOT NULL,
		opened_by               TEXT NOT NULL,
		opened_by_name          TEXT NOT NULL DEFAULT '',
		opened_at               TIMESTAMPTZ NOT NULL,
		opening_bs              NUMERIC(18,2) NOT NULL DEFAULT 0,
		opening_usd             NUMERIC(18,2) NOT NULL DEFAULT 0,
		opening_pago_movil      NUMERIC(18,2) NOT NULL DEFAULT 0,
		exchange_rate           NUMERIC(18,4) NOT NULL DEFAULT 0,
		opening_notes           TEXT NOT NULL DEFAULT '',
		auto_close_at           TIMESTAMPTZ,
		requires_physical_count BOOLEAN NOT NULL DEFAULT false,
		responsible_user        TEXT,
		auto_close_reason       TEXT,
		closed_by               TEXT,
		closed_at               TIMESTAMPTZ,
		counted_bs              NUMERIC(18,2),
		counted_usd             NUMERIC(18,2),
		counted_pago_movil      NUMERIC(18,2),
		closing_notes           TEXT NOT NULL DEFAULT '',
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_register_sessions_active
		ON register_sessions ((true)) WHERE state IN ('ABIERTA', 'PENDIENTE_CIERRE_FISICO')`,
	`CREATE INDEX IF NOT EXISTS idx_register_sessions_state_opened ON register_sessions (state, opened_at)`,
	`CREATE TABLE IF NOT EXISTS stock (
		product_id TEXT PRIMARY KEY,
		quantity   NUMERIC(18,4) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		id             TEXT PRIMARY KEY,
		product_id     TEXT NOT NULL,
		quantity       NUMERIC(18,4) NOT NULL,
		reserved_at    TIMESTAMPTZ NOT NULL,
		transaction_id TEXT,
		reserved_by    TEXT NOT NULL DEFAULT '',
		session_tag    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_open
		ON stock_reservations (reserved_at) WHERE transaction_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		id             TEXT PRIMARY KEY,
		transaction_id TEXT,
		reservation_id TEXT,
		product_id     TEXT NOT NULL,
		type           TEXT NOT NULL,
		quantity       NUMERIC(18,4) NOT NULL,
		stock_before   NUMERIC(18,4) NOT NULL,
		stock_after    NUMERIC(18,4) NOT NULL,
		reason         TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		created_by     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_movements_product ON inventory_movements (product_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema crea tablas e índices si no existen.
func EnsureSchema(ctx context.Context, q Querier) error {
	for i, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return storeError(fmt.Sprintf("schema statement %d", i), err)
		}
	}
	return nil
}
