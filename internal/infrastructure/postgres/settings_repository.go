package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var (
	_ repository.SettingsRepository = (*SettingsRepo)(nil)
	_ repository.HealthRepository   = (*HealthRepo)(nil)
)

// SettingsRepo ajustes clave-valor (jsonb) en app_settings.
type SettingsRepo struct {
	q Querier
}

// NewSettingsRepository construye el adaptador.
func NewSettingsRepository(q Querier) *SettingsRepo {
	return &SettingsRepo{q: q}
}

// Get nil si la clave no existe.
func (r *SettingsRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := r.q.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("get setting", err)
	}
	return json.RawMessage(raw), nil
}

// Put inserta o reemplaza el valor.
func (r *SettingsRepo) Put(ctx context.Context, key string, value json.RawMessage) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, string(value))
	return storeError("put setting", err)
}

// HealthRepo consulta trivial para el chequeo de vida.
type HealthRepo struct {
	q Querier
}

// NewHealthRepository construye el adaptador.
func NewHealthRepository(q Querier) *HealthRepo {
	return &HealthRepo{q: q}
}

// Ping SELECT 1.
func (r *HealthRepo) Ping(ctx context.Context) error {
	var one int
	return storeError("ping", r.q.QueryRow(ctx, `SELECT 1`).Scan(&one))
}
