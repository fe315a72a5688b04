package repository

import (
	"context"
	"encoding/json"
)

// SettingsRepository fila clave-valor con blobs JSON para ajustes fuera del núcleo.
type SettingsRepository interface {
	// Get devuelve nil si la clave no existe.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
}
