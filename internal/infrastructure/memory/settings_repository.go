package memory

import (
	"context"
	"encoding/json"

	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)
var _ repository.HealthRepository = (*HealthRepo)(nil)

// SettingsRepo ajustes clave-valor en memoria.
type SettingsRepo struct {
	b binding
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.b.with(ctx, func(st *state) error {
		if v, ok := st.settings[key]; ok {
			out = append(json.RawMessage(nil), v...)
		}
		return nil
	})
	return out, err
}

func (r *SettingsRepo) Put(ctx context.Context, key string, value json.RawMessage) error {
	return r.b.with(ctx, func(st *state) error {
		st.settings[key] = append(json.RawMessage(nil), value...)
		return nil
	})
}
