package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// SettingsKeyManualRate clave de app_settings donde persiste la tasa manual.
const SettingsKeyManualRate = "tasa_manual"

const systemUser = "sistema"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RateSource fuente externa de la tasa (Bs por USD).
type RateSource interface {
	Name() string
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// Publisher canal push.
type Publisher interface {
	Broadcast(evt broadcast.Event)
}

// Options ajustes de la referencia.
type Options struct {
	Epsilon decimal.Decimal // cambio mínimo absoluto que amerita notificar
	Timeout time.Duration   // tope de cada consulta a la fuente
}

// RefreshResult resultado de una actualización automática.
type RefreshResult struct {
	Source    string          `json:"source"`
	Fetched   decimal.Decimal `json:"fetched"`
	Previous  decimal.Decimal `json:"previous"`
	Value     decimal.Decimal `json:"value"`
	Mode      entity.RateMode `json:"mode"`
	Changed   bool            `json:"changed"`
	Degraded  bool            `json:"degraded"`
	LastError string          `json:"last_error,omitempty"`
}

type manualRecord struct {
	Value     decimal.Decimal `json:"value"`
	UpdatedBy string          `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Reference referencia de precios compartida en memoria. Una falla de la fuente deja el valor
// anterior y marca la referencia como degradada; la tasa MANUAL nunca se pisa automáticamente.
type Reference struct {
	source   RateSource
	settings repository.SettingsRepository
	pub      Publisher
	log      *logger.Logger
	opts     Options
	now      func() time.Time

	mu   sync.RWMutex
	rate entity.ExchangeRate
}

// NewReference construye la referencia en modo ERROR (sin valor) hasta la primera consulta.
func NewReference(source RateSource, settings repository.SettingsRepository, pub Publisher, log *logger.Logger, opts Options) *Reference {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Epsilon.IsZero() {
		opts.Epsilon = decimal.RequireFromString("0.01")
	}
	return &Reference{
		source:   source,
		settings: settings,
		pub:      pub,
		log:      log.Component("pricing"),
		opts:     opts,
		now:      time.Now,
		rate:     entity.ExchangeRate{Value: decimal.Zero, Mode: entity.RateModeError},
	}
}

// SetClock reemplaza el reloj (tests).
func (r *Reference) SetClock(now func() time.Time) { r.now = now }

// Current copia de la referencia vigente.
func (r *Reference) Current() entity.ExchangeRate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rate
}

// Load restaura una tasa manual persistida (si la hay).
func (r *Reference) Load(ctx context.Context) error {
	if r.settings == nil {
		return nil
	}
	raw, err := r.settings.Get(ctx, SettingsKeyManualRate)
	if err != nil {
		return fmt.Errorf("leer tasa manual: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var rec manualRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decodificar tasa manual: %w", err)
	}
	r.mu.Lock()
	r.rate = entity.ExchangeRate{Value: rec.Value, Mode: entity.RateModeManual, UpdatedBy: rec.UpdatedBy, UpdatedAt: rec.UpdatedAt}
	r.mu.Unlock()
	r.log.Info().Str("value", rec.Value.String()).Msg("tasa manual restaurada")
	return nil
}

// Refresh consulta la fuente con tiempo acotado. Un timeout se trata igual que cualquier falla.
func (r *Reference) Refresh(ctx context.Context) (*RefreshResult, error) {
	fctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	fetched, err := r.source.Fetch(fctx)
	if err == nil && !fetched.GreaterThan(decimal.Zero) {
		err = fmt.Errorf("valor no positivo: %s", fetched)
	}

	r.mu.Lock()
	prev := r.rate
	res := &RefreshResult{Source: r.source.Name(), Fetched: fetched, Previous: prev.Value}
	if err != nil {
		r.rate.Degraded = true
		r.rate.LastError = err.Error()
		res.Value, res.Mode, res.Degraded, res.LastError = prev.Value, prev.Mode, true, err.Error()
		r.mu.Unlock()
		r.log.Warn().Err(err).Str("source", res.Source).Msg("no se pudo actualizar la tasa, se mantiene la anterior")
		if !errors.Is(err, domain.ErrExternalSource) {
			err = fmt.Errorf("%w: %v", domain.ErrExternalSource, err)
		}
		return res, err
	}

	if prev.Mode == entity.RateModeManual {
		// La fuente respondió, pero manda el valor manual.
		r.rate.Degraded = false
		r.rate.LastError = ""
		res.Value, res.Mode = prev.Value, prev.Mode
		r.mu.Unlock()
		return res, nil
	}

	changed := prev.Mode == entity.RateModeError || fetched.Sub(prev.Value).Abs().GreaterThan(r.opts.Epsilon)
	r.rate = entity.ExchangeRate{
		Value:     fetched,
		Mode:      entity.RateModeAuto,
		UpdatedBy: systemUser,
		UpdatedAt: r.now(),
	}
	res.Value, res.Mode, res.Changed = fetched, entity.RateModeAuto, changed
	r.mu.Unlock()

	if changed {
		r.log.Info().Str("previous", prev.Value.String()).Str("value", fetched.String()).Msg("tasa actualizada")
		r.publish(broadcast.EventTasaAuto, dto.RateChangedEvent{
			Previous: prev.Value, Value: fetched, Mode: string(entity.RateModeAuto), Source: res.Source,
		})
	}
	return res, nil
}

// SetManual fija la tasa a mano (admin). Persiste para sobrevivir reinicios.
func (r *Reference) SetManual(ctx context.Context, value decimal.Decimal, op entity.Operator) (entity.ExchangeRate, error) {
	if !op.IsAdmin() {
		return entity.ExchangeRate{}, domain.ErrForbidden
	}
	if !value.GreaterThan(decimal.Zero) {
		return entity.ExchangeRate{}, domain.ErrInvalidInput
	}
	now := r.now()
	if r.settings != nil {
		raw, err := json.Marshal(manualRecord{Value: value, UpdatedBy: op.UserID, UpdatedAt: now})
		if err != nil {
			return entity.ExchangeRate{}, err
		}
		if err := r.settings.Put(ctx, SettingsKeyManualRate, raw); err != nil {
			return entity.ExchangeRate{}, fmt.Errorf("guardar tasa manual: %w", err)
		}
	}

	r.mu.Lock()
	prev := r.rate
	r.rate = entity.ExchangeRate{Value: value, Mode: entity.RateModeManual, UpdatedBy: op.UserID, UpdatedAt: now}
	cur := r.rate
	r.mu.Unlock()

	r.log.Info().Str("value", value.String()).Str("by", op.UserID).Msg("tasa manual fijada")
	r.publish(broadcast.EventTasaManual, dto.RateChangedEvent{
		Previous: prev.Value, Value: value, Mode: string(entity.RateModeManual), By: op.DisplayName(),
	})
	return cur, nil
}

// ResumeAuto vuelve a modo automático y consulta la fuente de inmediato.
func (r *Reference) ResumeAuto(ctx context.Context, op entity.Operator) (*RefreshResult, error) {
	if !op.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if r.settings != nil {
		if err := r.settings.Put(ctx, SettingsKeyManualRate, []byte("null")); err != nil {
			return nil, fmt.Errorf("borrar tasa manual: %w", err)
		}
	}
	r.mu.Lock()
	if r.rate.Mode == entity.RateModeManual {
		r.rate.Mode = entity.RateModeAuto
	}
	r.mu.Unlock()
	return r.Refresh(ctx)
}

func (r *Reference) publish(name string, payload any) {
	if r.pub == nil {
		return
	}
	r.pub.Broadcast(broadcast.Event{Name: name, Payload: payload, Timestamp: r.now()})
}
