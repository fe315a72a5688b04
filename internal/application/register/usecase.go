package register

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// Publisher canal push.
type Publisher interface {
	Broadcast(evt broadcast.Event)
}

// RateReader tasa vigente que se sella al abrir la caja.
type RateReader interface {
	Current() entity.ExchangeRate
}

// LockReleaser libera el bloqueo de cierre si lo tiene quien cerró la caja.
type LockReleaser interface {
	ReleaseIfOwner(userID, reason string) bool
}

// SessionUseCase ciclo de vida de la caja global: apertura, cierre y transiciones forzadas.
// Las transiciones se hacen con update condicional sobre el estado esperado; si otro escritor
// ganó, el perdedor ve ErrInvalidState (o nada, en las transiciones forzadas).
type SessionUseCase struct {
	repo  repository.RegisterSessionRepository
	rates RateReader
	locks LockReleaser
	pub   Publisher
	log   *logger.Logger
	now   func() time.Time
}

// NewSessionUseCase construye el caso de uso. rates, locks y pub pueden ser nil.
func NewSessionUseCase(
	repo repository.RegisterSessionRepository,
	rates RateReader,
	locks LockReleaser,
	pub Publisher,
	log *logger.Logger,
) *SessionUseCase {
	return &SessionUseCase{
		repo:  repo,
		rates: rates,
		locks: locks,
		pub:   pub,
		log:   log.Component("register"),
		now:   time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (uc *SessionUseCase) SetClock(now func() time.Time) { uc.now = now }

// Open abre la caja global. ErrAlreadyOpen si hay una ABIERTA o PENDIENTE_CIERRE_FISICO.
func (uc *SessionUseCase) Open(ctx context.Context, op entity.Operator, in dto.OpenRegisterRequest) (*dto.RegisterSessionResponse, error) {
	if op.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	amounts := in.OpeningAmounts.ToEntity()
	if amounts.HasNegative() {
		return nil, domain.ErrInvalidInput
	}
	active, err := uc.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrAlreadyOpen
	}

	rate := decimal.Zero
	if uc.rates != nil {
		cur := uc.rates.Current()
		rate = cur.Value
		if cur.Mode == entity.RateModeError {
			uc.log.Warn().Msg("caja abierta sin tasa de referencia disponible")
		}
	}

	now := uc.now()
	s := &entity.RegisterSession{
		ID:             uuid.New().String(),
		State:          entity.RegisterAbierta,
		OpenedBy:       op.UserID,
		OpenedByName:   op.Name,
		OpenedAt:       now,
		OpeningAmounts: amounts,
		ExchangeRate:   rate,
		OpeningNotes:   strings.TrimSpace(in.Notes),
		UpdatedAt:      now,
	}
	// Create vuelve a validar la unicidad: dos aperturas simultáneas no pasan ambas.
	if err := uc.repo.Create(ctx, s); err != nil {
		return nil, err
	}

	uc.log.Info().Str("session_id", s.ID).Str("user", op.UserID).Str("rate", rate.String()).Msg("caja abierta")
	resp := toSessionResponse(s)
	uc.publish(broadcast.EventCajaAbierta, resp)
	return &resp, nil
}

// Current caja activa (ABIERTA o PENDIENTE_CIERRE_FISICO) o nil.
func (uc *SessionUseCase) Current(ctx context.Context) (*dto.RegisterSessionResponse, error) {
	s, err := uc.repo.FindActive(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	resp := toSessionResponse(s)
	return &resp, nil
}

// ListPending cajas que esperan conteo físico.
func (uc *SessionUseCase) ListPending(ctx context.Context) ([]dto.RegisterSessionResponse, error) {
	list, err := uc.repo.ListByState(ctx, entity.RegisterPendienteCierreFisico)
	if err != nil {
		return nil, err
	}
	out := make([]dto.RegisterSessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionResponse(s))
	}
	return out, nil
}

// EnsureAcceptsPostings devuelve la caja ABIERTA. ErrNoOpenRegister si no hay caja,
// ErrInvalidState si está pendiente de cierre físico.
func (uc *SessionUseCase) EnsureAcceptsPostings(ctx context.Context) (*entity.RegisterSession, error) {
	s, err := uc.repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNoOpenRegister
	}
	if !s.AcceptsPostings() {
		return nil, fmt.Errorf("%w: caja pendiente de cierre físico", domain.ErrInvalidState)
	}
	return s, nil
}

// ReasonFunc arma el motivo de cierre automático para cada sesión afectada.
type ReasonFunc func(s *entity.RegisterSession, now time.Time) string

// FixedReason mismo motivo para todas las sesiones.
func FixedReason(tag string) ReasonFunc {
	return func(*entity.RegisterSession, time.Time) string { return tag }
}

// DaysElapsedReason motivo "<prefix>: N días" contando días de calendario en loc.
func DaysElapsedReason(prefix string, loc *time.Location) ReasonFunc {
	return func(s *entity.RegisterSession, now time.Time) string {
		days := DaysBetween(s.OpenedAt, now, loc)
		unit := "días"
		if days == 1 {
			unit = "día"
		}
		return fmt.Sprintf("%s: %d %s", prefix, days, unit)
	}
}

// DaysBetween días de calendario entre from y to en loc.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	a := StartOfDay(from, loc)
	b := StartOfDay(to, loc)
	return int(b.Sub(a).Hours()/24 + 0.5)
}

// StartOfDay medianoche local del día de t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ForceTransitionStale pasa a PENDIENTE_CIERRE_FISICO cada caja ABIERTA abierta antes de cutoff.
// Idempotente: una caja ya transicionada no se vuelve a tocar y no se informa.
// Devuelve solo las sesiones que esta llamada transicionó.
func (uc *SessionUseCase) ForceTransitionStale(ctx context.Context, cutoff time.Time, reason ReasonFunc) ([]*entity.RegisterSession, error) {
	candidates, err := uc.repo.ListOpenedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if reason == nil {
		reason = FixedReason("AUTO_CIERRE")
	}

	now := uc.now()
	var (
		affected []*entity.RegisterSession
		errs     []error
	)
	for _, cur := range candidates {
		if cur.State != entity.RegisterAbierta || !cur.OpenedAt.Before(cutoff) {
			continue
		}
		next := cur.Clone()
		tag := reason(cur, now)
		responsible := cur.OpenedBy
		at := now
		next.State = entity.RegisterPendienteCierreFisico
		next.AutoCloseAt = &at
		next.RequiresPhysicalCount = true
		next.ResponsibleUser = &responsible
		next.AutoCloseReason = &tag
		next.UpdatedAt = now

		ok, err := uc.repo.UpdateIfState(ctx, next, entity.RegisterAbierta)
		if err != nil {
			errs = append(errs, fmt.Errorf("sesión %s: %w", cur.ID, err))
			continue
		}
		if !ok {
			// Otro escritor (cierre manual u otra corrida) llegó primero.
			uc.log.Debug().Str("session_id", cur.ID).Msg("sesión ya no estaba ABIERTA, se omite")
			continue
		}
		uc.log.Warn().
			Str("session_id", next.ID).
			Str("responsible", responsible).
			Str("reason", tag).
			Msg("caja pasada a pendiente de cierre físico")
		affected = append(affected, next)
	}

	if len(affected) > 0 {
		evt := dto.AutoCloseEvent{Count: len(affected), Sessions: make([]dto.RegisterSessionResponse, 0, len(affected))}
		for _, s := range affected {
			evt.Sessions = append(evt.Sessions, toSessionResponse(s))
		}
		evt.Reason = *affected[0].AutoCloseReason
		uc.publish(broadcast.EventAutoCierre, evt)
	}
	return affected, errors.Join(errs...)
}

// Close registra el conteo físico y cierra la sesión. Válido desde ABIERTA o PENDIENTE_CIERRE_FISICO;
// una pendiente solo la cierra su responsable o un admin. Tras cerrar libera el bloqueo del que cerró.
func (uc *SessionUseCase) Close(ctx context.Context, id string, op entity.Operator, in dto.CloseRegisterRequest) (*dto.RegisterSessionResponse, error) {
	if op.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	counted := in.CountedAmounts.ToEntity()
	if counted.HasNegative() {
		return nil, domain.ErrInvalidInput
	}
	cur, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrNotFound
	}
	if !cur.IsActive() {
		return nil, fmt.Errorf("%w: la caja ya está %s", domain.ErrInvalidState, cur.State)
	}
	wasPending := cur.State == entity.RegisterPendienteCierreFisico
	if wasPending && !op.IsAdmin() && (cur.ResponsibleUser == nil || *cur.ResponsibleUser != op.UserID) {
		return nil, domain.ErrForbidden
	}

	now := uc.now()
	closer := op.UserID
	next := cur.Clone()
	next.State = entity.RegisterCerrada
	next.ClosedBy = &closer
	next.ClosedAt = &now
	next.CountedAmounts = &counted
	next.ClosingNotes = strings.TrimSpace(in.Notes)
	next.UpdatedAt = now

	ok, err := uc.repo.UpdateIfState(ctx, next, cur.State)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: la caja cambió de estado durante el cierre", domain.ErrInvalidState)
	}

	if uc.locks != nil {
		uc.locks.ReleaseIfOwner(op.UserID, "Cierre de caja completado")
	}

	uc.log.Info().
		Str("session_id", next.ID).
		Str("closed_by", closer).
		Bool("was_pending", wasPending).
		Msg("caja cerrada")

	resp := toSessionResponse(next)
	name := broadcast.EventCajaCerrada
	if wasPending {
		name = broadcast.EventPendienteResuel
	}
	uc.publish(name, dto.RegisterClosedEvent{Session: resp, ClosedBy: op.DisplayName(), WasPending: wasPending})
	return &resp, nil
}

func (uc *SessionUseCase) publish(name string, payload any) {
	if uc.pub == nil {
		return
	}
	uc.pub.Broadcast(broadcast.Event{Name: name, Payload: payload, Timestamp: uc.now()})
}

func toAmountsDTO(a entity.Amounts) dto.AmountsDTO {
	return dto.AmountsDTO{Bs: a.Bs, Usd: a.Usd, PagoMovil: a.PagoMovil}
}

func toSessionResponse(s *entity.RegisterSession) dto.RegisterSessionResponse {
	r := dto.RegisterSessionResponse{
		ID:                    s.ID,
		State:                 string(s.State),
		OpenedBy:              s.OpenedBy,
		OpenedByName:          s.OpenedByName,
		OpenedAt:              s.OpenedAt,
		OpeningAmounts:        toAmountsDTO(s.OpeningAmounts),
		ExchangeRate:          s.ExchangeRate,
		OpeningNotes:          s.OpeningNotes,
		AutoCloseAt:           s.AutoCloseAt,
		RequiresPhysicalCount: s.RequiresPhysicalCount,
		ResponsibleUser:       s.ResponsibleUser,
		AutoCloseReason:       s.AutoCloseReason,
		ClosedBy:              s.ClosedBy,
		ClosedAt:              s.ClosedAt,
		ClosingNotes:          s.ClosingNotes,
	}
	if s.CountedAmounts != nil {
		c := toAmountsDTO(*s.CountedAmounts)
		r.CountedAmounts = &c
	}
	return r
}

// ToSessionResponse expone el mapeo para otros paquetes (jobs, handlers).
func ToSessionResponse(s *entity.RegisterSession) dto.RegisterSessionResponse {
	return toSessionResponse(s)
}
