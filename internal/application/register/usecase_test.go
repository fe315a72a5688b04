package register_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/memory"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de prueba
// ──────────────────────────────────────────────────────────────────────────────

type capturePublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *capturePublisher) Broadcast(evt broadcast.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

type fixedRate struct{ v decimal.Decimal }

func (f fixedRate) Current() entity.ExchangeRate {
	return entity.ExchangeRate{Value: f.v, Mode: entity.RateModeAuto}
}

type fakeLocks struct {
	released []string
}

func (f *fakeLocks) ReleaseIfOwner(userID, _ string) bool {
	f.released = append(f.released, userID)
	return true
}

var (
	cajero = entity.Operator{UserID: "u1", Name: "Ana", Role: entity.RoleCajero}
	otro   = entity.Operator{UserID: "u2", Name: "Luis", Role: entity.RoleCajero}
	admin  = entity.Operator{UserID: "adm", Name: "Admin", Role: entity.RoleAdmin}
)

type fixture struct {
	store *memory.Store
	uc    *register.SessionUseCase
	pub   *capturePublisher
	locks *fakeLocks
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		pub:   &capturePublisher{},
		locks: &fakeLocks{},
		now:   time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC),
	}
	f.uc = register.NewSessionUseCase(f.store.Sessions(), fixedRate{decimal.RequireFromString("36.50")}, f.locks, f.pub, logger.Nop())
	f.uc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seedOpen(t *testing.T, id string, openedAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.Sessions().Create(context.Background(), &entity.RegisterSession{
		ID:       id,
		State:    entity.RegisterAbierta,
		OpenedBy: "u1",
		OpenedAt: openedAt,
	}))
}

// ──────────────────────────────────────────────────────────────────────────────
// Apertura
// ──────────────────────────────────────────────────────────────────────────────

func TestOpen_SellaTasaYMontos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.uc.Open(ctx, cajero, dto.OpenRegisterRequest{
		OpeningAmounts: dto.AmountsDTO{Bs: decimal.NewFromInt(100), Usd: decimal.NewFromInt(20)},
		Notes:          " turno mañana ",
	})
	require.NoError(t, err)
	assert.Equal(t, string(entity.RegisterAbierta), resp.State)
	assert.True(t, resp.ExchangeRate.Equal(decimal.RequireFromString("36.50")))
	assert.Equal(t, "turno mañana", resp.OpeningNotes)
	assert.Equal(t, []string{broadcast.EventCajaAbierta}, f.pub.names())

	cur, err := f.uc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, resp.ID, cur.ID)
}

func TestOpen_SegundaAperturaFallaAlreadyOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Open(ctx, cajero, dto.OpenRegisterRequest{})
	require.NoError(t, err)
	_, err = f.uc.Open(ctx, otro, dto.OpenRegisterRequest{})
	assert.ErrorIs(t, err, domain.ErrAlreadyOpen)
}

func TestOpen_MontosNegativos(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Open(context.Background(), cajero, dto.OpenRegisterRequest{
		OpeningAmounts: dto.AmountsDTO{Bs: decimal.NewFromInt(-1)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEnsureAcceptsPostings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.EnsureAcceptsPostings(ctx)
	assert.ErrorIs(t, err, domain.ErrNoOpenRegister)

	f.seedOpen(t, "s1", f.now.Add(-time.Hour))
	s, err := f.uc.EnsureAcceptsPostings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	_, err = f.uc.ForceTransitionStale(ctx, f.now, register.FixedReason("AUTO_CIERRE_PROGRAMADO_11_55_PM"))
	require.NoError(t, err)
	_, err = f.uc.EnsureAcceptsPostings(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transiciones forzadas
// ──────────────────────────────────────────────────────────────────────────────

func TestForceTransitionStale_CajaDeHaceDosDias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpen(t, "vieja", f.now.AddDate(0, 0, -2))

	cutoff := register.StartOfDay(f.now, time.UTC)
	affected, err := f.uc.ForceTransitionStale(ctx, cutoff, register.DaysElapsedReason("AUTO_CIERRE_DIA_ANTERIOR", time.UTC))
	require.NoError(t, err)
	require.Len(t, affected, 1)

	s, err := f.store.Sessions().GetByID(ctx, "vieja")
	require.NoError(t, err)
	assert.Equal(t, entity.RegisterPendienteCierreFisico, s.State)
	assert.True(t, s.RequiresPhysicalCount)
	require.NotNil(t, s.ResponsibleUser)
	assert.Equal(t, "u1", *s.ResponsibleUser)
	require.NotNil(t, s.AutoCloseReason)
	assert.Equal(t, "AUTO_CIERRE_DIA_ANTERIOR: 2 días", *s.AutoCloseReason)
	require.NotNil(t, s.AutoCloseAt)
	assert.True(t, s.AutoCloseAt.Equal(f.now))

	assert.Equal(t, []string{broadcast.EventAutoCierre}, f.pub.names())
}

func TestForceTransitionStale_Idempotente(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpen(t, "s1", f.now.Add(-26*time.Hour))
	reason := register.FixedReason("AUTO_CIERRE_PROGRAMADO_11_55_PM")

	first, err := f.uc.ForceTransitionStale(ctx, f.now, reason)
	require.NoError(t, err)
	require.Len(t, first, 1)
	after1, _ := f.store.Sessions().GetByID(ctx, "s1")

	second, err := f.uc.ForceTransitionStale(ctx, f.now, reason)
	require.NoError(t, err)
	assert.Empty(t, second)
	after2, _ := f.store.Sessions().GetByID(ctx, "s1")
	assert.Equal(t, after1, after2)

	assert.Len(t, f.pub.names(), 1, "la segunda corrida no publica nada")
}

func TestForceTransitionStale_RespetaCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpen(t, "hoy", f.now.Add(-time.Hour))

	affected, err := f.uc.ForceTransitionStale(ctx, register.StartOfDay(f.now, time.UTC), register.FixedReason("X"))
	require.NoError(t, err)
	assert.Empty(t, affected)
	assert.Empty(t, f.pub.names())
}

func TestDaysElapsedReason_Singular(t *testing.T) {
	loc := time.UTC
	s := &entity.RegisterSession{OpenedAt: time.Date(2026, 5, 19, 22, 0, 0, 0, loc)}
	got := register.DaysElapsedReason("AUTO_CIERRE_DIA_ANTERIOR", loc)(s, time.Date(2026, 5, 20, 0, 5, 0, 0, loc))
	assert.Equal(t, "AUTO_CIERRE_DIA_ANTERIOR: 1 día", got)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cierre con conteo físico
// ──────────────────────────────────────────────────────────────────────────────

func TestClose_DesdeAbierta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opened, err := f.uc.Open(ctx, cajero, dto.OpenRegisterRequest{})
	require.NoError(t, err)

	closed, err := f.uc.Close(ctx, opened.ID, cajero, dto.CloseRegisterRequest{
		CountedAmounts: dto.AmountsDTO{Bs: decimal.NewFromInt(1500)},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entity.RegisterCerrada), closed.State)
	require.NotNil(t, closed.CountedAmounts)
	assert.True(t, closed.CountedAmounts.Bs.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, []string{"u1"}, f.locks.released, "se libera el bloqueo del que cerró")
	assert.Equal(t, []string{broadcast.EventCajaAbierta, broadcast.EventCajaCerrada}, f.pub.names())

	cur, err := f.uc.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestClose_YaCerradaFallaInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opened, err := f.uc.Open(ctx, cajero, dto.OpenRegisterRequest{})
	require.NoError(t, err)
	_, err = f.uc.Close(ctx, opened.ID, cajero, dto.CloseRegisterRequest{})
	require.NoError(t, err)

	_, err = f.uc.Close(ctx, opened.ID, cajero, dto.CloseRegisterRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClose_PendienteSoloResponsableOAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpen(t, "p1", f.now.AddDate(0, 0, -1))
	_, err := f.uc.ForceTransitionStale(ctx, f.now, register.FixedReason("AUTO"))
	require.NoError(t, err)

	pending, err := f.uc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.uc.Close(ctx, "p1", otro, dto.CloseRegisterRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	closed, err := f.uc.Close(ctx, "p1", admin, dto.CloseRegisterRequest{})
	require.NoError(t, err)
	assert.Equal(t, string(entity.RegisterCerrada), closed.State)
	assert.Contains(t, f.pub.names(), broadcast.EventPendienteResuel)
}

func TestClose_NoExiste(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Close(context.Background(), "nada", cajero, dto.CloseRegisterRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClose_CarreraConTransicionForzadaUnSoloGanador(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		f.seedOpen(t, "s", f.now.Add(-30*time.Hour))

		var (
			wg       sync.WaitGroup
			closeErr error
			affected []*entity.RegisterSession
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, closeErr = f.uc.Close(ctx, "s", admin, dto.CloseRegisterRequest{})
		}()
		go func() {
			defer wg.Done()
			affected, _ = f.uc.ForceTransitionStale(ctx, f.now, register.FixedReason("AUTO"))
		}()
		wg.Wait()

		s, err := f.store.Sessions().GetByID(ctx, "s")
		require.NoError(t, err)
		switch {
		case closeErr == nil && len(affected) == 0:
			// ganó el cierre manual
			assert.Equal(t, entity.RegisterCerrada, s.State)
		case closeErr == nil && len(affected) == 1:
			// la transición ganó primero y luego el admin cerró la pendiente
			assert.Equal(t, entity.RegisterCerrada, s.State)
			assert.True(t, s.RequiresPhysicalCount)
		default:
			// el cierre leyó ABIERTA pero la transición escribió antes
			assert.ErrorIs(t, closeErr, domain.ErrInvalidState)
			assert.Equal(t, entity.RegisterPendienteCierreFisico, s.State)
		}
	}
}
