package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/inventory"
	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
	"github.com/LuAM-Lu/electrocaja/internal/application/reconciliation"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/memory"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

type staticSource struct{ v string }

func (s staticSource) Name() string { return "static" }
func (s staticSource) Fetch(context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString(s.v), nil
}

type fixture struct {
	store    *memory.Store
	sessions *register.SessionUseCase
	ledger   *inventory.ReservationUseCase
	jobs     *reconciliation.Jobs
	reg      *scheduler.Registry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Nop()
	f := &fixture{
		store: memory.NewStore(),
		now:   time.Date(2026, 5, 20, 23, 55, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	ref := pricing.NewReference(staticSource{"36.5"}, f.store.Settings(), nil, log, pricing.Options{})
	f.sessions = register.NewSessionUseCase(f.store.Sessions(), ref, nil, nil, log)
	f.sessions.SetClock(clock)
	f.ledger = inventory.NewReservationUseCase(memory.NewTxRunner(f.store), f.store.Reservations(), nil, nil, log)
	f.ledger.SetClock(clock)

	f.jobs = reconciliation.NewJobs(f.sessions, f.ledger, f.store.Health(), f.store.Reservations(), ref, reconciliation.Config{
		Location:              time.UTC,
		NightlyCutoffCron:     "55 23 * * *",
		StaleSweepCron:        "@every 15m",
		ReservationSweepCron:  "0 * * * *",
		LivenessCron:          "*/30 * * * *",
		RateRefreshCron:       "@every 1h",
		ReservationGrace:      2 * time.Hour,
		JobTimeout:            time.Second,
		OpenReservationsAlert: 1,
	}, log)
	f.jobs.SetClock(clock)

	f.reg = scheduler.NewRegistry(time.UTC, time.Second, log)
	require.NoError(t, f.jobs.RegisterAll(f.reg))
	return f
}

func (f *fixture) seedSession(t *testing.T, id string, openedAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.Sessions().Create(context.Background(), &entity.RegisterSession{
		ID: id, State: entity.RegisterAbierta, OpenedBy: "u1", OpenedAt: openedAt,
	}))
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterAll_CincoTareas(t *testing.T) {
	f := newFixture(t)
	st := f.reg.Status()
	assert.Equal(t, 5, st.TotalJobs)
	names := make([]string, 0, len(st.Jobs))
	for _, j := range st.Jobs {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{
		reconciliation.JobNightlyCutoff,
		reconciliation.JobStaleSessions,
		reconciliation.JobReservationExpiry,
		reconciliation.JobLiveness,
		reconciliation.JobRateRefresh,
	}, names)
}

func TestNightlyCutoff_SinCajasEsExitoSinCambios(t *testing.T) {
	f := newFixture(t)
	res, err := f.reg.RunNow(context.Background(), reconciliation.JobNightlyCutoff)
	require.NoError(t, err)
	assert.True(t, res.Success)
	report := res.Result.(*reconciliation.TransitionReport)
	assert.Zero(t, report.Affected)
}

func TestNightlyCutoff_PasaCajaAbiertaAPendiente(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "hoy", f.now.Add(-8*time.Hour))

	res, err := f.reg.RunNow(context.Background(), reconciliation.JobNightlyCutoff)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []string{"hoy"}, res.Result.(*reconciliation.TransitionReport).Sessions)

	s, err := f.store.Sessions().GetByID(context.Background(), "hoy")
	require.NoError(t, err)
	assert.Equal(t, entity.RegisterPendienteCierreFisico, s.State)
	assert.Equal(t, reconciliation.ReasonNightlyCutoff, *s.AutoCloseReason)
}

func TestStaleSessions_SoloDiasAnteriores(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t, "antes", f.now.AddDate(0, 0, -2))

	res, err := f.jobs.StaleSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.(*reconciliation.TransitionReport).Affected)

	s, _ := f.store.Sessions().GetByID(context.Background(), "antes")
	assert.Equal(t, "AUTO_CIERRE_DIA_ANTERIOR: 2 días", *s.AutoCloseReason)

	// Segunda corrida: nada nuevo
	res, err = f.jobs.StaleSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.(*reconciliation.TransitionReport).Affected)

	// Una caja de hoy no se toca
	_, err = f.sessions.Close(context.Background(), "antes", entity.Operator{UserID: "u1"}, dto.CloseRegisterRequest{})
	require.NoError(t, err)
	f.seedSession(t, "hoy", f.now.Add(-time.Hour))
	res, err = f.jobs.StaleSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.(*reconciliation.TransitionReport).Affected)
}

func TestReservationExpiry_MismoResultadoProgramadoOManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Stock().Upsert(ctx, &entity.Stock{ProductID: "P", Quantity: decimal.NewFromInt(10)}))

	f.ledger.SetClock(func() time.Time { return f.now.Add(-3 * time.Hour) })
	_, err := f.ledger.Reserve(ctx, entity.Operator{UserID: "u1"}, dto.ReserveStockRequest{ProductID: "P", Quantity: decimal.NewFromInt(3)})
	require.NoError(t, err)
	f.ledger.SetClock(func() time.Time { return f.now })

	res, err := f.reg.RunNow(ctx, reconciliation.JobReservationExpiry)
	require.NoError(t, err)
	require.True(t, res.Success)
	sweep := res.Result.(*dto.SweepResult)
	assert.Equal(t, 1, sweep.ReservationsReleased)
	assert.True(t, sweep.UnitsReleased.Equal(decimal.NewFromInt(3)))

	stock, _ := f.store.Stock().Get(ctx, "P")
	assert.True(t, stock.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestLiveness_DegradaYSeRecupera(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.True(t, f.jobs.Healthy())
	assert.Nil(t, f.jobs.LastLiveness())

	f.store.SetUnavailable(true)
	res, err := f.reg.RunNow(ctx, reconciliation.JobLiveness)
	require.NoError(t, err, "la falla viaja en el resultado, no hacia el llamador")
	assert.False(t, res.Success)
	assert.False(t, f.jobs.Healthy())
	assert.Contains(t, res.Error, domain.ErrStoreUnavailable.Error())

	f.store.SetUnavailable(false)
	out, err := f.jobs.Liveness(ctx)
	require.NoError(t, err)
	assert.True(t, out.(*reconciliation.LivenessReport).Healthy)
	assert.True(t, f.jobs.Healthy())
}

func TestLiveness_AlertaPorReservasAbiertas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Stock().Upsert(ctx, &entity.Stock{ProductID: "P", Quantity: decimal.NewFromInt(10)}))
	for i := 0; i < 2; i++ {
		_, err := f.ledger.Reserve(ctx, entity.Operator{UserID: "u1"}, dto.ReserveStockRequest{ProductID: "P", Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	out, err := f.jobs.Liveness(ctx)
	require.NoError(t, err)
	report := out.(*reconciliation.LivenessReport)
	assert.Equal(t, 2, report.OpenReservations)
	assert.True(t, report.Alert)

	count, err := f.store.Reservations().CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "el chequeo no modifica nada")
}

func TestRateRefresh(t *testing.T) {
	f := newFixture(t)
	res, err := f.reg.RunNow(context.Background(), reconciliation.JobRateRefresh)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.Result.(*pricing.RefreshResult).Changed)
}
