// Package reconciliation tareas de conciliación en segundo plano: cierre nocturno, cajas de días
// anteriores, reservas vencidas, chequeo de vida y refresco de la tasa.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// Nombres de las tareas (los mismos que usa la superficie de administración).
const (
	JobNightlyCutoff     = "auto-cierre-nocturno"
	JobStaleSessions     = "cajas-dia-anterior"
	JobReservationExpiry = "reservas-expiradas-cleanup"
	JobLiveness          = "system-health-check"
	JobRateRefresh       = "tasa-refresh"
)

// Motivos de cierre automático.
const (
	ReasonNightlyCutoff = "AUTO_CIERRE_PROGRAMADO_11_55_PM"
	ReasonPriorDay      = "AUTO_CIERRE_DIA_ANTERIOR"
)

// StaleTransitioner transiciones forzadas de cajas.
type StaleTransitioner interface {
	ForceTransitionStale(ctx context.Context, cutoff time.Time, reason register.ReasonFunc) ([]*entity.RegisterSession, error)
}

// ExpirySweeper limpieza de reservas vencidas.
type ExpirySweeper interface {
	ReleaseExpired(ctx context.Context, grace time.Duration) (*dto.SweepResult, error)
}

// RateRefresher refresco de la referencia de precios.
type RateRefresher interface {
	Refresh(ctx context.Context) (*pricing.RefreshResult, error)
}

// Config horarios y umbrales.
type Config struct {
	Location              *time.Location
	NightlyCutoffCron     string
	StaleSweepCron        string
	ReservationSweepCron  string
	LivenessCron          string
	RateRefreshCron       string
	ReservationGrace      time.Duration
	JobTimeout            time.Duration
	OpenReservationsAlert int
}

// TransitionReport resultado de las tareas de cierre forzado.
type TransitionReport struct {
	Cutoff   time.Time `json:"cutoff"`
	Affected int       `json:"affected"`
	Sessions []string  `json:"sessions"`
}

// LivenessReport resultado del chequeo de vida.
type LivenessReport struct {
	CheckedAt        time.Time `json:"checked_at"`
	Healthy          bool      `json:"healthy"`
	OpenReservations int       `json:"open_reservations"`
	Alert            bool      `json:"alert"`
	Error            string    `json:"error,omitempty"`
}

// Jobs agrupa las tareas; cada método es la función run de una tarea del registro.
type Jobs struct {
	sessions     StaleTransitioner
	sweeper      ExpirySweeper
	health       repository.HealthRepository
	reservations repository.StockReservationRepository
	rates        RateRefresher
	cfg          Config
	log          *logger.Logger
	now          func() time.Time

	healthy      atomic.Bool
	lastLiveness atomic.Pointer[LivenessReport]
}

// NewJobs construye las tareas. rates puede ser nil (sin refresco de tasa).
func NewJobs(
	sessions StaleTransitioner,
	sweeper ExpirySweeper,
	health repository.HealthRepository,
	reservations repository.StockReservationRepository,
	rates RateRefresher,
	cfg Config,
	log *logger.Logger,
) *Jobs {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ReservationGrace <= 0 {
		cfg.ReservationGrace = 2 * time.Hour
	}
	if cfg.OpenReservationsAlert <= 0 {
		cfg.OpenReservationsAlert = 100
	}
	j := &Jobs{
		sessions:     sessions,
		sweeper:      sweeper,
		health:       health,
		reservations: reservations,
		rates:        rates,
		cfg:          cfg,
		log:          log.Component("reconciliation"),
		now:          time.Now,
	}
	j.healthy.Store(true)
	return j
}

// SetClock reemplaza el reloj (tests).
func (j *Jobs) SetClock(now func() time.Time) { j.now = now }

// RegisterAll da de alta las tareas en el registro.
func (j *Jobs) RegisterAll(reg *scheduler.Registry) error {
	type entry struct {
		name  string
		sched scheduler.Schedule
		fn    scheduler.JobFunc
	}
	entries := []entry{
		{JobNightlyCutoff, scheduler.Schedule{Spec: j.cfg.NightlyCutoffCron, Timeout: j.cfg.JobTimeout}, j.NightlyCutoff},
		{JobStaleSessions, scheduler.Schedule{Spec: j.cfg.StaleSweepCron, RunOnStart: true, Timeout: j.cfg.JobTimeout}, j.StaleSessions},
		{JobReservationExpiry, scheduler.Schedule{Spec: j.cfg.ReservationSweepCron, Timeout: j.cfg.JobTimeout}, j.ReservationExpiry},
		{JobLiveness, scheduler.Schedule{Spec: j.cfg.LivenessCron, Timeout: j.cfg.JobTimeout}, j.Liveness},
	}
	if j.rates != nil {
		entries = append(entries, entry{JobRateRefresh, scheduler.Schedule{Spec: j.cfg.RateRefreshCron, RunOnStart: true, Timeout: j.cfg.JobTimeout}, j.RateRefresh})
	}
	for _, e := range entries {
		if err := reg.Register(e.name, e.sched, e.fn); err != nil {
			return fmt.Errorf("registrar %s: %w", e.name, err)
		}
	}
	return nil
}

// NightlyCutoff pasa a pendiente toda caja que siga abierta a la hora de corte.
// Sin cajas abiertas es una corrida exitosa sin cambios.
func (j *Jobs) NightlyCutoff(ctx context.Context) (any, error) {
	now := j.now()
	affected, err := j.sessions.ForceTransitionStale(ctx, now, register.FixedReason(ReasonNightlyCutoff))
	return transitionReport(now, affected), err
}

// StaleSessions atrapa cajas abiertas desde un día anterior (ej. el proceso estuvo caído a la hora de corte).
func (j *Jobs) StaleSessions(ctx context.Context) (any, error) {
	cutoff := register.StartOfDay(j.now(), j.cfg.Location)
	affected, err := j.sessions.ForceTransitionStale(ctx, cutoff, register.DaysElapsedReason(ReasonPriorDay, j.cfg.Location))
	if len(affected) > 0 {
		j.log.Warn().Int("sessions", len(affected)).Msg("cajas de días anteriores pasadas a cierre físico")
	}
	return transitionReport(cutoff, affected), err
}

// ReservationExpiry libera reservas sin transacción más viejas que la ventana de gracia.
func (j *Jobs) ReservationExpiry(ctx context.Context) (any, error) {
	return j.sweeper.ReleaseExpired(ctx, j.cfg.ReservationGrace)
}

// Liveness consulta trivial al almacenamiento y conteo de reservas abiertas. Nunca modifica datos;
// una falla baja el indicador Healthy y se informa como error de la tarea.
func (j *Jobs) Liveness(ctx context.Context) (any, error) {
	report := &LivenessReport{CheckedAt: j.now()}
	defer func() { j.lastLiveness.Store(report) }()

	if err := j.health.Ping(ctx); err != nil {
		return j.unhealthy(report, err)
	}
	n, err := j.reservations.CountOpen(ctx)
	if err != nil {
		return j.unhealthy(report, err)
	}
	report.Healthy = true
	report.OpenReservations = n
	if n > j.cfg.OpenReservationsAlert {
		report.Alert = true
		j.log.Warn().Int("open_reservations", n).Int("threshold", j.cfg.OpenReservationsAlert).Msg("demasiadas reservas abiertas")
	}
	if !j.healthy.Swap(true) {
		j.log.Info().Msg("almacenamiento disponible de nuevo")
	}
	return report, nil
}

func (j *Jobs) unhealthy(report *LivenessReport, err error) (any, error) {
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	report.Healthy = false
	report.Error = err.Error()
	j.healthy.Store(false)
	return report, err
}

// RateRefresh refresca la tasa desde la fuente externa.
func (j *Jobs) RateRefresh(ctx context.Context) (any, error) {
	return j.rates.Refresh(ctx)
}

// Healthy último resultado del chequeo de vida (true hasta la primera falla).
func (j *Jobs) Healthy() bool {
	return j.healthy.Load()
}

// LastLiveness último reporte del chequeo de vida, nil si todavía no corrió.
func (j *Jobs) LastLiveness() *LivenessReport {
	return j.lastLiveness.Load()
}

func transitionReport(cutoff time.Time, affected []*entity.RegisterSession) *TransitionReport {
	r := &TransitionReport{Cutoff: cutoff, Affected: len(affected), Sessions: make([]string, 0, len(affected))}
	for _, s := range affected {
		r.Sessions = append(r.Sessions, s.ID)
	}
	return r
}
