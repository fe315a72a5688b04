// Package scheduler registro uniforme de tareas programadas: cada tarea tiene nombre, expresión cron
// y una única función run; la ejecución programada y la manual pasan por el mismo camino.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// Disparadores de una ejecución.
const (
	TriggerCron    = "cron"
	TriggerStartup = "startup"
	TriggerManual  = "manual"
)

// JobFunc cuerpo de una tarea. El resultado se expone tal cual en el estado y en RunNow.
type JobFunc func(ctx context.Context) (any, error)

// Schedule cuándo y cuánto puede correr una tarea.
type Schedule struct {
	Spec       string        // cron de 5 campos o descriptor (@every 15m, @hourly)
	RunOnStart bool          // además corre una vez al iniciar el registro
	Timeout    time.Duration // 0 = timeout por defecto del registro
}

type job struct {
	name  string
	sched Schedule
	fn    JobFunc
	sem   chan struct{}

	mu        sync.Mutex
	entryID   cron.EntryID
	scheduled bool
	running   bool
	lastRunAt *time.Time
	lastRes   any
	lastErr   string
	runs      int64
	failures  int64
}

// Registry aloja todas las tareas en un solo proceso. Cada tarea corre en su propia goroutine
// (la de cron), así una limpieza larga no atrasa al chequeo de vida; una tarea nunca corre
// en paralelo consigo misma.
type Registry struct {
	cron           *cron.Cron
	log            *logger.Logger
	tracer         trace.Tracer
	defaultTimeout time.Duration

	mu          sync.Mutex
	jobs        map[string]*job
	initialized bool
	base        context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRegistry crea el registro; las expresiones se evalúan en loc.
func NewRegistry(loc *time.Location, defaultTimeout time.Duration, log *logger.Logger) *Registry {
	if loc == nil {
		loc = time.Local
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Registry{
		cron:           cron.New(cron.WithLocation(loc)),
		log:            log.Component("scheduler"),
		tracer:         otel.Tracer("github.com/LuAM-Lu/electrocaja/scheduler"),
		defaultTimeout: defaultTimeout,
		jobs:           make(map[string]*job),
		base:           context.Background(),
	}
}

// Register agrega una tarea. No la programa hasta Start.
func (r *Registry) Register(name string, sched Schedule, fn JobFunc) error {
	if name == "" || fn == nil {
		return domain.ErrInvalidInput
	}
	if _, err := cron.ParseStandard(sched.Spec); err != nil {
		return fmt.Errorf("%w: expresión cron %q: %v", domain.ErrInvalidInput, sched.Spec, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; ok {
		return fmt.Errorf("%w: tarea %s ya registrada", domain.ErrConflict, name)
	}
	r.jobs[name] = &job{name: name, sched: sched, fn: fn, sem: make(chan struct{}, 1)}
	return nil
}

// Start programa todas las tareas y lanza las marcadas RunOnStart.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.base, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	var startup []*job
	for _, j := range r.jobs {
		if err := r.schedule(j); err != nil {
			r.mu.Unlock()
			return err
		}
		if j.sched.RunOnStart {
			startup = append(startup, j)
		}
	}
	r.initialized = true
	r.mu.Unlock()

	r.cron.Start()
	for _, j := range startup {
		j := j
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(r.baseContext(), j, TriggerStartup)
		}()
	}
	r.log.Info().Int("jobs", len(r.jobs)).Msg("tareas programadas iniciadas")
	return nil
}

// StopAll desprograma todas las tareas y espera (hasta ctx) a que terminen las que corren.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	for _, j := range r.jobs {
		r.unschedule(j)
	}
	r.initialized = false
	cancel := r.cancel
	r.mu.Unlock()

	stopped := r.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Msg("tareas programadas detenidas")
		return nil
	case <-ctx.Done():
		// Las que siguen corriendo se cancelan; su propio timeout las acota igual.
		if cancel != nil {
			cancel()
		}
		return ctx.Err()
	}
}

// Restart detiene y vuelve a programar todo.
func (r *Registry) Restart(ctx context.Context) error {
	if err := r.StopAll(ctx); err != nil {
		return err
	}
	return r.Start(ctx)
}

// StartJob programa una sola tarea.
func (r *Registry) StartJob(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, name)
	}
	if err := r.schedule(j); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// StopJob desprograma una sola tarea (una ejecución en curso termina normalmente).
func (r *Registry) StopJob(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, name)
	}
	r.unschedule(j)
	return nil
}

// RunNow ejecuta la tarea ya, por el mismo camino que el cron. Solo falla si la tarea no existe;
// el éxito o error de la corrida viaja en la respuesta.
func (r *Registry) RunNow(ctx context.Context, name string) (*dto.JobRunResponse, error) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, name)
	}
	resp := r.run(ctx, j, TriggerManual)
	return &resp, nil
}

// Status estado observable de todas las tareas, ordenadas por nombre.
func (r *Registry) Status() dto.JobStatusResponse {
	r.mu.Lock()
	out := dto.JobStatusResponse{Initialized: r.initialized, TotalJobs: len(r.jobs)}
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].name < jobs[b].name })
	out.Jobs = make([]entity.ScheduledJob, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		sj := entity.ScheduledJob{
			Name:           j.name,
			CronExpression: j.sched.Spec,
			Scheduled:      j.scheduled,
			Running:        j.running,
			LastResult:     j.lastRes,
			LastError:      j.lastErr,
			Runs:           j.runs,
			Failures:       j.failures,
		}
		if j.lastRunAt != nil {
			t := *j.lastRunAt
			sj.LastRunAt = &t
		}
		j.mu.Unlock()
		out.Jobs = append(out.Jobs, sj)
	}
	return out
}

// schedule se llama con r.mu tomado.
func (r *Registry) schedule(j *job) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.scheduled {
		return nil
	}
	id, err := r.cron.AddFunc(j.sched.Spec, func() {
		r.run(r.baseContext(), j, TriggerCron)
	})
	if err != nil {
		return fmt.Errorf("programar %s: %w", j.name, err)
	}
	j.entryID = id
	j.scheduled = true
	return nil
}

func (r *Registry) unschedule(j *job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.scheduled {
		return
	}
	r.cron.Remove(j.entryID)
	j.scheduled = false
}

func (r *Registry) baseContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.base
}

// run punto único de ejecución. Serializa por tarea, acota con timeout, recupera panics,
// registra el span y deja el resultado en el estado de la tarea.
func (r *Registry) run(parent context.Context, j *job, trigger string) dto.JobRunResponse {
	timeout := j.sched.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "job "+j.name, trace.WithAttributes(
		attribute.String("job.name", j.name),
		attribute.String("job.trigger", trigger),
	))
	defer span.End()

	resp := dto.JobRunResponse{Job: j.name}

	select {
	case j.sem <- struct{}{}:
	case <-ctx.Done():
		resp.Error = fmt.Sprintf("la tarea sigue ocupada: %v", ctx.Err())
		span.SetStatus(codes.Error, resp.Error)
		r.log.Warn().Str("job", j.name).Str("trigger", trigger).Msg("ejecución descartada, la anterior no terminó")
		return resp
	}
	defer func() { <-j.sem }()

	started := time.Now()
	j.mu.Lock()
	j.running = true
	j.mu.Unlock()

	result, err := safeCall(ctx, j.fn)
	elapsed := time.Since(started)

	j.mu.Lock()
	j.running = false
	j.lastRunAt = &started
	j.lastRes = result
	j.runs++
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	j.mu.Unlock()

	resp.Result = result
	resp.Duration = elapsed.String()
	if err != nil {
		resp.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error().Err(err).Str("job", j.name).Str("trigger", trigger).Dur("duration", elapsed).Msg("tarea programada falló")
		return resp
	}
	resp.Success = true
	span.SetStatus(codes.Ok, "")
	r.log.Info().Str("job", j.name).Str("trigger", trigger).Dur("duration", elapsed).Msg("tarea programada completada")
	return resp
}

func safeCall(ctx context.Context, fn JobFunc) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic en tarea: %v", p)
		}
	}()
	return fn(ctx)
}
