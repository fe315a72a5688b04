package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/inventory"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
	"github.com/LuAM-Lu/electrocaja/internal/application/reconciliation"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/kafka"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/memory"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/postgres"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/ratesource"
	httpRouter "github.com/LuAM-Lu/electrocaja/internal/interfaces/http"
	"github.com/LuAM-Lu/electrocaja/pkg/config"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// stores repositorios del almacenamiento elegido (postgres o memoria).
type stores struct {
	sessions     repository.RegisterSessionRepository
	reservations repository.StockReservationRepository
	movements    repository.InventoryMovementRepository
	settings     repository.SettingsRepository
	health       repository.HealthRepository
	txRunner     inventory.TxRunner
	close        func()
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) stores {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		s := memory.NewStore()
		return stores{
			sessions:     s.Sessions(),
			reservations: s.Reservations(),
			movements:    s.Movements(),
			settings:     s.Settings(),
			health:       s.Health(),
			txRunner:     memory.NewTxRunner(s),
			close:        func() {},
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("esquema de base de datos")
	}
	return stores{
		sessions:     postgres.NewRegisterSessionRepository(pool),
		reservations: postgres.NewStockReservationRepository(pool),
		movements:    postgres.NewInventoryMovementRepository(pool),
		settings:     postgres.NewSettingsRepository(pool),
		health:       postgres.NewHealthRepository(pool),
		txRunner:     postgres.NewTxRunner(pool),
		close:        pool.Close,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Str("timezone", cfg.App.Timezone).
		Msg("iniciando aplicación")

	ctx := context.Background()
	st := openStores(ctx, cfg, log)
	defer st.close()

	hub := broadcast.NewHub(log, 5*time.Second)
	if cfg.Kafka.Enabled {
		sink := kafka.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Msg("cerrar réplica Kafka")
			}
		}()
		hub.Subscribe(sink)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("réplica de eventos a Kafka activa")
	}

	locks := lock.NewService(hub, log)

	rates := pricing.NewReference(
		ratesource.NewDolarAPISource(cfg.Rate.SourceURL, cfg.Rate.Timeout),
		st.settings, hub, log,
		pricing.Options{Epsilon: decimal.NewFromFloat(cfg.Rate.Epsilon), Timeout: cfg.Rate.Timeout},
	)
	if err := rates.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("no se pudo cargar la tasa manual guardada")
	}

	sessions := register.NewSessionUseCase(st.sessions, rates, locks, hub, log)
	reservations := inventory.NewReservationUseCase(st.txRunner, st.reservations, sessions, hub, log)

	loc := cfg.App.Location()
	jobs := reconciliation.NewJobs(sessions, reservations, st.health, st.reservations, rates, reconciliation.Config{
		Location:              loc,
		NightlyCutoffCron:     cfg.Scheduler.NightlyCutoffCron,
		StaleSweepCron:        cfg.Scheduler.StaleSweepCron,
		ReservationSweepCron:  cfg.Scheduler.ReservationSweepCron,
		LivenessCron:          cfg.Scheduler.LivenessCron,
		RateRefreshCron:       cfg.Scheduler.RateRefreshCron,
		ReservationGrace:      cfg.Scheduler.ReservationGrace,
		JobTimeout:            cfg.Scheduler.JobTimeout,
		OpenReservationsAlert: cfg.Scheduler.OpenReservationsAlert,
	}, log)
	registry := scheduler.NewRegistry(loc, cfg.Scheduler.JobTimeout, log)
	if err := jobs.RegisterAll(registry); err != nil {
		log.Fatal().Err(err).Msg("registrar tareas programadas")
	}
	if err := registry.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("iniciar tareas programadas")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Electrocaja API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		AppName:      cfg.App.Name,
		Locks:        locks,
		Sessions:     sessions,
		Reservations: reservations,
		Movements:    inventory.NewMovementQuery(st.movements),
		Rates:        rates,
		Jobs:         jobs,
		Scheduler:    registry,
		Hub:          hub,
		JWTSecret:    cfg.JWT.Secret,
		LockWait:     cfg.Lock.WaitTimeout,
		Log:          log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := registry.StopAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("detener tareas programadas")
	}
	hub.Close()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
