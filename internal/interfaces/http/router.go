package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/inventory"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
	"github.com/LuAM-Lu/electrocaja/internal/application/reconciliation"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AppName      string
	Locks        *lock.Service
	Sessions     *register.SessionUseCase
	Reservations *inventory.ReservationUseCase
	Movements    *inventory.MovementQuery
	Rates        *pricing.Reference
	Jobs         *reconciliation.Jobs
	Scheduler    *scheduler.Registry
	Hub          *broadcast.Hub
	JWTSecret    string
	LockWait     time.Duration
	Log          *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps))

	auth := AuthMiddleware(deps.JWTSecret)
	unlocked := RequireUnlocked(deps.Locks)
	adminOnly := RequireRole(entity.RoleAdmin)

	// Canal push (token por query string)
	ws := NewWSHandler(deps.Hub, deps.Locks, deps.Log)
	app.Get("/ws", auth, ws.Upgrade, ws.Handle())

	api := app.Group("/api", auth)

	// Bloqueo de cierre: lock/unlock no pasan por RequireUnlocked
	lockHandler := NewLockHandler(deps.Locks, deps.LockWait)
	api.Get("/lock", lockHandler.Get)
	api.Get("/lock/wait", lockHandler.Wait)
	api.Post("/lock", lockHandler.Lock)
	api.Delete("/lock", lockHandler.Unlock)

	// Cajas
	registers := api.Group("/registers")
	registerHandler := NewRegisterHandler(deps.Sessions)
	registers.Get("/current", registerHandler.Current)
	registers.Get("/pending", registerHandler.ListPending)
	registers.Post("/", unlocked, registerHandler.Open)
	registers.Post("/:id/close", unlocked, registerHandler.Close)

	// Reservas de stock
	reservations := api.Group("/reservations")
	reservationHandler := NewReservationHandler(deps.Reservations)
	reservations.Get("/stats", reservationHandler.Stats)
	reservations.Post("/", unlocked, reservationHandler.Reserve)
	reservations.Post("/:id/commit", unlocked, reservationHandler.Commit)
	reservations.Delete("/:id", unlocked, reservationHandler.Cancel)

	// Historial de movimientos
	inventoryHandler := NewInventoryHandler(deps.Movements)
	api.Get("/inventory/movements/:product_id", inventoryHandler.ListMovements)

	// Tasa
	rateHandler := NewRateHandler(deps.Rates)
	api.Get("/rate", rateHandler.Get)
	api.Put("/rate", adminOnly, rateHandler.SetManual)
	api.Delete("/rate", adminOnly, rateHandler.ResumeAuto)

	// Administración (solo admin)
	admin := api.Group("/admin", adminOnly)
	adminHandler := NewAdminHandler(deps.Scheduler, deps.Hub)
	admin.Get("/jobs", adminHandler.JobStatus)
	admin.Post("/jobs/stop-all", adminHandler.StopAll)
	admin.Post("/jobs/restart", adminHandler.Restart)
	admin.Post("/jobs/:name/run", adminHandler.RunJob)
	admin.Post("/jobs/:name/start", adminHandler.StartJob)
	admin.Post("/jobs/:name/stop", adminHandler.StopJob)
	admin.Post("/sessions/:id/logout", adminHandler.ForceLogout)
	admin.Get("/broadcast", adminHandler.Broadcast)
}

// healthHandler 200 mientras el último chequeo de vida fue bueno; 503 si el almacenamiento falló.
func healthHandler(deps RouterDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":      "ok",
			"service":     deps.AppName,
			"locked":      deps.Locks.State().Locked,
			"rate":        deps.Rates.Current(),
			"subscribers": deps.Hub.Count(),
		}
		if last := deps.Jobs.LastLiveness(); last != nil {
			body["liveness"] = last
		}
		if !deps.Jobs.Healthy() {
			body["status"] = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
		return c.JSON(body)
	}
}
