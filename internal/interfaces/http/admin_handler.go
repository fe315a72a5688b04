package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/scheduler"
)

// AdminHandler superficie de administración: tareas programadas y sesiones conectadas.
type AdminHandler struct {
	jobs *scheduler.Registry
	hub  *broadcast.Hub
}

// NewAdminHandler construye el handler.
func NewAdminHandler(jobs *scheduler.Registry, hub *broadcast.Hub) *AdminHandler {
	return &AdminHandler{jobs: jobs, hub: hub}
}

// JobStatus godoc
// @Summary      Estado de las tareas programadas
// @Tags         admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.JobStatusResponse
// @Router       /api/admin/jobs [get]
func (h *AdminHandler) JobStatus(c *fiber.Ctx) error {
	return c.JSON(h.jobs.Status())
}

// RunJob godoc
// @Summary      Ejecutar una tarea ya
// @Description  Mismo camino y misma forma de respuesta que la corrida programada.
// @Tags         admin
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "nombre de la tarea"
// @Success      200   {object}  dto.JobRunResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/admin/jobs/{name}/run [post]
func (h *AdminHandler) RunJob(c *fiber.Ctx) error {
	res, err := h.jobs.RunNow(c.UserContext(), c.Params("name"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// StartJob godoc
// @Summary      Reactivar el horario de una tarea
// @Tags         admin
// @Security     Bearer
// @Param        name  path  string  true  "nombre de la tarea"
// @Success      200   {object}  dto.JobStatusResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/admin/jobs/{name}/start [post]
func (h *AdminHandler) StartJob(c *fiber.Ctx) error {
	if err := h.jobs.StartJob(c.Params("name")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.jobs.Status())
}

// StopJob godoc
// @Summary      Detener el horario de una tarea
// @Tags         admin
// @Security     Bearer
// @Param        name  path  string  true  "nombre de la tarea"
// @Success      200   {object}  dto.JobStatusResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/admin/jobs/{name}/stop [post]
func (h *AdminHandler) StopJob(c *fiber.Ctx) error {
	if err := h.jobs.StopJob(c.Params("name")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.jobs.Status())
}

// StopAll godoc
// @Summary      Detener todas las tareas
// @Tags         admin
// @Security     Bearer
// @Success      200  {object}  dto.JobStatusResponse
// @Router       /api/admin/jobs/stop-all [post]
func (h *AdminHandler) StopAll(c *fiber.Ctx) error {
	if err := h.jobs.StopAll(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.jobs.Status())
}

// Restart godoc
// @Summary      Reiniciar el registro de tareas
// @Tags         admin
// @Security     Bearer
// @Success      200  {object}  dto.JobStatusResponse
// @Router       /api/admin/jobs/restart [post]
func (h *AdminHandler) Restart(c *fiber.Ctx) error {
	if err := h.jobs.Restart(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.jobs.Status())
}

// ForceLogout godoc
// @Summary      Forzar cierre de sesión de un operador conectado
// @Tags         admin
// @Security     Bearer
// @Accept       json
// @Param        id    path  string                  true   "ID del usuario"
// @Param        body  body  dto.ForceLogoutRequest  false  "reason"
// @Success      202
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/admin/sessions/{id}/logout [post]
func (h *AdminHandler) ForceLogout(c *fiber.Ctx) error {
	var in dto.ForceLogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	if in.Reason == "" {
		in.Reason = "Sesión cerrada por un administrador"
	}
	err := h.hub.SendTo(c.Params("id"), broadcast.Event{
		Name:    broadcast.EventForceLogout,
		Payload: fiber.Map{"reason": in.Reason, "by": GetOperator(c).DisplayName()},
	})
	if errors.Is(err, broadcast.ErrSubscriberNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "SESSION_NOT_FOUND", Message: err.Error()})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Broadcast godoc
// @Summary      Estadísticas del canal push
// @Tags         admin
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  broadcast.Stats
// @Router       /api/admin/broadcast [get]
func (h *AdminHandler) Broadcast(c *fiber.Ctx) error {
	return c.JSON(h.hub.Stats())
}
