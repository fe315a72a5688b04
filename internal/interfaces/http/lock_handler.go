package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

// LockHandler bloqueo global de cierre de caja.
type LockHandler struct {
	locks       *lock.Service
	waitTimeout time.Duration
}

// NewLockHandler construye el handler. waitTimeout acota GET /api/lock/wait.
func NewLockHandler(locks *lock.Service, waitTimeout time.Duration) *LockHandler {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &LockHandler{locks: locks, waitTimeout: waitTimeout}
}

// Get godoc
// @Summary      Estado del bloqueo de cierre
// @Tags         lock
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  lock.Snapshot
// @Router       /api/lock [get]
func (h *LockHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.locks.Snapshot())
}

// Lock godoc
// @Summary      Bloquear el sistema para cierre
// @Description  Reentrante para el mismo operador (refresca y puede escalar el tipo). Otro operador recibe 423.
// @Tags         lock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.LockRequest  false  "reason, lock_type (ARQUEO|CIERRE|DIFERENCIA), differences"
// @Success      200   {object}  entity.LockState
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      423   {object}  dto.ErrorResponse
// @Router       /api/lock [post]
func (h *LockHandler) Lock(c *fiber.Ctx) error {
	var in dto.LockRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	op := GetOperator(c)
	req := entity.LockRequest{
		Reason:    in.Reason,
		OwnerUser: op.UserID,
		OwnerName: op.DisplayName(),
		LockType:  entity.LockType(in.LockType),
	}
	if in.Differences != nil {
		d := in.Differences.ToEntity()
		req.Differences = &d
	}
	st, err := h.locks.Lock(req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// Unlock godoc
// @Summary      Desbloquear el sistema
// @Description  Solo el dueño del bloqueo o un admin.
// @Tags         lock
// @Security     Bearer
// @Param        body  body  dto.UnlockRequest  false  "reason"
// @Success      200   {object}  entity.LockState
// @Failure      403   {object}  dto.ErrorResponse
// @Router       /api/lock [delete]
func (h *LockHandler) Unlock(c *fiber.Ctx) error {
	var in dto.UnlockRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	op := GetOperator(c)
	st := h.locks.State()
	if st.Locked && st.OwnerUser != op.UserID && !op.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "solo el dueño del bloqueo o un admin puede desbloquear"})
	}
	h.locks.Unlock(in.Reason)
	return c.JSON(h.locks.State())
}

// Wait godoc
// @Summary      Esperar el desbloqueo
// @Description  Responde apenas el sistema queda desbloqueado; 408 si vence la espera.
// @Tags         lock
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  lock.Snapshot
// @Failure      408  {object}  dto.ErrorResponse
// @Router       /api/lock/wait [get]
func (h *LockHandler) Wait(c *fiber.Ctx) error {
	if err := h.locks.WaitUntilCleared(c.UserContext(), h.waitTimeout); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.locks.Snapshot())
}
