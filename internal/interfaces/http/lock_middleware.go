package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
)

// lockChecker contrato mínimo del bloqueo de cierre. Lo implementa *lock.Service.
type lockChecker interface {
	Check(userID string) error
}

// RequireUnlocked rechaza con 423 las escrituras de cualquier operador que no sea el dueño
// del bloqueo de cierre. Debe usarse DESPUÉS de AuthMiddleware.
// Las lecturas no pasan por acá: un bloqueo no cambia nada para quien solo consulta.
func RequireUnlocked(locks lockChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := locks.Check(GetUserID(c))
		if err == nil {
			return c.Next()
		}
		var locked *domain.AlreadyLockedError
		if errors.As(err, &locked) {
			return c.Status(fiber.StatusLocked).JSON(dto.ErrorResponse{
				Code:    "SYSTEM_LOCKED",
				Message: locked.Error(),
			})
		}
		return writeError(c, err)
	}
}
