package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Orden importa: AlreadyLocked va antes que los genéricos.
var errorMappings = []errorMapping{
	{domain.ErrAlreadyLocked, fiber.StatusLocked, "SYSTEM_LOCKED", ""},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION", "datos inválidos"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED", "token inválido"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN", "acceso denegado al recurso"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", "recurso no encontrado"},
	{domain.ErrJobNotFound, fiber.StatusNotFound, "JOB_NOT_FOUND", "tarea no encontrada"},
	{domain.ErrAlreadyOpen, fiber.StatusConflict, "ALREADY_OPEN", "ya hay una caja abierta"},
	{domain.ErrNoOpenRegister, fiber.StatusConflict, "NO_OPEN_REGISTER", "no hay una caja abierta"},
	{domain.ErrInvalidState, fiber.StatusConflict, "INVALID_STATE", "la caja no admite esta operación en su estado actual"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK", "stock insuficiente"},
	{domain.ErrReservationGone, fiber.StatusGone, "RESERVATION_GONE", "la reserva ya fue liberada"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT", "conflicto con el estado actual"},
	{domain.ErrLockWaitTimeout, fiber.StatusRequestTimeout, "LOCK_WAIT_TIMEOUT", "tiempo de espera agotado"},
	{domain.ErrExternalSource, fiber.StatusBadGateway, "EXTERNAL_SOURCE", "fuente de la tasa no disponible"},
	{domain.ErrStoreUnavailable, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", "almacenamiento no disponible, intente más tarde"},
}

// writeError traduce errores de dominio a dto.ErrorResponse con su status HTTP.
func writeError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return c.Status(m.status).JSON(dto.ErrorResponse{Code: m.code, Message: msg})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
