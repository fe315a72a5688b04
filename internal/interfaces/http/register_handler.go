package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/register"
)

// RegisterHandler sesiones de caja.
type RegisterHandler struct {
	uc *register.SessionUseCase
}

// NewRegisterHandler construye el handler.
func NewRegisterHandler(uc *register.SessionUseCase) *RegisterHandler {
	return &RegisterHandler{uc: uc}
}

// Current godoc
// @Summary      Caja activa
// @Tags         registers
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.RegisterSessionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/registers/current [get]
func (h *RegisterHandler) Current(c *fiber.Ctx) error {
	s, err := h.uc.Current(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	if s == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NO_OPEN_REGISTER", Message: "no hay una caja abierta"})
	}
	return c.JSON(s)
}

// ListPending godoc
// @Summary      Cajas pendientes de cierre físico
// @Tags         registers
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.RegisterSessionResponse
// @Router       /api/registers/pending [get]
func (h *RegisterHandler) ListPending(c *fiber.Ctx) error {
	list, err := h.uc.ListPending(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(list)
}

// Open godoc
// @Summary      Abrir caja
// @Tags         registers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.OpenRegisterRequest  true  "opening_amounts, notes"
// @Success      201   {object}  dto.RegisterSessionResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/registers [post]
func (h *RegisterHandler) Open(c *fiber.Ctx) error {
	var in dto.OpenRegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	s, err := h.uc.Open(c.UserContext(), GetOperator(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s)
}

// Close godoc
// @Summary      Cerrar caja con conteo físico
// @Description  Resuelve también las cajas PENDIENTE_CIERRE_FISICO (responsable o admin).
// @Tags         registers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "ID de la sesión"
// @Param        body  body  dto.CloseRegisterRequest  true  "counted_amounts, notes"
// @Success      200   {object}  dto.RegisterSessionResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/registers/{id}/close [post]
func (h *RegisterHandler) Close(c *fiber.Ctx) error {
	var in dto.CloseRegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	s, err := h.uc.Close(c.UserContext(), c.Params("id"), GetOperator(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s)
}
