package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/inventory"
)

// ReservationHandler reservas de stock durante una venta.
type ReservationHandler struct {
	uc *inventory.ReservationUseCase
}

// NewReservationHandler construye el handler.
func NewReservationHandler(uc *inventory.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{uc: uc}
}

// Reserve godoc
// @Summary      Reservar stock
// @Tags         reservations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReserveStockRequest  true  "product_id, quantity, session_tag"
// @Success      201   {object}  dto.ReservationResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      423   {object}  dto.ErrorResponse
// @Router       /api/reservations [post]
func (h *ReservationHandler) Reserve(c *fiber.Ctx) error {
	var in dto.ReserveStockRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.uc.Reserve(c.UserContext(), GetOperator(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// Commit godoc
// @Summary      Confirmar reserva con una transacción de venta
// @Tags         reservations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                        true  "ID de la reserva"
// @Param        body  body  dto.CommitReservationRequest  true  "transaction_id"
// @Success      200   {object}  dto.ReservationResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      410   {object}  dto.ErrorResponse
// @Router       /api/reservations/{id}/commit [post]
func (h *ReservationHandler) Commit(c *fiber.Ctx) error {
	var in dto.CommitReservationRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	r, err := h.uc.Commit(c.UserContext(), c.Params("id"), GetOperator(c), in.TransactionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(r)
}

// Cancel godoc
// @Summary      Cancelar reserva (devuelve el stock)
// @Tags         reservations
// @Security     Bearer
// @Param        id  path  string  true  "ID de la reserva"
// @Success      204
// @Failure      410  {object}  dto.ErrorResponse
// @Router       /api/reservations/{id} [delete]
func (h *ReservationHandler) Cancel(c *fiber.Ctx) error {
	if err := h.uc.Cancel(c.UserContext(), c.Params("id"), GetOperator(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Stats godoc
// @Summary      Reservas abiertas
// @Tags         reservations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.ReservationStatsResponse
// @Router       /api/reservations/stats [get]
func (h *ReservationHandler) Stats(c *fiber.Ctx) error {
	s, err := h.uc.Stats(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s)
}
