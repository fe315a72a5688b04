package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
)

// RateHandler referencia de la tasa de cambio.
type RateHandler struct {
	ref *pricing.Reference
}

// NewRateHandler construye el handler.
func NewRateHandler(ref *pricing.Reference) *RateHandler {
	return &RateHandler{ref: ref}
}

// Get godoc
// @Summary      Tasa vigente
// @Tags         rate
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  entity.ExchangeRate
// @Router       /api/rate [get]
func (h *RateHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.ref.Current())
}

// SetManual godoc
// @Summary      Fijar tasa manual (admin)
// @Tags         rate
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SetRateRequest  true  "value"
// @Success      200   {object}  entity.ExchangeRate
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Router       /api/rate [put]
func (h *RateHandler) SetManual(c *fiber.Ctx) error {
	var in dto.SetRateRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	rate, err := h.ref.SetManual(c.UserContext(), in.Value, GetOperator(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rate)
}

// ResumeAuto godoc
// @Summary      Volver a la tasa automática (admin)
// @Description  Si la fuente falla la referencia queda degradada y se responde 502.
// @Tags         rate
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  pricing.RefreshResult
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/rate [delete]
func (h *RateHandler) ResumeAuto(c *fiber.Ctx) error {
	res, err := h.ref.ResumeAuto(c.UserContext(), GetOperator(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}
