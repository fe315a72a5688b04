// Package ratesource fuentes externas de la tasa de cambio.
package ratesource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/application/pricing"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
)

// DefaultDolarAPIURL tasa oficial publicada por DolarAPI.
const DefaultDolarAPIURL = "https://ve.dolarapi.com/v1/dolares/oficial"

var _ pricing.RateSource = (*DolarAPISource)(nil)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type dolarAPIQuote struct {
	Fuente             string          `json:"fuente"`
	Nombre             string          `json:"nombre"`
	Promedio           decimal.Decimal `json:"promedio"`
	FechaActualizacion string          `json:"fechaActualizacion"`
}

// DolarAPISource consulta la tasa oficial (campo promedio) con un tope de tiempo por consulta.
type DolarAPISource struct {
	url     string
	timeout time.Duration
}

// NewDolarAPISource url vacía usa DefaultDolarAPIURL.
func NewDolarAPISource(url string, timeout time.Duration) *DolarAPISource {
	if url == "" {
		url = DefaultDolarAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DolarAPISource{url: url, timeout: timeout}
}

// Name identifica la fuente en logs y respuestas.
func (s *DolarAPISource) Name() string { return "dolarapi" }

// Fetch devuelve la tasa. Cualquier falla (incluido timeout o ctx cancelado) es domain.ErrExternalSource.
func (s *DolarAPISource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrExternalSource, context.DeadlineExceeded)
	}

	type result struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan result, 1)
	go func() {
		a := fiber.Get(s.url)
		a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
		a.Timeout(timeout)
		code, body, errs := a.Bytes()
		done <- result{code, body, errs}
	}()

	var res result
	select {
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrExternalSource, ctx.Err())
	case res = <-done:
	}

	if len(res.errs) > 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrExternalSource, errors.Join(res.errs...))
	}
	if res.code != fiber.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", domain.ErrExternalSource, res.code)
	}
	var q dolarAPIQuote
	if err := json.Unmarshal(res.body, &q); err != nil {
		return decimal.Zero, fmt.Errorf("%w: respuesta inválida: %v", domain.ErrExternalSource, err)
	}
	if !q.Promedio.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: promedio no positivo", domain.ErrExternalSource)
	}
	return q.Promedio, nil
}
