package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

// MovementQuery consulta del historial de movimientos (solo lectura).
type MovementQuery struct {
	repo repository.InventoryMovementRepository
}

// NewMovementQuery construye la consulta.
func NewMovementQuery(repo repository.InventoryMovementRepository) *MovementQuery {
	return &MovementQuery{repo: repo}
}

// List movimientos de un producto, más recientes primero. from/to son opcionales.
func (q *MovementQuery) List(ctx context.Context, productID string, from, to *time.Time, page dto.PageRequest) (*dto.MovementListResponse, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.ErrInvalidInput
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, domain.ErrInvalidInput
	}
	page.DefaultPage()
	if page.Limit > 100 {
		page.Limit = 100
	}
	list, err := q.repo.ListByProduct(ctx, productID, from, to, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := &dto.MovementListResponse{
		Items: make([]dto.MovementResponse, 0, len(list)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, m := range list {
		out.Items = append(out.Items, toMovementResponse(m))
	}
	return out, nil
}

func toMovementResponse(m *entity.InventoryMovement) dto.MovementResponse {
	return dto.MovementResponse{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		ReservationID: m.ReservationID,
		ProductID:     m.ProductID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		StockBefore:   m.StockBefore,
		StockAfter:    m.StockAfter,
		Reason:        m.Reason,
		CreatedAt:     m.CreatedAt,
		CreatedBy:     m.CreatedBy,
	}
}
