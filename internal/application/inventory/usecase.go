package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/dto"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// ReservationUseCase libro de reservas de stock: retener, confirmar, cancelar y liberar vencidas.
// Cada operación corre en una transacción con bloqueo de fila sobre el stock (SELECT FOR UPDATE).
// Confirmar y expirar compiten por la misma fila de reserva: el que no la encuentra pierde,
// así el stock nunca se libera dos veces.
type ReservationUseCase struct {
	txRunner     TxRunner
	reservations repository.StockReservationRepository
	guard        PostingGuard
	pub          Publisher
	log          *logger.Logger
	now          func() time.Time
}

// NewReservationUseCase construye el caso de uso. guard y pub pueden ser nil.
func NewReservationUseCase(
	txRunner TxRunner,
	reservations repository.StockReservationRepository,
	guard PostingGuard,
	pub Publisher,
	log *logger.Logger,
) *ReservationUseCase {
	return &ReservationUseCase{
		txRunner:     txRunner,
		reservations: reservations,
		guard:        guard,
		pub:          pub,
		log:          log.Component("reservations"),
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (uc *ReservationUseCase) SetClock(now func() time.Time) { uc.now = now }

// Reserve retiene cantidad del stock disponible mientras la venta está en curso.
func (uc *ReservationUseCase) Reserve(ctx context.Context, op entity.Operator, in dto.ReserveStockRequest) (*dto.ReservationResponse, error) {
	if strings.TrimSpace(in.ProductID) == "" || !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.ErrInvalidInput
	}
	if uc.guard != nil {
		if _, err := uc.guard.EnsureAcceptsPostings(ctx); err != nil {
			return nil, err
		}
	}

	now := uc.now()
	res := &entity.StockReservation{
		ID:         uuid.New().String(),
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		ReservedAt: now,
		ReservedBy: op.UserID,
		SessionTag: in.SessionTag,
	}

	err := uc.txRunner.Run(ctx, func(
		resRepo repository.StockReservationRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
	) error {
		// Bloquea la fila de stock para que dos ventas no retengan las mismas unidades
		stock, err := stockRepo.GetForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if stock.Quantity.LessThan(in.Quantity) {
			return domain.ErrInsufficientStock
		}
		before := stock.Quantity
		stock.Quantity = stock.Quantity.Sub(in.Quantity)
		stock.UpdatedAt = now
		if err := stockRepo.Upsert(ctx, stock); err != nil {
			return err
		}
		if err := resRepo.Create(ctx, res); err != nil {
			return err
		}
		return movRepo.Create(ctx, &entity.InventoryMovement{
			ReservationID: res.ID,
			ProductID:     in.ProductID,
			Type:          entity.MovementTypeReserva,
			Quantity:      in.Quantity.Neg(),
			StockBefore:   before,
			StockAfter:    stock.Quantity,
			Reason:        "Reserva para venta en curso",
			CreatedAt:     now,
			CreatedBy:     op.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	uc.log.Debug().Str("reservation_id", res.ID).Str("product_id", res.ProductID).Str("qty", res.Quantity.String()).Msg("stock reservado")
	out := toReservationResponse(res)
	return &out, nil
}

// Commit liga la reserva a la transacción de venta. Si la reserva ya no existe (la liberó la
// limpieza o se canceló) devuelve ErrReservationGone y la venta debe volver a reservar.
func (uc *ReservationUseCase) Commit(ctx context.Context, id string, op entity.Operator, transactionID string) (*dto.ReservationResponse, error) {
	if id == "" || strings.TrimSpace(transactionID) == "" {
		return nil, domain.ErrInvalidInput
	}
	if uc.guard != nil {
		if _, err := uc.guard.EnsureAcceptsPostings(ctx); err != nil {
			return nil, err
		}
	}

	now := uc.now()
	var linked *entity.StockReservation
	err := uc.txRunner.Run(ctx, func(
		resRepo repository.StockReservationRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
	) error {
		res, err := resRepo.LinkTransaction(ctx, id, transactionID)
		if err != nil {
			return err
		}
		if res == nil {
			cur, err := resRepo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			switch {
			case cur == nil:
				return domain.ErrReservationGone
			case cur.TransactionID != nil && *cur.TransactionID == transactionID:
				// Reintento de la misma venta
				linked = cur
				return nil
			default:
				return fmt.Errorf("%w: reserva ya confirmada por otra transacción", domain.ErrConflict)
			}
		}
		linked = res
		stock, err := stockRepo.Get(ctx, res.ProductID)
		if err != nil {
			return err
		}
		// El stock ya se descontó al reservar; el movimiento deja la traza de la venta.
		return movRepo.Create(ctx, &entity.InventoryMovement{
			TransactionID: transactionID,
			ReservationID: res.ID,
			ProductID:     res.ProductID,
			Type:          entity.MovementTypeVenta,
			Quantity:      res.Quantity.Neg(),
			StockBefore:   stock.Quantity,
			StockAfter:    stock.Quantity,
			Reason:        "Reserva confirmada por venta",
			CreatedAt:     now,
			CreatedBy:     op.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	out := toReservationResponse(linked)
	return &out, nil
}

// Cancel libera una reserva no confirmada y devuelve su cantidad al stock.
func (uc *ReservationUseCase) Cancel(ctx context.Context, id string, op entity.Operator) error {
	now := uc.now()
	return uc.txRunner.Run(ctx, func(
		resRepo repository.StockReservationRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
	) error {
		res, err := resRepo.DeleteOpen(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return domain.ErrReservationGone
		}
		return returnStock(ctx, stockRepo, movRepo, res.ProductID, res.Quantity, res.ID, "Reserva cancelada", op.UserID, now)
	})
}

// ReleaseExpired borra las reservas sin transacción más viejas que grace y devuelve su cantidad
// al stock, todo en una transacción. Mismo resultado si la dispara el cron o un admin.
func (uc *ReservationUseCase) ReleaseExpired(ctx context.Context, grace time.Duration) (*dto.SweepResult, error) {
	if grace <= 0 {
		return nil, domain.ErrInvalidInput
	}
	now := uc.now()
	cutoff := now.Add(-grace)
	result := &dto.SweepResult{UnitsReleased: decimal.Zero, Details: []dto.ReleasedProduct{}}

	err := uc.txRunner.Run(ctx, func(
		resRepo repository.StockReservationRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
	) error {
		expired, err := resRepo.DeleteExpired(ctx, cutoff)
		if err != nil {
			return err
		}
		byProduct := make(map[string]*dto.ReleasedProduct)
		for _, res := range expired {
			p, ok := byProduct[res.ProductID]
			if !ok {
				p = &dto.ReleasedProduct{ProductID: res.ProductID, Units: decimal.Zero}
				byProduct[res.ProductID] = p
			}
			p.Reservations++
			p.Units = p.Units.Add(res.Quantity)
		}
		ids := make([]string, 0, len(byProduct))
		for id := range byProduct {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, productID := range ids {
			p := byProduct[productID]
			reason := fmt.Sprintf("AUTO_LIMPIEZA: %d reservas vencidas", p.Reservations)
			if err := returnStock(ctx, stockRepo, movRepo, productID, p.Units, "", reason, "sistema", now); err != nil {
				return err
			}
			result.Details = append(result.Details, *p)
			result.UnitsReleased = result.UnitsReleased.Add(p.Units)
		}
		result.ReservationsReleased = len(expired)
		result.ProductsAffected = len(ids)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ReservationsReleased > 0 {
		uc.log.Info().
			Int("reservations", result.ReservationsReleased).
			Str("units", result.UnitsReleased.String()).
			Int("products", result.ProductsAffected).
			Msg("reservas vencidas liberadas")
		if uc.pub != nil {
			uc.pub.Broadcast(broadcast.Event{Name: broadcast.EventReservasLimpias, Payload: result, Timestamp: now})
		}
	}
	return result, nil
}

// Stats cantidad de reservas abiertas.
func (uc *ReservationUseCase) Stats(ctx context.Context) (*dto.ReservationStatsResponse, error) {
	n, err := uc.reservations.CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ReservationStatsResponse{Open: n}, nil
}

// returnStock suma qty al stock del producto (fila bloqueada) y registra la LIBERACION.
func returnStock(
	ctx context.Context,
	stockRepo repository.StockRepository,
	movRepo repository.InventoryMovementRepository,
	productID string, qty decimal.Decimal,
	reservationID, reason, userID string,
	now time.Time,
) error {
	stock, err := stockRepo.GetForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	before := stock.Quantity
	stock.Quantity = stock.Quantity.Add(qty)
	stock.UpdatedAt = now
	if err := stockRepo.Upsert(ctx, stock); err != nil {
		return err
	}
	return movRepo.Create(ctx, &entity.InventoryMovement{
		ReservationID: reservationID,
		ProductID:     productID,
		Type:          entity.MovementTypeLiberacion,
		Quantity:      qty,
		StockBefore:   before,
		StockAfter:    stock.Quantity,
		Reason:        reason,
		CreatedAt:     now,
		CreatedBy:     userID,
	})
}

func toReservationResponse(r *entity.StockReservation) dto.ReservationResponse {
	return dto.ReservationResponse{
		ID:            r.ID,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		ReservedAt:    r.ReservedAt,
		TransactionID: r.TransactionID,
		ReservedBy:    r.ReservedBy,
		SessionTag:    r.SessionTag,
	}
}
