package repository

import (
	"context"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

// RegisterSessionRepository puerto de persistencia de las sesiones de caja.
type RegisterSessionRepository interface {
	// Create inserta una sesión; domain.ErrAlreadyOpen si ya hay una activa.
	Create(ctx context.Context, s *entity.RegisterSession) error
	GetByID(ctx context.Context, id string) (*entity.RegisterSession, error)
	// FindActive devuelve la sesión ABIERTA o PENDIENTE_CIERRE_FISICO, o nil.
	FindActive(ctx context.Context) (*entity.RegisterSession, error)
	ListByState(ctx context.Context, state entity.RegisterState) ([]*entity.RegisterSession, error)
	// ListOpenedBefore sesiones ABIERTA con opened_at < cutoff.
	ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*entity.RegisterSession, error)
	// UpdateIfState persiste s solo si la fila sigue en expected; false si otro escritor ganó.
	UpdateIfState(ctx context.Context, s *entity.RegisterSession, expected entity.RegisterState) (bool, error)
}
