package domain

import (
	"errors"
	"fmt"
	"time"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")

	ErrAlreadyLocked    = errors.New("el sistema ya está bloqueado por otro operador")
	ErrInvalidState     = errors.New("transición de estado no permitida")
	ErrAlreadyOpen      = errors.New("ya hay una caja abierta")
	ErrNoOpenRegister   = errors.New("no hay una caja abierta")
	ErrExternalSource   = errors.New("fuente externa no disponible")
	ErrStoreUnavailable = errors.New("almacenamiento no disponible")
	ErrLockWaitTimeout  = errors.New("tiempo de espera agotado esperando el desbloqueo")
	ErrReservationGone  = errors.New("la reserva ya no existe")
	ErrJobNotFound      = errors.New("tarea no encontrada")
)

// AlreadyLockedError detalla quién tiene el bloqueo; errors.Is(err, ErrAlreadyLocked) es true.
type AlreadyLockedError struct {
	Owner    string
	LockType string
	Since    time.Time
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("cierre en progreso por %s", e.Owner)
}

func (e *AlreadyLockedError) Is(target error) bool {
	return target == ErrAlreadyLocked
}
