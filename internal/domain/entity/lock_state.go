package entity

import "time"

// LockType motivo del bloqueo de cierre.
type LockType string

const (
	LockTypeArqueo     LockType = "ARQUEO"
	LockTypeCierre     LockType = "CIERRE"
	LockTypeDiferencia LockType = "DIFERENCIA"
)

// Valid indica si el tipo es uno de los conocidos.
func (t LockType) Valid() bool {
	switch t {
	case LockTypeArqueo, LockTypeCierre, LockTypeDiferencia:
		return true
	}
	return false
}

// LockState estado del bloqueo global mientras un operador cierra la caja.
// El valor cero es el estado desbloqueado.
type LockState struct {
	Locked      bool       `json:"locked"`
	Reason      string     `json:"reason"`
	OwnerUser   string     `json:"ownerUser"`
	OwnerName   string     `json:"ownerName,omitempty"`
	LockType    LockType   `json:"lockType,omitempty"`
	Timestamp   *time.Time `json:"timestamp"`
	Differences *Amounts   `json:"differences"`
}

// Blocks indica si el bloqueo impide acciones de escritura al usuario dado.
// El dueño nunca se bloquea a sí mismo.
func (s LockState) Blocks(userID string) bool {
	return s.Locked && s.OwnerUser != userID
}

// LockRequest datos para tomar el bloqueo.
type LockRequest struct {
	Reason      string
	OwnerUser   string
	OwnerName   string
	LockType    LockType
	Differences *Amounts
}
