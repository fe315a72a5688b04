package entity

// Roles válidos de operador.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleCajero     = "cajero"
)

// Operator identidad del operador que ejecuta una acción (viene del token; la gestión de usuarios es externa).
type Operator struct {
	UserID string
	Name   string
	Role   string
}

// IsAdmin indica si el operador puede hacer overrides administrativos.
func (o Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}

// DisplayName nombre para mensajes; cae al ID si el token no trae nombre.
func (o Operator) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.UserID
}
