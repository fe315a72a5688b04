package broadcast

// Nombres de eventos push que escuchan los clientes.
const (
	EventLock            = "bloquear_usuarios"
	EventLockDiferencia  = "bloquear_usuarios_diferencia"
	EventUnlock          = "desbloquear_usuarios"
	EventAutoCierre      = "auto_cierre_ejecutado"
	EventCajaAbierta     = "caja_abierta"
	EventCajaCerrada     = "caja_cerrada"
	EventPendienteResuel = "caja_pendiente_resuelta"
	EventReservasLimpias = "reservas_auto_limpiadas"
	EventTasaAuto        = "tasa_auto_updated"
	EventTasaManual      = "tasa_manual_updated"
	EventForceLogout     = "force_logout"
)

// CoalesceKeyLock clave compartida por los eventos de bloqueo: solo importa el más reciente.
const CoalesceKeyLock = "lock"
