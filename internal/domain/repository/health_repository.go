package repository

import "context"

// HealthRepository consultas triviales para el chequeo de vida.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
