package memory

import (
	"context"

	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

// TxRunner ejecuta callbacks sobre una copia del estado; solo si fn termina sin error la copia
// reemplaza al estado publicado. Las transacciones se serializan con el mutex del store.
type TxRunner struct {
	s *Store
}

// NewTxRunner construye el runner sobre el store.
func NewTxRunner(s *Store) *TxRunner {
	return &TxRunner{s: s}
}

// Run inicia la "transacción", ejecuta fn con repos atados a la copia y publica o descarta.
func (r *TxRunner) Run(ctx context.Context, fn func(
	resRepo repository.StockReservationRepository,
	stockRepo repository.StockRepository,
	movRepo repository.InventoryMovementRepository,
) error) error {
	if err := r.s.check(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	work := r.s.data.clone()
	b := txBinding{s: r.s, st: work}
	if err := fn(&StockReservationRepo{b: b}, &StockRepo{b: b}, &InventoryMovementRepo{b: b}); err != nil {
		return err
	}
	r.s.data = work
	return nil
}
