package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.RegisterSessionRepository = (*RegisterSessionRepo)(nil)

var sessionColumns = []any{
	"id", "state", "opened_by", "opened_by_name", "opened_at",
	"opening_bs", "opening_usd", "opening_pago_movil", "exchange_rate", "opening_notes",
	"auto_close_at", "requires_physical_count", "responsible_user", "auto_close_reason",
	"closed_by", "closed_at", "counted_bs", "counted_usd", "counted_pago_movil",
	"closing_notes", "updated_at",
}

var activeStates = []any{string(entity.RegisterAbierta), string(entity.RegisterPendienteCierreFisico)}

// RegisterSessionRepo sesiones de caja sobre PostgreSQL. La unicidad de la caja activa la
// garantiza el índice parcial uq_register_sessions_active (ver schema.go).
type RegisterSessionRepo struct {
	q Querier
}

// NewRegisterSessionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRegisterSessionRepository(q Querier) *RegisterSessionRepo {
	return &RegisterSessionRepo{q: q}
}

// Create inserta la sesión; domain.ErrAlreadyOpen si ya hay una activa.
func (r *RegisterSessionRepo) Create(ctx context.Context, s *entity.RegisterSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	query, args, err := dialect.Insert("register_sessions").Rows(sessionRecord(s)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert session: %w", err)
	}
	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyOpen
		}
		return storeError("create register session", err)
	}
	return nil
}

// GetByID obtiene una sesión por ID; nil si no existe.
func (r *RegisterSessionRepo) GetByID(ctx context.Context, id string) (*entity.RegisterSession, error) {
	list, err := r.list(ctx, dialect.From("register_sessions").Select(sessionColumns...).
		Where(goqu.C("id").Eq(id)))
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// FindActive sesión ABIERTA o PENDIENTE_CIERRE_FISICO; nil si no hay.
func (r *RegisterSessionRepo) FindActive(ctx context.Context) (*entity.RegisterSession, error) {
	list, err := r.list(ctx, dialect.From("register_sessions").Select(sessionColumns...).
		Where(goqu.C("state").In(activeStates...)).
		Order(goqu.C("opened_at").Desc()).Limit(1))
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByState sesiones en un estado, más antiguas primero.
func (r *RegisterSessionRepo) ListByState(ctx context.Context, state entity.RegisterState) ([]*entity.RegisterSession, error) {
	return r.list(ctx, dialect.From("register_sessions").Select(sessionColumns...).
		Where(goqu.C("state").Eq(string(state))).
		Order(goqu.C("opened_at").Asc()))
}

// ListOpenedBefore sesiones ABIERTA con opened_at < cutoff.
func (r *RegisterSessionRepo) ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*entity.RegisterSession, error) {
	return r.list(ctx, dialect.From("register_sessions").Select(sessionColumns...).
		Where(
			goqu.C("state").Eq(string(entity.RegisterAbierta)),
			goqu.C("opened_at").Lt(cutoff),
		).
		Order(goqu.C("opened_at").Asc()))
}

// UpdateIfState persiste s solo si la fila sigue en expected. Cero filas afectadas = otro escritor ganó.
func (r *RegisterSessionRepo) UpdateIfState(ctx context.Context, s *entity.RegisterSession, expected entity.RegisterState) (bool, error) {
	s.UpdatedAt = time.Now()
	query, args, err := updateIfStateSQL(s, expected)
	if err != nil {
		return false, fmt.Errorf("build update session: %w", err)
	}
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrAlreadyOpen
		}
		return false, storeError("update register session", err)
	}
	return tag.RowsAffected() == 1, nil
}

func updateIfStateSQL(s *entity.RegisterSession, expected entity.RegisterState) (string, []any, error) {
	rec := sessionRecord(s)
	delete(rec, "id")
	return dialect.Update("register_sessions").Set(rec).
		Where(
			goqu.C("id").Eq(s.ID),
			goqu.C("state").Eq(string(expected)),
		).
		Prepared(true).ToSQL()
}

func sessionRecord(s *entity.RegisterSession) goqu.Record {
	rec := goqu.Record{
		"id":                      s.ID,
		"state":                   string(s.State),
		"opened_by":               s.OpenedBy,
		"opened_by_name":          s.OpenedByName,
		"opened_at":               s.OpenedAt,
		"opening_bs":              s.OpeningAmounts.Bs,
		"opening_usd":             s.OpeningAmounts.Usd,
		"opening_pago_movil":      s.OpeningAmounts.PagoMovil,
		"exchange_rate":           s.ExchangeRate,
		"opening_notes":           s.OpeningNotes,
		"auto_close_at":           nullable(s.AutoCloseAt),
		"requires_physical_count": s.RequiresPhysicalCount,
		"responsible_user":        nullable(s.ResponsibleUser),
		"auto_close_reason":       nullable(s.AutoCloseReason),
		"closed_by":               nullable(s.ClosedBy),
		"closed_at":               nullable(s.ClosedAt),
		"counted_bs":              nil,
		"counted_usd":             nil,
		"counted_pago_movil":      nil,
		"closing_notes":           s.ClosingNotes,
		"updated_at":              s.UpdatedAt,
	}
	if c := s.CountedAmounts; c != nil {
		rec["counted_bs"] = c.Bs
		rec["counted_usd"] = c.Usd
		rec["counted_pago_movil"] = c.PagoMovil
	}
	return rec
}

func (r *RegisterSessionRepo) list(ctx context.Context, ds *goqu.SelectDataset) ([]*entity.RegisterSession, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select sessions: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list register sessions", err)
	}
	defer rows.Close()
	var out []*entity.RegisterSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeError("scan register session", err)
		}
		out = append(out, s)
	}
	return out, storeError("list register sessions", rows.Err())
}

func scanSession(row pgx.Row) (*entity.RegisterSession, error) {
	var s entity.RegisterSession
	var state string
	var cBs, cUsd, cPm decimal.NullDecimal
	err := row.Scan(
		&s.ID, &state, &s.OpenedBy, &s.OpenedByName, &s.OpenedAt,
		&s.OpeningAmounts.Bs, &s.OpeningAmounts.Usd, &s.OpeningAmounts.PagoMovil, &s.ExchangeRate, &s.OpeningNotes,
		&s.AutoCloseAt, &s.RequiresPhysicalCount, &s.ResponsibleUser, &s.AutoCloseReason,
		&s.ClosedBy, &s.ClosedAt, &cBs, &cUsd, &cPm,
		&s.ClosingNotes, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.State = entity.RegisterState(state)
	if cBs.Valid || cUsd.Valid || cPm.Valid {
		s.CountedAmounts = &entity.Amounts{Bs: cBs.Decimal, Usd: cUsd.Decimal, PagoMovil: cPm.Decimal}
	}
	return &s, nil
}
