package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
)

type AppointmentRepo struct {
	db bun.IDB
}

func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

// Create inserts appt. A caller-chosen id that already exists is treated as a replay:
// the stored row is returned when it describes the same request.
func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err == nil {
		return m, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" || appt.ID == uuid.Nil {
		return domain.Appointment{}, err
	}

	existing, getErr := r.Get(ctx, appt.ID)
	if getErr != nil {
		return domain.Appointment{}, err
	}
	if existing.ListingID != appt.ListingID ||
		existing.RequesterID != appt.RequesterID ||
		existing.Note != appt.Note ||
		!existing.ScheduledAt.Equal(appt.ScheduledAt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var m domain.Appointment
	err := r.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return m, nil
}

func (r *AppointmentRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("requester_id = ?", requesterID).
		OrderExpr("scheduled_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListByOwner(ctx context.Context, ownerID string, status *domain.Status) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	q := r.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.OrderExpr("scheduled_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) UpdateIfStatus(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	m := appt
	err := r.db.NewUpdate().
		Model(&m).
		Column("status", "scheduled_at", "proposed_at", "updated_at").
		WherePK().
		Where("status = ?", expected).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, err
	}
	return domain.Appointment{}, r.missOrMismatch(ctx, appt.ID)
}

func (r *AppointmentRepo) DeleteIfStatus(ctx context.Context, id uuid.UUID, expected domain.Status) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.missOrMismatch(ctx, id)
	}
	return nil
}

// missOrMismatch explains why a conditional write touched no row.
func (r *AppointmentRepo) missOrMismatch(ctx context.Context, id uuid.UUID) error {
	exists, err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStatusMismatch
}
