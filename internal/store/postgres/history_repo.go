package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"viewings/backend/internal/domain"
)

type HistoryRepo struct {
	db bun.IDB
}

func NewHistoryRepo(db bun.IDB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) AppendTransition(ctx context.Context, t domain.AppointmentTransition) error {
	m := t
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	return err
}

func (r *HistoryRepo) ListTransitions(ctx context.Context, appointmentID uuid.UUID) ([]domain.AppointmentTransition, error) {
	rows := make([]domain.AppointmentTransition, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("appointment_id = ?", appointmentID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *HistoryRepo) RecordEvent(ctx context.Context, e domain.AuditEvent) error {
	m := e
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	return err
}
