package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"viewings/backend/internal/domain"
)

type PolicyRepo struct {
	db bun.IDB
}

func NewPolicyRepo(db bun.IDB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

func (r *PolicyRepo) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	var m domain.BookingPolicy
	err := r.db.NewSelect().
		Model(&m).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.BookingPolicy{}, notFound(err)
	}
	return m, nil
}

func (r *PolicyRepo) UpsertPolicy(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
	m := p
	err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (user_id) DO UPDATE").
		Set("is_blocked = EXCLUDED.is_blocked").
		Set("block_reason = EXCLUDED.block_reason").
		Set("updated_by = EXCLUDED.updated_by").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.BookingPolicy{}, err
	}
	return m, nil
}
