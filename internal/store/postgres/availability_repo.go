package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"viewings/backend/internal/domain"
)

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) ListSlots(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error) {
	return listSlots(ctx, r.db, listingID)
}

// ReplaceSlots swaps the whole slot set of a listing. Concurrent replacements for the
// same listing are serialized; the last one to commit wins.
func (r *AvailabilityRepo) ReplaceSlots(ctx context.Context, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	var out []domain.AvailabilitySlot
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockKey(ctx, tx, "availability:"+listingID); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*domain.AvailabilitySlot)(nil)).
			Where("listing_id = ?", listingID).
			Exec(ctx)
		if err != nil {
			return err
		}

		if len(slots) > 0 {
			rows := make([]domain.AvailabilitySlot, len(slots))
			for i, s := range slots {
				s.ListingID = listingID
				rows[i] = s
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return err
			}
		}

		got, err := listSlots(ctx, tx, listingID)
		if err != nil {
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listSlots(ctx context.Context, db bun.IDB, listingID string) ([]domain.AvailabilitySlot, error) {
	rows := make([]domain.AvailabilitySlot, 0)
	err := db.NewSelect().
		Model(&rows).
		Where("listing_id = ?", listingID).
		OrderExpr("day_of_week ASC, start_minute ASC, end_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
