package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// BookingPolicy gates whether a user may request appointments. A missing row is
// equivalent to an unblocked policy.
type BookingPolicy struct {
	bun.BaseModel `bun:"table:booking_policies"`

	UserID      string    `bun:"user_id,pk"`
	IsBlocked   bool      `bun:"is_blocked,notnull"`
	BlockReason string    `bun:"block_reason"`
	UpdatedBy   string    `bun:"updated_by,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (p *BookingPolicy) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}
