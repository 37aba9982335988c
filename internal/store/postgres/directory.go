package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"viewings/backend/internal/domain"
)

// Directory reads listing and user facts from the marketplace's tables.
type Directory struct {
	db bun.IDB
}

func NewDirectory(db bun.IDB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	var m domain.Listing
	err := d.db.NewSelect().
		Model(&m).
		Where("id = ?", listingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Listing{}, notFound(err)
	}
	return m, nil
}

func (d *Directory) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var m domain.User
	err := d.db.NewSelect().
		Model(&m).
		Where("id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err)
	}
	return m, nil
}
