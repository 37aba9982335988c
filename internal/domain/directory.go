package domain

import "github.com/uptrace/bun"

// Listing and User are owned by the surrounding marketplace; this service only reads them.
type Listing struct {
	bun.BaseModel `bun:"table:listings"`

	ID      string `bun:"id,pk"`
	OwnerID string `bun:"owner_id"`
	Title   string `bun:"title"`
	Address string `bun:"address"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string `bun:"id,pk"`
	Email     string `bun:"email"`
	Name      string `bun:"name"`
	Phone     string `bun:"phone"`
	IsBlocked bool   `bun:"is_blocked"`
}
