package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusRescheduleProposed Status = "RESCHEDULE_PROPOSED"

	// StatusCancelled never appears on a stored appointment. Cancellation deletes the
	// row and the history keeps it as the final transition.
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusRescheduleProposed:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Action string

const (
	ActionApprove    Action = "APPROVE"
	ActionReject     Action = "REJECT"
	ActionReschedule Action = "RESCHEDULE"
	ActionConfirm    Action = "CONFIRM"
)

func ParseOwnerAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject, ActionReschedule:
		return a, true
	}
	return "", false
}

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove:    StatusApproved,
		ActionReject:     StatusRejected,
		ActionReschedule: StatusRescheduleProposed,
	},
	StatusRescheduleProposed: {
		ActionConfirm: StatusApproved,
	},
}

// NextStatus reports the status reached by applying action in status from.
func NextStatus(from Status, action Action) (Status, bool) {
	next, ok := transitions[from][action]
	return next, ok
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	ListingID   string     `bun:"listing_id,notnull"`
	RequesterID string     `bun:"requester_id,notnull"`
	OwnerID     string     `bun:"owner_id,notnull"`
	ScheduledAt time.Time  `bun:"scheduled_at,notnull"`
	ProposedAt  *time.Time `bun:"proposed_at"`
	Note        string     `bun:"note"`
	Status      Status     `bun:"status,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
