package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AppointmentTransition is append-only. AppointmentID is not a foreign key so the
// history of a cancelled (deleted) appointment stays readable.
type AppointmentTransition struct {
	bun.BaseModel `bun:"table:appointment_transitions"`

	ID            int64      `bun:"id,pk,autoincrement"`
	AppointmentID uuid.UUID  `bun:"appointment_id,notnull,type:uuid"`
	FromStatus    Status     `bun:"from_status,nullzero"`
	ToStatus      Status     `bun:"to_status,notnull"`
	FromTime      *time.Time `bun:"from_time"`
	ToTime        *time.Time `bun:"to_time"`
	Reason        *string    `bun:"reason"`
	ActorID       string     `bun:"actor_id,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
}

func (t *AppointmentTransition) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

const (
	AuditBlockAppointments   = "BLOCK_APPOINTMENTS"
	AuditUnblockAppointments = "UNBLOCK_APPOINTMENTS"
)

type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events"`

	ID        int64          `bun:"id,pk,autoincrement"`
	EventType string         `bun:"event_type,notnull"`
	ActorID   string         `bun:"actor_id,notnull"`
	SubjectID string         `bun:"subject_id,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

func (e *AuditEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
