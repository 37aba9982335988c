package store

import (
	"context"

	"github.com/google/uuid"

	"viewings/backend/internal/domain"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListByRequester(ctx context.Context, requesterID string) ([]domain.Appointment, error)
	ListByOwner(ctx context.Context, ownerID string, status *domain.Status) ([]domain.Appointment, error)

	// UpdateIfStatus persists status, scheduled_at and proposed_at of appt only if the
	// stored status still equals expected.
	UpdateIfStatus(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error)
	DeleteIfStatus(ctx context.Context, id uuid.UUID, expected domain.Status) error
}

type AvailabilityRepository interface {
	ListSlots(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error)
	ReplaceSlots(ctx context.Context, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error)
}

type PolicyRepository interface {
	GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error)
	UpsertPolicy(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error)
}

type HistoryRepository interface {
	AppendTransition(ctx context.Context, t domain.AppointmentTransition) error
	ListTransitions(ctx context.Context, appointmentID uuid.UUID) ([]domain.AppointmentTransition, error)
}

type AuditRepository interface {
	RecordEvent(ctx context.Context, e domain.AuditEvent) error
}

type Directory interface {
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
}
