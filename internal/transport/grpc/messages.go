package grpc

import (
	"fmt"
	"time"

	"viewings/backend/internal/domain"
)

type Appointment struct {
	ID          string     `json:"id"`
	ListingID   string     `json:"listing_id"`
	RequesterID string     `json:"requester_id"`
	OwnerID     string     `json:"owner_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ProposedAt  *time.Time `json:"proposed_at,omitempty"`
	Note        string     `json:"note,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Slot struct {
	DayOfWeek int16  `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type Transition struct {
	FromStatus string     `json:"from_status,omitempty"`
	ToStatus   string     `json:"to_status"`
	FromTime   *time.Time `json:"from_time,omitempty"`
	ToTime     *time.Time `json:"to_time,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
	ActorID    string     `json:"actor_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

type BookingPolicy struct {
	UserID      string     `json:"user_id"`
	IsBlocked   bool       `json:"is_blocked"`
	BlockReason string     `json:"block_reason,omitempty"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type RequestAppointmentRequest struct {
	ListingID   string     `json:"listing_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Note        string     `json:"note,omitempty"`
}

type AppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
}

type ListMyAppointmentsRequest struct{}

type ListOwnerAppointmentsRequest struct {
	Status string `json:"status,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}

type OwnerActRequest struct {
	AppointmentID string     `json:"appointment_id"`
	Action        string     `json:"action"`
	NewDateTime   *time.Time `json:"new_date_time,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
}

type AppointmentRef struct {
	AppointmentID string `json:"appointment_id"`
}

type CancelAppointmentResponse struct{}

type GetAvailabilityRequest struct {
	ListingID string `json:"listing_id"`
}

type SetAvailabilityRequest struct {
	ListingID string `json:"listing_id"`
	Slots     []Slot `json:"slots"`
}

type AvailabilityResponse struct {
	ListingID string `json:"listing_id"`
	Slots     []Slot `json:"slots"`
}

type GetBookingPolicyRequest struct {
	UserID string `json:"user_id"`
}

type SetBookingPolicyRequest struct {
	UserID    string `json:"user_id"`
	IsBlocked bool   `json:"is_blocked"`
	Reason    string `json:"reason,omitempty"`
}

type BookingPolicyResponse struct {
	Policy BookingPolicy `json:"policy"`
}

type ListTransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

func toAppointment(a domain.Appointment) Appointment {
	return Appointment{
		ID:          a.ID.String(),
		ListingID:   a.ListingID,
		RequesterID: a.RequesterID,
		OwnerID:     a.OwnerID,
		ScheduledAt: a.ScheduledAt.UTC(),
		ProposedAt:  utcPtr(a.ProposedAt),
		Note:        a.Note,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func toAppointments(in []domain.Appointment) []Appointment {
	out := make([]Appointment, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointment(a))
	}
	return out
}

func toSlots(in []domain.AvailabilitySlot) []Slot {
	out := make([]Slot, 0, len(in))
	for _, s := range in {
		out = append(out, Slot{
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime.String(),
			EndTime:   s.EndTime.String(),
		})
	}
	return out
}

func fromSlots(in []Slot) ([]domain.AvailabilitySlot, error) {
	out := make([]domain.AvailabilitySlot, 0, len(in))
	for i, s := range in {
		start, err := domain.ParseClock(s.StartTime)
		if err != nil {
			return nil, fmt.Errorf("slots[%d].start_time: %w", i, err)
		}
		end, err := domain.ParseClock(s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("slots[%d].end_time: %w", i, err)
		}
		out = append(out, domain.AvailabilitySlot{DayOfWeek: s.DayOfWeek, StartTime: start, EndTime: end})
	}
	return out, nil
}

func toTransitions(in []domain.AppointmentTransition) []Transition {
	out := make([]Transition, 0, len(in))
	for _, t := range in {
		out = append(out, Transition{
			FromStatus: string(t.FromStatus),
			ToStatus:   string(t.ToStatus),
			FromTime:   utcPtr(t.FromTime),
			ToTime:     utcPtr(t.ToTime),
			Reason:     t.Reason,
			ActorID:    t.ActorID,
			CreatedAt:  t.CreatedAt.UTC(),
		})
	}
	return out
}

func toPolicy(p domain.BookingPolicy) BookingPolicy {
	out := BookingPolicy{
		UserID:      p.UserID,
		IsBlocked:   p.IsBlocked,
		BlockReason: p.BlockReason,
		UpdatedBy:   p.UpdatedBy,
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = utcPtr(&p.UpdatedAt)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
