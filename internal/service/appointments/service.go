package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"viewings/backend/internal/apperr"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
	"viewings/backend/internal/telemetry"
)

type BookingGate interface {
	IsBlocked(ctx context.Context, userID string) (bool, string, error)
}

type SlotValidator interface {
	IsBookable(ctx context.Context, listingID string, at time.Time) (bool, error)
}

// Service is the appointment state machine. Every write is a compare-and-swap on the
// status it read, so a concurrent change surfaces as INVALID_STATE.
type Service struct {
	repo          store.AppointmentRepository
	history       store.HistoryRepository
	gate          BookingGate
	slots         SlotValidator
	logger        *slog.Logger
	auditFailures metric.Int64Counter
}

func NewService(repo store.AppointmentRepository, history store.HistoryRepository, gate BookingGate, slots SlotValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		history:       history,
		gate:          gate,
		slots:         slots,
		logger:        logger.With("component", "appointments"),
		auditFailures: telemetry.AuditFailures(),
	}
}

type CreateInput struct {
	RequesterID    string
	Listing        domain.Listing
	ScheduledAt    time.Time
	Note           string
	IdempotencyKey string
}

// Create inserts a PENDING appointment. replayed is true when IdempotencyKey matched an
// earlier identical request; the stored appointment is returned and nothing is written.
func (s *Service) Create(ctx context.Context, in CreateInput) (appt domain.Appointment, replayed bool, err error) {
	if in.RequesterID == "" {
		return domain.Appointment{}, false, apperr.InvalidArgument("requester id is required")
	}
	if in.ScheduledAt.IsZero() {
		return domain.Appointment{}, false, apperr.InvalidArgument("scheduled_at is required")
	}
	if in.RequesterID == in.Listing.OwnerID {
		return domain.Appointment{}, false, apperr.Forbidden("cannot request a viewing of your own listing")
	}

	at := in.ScheduledAt.UTC()

	// Replays skip the gate and slot checks.
	var id uuid.UUID
	if in.IdempotencyKey != "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("viewings:request_appointment:"+in.RequesterID+":"+in.IdempotencyKey))
		existing, err := s.repo.Get(ctx, id)
		switch {
		case err == nil:
			if existing.ListingID != in.Listing.ID || existing.Note != in.Note || !existing.ScheduledAt.Equal(at) {
				return domain.Appointment{}, false, apperr.InvalidArgument("idempotency key was already used for a different request")
			}
			return existing, true, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, false, fmt.Errorf("get appointment: %w", err)
		}
	}

	blocked, reason, err := s.gate.IsBlocked(ctx, in.RequesterID)
	if err != nil {
		return domain.Appointment{}, false, err
	}
	if blocked {
		msg := "you are not allowed to request appointments"
		if reason != "" {
			msg += ": " + reason
		}
		return domain.Appointment{}, false, apperr.Forbidden(msg)
	}

	ok, err := s.slots.IsBookable(ctx, in.Listing.ID, at)
	if err != nil {
		return domain.Appointment{}, false, fmt.Errorf("check availability: %w", err)
	}
	if !ok {
		return domain.Appointment{}, false, apperr.InvalidTime("the requested time is outside the listing's availability")
	}

	next := domain.Appointment{
		ID:          id,
		ListingID:   in.Listing.ID,
		RequesterID: in.RequesterID,
		OwnerID:     in.Listing.OwnerID,
		ScheduledAt: at,
		Note:        in.Note,
		Status:      domain.StatusPending,
	}

	created, err := s.repo.Create(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrIdempotencyConflict) {
			return domain.Appointment{}, false, apperr.InvalidArgument("idempotency key was already used for a different request")
		}
		return domain.Appointment{}, false, fmt.Errorf("create appointment: %w", err)
	}

	s.record(ctx, domain.AppointmentTransition{
		AppointmentID: created.ID,
		ToStatus:      domain.StatusPending,
		ToTime:        timePtr(created.ScheduledAt),
		ActorID:       in.RequesterID,
	})
	return created, false, nil
}

type OwnerActInput struct {
	OwnerID       string
	AppointmentID uuid.UUID
	Action        domain.Action
	NewTime       *time.Time
	Reason        *string
}

func (s *Service) OwnerAct(ctx context.Context, in OwnerActInput) (domain.Appointment, error) {
	in.Reason = TrimReason(in.Reason)
	appt, err := s.load(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.OwnerID != in.OwnerID {
		return domain.Appointment{}, apperr.Forbidden("only the listing owner can act on this appointment")
	}
	if _, ok := domain.ParseOwnerAction(string(in.Action)); !ok {
		return domain.Appointment{}, apperr.Newf(apperr.KindInvalidArgument, "unknown action %q", in.Action)
	}
	if in.Action == domain.ActionReschedule && (in.NewTime == nil || in.NewTime.IsZero()) {
		return domain.Appointment{}, apperr.InvalidArgument("new_date_time is required to reschedule")
	}

	to, ok := domain.NextStatus(appt.Status, in.Action)
	if !ok {
		return domain.Appointment{}, apperr.Newf(apperr.KindInvalidState, "cannot %s an appointment that is %s", actionVerb(in.Action), appt.Status)
	}

	from := appt.Status
	next := appt
	next.Status = to
	t := domain.AppointmentTransition{
		AppointmentID: appt.ID,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        in.Reason,
		ActorID:       in.OwnerID,
	}
	if in.Action == domain.ActionReschedule {
		proposed := in.NewTime.UTC()
		next.ProposedAt = &proposed
		t.FromTime = timePtr(appt.ScheduledAt)
		t.ToTime = timePtr(proposed)
	}

	updated, err := s.swap(ctx, next, from)
	if err != nil {
		return domain.Appointment{}, err
	}
	s.record(ctx, t)
	return updated, nil
}

func (s *Service) ConfirmReschedule(ctx context.Context, requesterID string, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.RequesterID != requesterID {
		return domain.Appointment{}, apperr.Forbidden("only the requester can confirm a reschedule")
	}
	to, ok := domain.NextStatus(appt.Status, domain.ActionConfirm)
	if !ok || appt.ProposedAt == nil {
		return domain.Appointment{}, apperr.InvalidState("no reschedule is awaiting confirmation")
	}

	from := appt.Status
	next := appt
	next.ScheduledAt = appt.ProposedAt.UTC()
	next.ProposedAt = nil
	next.Status = to

	updated, err := s.swap(ctx, next, from)
	if err != nil {
		return domain.Appointment{}, err
	}
	s.record(ctx, domain.AppointmentTransition{
		AppointmentID: appt.ID,
		FromStatus:    from,
		ToStatus:      to,
		FromTime:      timePtr(appt.ScheduledAt),
		ToTime:        timePtr(updated.ScheduledAt),
		ActorID:       requesterID,
	})
	return updated, nil
}

// Cancel deletes the appointment and returns it as it was before deletion.
func (s *Service) Cancel(ctx context.Context, requesterID string, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.RequesterID != requesterID {
		return domain.Appointment{}, apperr.Forbidden("only the requester can cancel this appointment")
	}

	if err := s.repo.DeleteIfStatus(ctx, appt.ID, appt.Status); err != nil {
		return domain.Appointment{}, mapWriteError(err, "delete appointment")
	}
	s.record(ctx, domain.AppointmentTransition{
		AppointmentID: appt.ID,
		FromStatus:    appt.Status,
		ToStatus:      domain.StatusCancelled,
		FromTime:      timePtr(appt.ScheduledAt),
		ActorID:       requesterID,
	})
	return appt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) ListForRequester(ctx context.Context, requesterID string) ([]domain.Appointment, error) {
	if requesterID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	return s.repo.ListByRequester(ctx, requesterID)
}

func (s *Service) ListForOwner(ctx context.Context, ownerID string, status *domain.Status) ([]domain.Appointment, error) {
	if ownerID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	return s.repo.ListByOwner(ctx, ownerID, status)
}

// ListTransitions returns the history of a live appointment to its requester or owner.
func (s *Service) ListTransitions(ctx context.Context, actorID string, id uuid.UUID) ([]domain.AppointmentTransition, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != appt.RequesterID && actorID != appt.OwnerID {
		return nil, apperr.Forbidden("not a participant of this appointment")
	}
	return s.history.ListTransitions(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, apperr.InvalidArgument("appointment_id is required")
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, apperr.NotFound("appointment not found")
		}
		return domain.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) swap(ctx context.Context, next domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	updated, err := s.repo.UpdateIfStatus(ctx, next, expected)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err, "update appointment")
	}
	return updated, nil
}

// record appends t after the write it describes has committed. Failures are reported but
// do not undo the transition.
func (s *Service) record(ctx context.Context, t domain.AppointmentTransition) {
	if err := s.history.AppendTransition(ctx, t); err != nil {
		s.auditFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("to_status", string(t.ToStatus))))
		s.logger.Error("transition not recorded",
			"appointment_id", t.AppointmentID.String(),
			"from", string(t.FromStatus),
			"to", string(t.ToStatus),
			"err", err,
		)
	}
}

func mapWriteError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("appointment not found")
	case errors.Is(err, store.ErrStatusMismatch):
		return apperr.InvalidState("appointment was changed by someone else; reload and try again")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func actionVerb(a domain.Action) string {
	switch a {
	case domain.ActionApprove:
		return "approve"
	case domain.ActionReject:
		return "reject"
	case domain.ActionReschedule:
		return "reschedule"
	}
	return string(a)
}

// TrimReason trims an owner's reason; a blank reason becomes nil.
func TrimReason(r *string) *string {
	if r == nil {
		return nil
	}
	v := strings.TrimSpace(*r)
	if v == "" {
		return nil
	}
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
