package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"viewings/backend/internal/apperr"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/notify"
	"viewings/backend/internal/service/appointments"
	"viewings/backend/internal/service/availability"
	"viewings/backend/internal/service/policy"
	"viewings/backend/internal/store"
	"viewings/backend/internal/telemetry"
)

type Config struct {
	NoteMaxLength  int
	InviteDuration time.Duration
}

// Service composes availability, booking policy and the appointment state machine into
// the public use cases. Notifications go out after the state change has committed.
type Service struct {
	dir      store.Directory
	avail    *availability.Service
	gate     *policy.Gate
	appts    *appointments.Service
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(dir store.Directory, avail *availability.Service, gate *policy.Gate, appts *appointments.Service, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.NoteMaxLength <= 0 {
		cfg.NoteMaxLength = 500
	}
	if cfg.InviteDuration <= 0 {
		cfg.InviteDuration = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dir:      dir,
		avail:    avail,
		gate:     gate,
		appts:    appts,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "scheduling"),
		tracer:   telemetry.Tracer(),
	}
}

type RequestInput struct {
	RequesterID    string
	ListingID      string
	ScheduledAt    time.Time
	Note           string
	IdempotencyKey string
}

func (s *Service) RequestAppointment(ctx context.Context, in RequestInput) (appt domain.Appointment, err error) {
	ctx, span := s.start(ctx, "RequestAppointment", attribute.String("listing.id", in.ListingID))
	defer func() { endSpan(span, err) }()

	listingID := strings.TrimSpace(in.ListingID)
	if listingID == "" {
		return domain.Appointment{}, apperr.InvalidArgument("listing_id is required")
	}
	note := strings.TrimSpace(in.Note)
	if n := len([]rune(note)); n > s.cfg.NoteMaxLength {
		return domain.Appointment{}, apperr.Newf(apperr.KindInvalidArgument, "note must be at most %d characters", s.cfg.NoteMaxLength)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 256 {
		return domain.Appointment{}, apperr.InvalidArgument("idempotency_key too long")
	}

	listing, err := s.listing(ctx, listingID)
	if err != nil {
		return domain.Appointment{}, err
	}

	appt, replayed, err := s.appts.Create(ctx, appointments.CreateInput{
		RequesterID:    in.RequesterID,
		Listing:        listing,
		ScheduledAt:    in.ScheduledAt,
		Note:           note,
		IdempotencyKey: key,
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	if !replayed {
		s.notifyRequestReceived(ctx, appt, listing)
	}
	return appt, nil
}

func (s *Service) ListForRequester(ctx context.Context, userID string) ([]domain.Appointment, error) {
	return s.appts.ListForRequester(ctx, userID)
}

func (s *Service) ListForOwner(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error) {
	return s.appts.ListForOwner(ctx, userID, status)
}

func (s *Service) OwnerAct(ctx context.Context, in appointments.OwnerActInput) (appt domain.Appointment, err error) {
	ctx, span := s.start(ctx, "OwnerAct",
		attribute.String("appointment.id", in.AppointmentID.String()),
		attribute.String("appointment.action", string(in.Action)),
	)
	defer func() { endSpan(span, err) }()

	in.Reason = appointments.TrimReason(in.Reason)
	appt, err = s.appts.OwnerAct(ctx, in)
	if err != nil {
		return domain.Appointment{}, err
	}

	reason := ""
	if in.Reason != nil {
		reason = *in.Reason
	}
	switch in.Action {
	case domain.ActionApprove:
		s.notifyApproved(ctx, appt)
	case domain.ActionReject:
		s.notifyRequester(ctx, appt, notify.TemplateRejected, reason)
	case domain.ActionReschedule:
		s.notifyRequester(ctx, appt, notify.TemplateRescheduleProposed, reason)
	}
	return appt, nil
}

func (s *Service) ConfirmReschedule(ctx context.Context, requesterID string, id uuid.UUID) (appt domain.Appointment, err error) {
	ctx, span := s.start(ctx, "ConfirmReschedule", attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	appt, err = s.appts.ConfirmReschedule(ctx, requesterID, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	s.notifyRescheduleConfirmed(ctx, appt)
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, requesterID string, id uuid.UUID) (err error) {
	ctx, span := s.start(ctx, "Cancel", attribute.String("appointment.id", id.String()))
	defer func() { endSpan(span, err) }()

	appt, err := s.appts.Cancel(ctx, requesterID, id)
	if err != nil {
		return err
	}
	s.notifyCancelled(ctx, appt)
	return nil
}

func (s *Service) ListTransitions(ctx context.Context, actorID string, id uuid.UUID) ([]domain.AppointmentTransition, error) {
	return s.appts.ListTransitions(ctx, actorID, id)
}

func (s *Service) GetAvailability(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error) {
	return s.avail.Get(ctx, listingID)
}

func (s *Service) SetAvailability(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	return s.avail.Set(ctx, ownerID, listingID, slots)
}

func (s *Service) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	return s.gate.GetPolicy(ctx, userID)
}

func (s *Service) SetPolicy(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error) {
	return s.gate.SetPolicy(ctx, adminID, userID, blocked, reason)
}

func (s *Service) listing(ctx context.Context, listingID string) (domain.Listing, error) {
	l, err := s.dir.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Listing{}, apperr.NotFound("listing not found")
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if kind := apperr.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
