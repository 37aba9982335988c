package grpc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"viewings/backend/internal/domain"
	"viewings/backend/internal/service/appointments"
	"viewings/backend/internal/service/scheduling"
)

type schedulingService interface {
	RequestAppointment(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error)
	ListForRequester(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListForOwner(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error)
	OwnerAct(ctx context.Context, in appointments.OwnerActInput) (domain.Appointment, error)
	ConfirmReschedule(ctx context.Context, requesterID string, id uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, requesterID string, id uuid.UUID) error
	ListTransitions(ctx context.Context, actorID string, id uuid.UUID) ([]domain.AppointmentTransition, error)
	GetAvailability(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error)
	SetAvailability(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error)
	GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error)
	SetPolicy(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error)
}

type Server struct {
	svc schedulingService
	log *slog.Logger
}

var _ SchedulingServer = (*Server)(nil)

func NewServer(svc schedulingService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *Server) RequestAppointment(ctx context.Context, req *RequestAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RequestAppointment"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt == nil {
		log.Warn("invalid request", slog.String("reason", "missing_time"), slog.String("actor_id", actor.ID))
		return nil, invalidArgument("scheduled_at is required")
	}

	appt, err := s.svc.RequestAppointment(ctx, scheduling.RequestInput{
		RequesterID:    actor.ID,
		ListingID:      req.ListingID,
		ScheduledAt:    *req.ScheduledAt,
		Note:           req.Note,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(log, err, "appointment request failed", slog.String("actor_id", actor.ID), slog.String("listing_id", req.ListingID))
	}

	log.Info("appointment requested",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("listing_id", appt.ListingID),
		slog.String("requester_id", appt.RequesterID),
		slog.Time("scheduled_at", appt.ScheduledAt),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) ListMyAppointments(ctx context.Context, req *ListMyAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListMyAppointments"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}

	appts, err := s.svc.ListForRequester(ctx, actor.ID)
	if err != nil {
		return nil, s.fail(log, err, "appointments list failed", slog.String("actor_id", actor.ID))
	}
	log.Debug("appointments listed", slog.String("actor_id", actor.ID), slog.Int("count", len(appts)))
	return &ListAppointmentsResponse{Appointments: toAppointments(appts)}, nil
}

func (s *Server) ListOwnerAppointments(ctx context.Context, req *ListOwnerAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListOwnerAppointments"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}

	var filter *domain.Status
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			log.Warn("invalid request", slog.String("reason", "unknown_status"), slog.String("status", req.Status))
			return nil, invalidArgument("unknown status filter")
		}
		filter = &st
	}

	appts, err := s.svc.ListForOwner(ctx, actor.ID, filter)
	if err != nil {
		return nil, s.fail(log, err, "owner appointments list failed", slog.String("actor_id", actor.ID))
	}
	log.Debug("owner appointments listed", slog.String("actor_id", actor.ID), slog.Int("count", len(appts)))
	return &ListAppointmentsResponse{Appointments: toAppointments(appts)}, nil
}

func (s *Server) OwnerAct(ctx context.Context, req *OwnerActRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "OwnerAct"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseAppointmentID(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", actor.ID))
		return nil, err
	}
	action, ok := domain.ParseOwnerAction(strings.ToUpper(strings.TrimSpace(req.Action)))
	if !ok {
		log.Warn("invalid request", slog.String("reason", "unknown_action"), slog.String("action", req.Action))
		return nil, invalidArgument("action must be APPROVE, REJECT or RESCHEDULE")
	}

	appt, err := s.svc.OwnerAct(ctx, appointments.OwnerActInput{
		OwnerID:       actor.ID,
		AppointmentID: id,
		Action:        action,
		NewTime:       req.NewDateTime,
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, s.fail(log, err, "owner action failed",
			slog.String("appointment_id", id.String()), slog.String("action", string(action)), slog.String("actor_id", actor.ID))
	}

	log.Info("owner action applied",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("action", string(action)),
		slog.String("status", string(appt.Status)),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) ConfirmReschedule(ctx context.Context, req *AppointmentRef) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ConfirmReschedule"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseAppointmentID(req.AppointmentID)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.ConfirmReschedule(ctx, actor.ID, id)
	if err != nil {
		return nil, s.fail(log, err, "reschedule confirmation failed", slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	}
	log.Info("reschedule confirmed", slog.String("appointment_id", appt.ID.String()), slog.Time("scheduled_at", appt.ScheduledAt))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *Server) CancelAppointment(ctx context.Context, req *AppointmentRef) (*CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseAppointmentID(req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if err := s.svc.Cancel(ctx, actor.ID, id); err != nil {
		return nil, s.fail(log, err, "appointment cancel failed", slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	}
	log.Info("appointment cancelled", slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	return &CancelAppointmentResponse{}, nil
}

// GetAvailability is public and does not require an actor.
func (s *Server) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	slots, err := s.svc.GetAvailability(ctx, req.ListingID)
	if err != nil {
		return nil, s.fail(log, err, "availability read failed", slog.String("listing_id", req.ListingID))
	}
	return &AvailabilityResponse{ListingID: req.ListingID, Slots: toSlots(slots)}, nil
}

func (s *Server) SetAvailability(ctx context.Context, req *SetAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "SetAvailability"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	slots, err := fromSlots(req.Slots)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_slot"), slog.Any("err", err))
		return nil, invalidArgument(err.Error())
	}

	saved, err := s.svc.SetAvailability(ctx, actor.ID, req.ListingID, slots)
	if err != nil {
		return nil, s.fail(log, err, "availability update failed", slog.String("listing_id", req.ListingID), slog.String("actor_id", actor.ID))
	}
	log.Info("availability replaced", slog.String("listing_id", req.ListingID), slog.Int("slots", len(saved)))
	return &AvailabilityResponse{ListingID: req.ListingID, Slots: toSlots(saved)}, nil
}

func (s *Server) GetBookingPolicy(ctx context.Context, req *GetBookingPolicyRequest) (*BookingPolicyResponse, error) {
	log := s.log.With(slog.String("rpc", "GetBookingPolicy"))
	if _, err := s.admin(ctx, log); err != nil {
		return nil, err
	}

	p, err := s.svc.GetPolicy(ctx, req.UserID)
	if err != nil {
		return nil, s.fail(log, err, "policy read failed", slog.String("user_id", req.UserID))
	}
	return &BookingPolicyResponse{Policy: toPolicy(p)}, nil
}

func (s *Server) SetBookingPolicy(ctx context.Context, req *SetBookingPolicyRequest) (*BookingPolicyResponse, error) {
	log := s.log.With(slog.String("rpc", "SetBookingPolicy"))
	actor, err := s.admin(ctx, log)
	if err != nil {
		return nil, err
	}

	p, err := s.svc.SetPolicy(ctx, actor.ID, req.UserID, req.IsBlocked, req.Reason)
	if err != nil {
		return nil, s.fail(log, err, "policy update failed", slog.String("user_id", req.UserID), slog.String("actor_id", actor.ID))
	}
	log.Info("booking policy set", slog.String("user_id", p.UserID), slog.Bool("blocked", p.IsBlocked), slog.String("actor_id", actor.ID))
	return &BookingPolicyResponse{Policy: toPolicy(p)}, nil
}

func (s *Server) ListTransitions(ctx context.Context, req *AppointmentRef) (*ListTransitionsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListTransitions"))
	actor, err := s.actor(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseAppointmentID(req.AppointmentID)
	if err != nil {
		return nil, err
	}

	entries, err := s.svc.ListTransitions(ctx, actor.ID, id)
	if err != nil {
		return nil, s.fail(log, err, "transitions list failed", slog.String("appointment_id", id.String()))
	}
	return &ListTransitionsResponse{Transitions: toTransitions(entries)}, nil
}

func (s *Server) actor(ctx context.Context, log *slog.Logger) (Actor, error) {
	actor, ok := actorFromContext(ctx)
	if !ok {
		log.Warn("unauthenticated request", slog.String("reason", "missing_actor"))
		return Actor{}, status.Error(codes.Unauthenticated, "caller identity is required")
	}
	return actor, nil
}

func (s *Server) admin(ctx context.Context, log *slog.Logger) (Actor, error) {
	actor, err := s.actor(ctx, log)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		log.Warn("permission denied", slog.String("reason", "not_admin"), slog.String("actor_id", actor.ID))
		return Actor{}, statusError(codes.PermissionDenied, "FORBIDDEN", "administrator role required")
	}
	return actor, nil
}

// fail logs err at a level matching its kind and returns the gRPC status for it.
func (s *Server) fail(log *slog.Logger, err error, msg string, attrs ...any) error {
	st, expected := toStatus(err)
	args := append([]any{slog.Any("err", err)}, attrs...)
	if expected {
		log.Info(msg, args...)
	} else {
		log.Error(msg, args...)
	}
	return st
}

func parseAppointmentID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalidArgument("appointment_id must be a UUID")
	}
	return id, nil
}
