package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"viewings/backend/internal/apperr"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/service/appointments"
	"viewings/backend/internal/service/scheduling"
)

type fakeSchedulingService struct {
	requestFn         func(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error)
	listRequesterFn   func(ctx context.Context, userID string) ([]domain.Appointment, error)
	listOwnerFn       func(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error)
	ownerActFn        func(ctx context.Context, in appointments.OwnerActInput) (domain.Appointment, error)
	confirmFn         func(ctx context.Context, requesterID string, id uuid.UUID) (domain.Appointment, error)
	cancelFn          func(ctx context.Context, requesterID string, id uuid.UUID) error
	listTransitionsFn func(ctx context.Context, actorID string, id uuid.UUID) ([]domain.AppointmentTransition, error)
	getAvailabilityFn func(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error)
	setAvailabilityFn func(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error)
	getPolicyFn       func(ctx context.Context, userID string) (domain.BookingPolicy, error)
	setPolicyFn       func(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error)
}

func (f *fakeSchedulingService) RequestAppointment(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error) {
	if f.requestFn == nil {
		panic("RequestAppointment not configured")
	}
	return f.requestFn(ctx, in)
}

func (f *fakeSchedulingService) ListForRequester(ctx context.Context, userID string) ([]domain.Appointment, error) {
	if f.listRequesterFn == nil {
		panic("ListForRequester not configured")
	}
	return f.listRequesterFn(ctx, userID)
}

func (f *fakeSchedulingService) ListForOwner(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error) {
	if f.listOwnerFn == nil {
		panic("ListForOwner not configured")
	}
	return f.listOwnerFn(ctx, userID, status)
}

func (f *fakeSchedulingService) OwnerAct(ctx context.Context, in appointments.OwnerActInput) (domain.Appointment, error) {
	if f.ownerActFn == nil {
		panic("OwnerAct not configured")
	}
	return f.ownerActFn(ctx, in)
}

func (f *fakeSchedulingService) ConfirmReschedule(ctx context.Context, requesterID string, id uuid.UUID) (domain.Appointment, error) {
	if f.confirmFn == nil {
		panic("ConfirmReschedule not configured")
	}
	return f.confirmFn(ctx, requesterID, id)
}

func (f *fakeSchedulingService) Cancel(ctx context.Context, requesterID string, id uuid.UUID) error {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, requesterID, id)
}

func (f *fakeSchedulingService) ListTransitions(ctx context.Context, actorID string, id uuid.UUID) ([]domain.AppointmentTransition, error) {
	if f.listTransitionsFn == nil {
		panic("ListTransitions not configured")
	}
	return f.listTransitionsFn(ctx, actorID, id)
}

func (f *fakeSchedulingService) GetAvailability(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error) {
	if f.getAvailabilityFn == nil {
		panic("GetAvailability not configured")
	}
	return f.getAvailabilityFn(ctx, listingID)
}

func (f *fakeSchedulingService) SetAvailability(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	if f.setAvailabilityFn == nil {
		panic("SetAvailability not configured")
	}
	return f.setAvailabilityFn(ctx, ownerID, listingID, slots)
}

func (f *fakeSchedulingService) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	if f.getPolicyFn == nil {
		panic("GetPolicy not configured")
	}
	return f.getPolicyFn(ctx, userID)
}

func (f *fakeSchedulingService) SetPolicy(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error) {
	if f.setPolicyFn == nil {
		panic("SetPolicy not configured")
	}
	return f.setPolicyFn(ctx, adminID, userID, blocked, reason)
}

var testAppointmentID = uuid.MustParse("00000000-0000-0000-0000-000000000010")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func actorCtx(id, role string) context.Context {
	pairs := []string{ActorIDMetadataKey, id}
	if role != "" {
		pairs = append(pairs, ActorRoleMetadataKey, role)
	}
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func errorReason(t *testing.T, err error) string {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("not a status error: %v", err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			if info.Domain != errorDomain {
				t.Fatalf("ErrorInfo domain = %q, want %q", info.Domain, errorDomain)
			}
			return info.Reason
		}
	}
	return ""
}

func TestActorFromContext(t *testing.T) {
	t.Run("missing metadata", func(t *testing.T) {
		if _, ok := actorFromContext(context.Background()); ok {
			t.Fatalf("expected no actor")
		}
	})

	t.Run("role defaults to user", func(t *testing.T) {
		actor, ok := actorFromContext(actorCtx(" u1 ", ""))
		if !ok || actor.ID != "u1" || actor.Role != RoleUser {
			t.Fatalf("actor = %+v, %v", actor, ok)
		}
		if actor.IsAdmin() {
			t.Fatalf("user must not be admin")
		}
	})

	t.Run("admin role is case insensitive", func(t *testing.T) {
		actor, ok := actorFromContext(actorCtx("a1", "ADMIN"))
		if !ok || !actor.IsAdmin() {
			t.Fatalf("actor = %+v, want admin", actor)
		}
	})
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		code     codes.Code
		reason   string
		expected bool
	}{
		{"not found", apperr.NotFound("appointment not found"), codes.NotFound, "NOT_FOUND", true},
		{"forbidden", apperr.Forbidden("nope"), codes.PermissionDenied, "FORBIDDEN", true},
		{"invalid argument", apperr.InvalidArgument("bad"), codes.InvalidArgument, "INVALID_ARGUMENT", true},
		{"invalid time", apperr.InvalidTime("outside"), codes.InvalidArgument, "INVALID_TIME", true},
		{"invalid state", apperr.InvalidState("already"), codes.FailedPrecondition, "INVALID_STATE", true},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, "", false},
		{"internal", errors.New("db down"), codes.Internal, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err, expected := toStatus(tc.err)
			if expected != tc.expected {
				t.Fatalf("expected = %v, want %v", expected, tc.expected)
			}
			if status.Code(err) != tc.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.code)
			}
			if got := errorReason(t, err); got != tc.reason {
				t.Fatalf("reason = %q, want %q", got, tc.reason)
			}
		})
	}

	t.Run("internal message is not leaked", func(t *testing.T) {
		err, _ := toStatus(errors.New("password=secret"))
		if status.Convert(err).Message() != "internal error" {
			t.Fatalf("message = %q", status.Convert(err).Message())
		}
	})
}

func TestRequestAppointment(t *testing.T) {
	at := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	t.Run("requires actor", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.RequestAppointment(context.Background(), &RequestAppointmentRequest{ListingID: "l1", ScheduledAt: &at})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
		}
	})

	t.Run("rejects missing time", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.RequestAppointment(actorCtx("u1", ""), &RequestAppointmentRequest{ListingID: "l1"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
		}
		if got := errorReason(t, err); got != "INVALID_ARGUMENT" {
			t.Fatalf("reason = %q", got)
		}
	})

	t.Run("passes actor and idempotency key", func(t *testing.T) {
		var got scheduling.RequestInput
		srv := NewServer(&fakeSchedulingService{
			requestFn: func(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error) {
				got = in
				return domain.Appointment{
					ID:          testAppointmentID,
					ListingID:   in.ListingID,
					RequesterID: in.RequesterID,
					OwnerID:     "o1",
					ScheduledAt: in.ScheduledAt,
					Note:        in.Note,
					Status:      domain.StatusPending,
				}, nil
			},
		}, discardLogger())

		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(ActorIDMetadataKey, "u1", "idempotency-key", "k1"))
		resp, err := srv.RequestAppointment(ctx, &RequestAppointmentRequest{ListingID: "l1", ScheduledAt: &at, Note: "hi"})
		if err != nil {
			t.Fatalf("RequestAppointment error: %v", err)
		}
		if got.RequesterID != "u1" || got.ListingID != "l1" || got.IdempotencyKey != "k1" || got.Note != "hi" {
			t.Fatalf("input = %+v", got)
		}
		if resp.Appointment.ID != testAppointmentID.String() || resp.Appointment.Status != "PENDING" {
			t.Fatalf("appointment = %+v", resp.Appointment)
		}
	})

	t.Run("maps rejection kind", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{
			requestFn: func(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error) {
				return domain.Appointment{}, apperr.InvalidTime("requested time is outside the listing's availability")
			},
		}, discardLogger())
		_, err := srv.RequestAppointment(actorCtx("u1", ""), &RequestAppointmentRequest{ListingID: "l1", ScheduledAt: &at})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s", status.Code(err))
		}
		if got := errorReason(t, err); got != "INVALID_TIME" {
			t.Fatalf("reason = %q, want INVALID_TIME", got)
		}
	})
}

func TestListOwnerAppointments(t *testing.T) {
	t.Run("parses status filter", func(t *testing.T) {
		var got *domain.Status
		srv := NewServer(&fakeSchedulingService{
			listOwnerFn: func(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error) {
				got = status
				return nil, nil
			},
		}, discardLogger())
		resp, err := srv.ListOwnerAppointments(actorCtx("o1", ""), &ListOwnerAppointmentsRequest{Status: "pending"})
		if err != nil {
			t.Fatalf("ListOwnerAppointments error: %v", err)
		}
		if got == nil || *got != domain.StatusPending {
			t.Fatalf("filter = %v, want PENDING", got)
		}
		if resp.Appointments == nil {
			t.Fatalf("appointments must be an empty slice, not nil")
		}
	})

	t.Run("empty filter means all", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{
			listOwnerFn: func(ctx context.Context, userID string, status *domain.Status) ([]domain.Appointment, error) {
				if status != nil {
					t.Fatalf("filter = %v, want nil", *status)
				}
				return nil, nil
			},
		}, discardLogger())
		if _, err := srv.ListOwnerAppointments(actorCtx("o1", ""), &ListOwnerAppointmentsRequest{}); err != nil {
			t.Fatalf("ListOwnerAppointments error: %v", err)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.ListOwnerAppointments(actorCtx("o1", ""), &ListOwnerAppointmentsRequest{Status: "CANCELLED"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s", status.Code(err))
		}
	})
}

func TestOwnerAct(t *testing.T) {
	t.Run("rejects bad uuid", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.OwnerAct(actorCtx("o1", ""), &OwnerActRequest{AppointmentID: "nope", Action: "APPROVE"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s", status.Code(err))
		}
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.OwnerAct(actorCtx("o1", ""), &OwnerActRequest{AppointmentID: testAppointmentID.String(), Action: "CONFIRM"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s", status.Code(err))
		}
	})

	t.Run("passes reschedule input", func(t *testing.T) {
		next := time.Date(2030, 6, 4, 11, 0, 0, 0, time.UTC)
		var got appointments.OwnerActInput
		srv := NewServer(&fakeSchedulingService{
			ownerActFn: func(ctx context.Context, in appointments.OwnerActInput) (domain.Appointment, error) {
				got = in
				return domain.Appointment{ID: in.AppointmentID, Status: domain.StatusRescheduleProposed, ProposedAt: in.NewTime}, nil
			},
		}, discardLogger())
		resp, err := srv.OwnerAct(actorCtx("o1", ""), &OwnerActRequest{
			AppointmentID: testAppointmentID.String(),
			Action:        "reschedule",
			NewDateTime:   &next,
		})
		if err != nil {
			t.Fatalf("OwnerAct error: %v", err)
		}
		if got.OwnerID != "o1" || got.Action != domain.ActionReschedule || got.NewTime == nil || !got.NewTime.Equal(next) {
			t.Fatalf("input = %+v", got)
		}
		if resp.Appointment.ProposedAt == nil || !resp.Appointment.ProposedAt.Equal(next) {
			t.Fatalf("proposed_at = %v", resp.Appointment.ProposedAt)
		}
	})

	t.Run("maps invalid state", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{
			ownerActFn: func(ctx context.Context, in appointments.OwnerActInput) (domain.Appointment, error) {
				return domain.Appointment{}, apperr.InvalidState("appointment is already APPROVED")
			},
		}, discardLogger())
		_, err := srv.OwnerAct(actorCtx("o1", ""), &OwnerActRequest{AppointmentID: testAppointmentID.String(), Action: "APPROVE"})
		if status.Code(err) != codes.FailedPrecondition {
			t.Fatalf("code = %s", status.Code(err))
		}
	})
}

func TestCancelAppointment(t *testing.T) {
	var gotActor string
	srv := NewServer(&fakeSchedulingService{
		cancelFn: func(ctx context.Context, requesterID string, id uuid.UUID) error {
			gotActor = requesterID
			if id != testAppointmentID {
				t.Fatalf("id = %s", id)
			}
			return nil
		},
	}, discardLogger())
	if _, err := srv.CancelAppointment(actorCtx("u1", ""), &AppointmentRef{AppointmentID: testAppointmentID.String()}); err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if gotActor != "u1" {
		t.Fatalf("requester = %q", gotActor)
	}
}

func TestSetAvailability(t *testing.T) {
	t.Run("rejects malformed slot", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{}, discardLogger())
		_, err := srv.SetAvailability(actorCtx("o1", ""), &SetAvailabilityRequest{
			ListingID: "l1",
			Slots:     []Slot{{DayOfWeek: 1, StartTime: "9am", EndTime: "12:00"}},
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s", status.Code(err))
		}
	})

	t.Run("converts slots both ways", func(t *testing.T) {
		srv := NewServer(&fakeSchedulingService{
			setAvailabilityFn: func(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
				if ownerID != "o1" || len(slots) != 1 || slots[0].StartTime != 9*60 || slots[0].EndTime != 12*60 {
					t.Fatalf("slots = %+v", slots)
				}
				return slots, nil
			},
		}, discardLogger())
		resp, err := srv.SetAvailability(actorCtx("o1", ""), &SetAvailabilityRequest{
			ListingID: "l1",
			Slots:     []Slot{{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"}},
		})
		if err != nil {
			t.Fatalf("SetAvailability error: %v", err)
		}
		if len(resp.Slots) != 1 || resp.Slots[0].StartTime != "09:00" || resp.Slots[0].EndTime != "12:00" {
			t.Fatalf("slots = %+v", resp.Slots)
		}
	})
}

func TestBookingPolicy_RequiresAdmin(t *testing.T) {
	srv := NewServer(&fakeSchedulingService{
		setPolicyFn: func(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{UserID: userID, IsBlocked: blocked, BlockReason: reason, UpdatedBy: adminID}, nil
		},
	}, discardLogger())

	t.Run("user is denied", func(t *testing.T) {
		_, err := srv.SetBookingPolicy(actorCtx("u1", RoleUser), &SetBookingPolicyRequest{UserID: "u2", IsBlocked: true})
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("code = %s", status.Code(err))
		}
		if got := errorReason(t, err); got != "FORBIDDEN" {
			t.Fatalf("reason = %q", got)
		}
	})

	t.Run("read is denied too", func(t *testing.T) {
		_, err := srv.GetBookingPolicy(actorCtx("u1", ""), &GetBookingPolicyRequest{UserID: "u2"})
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("code = %s", status.Code(err))
		}
	})

	t.Run("admin sets policy", func(t *testing.T) {
		resp, err := srv.SetBookingPolicy(actorCtx("a1", RoleAdmin), &SetBookingPolicyRequest{UserID: "u2", IsBlocked: true, Reason: "spam"})
		if err != nil {
			t.Fatalf("SetBookingPolicy error: %v", err)
		}
		if !resp.Policy.IsBlocked || resp.Policy.BlockReason != "spam" || resp.Policy.UpdatedBy != "a1" {
			t.Fatalf("policy = %+v", resp.Policy)
		}
	})
}

func TestActorRateLimiter(t *testing.T) {
	limited := FullMethod("RequestAppointment")
	l := NewActorRateLimiter(0.001, 1, discardLogger(), limited)
	interceptor := l.UnaryInterceptor()
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	ctx := actorCtx("u1", "")
	if _, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: limited}, handler); err != nil {
		t.Fatalf("first call error: %v", err)
	}
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: limited}, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}

	if _, err := interceptor(actorCtx("u2", ""), nil, &grpc.UnaryServerInfo{FullMethod: limited}, handler); err != nil {
		t.Fatalf("other actor must have its own budget: %v", err)
	}
	if _, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: FullMethod("ListMyAppointments")}, handler); err != nil {
		t.Fatalf("unlisted method must not be limited: %v", err)
	}
}

func TestDefaultRequestTimeoutInterceptor(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Second)

	t.Run("adds deadline", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Fatalf("expected deadline")
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("error: %v", err)
		}
	})

	t.Run("keeps caller deadline", func(t *testing.T) {
		want := time.Now().Add(time.Hour)
		ctx, cancel := context.WithDeadline(context.Background(), want)
		defer cancel()
		_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
			got, _ := ctx.Deadline()
			if !got.Equal(want) {
				t.Fatalf("deadline = %v, want %v", got, want)
			}
			return nil, nil
		})
	})
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{}
	at := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)
	b, err := c.Marshal(&RequestAppointmentRequest{ListingID: "l1", ScheduledAt: &at})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var got RequestAppointmentRequest
	if err := c.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.ListingID != "l1" || got.ScheduledAt == nil || !got.ScheduledAt.Equal(at) {
		t.Fatalf("decoded = %+v", got)
	}
	if err := c.Unmarshal(nil, &ListMyAppointmentsRequest{}); err != nil {
		t.Fatalf("empty payload must decode: %v", err)
	}
}

func dialBufconn(t *testing.T, svc schedulingService) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(DefaultRequestTimeoutInterceptor(5 * time.Second)))
	RegisterSchedulingServer(s, NewServer(svc, discardLogger()))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServiceDesc_OverBufconn(t *testing.T) {
	at := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)
	conn := dialBufconn(t, &fakeSchedulingService{
		requestFn: func(ctx context.Context, in scheduling.RequestInput) (domain.Appointment, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("expected interceptor deadline")
			}
			return domain.Appointment{ID: testAppointmentID, ListingID: in.ListingID, RequesterID: in.RequesterID, ScheduledAt: in.ScheduledAt, Status: domain.StatusPending}, nil
		},
		cancelFn: func(ctx context.Context, requesterID string, id uuid.UUID) error {
			return apperr.NotFound("appointment not found")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, ActorIDMetadataKey, "u1")

	t.Run("request appointment", func(t *testing.T) {
		var resp AppointmentResponse
		err := conn.Invoke(ctx, FullMethod("RequestAppointment"), &RequestAppointmentRequest{ListingID: "l1", ScheduledAt: &at}, &resp)
		if err != nil {
			t.Fatalf("Invoke error: %v", err)
		}
		if resp.Appointment.ID != testAppointmentID.String() || resp.Appointment.RequesterID != "u1" {
			t.Fatalf("appointment = %+v", resp.Appointment)
		}
		if !resp.Appointment.ScheduledAt.Equal(at) {
			t.Fatalf("scheduled_at = %v", resp.Appointment.ScheduledAt)
		}
	})

	t.Run("error details cross the wire", func(t *testing.T) {
		var resp CancelAppointmentResponse
		err := conn.Invoke(ctx, FullMethod("CancelAppointment"), &AppointmentRef{AppointmentID: testAppointmentID.String()}, &resp)
		if status.Code(err) != codes.NotFound {
			t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
		}
		if got := errorReason(t, err); got != "NOT_FOUND" {
			t.Fatalf("reason = %q", got)
		}
	})

	t.Run("health check", func(t *testing.T) {
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("status = %s", resp.GetStatus())
		}
	})
}

func TestActorRateLimiter_EvictsIdleActors(t *testing.T) {
	clock := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)
	l := NewActorRateLimiter(1, 1, discardLogger(), FullMethod("RequestAppointment"))
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	l.limiter("u1")
	l.limiter("u2")
	if got := len(l.limiters); got != 2 {
		t.Fatalf("limiters = %d, want 2", got)
	}

	clock = clock.Add(limiterIdleTTL / 2)
	l.limiter("u2")

	clock = clock.Add(limiterIdleTTL / 2)
	l.limiter("u3")
	if got := len(l.limiters); got != 2 {
		t.Fatalf("limiters = %d, want 2 after sweep", got)
	}
	l.mu.Lock()
	_, kept := l.limiters["u2"]
	_, evicted := l.limiters["u1"]
	l.mu.Unlock()
	if !kept || evicted {
		t.Fatalf("u2 kept = %v, u1 present = %v", kept, evicted)
	}
}
