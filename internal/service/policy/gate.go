package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"viewings/backend/internal/apperr"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
	"viewings/backend/internal/telemetry"
)

const maxReasonLength = 500

// Gate decides whether a user may request appointments.
type Gate struct {
	repo          store.PolicyRepository
	audit         store.AuditRepository
	dir           store.Directory
	logger        *slog.Logger
	auditFailures metric.Int64Counter
}

func NewGate(repo store.PolicyRepository, audit store.AuditRepository, dir store.Directory, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		repo:          repo,
		audit:         audit,
		dir:           dir,
		logger:        logger.With("component", "policy"),
		auditFailures: telemetry.AuditFailures(),
	}
}

// IsBlocked reports whether userID is barred from booking and why. A suspended account
// counts as blocked even without a booking policy.
func (g *Gate) IsBlocked(ctx context.Context, userID string) (bool, string, error) {
	p, err := g.repo.GetPolicy(ctx, userID)
	switch {
	case err == nil:
		if p.IsBlocked {
			return true, p.BlockReason, nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return false, "", fmt.Errorf("get policy: %w", err)
	}

	if g.dir == nil {
		return false, "", nil
	}
	u, err := g.dir.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, "", apperr.NotFound("user not found")
		}
		return false, "", fmt.Errorf("get user: %w", err)
	}
	if u.IsBlocked {
		return true, "account suspended", nil
	}
	return false, "", nil
}

// GetPolicy returns the stored policy, or an unblocked one when none was ever set.
func (g *Gate) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.BookingPolicy{}, apperr.InvalidArgument("user_id is required")
	}
	p, err := g.repo.GetPolicy(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BookingPolicy{UserID: userID}, nil
	}
	if err != nil {
		return domain.BookingPolicy{}, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func (g *Gate) SetPolicy(ctx context.Context, adminID, userID string, blocked bool, reason string) (domain.BookingPolicy, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.BookingPolicy{}, apperr.InvalidArgument("user_id is required")
	}
	if adminID == "" {
		return domain.BookingPolicy{}, apperr.InvalidArgument("admin id is required")
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) > maxReasonLength {
		return domain.BookingPolicy{}, apperr.Newf(apperr.KindInvalidArgument, "reason must be at most %d characters", maxReasonLength)
	}
	if !blocked {
		reason = ""
	}

	p, err := g.repo.UpsertPolicy(ctx, domain.BookingPolicy{
		UserID:      userID,
		IsBlocked:   blocked,
		BlockReason: reason,
		UpdatedBy:   adminID,
	})
	if err != nil {
		return domain.BookingPolicy{}, fmt.Errorf("upsert policy: %w", err)
	}

	eventType := domain.AuditUnblockAppointments
	if blocked {
		eventType = domain.AuditBlockAppointments
	}
	err = g.audit.RecordEvent(ctx, domain.AuditEvent{
		EventType: eventType,
		ActorID:   adminID,
		SubjectID: userID,
		Metadata:  map[string]any{"reason": reason},
	})
	if err != nil {
		g.auditFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
		g.logger.Error("audit event not recorded", "event_type", eventType, "user_id", userID, "err", err)
	}

	return p, nil
}
