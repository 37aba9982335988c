package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

func DefaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

const limiterIdleTTL = 10 * time.Minute

type actorLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ActorRateLimiter throttles selected methods per actor id. Limiters idle for longer
// than idleTTL are swept on a later call.
type ActorRateLimiter struct {
	rps     rate.Limit
	burst   int
	methods map[string]struct{}
	log     *slog.Logger
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*actorLimiter
	lastSweep time.Time
}

func NewActorRateLimiter(rps float64, burst int, log *slog.Logger, methods ...string) *ActorRateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if log == nil {
		log = slog.Default()
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return &ActorRateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		methods:   set,
		log:       log,
		idleTTL:   limiterIdleTTL,
		now:       time.Now,
		limiters:  make(map[string]*actorLimiter),
		lastSweep: time.Now(),
	}
}

func (l *ActorRateLimiter) limiter(actorID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		for id, e := range l.limiters {
			if now.Sub(e.lastSeen) >= l.idleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[actorID]
	if !ok {
		e = &actorLimiter{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[actorID] = e
	}
	e.lastSeen = now
	return e.lim
}

func (l *ActorRateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := l.methods[info.FullMethod]; !ok {
			return handler(ctx, req)
		}
		actor, ok := actorFromContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		if !l.limiter(actor.ID).Allow() {
			l.log.Warn("rate limit exceeded", slog.String("method", info.FullMethod), slog.String("actor_id", actor.ID))
			return nil, statusError(codes.ResourceExhausted, "RATE_LIMITED", "too many requests; try again shortly")
		}
		return handler(ctx, req)
	}
}
