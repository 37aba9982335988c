package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
)

type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type cachedPolicy struct {
	Found  bool                 `json:"found"`
	Policy domain.BookingPolicy `json:"policy"`
}

// PolicyRepo is a cache-aside PolicyRepository. Upserts write through; read fills only
// populate an empty key, so a fill computed before an upsert never replaces it. Redis
// failures fall through to the wrapped repository.
type PolicyRepo struct {
	next   store.PolicyRepository
	rdb    Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewPolicyRepo(next store.PolicyRepository, rdb Client, ttl time.Duration, logger *slog.Logger) *PolicyRepo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyRepo{next: next, rdb: rdb, ttl: ttl, prefix: "viewings:policy", logger: logger}
}

func (r *PolicyRepo) key(userID string) string {
	return r.prefix + ":" + strings.TrimSpace(userID)
}

func (r *PolicyRepo) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	key := r.key(userID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c cachedPolicy
		if err := json.Unmarshal(raw, &c); err == nil {
			if !c.Found {
				return domain.BookingPolicy{}, store.ErrNotFound
			}
			return c.Policy, nil
		}
		r.logger.Warn("discarding malformed policy cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("policy cache read failed", "key", key, "err", err)
	}

	p, err := r.next.GetPolicy(ctx, userID)
	switch {
	case err == nil:
		r.fill(ctx, key, cachedPolicy{Found: true, Policy: p})
	case errors.Is(err, store.ErrNotFound):
		r.fill(ctx, key, cachedPolicy{Found: false})
	}
	return p, err
}

func (r *PolicyRepo) UpsertPolicy(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
	out, err := r.next.UpsertPolicy(ctx, p)
	if err != nil {
		return domain.BookingPolicy{}, err
	}
	key := r.key(p.UserID)
	b, err := json.Marshal(cachedPolicy{Found: true, Policy: out})
	if err == nil {
		err = r.rdb.Set(ctx, key, b, r.ttl).Err()
	}
	if err != nil {
		r.logger.Warn("policy cache write-through failed", "key", key, "err", err)
		if err := r.rdb.Del(ctx, key).Err(); err != nil {
			r.logger.Error("policy cache invalidation failed", "key", key, "err", err)
		}
	}
	return out, nil
}

func (r *PolicyRepo) fill(ctx context.Context, key string, c cachedPolicy) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := r.rdb.SetNX(ctx, key, b, r.ttl).Err(); err != nil {
		r.logger.Warn("policy cache fill failed", "key", key, "err", err)
	}
}
