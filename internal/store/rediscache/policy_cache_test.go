package rediscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
)

type fakeClient struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	deleted []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string][]byte{}}
}

func (f *fakeClient) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.([]byte)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type fakePolicyRepo struct {
	getPolicyFn    func(ctx context.Context, userID string) (domain.BookingPolicy, error)
	upsertPolicyFn func(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error)
	gets           int
}

func (f *fakePolicyRepo) GetPolicy(ctx context.Context, userID string) (domain.BookingPolicy, error) {
	f.gets++
	if f.getPolicyFn == nil {
		panic("unexpected GetPolicy")
	}
	return f.getPolicyFn(ctx, userID)
}

func (f *fakePolicyRepo) UpsertPolicy(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
	if f.upsertPolicyFn == nil {
		panic("unexpected UpsertPolicy")
	}
	return f.upsertPolicyFn(ctx, p)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestPolicyRepo_GetPolicy(t *testing.T) {
	t.Run("caches hits", func(t *testing.T) {
		next := &fakePolicyRepo{getPolicyFn: func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{UserID: userID, IsBlocked: true, BlockReason: "spam"}, nil
		}}
		r := NewPolicyRepo(next, newFakeClient(), time.Minute, discardLogger())

		for i := 0; i < 2; i++ {
			p, err := r.GetPolicy(context.Background(), "U1")
			if err != nil {
				t.Fatalf("GetPolicy error: %v", err)
			}
			if !p.IsBlocked || p.BlockReason != "spam" {
				t.Fatalf("policy = %+v", p)
			}
		}
		if next.gets != 1 {
			t.Fatalf("repository reads = %d, want 1", next.gets)
		}
	})

	t.Run("caches misses", func(t *testing.T) {
		next := &fakePolicyRepo{getPolicyFn: func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{}, store.ErrNotFound
		}}
		r := NewPolicyRepo(next, newFakeClient(), time.Minute, discardLogger())

		for i := 0; i < 2; i++ {
			if _, err := r.GetPolicy(context.Background(), "U1"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
			}
		}
		if next.gets != 1 {
			t.Fatalf("repository reads = %d, want 1", next.gets)
		}
	})

	t.Run("falls through on redis error", func(t *testing.T) {
		next := &fakePolicyRepo{getPolicyFn: func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{UserID: userID}, nil
		}}
		c := newFakeClient()
		c.getErr = errors.New("connection refused")
		r := NewPolicyRepo(next, c, time.Minute, discardLogger())

		if _, err := r.GetPolicy(context.Background(), "U1"); err != nil {
			t.Fatalf("GetPolicy error: %v", err)
		}
		if next.gets != 1 {
			t.Fatalf("repository reads = %d, want 1", next.gets)
		}
	})

	t.Run("does not cache repository failures", func(t *testing.T) {
		next := &fakePolicyRepo{getPolicyFn: func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{}, errors.New("db down")
		}}
		c := newFakeClient()
		r := NewPolicyRepo(next, c, time.Minute, discardLogger())

		if _, err := r.GetPolicy(context.Background(), "U1"); err == nil {
			t.Fatalf("expected error")
		}
		if len(c.data) != 0 {
			t.Fatalf("cache entries = %d, want 0", len(c.data))
		}
	})
}

func TestPolicyRepo_UpsertWritesThrough(t *testing.T) {
	blocked := false
	next := &fakePolicyRepo{
		getPolicyFn: func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
			return domain.BookingPolicy{UserID: userID, IsBlocked: blocked}, nil
		},
		upsertPolicyFn: func(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
			blocked = p.IsBlocked
			return p, nil
		},
	}
	c := newFakeClient()
	r := NewPolicyRepo(next, c, time.Minute, discardLogger())
	ctx := context.Background()

	if p, _ := r.GetPolicy(ctx, "U1"); p.IsBlocked {
		t.Fatalf("expected unblocked")
	}
	if _, err := r.UpsertPolicy(ctx, domain.BookingPolicy{UserID: "U1", IsBlocked: true}); err != nil {
		t.Fatalf("UpsertPolicy error: %v", err)
	}
	if p, _ := r.GetPolicy(ctx, "U1"); !p.IsBlocked {
		t.Fatalf("expected blocked after upsert")
	}
	if next.gets != 1 {
		t.Fatalf("repository reads = %d, want 1", next.gets)
	}
}

func TestPolicyRepo_StaleFillDoesNotOverwriteUpsert(t *testing.T) {
	var stored *domain.BookingPolicy
	next := &fakePolicyRepo{
		upsertPolicyFn: func(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
			stored = &p
			return p, nil
		},
	}
	c := newFakeClient()
	r := NewPolicyRepo(next, c, time.Minute, discardLogger())
	ctx := context.Background()

	// The first read sees no policy, then an admin blocks the user before the read
	// fills the cache.
	next.getPolicyFn = func(ctx context.Context, userID string) (domain.BookingPolicy, error) {
		snapshot := stored
		if next.gets == 1 {
			if _, err := r.UpsertPolicy(ctx, domain.BookingPolicy{UserID: userID, IsBlocked: true, BlockReason: "spam"}); err != nil {
				t.Fatalf("UpsertPolicy error: %v", err)
			}
		}
		if snapshot == nil {
			return domain.BookingPolicy{}, store.ErrNotFound
		}
		return *snapshot, nil
	}

	if _, err := r.GetPolicy(ctx, "U1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("first read err = %v, want %v", err, store.ErrNotFound)
	}
	p, err := r.GetPolicy(ctx, "U1")
	if err != nil {
		t.Fatalf("second read error: %v", err)
	}
	if !p.IsBlocked || p.BlockReason != "spam" {
		t.Fatalf("policy = %+v, want blocked", p)
	}
}

func TestPolicyRepo_UpsertInvalidatesWhenWriteFails(t *testing.T) {
	next := &fakePolicyRepo{
		upsertPolicyFn: func(ctx context.Context, p domain.BookingPolicy) (domain.BookingPolicy, error) {
			return p, nil
		},
	}
	c := newFakeClient()
	c.data["viewings:policy:U1"] = []byte(`{"found":false}`)
	c.setErr = errors.New("read only replica")
	r := NewPolicyRepo(next, c, time.Minute, discardLogger())

	if _, err := r.UpsertPolicy(context.Background(), domain.BookingPolicy{UserID: "U1", IsBlocked: true}); err != nil {
		t.Fatalf("UpsertPolicy error: %v", err)
	}
	if len(c.deleted) != 1 || c.deleted[0] != "viewings:policy:U1" {
		t.Fatalf("deleted = %v", c.deleted)
	}
	if _, ok := c.data["viewings:policy:U1"]; ok {
		t.Fatalf("stale entry survived a failed write-through")
	}
}
