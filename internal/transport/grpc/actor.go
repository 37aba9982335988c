package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	ActorIDMetadataKey   = "x-actor-id"
	ActorRoleMetadataKey = "x-actor-role"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the caller as already authenticated by the gateway.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func actorFromContext(ctx context.Context) (Actor, bool) {
	id := metadataValue(ctx, ActorIDMetadataKey)
	if id == "" {
		return Actor{}, false
	}
	role := strings.ToLower(metadataValue(ctx, ActorRoleMetadataKey))
	if role == "" {
		role = RoleUser
	}
	return Actor{ID: id, Role: role}, true
}

func idempotencyKey(ctx context.Context) string {
	if v := metadataValue(ctx, "idempotency-key"); v != "" {
		return v
	}
	return metadataValue(ctx, "x-idempotency-key")
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
