package common

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const userIDKey ctxKey = "auth/user-id"

// ErrNoUser is returned when a request carries no authenticated user.
var ErrNoUser = errors.New("no authenticated user")

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// UserUUID extracts and parses the authenticated user identifier.
func UserUUID(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserID(ctx)
	if !ok {
		return uuid.Nil, ErrNoUser
	}
	return uuid.Parse(id)
}
