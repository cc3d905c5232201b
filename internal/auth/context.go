package auth

import (
	"context"
)

type contextKey string

const identityContextKey contextKey = "identity"

// WithContext adds an Identity to the context.
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the Identity from the context. The second return
// value is false when the request was not authenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
