package studio

import "context"

type contextKey string

const userIDKey contextKey = "studio.user_id"

// WithUserID tags the context with the acting user so that analytics events
// recorded further down the call chain carry the identity.
func WithUserID(ctx context.Context, userID uint) context.Context {
	if userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFromContext reports the acting user, when one was attached.
func userIDFromContext(ctx context.Context) *uint {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(userIDKey).(uint); ok && id != 0 {
		return &id
	}
	return nil
}
