package domain

import "context"

// SystemActor is used when a mutation has no authenticated principal.
const SystemActor = "system"

type actorKey struct{}

// WithActor returns a context carrying the id of the user performing a mutation.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext returns the acting user id or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return SystemActor
}
