package middleware

import (
	"context"

	"github.com/angelmondragon/carrental-backend/pkg/auth"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated caller, if Auth ran.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

// WithActor seeds the context with an authenticated caller.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func userIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}
