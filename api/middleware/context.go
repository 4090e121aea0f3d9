package middleware

import (
	"context"

	"github.com/fleetline/dispatch-backend/pkg/auth"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
