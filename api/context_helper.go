package api

import (
	"context"
	"time"

	"github.com/linesmerrill/chama-disputes-api/disputes"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

type actorKey struct{}

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

// WithActor stores the authenticated caller on the context
func WithActor(ctx context.Context, actor disputes.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller set by Middleware
func ActorFromContext(ctx context.Context) (disputes.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(disputes.Actor)
	return actor, ok && actor.UserID != ""
}
