package requestctx

import (
	"context"

	"kpitracker/internal/domain/directory"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	actorKey     ctxKey = "actor"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// WithActor stores the authenticated caller for the request.
func WithActor(ctx context.Context, actor directory.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func GetActor(ctx context.Context) (directory.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(directory.Actor)
	return actor, ok
}
