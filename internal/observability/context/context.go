package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type requestIDKey struct{}
type actorKey struct{}
type jobKey struct{}

type actor struct {
	kind string
	id   string
}

const (
	ActorTypeAdmin     = "admin"
	ActorTypeScheduler = "scheduler"
	ActorTypeCLI       = "cli"
)

// NewRequestID returns a sortable identifier for requests and job runs.
func NewRequestID() string {
	return ulid.Make().String()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor records who is acting on the request.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.kind, value.id
}

func WithJob(ctx context.Context, job string) context.Context {
	job = strings.TrimSpace(job)
	if job == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey{}, job)
}

func JobFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(jobKey{}).(string)
	return value
}
