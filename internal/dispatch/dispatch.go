// Package dispatch delivers workflow continuations back to the controller.
package dispatch

import (
	"context"

	"github.com/yungbote/logcompliance/internal/workflow"
)

// Handler is the controller entry point a consumer feeds.
type Handler interface {
	Handle(ctx context.Context, t workflow.Trigger) workflow.Result
}

var (
	_ workflow.Dispatcher = (*TemporalDispatcher)(nil)
	_ workflow.Dispatcher = (*RedisDispatcher)(nil)
	_ workflow.Dispatcher = (*LocalDispatcher)(nil)
)
