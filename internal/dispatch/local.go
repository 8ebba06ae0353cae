package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/workflow"
)

var ErrLocalQueueFull = errors.New("local dispatch queue full")

// LocalDispatcher runs continuations in-process. Dispatch only enqueues; Run executes
// with at most Limit invocations in flight.
type LocalDispatcher struct {
	log   *logger.Logger
	queue chan workflow.Continuation
	limit int

	mu      sync.RWMutex
	handler Handler
}

func NewLocalDispatcher(log *logger.Logger, limit, buffer int) *LocalDispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if limit < 1 {
		limit = 1
	}
	if buffer < 1 {
		buffer = 256
	}
	return &LocalDispatcher{
		log:   log.With("service", "LocalDispatcher"),
		queue: make(chan workflow.Continuation, buffer),
		limit: limit,
	}
}

// Bind sets the handler. The controller and the dispatcher reference each other, so the
// handler is attached after both exist.
func (d *LocalDispatcher) Bind(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, c workflow.Continuation) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.queue <- c:
		return nil
	default:
		return ErrLocalQueueFull
	}
}

// Run executes queued continuations until ctx is cancelled, then waits for in-flight ones.
// Continuations still queued after that are dropped and logged so they can be re-sent.
func (d *LocalDispatcher) Run(ctx context.Context) error {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("local dispatcher has no handler")
	}

	var g errgroup.Group
	g.SetLimit(d.limit)
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case c := <-d.queue:
			g.Go(func() error {
				res := h.Handle(context.WithoutCancel(ctx), c.Trigger())
				d.log.Info("Continuation delivered", "job_id", c.JobID, "phase", int(c.Phase), "status", res.Status, "state", res.State)
				return nil
			})
		}
	}
	err := g.Wait()
	d.drop()
	return err
}

func (d *LocalDispatcher) drop() {
	var dropped []string
	for {
		select {
		case c := <-d.queue:
			dropped = append(dropped, fmt.Sprintf("%s/phase%d", c.JobID, int(c.Phase)))
		default:
			if len(dropped) > 0 {
				d.log.Warn("Dropped queued continuations on shutdown", "count", len(dropped), "continuations", dropped)
			}
			return
		}
	}
}
