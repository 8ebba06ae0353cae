package phaserun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/workflow"
)

// Handler is the workflow controller entry point.
type Handler interface {
	Handle(ctx context.Context, t workflow.Trigger) workflow.Result
}

type Activities struct {
	Log     *logger.Logger
	Handler Handler
}

// Handle runs one controller invocation for c. Controller failures are reported in the
// Result, not as an activity error.
func (a *Activities) Handle(ctx context.Context, c workflow.Continuation) (workflow.Result, error) {
	if a == nil || a.Handler == nil {
		return workflow.Result{}, fmt.Errorf("phaserun: activity not configured")
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	res := a.Handler.Handle(ctx, c.Trigger())
	if a.Log != nil && res.Status != workflow.StatusSuccess {
		a.Log.Warn("Phase run did not succeed", "job_id", c.JobID, "phase", int(c.Phase), "status", res.Status, "message", res.Message)
	}
	return res, nil
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		hb := time.NewTicker(10 * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-hb.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
