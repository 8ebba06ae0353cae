package phaserun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	sdkworkflow "go.temporal.io/sdk/workflow"

	"github.com/yungbote/logcompliance/internal/workflow"
)

// Workflow delivers one continuation to the controller. It never retries: re-running a
// phase is a new delivery of the same continuation.
func Workflow(ctx sdkworkflow.Context, c workflow.Continuation) (workflow.Result, error) {
	if strings.TrimSpace(c.JobID) == "" {
		return workflow.Result{}, temporal.NewNonRetryableApplicationError("phaserun: missing job_id", "invalid_continuation", nil)
	}

	ctx = sdkworkflow.WithActivityOptions(ctx, sdkworkflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var res workflow.Result
	if err := sdkworkflow.ExecuteActivity(ctx, ActivityHandle, c).Get(ctx, &res); err != nil {
		return res, err
	}
	if res.Status != workflow.StatusSuccess {
		return res, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("phase %d: %s", int(c.Phase), res.Message),
			string(res.Status),
			nil,
		)
	}
	return res, nil
}
