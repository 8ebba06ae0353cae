package dispatch

import (
	"context"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/temporalx/phaserun"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

// TemporalDispatcher starts one phase_run workflow per continuation.
type TemporalDispatcher struct {
	log       *logger.Logger
	tc        workflowStarter
	taskQueue string
}

func NewTemporalDispatcher(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*TemporalDispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	return newTemporalDispatcher(log, tc, taskQueue)
}

func newTemporalDispatcher(log *logger.Logger, tc workflowStarter, taskQueue string) (*TemporalDispatcher, error) {
	if strings.TrimSpace(taskQueue) == "" {
		return nil, fmt.Errorf("temporal task queue required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TemporalDispatcher{log: log.With("service", "TemporalDispatcher"), tc: tc, taskQueue: taskQueue}, nil
}

func (d *TemporalDispatcher) Dispatch(ctx context.Context, c workflow.Continuation) error {
	run, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    phaserun.WorkflowID(c),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, phaserun.WorkflowName, c)
	if err != nil {
		return fmt.Errorf("start %s: %w", phaserun.WorkflowID(c), err)
	}
	d.log.Info("Continuation scheduled", "job_id", c.JobID, "phase", int(c.Phase), "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
