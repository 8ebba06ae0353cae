package phaserun

import (
	"fmt"

	"github.com/yungbote/logcompliance/internal/workflow"
)

const (
	WorkflowName   = "phase_run"
	ActivityHandle = "phase_run_handle"
)

// WorkflowID names the execution for one (job, phase). A re-delivered continuation for
// the same pair reuses the id once the earlier execution has closed.
func WorkflowID(c workflow.Continuation) string {
	return fmt.Sprintf("logc-%s-phase%d", c.JobID, int(c.Phase))
}
