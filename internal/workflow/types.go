package workflow

import (
	"net/http"
	"time"

	"github.com/yungbote/logcompliance/internal/phases"
)

// State is a controller state. START is implicit for any trigger without a phase.
type State string

const (
	StateStart         State = "START"
	StatePhase1Running State = "PHASE1_RUNNING"
	StatePhase2Running State = "PHASE2_RUNNING"
	StatePhase3Running State = "PHASE3_RUNNING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

func runningState(p phases.Phase) State {
	switch p {
	case phases.Phase1:
		return StatePhase1Running
	case phases.Phase2:
		return StatePhase2Running
	case phases.Phase3:
		return StatePhase3Running
	default:
		return StateStart
	}
}

// SourceLocation is the bucket object a job was started from.
type SourceLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Job is the metadata record kept for one workflow instance.
type Job struct {
	JobID           string         `json:"job_id"`
	DocumentName    string         `json:"document_name"`
	SourceLocation  SourceLocation `json:"source_location"`
	PhasesCompleted int            `json:"phases_completed"`
	Completed       bool           `json:"completed"`
	CompletionTime  *time.Time     `json:"completion_time,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Taxonomy        []string       `json:"taxonomy"`
}

// recordPhase marks phase n persisted. phases_completed never decreases.
func (j *Job) recordPhase(n phases.Phase, now time.Time) {
	if int(n) > j.PhasesCompleted {
		j.PhasesCompleted = int(n)
	}
	if j.PhasesCompleted > int(phases.Phase3) {
		j.PhasesCompleted = int(phases.Phase3)
	}
	j.UpdatedAt = now
	if n == phases.Phase3 {
		j.Completed = true
		t := now
		j.CompletionTime = &t
	}
}

// Continuation is what gets scheduled to run the next phase of a job.
type Continuation struct {
	JobID        string       `json:"job_id"`
	Phase        phases.Phase `json:"phase"`
	DocumentName string       `json:"document_name"`
}

func (c Continuation) Trigger() Trigger {
	return ContinueTrigger(c.JobID, int(c.Phase), c.DocumentName)
}

type Status string

const (
	StatusSuccess     Status = "success"
	StatusClientError Status = "client_error"
	StatusServerError Status = "server_error"
)

// Result is the outcome of one controller invocation.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
	Phase   int    `json:"phase,omitempty"`
	State   State  `json:"state"`
}

func (r Result) HTTPStatus() int {
	switch r.Status {
	case StatusSuccess:
		return http.StatusOK
	case StatusClientError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
