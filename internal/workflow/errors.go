package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/logcompliance/internal/analysis"
	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/phases"
)

// InvalidPhaseError rejects a continue trigger whose phase is not 2 or 3.
type InvalidPhaseError struct {
	Phase int
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid phase number: %d", e.Phase)
}

type MalformedTriggerError struct {
	Reason string
	Err    error
}

func (e *MalformedTriggerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed trigger: %s: %v", e.Reason, e.Err)
	}
	return "malformed trigger: " + e.Reason
}

func (e *MalformedTriggerError) Unwrap() error { return e.Err }

// SubmissionRejectedError reports that the analysis service refused the upload.
type SubmissionRejectedError struct {
	DocumentName string
	StatusCode   int
	Raw          string
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf("analysis service rejected %q: status_code=%d response=%s", e.DocumentName, e.StatusCode, e.Raw)
}

// ReadinessTimeoutError is returned when the document never became ready and the
// controller is configured not to proceed.
type ReadinessTimeoutError struct {
	DocumentName string
	Attempts     int
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("document %q not processed after %d status checks", e.DocumentName, e.Attempts)
}

// DispatchError reports that a phase was persisted but its successor could not be scheduled.
type DispatchError struct {
	Next phases.Phase
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.Next, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func classify(err error) Status {
	var (
		invalidPhase *InvalidPhaseError
		malformed    *MalformedTriggerError
		rejected     *SubmissionRejectedError
	)
	switch {
	case err == nil:
		return StatusSuccess
	case errors.As(err, &invalidPhase), errors.As(err, &malformed), errors.As(err, &rejected):
		return StatusClientError
	default:
		return StatusServerError
	}
}

// errorKind names the failure for logs and spans.
func errorKind(err error) string {
	var (
		transport  *analysis.TransportError
		malformed  *analysis.MalformedResponseError
		validation *phases.ValidationError
		notFound   *artifacts.NotFoundError
		invalid    *InvalidPhaseError
		trigger    *MalformedTriggerError
		rejected   *SubmissionRejectedError
		readiness  *ReadinessTimeoutError
		dispatch   *DispatchError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_phase"
	case errors.As(err, &trigger):
		return "malformed_trigger"
	case errors.As(err, &rejected):
		return "submission_rejected"
	case errors.As(err, &readiness):
		return "readiness_timeout"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &malformed):
		return "malformed_response"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &dispatch):
		return "dispatch"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// RejectedResult reports a trigger refused before reaching the controller.
func RejectedResult(err error) Result {
	return Result{Status: classify(err), Message: err.Error(), State: StateFailed}
}

// IsClientError reports whether err is the caller's fault.
func IsClientError(err error) bool { return classify(err) == StatusClientError }
