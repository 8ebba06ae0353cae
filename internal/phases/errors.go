package phases

import "fmt"

// ValidationError reports an analysis answer that could not be turned into a payload.
// Raw holds the answer as received.
type ValidationError struct {
	Phase  Phase
	Raw    string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "phase validation error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid analysis response: %s: %v", e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: invalid analysis response: %s", e.Phase, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
