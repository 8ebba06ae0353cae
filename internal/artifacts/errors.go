package artifacts

import "fmt"

// NotFoundError reports that (JobID, Key) has no stored value.
type NotFoundError struct {
	JobID  string
	Key    Key
	Object string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "artifact not found"
	}
	return fmt.Sprintf("artifact not found: job=%s key=%s object=%s", e.JobID, e.Key, e.Object)
}

func (e *NotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func notFound(jobID string, key Key, err error) error {
	return &NotFoundError{JobID: jobID, Key: key, Object: ObjectName(jobID, key), Err: err}
}
