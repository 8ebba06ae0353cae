package workflow

import (
	"bytes"
	"encoding/json"
	"path"
	"strings"
)

// Trigger is the payload of one controller invocation. A start trigger carries
// SourceLocation; a continue trigger carries JobID and Phase.
type Trigger struct {
	SourceLocation *SourceLocation `json:"source_location,omitempty"`
	JobID          string          `json:"job_id,omitempty"`
	Phase          *int            `json:"phase,omitempty"`
	DocumentName   string          `json:"document_name,omitempty"`
}

func StartTrigger(loc SourceLocation, documentName string) Trigger {
	return Trigger{SourceLocation: &loc, DocumentName: documentName}
}

func ContinueTrigger(jobID string, phase int, documentName string) Trigger {
	return Trigger{JobID: jobID, Phase: &phase, DocumentName: documentName}
}

func (t Trigger) IsStart() bool { return t.SourceLocation != nil }

// ParseTrigger decodes a JSON trigger and checks its shape.
func ParseTrigger(raw []byte) (Trigger, error) {
	var t Trigger
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Trigger{}, &MalformedTriggerError{Reason: "decode trigger", Err: err}
	}
	if dec.More() {
		return Trigger{}, &MalformedTriggerError{Reason: "trailing data after trigger"}
	}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// Validate checks the trigger shape. A continue trigger with a well-formed shape but an
// unsupported phase number is an *InvalidPhaseError, not a malformed trigger.
func (t Trigger) Validate() error {
	switch {
	case t.SourceLocation != nil && (t.JobID != "" || t.Phase != nil):
		return &MalformedTriggerError{Reason: "trigger mixes start and continue fields"}
	case t.SourceLocation != nil:
		if strings.TrimSpace(t.SourceLocation.Key) == "" {
			return &MalformedTriggerError{Reason: "source_location.key is required"}
		}
		return nil
	case t.Phase == nil:
		return &MalformedTriggerError{Reason: "trigger has neither source_location nor phase"}
	}

	if err := validateJobID(t.JobID); err != nil {
		return err
	}
	if strings.TrimSpace(t.DocumentName) == "" {
		return &MalformedTriggerError{Reason: "document_name is required"}
	}
	if *t.Phase != 2 && *t.Phase != 3 {
		return &InvalidPhaseError{Phase: *t.Phase}
	}
	return nil
}

func validateJobID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &MalformedTriggerError{Reason: "job_id is required"}
	}
	if strings.ContainsAny(id, "/\\ \t\n") || strings.Contains(id, "..") {
		return &MalformedTriggerError{Reason: "job_id contains path characters"}
	}
	return nil
}

// documentName is the trigger's document name, defaulting to the base of the source key.
func (t Trigger) documentName() string {
	if name := strings.TrimSpace(t.DocumentName); name != "" {
		return name
	}
	if t.SourceLocation != nil {
		return path.Base(strings.TrimSpace(t.SourceLocation.Key))
	}
	return ""
}
