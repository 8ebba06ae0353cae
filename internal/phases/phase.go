package phases

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is one of the three ordered analysis stages.
type Phase int

const (
	Phase1 Phase = 1 // initial classification
	Phase2 Phase = 2 // cross-validation
	Phase3 Phase = 3 // final validation
)

func (p Phase) Valid() bool { return p >= Phase1 && p <= Phase3 }

func (p Phase) String() string { return fmt.Sprintf("phase%d", int(p)) }

// Previous is the phase whose artifact p consumes. Phase1 has none and returns 0.
func (p Phase) Previous() Phase {
	if p <= Phase1 {
		return 0
	}
	return p - 1
}

const (
	StatusPreliminary    = "PRELIMINARY"
	StatusCrossValidated = "CROSS_VALIDATED"
	StatusFinal          = "FINAL"
)

// Artifact is the persisted output of one phase. Exactly one payload field is set,
// matching Phase.
type Artifact struct {
	Phase            Phase     `json:"phase"`
	JobID            string    `json:"job_id"`
	DocumentName     string    `json:"document_name"`
	ValidationStatus string    `json:"validation_status"`
	ProducedAt       time.Time `json:"produced_at"`
	Warnings         []string  `json:"warnings,omitempty"`
	RawText          string    `json:"raw_text"`

	Analysis        *AnalysisPayload        `json:"analysis,omitempty"`
	CrossValidation *CrossValidationPayload `json:"cross_validation,omitempty"`
	FinalReport     *FinalReportPayload     `json:"final_report,omitempty"`
}

func (a Artifact) hasPayload() bool {
	switch a.Phase {
	case Phase1:
		return a.Analysis != nil
	case Phase2:
		return a.CrossValidation != nil
	case Phase3:
		return a.FinalReport != nil
	default:
		return false
	}
}

// Payload returns the phase-specific payload as an untyped value.
func (a Artifact) Payload() any {
	switch a.Phase {
	case Phase1:
		return a.Analysis
	case Phase2:
		return a.CrossValidation
	case Phase3:
		return a.FinalReport
	default:
		return nil
	}
}

// Finding is one classified log entry.
type Finding struct {
	Timestamp        string `json:"timestamp"`
	RequestID        string `json:"request_id"`
	Source           string `json:"source,omitempty"`
	Username         string `json:"username,omitempty"`
	Resource         string `json:"resource,omitempty"`
	Action           string `json:"action,omitempty"`
	NISTCategory     string `json:"nist_category,omitempty"`
	ViolationDetails string `json:"violation_details,omitempty"`
	NISTReference    string `json:"nist_reference,omitempty"`
}

type AnalysisPayload struct {
	NonCompliantLogs []Finding `json:"nonCompliantLogs"`
	CompliantLogs    []Finding `json:"compliantLogs"`
}

// RequestIDs is the set of request ids the analysis mentions.
func (p *AnalysisPayload) RequestIDs() map[string]struct{} {
	out := map[string]struct{}{}
	if p == nil {
		return out
	}
	for _, f := range p.NonCompliantLogs {
		out[f.RequestID] = struct{}{}
	}
	for _, f := range p.CompliantLogs {
		out[f.RequestID] = struct{}{}
	}
	return out
}

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

type VerifiedFinding struct {
	RequestID             string   `json:"request_id"`
	GroundTruthMatch      bool     `json:"ground_truth_match"`
	CorrectedNISTCategory string   `json:"corrected_nist_category,omitempty"`
	Severity              Severity `json:"severity"`
	Evidence              []string `json:"evidence,omitempty"`
}

type CrossValidationPayload struct {
	VerifiedFindings []VerifiedFinding `json:"verifiedFindings"`
	FalsePositives   []json.RawMessage `json:"falsePositives"`
	MissedEntries    []json.RawMessage `json:"missedEntries"`
}

type ComplianceStatus string

const (
	ComplianceConfirmed     ComplianceStatus = "CONFIRMED"
	ComplianceFalsePositive ComplianceStatus = "FALSE_POSITIVE"
)

type ValidatedResult struct {
	RequestID        string           `json:"request_id"`
	NISTCategory     string           `json:"nist_category"`
	Severity         Severity         `json:"severity"`
	ComplianceStatus ComplianceStatus `json:"compliance_status"`
	RelatedEntries   []string         `json:"related_entries,omitempty"`
}

// Statistics scores are percentages in [0,100].
type Statistics struct {
	PrecisionScore float64 `json:"precision_score"`
	RecallScore    float64 `json:"recall_score"`
	AccuracyScore  float64 `json:"accuracy_score"`
}

type FinalReportPayload struct {
	ValidatedResults []ValidatedResult `json:"validatedResults"`
	Statistics       Statistics        `json:"statistics"`
	ValidationReport string            `json:"validation_report"`
}
