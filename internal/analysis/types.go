package analysis

import "encoding/json"

const (
	contextModeMultiDocs  = "multi_docs"
	contextModeDocContext = "doc_context"

	statusProcessed = "processed"
)

// SubmissionResult is the outcome of an upload the service answered.
// Accepted is false when the service reported a non-200 status_code.
type SubmissionResult struct {
	Accepted   bool
	StatusCode int
	Raw        json.RawMessage
}

type uploadResponse struct {
	StatusCode any `json:"status_code"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type queryResponse struct {
	GeneratedText *string `json:"generated_text"`
}
