package artifacts

import (
	"fmt"
	"strings"
)

// Key names one object of a job. Combine with a job id through ObjectName.
type Key string

// MetadataKey addresses the job metadata record.
const MetadataKey Key = "metadata"

// PhaseKey addresses the artifact of phase n.
func PhaseKey(n int) Key {
	return Key(fmt.Sprintf("iteration%d", n))
}

// ObjectName is the storage object name for (jobID, key).
//
//	PhaseKey(2), "abc" -> iteration2/log_analysis_abc.json
//	MetadataKey, "abc" -> workflow_abc_metadata.json
func ObjectName(jobID string, key Key) string {
	jobID = strings.TrimSpace(jobID)
	if key == MetadataKey {
		return "workflow_" + jobID + "_metadata.json"
	}
	return string(key) + "/log_analysis_" + jobID + ".json"
}
