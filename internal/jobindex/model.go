package jobindex

import (
	"time"

	"gorm.io/datatypes"
)

// JobRecord is the queryable projection of a job's metadata artifact.
type JobRecord struct {
	JobID           string         `gorm:"column:job_id;primaryKey" json:"job_id"`
	DocumentName    string         `gorm:"column:document_name;not null" json:"document_name"`
	SourceBucket    string         `gorm:"column:source_bucket" json:"source_bucket"`
	SourceKey       string         `gorm:"column:source_key" json:"source_key"`
	PhasesCompleted int            `gorm:"column:phases_completed;not null;default:0;index" json:"phases_completed"`
	Completed       bool           `gorm:"column:completed;not null;default:false;index" json:"completed"`
	CompletionTime  *time.Time     `gorm:"column:completion_time" json:"completion_time,omitempty"`
	Taxonomy        datatypes.JSON `gorm:"column:taxonomy" json:"taxonomy"`
	StartedAt       time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null;index" json:"updated_at"`
}

func (JobRecord) TableName() string { return "log_compliance_job" }
