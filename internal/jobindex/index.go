// Package jobindex keeps a postgres projection of job metadata for listing and lookup.
// The bucket artifact stays the source of truth.
package jobindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/workflow"
)

var ErrNotFound = errors.New("job not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Index struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ workflow.JobIndex = (*Index)(nil)

// Open connects to postgres and migrates the job table.
func Open(log *logger.Logger, dsn string) (*Index, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(log, db)
}

// New wraps an open gorm handle and migrates the job table.
func New(log *logger.Logger, db *gorm.DB) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	idx := &Index{db: db, log: log.With("service", "JobIndex")}
	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		idx.log.Error("Auto migration failed for job index", "error", err)
		return nil, fmt.Errorf("migrate job index: %w", err)
	}
	return idx, nil
}

func (i *Index) Upsert(ctx context.Context, job workflow.Job) error {
	rec, err := recordFromJob(job)
	if err != nil {
		return err
	}
	return i.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"document_name",
			"source_bucket",
			"source_key",
			"phases_completed",
			"completed",
			"completion_time",
			"taxonomy",
			"updated_at",
		}),
	}).Create(&rec).Error
}

func (i *Index) Get(ctx context.Context, jobID string) (JobRecord, error) {
	var rec JobRecord
	err := i.db.WithContext(ctx).Where("job_id = ?", jobID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return JobRecord{}, fmt.Errorf("%s: %w", jobID, ErrNotFound)
	}
	return rec, err
}

type ListFilter struct {
	Limit int
	// Completed filters by completion when set.
	Completed *bool
}

// List returns jobs most recently updated first.
func (i *Index) List(ctx context.Context, f ListFilter) ([]JobRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := i.db.WithContext(ctx).Model(&JobRecord{})
	if f.Completed != nil {
		q = q.Where("completed = ?", *f.Completed)
	}
	var out []JobRecord
	if err := q.Order("updated_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Index) Ping(ctx context.Context) error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (i *Index) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordFromJob(job workflow.Job) (JobRecord, error) {
	if strings.TrimSpace(job.JobID) == "" {
		return JobRecord{}, fmt.Errorf("job id required")
	}
	tax := job.Taxonomy
	if tax == nil {
		tax = []string{}
	}
	raw, err := json.Marshal(tax)
	if err != nil {
		return JobRecord{}, err
	}
	return JobRecord{
		JobID:           job.JobID,
		DocumentName:    job.DocumentName,
		SourceBucket:    job.SourceLocation.Bucket,
		SourceKey:       job.SourceLocation.Key,
		PhasesCompleted: job.PhasesCompleted,
		Completed:       job.Completed,
		CompletionTime:  job.CompletionTime,
		Taxonomy:        datatypes.JSON(raw),
		StartedAt:       job.StartedAt,
		UpdatedAt:       job.UpdatedAt,
	}, nil
}
