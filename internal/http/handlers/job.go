package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/http/response"
	"github.com/yungbote/logcompliance/internal/jobindex"
	"github.com/yungbote/logcompliance/internal/platform/apierr"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type JobReader interface {
	LoadJob(ctx context.Context, jobID string) (workflow.Job, error)
	ArtifactsPresent(ctx context.Context, jobID string) (map[int]bool, error)
}

type JobLister interface {
	List(ctx context.Context, f jobindex.ListFilter) ([]jobindex.JobRecord, error)
}

type JobHandler struct {
	jobs  JobReader
	index JobLister
}

// NewJobHandler builds the job endpoints. index may be nil, in which case listing is
// unavailable.
func NewJobHandler(jobs JobReader, index JobLister) *JobHandler {
	return &JobHandler{jobs: jobs, index: index}
}

type jobView struct {
	Job       workflow.Job    `json:"job"`
	Artifacts map[string]bool `json:"artifacts"`
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := strings.TrimSpace(c.Param("id"))
	job, err := h.jobs.LoadJob(ctx, jobID)
	if err != nil {
		response.RespondAPIError(c, jobError(err))
		return
	}
	present, err := h.jobs.ArtifactsPresent(ctx, jobID)
	if err != nil {
		response.RespondAPIError(c, jobError(err))
		return
	}
	view := jobView{Job: job, Artifacts: make(map[string]bool, len(present))}
	for n, ok := range present {
		view.Artifacts["phase"+strconv.Itoa(n)] = ok
	}
	response.RespondOK(c, view)
}

// GET /api/jobs?limit=&completed=
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.index == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "job_index_disabled", errors.New("job index is not configured"))
		return
	}
	var f jobindex.ListFilter
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	if raw := strings.TrimSpace(c.Query("completed")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_completed", errors.New("completed must be a boolean"))
			return
		}
		f.Completed = &b
	}
	jobs, err := h.index.List(c.Request.Context(), f)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

func jobError(err error) error {
	var nf *artifacts.NotFoundError
	switch {
	case errors.As(err, &nf):
		return apierr.NotFound("job_not_found", err)
	case workflow.IsClientError(err):
		return apierr.BadRequest("invalid_job_id", err)
	default:
		return apierr.Internal("load_job_failed", err)
	}
}
