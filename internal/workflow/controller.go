package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/logcompliance/internal/analysis"
	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/phases"
	"github.com/yungbote/logcompliance/internal/platform/ctxutil"
	"github.com/yungbote/logcompliance/internal/platform/logger"
)

// Analyzer stages a document with the analysis service.
type Analyzer interface {
	Submit(ctx context.Context, document []byte, documentName string) (analysis.SubmissionResult, error)
	AwaitReady(ctx context.Context, documentName string, maxAttempts int, pollInterval time.Duration) (bool, error)
}

type PhaseRunner interface {
	Run(ctx context.Context, in phases.Input) (phases.Artifact, error)
}

// SourceReader fetches the uploaded document named by a start trigger.
type SourceReader interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Dispatcher schedules a future controller invocation for the next phase.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Continuation) error
}

// JobIndex mirrors job metadata for listing. It is never read by the controller.
type JobIndex interface {
	Upsert(ctx context.Context, job Job) error
}

type Config struct {
	// ProceedOnTimeout runs phase 1 even when the document never reports processed.
	ProceedOnTimeout  bool
	ReadyMaxAttempts  int
	ReadyPollInterval time.Duration
	// InvocationTimeout bounds one Handle call. Zero means no bound.
	InvocationTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProceedOnTimeout:  true,
		ReadyMaxAttempts:  10,
		ReadyPollInterval: 2 * time.Second,
		InvocationTimeout: 15 * time.Minute,
	}
}

type Deps struct {
	Store      artifacts.Store
	Analyzer   Analyzer
	Runner     PhaseRunner
	Source     SourceReader
	Dispatcher Dispatcher
	Index      JobIndex
	Log        *logger.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
	NewJobID   func() (string, error)
}

// Controller carries a job through its three phases. It holds no per-job state: every
// invocation is driven by its Trigger and the artifact store.
type Controller struct {
	store      artifacts.Store
	analyzer   Analyzer
	runner     PhaseRunner
	source     SourceReader
	dispatcher Dispatcher
	index      JobIndex
	log        *logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newJobID   func() (string, error)
	cfg        Config
}

func NewController(deps Deps, cfg Config) (*Controller, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("artifact store required")
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("analyzer required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("phase runner required")
	case deps.Source == nil:
		return nil, fmt.Errorf("source reader required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher required")
	}
	if cfg.ReadyMaxAttempts < 0 {
		cfg.ReadyMaxAttempts = 0
	}
	if cfg.ReadyPollInterval < 0 {
		cfg.ReadyPollInterval = 0
	}

	c := &Controller{
		store:      deps.Store,
		analyzer:   deps.Analyzer,
		runner:     deps.Runner,
		source:     deps.Source,
		dispatcher: deps.Dispatcher,
		index:      deps.Index,
		log:        deps.Log,
		tracer:     deps.Tracer,
		now:        deps.Now,
		newJobID:   deps.NewJobID,
		cfg:        cfg,
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.With("service", "WorkflowController")
	if c.tracer == nil {
		c.tracer = otel.Tracer("logcompliance/workflow")
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newJobID == nil {
		c.newJobID = NewJobID
	}
	return c, nil
}

// NewJobID returns a time-ordered UUIDv7 taken at arrival.
func NewJobID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Handle runs at most one phase for t and reports the outcome. It never panics on
// phase failures and never retries. Cancelling ctx does not abort a started phase;
// only InvocationTimeout bounds it.
func (c *Controller) Handle(ctx context.Context, t Trigger) Result {
	ctx = context.WithoutCancel(ctx)
	if c.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InvocationTimeout)
		defer cancel()
	}

	if err := t.Validate(); err != nil {
		res := Result{Status: classify(err), Message: err.Error(), JobID: t.JobID, State: StateFailed}
		if t.Phase != nil {
			res.Phase = *t.Phase
		}
		c.log.Warn("Rejected trigger", "job_id", t.JobID, "phase", res.Phase, "error", err, "error_kind", errorKind(err))
		return res
	}

	phase := phases.Phase1
	if !t.IsStart() {
		phase = phases.Phase(*t.Phase)
	}
	state := runningState(phase)

	ctx, span := c.tracer.Start(ctx, "workflow."+phase.String(), trace.WithAttributes(
		attribute.Int("workflow.phase", int(phase)),
		attribute.String("workflow.document", t.documentName()),
	))
	defer span.End()

	var (
		jobID string
		next  State
		err   error
	)
	start := c.now()
	switch phase {
	case phases.Phase1:
		jobID, err = c.runPhase1(ctx, t)
		next = StatePhase2Running
	default:
		jobID = strings.TrimSpace(t.JobID)
		err = c.runContinuation(ctx, jobID, phase, strings.TrimSpace(t.DocumentName))
		next = StatePhase3Running
		if phase == phases.Phase3 {
			next = StateDone
		}
	}
	span.SetAttributes(attribute.String("workflow.job_id", jobID))

	log := c.log.With(append([]interface{}{"job_id", jobID, "phase", int(phase)}, ctxutil.LogFields(ctx)...)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind(err))
		kv := []interface{}{"state", StateFailed, "from_state", state, "error", err, "error_kind", errorKind(err)}
		var ve *phases.ValidationError
		if errors.As(err, &ve) {
			kv = append(kv, "raw_text", truncate(ve.Raw, 2048))
		}
		log.Error("Phase failed", kv...)
		return Result{
			Status:  classify(err),
			Message: fmt.Sprintf("%s failed: %v", phase, err),
			JobID:   jobID,
			Phase:   int(phase),
			State:   StateFailed,
		}
	}

	log.Info("Phase completed", "state", next, "elapsed_ms", c.now().Sub(start).Milliseconds())
	msg := fmt.Sprintf("%s completed; %s scheduled", phase, phase+1)
	if next == StateDone {
		msg = fmt.Sprintf("%s completed; workflow done", phase)
	}
	return Result{Status: StatusSuccess, Message: msg, JobID: jobID, Phase: int(phase), State: next}
}

func (c *Controller) runPhase1(ctx context.Context, t Trigger) (string, error) {
	arrival := c.now().UTC()
	jobID, err := c.newJobID()
	if err != nil {
		return "", fmt.Errorf("allocate job id: %w", err)
	}
	loc := *t.SourceLocation
	docName := t.documentName()

	doc, err := c.source.ReadObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return jobID, fmt.Errorf("read source gs://%s/%s: %w", loc.Bucket, loc.Key, err)
	}

	sub, err := c.analyzer.Submit(ctx, doc, docName)
	if err != nil {
		return jobID, err
	}
	if !sub.Accepted {
		return jobID, &SubmissionRejectedError{DocumentName: docName, StatusCode: sub.StatusCode, Raw: string(sub.Raw)}
	}

	ready, err := c.analyzer.AwaitReady(ctx, docName, c.cfg.ReadyMaxAttempts, c.cfg.ReadyPollInterval)
	if err != nil {
		return jobID, fmt.Errorf("await readiness: %w", err)
	}
	if !ready {
		if !c.cfg.ProceedOnTimeout {
			return jobID, &ReadinessTimeoutError{DocumentName: docName, Attempts: c.cfg.ReadyMaxAttempts}
		}
		c.log.Warn("Document not confirmed processed; proceeding", "job_id", jobID, "document", docName, "attempts", c.cfg.ReadyMaxAttempts)
	}

	art, err := c.runner.Run(ctx, phases.Input{Phase: phases.Phase1, JobID: jobID, DocumentName: docName})
	if err != nil {
		return jobID, err
	}
	if err := artifacts.PutJSON(ctx, c.store, jobID, artifacts.PhaseKey(1), art); err != nil {
		return jobID, fmt.Errorf("persist phase1 artifact: %w", err)
	}

	job := Job{
		JobID:          jobID,
		DocumentName:   docName,
		SourceLocation: loc,
		StartedAt:      arrival,
		Taxonomy:       phases.TaxonomyLabels(),
	}
	job.recordPhase(phases.Phase1, c.now().UTC())
	if err := c.saveJob(ctx, job); err != nil {
		return jobID, err
	}
	return jobID, c.schedule(ctx, Continuation{JobID: jobID, Phase: phases.Phase2, DocumentName: docName})
}

func (c *Controller) runContinuation(ctx context.Context, jobID string, phase phases.Phase, docName string) error {
	job, err := artifacts.GetJSON[Job](ctx, c.store, jobID, artifacts.MetadataKey)
	if err != nil {
		return fmt.Errorf("load job metadata: %w", err)
	}
	switch {
	case job.DocumentName == "":
		job.DocumentName = docName
	case docName != job.DocumentName:
		return &MalformedTriggerError{Reason: fmt.Sprintf("document_name %q does not match job document %q", docName, job.DocumentName)}
	}
	docName = job.DocumentName
	prev := phase.Previous()
	prior, err := artifacts.GetJSON[phases.Artifact](ctx, c.store, jobID, artifacts.PhaseKey(int(prev)))
	if err != nil {
		return fmt.Errorf("load %s artifact: %w", prev, err)
	}

	art, err := c.runner.Run(ctx, phases.Input{Phase: phase, JobID: jobID, DocumentName: docName, Prior: &prior})
	if err != nil {
		return err
	}
	if err := artifacts.PutJSON(ctx, c.store, jobID, artifacts.PhaseKey(int(phase)), art); err != nil {
		return fmt.Errorf("persist %s artifact: %w", phase, err)
	}

	job.recordPhase(phase, c.now().UTC())
	if err := c.saveJob(ctx, job); err != nil {
		return err
	}
	if phase == phases.Phase3 {
		return nil
	}
	return c.schedule(ctx, Continuation{JobID: jobID, Phase: phase + 1, DocumentName: docName})
}

func (c *Controller) saveJob(ctx context.Context, job Job) error {
	if err := artifacts.PutJSON(ctx, c.store, job.JobID, artifacts.MetadataKey, job); err != nil {
		return fmt.Errorf("persist job metadata: %w", err)
	}
	if c.index != nil {
		if err := c.index.Upsert(ctx, job); err != nil {
			c.log.Warn("Job index update failed", "job_id", job.JobID, "error", err)
		}
	}
	return nil
}

func (c *Controller) schedule(ctx context.Context, next Continuation) error {
	if err := c.dispatcher.Dispatch(ctx, next); err != nil {
		return &DispatchError{Next: next.Phase, Err: err}
	}
	return nil
}

// LoadJob returns the persisted metadata of jobID.
func (c *Controller) LoadJob(ctx context.Context, jobID string) (Job, error) {
	if err := validateJobID(jobID); err != nil {
		return Job{}, err
	}
	return artifacts.GetJSON[Job](ctx, c.store, jobID, artifacts.MetadataKey)
}

// ArtifactsPresent reports which phase artifacts exist for jobID.
func (c *Controller) ArtifactsPresent(ctx context.Context, jobID string) (map[int]bool, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	out := make(map[int]bool, 3)
	for n := 1; n <= 3; n++ {
		ok, err := c.store.Exists(ctx, jobID, artifacts.PhaseKey(n))
		if err != nil {
			return nil, err
		}
		out[n] = ok
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
