package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/logcompliance/internal/analysis"
	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/phases"
	"github.com/yungbote/logcompliance/internal/phases/phasestest"
)

func newDefaultHarness(t *testing.T) *harness {
	return newHarness(t, DefaultConfig(), phasestest.Phase1, phasestest.Phase2, phasestest.Phase3)
}

func mustJob(t *testing.T, h *harness, jobID string) Job {
	t.Helper()
	job, err := artifacts.GetJSON[Job](context.Background(), h.store, jobID, artifacts.MetadataKey)
	if err != nil {
		t.Fatalf("load job %s: %v", jobID, err)
	}
	return job
}

func mustArtifact(t *testing.T, h *harness, jobID string, n int) phases.Artifact {
	t.Helper()
	art, err := artifacts.GetJSON[phases.Artifact](context.Background(), h.store, jobID, artifacts.PhaseKey(n))
	if err != nil {
		t.Fatalf("load phase %d artifact: %v", n, err)
	}
	return art
}

func rawObject(t *testing.T, h *harness, jobID string, key artifacts.Key) []byte {
	t.Helper()
	raw, err := h.store.Get(context.Background(), jobID, key)
	if err != nil {
		t.Fatalf("get %s: %v", artifacts.ObjectName(jobID, key), err)
	}
	return raw
}

func assertJobInvariants(t *testing.T, job Job) {
	t.Helper()
	if job.PhasesCompleted < 0 || job.PhasesCompleted > 3 {
		t.Fatalf("phases_completed out of range: %d", job.PhasesCompleted)
	}
	if job.Completed && (job.PhasesCompleted != 3 || job.CompletionTime == nil) {
		t.Fatalf("completed job without phases_completed=3 and completion_time: %+v", job)
	}
}

// runStart runs a start trigger to success and returns the job id.
func runStart(t *testing.T, h *harness) string {
	t.Helper()
	res := h.ctrl.Handle(context.Background(), startTrigger())
	if res.Status != StatusSuccess {
		t.Fatalf("start: want success got=%+v", res)
	}
	return res.JobID
}

// deliverNext feeds the last scheduled continuation back into the controller.
func deliverNext(t *testing.T, h *harness) Result {
	t.Helper()
	sent := h.dispatcher.all()
	if len(sent) == 0 {
		t.Fatalf("no continuation scheduled")
	}
	return h.ctrl.Handle(context.Background(), sent[len(sent)-1].Trigger())
}

func TestStartPersistsPhase1AndSchedulesPhase2(t *testing.T) {
	h := newDefaultHarness(t)
	res := h.ctrl.Handle(context.Background(), startTrigger())

	if res.Status != StatusSuccess || res.State != StatePhase2Running || res.Phase != 1 {
		t.Fatalf("result: got=%+v", res)
	}
	if res.HTTPStatus() != 200 {
		t.Fatalf("http status: want=200 got=%d", res.HTTPStatus())
	}
	jobID := res.JobID
	wantObjects := []string{
		"iteration1/log_analysis_" + jobID + ".json",
		"workflow_" + jobID + "_metadata.json",
	}
	if diff := cmp.Diff(wantObjects, h.store.Objects()); diff != "" {
		t.Fatalf("objects (-want +got):\n%s", diff)
	}

	art := mustArtifact(t, h, jobID, 1)
	if art.Analysis == nil || len(art.Analysis.NonCompliantLogs) == 0 || len(art.Analysis.CompliantLogs) == 0 {
		t.Fatalf("phase 1 payload: got=%+v", art.Analysis)
	}

	job := mustJob(t, h, jobID)
	if job.PhasesCompleted != 1 || job.Completed || job.CompletionTime != nil {
		t.Fatalf("metadata after phase 1: %+v", job)
	}
	if job.DocumentName != "auth.log" || job.SourceLocation != (SourceLocation{Bucket: "uploads", Key: "logs/auth.log"}) {
		t.Fatalf("metadata source: %+v", job)
	}
	if len(job.Taxonomy) != 5 {
		t.Fatalf("taxonomy: want 5 categories got=%v", job.Taxonomy)
	}

	want := []Continuation{{JobID: jobID, Phase: phases.Phase2, DocumentName: "auth.log"}}
	if diff := cmp.Diff(want, h.dispatcher.all()); diff != "" {
		t.Fatalf("dispatched (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"auth.log"}, h.analyzer.submitted); diff != "" {
		t.Fatalf("submitted (-want +got):\n%s", diff)
	}
	if len(h.index.jobs) != 1 || h.index.jobs[0].PhasesCompleted != 1 {
		t.Fatalf("index upserts: got=%+v", h.index.jobs)
	}
}

func TestStartTriggersGetDistinctJobs(t *testing.T) {
	h := newDefaultHarness(t)
	a := runStart(t, h)
	b := runStart(t, h)
	if a == b {
		t.Fatalf("job ids: want distinct got %q twice", a)
	}
	if got := len(h.dispatcher.all()); got != 2 {
		t.Fatalf("dispatches: want=2 got=%d", got)
	}
}

func TestContinuationsCompleteTheWorkflow(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)

	res := deliverNext(t, h)
	if res.Status != StatusSuccess || res.State != StatePhase3Running || res.Phase != 2 {
		t.Fatalf("phase 2 result: got=%+v", res)
	}
	p1 := mustArtifact(t, h, jobID, 1)
	p2 := mustArtifact(t, h, jobID, 2)
	known := p1.Analysis.RequestIDs()
	if len(p2.CrossValidation.VerifiedFindings) == 0 {
		t.Fatalf("phase 2 artifact has no verified findings")
	}
	for _, f := range p2.CrossValidation.VerifiedFindings {
		if _, ok := known[f.RequestID]; !ok {
			t.Fatalf("verified finding %q not in phase 1 artifact", f.RequestID)
		}
	}
	job := mustJob(t, h, jobID)
	if job.PhasesCompleted != 2 || job.Completed {
		t.Fatalf("metadata after phase 2: %+v", job)
	}

	res = deliverNext(t, h)
	if res.Status != StatusSuccess || res.State != StateDone || res.Phase != 3 {
		t.Fatalf("phase 3 result: got=%+v", res)
	}
	p3 := mustArtifact(t, h, jobID, 3)
	if s := p3.FinalReport.Statistics.PrecisionScore; s < 0 || s > 100 {
		t.Fatalf("precision_score out of range: %v", s)
	}
	if p3.ValidationStatus != phases.StatusFinal {
		t.Fatalf("validation status: want=%q got=%q", phases.StatusFinal, p3.ValidationStatus)
	}
	job = mustJob(t, h, jobID)
	if job.PhasesCompleted != 3 || !job.Completed || job.CompletionTime == nil {
		t.Fatalf("metadata after phase 3: %+v", job)
	}
	assertJobInvariants(t, job)

	sent := h.dispatcher.all()
	if len(sent) != 2 || sent[1].Phase != phases.Phase3 {
		t.Fatalf("dispatches: want phase2 then phase3 got=%+v", sent)
	}
}

func TestInvalidPhaseHasNoSideEffects(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)
	before := h.store.Objects()
	writes := h.store.Writes()
	dispatches := len(h.dispatcher.all())

	for _, phase := range []int{0, 1, 4, 5, -1} {
		res := h.ctrl.Handle(context.Background(), ContinueTrigger(jobID, phase, "auth.log"))
		if res.Status != StatusClientError || res.HTTPStatus() != 400 {
			t.Fatalf("phase %d: want client_error got=%+v", phase, res)
		}
		if res.Phase != phase || res.State != StateFailed {
			t.Fatalf("phase %d: result does not echo phase: %+v", phase, res)
		}
		if !strings.Contains(res.Message, (&InvalidPhaseError{Phase: phase}).Error()) {
			t.Fatalf("phase %d: message=%q", phase, res.Message)
		}
	}

	if h.store.Writes() != writes {
		t.Fatalf("writes: want=%d got=%d", writes, h.store.Writes())
	}
	if diff := cmp.Diff(before, h.store.Objects()); diff != "" {
		t.Fatalf("objects changed (-want +got):\n%s", diff)
	}
	if got := len(h.dispatcher.all()); got != dispatches {
		t.Fatalf("dispatches: want=%d got=%d", dispatches, got)
	}
	if h.runner.count(phases.Phase2)+h.runner.count(phases.Phase3) != 0 {
		t.Fatalf("processor ran for an invalid phase")
	}
}

func TestMissingPredecessorIsNotFound(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		h := newDefaultHarness(t)
		for _, phase := range []int{2, 3} {
			res := h.ctrl.Handle(context.Background(), ContinueTrigger("job-missing", phase, "auth.log"))
			if res.Status != StatusServerError || !strings.Contains(res.Message, "artifact not found") {
				t.Fatalf("phase %d: got=%+v", phase, res)
			}
		}
		if h.store.Writes() != 0 || h.runner.count(phases.Phase2)+h.runner.count(phases.Phase3) != 0 {
			t.Fatalf("writes=%d runs2=%d runs3=%d", h.store.Writes(), h.runner.count(phases.Phase2), h.runner.count(phases.Phase3))
		}
	})

	t.Run("phase 3 before phase 2", func(t *testing.T) {
		h := newDefaultHarness(t)
		jobID := runStart(t, h)
		writes := h.store.Writes()
		dispatches := len(h.dispatcher.all())

		res := h.ctrl.Handle(context.Background(), ContinueTrigger(jobID, 3, "auth.log"))
		if res.Status != StatusServerError {
			t.Fatalf("want server_error got=%+v", res)
		}
		if h.runner.count(phases.Phase3) != 0 {
			t.Fatalf("phase 3 processor ran without a phase 2 artifact")
		}
		if h.store.Writes() != writes || len(h.dispatcher.all()) != dispatches {
			t.Fatalf("side effects on missing predecessor")
		}
		if ok, _ := h.store.Exists(context.Background(), jobID, artifacts.PhaseKey(3)); ok {
			t.Fatalf("phase 3 artifact written")
		}
	})

	t.Run("metadata without artifact", func(t *testing.T) {
		h := newDefaultHarness(t)
		ctx := context.Background()
		if err := artifacts.PutJSON(ctx, h.store, "job-x", artifacts.MetadataKey, Job{JobID: "job-x", PhasesCompleted: 1}); err != nil {
			t.Fatalf("seed metadata: %v", err)
		}
		res := h.ctrl.Handle(ctx, ContinueTrigger("job-x", 2, "auth.log"))
		if res.Status != StatusServerError || h.runner.count(phases.Phase2) != 0 || h.store.Writes() != 1 {
			t.Fatalf("got=%+v runs=%d writes=%d", res, h.runner.count(phases.Phase2), h.store.Writes())
		}
	})
}

func TestRedeliveredContinuationOverwrites(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)
	phase2 := h.dispatcher.all()[0].Trigger()

	if res := h.ctrl.Handle(context.Background(), phase2); res.Status != StatusSuccess {
		t.Fatalf("first phase 2: %+v", res)
	}
	first := rawObject(t, h, jobID, artifacts.PhaseKey(2))

	h.asker.set(phases.Phase2, phasestest.Phase2UnknownID)
	if res := h.ctrl.Handle(context.Background(), phase2); res.Status != StatusSuccess {
		t.Fatalf("redelivered phase 2: %+v", res)
	}
	second := rawObject(t, h, jobID, artifacts.PhaseKey(2))

	if bytes.Equal(first, second) {
		t.Fatalf("redelivery did not overwrite the phase 2 artifact")
	}
	if h.runner.count(phases.Phase2) != 2 {
		t.Fatalf("phase 2 runs: want=2 got=%d", h.runner.count(phases.Phase2))
	}
	art := mustArtifact(t, h, jobID, 2)
	if art.CrossValidation.VerifiedFindings[0].Severity != phases.SeverityHigh {
		t.Fatalf("artifact holds first answer after redelivery")
	}

	phase3 := 0
	for _, c := range h.dispatcher.all() {
		if c.Phase == phases.Phase3 {
			phase3++
		}
	}
	if phase3 != 2 {
		t.Fatalf("phase 3 continuations: want=2 got=%d", phase3)
	}
}

func TestPhasesCompletedNeverDecreases(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)
	phase2 := h.dispatcher.all()[0].Trigger()
	deliverNext(t, h)
	deliverNext(t, h)

	done := mustJob(t, h, jobID)
	assertJobInvariants(t, done)

	if res := h.ctrl.Handle(context.Background(), phase2); res.Status != StatusSuccess {
		t.Fatalf("late phase 2: %+v", res)
	}
	job := mustJob(t, h, jobID)
	if job.PhasesCompleted != 3 || !job.Completed || job.CompletionTime == nil {
		t.Fatalf("metadata regressed after late phase 2: %+v", job)
	}
	if !job.CompletionTime.Equal(*done.CompletionTime) {
		t.Fatalf("completion_time changed by phase 2 redelivery")
	}
	assertJobInvariants(t, job)
}

func TestUnparsablePhase2AnswerFailsPhase2(t *testing.T) {
	h := newHarness(t, DefaultConfig(), phasestest.Phase1, phasestest.Unparsable, phasestest.Phase3)
	jobID := runStart(t, h)
	p1Before := rawObject(t, h, jobID, artifacts.PhaseKey(1))
	metaBefore := rawObject(t, h, jobID, artifacts.MetadataKey)

	res := deliverNext(t, h)
	if res.Status != StatusServerError || res.State != StateFailed || res.Phase != 2 {
		t.Fatalf("want server_error FAILED phase 2 got=%+v", res)
	}
	if !bytes.Equal(p1Before, rawObject(t, h, jobID, artifacts.PhaseKey(1))) {
		t.Fatalf("phase 1 artifact modified")
	}
	if !bytes.Equal(metaBefore, rawObject(t, h, jobID, artifacts.MetadataKey)) {
		t.Fatalf("metadata modified")
	}
	if ok, _ := h.store.Exists(context.Background(), jobID, artifacts.PhaseKey(2)); ok {
		t.Fatalf("phase 2 artifact written for an unparsable answer")
	}
	for _, c := range h.dispatcher.all() {
		if c.Phase == phases.Phase3 {
			t.Fatalf("phase 3 scheduled after a failed phase 2")
		}
	}
}

func TestSubmissionRejectedIsClientError(t *testing.T) {
	h := newDefaultHarness(t)
	h.analyzer.accepted = false

	res := h.ctrl.Handle(context.Background(), startTrigger())
	if res.Status != StatusClientError || res.State != StateFailed {
		t.Fatalf("want client_error got=%+v", res)
	}
	if h.store.Writes() != 0 || len(h.dispatcher.all()) != 0 || h.runner.count(phases.Phase1) != 0 {
		t.Fatalf("side effects after rejected submission")
	}
}

func TestReadinessPolicy(t *testing.T) {
	t.Run("proceed", func(t *testing.T) {
		h := newDefaultHarness(t)
		h.analyzer.ready = false
		if res := h.ctrl.Handle(context.Background(), startTrigger()); res.Status != StatusSuccess {
			t.Fatalf("want success got=%+v", res)
		}
	})
	t.Run("abort", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ProceedOnTimeout = false
		h := newHarness(t, cfg, phasestest.Phase1, phasestest.Phase2, phasestest.Phase3)
		h.analyzer.ready = false

		res := h.ctrl.Handle(context.Background(), startTrigger())
		if res.Status != StatusServerError || !strings.Contains(res.Message, "not processed") {
			t.Fatalf("want readiness server_error got=%+v", res)
		}
		if h.store.Writes() != 0 || h.runner.count(phases.Phase1) != 0 {
			t.Fatalf("phase 1 ran after readiness timeout")
		}
	})
}

func TestTransportFailuresAreServerErrors(t *testing.T) {
	h := newDefaultHarness(t)
	h.analyzer.submitErr = &analysis.TransportError{Op: "submit", Err: errors.New("connection refused")}
	res := h.ctrl.Handle(context.Background(), startTrigger())
	if res.Status != StatusServerError || res.HTTPStatus() != 500 {
		t.Fatalf("submit transport: got=%+v", res)
	}

	h = newDefaultHarness(t)
	jobID := runStart(t, h)
	h.asker.errs[phases.Phase2] = &analysis.TransportError{Op: "ask", Err: errors.New("timeout")}
	res = deliverNext(t, h)
	if res.Status != StatusServerError || res.JobID != jobID {
		t.Fatalf("ask transport: got=%+v", res)
	}
	if ok, _ := h.store.Exists(context.Background(), jobID, artifacts.PhaseKey(2)); ok {
		t.Fatalf("phase 2 artifact written after transport failure")
	}
}

func TestMissingSourceDocumentFails(t *testing.T) {
	h := newDefaultHarness(t)
	res := h.ctrl.Handle(context.Background(), StartTrigger(SourceLocation{Bucket: "uploads", Key: "missing.log"}, ""))
	if res.Status != StatusServerError || h.store.Writes() != 0 || len(h.analyzer.submitted) != 0 {
		t.Fatalf("got=%+v writes=%d", res, h.store.Writes())
	}
}

func TestDispatchFailureKeepsPersistedPhase(t *testing.T) {
	h := newDefaultHarness(t)
	h.dispatcher.err = errors.New("queue unavailable")

	res := h.ctrl.Handle(context.Background(), startTrigger())
	if res.Status != StatusServerError || res.State != StateFailed {
		t.Fatalf("want server_error got=%+v", res)
	}
	job := mustJob(t, h, res.JobID)
	if job.PhasesCompleted != 1 {
		t.Fatalf("metadata: want phases_completed=1 got=%d", job.PhasesCompleted)
	}
	if !strings.Contains(res.Message, "schedule phase2") {
		t.Fatalf("message: got=%q", res.Message)
	}
}

func TestIndexFailureDoesNotFailPhase(t *testing.T) {
	h := newDefaultHarness(t)
	h.index.err = errors.New("postgres down")
	if res := h.ctrl.Handle(context.Background(), startTrigger()); res.Status != StatusSuccess {
		t.Fatalf("want success got=%+v", res)
	}
}

func TestMalformedTriggersAreClientErrors(t *testing.T) {
	h := newDefaultHarness(t)
	phase := 2
	cases := map[string]Trigger{
		"empty":             {},
		"mixed":             {SourceLocation: &SourceLocation{Bucket: "b", Key: "k"}, JobID: "j", Phase: &phase},
		"no key":            {SourceLocation: &SourceLocation{Bucket: "b"}},
		"no job":            {Phase: &phase, DocumentName: "auth.log"},
		"no document":       {JobID: "job-1", Phase: &phase},
		"path in job id":    {JobID: "../other", Phase: &phase, DocumentName: "auth.log"},
		"job without phase": {JobID: "job-1", DocumentName: "auth.log"},
	}
	for name, trig := range cases {
		res := h.ctrl.Handle(context.Background(), trig)
		if res.Status != StatusClientError {
			t.Fatalf("%s: want client_error got=%+v", name, res)
		}
	}
	if h.store.Writes() != 0 {
		t.Fatalf("writes on malformed triggers: %d", h.store.Writes())
	}
}

func TestCancelledCallerDoesNotAbortPhase(t *testing.T) {
	h := newDefaultHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.ctrl.Handle(ctx, startTrigger())
	if res.Status != StatusSuccess || res.State != StatePhase2Running {
		t.Fatalf("cancelled caller: want success got=%+v", res)
	}
	if got := len(h.store.Objects()); got != 2 {
		t.Fatalf("objects after phase 1: want=2 got=%d", got)
	}
	if got := len(h.dispatcher.all()); got != 1 {
		t.Fatalf("dispatches: want=1 got=%d", got)
	}
}

func TestInvocationTimeoutBoundsPhase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InvocationTimeout = time.Nanosecond
	h := newHarness(t, cfg, phasestest.Phase1, phasestest.Phase2, phasestest.Phase3)
	res := h.ctrl.Handle(context.Background(), startTrigger())
	if res.Status != StatusServerError || res.State != StateFailed {
		t.Fatalf("timed out invocation: want server_error got=%+v", res)
	}
	if h.store.Writes() != 0 {
		t.Fatalf("writes after timeout: %d", h.store.Writes())
	}
}

func TestContinuationDocumentMustMatchJob(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)
	writes := h.store.Writes()

	res := h.ctrl.Handle(context.Background(), ContinueTrigger(jobID, 2, "other.log"))
	if res.Status != StatusClientError || res.State != StateFailed || res.Phase != 2 {
		t.Fatalf("mismatched document: want client_error got=%+v", res)
	}
	if h.runner.count(phases.Phase2) != 0 {
		t.Fatalf("phase 2 processor ran for a mismatched document")
	}
	if h.store.Writes() != writes {
		t.Fatalf("writes: want=%d got=%d", writes, h.store.Writes())
	}
	if got := len(h.dispatcher.all()); got != 1 {
		t.Fatalf("dispatches: want=1 got=%d", got)
	}
}

func TestArtifactsPresent(t *testing.T) {
	h := newDefaultHarness(t)
	jobID := runStart(t, h)
	got, err := h.ctrl.ArtifactsPresent(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ArtifactsPresent: %v", err)
	}
	if diff := cmp.Diff(map[int]bool{1: true, 2: false, 3: false}, got); diff != "" {
		t.Fatalf("present (-want +got):\n%s", diff)
	}
	if _, err := h.ctrl.LoadJob(context.Background(), "a/b"); err == nil {
		t.Fatalf("LoadJob with path characters: want error")
	}
}
