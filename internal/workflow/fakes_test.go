package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/logcompliance/internal/analysis"
	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/phases"
)

type fakeAnalyzer struct {
	mu        sync.Mutex
	accepted  bool
	ready     bool
	submitErr error
	submitted []string
	polls     int
}

func (f *fakeAnalyzer) Submit(_ context.Context, _ []byte, name string) (analysis.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, name)
	if f.submitErr != nil {
		return analysis.SubmissionResult{}, f.submitErr
	}
	if !f.accepted {
		return analysis.SubmissionResult{Accepted: false, StatusCode: 500, Raw: []byte(`{"status_code":500}`)}, nil
	}
	return analysis.SubmissionResult{Accepted: true, StatusCode: 200, Raw: []byte(`{"status_code":200}`)}, nil
}

func (f *fakeAnalyzer) AwaitReady(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.ready, nil
}

// scriptedAsker answers each phase with the text registered for it.
type scriptedAsker struct {
	mu      sync.Mutex
	answers map[phases.Phase]string
	errs    map[phases.Phase]error
	calls   map[phases.Phase]int
	current phases.Phase
}

func newScriptedAsker(p1, p2, p3 string) *scriptedAsker {
	return &scriptedAsker{
		answers: map[phases.Phase]string{phases.Phase1: p1, phases.Phase2: p2, phases.Phase3: p3},
		errs:    map[phases.Phase]error{},
		calls:   map[phases.Phase]int{},
	}
}

func (s *scriptedAsker) set(p phases.Phase, answer string) {
	s.mu.Lock()
	s.answers[p] = answer
	s.mu.Unlock()
}

func (s *scriptedAsker) Ask(_ context.Context, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[s.current]++
	if err := s.errs[s.current]; err != nil {
		return "", err
	}
	return s.answers[s.current], nil
}

// phaseTrackingRunner tells the asker which phase is asking and counts runs.
type phaseTrackingRunner struct {
	inner *phases.Processor
	asker *scriptedAsker
	mu    sync.Mutex
	runs  map[phases.Phase]int
}

func (r *phaseTrackingRunner) Run(ctx context.Context, in phases.Input) (phases.Artifact, error) {
	r.mu.Lock()
	r.runs[in.Phase]++
	r.mu.Unlock()
	r.asker.mu.Lock()
	r.asker.current = in.Phase
	r.asker.mu.Unlock()
	return r.inner.Run(ctx, in)
}

func (r *phaseTrackingRunner) count(p phases.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[p]
}

type fakeSource struct {
	objects map[string][]byte
}

func (f *fakeSource) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	v, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("gs://%s/%s: object not found", bucket, key)
	}
	return v, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	err  error
	sent []Continuation
}

func (d *recordingDispatcher) Dispatch(_ context.Context, c Continuation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, c)
	return nil
}

func (d *recordingDispatcher) all() []Continuation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Continuation(nil), d.sent...)
}

type recordingIndex struct {
	mu   sync.Mutex
	err  error
	jobs []Job
}

func (i *recordingIndex) Upsert(_ context.Context, job Job) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.jobs = append(i.jobs, job)
	return i.err
}

type harness struct {
	ctrl       *Controller
	store      *artifacts.MemoryStore
	analyzer   *fakeAnalyzer
	asker      *scriptedAsker
	runner     *phaseTrackingRunner
	dispatcher *recordingDispatcher
	index      *recordingIndex
	clock      *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newHarness(t *testing.T, cfg Config, p1, p2, p3 string) *harness {
	t.Helper()
	asker := newScriptedAsker(p1, p2, p3)
	proc, err := phases.NewProcessor(asker, nil)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	h := &harness{
		store:      artifacts.NewMemoryStore(),
		analyzer:   &fakeAnalyzer{accepted: true, ready: true},
		asker:      asker,
		runner:     &phaseTrackingRunner{inner: proc, asker: asker, runs: map[phases.Phase]int{}},
		dispatcher: &recordingDispatcher{},
		index:      &recordingIndex{},
		clock:      &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	ids := 0
	h.ctrl, err = NewController(Deps{
		Store:      h.store,
		Analyzer:   h.analyzer,
		Runner:     h.runner,
		Source:     &fakeSource{objects: map[string][]byte{"uploads/logs/auth.log": []byte("2025-01-14 ERROR req-1001 DELETE /api/admin/users\n")}},
		Dispatcher: h.dispatcher,
		Index:      h.index,
		Now:        h.clock.Now,
		NewJobID: func() (string, error) {
			ids++
			return fmt.Sprintf("job-%03d", ids), nil
		},
	}, cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return h
}

func startTrigger() Trigger {
	return StartTrigger(SourceLocation{Bucket: "uploads", Key: "logs/auth.log"}, "auth.log")
}
