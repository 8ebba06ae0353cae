package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/temporalx"
	"github.com/yungbote/logcompliance/internal/temporalx/phaserun"
)

type Options struct {
	Config      temporalx.Config
	Concurrency int
	// StartMaxWait bounds how long Start keeps retrying a worker that fails to poll.
	StartMaxWait time.Duration
}

type Runner struct {
	log     *logger.Logger
	tc      temporalsdkclient.Client
	handler phaserun.Handler
	opts    Options
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, handler phaserun.Handler, opts Options) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if handler == nil {
		return nil, fmt.Errorf("temporal worker missing phase handler")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{log: log.With("service", "TemporalWorker"), tc: tc, handler: handler, opts: opts}, nil
}

// Start polls the task queue until ctx is cancelled. It returns once the worker is running.
func (r *Runner) Start(ctx context.Context) error {
	cfg := r.opts.Config
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "concurrency", r.opts.Concurrency)

	if cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, cfg, r.log); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	deadline := time.Now().Add(r.opts.StartMaxWait)
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		isNotFound := errors.As(startErr, &nfe)
		if isNotFound && cfg.AutoRegisterNamespace {
			_ = temporalx.EnsureNamespace(ctx, cfg, r.log)
		}

		if r.opts.StartMaxWait <= 0 || time.Now().After(deadline) {
			if isNotFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(temporalx.ClampBackoff(250*time.Millisecond, 5*time.Second, attempt)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.opts.Config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.opts.Concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.opts.Concurrency,
	})

	acts := &phaserun.Activities{Log: r.log, Handler: r.handler}
	w.RegisterWorkflowWithOptions(phaserun.Workflow, workflow.RegisterOptions{Name: phaserun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Handle, activity.RegisterOptions{Name: phaserun.ActivityHandle})
	return w
}
