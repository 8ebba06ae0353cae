package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/logcompliance/internal/analysis"
	"github.com/yungbote/logcompliance/internal/artifacts"
	"github.com/yungbote/logcompliance/internal/dispatch"
	apphttp "github.com/yungbote/logcompliance/internal/http"
	httpH "github.com/yungbote/logcompliance/internal/http/handlers"
	"github.com/yungbote/logcompliance/internal/jobindex"
	"github.com/yungbote/logcompliance/internal/observability"
	"github.com/yungbote/logcompliance/internal/phases"
	"github.com/yungbote/logcompliance/internal/platform/gcp"
	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/platform/redisclient"
	"github.com/yungbote/logcompliance/internal/temporalx"
	"github.com/yungbote/logcompliance/internal/temporalx/temporalworker"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type App struct {
	Log        *logger.Logger
	Cfg        Config
	Controller *workflow.Controller
	Server     *apphttp.Server

	bucket   gcp.BucketService
	rdb      *goredis.Client
	tc       temporalsdkclient.Client
	index    *jobindex.Index
	local    *dispatch.LocalDispatcher
	consumer *dispatch.RedisConsumer
	runner   *temporalworker.Runner

	otelShutdown func(context.Context) error
}

// New wires every component named by cfg. On error, anything already opened is closed.
func New(ctx context.Context, log *logger.Logger, cfg Config) (_ *App, err error) {
	a := &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)

	a.bucket, err = resolveBucketService(log, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if cfg.Artifacts.Backend == ArtifactBackendRedis || cfg.Dispatch.Backend == DispatchBackendRedis {
		if a.rdb, err = redisclient.Open(ctx, cfg.Redis); err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}
	if cfg.Dispatch.Backend == DispatchBackendTemporal {
		if a.tc, err = temporalx.NewClient(ctx, log, cfg.Temporal); err != nil {
			return nil, fmt.Errorf("init temporal: %w", err)
		}
	}

	store, err := a.artifactStore()
	if err != nil {
		return nil, err
	}

	client, err := analysis.New(analysis.Options{
		Endpoint:           cfg.Analysis.Endpoint,
		Credential:         cfg.Analysis.Credential,
		Org:                cfg.Analysis.Org,
		Directory:          cfg.Analysis.Directory,
		Timeout:            cfg.Analysis.Timeout,
		MaxRetries:         cfg.Analysis.MaxRetries,
		InsecureSkipVerify: cfg.Analysis.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("init analysis client: %w", err)
	}
	log.Info("Analysis client configured", "endpoint", client.Endpoint(), "org", cfg.Analysis.Org)
	processor, err := phases.NewProcessor(client, log)
	if err != nil {
		return nil, fmt.Errorf("init phase processor: %w", err)
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return nil, err
	}

	deps := workflow.Deps{
		Store:      store,
		Analyzer:   client,
		Runner:     processor,
		Source:     a.bucket,
		Dispatcher: dispatcher,
		Log:        log,
	}
	if cfg.JobIndex.Enabled() {
		if a.index, err = jobindex.Open(log, cfg.JobIndex.PostgresDSN); err != nil {
			return nil, fmt.Errorf("init job index: %w", err)
		}
		deps.Index = a.index
	}
	if a.Controller, err = workflow.NewController(deps, cfg.Workflow.Controller()); err != nil {
		return nil, err
	}
	if a.local != nil {
		a.local.Bind(a.Controller)
	}

	if cfg.consumes() {
		if err := a.wireConsumer(); err != nil {
			return nil, err
		}
	}
	if cfg.servesHTTP() {
		a.Server = apphttp.NewServer(a.routerConfig())
	}
	return a, nil
}

func (a *App) artifactStore() (artifacts.Store, error) {
	switch a.Cfg.Artifacts.Backend {
	case ArtifactBackendRedis:
		return artifacts.NewRedisStore(a.rdb, a.Cfg.Artifacts.RedisPrefix, a.Cfg.Artifacts.RedisTTL), nil
	case ArtifactBackendMemory:
		a.Log.Warn("Using in-memory artifact store; results are lost on restart")
		return artifacts.NewMemoryStore(), nil
	default:
		return artifacts.NewBucketStore(a.bucket)
	}
}

func (a *App) dispatcher() (workflow.Dispatcher, error) {
	switch a.Cfg.Dispatch.Backend {
	case DispatchBackendTemporal:
		return dispatch.NewTemporalDispatcher(a.Log, a.tc, a.Cfg.Temporal.TaskQueue)
	case DispatchBackendRedis:
		return dispatch.NewRedisDispatcher(a.rdb, a.Cfg.Dispatch.RedisQueue), nil
	default:
		a.local = dispatch.NewLocalDispatcher(a.Log, a.Cfg.Dispatch.Concurrency, a.Cfg.Dispatch.LocalBuffer)
		return a.local, nil
	}
}

func (a *App) wireConsumer() error {
	var err error
	switch a.Cfg.Dispatch.Backend {
	case DispatchBackendTemporal:
		a.runner, err = temporalworker.NewRunner(a.Log, a.tc, a.Controller, temporalworker.Options{
			Config:       a.Cfg.Temporal,
			Concurrency:  a.Cfg.Dispatch.Concurrency,
			StartMaxWait: a.Cfg.Temporal.DialMaxWait,
		})
	case DispatchBackendRedis:
		a.consumer, err = dispatch.NewRedisConsumer(a.Log, a.rdb, a.Controller, dispatch.RedisConsumerOptions{
			Queue:   a.Cfg.Dispatch.RedisQueue,
			Workers: a.Cfg.Dispatch.Concurrency,
		})
	}
	return err
}

func (a *App) routerConfig() apphttp.RouterConfig {
	rc := apphttp.RouterConfig{
		Log:            a.Log,
		ServiceName:    a.Cfg.Otel.ServiceName,
		CORSOrigins:    a.Cfg.HTTP.CORSOrigins,
		TriggerHandler: httpH.NewTriggerHandler(a.Controller),
		NotificationHandler: httpH.NewNotificationHandler(a.Log, a.Controller, httpH.NotificationFilter{
			Bucket: a.Cfg.Storage.SourceBucket,
			Prefix: a.Cfg.Storage.NotificationPrefix,
		}),
		HealthHandler: httpH.NewHealthHandler(a.readinessChecks()),
	}
	var lister httpH.JobLister
	if a.index != nil {
		lister = a.index
	}
	rc.JobHandler = httpH.NewJobHandler(a.Controller, lister)
	return rc
}

func (a *App) readinessChecks() map[string]httpH.ReadinessCheck {
	checks := map[string]httpH.ReadinessCheck{}
	if a.rdb != nil {
		rdb := a.rdb
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if a.index != nil {
		checks["job_index"] = a.index.Ping
	}
	if a.tc != nil {
		tc := a.tc
		checks["temporal"] = func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalsdkclient.CheckHealthRequest{})
			return err
		}
	}
	return checks
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.consumer != nil && a.Cfg.Dispatch.RecoverOnStart {
		n, err := a.consumer.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recover redis queue: %w", err)
		}
		a.Log.Info("Requeued in-flight continuations", "count", n)
	}
	if a.runner != nil {
		// Start returns once polling; the worker stops when ctx is cancelled.
		if err := a.runner.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.Server != nil {
		g.Go(func() error {
			a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
			return a.Server.Run(ctx, a.Cfg.HTTP.Addr, a.Cfg.HTTP.ShutdownTimeout)
		})
	}
	if a.local != nil {
		g.Go(func() error { return a.local.Run(ctx) })
	}
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close is safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.index != nil {
		_ = a.index.Close()
		a.index = nil
	}
	if a.tc != nil {
		a.tc.Close()
		a.tc = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.bucket != nil {
		_ = a.bucket.Close()
		a.bucket = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
