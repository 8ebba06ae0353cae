package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/logcompliance/internal/observability"
	"github.com/yungbote/logcompliance/internal/platform/envutil"
	"github.com/yungbote/logcompliance/internal/platform/gcp"
	"github.com/yungbote/logcompliance/internal/platform/redisclient"
	"github.com/yungbote/logcompliance/internal/temporalx"
	"github.com/yungbote/logcompliance/internal/workflow"
)

type Mode string

const (
	// ModeAPI serves HTTP triggers. With the local dispatcher it also runs continuations.
	ModeAPI Mode = "api"
	// ModeWorker consumes continuations from temporal or redis.
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

type ArtifactBackend string

const (
	ArtifactBackendBucket ArtifactBackend = "bucket"
	ArtifactBackendRedis  ArtifactBackend = "redis"
	ArtifactBackendMemory ArtifactBackend = "memory"
)

type DispatchBackend string

const (
	DispatchBackendTemporal DispatchBackend = "temporal"
	DispatchBackendRedis    DispatchBackend = "redis"
	DispatchBackendLocal    DispatchBackend = "local"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AnalysisConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	Credential         string        `yaml:"-"`
	Org                string        `yaml:"org"`
	Directory          string        `yaml:"directory"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type WorkflowConfig struct {
	ProceedOnTimeout  bool          `yaml:"proceed_on_timeout"`
	ReadyMaxAttempts  int           `yaml:"ready_max_attempts"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

func (w WorkflowConfig) Controller() workflow.Config {
	return workflow.Config{
		ProceedOnTimeout:  w.ProceedOnTimeout,
		ReadyMaxAttempts:  w.ReadyMaxAttempts,
		ReadyPollInterval: w.ReadyPollInterval,
		InvocationTimeout: w.InvocationTimeout,
	}
}

type StorageConfig struct {
	SourceBucket   string                  `yaml:"source_bucket"`
	ResultsBucket  string                  `yaml:"results_bucket"`
	MaxObjectBytes int64                   `yaml:"max_object_bytes"`
	Object         gcp.ObjectStorageConfig `yaml:"object"`
	// NotificationPrefix limits storage events that start jobs to keys under it.
	NotificationPrefix string `yaml:"notification_prefix"`
}

type ArtifactsConfig struct {
	Backend     ArtifactBackend `yaml:"backend"`
	RedisPrefix string          `yaml:"redis_prefix"`
	RedisTTL    time.Duration   `yaml:"redis_ttl"`
}

type DispatchConfig struct {
	Backend     DispatchBackend `yaml:"backend"`
	Concurrency int             `yaml:"concurrency"`
	LocalBuffer int             `yaml:"local_buffer"`
	RedisQueue  string          `yaml:"redis_queue"`
	// RecoverOnStart requeues items a crashed redis consumer left in flight.
	RecoverOnStart bool `yaml:"recover_on_start"`
}

type JobIndexConfig struct {
	PostgresDSN string `yaml:"-"`
}

func (j JobIndexConfig) Enabled() bool { return strings.TrimSpace(j.PostgresDSN) != "" }

type Config struct {
	Mode      Mode                     `yaml:"mode"`
	LogMode   string                   `yaml:"log_mode"`
	HTTP      HTTPConfig               `yaml:"http"`
	Analysis  AnalysisConfig           `yaml:"analysis"`
	Workflow  WorkflowConfig           `yaml:"workflow"`
	Storage   StorageConfig            `yaml:"storage"`
	Artifacts ArtifactsConfig          `yaml:"artifacts"`
	Dispatch  DispatchConfig           `yaml:"dispatch"`
	Redis     redisclient.Config       `yaml:"redis"`
	Temporal  temporalx.Config         `yaml:"temporal"`
	JobIndex  JobIndexConfig           `yaml:"job_index"`
	Otel      observability.OtelConfig `yaml:"otel"`
}

func DefaultConfig() Config {
	wf := workflow.DefaultConfig()
	return Config{
		Mode:    ModeAll,
		LogMode: "development",
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 30 * time.Second},
		Analysis: AnalysisConfig{
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
		Workflow: WorkflowConfig{
			ProceedOnTimeout:  wf.ProceedOnTimeout,
			ReadyMaxAttempts:  wf.ReadyMaxAttempts,
			ReadyPollInterval: wf.ReadyPollInterval,
			InvocationTimeout: wf.InvocationTimeout,
		},
		Storage:   StorageConfig{Object: gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}},
		Artifacts: ArtifactsConfig{Backend: ArtifactBackendBucket, RedisPrefix: "logc:artifacts:"},
		Dispatch:  DispatchConfig{Backend: DispatchBackendLocal, Concurrency: 4, LocalBuffer: 1024, RedisQueue: "logc:continuations"},
		Redis:     redisclient.Config{DialTimeout: 5 * time.Second},
		Temporal:  temporalx.DefaultConfig(),
		Otel:      observability.DefaultOtelConfig(),
	}
}

// LoadConfig layers defaults, the YAML file at LOGC_CONFIG_PATH (if set) and the
// environment, then validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := envutil.String("LOGC_CONFIG_PATH", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg, err := cfg.withEnv()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) withEnv() (Config, error) {
	c.Mode = Mode(strings.ToLower(envutil.String("LOGC_MODE", string(c.Mode))))
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)

	c.HTTP.Addr = envutil.String("LOGC_HTTP_ADDR", c.HTTP.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		c.HTTP.Addr = ":" + port
	}
	if origins := splitList(envutil.String("LOGC_CORS_ORIGINS", "")); len(origins) > 0 {
		c.HTTP.CORSOrigins = origins
	}
	c.HTTP.ShutdownTimeout = envutil.Duration("LOGC_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)

	c.Analysis.Endpoint = envutil.String("ANALYSIS_ENDPOINT", c.Analysis.Endpoint)
	c.Analysis.Credential = envutil.String("ANALYSIS_CREDENTIAL", c.Analysis.Credential)
	c.Analysis.Org = envutil.String("ANALYSIS_ORG", c.Analysis.Org)
	c.Analysis.Directory = envutil.String("ANALYSIS_DIRECTORY", c.Analysis.Directory)
	c.Analysis.Timeout = envutil.Duration("ANALYSIS_TIMEOUT", c.Analysis.Timeout)
	c.Analysis.MaxRetries = envutil.Int("ANALYSIS_MAX_RETRIES", c.Analysis.MaxRetries)
	c.Analysis.InsecureSkipVerify = envutil.Bool("ANALYSIS_INSECURE_SKIP_VERIFY", c.Analysis.InsecureSkipVerify)

	c.Workflow.ProceedOnTimeout = envutil.Bool("LOGC_PROCEED_ON_TIMEOUT", c.Workflow.ProceedOnTimeout)
	c.Workflow.ReadyMaxAttempts = envutil.Int("LOGC_READY_MAX_ATTEMPTS", c.Workflow.ReadyMaxAttempts)
	c.Workflow.ReadyPollInterval = envutil.Duration("LOGC_READY_POLL_INTERVAL", c.Workflow.ReadyPollInterval)
	c.Workflow.InvocationTimeout = envutil.Duration("LOGC_INVOCATION_TIMEOUT", c.Workflow.InvocationTimeout)

	c.Storage.SourceBucket = envutil.String("SOURCE_BUCKET_NAME", c.Storage.SourceBucket)
	c.Storage.ResultsBucket = envutil.String("TARGET_BUCKET_NAME", c.Storage.ResultsBucket)
	c.Storage.NotificationPrefix = envutil.String("LOGC_NOTIFICATION_PREFIX", c.Storage.NotificationPrefix)
	if _, ok := os.LookupEnv("OBJECT_STORAGE_MODE"); ok || os.Getenv("STORAGE_EMULATOR_HOST") != "" {
		obj, err := gcp.ResolveObjectStorageConfigFromEnv()
		if err != nil {
			return c, err
		}
		obj.CredentialsFile = firstNonEmpty(obj.CredentialsFile, c.Storage.Object.CredentialsFile)
		c.Storage.Object = obj
	} else {
		jsonCreds, file := gcp.CredentialsFromEnv()
		c.Storage.Object.CredentialsJSON = jsonCreds
		c.Storage.Object.CredentialsFile = firstNonEmpty(file, c.Storage.Object.CredentialsFile)
	}

	c.Artifacts.Backend = ArtifactBackend(strings.ToLower(envutil.String("LOGC_ARTIFACT_STORE", string(c.Artifacts.Backend))))
	c.Artifacts.RedisPrefix = envutil.String("LOGC_ARTIFACT_REDIS_PREFIX", c.Artifacts.RedisPrefix)
	c.Artifacts.RedisTTL = envutil.Duration("LOGC_ARTIFACT_REDIS_TTL", c.Artifacts.RedisTTL)

	c.Dispatch.Backend = DispatchBackend(strings.ToLower(envutil.String("LOGC_DISPATCHER", string(c.Dispatch.Backend))))
	c.Dispatch.Concurrency = envutil.Int("LOGC_DISPATCH_CONCURRENCY", c.Dispatch.Concurrency)
	c.Dispatch.RedisQueue = envutil.String("LOGC_DISPATCH_REDIS_QUEUE", c.Dispatch.RedisQueue)
	c.Dispatch.RecoverOnStart = envutil.Bool("LOGC_DISPATCH_RECOVER_ON_START", c.Dispatch.RecoverOnStart)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB)

	c.Temporal = c.Temporal.WithEnv()
	c.JobIndex.PostgresDSN = envutil.String("POSTGRES_DSN", c.JobIndex.PostgresDSN)
	c.Otel = c.Otel.WithEnv()
	return c, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Mode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		add("invalid mode %q (allowed: api, worker, all)", c.Mode)
	}
	if strings.TrimSpace(c.Analysis.Endpoint) == "" {
		add("analysis endpoint is required (ANALYSIS_ENDPOINT)")
	}
	if strings.TrimSpace(c.Analysis.Org) == "" {
		add("analysis org is required (ANALYSIS_ORG)")
	}
	if c.Workflow.ReadyMaxAttempts < 0 {
		add("ready_max_attempts must be >= 0")
	}
	if c.Workflow.ReadyPollInterval < 0 {
		add("ready_poll_interval must be >= 0")
	}
	if err := c.Storage.Object.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Storage.SourceBucket) == "" && strings.TrimSpace(c.Storage.ResultsBucket) == "" {
		add("at least one bucket is required (SOURCE_BUCKET_NAME or TARGET_BUCKET_NAME)")
	}

	switch c.Artifacts.Backend {
	case ArtifactBackendBucket:
		if strings.TrimSpace(c.Storage.ResultsBucket) == "" {
			add("bucket artifact store requires a results bucket (TARGET_BUCKET_NAME)")
		}
	case ArtifactBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			add("redis artifact store requires REDIS_ADDR")
		}
	case ArtifactBackendMemory:
		if c.Mode != ModeAll && c.Mode != ModeAPI {
			add("memory artifact store only works in a single process (mode api or all)")
		}
		if c.Dispatch.Backend != DispatchBackendLocal {
			add("memory artifact store requires the local dispatcher")
		}
	default:
		add("invalid artifact store %q (allowed: bucket, redis, memory)", c.Artifacts.Backend)
	}

	switch c.Dispatch.Backend {
	case DispatchBackendTemporal:
		if !c.Temporal.Enabled() {
			add("temporal dispatcher requires TEMPORAL_ADDRESS")
		}
		if strings.TrimSpace(c.Temporal.TaskQueue) == "" {
			add("temporal dispatcher requires a task queue")
		}
	case DispatchBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			add("redis dispatcher requires REDIS_ADDR")
		}
	case DispatchBackendLocal:
		if c.Mode == ModeWorker {
			add("worker mode needs a remote dispatcher (temporal or redis)")
		}
	default:
		add("invalid dispatcher %q (allowed: temporal, redis, local)", c.Dispatch.Backend)
	}
	if c.Dispatch.Concurrency < 1 {
		add("dispatch concurrency must be >= 1")
	}
	return errors.Join(errs...)
}

func (c Config) servesHTTP() bool { return c.Mode == ModeAPI || c.Mode == ModeAll }

// consumes reports whether this process runs continuations pulled from a remote queue.
func (c Config) consumes() bool {
	return (c.Mode == ModeWorker || c.Mode == ModeAll) && c.Dispatch.Backend != DispatchBackendLocal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
