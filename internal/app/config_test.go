package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/logcompliance/internal/platform/gcp"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANALYSIS_ENDPOINT", "https://analysis.example.com")
	t.Setenv("ANALYSIS_ORG", "acme")
	t.Setenv("TARGET_BUCKET_NAME", "results")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModeAll {
		t.Fatalf("mode: want=%q got=%q", ModeAll, cfg.Mode)
	}
	if !cfg.Workflow.ProceedOnTimeout {
		t.Fatalf("proceed_on_timeout: want=true got=false")
	}
	if cfg.Workflow.ReadyMaxAttempts != 10 || cfg.Workflow.ReadyPollInterval != 2*time.Second {
		t.Fatalf("readiness: want=10x2s got=%dx%s", cfg.Workflow.ReadyMaxAttempts, cfg.Workflow.ReadyPollInterval)
	}
	if cfg.Dispatch.Backend != DispatchBackendLocal || cfg.Artifacts.Backend != ArtifactBackendBucket {
		t.Fatalf("backends: want=local/bucket got=%s/%s", cfg.Dispatch.Backend, cfg.Artifacts.Backend)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http addr: want=%q got=%q", ":8080", cfg.HTTP.Addr)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "logc.yaml")
	body := `
mode: api
analysis:
  org: from-file
  directory: compliance
  timeout: 45s
workflow:
  proceed_on_timeout: false
  ready_max_attempts: 3
  ready_poll_interval: 500ms
storage:
  source_bucket: uploads
  notification_prefix: logs/
dispatch:
  backend: local
  concurrency: 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOGC_CONFIG_PATH", path)
	t.Setenv("LOGC_READY_MAX_ATTEMPTS", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModeAPI {
		t.Fatalf("mode: want=%q got=%q", ModeAPI, cfg.Mode)
	}
	// env wins over file
	if cfg.Analysis.Org != "acme" {
		t.Fatalf("org: want=%q got=%q", "acme", cfg.Analysis.Org)
	}
	if cfg.Workflow.ReadyMaxAttempts != 7 {
		t.Fatalf("ready_max_attempts: want=7 got=%d", cfg.Workflow.ReadyMaxAttempts)
	}
	if cfg.Workflow.ProceedOnTimeout {
		t.Fatalf("proceed_on_timeout: want=false got=true")
	}
	if cfg.Workflow.ReadyPollInterval != 500*time.Millisecond {
		t.Fatalf("ready_poll_interval: want=500ms got=%s", cfg.Workflow.ReadyPollInterval)
	}
	if cfg.Analysis.Timeout != 45*time.Second || cfg.Analysis.Directory != "compliance" {
		t.Fatalf("analysis: got timeout=%s directory=%q", cfg.Analysis.Timeout, cfg.Analysis.Directory)
	}
	if cfg.Storage.SourceBucket != "uploads" || cfg.Storage.NotificationPrefix != "logs/" {
		t.Fatalf("storage: got=%+v", cfg.Storage)
	}
	wf := cfg.Workflow.Controller()
	if wf.ReadyMaxAttempts != 7 || wf.ProceedOnTimeout {
		t.Fatalf("controller config: got=%+v", wf)
	}
}

func TestLoadConfigEmulatorFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Object.Mode != gcp.ObjectStorageModeGCSEmulator {
		t.Fatalf("storage mode: want=%q got=%q", gcp.ObjectStorageModeGCSEmulator, cfg.Storage.Object.Mode)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing endpoint", func(c *Config) { c.Analysis.Endpoint = "" }, "analysis endpoint"},
		{"bad mode", func(c *Config) { c.Mode = "batch" }, "invalid mode"},
		{"worker with local dispatch", func(c *Config) { c.Mode = ModeWorker }, "remote dispatcher"},
		{"temporal without address", func(c *Config) { c.Dispatch.Backend = DispatchBackendTemporal }, "TEMPORAL_ADDRESS"},
		{"redis without address", func(c *Config) { c.Dispatch.Backend = DispatchBackendRedis }, "REDIS_ADDR"},
		{"memory across processes", func(c *Config) {
			c.Artifacts.Backend = ArtifactBackendMemory
			c.Dispatch.Backend = DispatchBackendRedis
			c.Redis.Addr = "localhost:6379"
		}, "local dispatcher"},
		{"bucket store without results", func(c *Config) { c.Storage.ResultsBucket = ""; c.Storage.SourceBucket = "uploads" }, "results bucket"},
		{"unknown artifact store", func(c *Config) { c.Artifacts.Backend = "s3" }, "invalid artifact store"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Analysis.Endpoint = "https://analysis.example.com"
			cfg.Analysis.Org = "acme"
			cfg.Storage.ResultsBucket = "results"
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline Validate: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate: want error containing %q got=%v", tc.want, err)
			}
		})
	}
}

func TestModeRoles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeWorker
	cfg.Dispatch.Backend = DispatchBackendRedis
	if cfg.servesHTTP() || !cfg.consumes() {
		t.Fatalf("worker: want consumes only got http=%v consumes=%v", cfg.servesHTTP(), cfg.consumes())
	}
	cfg.Mode = ModeAll
	cfg.Dispatch.Backend = DispatchBackendLocal
	if !cfg.servesHTTP() || cfg.consumes() {
		t.Fatalf("all+local: want http only got http=%v consumes=%v", cfg.servesHTTP(), cfg.consumes())
	}
}
