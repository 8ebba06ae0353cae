package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvCompatibilityFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=true got=false")
	}
}

func TestResolveObjectStorageConfigExplicitModes(t *testing.T) {
	cfg, err := ResolveObjectStorageConfig("GCS", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig(gcs): %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS || cfg.CompatibilityFallback {
		t.Fatalf("gcs: got mode=%q fallback=%v", cfg.Mode, cfg.CompatibilityFallback)
	}

	cfg, err = ResolveObjectStorageConfig("gcs_emulator", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfig(gcs_emulator): %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator || cfg.CompatibilityFallback {
		t.Fatalf("emulator: got mode=%q fallback=%v", cfg.Mode, cfg.CompatibilityFallback)
	}
}

func TestResolveObjectStorageConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		mode string
		host string
		code ObjectStorageConfigErrorCode
	}{
		{"invalid mode", "local", "", ObjectStorageConfigErrorInvalidMode},
		{"missing emulator host", "gcs_emulator", "", ObjectStorageConfigErrorMissingEmulatorHost},
		{"invalid emulator host", "gcs_emulator", "fake-gcs:4443", ObjectStorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveObjectStorageConfig(tc.mode, tc.host)
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want *ObjectStorageConfigError, got %T (%v)", err, err)
			}
			if cfgErr.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, cfgErr.Code)
			}
		})
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/keys/sa.json")
	js, file := CredentialsFromEnv()
	if js != "" || file != "/etc/keys/sa.json" {
		t.Fatalf("file creds: got json=%q file=%q", js, file)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	js, file = CredentialsFromEnv()
	if js == "" || file != "" {
		t.Fatalf("json creds: got json=%q file=%q", js, file)
	}
	if len(ClientOptions(js, file)) != 1 {
		t.Fatalf("ClientOptions: want one option")
	}
	if ClientOptions("", "") != nil {
		t.Fatalf("ClientOptions: want nil for default credentials")
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"iteration1/log_analysis_1.json": "application/json",
		"uploads/auth.log":               "text/plain; charset=utf-8",
		"events.jsonl":                   "application/x-ndjson",
		"archive.tar":                    "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
