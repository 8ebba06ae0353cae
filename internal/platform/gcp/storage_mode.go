package gcp

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ObjectStorageConfig selects between real Cloud Storage and a fake-gcs style emulator.
type ObjectStorageConfig struct {
	Mode            ObjectStorageMode `yaml:"mode"`
	EmulatorHost    string            `yaml:"emulator_host"`
	CredentialsJSON string            `yaml:"-"`
	CredentialsFile string            `yaml:"credentials_file"`
	// CompatibilityFallback is set when the mode was inferred from STORAGE_EMULATOR_HOST alone.
	CompatibilityFallback bool `yaml:"-"`
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

// ModeSource is logged at startup so an inferred emulator mode is visible.
func (cfg ObjectStorageConfig) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "inferred_from_emulator_host"
	}
	return "configured"
}

// EmulatorEndpoint is the emulator host without a trailing slash.
func (cfg ObjectStorageConfig) EmulatorEndpoint() string {
	return strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
}

func (cfg ObjectStorageConfig) Validate() error {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		return nil
	case ObjectStorageModeGCSEmulator:
	default:
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}

	host := cfg.EmulatorEndpoint()
	if host == "" {
		return &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
	}
	u, err := url.Parse(host)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		err = fmt.Errorf("missing scheme or host")
	}
	if err != nil {
		return &ObjectStorageConfigError{
			Code:         ObjectStorageConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
	}
	return nil
}

type ObjectStorageConfigErrorCode string

const (
	ObjectStorageConfigErrorInvalidMode         ObjectStorageConfigErrorCode = "invalid_mode"
	ObjectStorageConfigErrorMissingEmulatorHost ObjectStorageConfigErrorCode = "missing_emulator_host"
	ObjectStorageConfigErrorInvalidEmulatorHost ObjectStorageConfigErrorCode = "invalid_emulator_host"
)

type ObjectStorageConfigError struct {
	Code         ObjectStorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ObjectStorageConfigError) Error() string {
	var msg string
	switch e.Code {
	case ObjectStorageConfigErrorInvalidMode:
		msg = fmt.Sprintf("unknown mode %q, want %q or %q", e.Mode, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case ObjectStorageConfigErrorMissingEmulatorHost:
		msg = fmt.Sprintf("mode %q needs STORAGE_EMULATOR_HOST", e.Mode)
	case ObjectStorageConfigErrorInvalidEmulatorHost:
		msg = fmt.Sprintf("emulator host %q is not an absolute URL", e.EmulatorHost)
	default:
		msg = string(e.Code)
	}
	return "object storage config: " + msg
}

func (e *ObjectStorageConfigError) Unwrap() error { return e.Cause }

// ResolveObjectStorageConfig parses rawMode case-insensitively. An empty mode selects the
// emulator when emulatorHost is set and real GCS otherwise.
func ResolveObjectStorageConfig(rawMode, emulatorHost string) (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{
		Mode:         ObjectStorageMode(strings.ToLower(strings.TrimSpace(rawMode))),
		EmulatorHost: strings.TrimSpace(emulatorHost),
	}
	if cfg.Mode == "" {
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
			cfg.CompatibilityFallback = true
		}
	}
	return cfg, cfg.Validate()
}

// ResolveObjectStorageConfigFromEnv reads OBJECT_STORAGE_MODE, STORAGE_EMULATOR_HOST and
// the Google credential variables.
func ResolveObjectStorageConfigFromEnv() (ObjectStorageConfig, error) {
	cfg, err := ResolveObjectStorageConfig(os.Getenv("OBJECT_STORAGE_MODE"), os.Getenv("STORAGE_EMULATOR_HOST"))
	if err != nil {
		return cfg, err
	}
	cfg.CredentialsJSON, cfg.CredentialsFile = CredentialsFromEnv()
	return cfg, nil
}
