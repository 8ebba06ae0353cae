package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/logcompliance/internal/platform/envutil"
)

type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	AutoRegisterNamespace  bool `yaml:"auto_register_namespace"`
	NamespaceRetentionDays int  `yaml:"namespace_retention_days"`

	DialTimeout time.Duration `yaml:"-"`
	DialMaxWait time.Duration `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:              "logcompliance",
		TaskQueue:              "logcompliance-phases",
		NamespaceRetentionDays: 7,
		DialTimeout:            5 * time.Second,
		DialMaxWait:            60 * time.Second,
	}
}

// WithEnv overlays TEMPORAL_* environment variables onto c.
func (c Config) WithEnv() Config {
	c.Address = envutil.String("TEMPORAL_ADDRESS", c.Address)
	c.Namespace = envutil.String("TEMPORAL_NAMESPACE", c.Namespace)
	c.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", c.TaskQueue)

	c.ClientCertPath = envutil.String("TEMPORAL_CLIENT_CERT_PATH", c.ClientCertPath)
	c.ClientKeyPath = envutil.String("TEMPORAL_CLIENT_KEY_PATH", c.ClientKeyPath)
	c.ClientCAPath = envutil.String("TEMPORAL_CLIENT_CA_PATH", c.ClientCAPath)

	c.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", c.AutoRegisterNamespace)
	c.NamespaceRetentionDays = envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", c.NamespaceRetentionDays)
	c.DialTimeout = envutil.Duration("TEMPORAL_DIAL_TIMEOUT", c.DialTimeout)
	c.DialMaxWait = envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", c.DialMaxWait)
	return c
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
