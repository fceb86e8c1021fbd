package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/storage/blob"
	"github.com/objectfs/cloudtable/internal/storage/dropbox"
	"github.com/objectfs/cloudtable/internal/storage/memory"
	"github.com/objectfs/cloudtable/internal/storage/minio"
	"github.com/objectfs/cloudtable/internal/storage/s3"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/health"
	"github.com/objectfs/cloudtable/pkg/utils"
)

// Storage backend types.
const (
	TypeS3      = "s3"
	TypeMinio   = "minio"
	TypeBlob    = "blob"
	TypeDropbox = "dropbox"
	TypeMemory  = "memory"
)

// envPrefix prefixes every environment variable LoadFromEnv reads.
const envPrefix = "CLOUDTABLE_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig         `yaml:"global"`
	Storage StorageConfig        `yaml:"storage"`
	Metrics *metrics.Config      `yaml:"metrics"`
	Health  health.TrackerConfig `yaml:"health"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig selects one backend and carries the settings for each.
// Only the section named by Type is used.
type StorageConfig struct {
	Type string `yaml:"type"`

	// RootPath, when set, replaces the selected backend's own root prefix
	// (RootPath, or BasePath for Dropbox).
	RootPath string `yaml:"root_path"`

	// DoNotPersistOnLoad tells the database layer not to write a fresh
	// snapshot right after loading a table.
	DoNotPersistOnLoad bool `yaml:"do_not_persist_on_load"`

	S3      *s3.Config      `yaml:"s3"`
	Minio   *minio.Config   `yaml:"minio"`
	Blob    *blob.Config    `yaml:"blob"`
	Dropbox *dropbox.Config `yaml:"dropbox"`
	Memory  *memory.Config  `yaml:"memory"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Storage: StorageConfig{
			Type:    TypeMemory,
			S3:      s3.NewDefaultConfig(),
			Minio:   minio.NewDefaultConfig(),
			Blob:    blob.NewDefaultConfig(),
			Dropbox: dropbox.NewDefaultConfig(),
			Memory:  memory.NewDefaultConfig(),
		},
		Metrics: metrics.DefaultConfig(),
		Health:  health.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// envReader collects the first parse failure so LoadFromEnv can report it
// once.
type envReader struct {
	err error
}

func (r *envReader) str(name string, dst *string) {
	if val := os.Getenv(envPrefix + name); val != "" {
		*dst = val
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	val := os.Getenv(envPrefix + name)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		r.fail(name, val)
		return
	}
	*dst = b
}

func (r *envReader) integer(name string, dst *int) {
	val := os.Getenv(envPrefix + name)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		r.fail(name, val)
		return
	}
	*dst = n
}

func (r *envReader) duration(name string, dst *time.Duration) {
	val := os.Getenv(envPrefix + name)
	if val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.fail(name, val)
		return
	}
	*dst = d
}

func (r *envReader) fail(name, val string) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid value for %s%s: %q", envPrefix, name, val)
	}
}

// LoadFromEnv overrides settings from CLOUDTABLE_* environment variables.
// Backend sections are created on demand.
func (c *Configuration) LoadFromEnv() error {
	env := &envReader{}

	// Global settings
	env.str("LOG_LEVEL", &c.Global.LogLevel)
	env.str("LOG_FORMAT", &c.Global.LogFormat)

	// Storage selection
	s := &c.Storage
	env.str("STORAGE_TYPE", &s.Type)
	env.str("ROOT_PATH", &s.RootPath)
	env.boolean("DO_NOT_PERSIST_ON_LOAD", &s.DoNotPersistOnLoad)

	if s.S3 == nil {
		s.S3 = s3.NewDefaultConfig()
	}
	env.str("S3_BUCKET", &s.S3.Bucket)
	env.str("S3_REGION", &s.S3.Region)
	env.str("S3_ENDPOINT", &s.S3.Endpoint)
	env.str("S3_ACCESS_KEY_ID", &s.S3.AccessKeyID)
	env.str("S3_SECRET_ACCESS_KEY", &s.S3.SecretAccessKey)
	env.str("S3_STORAGE_TIER", &s.S3.StorageTier)
	env.boolean("S3_FORCE_PATH_STYLE", &s.S3.ForcePathStyle)

	if s.Minio == nil {
		s.Minio = minio.NewDefaultConfig()
	}
	env.str("MINIO_ENDPOINT", &s.Minio.Endpoint)
	env.str("MINIO_BUCKET", &s.Minio.Bucket)
	env.str("MINIO_ACCESS_KEY", &s.Minio.AccessKeyID)
	env.str("MINIO_SECRET_KEY", &s.Minio.SecretAccessKey)
	env.boolean("MINIO_USE_SSL", &s.Minio.UseSSL)

	if s.Blob == nil {
		s.Blob = blob.NewDefaultConfig()
	}
	env.str("BLOB_CONNECTION_STRING", &s.Blob.ConnectionString)
	env.str("BLOB_ACCOUNT_NAME", &s.Blob.AccountName)
	env.str("BLOB_ACCOUNT_KEY", &s.Blob.AccountKey)
	env.str("BLOB_CONTAINER", &s.Blob.Container)

	if s.Dropbox == nil {
		s.Dropbox = dropbox.NewDefaultConfig()
	}
	env.str("DROPBOX_ACCESS_TOKEN", &s.Dropbox.AccessToken)
	env.str("DROPBOX_REFRESH_TOKEN", &s.Dropbox.RefreshToken)
	env.str("DROPBOX_APP_KEY", &s.Dropbox.AppKey)
	env.str("DROPBOX_APP_SECRET", &s.Dropbox.AppSecret)
	env.str("DROPBOX_BASE_PATH", &s.Dropbox.BasePath)

	// Metrics
	if c.Metrics == nil {
		c.Metrics = metrics.DefaultConfig()
	}
	env.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	env.integer("METRICS_PORT", &c.Metrics.Port)

	// Health
	env.duration("HEALTH_CHECK_INTERVAL", &c.Health.CheckInterval)

	return env.err
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("%v (must be one of: DEBUG, INFO, WARN, ERROR)", err)
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		return invalid("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Metrics != nil && c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return invalid("metrics port out of range: %d", c.Metrics.Port)
	}

	if c.Health.CheckInterval < 0 {
		return invalid("health check_interval cannot be negative")
	}

	return c.Storage.Validate()
}

// Validate checks that the selected backend has a valid section.
func (s *StorageConfig) Validate() error {
	var section interface{ Validate() error }

	switch s.Type {
	case TypeS3:
		if s.S3 != nil {
			section = s.S3
		}
	case TypeMinio:
		if s.Minio != nil {
			section = s.Minio
		}
	case TypeBlob:
		if s.Blob != nil {
			section = s.Blob
		}
	case TypeDropbox:
		if s.Dropbox != nil {
			section = s.Dropbox
		}
	case TypeMemory:
		return nil
	default:
		return invalid("unsupported storage type: %q (must be one of: %s)", s.Type,
			strings.Join([]string{TypeS3, TypeMinio, TypeBlob, TypeDropbox, TypeMemory}, ", "))
	}

	if section == nil {
		return invalid("storage type %s selected but its section is missing", s.Type)
	}
	return section.Validate()
}

func invalid(format string, args ...any) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).
		WithComponent("config")
}
