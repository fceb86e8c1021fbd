package minio

import (
	"net/url"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
)

// Config represents MinIO adapter configuration
type Config struct {
	// Endpoint is host:port or a URL; an https scheme turns on TLS.
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UseSSL          bool   `yaml:"use_ssl"`
	Region          string `yaml:"region"`

	Bucket   string `yaml:"bucket"`
	RootPath string `yaml:"root_path"`

	ListPageSize int `yaml:"list_page_size"`

	Table tablelog.Config `yaml:"table"`
}

// NewDefaultConfig returns a configuration for a local MinIO server.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:     "localhost:9000",
		ListPageSize: 1000,
		Table:        tablelog.NewDefaultConfig(),
	}
}

// Validate checks required fields and normalizes the endpoint.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent(backendName)
	}
	if c.Endpoint == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "endpoint is required").
			WithComponent(backendName)
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "access_key_id and secret_access_key are required").
			WithComponent(backendName)
	}

	if u, err := url.Parse(c.Endpoint); err == nil && u.Host != "" {
		if u.Scheme == "https" {
			c.UseSSL = true
		}
		c.Endpoint = u.Host
	}
	if c.ListPageSize <= 0 || c.ListPageSize > 1000 {
		c.ListPageSize = 1000
	}
	return nil
}
