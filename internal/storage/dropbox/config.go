package dropbox

import (
	"time"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/retry"
)

const (
	defaultTokenURL = "https://api.dropboxapi.com/oauth2/token"

	// maxListLimit is the largest page ListFolder accepts.
	maxListLimit = 2000

	// maxDeleteBatch is the DeleteBatch entry ceiling.
	maxDeleteBatch = 1000
)

// Config represents Dropbox adapter configuration. Either AccessToken, or
// RefreshToken together with AppKey, must be set.
type Config struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	AppKey       string `yaml:"app_key"`
	AppSecret    string `yaml:"app_secret"`
	TokenURL     string `yaml:"token_url"`

	// BasePath is the folder every adapter path lives under, "" for the
	// app root.
	BasePath string `yaml:"base_path"`

	ListPageSize int `yaml:"list_page_size"`

	// RequestsPerSecond throttles API calls when positive.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// BatchPoll controls how long DeleteObjectList waits on an async batch.
	BatchPoll retry.Config `yaml:"batch_poll"`

	Table tablelog.Config `yaml:"table"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	poll := retry.DefaultConfig()
	poll.InitialDelay = 250 * time.Millisecond
	poll.MaxAttempts = 40

	return &Config{
		TokenURL:     defaultTokenURL,
		ListPageSize: maxListLimit,
		Burst:        1,
		BatchPoll:    poll,
		Table:        tablelog.NewDefaultConfig(),
	}
}

// Validate checks credentials and clamps limits.
func (c *Config) Validate() error {
	if c.AccessToken == "" && c.RefreshToken == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "access_token or refresh_token is required").
			WithComponent(backendName)
	}
	if c.RefreshToken != "" && c.AppKey == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "refresh_token requires app_key").
			WithComponent(backendName)
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.ListPageSize <= 0 || c.ListPageSize > maxListLimit {
		c.ListPageSize = maxListLimit
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Table.MaxCompactionDeletes <= 0 || c.Table.MaxCompactionDeletes > tablelog.DefaultMaxCompactionDeletes {
		c.Table.MaxCompactionDeletes = tablelog.DefaultMaxCompactionDeletes
	}
	return nil
}
