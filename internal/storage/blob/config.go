package blob

import (
	"fmt"
	"time"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/retry"
)

// maxListResults is the service's page size ceiling.
const maxListResults = 5000

// Config represents Azure Blob adapter configuration. Credentials come from
// ConnectionString, from AccountName plus AccountKey, or from a SAS token
// already embedded in ServiceURL.
type Config struct {
	ConnectionString string `yaml:"connection_string"`
	AccountName      string `yaml:"account_name"`
	AccountKey       string `yaml:"account_key"`

	// ServiceURL defaults to https://<account>.blob.core.windows.net/
	ServiceURL string `yaml:"service_url"`

	Container string `yaml:"container"`
	RootPath  string `yaml:"root_path"`

	ListPageSize      int `yaml:"list_page_size"`
	DeleteConcurrency int `yaml:"delete_concurrency"`

	// CopyPoll controls how long Rename waits for a server-side copy.
	CopyPoll retry.Config `yaml:"copy_poll"`

	Table tablelog.Config `yaml:"table"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	poll := retry.DefaultConfig()
	poll.InitialDelay = 200 * time.Millisecond
	poll.MaxAttempts = 30

	return &Config{
		ListPageSize:      maxListResults,
		DeleteConcurrency: 16,
		CopyPoll:          poll,
		Table:             tablelog.NewDefaultConfig(),
	}
}

// Validate checks required fields and fills derived defaults.
func (c *Config) Validate() error {
	if c.Container == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "container name cannot be empty").
			WithComponent(backendName)
	}
	if c.ConnectionString == "" && c.ServiceURL == "" && c.AccountName == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "connection_string, service_url or account_name is required").
			WithComponent(backendName)
	}
	if c.AccountKey != "" && c.AccountName == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "account_key requires account_name").
			WithComponent(backendName)
	}

	if c.ServiceURL == "" && c.AccountName != "" {
		c.ServiceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", c.AccountName)
	}
	if c.ListPageSize <= 0 || c.ListPageSize > maxListResults {
		c.ListPageSize = maxListResults
	}
	if c.DeleteConcurrency <= 0 {
		c.DeleteConcurrency = 16
	}
	return nil
}
