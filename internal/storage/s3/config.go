package s3

import (
	"time"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
)

// Config represents S3 adapter configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// ConditionalWrites sends If-None-Match on DoNotOverwrite writes instead
	// of checking existence first. Not every S3-compatible store honours it.
	ConditionalWrites bool `yaml:"conditional_writes"`

	// RootPath is an optional key prefix inside the bucket.
	RootPath string `yaml:"root_path"`

	// SDK settings; retries happen inside the AWS client, never here.
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Listing and deletion
	ListPageSize    int `yaml:"list_page_size"`
	DeleteBatchSize int `yaml:"delete_batch_size"`

	// StorageTier selects the storage class for every write.
	StorageTier string `yaml:"storage_tier"`

	// CargoShip optimization settings
	EnableCargoShipOptimization bool  `yaml:"enable_cargoship_optimization"`
	CargoShipThreshold          int64 `yaml:"cargoship_threshold"`
	CargoShipConcurrency        int   `yaml:"cargoship_concurrency"`

	Table tablelog.Config `yaml:"table"`
}

// maxDeleteObjects is the DeleteObjects per-request ceiling.
const maxDeleteObjects = 1000

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:               "us-east-1",
		MaxRetries:           3,
		RequestTimeout:       30 * time.Second,
		ListPageSize:         1000,
		DeleteBatchSize:      maxDeleteObjects,
		StorageTier:          TierStandard,
		CargoShipThreshold:   32 * 1024 * 1024,
		CargoShipConcurrency: 8,
		Table:                tablelog.NewDefaultConfig(),
	}
}

// Validate checks required fields and clamps limits.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent(backendName)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.NewError(errors.ErrCodeInvalidConfig, "access_key_id and secret_access_key must be set together").
			WithComponent(backendName)
	}
	if _, ok := storageTiers[c.StorageTier]; c.StorageTier != "" && !ok {
		return errors.NewError(errors.ErrCodeInvalidConfig, "unknown storage tier: "+c.StorageTier).
			WithComponent(backendName)
	}
	if c.DeleteBatchSize <= 0 || c.DeleteBatchSize > maxDeleteObjects {
		c.DeleteBatchSize = maxDeleteObjects
	}
	if c.ListPageSize <= 0 || c.ListPageSize > 1000 {
		c.ListPageSize = 1000
	}
	return nil
}
