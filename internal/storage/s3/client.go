package s3

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
)

// Client is the subset of *s3.Client the adapter calls. Tests substitute an
// in-memory fake.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UploadFunc is the optimized upload path. The real one wraps the CargoShip
// transporter; a nil UploadFunc means every write goes through PutObject.
type UploadFunc func(ctx context.Context, archive cargoships3.Archive) error

// ClientManager holds the per-binding S3 client and optional transporter.
type ClientManager struct {
	client Client
	upload UploadFunc
	config *Config
	logger *slog.Logger
}

// NewClientManager creates the SDK client for one bucket binding.
func NewClientManager(ctx context.Context, cfg *Config, logger *slog.Logger) (*ClientManager, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, config.WithHTTPClient(
			awshttp.NewBuildableClient().WithTimeout(cfg.RequestTimeout),
		))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	cm := &ClientManager{
		client: client,
		config: cfg,
		logger: logger,
	}

	if cfg.EnableCargoShipOptimization {
		transporter := cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       tierFor(cfg.StorageTier).cargoClass,
			MultipartThreshold: cfg.CargoShipThreshold,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        cfg.CargoShipConcurrency,
		})
		cm.upload = func(ctx context.Context, archive cargoships3.Archive) error {
			result, err := transporter.Upload(ctx, archive)
			if err != nil {
				return err
			}
			logger.Debug("CargoShip optimized upload completed",
				"key", archive.Key,
				"size", archive.Size,
				"throughput", result.Throughput,
				"duration", result.Duration)
			return nil
		}
		logger.Info("CargoShip S3 optimization enabled",
			"bucket", cfg.Bucket,
			"threshold", cfg.CargoShipThreshold,
			"concurrency", cfg.CargoShipConcurrency)
	}

	return cm, nil
}

// NewClientManagerWithClient wraps an existing client, e.g. a test fake.
func NewClientManagerWithClient(client Client, upload UploadFunc, cfg *Config, logger *slog.Logger) *ClientManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientManager{client: client, upload: upload, config: cfg, logger: logger}
}

// GetClient returns the S3 client
func (cm *ClientManager) GetClient() Client {
	return cm.client
}

// GetUploader returns the CargoShip upload path, nil when disabled
func (cm *ClientManager) GetUploader() UploadFunc {
	return cm.upload
}

// IsCargoShipEnabled returns whether CargoShip optimization is enabled
func (cm *ClientManager) IsCargoShipEnabled() bool {
	return cm.upload != nil
}

// Close releases client resources. The SDK client holds none that need
// explicit release.
func (cm *ClientManager) Close() error {
	return nil
}
