package s3

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

const backendName = "s3"

// Adapter implements types.TableAdapter over one S3 bucket.
type Adapter struct {
	*tablelog.Log

	clients *ClientManager
	client  Client
	bucket  string
	root    string
	tier    storageTier
	config  *Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithMetrics records every call on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Adapter) { a.metrics = c }
}

// New creates an adapter with a real SDK client.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	base := &Adapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}

	cm, err := NewClientManager(ctx, cfg, base.logger)
	if err != nil {
		return nil, err
	}
	return NewWithClientManager(cm, cfg, opts...)
}

// NewWithClientManager creates an adapter around an existing client manager.
func NewWithClientManager(cm *ClientManager, cfg *Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		clients: cm,
		client:  cm.GetClient(),
		bucket:  cfg.Bucket,
		root:    utils.CleanKey(cfg.RootPath),
		tier:    tierFor(cfg.StorageTier),
		config:  cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "s3-adapter", "bucket", cfg.Bucket)
	a.Log = tablelog.New(a, cfg.Table, a.logger, tablelog.WithMetrics(a.metrics))
	return a, nil
}

func (a *Adapter) key(p string) string {
	return utils.JoinKey(a.root, p)
}

// Capabilities describes S3 semantics.
func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		Backend:          backendName,
		FlatNamespace:    true,
		BatchDelete:      true,
		MaxBatchDelete:   a.config.DeleteBatchSize,
		RenameOverwrites: true,
		IdempotentDelete: true,
	}
}

// InitFS creates the bucket if HeadBucket says it is missing.
func (a *Adapter) InitFS(ctx context.Context) error {
	return a.metrics.Observe(backendName, "initFS", 0, func() error {
		_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
		if err == nil {
			return nil
		}
		if terr := a.translateError(err, "initFS", ""); !errors.IsNotFound(terr) {
			return terr
		}

		input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
		if a.config.Region != "" && a.config.Region != "us-east-1" {
			input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(a.config.Region),
			}
		}

		_, err = a.client.CreateBucket(ctx, input)
		if err != nil {
			if isAPIErrorCode(err, "BucketAlreadyOwnedByYou") {
				return nil
			}
			return a.translateError(err, "initFS", "")
		}
		a.logger.Info("bucket created", "region", a.config.Region)
		return nil
	})
}

// WriteFile uploads data, through CargoShip when enabled and the payload is
// large enough.
func (a *Adapter) WriteFile(ctx context.Context, p string, data []byte, opts types.WriteOptions) error {
	return a.metrics.Observe(backendName, "writeFile", int64(len(data)), func() error {
		key := a.key(p)

		if opts.DoNotOverwrite && !a.config.ConditionalWrites {
			exists, err := a.Exists(ctx, p)
			if err != nil {
				return err
			}
			if exists {
				return errors.AlreadyExists(backendName, "writeFile", p)
			}
		}

		if a.useCargoShip(opts, len(data)) {
			err := a.clients.GetUploader()(ctx, cargoships3.Archive{
				Key:          key,
				Reader:       bytes.NewReader(data),
				Size:         int64(len(data)),
				StorageClass: a.tier.cargoClass,
				Metadata: map[string]string{
					"content-type": detectContentType(key),
				},
			})
			if err == nil {
				return nil
			}
			a.logger.Warn("CargoShip upload failed, falling back to standard S3", "key", key, "error", err)
		}

		input := &s3.PutObjectInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(detectContentType(key)),
			StorageClass:  a.tier.class,
		}
		if opts.DoNotOverwrite && a.config.ConditionalWrites {
			input.IfNoneMatch = aws.String("*")
		}

		if _, err := a.client.PutObject(ctx, input); err != nil {
			if isAPIErrorCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
				return errors.AlreadyExists(backendName, "writeFile", p)
			}
			return a.translateError(err, "writeFile", p)
		}
		return nil
	})
}

func (a *Adapter) useCargoShip(opts types.WriteOptions, size int) bool {
	if !a.clients.IsCargoShipEnabled() || a.tier.cargoClass == "" {
		return false
	}
	// A conditional put cannot go through the transporter.
	if opts.DoNotOverwrite && a.config.ConditionalWrites {
		return false
	}
	return int64(size) >= a.config.CargoShipThreshold
}

// ReadFile downloads the whole object.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := a.metrics.Observe(backendName, "readFile", 0, func() error {
		out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(p)),
		})
		if err != nil {
			return a.translateError(err, "readFile", p)
		}
		defer func() { _ = out.Body.Close() }()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return a.translateError(err, "readFile", p)
		}
		return nil
	})
	return data, err
}

// Unlink deletes p. S3 reports success for missing keys.
func (a *Adapter) Unlink(ctx context.Context, p string) error {
	return a.metrics.Observe(backendName, "unlink", 0, func() error {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(p)),
		})
		return a.translateError(err, "unlink", p)
	})
}

// Rename copies from to to and deletes from. If the delete fails the copy
// stays behind and the error is returned.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	return a.metrics.Observe(backendName, "rename", 0, func() error {
		src, dst := a.key(from), a.key(to)

		_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:       aws.String(a.bucket),
			Key:          aws.String(dst),
			CopySource:   aws.String(copySource(a.bucket, src)),
			StorageClass: a.tier.class,
		})
		if err != nil {
			return a.translateError(err, "rename", from)
		}

		_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(src),
		})
		if err != nil {
			a.logger.Warn("rename left source behind", "from", src, "to", dst, "error", err)
			return a.translateError(err, "rename", from)
		}
		return nil
	})
}

// Stat issues a HeadObject.
func (a *Adapter) Stat(ctx context.Context, p string) (*types.FileInfo, error) {
	var fi *types.FileInfo
	err := a.metrics.Observe(backendName, "stat", 0, func() error {
		out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(p)),
		})
		if err != nil {
			return a.translateError(err, "stat", p)
		}
		info := types.NewFileInfo(p, aws.ToInt64(out.ContentLength), aws.ToTime(out.LastModified))
		fi = &info
		return nil
	})
	return fi, err
}

// Exists reports whether p is present.
func (a *Adapter) Exists(ctx context.Context, p string) (bool, error) {
	_, err := a.Stat(ctx, p)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// ReadAll walks every ListObjectsV2 page under prefix.
func (a *Adapter) ReadAll(ctx context.Context, prefix string, opts types.ListOptions) ([]types.FileInfo, error) {
	var out []types.FileInfo
	err := a.metrics.Observe(backendName, "readall", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)
		pageSize := opts.MaxPageSize
		if pageSize <= 0 || pageSize > a.config.ListPageSize {
			pageSize = a.config.ListPageSize
		}

		paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
			Bucket:  aws.String(a.bucket),
			Prefix:  aws.String(listPrefix),
			MaxKeys: aws.Int32(int32(pageSize)),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return a.translateError(err, "readall", prefix)
			}
			for _, obj := range page.Contents {
				rel, ok := utils.RelativeKey(listPrefix, aws.ToString(obj.Key))
				if !ok || rel == "" || strings.HasSuffix(rel, "/") {
					continue
				}
				if !opts.IncludeMeta {
					out = append(out, types.FileInfo{Path: rel})
					continue
				}
				out = append(out, types.NewFileInfo(rel, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
			}
		}
		return nil
	})
	return out, err
}

// ReadDir lists immediate children with a "/" delimiter.
func (a *Adapter) ReadDir(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := a.metrics.Observe(backendName, "readdir", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)

		paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(a.bucket),
			Prefix:    aws.String(listPrefix),
			Delimiter: aws.String("/"),
			MaxKeys:   aws.Int32(int32(a.config.ListPageSize)),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return a.translateError(err, "readdir", prefix)
			}
			for _, obj := range page.Contents {
				if rel, ok := utils.RelativeKey(listPrefix, aws.ToString(obj.Key)); ok {
					names = append(names, utils.ChildName(rel))
				}
			}
			for _, cp := range page.CommonPrefixes {
				if rel, ok := utils.RelativeKey(listPrefix, aws.ToString(cp.Prefix)); ok {
					names = append(names, strings.TrimSuffix(rel, "/"))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utils.UniqueSorted(names), nil
}

// Size returns an object's size, or the total under a prefix.
func (a *Adapter) Size(ctx context.Context, p string) (int64, error) {
	fi, err := a.Stat(ctx, p)
	if err == nil {
		return fi.Size, nil
	}
	if !errors.IsNotFound(err) {
		return 0, err
	}

	entries, err := a.ReadAll(ctx, p, types.ListOptions{IncludeMeta: true})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// RemoveFolder deletes every object under prefix.
func (a *Adapter) RemoveFolder(ctx context.Context, prefix string) error {
	entries, err := a.ReadAll(ctx, prefix, types.ListOptions{})
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].Path = path.Join(prefix, entries[i].Path)
	}
	return a.DeleteObjectList(ctx, entries)
}

// DeleteObjectList removes entries with DeleteObjects, DeleteBatchSize keys
// per request. Per-key failures are reported together.
func (a *Adapter) DeleteObjectList(ctx context.Context, entries []types.FileInfo) error {
	ids := make([]s3types.ObjectIdentifier, 0, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(a.key(e.Path))})
	}
	if len(ids) == 0 {
		return nil
	}

	return a.metrics.Observe(backendName, "deleteObjectList", 0, func() error {
		var failed []string
		for _, chunk := range utils.Chunk(ids, a.config.DeleteBatchSize) {
			out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(a.bucket),
				Delete: &s3types.Delete{Objects: chunk, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return a.translateError(err, "deleteObjectList", "")
			}
			for _, e := range out.Errors {
				failed = append(failed, fmt.Sprintf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Code)))
			}
		}

		if len(failed) > 0 {
			return errors.NewError(errors.ErrCodePartialFailure,
				fmt.Sprintf("%d of %d deletes failed: %s", len(failed), len(ids), strings.Join(failed, "; "))).
				WithComponent(backendName).
				WithOperation("deleteObjectList")
		}
		a.logger.Debug("batch delete completed", "count", len(ids))
		return nil
	})
}

// Mkdirp is a no-op; prefixes need no creation.
func (a *Adapter) Mkdirp(ctx context.Context, p string) error {
	return nil
}

// Close releases the client.
func (a *Adapter) Close() error {
	return a.clients.Close()
}

// translateError converts SDK errors into StoreErrors
func (a *Adapter) translateError(err error, operation, p string) error {
	if err == nil {
		return nil
	}

	switch {
	case isErrorType[*s3types.NoSuchKey](err),
		isErrorType[*s3types.NotFound](err),
		isErrorType[*s3types.NoSuchBucket](err),
		isAPIErrorCode(err, "NoSuchKey", "NotFound", "NoSuchBucket"):
		return errors.NotFound(backendName, operation, p).WithCause(err)
	case isErrorType[*s3types.BucketAlreadyExists](err),
		isErrorType[*s3types.BucketAlreadyOwnedByYou](err):
		return errors.AlreadyExists(backendName, operation, a.bucket).WithCause(err)
	case isAPIErrorCode(err, "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken"):
		return errors.NewError(errors.ErrCodeAuthFailure, err.Error()).
			WithComponent(backendName).
			WithOperation(operation).
			WithPath(p).
			WithCause(err)
	default:
		return errors.Wrap(err, backendName, operation, p)
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}

func isAPIErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !stderr.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects.
func copySource(bucket, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segs, "/")
}

func detectContentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

var _ types.TableAdapter = (*Adapter)(nil)
