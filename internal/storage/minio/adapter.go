package minio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

const backendName = "minio"

// Adapter implements types.TableAdapter over one MinIO bucket.
type Adapter struct {
	*tablelog.Log

	client  Client
	bucket  string
	root    string
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

// New connects to MinIO and returns an adapter.
func New(cfg *Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg, opts...)
}

// NewWithClient creates an adapter around an existing client.
func NewWithClient(client Client, cfg *Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		client: client,
		bucket: cfg.Bucket,
		root:   utils.CleanKey(cfg.RootPath),
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "minio-adapter", "bucket", cfg.Bucket)
	a.Log = tablelog.New(a, cfg.Table, a.logger, tablelog.WithMetrics(a.metrics))
	return a, nil
}

func (a *Adapter) key(p string) string {
	return utils.JoinKey(a.root, p)
}

// Capabilities describes MinIO semantics, which match S3.
func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		Backend:          backendName,
		FlatNamespace:    true,
		BatchDelete:      true,
		MaxBatchDelete:   1000,
		RenameOverwrites: true,
		IdempotentDelete: true,
	}
}

// InitFS creates the bucket if it does not exist.
func (a *Adapter) InitFS(ctx context.Context) error {
	return a.metrics.Observe(backendName, "initFS", 0, func() error {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			return a.translateError(err, "initFS", "")
		}
		if exists {
			return nil
		}

		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.config.Region})
		if err != nil {
			if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
				return nil
			}
			return a.translateError(err, "initFS", "")
		}
		a.logger.Info("bucket created")
		return nil
	})
}

// WriteFile uploads data in a single PutObject.
func (a *Adapter) WriteFile(ctx context.Context, p string, data []byte, opts types.WriteOptions) error {
	return a.metrics.Observe(backendName, "writeFile", int64(len(data)), func() error {
		if opts.DoNotOverwrite {
			exists, err := a.Exists(ctx, p)
			if err != nil {
				return err
			}
			if exists {
				return errors.AlreadyExists(backendName, "writeFile", p)
			}
		}

		_, err := a.client.PutObject(ctx, a.bucket, a.key(p), bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/octet-stream"})
		return a.translateError(err, "writeFile", p)
	})
}

// ReadFile downloads the whole object.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := a.metrics.Observe(backendName, "readFile", 0, func() error {
		var err error
		data, err = a.client.ReadObject(ctx, a.bucket, a.key(p))
		return a.translateError(err, "readFile", p)
	})
	return data, err
}

// Unlink removes p; missing keys are not an error.
func (a *Adapter) Unlink(ctx context.Context, p string) error {
	return a.metrics.Observe(backendName, "unlink", 0, func() error {
		err := a.translateError(a.client.RemoveObject(ctx, a.bucket, a.key(p), minio.RemoveObjectOptions{}), "unlink", p)
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// Rename copies server-side and removes the source.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	return a.metrics.Observe(backendName, "rename", 0, func() error {
		_, err := a.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: a.bucket, Object: a.key(to)},
			minio.CopySrcOptions{Bucket: a.bucket, Object: a.key(from)})
		if err != nil {
			return a.translateError(err, "rename", from)
		}

		err = a.client.RemoveObject(ctx, a.bucket, a.key(from), minio.RemoveObjectOptions{})
		if err != nil {
			a.logger.Warn("rename left source behind", "from", from, "to", to, "error", err)
			return a.translateError(err, "rename", from)
		}
		return nil
	})
}

// Stat returns object metadata.
func (a *Adapter) Stat(ctx context.Context, p string) (*types.FileInfo, error) {
	var fi *types.FileInfo
	err := a.metrics.Observe(backendName, "stat", 0, func() error {
		info, err := a.client.StatObject(ctx, a.bucket, a.key(p), minio.StatObjectOptions{})
		if err != nil {
			return a.translateError(err, "stat", p)
		}
		f := types.NewFileInfo(p, info.Size, info.LastModified)
		fi = &f
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

// ReadAll lists every object under prefix. The SDK pages internally with
// MaxKeys per request.
func (a *Adapter) ReadAll(ctx context.Context, prefix string, opts types.ListOptions) ([]types.FileInfo, error) {
	var out []types.FileInfo
	err := a.metrics.Observe(backendName, "readall", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)
		pageSize := opts.MaxPageSize
		if pageSize <= 0 || pageSize > a.config.ListPageSize {
			pageSize = a.config.ListPageSize
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:    listPrefix,
			Recursive: true,
			MaxKeys:   pageSize,
		}) {
			if obj.Err != nil {
				return a.translateError(obj.Err, "readall", prefix)
			}
			rel, ok := utils.RelativeKey(listPrefix, obj.Key)
			if !ok || rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			if !opts.IncludeMeta {
				out = append(out, types.FileInfo{Path: rel})
				continue
			}
			out = append(out, types.NewFileInfo(rel, obj.Size, obj.LastModified))
		}
		return nil
	})
	return out, err
}

// ReadDir lists immediate children; the server folds deeper keys into
// prefixes ending in "/".
func (a *Adapter) ReadDir(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := a.metrics.Observe(backendName, "readdir", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:  listPrefix,
			MaxKeys: a.config.ListPageSize,
		}) {
			if obj.Err != nil {
				return a.translateError(obj.Err, "readdir", prefix)
			}
			if rel, ok := utils.RelativeKey(listPrefix, obj.Key); ok && rel != "" {
				names = append(names, strings.TrimSuffix(rel, "/"))
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

// DeleteObjectList streams the keys into RemoveObjects, which batches them
// into multi-object deletes.
func (a *Adapter) DeleteObjectList(ctx context.Context, entries []types.FileInfo) error {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Path != "" {
			keys = append(keys, a.key(e.Path))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	return a.metrics.Observe(backendName, "deleteObjectList", 0, func() error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		objects := make(chan minio.ObjectInfo)
		go func() {
			defer close(objects)
			for _, k := range keys {
				select {
				case objects <- minio.ObjectInfo{Key: k}:
				case <-ctx.Done():
					return
				}
			}
		}()

		var failed []string
		for rerr := range a.client.RemoveObjects(ctx, a.bucket, objects, minio.RemoveObjectsOptions{}) {
			if errors.IsNotFound(a.translateError(rerr.Err, "deleteObjectList", rerr.ObjectName)) {
				continue
			}
			failed = append(failed, fmt.Sprintf("%s: %v", rerr.ObjectName, rerr.Err))
		}

		if len(failed) > 0 {
			return errors.NewError(errors.ErrCodePartialFailure,
				fmt.Sprintf("%d of %d deletes failed: %s", len(failed), len(keys), strings.Join(failed, "; "))).
				WithComponent(backendName).
				WithOperation("deleteObjectList")
		}
		return nil
	})
}

// Mkdirp is a no-op.
func (a *Adapter) Mkdirp(ctx context.Context, p string) error {
	return nil
}

// Close has nothing to release; the SDK client is stateless.
func (a *Adapter) Close() error {
	return nil
}

// translateError maps MinIO error responses onto StoreError codes.
func (a *Adapter) translateError(err error, operation, p string) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket", resp.Code == "NotFound",
		resp.StatusCode == http.StatusNotFound:
		return errors.NotFound(backendName, operation, p).WithCause(err)
	case resp.Code == "BucketAlreadyExists":
		return errors.AlreadyExists(backendName, operation, a.bucket).WithCause(err)
	case resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId",
		resp.Code == "SignatureDoesNotMatch", resp.Code == "ExpiredToken",
		resp.StatusCode == http.StatusForbidden:
		return errors.NewError(errors.ErrCodeAuthFailure, err.Error()).
			WithComponent(backendName).
			WithOperation(operation).
			WithPath(p).
			WithCause(err)
	default:
		return errors.Wrap(err, backendName, operation, p)
	}
}

var _ types.TableAdapter = (*Adapter)(nil)
