package blob

import (
	"context"
	stderr "errors"
	"fmt"
	"time"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/retry"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

const backendName = "blob"

// Adapter implements types.TableAdapter over one Azure Blob container.
type Adapter struct {
	*tablelog.Log

	client  containerClient
	root    string
	poller  *retry.Retryer
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

// New creates an adapter with an SDK container client.
func New(cfg *Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newContainerClient(cfg)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf("failed to create container client: %v", err)).
			WithComponent(backendName).
			WithCause(err)
	}
	return newWithClient(client, cfg, opts...)
}

func newWithClient(client containerClient, cfg *Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		client: client,
		root:   utils.CleanKey(cfg.RootPath),
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "blob-adapter", "container", cfg.Container)
	a.poller = retry.New(cfg.CopyPoll).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		a.logger.Debug("copy still pending", "attempt", attempt, "wait", delay, "detail", err)
	})
	a.Log = tablelog.New(a, cfg.Table, a.logger, tablelog.WithMetrics(a.metrics))
	return a, nil
}

func (a *Adapter) key(p string) string {
	return utils.JoinKey(a.root, p)
}

// Capabilities describes Blob semantics. Deleting a missing blob fails, and
// there is no batch delete on the container client.
func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		Backend:          backendName,
		FlatNamespace:    false,
		BatchDelete:      false,
		RenameOverwrites: true,
		IdempotentDelete: false,
	}
}

// InitFS creates the container; an existing one is fine.
func (a *Adapter) InitFS(ctx context.Context) error {
	return a.metrics.Observe(backendName, "initFS", 0, func() error {
		err := a.client.Create(ctx)
		if err == nil {
			a.logger.Info("container created")
			return nil
		}
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return a.translateError(err, "initFS", "")
	})
}

// WriteFile uploads a block blob. DoNotOverwrite is sent as If-None-Match: *.
func (a *Adapter) WriteFile(ctx context.Context, p string, data []byte, opts types.WriteOptions) error {
	return a.metrics.Observe(backendName, "writeFile", int64(len(data)), func() error {
		err := a.client.Upload(ctx, a.key(p), data, opts.DoNotOverwrite)
		if opts.DoNotOverwrite && bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return errors.AlreadyExists(backendName, "writeFile", p).WithCause(err)
		}
		return a.translateError(err, "writeFile", p)
	})
}

// ReadFile downloads the whole blob.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := a.metrics.Observe(backendName, "readFile", 0, func() error {
		var err error
		data, err = a.client.Download(ctx, a.key(p))
		return a.translateError(err, "readFile", p)
	})
	return data, err
}

// Unlink deletes p; a missing blob is NotFound.
func (a *Adapter) Unlink(ctx context.Context, p string) error {
	return a.metrics.Observe(backendName, "unlink", 0, func() error {
		return a.translateError(a.client.Delete(ctx, a.key(p)), "unlink", p)
	})
}

// Rename starts a server-side copy, waits for it to finish and deletes the
// source. A copy that never completes leaves the source in place.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	return a.metrics.Observe(backendName, "rename", 0, func() error {
		src, dst := a.key(from), a.key(to)

		status, err := a.client.StartCopy(ctx, src, dst)
		if err != nil {
			return a.translateError(err, "rename", from)
		}

		if status == azblob.CopyStatusTypePending {
			err = a.poller.DoWithContext(ctx, func(ctx context.Context) error {
				return a.copyStatus(ctx, dst)
			})
			if err != nil {
				return err
			}
		} else if err := copyOutcome(status, ""); err != nil {
			return err
		}

		if err := a.client.Delete(ctx, src); err != nil {
			a.logger.Warn("rename left source behind", "from", src, "to", dst, "error", err)
			return a.translateError(err, "rename", from)
		}
		return nil
	})
}

// copyStatus is the poll step for a pending copy onto dst.
func (a *Adapter) copyStatus(ctx context.Context, dst string) error {
	props, err := a.client.Properties(ctx, dst)
	if err != nil {
		return a.translateError(err, "rename", dst)
	}
	if props.CopyStatus == azblob.CopyStatusTypePending {
		return retry.Pending(backendName, "rename", "copy pending: "+dst)
	}
	return copyOutcome(props.CopyStatus, props.CopyDetail)
}

func copyOutcome(status azblob.CopyStatusType, detail string) error {
	switch status {
	case azblob.CopyStatusTypeSuccess, "":
		return nil
	default:
		return errors.NewError(errors.ErrCodeTransient, fmt.Sprintf("copy %s: %s", strings.ToLower(string(status)), detail)).
			WithComponent(backendName).
			WithOperation("rename")
	}
}

// Stat returns blob properties.
func (a *Adapter) Stat(ctx context.Context, p string) (*types.FileInfo, error) {
	var fi *types.FileInfo
	err := a.metrics.Observe(backendName, "stat", 0, func() error {
		props, err := a.client.Properties(ctx, a.key(p))
		if err != nil {
			return a.translateError(err, "stat", p)
		}
		f := types.NewFileInfo(p, props.Size, props.LastModified)
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

// ReadAll walks the flat listing marker by marker.
func (a *Adapter) ReadAll(ctx context.Context, prefix string, opts types.ListOptions) ([]types.FileInfo, error) {
	var out []types.FileInfo
	err := a.metrics.Observe(backendName, "readall", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)
		pageSize := opts.MaxPageSize
		if pageSize <= 0 || pageSize > a.config.ListPageSize {
			pageSize = a.config.ListPageSize
		}

		marker := ""
		for {
			page, err := a.client.ListFlat(ctx, listPrefix, marker, int32(pageSize))
			if err != nil {
				return a.translateError(err, "readall", prefix)
			}
			for _, it := range page.Items {
				rel, ok := utils.RelativeKey(listPrefix, it.Name)
				if !ok || rel == "" {
					continue
				}
				if !opts.IncludeMeta {
					out = append(out, types.FileInfo{Path: rel})
					continue
				}
				out = append(out, types.NewFileInfo(rel, it.Size, it.LastModified))
			}
			if page.NextMarker == "" {
				return nil
			}
			marker = page.NextMarker
		}
	})
	return out, err
}

// ReadDir lists immediate children with the "/" hierarchy delimiter.
func (a *Adapter) ReadDir(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := a.metrics.Observe(backendName, "readdir", 0, func() error {
		listPrefix := utils.PrefixKey(a.root, prefix)
		return a.walkLevel(ctx, listPrefix, func(page listPage) {
			for _, it := range page.Items {
				if rel, ok := utils.RelativeKey(listPrefix, it.Name); ok && rel != "" {
					names = append(names, rel)
				}
			}
			for _, pfx := range page.Prefixes {
				if rel, ok := utils.RelativeKey(listPrefix, pfx); ok {
					names = append(names, strings.TrimSuffix(rel, "/"))
				}
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return utils.UniqueSorted(names), nil
}

// walkLevel feeds every hierarchy page under listPrefix to fn.
func (a *Adapter) walkLevel(ctx context.Context, listPrefix string, fn func(listPage)) error {
	marker := ""
	for {
		page, err := a.client.ListHierarchy(ctx, listPrefix, marker, int32(a.config.ListPageSize))
		if err != nil {
			return a.translateError(err, "readdir", listPrefix)
		}
		fn(page)
		if page.NextMarker == "" {
			return nil
		}
		marker = page.NextMarker
	}
}

// Size returns a blob's size, or walks the hierarchy below a prefix and
// sums every level.
func (a *Adapter) Size(ctx context.Context, p string) (int64, error) {
	fi, err := a.Stat(ctx, p)
	if err == nil {
		return fi.Size, nil
	}
	if !errors.IsNotFound(err) {
		return 0, err
	}
	return a.sizeOfLevel(ctx, utils.PrefixKey(a.root, p))
}

func (a *Adapter) sizeOfLevel(ctx context.Context, listPrefix string) (int64, error) {
	var (
		total    int64
		children []string
	)
	err := a.walkLevel(ctx, listPrefix, func(page listPage) {
		for _, it := range page.Items {
			total += it.Size
		}
		children = append(children, page.Prefixes...)
	})
	if err != nil {
		return 0, err
	}

	for _, child := range children {
		n, err := a.sizeOfLevel(ctx, child)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// RemoveFolder deletes every blob under prefix.
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

// DeleteObjectList deletes blobs one request each, DeleteConcurrency at a
// time. Blobs already gone count as deleted.
func (a *Adapter) DeleteObjectList(ctx context.Context, entries []types.FileInfo) error {
	var keys []string
	for _, e := range entries {
		if e.Path != "" {
			keys = append(keys, a.key(e.Path))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	return a.metrics.Observe(backendName, "deleteObjectList", 0, func() error {
		var (
			mu     sync.Mutex
			failed []string
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.config.DeleteConcurrency)
		for _, k := range keys {
			g.Go(func() error {
				err := a.client.Delete(gctx, k)
				if err == nil || bloberror.HasCode(err, bloberror.BlobNotFound) {
					return nil
				}
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", k, errors.CodeOf(a.translateError(err, "deleteObjectList", k))))
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
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

// Mkdirp is a no-op; virtual directories exist once a blob is under them.
func (a *Adapter) Mkdirp(ctx context.Context, p string) error {
	return nil
}

// Close has nothing to release.
func (a *Adapter) Close() error {
	return nil
}

// translateError maps Azure storage error codes and HTTP status onto
// StoreError codes.
func (a *Adapter) translateError(err error, operation, p string) error {
	if err == nil {
		return nil
	}

	var se *errors.StoreError
	if stderr.As(err, &se) {
		return err
	}

	status := 0
	var respErr *azcore.ResponseError
	if stderr.As(err, &respErr) {
		status = respErr.StatusCode
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound),
		status == http.StatusNotFound:
		return errors.NotFound(backendName, operation, p).WithCause(err)
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ContainerAlreadyExists):
		return errors.AlreadyExists(backendName, operation, p).WithCause(err)
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure,
		bloberror.InsufficientAccountPermissions),
		status == http.StatusForbidden, status == http.StatusUnauthorized:
		return errors.NewError(errors.ErrCodeAuthFailure, "access denied").
			WithComponent(backendName).
			WithOperation(operation).
			WithPath(p).
			WithCause(err)
	default:
		return errors.Wrap(err, backendName, operation, p)
	}
}

var _ types.TableAdapter = (*Adapter)(nil)
