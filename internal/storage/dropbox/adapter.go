package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/async"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/retry"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

const backendName = "dropbox"

// Adapter implements types.TableAdapter on a Dropbox folder. Unlike the
// object-store adapters it implements the table operations itself; see
// table.go.
type Adapter struct {
	session *Session
	base    string
	poller  *retry.Retryer
	namer   *tablelog.RecordNamer
	clock   func() time.Time
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

// WithClock replaces time.Now for record names and compaction cutoffs.
func WithClock(clock func() time.Time) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New creates an adapter using the Dropbox SDK.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	base := &Adapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}

	session, err := NewSession(ctx, cfg, NewSDKClient, base.logger)
	if err != nil {
		return nil, err
	}
	return NewWithSession(session, cfg, opts...)
}

// NewWithSession creates an adapter on an existing session.
func NewWithSession(session *Session, cfg *Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		session: session,
		base:    utils.CleanKey(cfg.BasePath),
		clock:   time.Now,
		config:  cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.namer = tablelog.NewRecordNamer(a.clock)
	a.logger = a.logger.With("component", "dropbox-adapter", "base", "/"+a.base)
	a.poller = retry.New(cfg.BatchPoll).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		a.logger.Debug("delete batch still running", "attempt", attempt, "wait", delay, "detail", err)
	})
	return a, nil
}

// fullPath turns an adapter path into a Dropbox API path. The app root is
// "", everything else starts with "/".
func (a *Adapter) fullPath(p string) string {
	k := utils.JoinKey(a.base, p)
	if k == "" {
		return ""
	}
	return "/" + k
}

// relativeTo strips the listed folder from an entry's display path. Dropbox
// paths are case-insensitive, so the comparison is too.
func relativeTo(folder, display string) (string, bool) {
	if folder == "" {
		return strings.TrimPrefix(display, "/"), true
	}
	if len(display) <= len(folder)+1 || !strings.EqualFold(display[:len(folder)], folder) || display[len(folder)] != '/' {
		return "", false
	}
	return display[len(folder)+1:], true
}

// Capabilities describes Dropbox semantics: a real folder tree, moves that
// refuse to overwrite, and deletes that tolerate missing paths.
func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		Backend:          backendName,
		FlatNamespace:    false,
		BatchDelete:      true,
		MaxBatchDelete:   maxDeleteBatch,
		RenameOverwrites: false,
		IdempotentDelete: true,
	}
}

// InitFS checks that the session can obtain a token. Folders are created
// implicitly by uploads.
func (a *Adapter) InitFS(ctx context.Context) error {
	_, err := a.session.Client(ctx)
	return err
}

// WriteFile uploads data in one request. DoNotOverwrite uses "add" mode
// without autorename, which the API rejects with a conflict.
func (a *Adapter) WriteFile(ctx context.Context, p string, data []byte, opts types.WriteOptions) error {
	return a.metrics.Observe(backendName, "writeFile", int64(len(data)), func() error {
		client, err := a.session.Client(ctx)
		if err != nil {
			return err
		}

		arg := files.NewUploadArg(a.fullPath(p))
		arg.Mute = true
		mode := files.WriteModeOverwrite
		if opts.DoNotOverwrite {
			mode = files.WriteModeAdd
		}
		arg.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: mode}}

		_, err = client.Upload(arg, bytes.NewReader(data))
		return translateError(err, "writeFile", p)
	})
}

// ReadFile downloads the whole file.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := a.metrics.Observe(backendName, "readFile", 0, func() error {
		client, err := a.session.Client(ctx)
		if err != nil {
			return err
		}

		_, body, err := client.Download(files.NewDownloadArg(a.fullPath(p)))
		if err != nil {
			return translateError(err, "readFile", p)
		}
		defer func() { _ = body.Close() }()

		data, err = io.ReadAll(body)
		return translateError(err, "readFile", p)
	})
	return data, err
}

// Unlink deletes p. Dropbox's not_found is swallowed.
func (a *Adapter) Unlink(ctx context.Context, p string) error {
	return a.metrics.Observe(backendName, "unlink", 0, func() error {
		return a.deletePath(ctx, p, "unlink")
	})
}

func (a *Adapter) deletePath(ctx context.Context, p, operation string) error {
	full := a.fullPath(p)
	if full == "" {
		return errors.NewError(errors.ErrCodeInvalidPath, "refusing to delete the root folder").
			WithComponent(backendName).
			WithOperation(operation)
	}

	client, err := a.session.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteV2(files.NewDeleteArg(full))
	if err = translateError(err, operation, p); errors.IsNotFound(err) {
		return nil
	}
	return err
}

// Rename moves from onto to. The target must not exist.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	return a.metrics.Observe(backendName, "rename", 0, func() error {
		client, err := a.session.Client(ctx)
		if err != nil {
			return err
		}
		_, err = client.MoveV2(files.NewRelocationArg(a.fullPath(from), a.fullPath(to)))
		return translateError(err, "rename", from)
	})
}

// metadata returns the file or folder metadata at p.
func (a *Adapter) metadata(ctx context.Context, p, operation string) (files.IsMetadata, error) {
	client, err := a.session.Client(ctx)
	if err != nil {
		return nil, err
	}
	md, err := client.GetMetadata(files.NewGetMetadataArg(a.fullPath(p)))
	if err != nil {
		return nil, translateError(err, operation, p)
	}
	return md, nil
}

// Stat returns file metadata. A folder is NotFound: the contract only
// describes files.
func (a *Adapter) Stat(ctx context.Context, p string) (*types.FileInfo, error) {
	var fi *types.FileInfo
	err := a.metrics.Observe(backendName, "stat", 0, func() error {
		md, err := a.metadata(ctx, p, "stat")
		if err != nil {
			return err
		}
		file, ok := md.(*files.FileMetadata)
		if !ok {
			return errors.NotFound(backendName, "stat", p)
		}
		f := types.NewFileInfo(p, int64(file.Size), file.ServerModified)
		fi = &f
		return nil
	})
	return fi, err
}

// Exists reports whether a file is at p.
func (a *Adapter) Exists(ctx context.Context, p string) (bool, error) {
	_, err := a.Stat(ctx, p)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// listFolder pages through ListFolder and ListFolderContinue, handing each
// entry to fn. A missing folder lists as empty.
func (a *Adapter) listFolder(ctx context.Context, folder string, recursive bool, limit int, fn func(files.IsMetadata)) error {
	client, err := a.session.Client(ctx)
	if err != nil {
		return err
	}

	arg := files.NewListFolderArg(a.fullPath(folder))
	arg.Recursive = recursive
	arg.Limit = uint32(limit)

	res, err := client.ListFolder(arg)
	for {
		if err != nil {
			err = translateError(err, "readall", folder)
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}
		for _, e := range res.Entries {
			fn(e)
		}
		if !res.HasMore {
			return nil
		}

		if client, err = a.session.Client(ctx); err != nil {
			return err
		}
		res, err = client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
	}
}

// ReadAll lists every file below prefix.
func (a *Adapter) ReadAll(ctx context.Context, prefix string, opts types.ListOptions) ([]types.FileInfo, error) {
	var out []types.FileInfo
	err := a.metrics.Observe(backendName, "readall", 0, func() error {
		limit := opts.MaxPageSize
		if limit <= 0 || limit > a.config.ListPageSize {
			limit = a.config.ListPageSize
		}
		folder := a.fullPath(prefix)

		return a.listFolder(ctx, prefix, true, limit, func(e files.IsMetadata) {
			file, ok := e.(*files.FileMetadata)
			if !ok {
				return
			}
			rel, ok := relativeTo(folder, file.PathDisplay)
			if !ok {
				return
			}
			if !opts.IncludeMeta {
				out = append(out, types.FileInfo{Path: rel})
				return
			}
			out = append(out, types.NewFileInfo(rel, int64(file.Size), file.ServerModified))
		})
	})
	return out, err
}

// ReadDir lists the names of files and folders directly in prefix.
func (a *Adapter) ReadDir(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := a.metrics.Observe(backendName, "readdir", 0, func() error {
		return a.listFolder(ctx, prefix, false, a.config.ListPageSize, func(e files.IsMetadata) {
			switch m := e.(type) {
			case *files.FileMetadata:
				names = append(names, m.Name)
			case *files.FolderMetadata:
				names = append(names, m.Name)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return utils.UniqueSorted(names), nil
}

// Size returns a file's size, or recurses through a folder summing its
// children. A missing path has size zero.
func (a *Adapter) Size(ctx context.Context, p string) (int64, error) {
	md, err := a.metadata(ctx, p, "size")
	if errors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if file, ok := md.(*files.FileMetadata); ok {
		return int64(file.Size), nil
	}

	children, err := a.ReadDir(ctx, p)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, child := range children {
		n, err := a.Size(ctx, joinPath(p, child))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// RemoveFolder deletes the folder at prefix in one call.
func (a *Adapter) RemoveFolder(ctx context.Context, prefix string) error {
	return a.metrics.Observe(backendName, "removeFolder", 0, func() error {
		return a.deletePath(ctx, prefix, "removeFolder")
	})
}

// DeleteObjectList removes entries through DeleteBatch, polling async jobs.
// Entries that were already gone count as deleted.
func (a *Adapter) DeleteObjectList(ctx context.Context, entries []types.FileInfo) error {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Path != "" {
			paths = append(paths, e.Path)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	return a.metrics.Observe(backendName, "deleteObjectList", 0, func() error {
		_, failed, err := a.deleteBatch(ctx, paths)
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			return errors.NewError(errors.ErrCodePartialFailure,
				fmt.Sprintf("%d of %d deletes failed: %s", len(failed), len(paths), strings.Join(failed, "; "))).
				WithComponent(backendName).
				WithOperation("deleteObjectList")
		}
		return nil
	})
}

// deleteBatch deletes paths in DeleteBatch-sized chunks and reports how many
// entries succeeded and which failed. err is set only when a whole batch
// could not run.
func (a *Adapter) deleteBatch(ctx context.Context, paths []string) (int, []string, error) {
	var (
		deleted int
		failed  []string
	)

	for _, chunk := range utils.Chunk(paths, maxDeleteBatch) {
		args := make([]*files.DeleteArg, 0, len(chunk))
		for _, p := range chunk {
			args = append(args, files.NewDeleteArg(a.fullPath(p)))
		}

		result, err := a.runDeleteBatch(ctx, args)
		if err != nil {
			return deleted, failed, err
		}

		for i, entry := range result.Entries {
			if i >= len(chunk) {
				break
			}
			if entry.Tag == files.DeleteBatchResultEntrySuccess {
				deleted++
				continue
			}
			if entry.Failure != nil && entry.Failure.PathLookup != nil &&
				entry.Failure.PathLookup.Tag == files.LookupErrorNotFound {
				continue
			}
			reason := "unknown"
			if entry.Failure != nil {
				reason = entry.Failure.Tag
			}
			failed = append(failed, chunk[i]+": "+reason)
		}
	}
	return deleted, failed, nil
}

// runDeleteBatch launches one batch and, if the API answers with a job id,
// polls DeleteBatchCheck until the job leaves in_progress.
func (a *Adapter) runDeleteBatch(ctx context.Context, args []*files.DeleteArg) (*files.DeleteBatchResult, error) {
	client, err := a.session.Client(ctx)
	if err != nil {
		return nil, err
	}

	launch, err := client.DeleteBatch(files.NewDeleteBatchArg(args))
	if err != nil {
		return nil, translateError(err, "deleteObjectList", "")
	}

	switch launch.Tag {
	case files.DeleteBatchLaunchComplete:
		if launch.Complete == nil {
			return &files.DeleteBatchResult{}, nil
		}
		return launch.Complete, nil
	case files.DeleteBatchLaunchAsyncJobId:
	default:
		return nil, errors.NewError(errors.ErrCodeTransient, "unexpected delete_batch response: "+launch.Tag).
			WithComponent(backendName).
			WithOperation("deleteObjectList")
	}

	var result *files.DeleteBatchResult
	err = a.poller.DoWithContext(ctx, func(ctx context.Context) error {
		client, err := a.session.Client(ctx)
		if err != nil {
			return err
		}
		status, err := client.DeleteBatchCheck(async.NewPollArg(launch.AsyncJobId))
		if err != nil {
			return translateError(err, "deleteObjectList", "")
		}

		switch status.Tag {
		case files.DeleteBatchJobStatusInProgress:
			return retry.Pending(backendName, "deleteObjectList", "delete_batch job "+launch.AsyncJobId)
		case files.DeleteBatchJobStatusComplete:
			result = status.Complete
			if result == nil {
				result = &files.DeleteBatchResult{}
			}
			return nil
		default:
			reason := status.Tag
			if status.Failed != nil {
				reason = status.Failed.Tag
			}
			return errors.NewError(errors.ErrCodeTransient, "delete_batch job failed: "+reason).
				WithComponent(backendName).
				WithOperation("deleteObjectList")
		}
	})
	return result, err
}

// Mkdirp is a no-op; uploads create parent folders.
func (a *Adapter) Mkdirp(ctx context.Context, p string) error {
	return nil
}

// Close has nothing to release.
func (a *Adapter) Close() error {
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

var _ types.TableAdapter = (*Adapter)(nil)
