// Package memory implements the storage adapter contract over a map.
//
// It backs development setups and tests. Faults can be injected per operation
// to simulate a process dying mid-way through a multi-step write.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

const backendName = "memory"

// Operation names accepted by SetFault.
const (
	OpWriteFile        = "writeFile"
	OpReadFile         = "readFile"
	OpUnlink           = "unlink"
	OpRename           = "rename"
	OpStat             = "stat"
	OpReadAll          = "readall"
	OpDeleteObjectList = "deleteObjectList"
)

// Config configures the in-memory adapter.
type Config struct {
	// RootPath is prepended to every key.
	RootPath string `yaml:"root_path"`

	// PageSize is the listing page size used when ListOptions leaves it zero.
	PageSize int `yaml:"page_size"`

	// RenameOverwrites selects whether Rename replaces an existing target
	// (object-store behaviour) or fails with AlreadyExists.
	RenameOverwrites bool `yaml:"rename_overwrites"`

	Table tablelog.Config `yaml:"table"`
}

// NewDefaultConfig returns a flat-store configuration.
func NewDefaultConfig() *Config {
	return &Config{
		PageSize:         1000,
		RenameOverwrites: true,
		Table:            tablelog.NewDefaultConfig(),
	}
}

type object struct {
	data  []byte
	mtime time.Time
}

// Adapter is an in-memory types.TableAdapter.
type Adapter struct {
	*tablelog.Log

	mu      sync.RWMutex
	objects map[string]object
	faults  map[string]error
	config  *Config
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Collector

	// pages counts listing round trips, for pagination tests.
	pages int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock sets the clock for both mtimes and the append log.
func WithClock(clock func() time.Time) Option {
	return func(a *Adapter) { a.clock = clock }
}

// WithMetrics records operations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Adapter) { a.metrics = c }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an empty in-memory adapter.
func New(config *Config, opts ...Option) *Adapter {
	if config == nil {
		config = NewDefaultConfig()
	}
	if config.PageSize <= 0 {
		config.PageSize = 1000
	}

	a := &Adapter{
		objects: make(map[string]object),
		faults:  make(map[string]error),
		config:  config,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "memory-adapter")
	a.Log = tablelog.New(a, config.Table, a.logger, tablelog.WithClock(a.clock), tablelog.WithMetrics(a.metrics))
	return a
}

// SetFault makes every later call of op fail with err; a nil err clears it.
func (a *Adapter) SetFault(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.faults, op)
		return
	}
	a.faults[op] = err
}

// ListPages reports how many listing pages have been served.
func (a *Adapter) ListPages() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pages
}

// Len reports the number of stored objects.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}

func (a *Adapter) fault(op string) error {
	if err, ok := a.faults[op]; ok {
		return err
	}
	return nil
}

func (a *Adapter) key(p string) string {
	return utils.JoinKey(a.config.RootPath, p)
}

// Capabilities describes the in-memory store.
func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		Backend:          backendName,
		FlatNamespace:    true,
		BatchDelete:      true,
		MaxBatchDelete:   1000,
		RenameOverwrites: a.config.RenameOverwrites,
		IdempotentDelete: false,
	}
}

// InitFS has nothing to create.
func (a *Adapter) InitFS(ctx context.Context) error {
	return nil
}

// WriteFile stores a copy of data.
func (a *Adapter) WriteFile(ctx context.Context, p string, data []byte, opts types.WriteOptions) error {
	return a.metrics.Observe(backendName, OpWriteFile, int64(len(data)), func() error {
		a.mu.Lock()
		defer a.mu.Unlock()

		if err := a.fault(OpWriteFile); err != nil {
			return err
		}
		k := a.key(p)
		if _, ok := a.objects[k]; ok && opts.DoNotOverwrite {
			return errors.AlreadyExists(backendName, OpWriteFile, p)
		}
		a.objects[k] = object{data: append([]byte(nil), data...), mtime: a.clock()}
		return nil
	})
}

// ReadFile returns a copy of the stored bytes.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var out []byte
	err := a.metrics.Observe(backendName, OpReadFile, 0, func() error {
		a.mu.RLock()
		defer a.mu.RUnlock()

		if err := a.fault(OpReadFile); err != nil {
			return err
		}
		obj, ok := a.objects[a.key(p)]
		if !ok {
			return errors.NotFound(backendName, OpReadFile, p)
		}
		out = append([]byte(nil), obj.data...)
		return nil
	})
	return out, err
}

// Unlink removes p; a missing object is NotFound.
func (a *Adapter) Unlink(ctx context.Context, p string) error {
	return a.metrics.Observe(backendName, OpUnlink, 0, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()

		if err := a.fault(OpUnlink); err != nil {
			return err
		}
		k := a.key(p)
		if _, ok := a.objects[k]; !ok {
			return errors.NotFound(backendName, OpUnlink, p)
		}
		delete(a.objects, k)
		return nil
	})
}

// Rename moves from onto to.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	return a.metrics.Observe(backendName, OpRename, 0, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()

		if err := a.fault(OpRename); err != nil {
			return err
		}
		src, dst := a.key(from), a.key(to)
		obj, ok := a.objects[src]
		if !ok {
			return errors.NotFound(backendName, OpRename, from)
		}
		if _, exists := a.objects[dst]; exists && !a.config.RenameOverwrites {
			return errors.AlreadyExists(backendName, OpRename, to)
		}
		a.objects[dst] = obj
		delete(a.objects, src)
		return nil
	})
}

// Stat returns metadata for p.
func (a *Adapter) Stat(ctx context.Context, p string) (*types.FileInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := a.fault(OpStat); err != nil {
		return nil, err
	}
	obj, ok := a.objects[a.key(p)]
	if !ok {
		return nil, errors.NotFound(backendName, OpStat, p)
	}
	fi := types.NewFileInfo(p, int64(len(obj.data)), obj.mtime)
	return &fi, nil
}

// Exists reports whether p is stored.
func (a *Adapter) Exists(ctx context.Context, p string) (bool, error) {
	_, err := a.Stat(ctx, p)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// ReadAll lists every key under prefix, one page at a time in key order.
func (a *Adapter) ReadAll(ctx context.Context, prefix string, opts types.ListOptions) ([]types.FileInfo, error) {
	var out []types.FileInfo
	err := a.metrics.Observe(backendName, OpReadAll, 0, func() error {
		pageSize := opts.MaxPageSize
		if pageSize <= 0 {
			pageSize = a.config.PageSize
		}
		listPrefix := utils.PrefixKey(a.config.RootPath, prefix)

		marker := ""
		for {
			page, next, err := a.listPage(listPrefix, marker, pageSize)
			if err != nil {
				return err
			}
			for _, k := range page {
				rel, _ := utils.RelativeKey(listPrefix, k)
				if !opts.IncludeMeta {
					out = append(out, types.FileInfo{Path: rel})
					continue
				}
				obj := a.objectAt(k)
				out = append(out, types.NewFileInfo(rel, int64(len(obj.data)), obj.mtime))
			}
			if next == "" {
				return nil
			}
			marker = next
		}
	})
	return out, err
}

// listPage returns up to limit keys after marker and the marker for the
// following page, "" when exhausted.
func (a *Adapter) listPage(prefix, marker string, limit int) ([]string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fault(OpReadAll); err != nil {
		return nil, "", err
	}
	a.pages++

	keys := make([]string, 0)
	for k := range a.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && k > marker {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if len(keys) <= limit {
		return keys, "", nil
	}
	return keys[:limit], keys[limit-1], nil
}

func (a *Adapter) objectAt(k string) object {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.objects[k]
}

// ReadDir lists the immediate children of prefix.
func (a *Adapter) ReadDir(ctx context.Context, prefix string) ([]string, error) {
	entries, err := a.ReadAll(ctx, prefix, types.ListOptions{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, utils.ChildName(e.Path))
	}
	return utils.UniqueSorted(names), nil
}

// Size sums one listing pass; a single object reports its own size.
func (a *Adapter) Size(ctx context.Context, p string) (int64, error) {
	if fi, err := a.Stat(ctx, p); err == nil {
		return fi.Size, nil
	} else if !errors.IsNotFound(err) {
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

// RemoveFolder deletes every key under prefix.
func (a *Adapter) RemoveFolder(ctx context.Context, prefix string) error {
	entries, err := a.ReadAll(ctx, prefix, types.ListOptions{})
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].Path = prefixJoin(prefix, entries[i].Path)
	}
	return a.DeleteObjectList(ctx, entries)
}

// DeleteObjectList removes every named object; missing ones are ignored.
func (a *Adapter) DeleteObjectList(ctx context.Context, entries []types.FileInfo) error {
	return a.metrics.Observe(backendName, OpDeleteObjectList, 0, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()

		if err := a.fault(OpDeleteObjectList); err != nil {
			return err
		}
		for _, e := range entries {
			if e.Path == "" {
				continue
			}
			delete(a.objects, a.key(e.Path))
		}
		return nil
	})
}

// Mkdirp is a no-op.
func (a *Adapter) Mkdirp(ctx context.Context, p string) error {
	return nil
}

// Close drops all stored objects.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects = make(map[string]object)
	return nil
}

func prefixJoin(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return utils.CleanKey(prefix) + "/" + rel
}

var _ types.TableAdapter = (*Adapter)(nil)
