package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/objectfs/cloudtable/internal/config"
	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/internal/storage/blob"
	"github.com/objectfs/cloudtable/internal/storage/dropbox"
	"github.com/objectfs/cloudtable/internal/storage/memory"
	"github.com/objectfs/cloudtable/internal/storage/minio"
	"github.com/objectfs/cloudtable/internal/storage/s3"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/health"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

// Adapter is one user-backend binding: the selected storage adapter plus the
// logger, metrics and health tracker it reports to. Every types.TableAdapter
// method is promoted from the embedded store.
type Adapter struct {
	types.TableAdapter

	storageURI string
	storage    config.StorageConfig
	metrics    *metrics.Collector
	health     *health.Tracker
	logger     *slog.Logger

	mu         sync.Mutex
	stopChecks context.CancelFunc
	checksDone chan struct{}
}

// New creates an adapter from cfg. A non-empty storageURI overrides the
// backend type, root container and root path configured in cfg.Storage.
func New(ctx context.Context, storageURI string, cfg *config.Configuration) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if storageURI != "" {
		if err := ParseStorageURI(storageURI, &cfg.Storage); err != nil {
			return nil, fmt.Errorf("invalid storage URI: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerOptions{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
	})
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if collector, err = metrics.NewCollector(cfg.Metrics); err != nil {
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
	}

	store, err := Open(ctx, &cfg.Storage, WithLogger(logger), WithMetrics(collector))
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		TableAdapter: store,
		storageURI:   storageURI,
		storage:      cfg.Storage,
		metrics:      collector,
		health:       health.NewTracker(cfg.Health),
		logger:       logger.With("component", "adapter", "backend", cfg.Storage.Type),
	}
	a.health.Register(a.Backend())
	a.health.OnStateChange(func(backend string, from, to health.HealthState, err error) {
		a.logger.Warn("backend health changed", "from", from.String(), "to", to.String(), "error", err)
	})
	return a, nil
}

// Start prepares the backend root, begins serving metrics and launches the
// background health checks.
func (a *Adapter) Start(ctx context.Context) error {
	a.logger.Info("starting storage adapter", "uri", a.storageURI, "root_path", a.storage.RootPath)

	err := a.InitFS(ctx)
	a.health.Record(a.Backend(), err)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", a.storage.Type, err)
	}
	if err := a.metrics.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	a.mu.Lock()
	if a.stopChecks == nil {
		checkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		a.stopChecks, a.checksDone = cancel, done
		go func() {
			defer close(done)
			a.health.Run(checkCtx, a.Backend(), a.TableAdapter)
		}()
	}
	a.mu.Unlock()

	a.logger.Info("storage adapter started")
	return nil
}

// Stop ends the health checks, shuts the metrics server down and releases
// the backend client.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping storage adapter")

	a.mu.Lock()
	cancel, done := a.stopChecks, a.checksDone
	a.stopChecks, a.checksDone = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	if err := a.metrics.Stop(ctx); err != nil {
		a.logger.Warn("metrics server shutdown failed", "error", err)
	}
	return a.Close()
}

// Health checks the backend once and returns its tracked health.
func (a *Adapter) Health(ctx context.Context) health.BackendHealth {
	_ = a.health.Check(ctx, a.Backend(), a.TableAdapter)
	h, _ := a.health.Get(a.Backend())
	return h
}

// Backend returns the selected storage type.
func (a *Adapter) Backend() string {
	return a.storage.Type
}

// PersistOnLoad reports whether the database should write a fresh snapshot
// right after loading a table.
func (a *Adapter) PersistOnLoad() bool {
	return !a.storage.DoNotPersistOnLoad
}

// Metrics returns the collector, nil when metrics are disabled.
func (a *Adapter) Metrics() *metrics.Collector {
	return a.metrics
}

type openOptions struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures Open.
type Option func(*openOptions)

// WithLogger sets the logger handed to the backend adapter.
func WithLogger(l *slog.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// WithMetrics sets the collector handed to the backend adapter.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *openOptions) { o.metrics = c }
}

// Open builds the storage adapter selected by sc.Type. The backend section
// is copied, so sc.RootPath never leaks back into the caller's config.
func Open(ctx context.Context, sc *config.StorageConfig, opts ...Option) (types.TableAdapter, error) {
	o := &openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	switch sc.Type {
	case config.TypeS3:
		c := *sc.S3
		overrideRoot(&c.RootPath, sc.RootPath)
		a, err := s3.New(ctx, &c, s3.WithLogger(o.logger), s3.WithMetrics(o.metrics))
		return opened(a, err)

	case config.TypeMinio:
		c := *sc.Minio
		overrideRoot(&c.RootPath, sc.RootPath)
		a, err := minio.New(&c, minio.WithLogger(o.logger), minio.WithMetrics(o.metrics))
		return opened(a, err)

	case config.TypeBlob:
		c := *sc.Blob
		overrideRoot(&c.RootPath, sc.RootPath)
		a, err := blob.New(&c, blob.WithLogger(o.logger), blob.WithMetrics(o.metrics))
		return opened(a, err)

	case config.TypeDropbox:
		c := *sc.Dropbox
		overrideRoot(&c.BasePath, sc.RootPath)
		a, err := dropbox.New(ctx, &c, dropbox.WithLogger(o.logger), dropbox.WithMetrics(o.metrics))
		return opened(a, err)

	case config.TypeMemory:
		c := memory.NewDefaultConfig()
		if sc.Memory != nil {
			*c = *sc.Memory
		}
		overrideRoot(&c.RootPath, sc.RootPath)
		return memory.New(c, memory.WithLogger(o.logger), memory.WithMetrics(o.metrics)), nil
	}

	return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unsupported storage type: "+sc.Type).
		WithComponent("adapter")
}

// opened keeps a failed constructor's typed nil out of the interface.
func opened[T types.TableAdapter](a T, err error) (types.TableAdapter, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func overrideRoot(dst *string, root string) {
	if root != "" {
		*dst = root
	}
}
