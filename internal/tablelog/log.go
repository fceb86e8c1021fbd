package tablelog

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/objectfs/cloudtable/internal/metrics"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

// DefaultMaxCompactionDeletes bounds one compaction pass, matching the
// smallest common batch-delete limit.
const DefaultMaxCompactionDeletes = 999

// Config controls the append-log emulation.
type Config struct {
	// MaxCompactionDeletes caps deletions per snapshot write.
	MaxCompactionDeletes int `yaml:"max_compaction_deletes"`

	// ListPageSize is passed to ReadAll when listing an append folder.
	ListPageSize int `yaml:"list_page_size"`
}

// NewDefaultConfig returns the append-log defaults.
func NewDefaultConfig() Config {
	return Config{
		MaxCompactionDeletes: DefaultMaxCompactionDeletes,
	}
}

// Log implements types.TableStore over any types.Adapter.
type Log struct {
	store   types.Adapter
	config  Config
	clock   func() time.Time
	namer   *RecordNamer
	logger  *slog.Logger
	metrics *metrics.Collector
	backend string
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now for both record names and compaction cutoffs.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

// WithMetrics records compaction passes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Log) { l.metrics = c }
}

// New creates an append-log table store on top of store.
//
// store is usually the adapter that embeds the returned Log, so New must not
// call into it beyond Capabilities.
func New(store types.Adapter, config Config, logger *slog.Logger, opts ...Option) *Log {
	if config.MaxCompactionDeletes <= 0 {
		config.MaxCompactionDeletes = DefaultMaxCompactionDeletes
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Log{
		store:  store,
		config: config,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.backend = store.Capabilities().Backend
	l.namer = NewRecordNamer(l.clock)
	l.logger = logger.With("component", "tablelog", "backend", l.backend)
	return l
}

// AppendRecord stores content as a new immutable record next to the table.
func (l *Log) AppendRecord(ctx context.Context, tablePath string, content []byte) error {
	if err := validate(tablePath, "appendRecord"); err != nil {
		return err
	}

	name, _ := l.namer.Next()
	recordPath := path.Join(AppendFolder(tablePath), name)

	if err := l.store.WriteFile(ctx, recordPath, content, types.WriteOptions{}); err != nil {
		return err
	}
	l.logger.Debug("appended record", "table", tablePath, "record", name, "bytes", len(content))
	return nil
}

// ReadMergedTable returns the base snapshot followed by every append record
// in timestamp order.
//
// A table with neither a base nor any record is NotFound. A table with
// records but no base yields the records alone.
func (l *Log) ReadMergedTable(ctx context.Context, tablePath string) ([]byte, error) {
	if err := validate(tablePath, "readMergedTable"); err != nil {
		return nil, err
	}

	base, err := l.store.ReadFile(ctx, tablePath)
	baseMissing := errors.IsNotFound(err)
	if err != nil && !baseMissing {
		return nil, err
	}

	folder := AppendFolder(tablePath)
	records, err := l.listRecords(ctx, folder)
	if err != nil {
		return nil, err
	}

	if baseMissing && len(records) == 0 {
		return nil, errors.NotFound(l.backend, "readMergedTable", tablePath)
	}

	var buf bytes.Buffer
	buf.Write(base)
	for _, r := range records {
		data, err := l.store.ReadFile(ctx, path.Join(folder, r.Name))
		if err != nil {
			// A record listed a moment ago and now gone means a concurrent
			// compaction; the caller must re-read rather than get a gap.
			return nil, err
		}
		buf.Write(data)
	}

	l.logger.Debug("read merged table", "table", tablePath, "records", len(records), "base_missing", baseMissing)
	return buf.Bytes(), nil
}

// WriteSnapshotAndCompact overwrites the base snapshot and then deletes
// records named before the start of the call.
func (l *Log) WriteSnapshotAndCompact(ctx context.Context, tablePath string, content []byte) error {
	if err := validate(tablePath, "writeSnapshotAndCompact"); err != nil {
		return err
	}

	cutoff := l.namer.Cutoff()
	if err := l.store.WriteFile(ctx, tablePath, content, types.WriteOptions{}); err != nil {
		return err
	}

	l.Compact(ctx, tablePath, cutoff)
	return nil
}

// CrashSafeWriteSnapshot writes the snapshot to a temporary object and renames
// it over the table, so readers see either the old or the new base in full.
func (l *Log) CrashSafeWriteSnapshot(ctx context.Context, tablePath string, content []byte) error {
	if err := validate(tablePath, "crashSafeWriteSnapshot"); err != nil {
		return err
	}

	cutoff := l.namer.Cutoff()
	tmp := TempPath(tablePath)

	if err := l.store.WriteFile(ctx, tmp, content, types.WriteOptions{}); err != nil {
		return err
	}

	if !l.store.Capabilities().RenameOverwrites {
		if err := l.store.Unlink(ctx, tablePath); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}

	if err := l.store.Rename(ctx, tmp, tablePath); err != nil {
		return err
	}

	l.Compact(ctx, tablePath, cutoff)
	return nil
}

// DeleteTable removes the base snapshot and the whole append folder.
func (l *Log) DeleteTable(ctx context.Context, tablePath string) error {
	if err := validate(tablePath, "deleteTable"); err != nil {
		return err
	}

	if err := l.store.Unlink(ctx, tablePath); err != nil && !errors.IsNotFound(err) {
		return err
	}
	return l.store.RemoveFolder(ctx, AppendFolder(tablePath))
}

// Compact deletes up to MaxCompactionDeletes records with a timestamp before
// cutoff and reports how many were removed. Failures are logged and counted,
// never returned: the snapshot the caller just wrote is already durable.
func (l *Log) Compact(ctx context.Context, tablePath string, cutoff int64) int {
	folder := AppendFolder(tablePath)

	records, err := l.listRecords(ctx, folder)
	if err != nil {
		l.logger.Warn("compaction listing failed", "table", tablePath, "error", err)
		l.metrics.RecordCompaction(l.backend, 0, 0, err)
		return 0
	}

	victims := SelectCompactable(records, cutoff, l.config.MaxCompactionDeletes)
	if len(victims) == 0 {
		l.metrics.RecordCompaction(l.backend, len(records), 0, nil)
		return 0
	}

	entries := make([]types.FileInfo, 0, len(victims))
	for _, r := range victims {
		entries = append(entries, types.FileInfo{Path: path.Join(folder, r.Name)})
	}

	if err := l.store.DeleteObjectList(ctx, entries); err != nil {
		l.logger.Warn("compaction incomplete", "table", tablePath, "eligible", len(victims), "error", err)
		l.metrics.RecordCompaction(l.backend, len(records), 0, err)
		return 0
	}

	if remaining := len(records) - len(victims); remaining > 0 {
		l.logger.Debug("records left for a later compaction", "table", tablePath, "remaining", remaining)
	}
	l.logger.Debug("compacted", "table", tablePath, "deleted", len(victims))
	l.metrics.RecordCompaction(l.backend, len(records), len(victims), nil)
	return len(victims)
}

func (l *Log) listRecords(ctx context.Context, folder string) ([]Record, error) {
	entries, err := l.store.ReadAll(ctx, folder, types.ListOptions{MaxPageSize: l.config.ListPageSize})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// Records sit directly in the folder; anything nested is foreign.
		if path.Dir(e.Path) != "." {
			continue
		}
		names = append(names, e.Path)
	}
	return SortRecords(names), nil
}

func validate(tablePath, operation string) error {
	if err := utils.ValidateKey(tablePath); err != nil {
		return errors.NewError(errors.ErrCodeInvalidPath, err.Error()).
			WithComponent("tablelog").
			WithOperation(operation).
			WithPath(tablePath)
	}
	return nil
}
