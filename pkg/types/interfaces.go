package types

import (
	"context"
)

// Adapter defines the uniform file-system-like contract over an object store.
//
// Paths are slash separated and relative to the adapter's logical root
// (bucket, container or base folder plus an optional prefix). Every error
// returned is a *errors.StoreError so callers can test errors.IsNotFound
// without knowing the backend.
type Adapter interface {
	// Capabilities reports backend behaviours the table module depends on.
	Capabilities() Capabilities

	// InitFS creates the bucket or container if missing.
	InitFS(ctx context.Context) error

	// Object operations
	WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Stat(ctx context.Context, path string) (*FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)

	// Listing operations
	ReadAll(ctx context.Context, prefix string, opts ListOptions) ([]FileInfo, error)
	ReadDir(ctx context.Context, prefix string) ([]string, error)
	Size(ctx context.Context, path string) (int64, error)

	// Bulk removal
	RemoveFolder(ctx context.Context, prefix string) error
	DeleteObjectList(ctx context.Context, entries []FileInfo) error

	// Mkdirp is a no-op on object stores; folders exist implicitly.
	Mkdirp(ctx context.Context, path string) error

	Close() error
}

// TableStore emulates appendable, crash-safe tables on top of an Adapter.
type TableStore interface {
	AppendRecord(ctx context.Context, tablePath string, content []byte) error
	ReadMergedTable(ctx context.Context, tablePath string) ([]byte, error)
	WriteSnapshotAndCompact(ctx context.Context, tablePath string, content []byte) error
	CrashSafeWriteSnapshot(ctx context.Context, tablePath string, content []byte) error
	DeleteTable(ctx context.Context, tablePath string) error
}

// TableAdapter is what the embedded database binds to: file operations plus
// table emulation on the same backend.
type TableAdapter interface {
	Adapter
	TableStore
}
