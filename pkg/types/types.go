package types

import (
	"time"
)

// FileTypeFile is the only Type value adapters report.
const FileTypeFile = "file"

// FileInfo is the metadata shape returned by Stat and ReadAll.
type FileInfo struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	MtimeMs int64  `json:"mtimeMs"`
	Type    string `json:"type"`
}

// NewFileInfo builds a file entry from a backend's modification time.
func NewFileInfo(path string, size int64, mtime time.Time) FileInfo {
	var ms int64
	if !mtime.IsZero() {
		ms = mtime.UnixMilli()
	}
	return FileInfo{Path: path, Size: size, MtimeMs: ms, Type: FileTypeFile}
}

// ModTime converts MtimeMs back to a time.Time.
func (fi FileInfo) ModTime() time.Time {
	return time.UnixMilli(fi.MtimeMs)
}

// WriteOptions controls WriteFile.
type WriteOptions struct {
	// DoNotOverwrite makes WriteFile fail with AlreadyExists when the target is
	// present. Blob (If-None-Match: *), Dropbox ("add" upload mode), S3 with
	// conditional writes enabled and the memory store make it one atomic
	// request. MinIO and S3 without conditional writes check first and then
	// write, so a concurrent writer can still slip in between.
	DoNotOverwrite bool
}

// ListOptions controls ReadAll.
type ListOptions struct {
	// MaxPageSize bounds each listing request; zero uses the backend default.
	MaxPageSize int
	// IncludeMeta fills Size, MtimeMs and Type. Without it only Path is set.
	IncludeMeta bool
}

// Capabilities describes the backend behind an Adapter.
type Capabilities struct {
	Backend string `json:"backend"`

	// FlatNamespace is true when folders are only key prefixes.
	FlatNamespace bool `json:"flat_namespace"`

	// BatchDelete reports a native multi-object delete; MaxBatchDelete is its
	// per-request limit.
	BatchDelete    bool `json:"batch_delete"`
	MaxBatchDelete int  `json:"max_batch_delete"`

	// RenameOverwrites is true when Rename replaces an existing target.
	RenameOverwrites bool `json:"rename_overwrites"`

	// IdempotentDelete is true when Unlink of a missing object succeeds.
	IdempotentDelete bool `json:"idempotent_delete"`
}
