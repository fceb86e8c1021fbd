package dropbox

import (
	"bytes"
	"context"
	"path"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
	"github.com/objectfs/cloudtable/pkg/utils"
)

// The table operations follow the append-log layout shared with every other
// backend (tablelog naming), but talk to the files API directly: one
// non-recursive listing for the records, DeleteBatch outcomes counted per
// entry, and MoveV2 onto a freed target for the crash-safe swap.

func validateTable(tablePath, operation string) error {
	if err := utils.ValidateKey(tablePath); err != nil {
		return errors.NewError(errors.ErrCodeInvalidPath, err.Error()).
			WithComponent(backendName).
			WithOperation(operation).
			WithPath(tablePath)
	}
	return nil
}

// AppendRecord writes content as a new record next to the table.
func (a *Adapter) AppendRecord(ctx context.Context, tablePath string, content []byte) error {
	if err := validateTable(tablePath, "appendRecord"); err != nil {
		return err
	}

	name, _ := a.namer.Next()
	recordPath := path.Join(tablelog.AppendFolder(tablePath), name)
	if err := a.WriteFile(ctx, recordPath, content, types.WriteOptions{}); err != nil {
		return err
	}
	a.logger.Debug("appended record", "table", tablePath, "record", name, "bytes", len(content))
	return nil
}

// ReadMergedTable returns the base followed by every record in timestamp
// order. A missing base with records yields the records; with neither the
// table is NotFound.
func (a *Adapter) ReadMergedTable(ctx context.Context, tablePath string) ([]byte, error) {
	if err := validateTable(tablePath, "readMergedTable"); err != nil {
		return nil, err
	}

	base, err := a.ReadFile(ctx, tablePath)
	baseMissing := errors.IsNotFound(err)
	if err != nil && !baseMissing {
		return nil, err
	}

	folder := tablelog.AppendFolder(tablePath)
	records, err := a.records(ctx, folder)
	if err != nil {
		return nil, err
	}
	if baseMissing && len(records) == 0 {
		return nil, errors.NotFound(backendName, "readMergedTable", tablePath)
	}

	var buf bytes.Buffer
	buf.Write(base)
	for _, r := range records {
		data, err := a.ReadFile(ctx, path.Join(folder, r.Name))
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// WriteSnapshotAndCompact overwrites the base and compacts older records.
func (a *Adapter) WriteSnapshotAndCompact(ctx context.Context, tablePath string, content []byte) error {
	if err := validateTable(tablePath, "writeSnapshotAndCompact"); err != nil {
		return err
	}

	cutoff := a.namer.Cutoff()
	if err := a.WriteFile(ctx, tablePath, content, types.WriteOptions{}); err != nil {
		return err
	}
	a.compact(ctx, tablePath, cutoff)
	return nil
}

// CrashSafeWriteSnapshot uploads to the temp path, deletes the old base
// (MoveV2 will not overwrite) and moves the temp file into place.
func (a *Adapter) CrashSafeWriteSnapshot(ctx context.Context, tablePath string, content []byte) error {
	if err := validateTable(tablePath, "crashSafeWriteSnapshot"); err != nil {
		return err
	}

	cutoff := a.namer.Cutoff()
	tmp := tablelog.TempPath(tablePath)

	if err := a.WriteFile(ctx, tmp, content, types.WriteOptions{}); err != nil {
		return err
	}
	if err := a.Unlink(ctx, tablePath); err != nil {
		return err
	}
	if err := a.Rename(ctx, tmp, tablePath); err != nil {
		return err
	}

	a.compact(ctx, tablePath, cutoff)
	return nil
}

// DeleteTable removes the base and the append folder.
func (a *Adapter) DeleteTable(ctx context.Context, tablePath string) error {
	if err := validateTable(tablePath, "deleteTable"); err != nil {
		return err
	}
	if err := a.Unlink(ctx, tablePath); err != nil {
		return err
	}
	return a.RemoveFolder(ctx, tablelog.AppendFolder(tablePath))
}

// records lists the record files directly inside folder, sorted.
func (a *Adapter) records(ctx context.Context, folder string) ([]tablelog.Record, error) {
	var names []string
	err := a.listFolder(ctx, folder, false, a.config.ListPageSize, func(e files.IsMetadata) {
		if file, ok := e.(*files.FileMetadata); ok {
			names = append(names, file.Name)
		}
	})
	if err != nil {
		return nil, err
	}
	return tablelog.SortRecords(names), nil
}

// compact deletes records older than cutoff, at most MaxCompactionDeletes
// per call. Failures are logged and counted only.
func (a *Adapter) compact(ctx context.Context, tablePath string, cutoff int64) int {
	folder := tablelog.AppendFolder(tablePath)

	records, err := a.records(ctx, folder)
	if err != nil {
		a.logger.Warn("compaction listing failed", "table", tablePath, "error", err)
		a.metrics.RecordCompaction(backendName, 0, 0, err)
		return 0
	}

	victims := tablelog.SelectCompactable(records, cutoff, a.config.Table.MaxCompactionDeletes)
	if len(victims) == 0 {
		a.metrics.RecordCompaction(backendName, len(records), 0, nil)
		return 0
	}

	paths := make([]string, 0, len(victims))
	for _, r := range victims {
		paths = append(paths, path.Join(folder, r.Name))
	}

	deleted, failed, err := a.deleteBatch(ctx, paths)
	if err == nil && len(failed) > 0 {
		err = errors.NewError(errors.ErrCodePartialFailure, "some records were not deleted").
			WithComponent(backendName).
			WithOperation("compact").
			WithPath(tablePath)
	}
	if err != nil {
		a.logger.Warn("compaction incomplete", "table", tablePath,
			"eligible", len(victims), "deleted", deleted, "failed", failed, "error", err)
	} else {
		a.logger.Debug("compacted", "table", tablePath, "deleted", deleted)
	}
	a.metrics.RecordCompaction(backendName, len(records), deleted, err)
	return deleted
}
