// Package storagetest holds the behaviour every storage adapter must share.
// Backend packages run it against their own fakes.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudtable/internal/tablelog"
	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
)

// Factory returns a fresh, empty adapter.
type Factory func(t *testing.T) types.TableAdapter

// RunAdapterSuite exercises the file contract and the table operations.
func RunAdapterSuite(t *testing.T, newAdapter Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("write read stat", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.InitFS(ctx))

		require.NoError(t, a.WriteFile(ctx, "dir/a.txt", []byte("hello"), types.WriteOptions{}))

		data, err := a.ReadFile(ctx, "dir/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		fi, err := a.Stat(ctx, "dir/a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(5), fi.Size)
		assert.Equal(t, types.FileTypeFile, fi.Type)

		ok, err := a.Exists(ctx, "dir/a.txt")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing object is not found", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.ReadFile(ctx, "nope")
		assert.True(t, errors.IsNotFound(err), "got %v", err)

		_, err = a.Stat(ctx, "nope")
		assert.True(t, errors.IsNotFound(err), "got %v", err)

		ok, err := a.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("do not overwrite", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.WriteFile(ctx, "x", []byte("1"), types.WriteOptions{}))

		err := a.WriteFile(ctx, "x", []byte("2"), types.WriteOptions{DoNotOverwrite: true})
		assert.True(t, errors.IsAlreadyExists(err), "got %v", err)

		data, err := a.ReadFile(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "1", string(data))
	})

	t.Run("unlink", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.WriteFile(ctx, "x", []byte("1"), types.WriteOptions{}))
		require.NoError(t, a.Unlink(ctx, "x"))

		ok, err := a.Exists(ctx, "x")
		require.NoError(t, err)
		assert.False(t, ok)

		err = a.Unlink(ctx, "x")
		if a.Capabilities().IdempotentDelete {
			assert.NoError(t, err)
		} else {
			assert.True(t, errors.IsNotFound(err), "got %v", err)
		}
	})

	t.Run("rename", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.WriteFile(ctx, "from", []byte("data"), types.WriteOptions{}))
		require.NoError(t, a.Rename(ctx, "from", "sub/to"))

		data, err := a.ReadFile(ctx, "sub/to")
		require.NoError(t, err)
		assert.Equal(t, "data", string(data))

		ok, err := a.Exists(ctx, "from")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("listing", func(t *testing.T) {
		a := newAdapter(t)
		for _, p := range []string{"p/a", "p/b", "p/sub/c", "q/d"} {
			require.NoError(t, a.WriteFile(ctx, p, []byte(p), types.WriteOptions{}))
		}

		entries, err := a.ReadAll(ctx, "p", types.ListOptions{IncludeMeta: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "sub/c"}, paths(entries))

		names, err := a.ReadDir(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "sub"}, names)

		size, err := a.Size(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, int64(len("p/a")+len("p/b")+len("p/sub/c")), size)
	})

	t.Run("listing spans pages", func(t *testing.T) {
		a := newAdapter(t)
		const n = 25
		for i := 0; i < n; i++ {
			require.NoError(t, a.WriteFile(ctx, fmt.Sprintf("many/%03d", i), []byte("x"), types.WriteOptions{}))
		}

		want := make([]string, 0, n)
		for i := 0; i < n; i++ {
			want = append(want, fmt.Sprintf("%03d", i))
		}

		entries, err := a.ReadAll(ctx, "many", types.ListOptions{MaxPageSize: 4})
		require.NoError(t, err)
		assert.ElementsMatch(t, want, paths(entries))
	})

	t.Run("remove folder and object list", func(t *testing.T) {
		a := newAdapter(t)
		for _, p := range []string{"f/a", "f/b/c", "keep"} {
			require.NoError(t, a.WriteFile(ctx, p, []byte("1"), types.WriteOptions{}))
		}
		require.NoError(t, a.RemoveFolder(ctx, "f"))

		entries, err := a.ReadAll(ctx, "f", types.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, entries)

		require.NoError(t, a.DeleteObjectList(ctx, []types.FileInfo{{Path: "keep"}, {Path: "missing"}, {}}))
		ok, err := a.Exists(ctx, "keep")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("table round trip", func(t *testing.T) {
		a := newAdapter(t)

		require.NoError(t, a.WriteSnapshotAndCompact(ctx, "t.db", []byte("base;")))
		require.NoError(t, a.AppendRecord(ctx, "t.db", []byte("r1;")))
		require.NoError(t, a.AppendRecord(ctx, "t.db", []byte("r2;")))

		data, err := a.ReadMergedTable(ctx, "t.db")
		require.NoError(t, err)
		assert.Equal(t, "base;r1;r2;", string(data))

		require.NoError(t, a.CrashSafeWriteSnapshot(ctx, "t.db", []byte("merged;")))
		data, err = a.ReadMergedTable(ctx, "t.db")
		require.NoError(t, err)
		assert.Equal(t, "merged;", string(data))

		ok, err := a.Exists(ctx, "t.db~")
		require.NoError(t, err)
		assert.False(t, ok, "temp snapshot left behind")

		require.NoError(t, a.DeleteTable(ctx, "t.db"))
		_, err = a.ReadMergedTable(ctx, "t.db")
		assert.True(t, errors.IsNotFound(err), "got %v", err)
	})

	t.Run("snapshot of merged content compacts it", func(t *testing.T) {
		a := newAdapter(t)

		require.NoError(t, a.WriteSnapshotAndCompact(ctx, "t.db", []byte("{\"a\":1}\n")))
		require.NoError(t, a.AppendRecord(ctx, "t.db", []byte("{\"b\":2}\n")))

		merged, err := a.ReadMergedTable(ctx, "t.db")
		require.NoError(t, err)
		assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(merged))

		require.NoError(t, a.WriteSnapshotAndCompact(ctx, "t.db", merged))

		data, err := a.ReadMergedTable(ctx, "t.db")
		require.NoError(t, err)
		assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(data))
		assert.Empty(t, appendRecords(t, a, "t.db"))
	})

	t.Run("burst of appends then snapshot", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.WriteSnapshotAndCompact(ctx, "b.db", []byte("base\n")))

		for i := 0; i < 20; i++ {
			require.NoError(t, a.AppendRecord(ctx, "b.db", []byte(fmt.Sprintf("r%d\n", i))))
		}
		merged, err := a.ReadMergedTable(ctx, "b.db")
		require.NoError(t, err)

		require.NoError(t, a.CrashSafeWriteSnapshot(ctx, "b.db", merged))
		assert.Empty(t, appendRecords(t, a, "b.db"))

		data, err := a.ReadMergedTable(ctx, "b.db")
		require.NoError(t, err)
		assert.Equal(t, string(merged), string(data))

		require.NoError(t, a.AppendRecord(ctx, "b.db", []byte("late\n")))
		data, err = a.ReadMergedTable(ctx, "b.db")
		require.NoError(t, err)
		assert.Equal(t, string(merged)+"late\n", string(data))
	})
}

// appendRecords lists the record names left in table's append folder. A
// folder the backend no longer reports counts as empty.
func appendRecords(t *testing.T, a types.Adapter, table string) []string {
	t.Helper()
	entries, err := a.ReadAll(context.Background(), tablelog.AppendFolder(table), types.ListOptions{})
	if errors.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, r := range tablelog.SortRecords(paths(entries)) {
		names = append(names, r.Name)
	}
	return names
}

func paths(entries []types.FileInfo) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
