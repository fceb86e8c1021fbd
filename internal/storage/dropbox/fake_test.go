package dropbox

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/async"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

// apiError mimics the SDK's endpoint errors, whose Error() is the API's
// error_summary.
type apiError struct {
	summary string
}

func (e apiError) Error() string { return e.summary }

type fakeFile struct {
	display string
	data    []byte
	mtime   time.Time
}

// fakeDropbox is a case-insensitive in-memory Dropbox.
type fakeDropbox struct {
	mu    sync.Mutex
	files map[string]fakeFile

	cursors  map[string]pendingPage
	nextID   int
	jobs     map[string]*fakeJob
	failPath map[string]bool

	// asyncPolls makes DeleteBatch return a job that stays in_progress for
	// this many checks.
	asyncPolls int
	jobFails   bool

	listCalls   int
	batchCalls  int
	checkCalls  int
	deleteCalls int
}

type pendingPage struct {
	rest  []files.IsMetadata
	limit int
}

type fakeJob struct {
	polls  int
	result *files.DeleteBatchResult
}

func newFakeDropbox() *fakeDropbox {
	return &fakeDropbox{
		files:    make(map[string]fakeFile),
		cursors:  make(map[string]pendingPage),
		jobs:     make(map[string]*fakeJob),
		failPath: make(map[string]bool),
	}
}

func lower(p string) string { return strings.ToLower(p) }

func (f *fakeDropbox) isFolder(p string) bool {
	prefix := lower(p) + "/"
	for k := range f.files {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeDropbox) fileMetadata(file fakeFile) *files.FileMetadata {
	return &files.FileMetadata{
		Metadata: files.Metadata{
			Name:        path.Base(file.display),
			PathDisplay: file.display,
			PathLower:   lower(file.display),
		},
		Size:           uint64(len(file.data)),
		ServerModified: file.mtime,
	}
}

func folderMetadata(display string) *files.FolderMetadata {
	return &files.FolderMetadata{
		Metadata: files.Metadata{
			Name:        path.Base(display),
			PathDisplay: display,
			PathLower:   lower(display),
		},
	}
}

func (f *fakeDropbox) GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[lower(arg.Path)]; ok {
		return f.fileMetadata(file), nil
	}
	if f.isFolder(arg.Path) {
		return folderMetadata(arg.Path), nil
	}
	return nil, apiError{"path/not_found/.."}
}

func (f *fakeDropbox) ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	folder := lower(arg.Path)
	if folder != "" && !f.isFolder(folder) {
		return nil, apiError{"path/not_found/."}
	}

	folders := make(map[string]string)
	var entries []files.IsMetadata
	keys := make([]string, 0, len(f.files))
	for k := range f.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !strings.HasPrefix(k, folder+"/") {
			continue
		}
		file := f.files[k]
		rest := file.display[len(folder)+1:]
		segs := strings.Split(rest, "/")

		// Intermediate folders, by display path.
		for i := 1; i < len(segs); i++ {
			if !arg.Recursive && i > 1 {
				break
			}
			display := file.display[:len(folder)+1+len(strings.Join(segs[:i], "/"))]
			if _, seen := folders[lower(display)]; !seen {
				folders[lower(display)] = display
				entries = append(entries, folderMetadata(display))
			}
		}
		if arg.Recursive || len(segs) == 1 {
			entries = append(entries, f.fileMetadata(file))
		}
	}
	return f.page(entries, int(arg.Limit)), nil
}

func (f *fakeDropbox) page(entries []files.IsMetadata, limit int) *files.ListFolderResult {
	if limit <= 0 || limit >= len(entries) {
		return &files.ListFolderResult{Entries: entries}
	}
	f.nextID++
	cursor := fmt.Sprintf("cursor-%d", f.nextID)
	f.cursors[cursor] = pendingPage{rest: entries[limit:], limit: limit}
	return &files.ListFolderResult{Entries: entries[:limit], Cursor: cursor, HasMore: true}
}

func (f *fakeDropbox) ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	pending, ok := f.cursors[arg.Cursor]
	if !ok {
		return nil, apiError{"reset/.."}
	}
	delete(f.cursors, arg.Cursor)
	return f.page(pending.rest, pending.limit), nil
}

func (f *fakeDropbox) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[lower(arg.Path)]
	if !ok {
		return nil, nil, apiError{"path/not_found/..."}
	}
	return f.fileMetadata(file), io.NopCloser(bytes.NewReader(file.data)), nil
}

func (f *fakeDropbox) Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	k := lower(arg.Path)
	if _, exists := f.files[k]; exists && arg.Mode != nil && arg.Mode.Tag == files.WriteModeAdd {
		return nil, apiError{"path/conflict/file/..."}
	}
	file := fakeFile{display: arg.Path, data: data, mtime: time.Now()}
	f.files[k] = file
	return f.fileMetadata(file), nil
}

func (f *fakeDropbox) MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, to := lower(arg.FromPath), lower(arg.ToPath)
	file, ok := f.files[from]
	if !ok {
		return nil, apiError{"from_lookup/not_found/.."}
	}
	if _, exists := f.files[to]; exists {
		return nil, apiError{"to/conflict/file/.."}
	}
	delete(f.files, from)
	file.display = arg.ToPath
	f.files[to] = file
	return &files.RelocationResult{}, nil
}

// remove deletes a file or a whole folder; false when nothing was there.
func (f *fakeDropbox) remove(p string) bool {
	k := lower(p)
	if _, ok := f.files[k]; ok {
		delete(f.files, k)
		return true
	}
	found := false
	for key := range f.files {
		if strings.HasPrefix(key, k+"/") {
			delete(f.files, key)
			found = true
		}
	}
	return found
}

func (f *fakeDropbox) DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if !f.remove(arg.Path) {
		return nil, apiError{"path_lookup/not_found/.."}
	}
	return &files.DeleteResult{}, nil
}

func (f *fakeDropbox) DeleteBatch(arg *files.DeleteBatchArg) (*files.DeleteBatchLaunch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++

	result := &files.DeleteBatchResult{}
	for _, e := range arg.Entries {
		entry := &files.DeleteBatchResultEntry{}
		switch {
		case f.failPath[lower(e.Path)]:
			entry.Tag = files.DeleteBatchResultEntryFailure
			entry.Failure = &files.DeleteError{Tagged: dropbox.Tagged{Tag: files.DeleteErrorTooManyWriteOperations}}
		case f.remove(e.Path):
			entry.Tag = files.DeleteBatchResultEntrySuccess
		default:
			entry.Tag = files.DeleteBatchResultEntryFailure
			entry.Failure = &files.DeleteError{
				Tagged:     dropbox.Tagged{Tag: files.DeleteErrorPathLookup},
				PathLookup: &files.LookupError{Tagged: dropbox.Tagged{Tag: files.LookupErrorNotFound}},
			}
		}
		result.Entries = append(result.Entries, entry)
	}

	if f.asyncPolls == 0 {
		return &files.DeleteBatchLaunch{
			Tagged:   dropbox.Tagged{Tag: files.DeleteBatchLaunchComplete},
			Complete: result,
		}, nil
	}

	f.nextID++
	id := fmt.Sprintf("dbjid:%d", f.nextID)
	f.jobs[id] = &fakeJob{polls: f.asyncPolls, result: result}
	return &files.DeleteBatchLaunch{
		Tagged:     dropbox.Tagged{Tag: files.DeleteBatchLaunchAsyncJobId},
		AsyncJobId: id,
	}, nil
}

func (f *fakeDropbox) DeleteBatchCheck(arg *async.PollArg) (*files.DeleteBatchJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++

	job, ok := f.jobs[arg.AsyncJobId]
	if !ok {
		return nil, apiError{"invalid_async_job_id/"}
	}
	if job.polls > 0 {
		job.polls--
		return &files.DeleteBatchJobStatus{Tagged: dropbox.Tagged{Tag: files.DeleteBatchJobStatusInProgress}}, nil
	}
	if f.jobFails {
		return &files.DeleteBatchJobStatus{
			Tagged: dropbox.Tagged{Tag: files.DeleteBatchJobStatusFailed},
			Failed: &files.DeleteBatchError{Tagged: dropbox.Tagged{Tag: files.DeleteBatchErrorTooManyWriteOperations}},
		}, nil
	}
	return &files.DeleteBatchJobStatus{
		Tagged:   dropbox.Tagged{Tag: files.DeleteBatchJobStatusComplete},
		Complete: job.result,
	}, nil
}

var _ Client = (*fakeDropbox)(nil)
