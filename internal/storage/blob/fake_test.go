package blob

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// fakeContainer keeps blobs in a map and fails with the service's error
// codes.
type fakeContainer struct {
	mu      sync.Mutex
	exists  bool
	blobs   map[string][]byte
	copying map[string]int

	// copyPolls makes StartCopy report pending until dst has been polled
	// this many times.
	copyPolls  int
	copyFails  bool
	listCalls  int
	deleteFail map[string]bloberror.Code
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		exists:     true,
		blobs:      make(map[string][]byte),
		copying:    make(map[string]int),
		deleteFail: make(map[string]bloberror.Code),
	}
}

func respError(code bloberror.Code, status int) error {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "https", Host: "acct.blob.core.windows.net", Path: "/tables"}}
	return &azcore.ResponseError{
		ErrorCode:  string(code),
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{"X-Ms-Error-Code": []string{string(code)}},
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    req,
		},
	}
}

func (f *fakeContainer) Create(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exists {
		return respError(bloberror.ContainerAlreadyExists, http.StatusConflict)
	}
	f.exists = true
	return nil
}

func (f *fakeContainer) Upload(ctx context.Context, name string, data []byte, ifNoneMatch bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[name]; ok && ifNoneMatch {
		return respError(bloberror.BlobAlreadyExists, http.StatusConflict)
	}
	f.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeContainer) Download(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[name]
	if !ok {
		return nil, respError(bloberror.BlobNotFound, http.StatusNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeContainer) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code, ok := f.deleteFail[name]; ok {
		return respError(code, http.StatusForbidden)
	}
	if _, ok := f.blobs[name]; !ok {
		return respError(bloberror.BlobNotFound, http.StatusNotFound)
	}
	delete(f.blobs, name)
	return nil
}

func (f *fakeContainer) Properties(ctx context.Context, name string) (blobProperties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[name]
	if !ok {
		return blobProperties{}, respError(bloberror.BlobNotFound, http.StatusNotFound)
	}

	props := blobProperties{Size: int64(len(data)), LastModified: time.Now()}
	if left, copying := f.copying[name]; copying {
		switch {
		case left > 0:
			f.copying[name] = left - 1
			props.CopyStatus = azblob.CopyStatusTypePending
		case f.copyFails:
			props.CopyStatus = azblob.CopyStatusTypeFailed
			props.CopyDetail = "500 InternalError"
		default:
			props.CopyStatus = azblob.CopyStatusTypeSuccess
		}
	}
	return props, nil
}

func (f *fakeContainer) StartCopy(ctx context.Context, src, dst string) (azblob.CopyStatusType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[src]
	if !ok {
		return "", respError(bloberror.CannotVerifyCopySource, http.StatusNotFound)
	}
	f.blobs[dst] = data
	if f.copyPolls > 0 {
		f.copying[dst] = f.copyPolls
		return azblob.CopyStatusTypePending, nil
	}
	return azblob.CopyStatusTypeSuccess, nil
}

func (f *fakeContainer) ListFlat(ctx context.Context, prefix, marker string, max int32) (listPage, error) {
	return f.list(prefix, marker, max, false)
}

func (f *fakeContainer) ListHierarchy(ctx context.Context, prefix, marker string, max int32) (listPage, error) {
	return f.list(prefix, marker, max, true)
}

func (f *fakeContainer) list(prefix, marker string, max int32, hierarchy bool) (listPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	seen := make(map[string]bool)
	var entries []string
	for name := range f.blobs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		entry := name
		if hierarchy {
			if i := strings.Index(name[len(prefix):], "/"); i >= 0 {
				entry = name[:len(prefix)+i+1]
			}
		}
		if !seen[entry] && entry > marker {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	sort.Strings(entries)

	var page listPage
	if int(max) < len(entries) {
		entries = entries[:max]
		page.NextMarker = entries[len(entries)-1]
	}
	for _, e := range entries {
		if hierarchy && strings.HasSuffix(e, "/") {
			page.Prefixes = append(page.Prefixes, e)
			continue
		}
		page.Items = append(page.Items, blobItem{Name: e, Size: int64(len(f.blobs[e])), LastModified: time.Now()})
	}
	return page, nil
}

var _ containerClient = (*fakeContainer)(nil)
