package minio

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeClient struct {
	mu         sync.Mutex
	buckets    map[string]bool
	objects    map[string][]byte
	failRemove map[string]string
	listOpts   []minio.ListObjectsOptions
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{
		buckets:    map[string]bool{bucket: true},
		objects:    make(map[string][]byte),
		failRemove: make(map[string]string),
	}
}

func noSuchKey(key string) error {
	return minio.ErrorResponse{Code: "NoSuchKey", Key: key, StatusCode: http.StatusNotFound, Message: "The specified key does not exist."}
}

func (f *fakeClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[bucket], nil
}

func (f *fakeClient) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[bucket] {
		return minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou", StatusCode: http.StatusConflict}
	}
	f.buckets[bucket] = true
	return nil
}

func (f *fakeClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (f *fakeClient) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, noSuchKey(key)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeClient) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey(key)
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Now()}, nil
}

func (f *fakeClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeClient) RemoveObjects(ctx context.Context, bucket string, objects <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	errs := make(chan minio.RemoveObjectError)
	go func() {
		defer close(errs)
		for obj := range objects {
			f.mu.Lock()
			code, fail := f.failRemove[obj.Key]
			if !fail {
				delete(f.objects, obj.Key)
			}
			f.mu.Unlock()

			if fail {
				errs <- minio.RemoveObjectError{
					ObjectName: obj.Key,
					Err:        minio.ErrorResponse{Code: code, StatusCode: http.StatusForbidden},
				}
			}
		}
	}()
	return errs
}

func (f *fakeClient) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[src.Object]
	if !ok {
		return minio.UploadInfo{}, noSuchKey(src.Object)
	}
	f.objects[dst.Object] = data
	return minio.UploadInfo{Bucket: dst.Bucket, Key: dst.Object}, nil
}

func (f *fakeClient) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	f.listOpts = append(f.listOpts, opts)
	seen := make(map[string]bool)
	var keys []string
	for k := range f.objects {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		entry := k
		if !opts.Recursive {
			if i := strings.Index(k[len(opts.Prefix):], "/"); i >= 0 {
				entry = k[:len(opts.Prefix)+i+1]
			}
		}
		if !seen[entry] {
			seen[entry] = true
			keys = append(keys, entry)
		}
	}
	sizes := make(map[string]int64, len(keys))
	for _, k := range keys {
		sizes[k] = int64(len(f.objects[k]))
	}
	f.mu.Unlock()
	sort.Strings(keys)

	out := make(chan minio.ObjectInfo)
	go func() {
		defer close(out)
		for _, k := range keys {
			select {
			case out <- minio.ObjectInfo{Key: k, Size: sizes[k], LastModified: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

var _ Client = (*fakeClient)(nil)
