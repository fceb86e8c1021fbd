package s3

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeClient is an in-memory bucket answering the Client calls the adapter
// makes, with the SDK's error types.
type fakeClient struct {
	mu           sync.Mutex
	bucket       string
	bucketExists bool
	objects      map[string]fakeObject

	failDelete  map[string]string
	listCalls   int
	deleteCalls int
	lastCreate  *s3.CreateBucketInput
	lastPut     *s3.PutObjectInput
}

type fakeObject struct {
	data  []byte
	mtime time.Time
	class s3types.StorageClass
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{
		bucket:       bucket,
		bucketExists: true,
		objects:      make(map[string]fakeObject),
		failDelete:   make(map[string]string),
	}
}

func (f *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bucketExists {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = in
	if f.bucketExists {
		return nil, &s3types.BucketAlreadyOwnedByYou{}
	}
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPut = in
	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, ok := f.objects[key]; ok {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
		}
	}
	f.objects[key] = fakeObject{data: data, mtime: time.Now(), class: in.StorageClass}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (f *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.mtime),
	}, nil
}

func (f *fakeClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		key := aws.ToString(id.Key)
		if code, ok := f.failDelete[key]; ok {
			out.Errors = append(out.Errors, s3types.Error{Key: aws.String(key), Code: aws.String(code)})
			continue
		}
		delete(f.objects, key)
	}
	return out, nil
}

func (f *fakeClient) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src := strings.TrimPrefix(aws.ToString(in.CopySource), f.bucket+"/")
	src, err := url.PathUnescape(src)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[src]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = obj
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	// Entries are keys, or common prefixes ending in the delimiter.
	seen := make(map[string]bool)
	var entries []string
	for k := range f.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		entry := k
		if delim != "" {
			if i := strings.Index(k[len(prefix):], delim); i >= 0 {
				entry = k[:len(prefix)+i+len(delim)]
			}
		}
		if !seen[entry] {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	sort.Strings(entries)

	token := aws.ToString(in.ContinuationToken)
	start := sort.SearchStrings(entries, token)
	if token != "" && start < len(entries) && entries[start] == token {
		start++
	}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	out := &s3.ListObjectsV2Output{}
	for _, e := range entries[start:end] {
		if delim != "" && strings.HasSuffix(e, delim) {
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(e)})
			continue
		}
		obj := f.objects[e]
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(e),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.mtime),
		})
	}
	if end < len(entries) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(entries[end-1])
	}
	return out, nil
}

var _ Client = (*fakeClient)(nil)
