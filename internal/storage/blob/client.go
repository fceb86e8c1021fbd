package blob

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	azblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// blobItem is one listed blob.
type blobItem struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// listPage is one page of a flat or hierarchical listing. NextMarker is
// empty on the last page.
type listPage struct {
	Items      []blobItem
	Prefixes   []string
	NextMarker string
}

// blobProperties is the subset of GetProperties the adapter reads.
type blobProperties struct {
	Size         int64
	LastModified time.Time
	CopyStatus   azblob.CopyStatusType
	CopyDetail   string
}

// containerClient is the container-scoped API the adapter calls. Errors are
// returned as the SDK produces them.
type containerClient interface {
	Create(ctx context.Context) error
	Upload(ctx context.Context, name string, data []byte, ifNoneMatch bool) error
	Download(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	Properties(ctx context.Context, name string) (blobProperties, error)
	StartCopy(ctx context.Context, src, dst string) (azblob.CopyStatusType, error)
	ListFlat(ctx context.Context, prefix, marker string, max int32) (listPage, error)
	ListHierarchy(ctx context.Context, prefix, marker string, max int32) (listPage, error)
}

type azureContainer struct {
	client *container.Client
}

// newContainerClient builds the SDK client from whichever credential cfg
// carries.
func newContainerClient(cfg *Config) (containerClient, error) {
	if cfg.ConnectionString != "" {
		c, err := container.NewClientFromConnectionString(cfg.ConnectionString, cfg.Container, nil)
		if err != nil {
			return nil, err
		}
		return &azureContainer{client: c}, nil
	}

	containerURL, err := containerURLFor(cfg.ServiceURL, cfg.Container)
	if err != nil {
		return nil, err
	}

	if cfg.AccountKey != "" {
		cred, err := container.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		c, err := container.NewClientWithSharedKeyCredential(containerURL, cred, nil)
		if err != nil {
			return nil, err
		}
		return &azureContainer{client: c}, nil
	}

	c, err := container.NewClientWithNoCredential(containerURL, nil)
	if err != nil {
		return nil, err
	}
	return &azureContainer{client: c}, nil
}

// containerURLFor inserts the container name into the service URL path,
// keeping any SAS query string.
func containerURLFor(serviceURL, containerName string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + containerName
	return u.String(), nil
}

func (c *azureContainer) Create(ctx context.Context) error {
	_, err := c.client.Create(ctx, nil)
	return err
}

func (c *azureContainer) Upload(ctx context.Context, name string, data []byte, ifNoneMatch bool) error {
	opts := &blockblob.UploadOptions{}
	if ifNoneMatch {
		opts.AccessConditions = &azblob.AccessConditions{
			ModifiedAccessConditions: &azblob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		}
	}
	body := streaming.NopCloser(bytes.NewReader(data))
	_, err := c.client.NewBlockBlobClient(name).Upload(ctx, body, opts)
	return err
}

func (c *azureContainer) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

func (c *azureContainer) Delete(ctx context.Context, name string) error {
	_, err := c.client.NewBlobClient(name).Delete(ctx, nil)
	return err
}

func (c *azureContainer) Properties(ctx context.Context, name string) (blobProperties, error) {
	resp, err := c.client.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return blobProperties{}, err
	}
	props := blobProperties{
		Size:         deref(resp.ContentLength),
		LastModified: deref(resp.LastModified),
		CopyDetail:   deref(resp.CopyStatusDescription),
	}
	if resp.CopyStatus != nil {
		props.CopyStatus = *resp.CopyStatus
	}
	return props, nil
}

func (c *azureContainer) StartCopy(ctx context.Context, src, dst string) (azblob.CopyStatusType, error) {
	srcURL := c.client.NewBlobClient(src).URL()
	resp, err := c.client.NewBlobClient(dst).StartCopyFromURL(ctx, srcURL, nil)
	if err != nil {
		return "", err
	}
	if resp.CopyStatus == nil {
		return azblob.CopyStatusTypeSuccess, nil
	}
	return *resp.CopyStatus, nil
}

func (c *azureContainer) ListFlat(ctx context.Context, prefix, marker string, max int32) (listPage, error) {
	opts := &container.ListBlobsFlatOptions{Prefix: to.Ptr(prefix), MaxResults: to.Ptr(max)}
	if marker != "" {
		opts.Marker = to.Ptr(marker)
	}
	resp, err := c.client.NewListBlobsFlatPager(opts).NextPage(ctx)
	if err != nil {
		return listPage{}, err
	}

	page := listPage{NextMarker: deref(resp.NextMarker)}
	if resp.Segment != nil {
		page.Items = convertItems(resp.Segment.BlobItems)
	}
	return page, nil
}

func (c *azureContainer) ListHierarchy(ctx context.Context, prefix, marker string, max int32) (listPage, error) {
	opts := &container.ListBlobsHierarchyOptions{Prefix: to.Ptr(prefix), MaxResults: to.Ptr(max)}
	if marker != "" {
		opts.Marker = to.Ptr(marker)
	}
	resp, err := c.client.NewListBlobsHierarchyPager("/", opts).NextPage(ctx)
	if err != nil {
		return listPage{}, err
	}

	page := listPage{NextMarker: deref(resp.NextMarker)}
	if resp.Segment != nil {
		page.Items = convertItems(resp.Segment.BlobItems)
		for _, p := range resp.Segment.BlobPrefixes {
			page.Prefixes = append(page.Prefixes, deref(p.Name))
		}
	}
	return page, nil
}

func convertItems(items []*container.BlobItem) []blobItem {
	out := make([]blobItem, 0, len(items))
	for _, it := range items {
		item := blobItem{Name: deref(it.Name)}
		if it.Properties != nil {
			item.Size = deref(it.Properties.ContentLength)
			item.LastModified = deref(it.Properties.LastModified)
		}
		out = append(out, item)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
