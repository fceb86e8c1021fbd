package adapter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/objectfs/cloudtable/internal/config"
	"github.com/objectfs/cloudtable/internal/storage/blob"
	"github.com/objectfs/cloudtable/internal/storage/dropbox"
	"github.com/objectfs/cloudtable/internal/storage/memory"
	"github.com/objectfs/cloudtable/internal/storage/minio"
	"github.com/objectfs/cloudtable/internal/storage/s3"
	"github.com/objectfs/cloudtable/pkg/errors"
)

// ParseStorageURI points sc at the backend a URI names:
//
//	s3://bucket/prefix?region=eu-west-1&endpoint=https://...
//	minio://bucket/prefix?endpoint=localhost:9000&ssl=true
//	blob://container/prefix?account=name
//	dropbox:///base/path
//	memory://prefix
//
// The host is the bucket or container and the path becomes RootPath.
// Credentials never come from the URI; they stay in the backend section.
func ParseStorageURI(uri string, sc *config.StorageConfig) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return invalidURI("failed to parse URI: %v", err)
	}

	root := strings.Trim(parsed.Path, "/")
	q := parsed.Query()

	switch parsed.Scheme {
	case config.TypeS3:
		if parsed.Host == "" {
			return invalidURI("S3 URI must include bucket name")
		}
		if sc.S3 == nil {
			sc.S3 = s3.NewDefaultConfig()
		}
		sc.S3.Bucket = parsed.Host
		if v := q.Get("region"); v != "" {
			sc.S3.Region = v
		}
		if v := q.Get("endpoint"); v != "" {
			sc.S3.Endpoint = v
			sc.S3.ForcePathStyle = true
		}

	case config.TypeMinio:
		if parsed.Host == "" {
			return invalidURI("MinIO URI must include bucket name")
		}
		if sc.Minio == nil {
			sc.Minio = minio.NewDefaultConfig()
		}
		sc.Minio.Bucket = parsed.Host
		if v := q.Get("endpoint"); v != "" {
			sc.Minio.Endpoint = v
		}
		if v := q.Get("ssl"); v != "" {
			ssl, err := strconv.ParseBool(v)
			if err != nil {
				return invalidURI("invalid ssl value: %q", v)
			}
			sc.Minio.UseSSL = ssl
		}

	case config.TypeBlob:
		if parsed.Host == "" {
			return invalidURI("Blob URI must include container name")
		}
		if sc.Blob == nil {
			sc.Blob = blob.NewDefaultConfig()
		}
		sc.Blob.Container = parsed.Host
		if v := q.Get("account"); v != "" {
			sc.Blob.AccountName = v
		}

	case config.TypeDropbox:
		// dropbox://Apps/x reads naturally too; fold the host into the path.
		root = strings.Trim(parsed.Host+"/"+root, "/")
		if sc.Dropbox == nil {
			sc.Dropbox = dropbox.NewDefaultConfig()
		}

	case config.TypeMemory:
		root = strings.Trim(parsed.Host+"/"+root, "/")
		if sc.Memory == nil {
			sc.Memory = memory.NewDefaultConfig()
		}

	default:
		return invalidURI("unsupported storage scheme: %q (must be one of: s3, minio, blob, dropbox, memory)", parsed.Scheme)
	}

	sc.Type = parsed.Scheme
	sc.RootPath = root
	return nil
}

func invalidURI(format string, args ...any) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).
		WithComponent("adapter").
		WithOperation("parseStorageURI")
}
