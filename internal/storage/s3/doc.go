/*
Package s3 implements the storage adapter contract on Amazon S3 and
S3-compatible endpoints, with optional CargoShip-accelerated uploads.

# Key Mapping

Every adapter path is joined onto the configured RootPath inside one bucket.
S3 has a flat namespace, so Mkdirp is a no-op and "folders" are key prefixes:

	RootPath "tenants/a", path "~t.db/rec-3-1700000000000.adb"
	  -> s3://bucket/tenants/a/~t.db/rec-3-1700000000000.adb

# Operations

	WriteFile        PutObject (or the CargoShip transporter above the threshold)
	ReadFile         GetObject
	Unlink           DeleteObject; deleting a missing key succeeds
	Rename           CopyObject then DeleteObject, not atomic
	Stat             HeadObject
	ReadAll/ReadDir  ListObjectsV2, following continuation tokens
	DeleteObjectList DeleteObjects, up to 1000 keys per request

WriteOptions.DoNotOverwrite is enforced with a HeadObject check, or with
If-None-Match when ConditionalWrites is enabled. Only the latter is free of a
check-then-write race.

# Storage Tiers

StorageTier selects the storage class of every object written. Tiers whose
objects need a restore before GET (GLACIER, DEEP_ARCHIVE) are rejected by
Config.Validate since merged table reads must fetch every record at once.

# CargoShip Integration

With EnableCargoShipOptimization set, writes of at least CargoShipThreshold
bytes go through the CargoShip transporter. A failed transporter upload is
logged and retried once through PutObject. Conditional writes and tiers
without a CargoShip equivalent always use PutObject.

# Errors

SDK errors are translated into pkg/errors codes:

	NoSuchKey, NotFound, NoSuchBucket                -> NOT_FOUND
	AccessDenied, InvalidAccessKeyId, ExpiredToken   -> AUTH_FAILURE
	PreconditionFailed, BucketAlreadyExists          -> ALREADY_EXISTS
	anything else                                    -> TRANSIENT_OR_UNKNOWN

Retries are left to the AWS SDK (Config.MaxRetries).

# Usage

	cfg := s3.NewDefaultConfig()
	cfg.Bucket = "my-app-data"
	cfg.Region = "us-west-2"

	adapter, err := s3.New(ctx, cfg, s3.WithLogger(logger))
	if err != nil {
		return err
	}
	defer adapter.Close()

	if err := adapter.AppendRecord(ctx, "users/u1/t.db", record); err != nil {
		return err
	}
*/
package s3
