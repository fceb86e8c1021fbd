/*
Package types defines the contracts shared by the storage adapters and the
append-log table module.

# Layers

	┌─────────────────────────────────────────────┐
	│        embedded flat-file database          │
	└─────────────────────────────────────────────┘
	                      │ TableAdapter
	┌─────────────────────────────────────────────┐
	│   internal/tablelog (or Dropbox override)   │
	└─────────────────────────────────────────────┘
	                      │ Adapter
	┌──────────┬──────────┬──────────┬────────────┐
	│    s3    │  minio   │   blob   │  dropbox   │
	└──────────┴──────────┴──────────┴────────────┘

Adapter is the file-system-like surface every backend implements: whole-object
reads and writes, stat, paginated listing, rename, and bulk removal. TableStore
adds appendable tables: a base snapshot at the table path plus immutable
record objects in a sibling folder named "~<basename>".

# Errors

Adapters never leak vendor error shapes. A missing object is always reported
as a NotFound StoreError from pkg/errors, whether the SDK signalled it with a
typed error, an error code string or a JSON summary.

# Metadata

FileInfo serializes as {"path","size","mtimeMs","type"} and Type is always
"file"; object stores have no directory entries.
*/
package types
