/*
Package blob implements the storage adapter contract on Azure Blob Storage.

One adapter is bound to one container. Paths become block blob names under
an optional RootPath, and "/" acts as the virtual directory delimiter for
ReadDir and Size.

Differences from the S3 family:

  - Unlink of a missing blob is NotFound.
  - Rename is StartCopyFromURL followed by Delete. A copy the service reports
    as pending is polled with pkg/retry until it succeeds, fails or the
    attempts run out; the source is only deleted after success.
  - DoNotOverwrite is enforced by the service through If-None-Match: *.
  - There is no batch delete, so DeleteObjectList fans out single deletes
    through a bounded errgroup.

Credentials are taken from a connection string, a shared account key, or a
SAS token in ServiceURL, in that order.
*/
package blob
