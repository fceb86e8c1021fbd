// Package minio implements the storage adapter contract on MinIO and other
// S3-compatible servers through minio-go.
//
// Semantics match the s3 package: flat keys under an optional RootPath,
// idempotent deletes, and Rename as a server-side copy followed by a remove.
// Listing relies on the SDK's channel API, which follows continuation tokens
// itself. Error responses are classified by code with minio.ToErrorResponse.
package minio
