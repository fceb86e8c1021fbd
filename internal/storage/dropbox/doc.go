// Package dropbox implements the storage adapter contract on a Dropbox
// folder through the files API.
//
// Dropbox is a real, case-insensitive folder tree, so it differs from the
// object-store adapters in a few places:
//
//   - Paths are "/"-rooted below BasePath; the app root is "".
//   - Rename is MoveV2 and refuses an existing target, so
//     CrashSafeWriteSnapshot deletes the old base before moving the
//     temporary snapshot into place.
//   - Unlink and RemoveFolder are both DeleteV2; a missing path is not an
//     error. Deleting the root is refused.
//   - DeleteObjectList uses DeleteBatch in chunks of 1000 and polls
//     DeleteBatchCheck when the API answers with an async job. Entries that
//     were already gone count as deleted.
//   - Stat of a folder is NotFound, and Size recurses through folders.
//
// Authentication uses either a long-lived access token or a refresh token,
// which is exchanged at the OAuth2 token endpoint whenever the current
// access token expires. Requests can be throttled with RequestsPerSecond.
//
// The table operations are implemented here rather than through
// tablelog.Log, listing the append folder once per read and counting
// DeleteBatch outcomes per entry during compaction.
package dropbox
