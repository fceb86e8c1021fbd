/*
Package metrics exports Prometheus metrics for storage adapter calls and
append-log compaction.

	┌─────────────┐
	│  Collector  │  ← RecordOperation / RecordCompaction
	└──────┬──────┘
	       │
	┌──────▼───────┐         ┌─────────────────────┐
	│  Prometheus  │ ──────▶ │  /metrics           │
	│   Registry   │         │  /debug/operations  │
	└──────────────┘         └─────────────────────┘

Every adapter wraps its calls in Observe, labelled by backend and operation.
Failures are additionally counted by their normalized error code, so a spike
of AUTH_FAILURE on the dropbox backend is visible without parsing logs.

A nil *Collector is a valid no-op; adapters built without monitoring simply
carry a nil pointer.
*/
package metrics
