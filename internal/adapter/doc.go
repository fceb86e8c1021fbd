/*
Package adapter binds one user to one storage backend.

It turns a config.Configuration (and optionally a storage URI) into a running
types.TableAdapter: it selects the backend, applies the shared root path,
builds the logger and the metrics collector, and hands both to the backend.

	┌─────────────────────────────────────────────┐
	│     embedded document database (caller)     │
	└─────────────────────────────────────────────┘
	                      │  TableStore + Adapter
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │ ← This Package
	│  backend selection, root path, lifecycle    │
	└─────────────────────────────────────────────┘
	        │         │         │         │         │
	    ┌───┴──┐  ┌───┴───┐ ┌───┴──┐ ┌────┴────┐ ┌──┴─────┐
	    │  s3  │  │ minio │ │ blob │ │ dropbox │ │ memory │
	    └──────┘  └───────┘ └──────┘ └─────────┘ └────────┘

# Storage URIs

	s3://bucket/prefix?region=eu-west-1
	s3://bucket?endpoint=http://localhost:4566     # path-style, S3-compatible
	minio://bucket/prefix?endpoint=host:9000&ssl=true
	blob://container/prefix?account=name
	dropbox:///Apps/Tables
	memory://

A URI selects the backend, its bucket or container and the root path.
Credentials always come from the configuration file or environment.

# Usage

	cfg := config.NewDefault()
	_ = cfg.LoadFromEnv()

	a, err := adapter.New(ctx, "s3://tables/tenants/42", cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)

	if err := a.AppendRecord(ctx, "users.db", line); err != nil {
		return err
	}

Open is the lower-level entry point when the caller manages logging and
metrics itself.

# Health

Start records the outcome of InitFS and then checks the backend every
health.check_interval in the background. A check looks up a path that never
exists, so a NotFound answer counts as healthy; an auth failure marks the
backend unavailable at once. Health runs one check on demand.
*/
package adapter
