/*
Package config loads cloudtable configuration from defaults, YAML files and
the environment.

Sources apply in order, later ones winning:

	NewDefault()      compiled-in defaults, memory backend selected
	LoadFromFile()    YAML, only the keys present are overwritten
	LoadFromEnv()     CLOUDTABLE_* variables

# Structure

	global:
	  log_level: INFO          # DEBUG, INFO, WARN, ERROR
	  log_format: text         # text or json
	storage:
	  type: s3                 # s3, minio, blob, dropbox, memory
	  root_path: tenants/42    # replaces the backend's own root prefix
	  do_not_persist_on_load: false
	  s3:
	    bucket: tables
	    region: eu-west-1
	    table:
	      max_compaction_deletes: 999
	  dropbox:
	    refresh_token: ...
	    app_key: ...
	metrics:
	  enabled: true
	  port: 9090
	health:
	  check_interval: 30s      # 0 disables background checks

Each backend section is the Config type of its storage package, so the
fields and their defaults are documented there. Only the section named by
storage.type is validated.

# Environment

	CLOUDTABLE_LOG_LEVEL, CLOUDTABLE_LOG_FORMAT
	CLOUDTABLE_STORAGE_TYPE, CLOUDTABLE_ROOT_PATH, CLOUDTABLE_DO_NOT_PERSIST_ON_LOAD
	CLOUDTABLE_S3_BUCKET, _REGION, _ENDPOINT, _ACCESS_KEY_ID, _SECRET_ACCESS_KEY,
	    _STORAGE_TIER, _FORCE_PATH_STYLE
	CLOUDTABLE_MINIO_ENDPOINT, _BUCKET, _ACCESS_KEY, _SECRET_KEY, _USE_SSL
	CLOUDTABLE_BLOB_CONNECTION_STRING, _ACCOUNT_NAME, _ACCOUNT_KEY, _CONTAINER
	CLOUDTABLE_DROPBOX_ACCESS_TOKEN, _REFRESH_TOKEN, _APP_KEY, _APP_SECRET, _BASE_PATH
	CLOUDTABLE_METRICS_ENABLED, CLOUDTABLE_METRICS_PORT
	CLOUDTABLE_HEALTH_CHECK_INTERVAL

A malformed boolean, integer or duration makes LoadFromEnv fail rather than fall back
to the previous value.

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/cloudtable/config.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
*/
package config
