package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SHEETS_FILE", "configs/sheets.yaml")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "configs/sheets.yaml", cfg.Ingest.SheetsFile)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 3600, cfg.Ingest.LockTTL)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSizeBytes())
	assert.Equal(t, "host=localhost port=5432 user= password= dbname=rowloader sslmode=disable", cfg.Database.DSN())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SHEETS_FILE", "sheets.yaml")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "uploads")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("WORKER_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "uploads", cfg.Storage.S3Bucket)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
}

func TestLoad_S3NeedsBucket(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "")

	_, err := Load()
	assert.EqualError(t, err, "S3_BUCKET is required when STORAGE_DRIVER=s3")
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	assert.EqualError(t, cfg.RequireDatabase(), "DB_USER is required")

	cfg.Database.User = "loader"
	assert.EqualError(t, cfg.RequireDatabase(), "DB_PASSWORD is required")

	cfg.Database.Password = "secret"
	assert.NoError(t, cfg.RequireDatabase())
}
