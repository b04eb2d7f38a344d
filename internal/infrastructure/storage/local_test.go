package storage

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))
}

func setupTestStorage(t *testing.T) (*LocalStorage, string) {
	tempDir := t.TempDir()

	storage, err := NewLocalStorage(&LocalStorageConfig{
		BasePath: tempDir,
	}, testLogger())
	require.NoError(t, err)

	return storage, tempDir
}

func TestLocalStorage_SaveUpload(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	ctx := context.Background()

	content := []byte("sku,name\nA1,Widget\n")

	metadata, err := storage.SaveUpload(ctx, "upload-123", "products.csv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "upload-123", metadata.ID)
	assert.Equal(t, "uploads/upload-123/products.csv", metadata.Ref)
	assert.Equal(t, "products.csv", metadata.OriginalName)
	assert.Equal(t, int64(len(content)), metadata.Size)
	assert.Len(t, metadata.Hash, 64)
	assert.Equal(t, "text/csv", metadata.ContentType)
	assert.Equal(t, filepath.Join(tempDir, "uploads", "upload-123", "products.csv"), metadata.StoredPath)

	_, err = os.Stat(metadata.StoredPath)
	assert.NoError(t, err)
}

func TestLocalStorage_SaveUploadStripsDirectories(t *testing.T) {
	storage, _ := setupTestStorage(t)

	metadata, err := storage.SaveUpload(context.Background(), "u1", "../../etc/products.csv", bytes.NewReader([]byte("x")))

	require.NoError(t, err)
	assert.Equal(t, "uploads/u1/products.csv", metadata.Ref)
}

func TestLocalStorage_ReadFile(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx := context.Background()
	content := []byte(`[{"sku": "A1"}]`)

	metadata, err := storage.SaveUpload(ctx, "upload-456", "data.json", bytes.NewReader(content))
	require.NoError(t, err)

	data, err := storage.ReadFile(ctx, metadata.Ref)

	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalStorage_ReadFileNotFound(t *testing.T) {
	storage, _ := setupTestStorage(t)

	_, err := storage.ReadFile(context.Background(), "uploads/missing/file.csv")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestLocalStorage_ReadFileRejectsEscapes(t *testing.T) {
	storage, _ := setupTestStorage(t)

	for _, ref := range []string{"../secret", "uploads/../../secret", "..", ""} {
		_, err := storage.ReadFile(context.Background(), ref)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest), ref)
	}
}

func TestLocalStorage_ReadFileCancelled(t *testing.T) {
	storage, _ := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.ReadFile(ctx, "uploads/a/b.csv")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_DeleteUpload(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.SaveUpload(ctx, "upload-789", "a.csv", bytes.NewReader([]byte("sku\nA1\n")))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteUpload(ctx, "upload-789"))

	_, err = os.Stat(filepath.Join(tempDir, "uploads", "upload-789"))
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, storage.DeleteUpload(ctx, "upload-789"))
}

func TestLocalStorage_CleanupOldFiles(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.SaveUpload(ctx, "old", "a.csv", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	_, err = storage.SaveUpload(ctx, "new", "b.csv", bytes.NewReader([]byte("y")))
	require.NoError(t, err)

	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(tempDir, "uploads", "old"), oldTime, oldTime))

	removed, err := storage.CleanupOldFiles(ctx, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(filepath.Join(tempDir, "uploads", "old"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(tempDir, "uploads", "new"))
	assert.NoError(t, err)
}

func TestGetContentType(t *testing.T) {
	tests := map[string]string{
		"a.xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"a.csv":   "text/csv",
		"a.tsv":   "text/tab-separated-values",
		"a.json":  "application/json",
		"a.jsonl": "application/x-ndjson",
		"a.xml":   "application/xml",
		"a.bin":   "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, getContentType(name), name)
	}
}

func TestNew_SelectsDriver(t *testing.T) {
	s, err := New(config.StorageConfig{Driver: "local", BasePath: t.TempDir()}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(config.StorageConfig{Driver: "ftp"}, testLogger())
	assert.Error(t, err)

	_, err = New(config.StorageConfig{Driver: "s3"}, testLogger())
	assert.Error(t, err)
}
