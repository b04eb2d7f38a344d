package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/alejandroruanova/rowloader/internal/pkg/config"
)

const uploadsDir = "uploads"

// Storage is implemented by every file backend
type Storage interface {
	SaveUpload(ctx context.Context, fileID string, filename string, reader io.Reader) (*FileMetadata, error)
	ReadFile(ctx context.Context, ref string) ([]byte, error)
	DeleteUpload(ctx context.Context, fileID string) error
}

// FileMetadata contains information about stored files
type FileMetadata struct {
	ID string
	// Ref identifies the file for ReadFile
	Ref          string
	OriginalName string
	StoredPath   string
	Size         int64
	Hash         string
	ContentType  string
	CreatedAt    time.Time
}

// New builds the backend selected by cfg.Driver
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(&LocalStorageConfig{BasePath: cfg.BasePath}, logger)
	case "s3":
		return NewS3Storage(&S3StorageConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func uploadRef(fileID, filename string) string {
	return path.Join(uploadsDir, fileID, filepath.Base(filename))
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".tsv", ".txt":
		return "text/tab-separated-values"
	case ".json":
		return "application/json"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
