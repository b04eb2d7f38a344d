package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// S3StorageConfig configures the S3 backend
type S3StorageConfig struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key
	Prefix string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack)
	Endpoint string
}

// S3Storage keeps uploaded sheets in an S3 bucket
type S3Storage struct {
	client s3iface.S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Storage creates a session for the configured region and endpoint
func NewS3Storage(cfg *S3StorageConfig, logger *slog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return NewS3StorageWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StorageWithClient wraps an existing client
func NewS3StorageWithClient(client s3iface.S3API, bucket, prefix string, logger *slog.Logger) *S3Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// SaveUpload puts the upload under <prefix>/uploads/<fileID>/<name>
func (s *S3Storage) SaveUpload(ctx context.Context, fileID string, filename string, reader io.Reader) (*FileMetadata, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	ref := uploadRef(fileID, filename)
	key := s.key(ref)
	contentType := getContentType(filename)

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s: %w", key, err)
	}

	sum := sha256.Sum256(data)
	metadata := &FileMetadata{
		ID:           fileID,
		Ref:          ref,
		OriginalName: filename,
		StoredPath:   fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Size:         int64(len(data)),
		Hash:         hex.EncodeToString(sum[:]),
		ContentType:  contentType,
		CreatedAt:    time.Now(),
	}

	s.logger.Info("file uploaded successfully",
		slog.String("file_id", fileID),
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int64("size", metadata.Size))

	return metadata, nil
}

// ReadFile downloads an object
func (s *S3Storage) ReadFile(ctx context.Context, ref string) ([]byte, error) {
	key := s.key(ref)

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, apperrors.NotFound(fmt.Sprintf("file %s not found", ref))
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteUpload removes every object stored for an upload
func (s *S3Storage) DeleteUpload(ctx context.Context, fileID string) error {
	prefix := s.key(path.Join(uploadsDir, fileID)) + "/"

	var keys []*s3.ObjectIdentifier
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}

	_, err = s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{Objects: keys, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
	}

	s.logger.Info("upload deleted",
		slog.String("file_id", fileID),
		slog.Int("objects", len(keys)))
	return nil
}

func (s *S3Storage) key(ref string) string {
	ref = strings.TrimPrefix(ref, "/")
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}
