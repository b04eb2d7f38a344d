package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// mockS3 implements the subset of s3iface.S3API the backend calls
type mockS3 struct {
	s3iface.S3API
	objects map[string][]byte
	deleted []string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	page := &s3.ListObjectsV2Output{}
	prefix := aws.StringValue(in.Prefix)
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(key)})
		}
	}
	fn(page, true)
	return nil
}

func (m *mockS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, opts ...request.Option) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		key := aws.StringValue(obj.Key)
		delete(m.objects, key)
		m.deleted = append(m.deleted, key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3Storage_SaveAndRead(t *testing.T) {
	client := newMockS3()
	storage := NewS3StorageWithClient(client, "sheets", "/ingest/", testLogger())
	ctx := context.Background()
	content := []byte("sku\tname\nA1\tWidget\n")

	metadata, err := storage.SaveUpload(ctx, "u1", "products.tsv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "uploads/u1/products.tsv", metadata.Ref)
	assert.Equal(t, "s3://sheets/ingest/uploads/u1/products.tsv", metadata.StoredPath)
	assert.Equal(t, int64(len(content)), metadata.Size)
	assert.Contains(t, client.objects, "ingest/uploads/u1/products.tsv")

	data, err := storage.ReadFile(ctx, metadata.Ref)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestS3Storage_ReadMissing(t *testing.T) {
	storage := NewS3StorageWithClient(newMockS3(), "sheets", "", testLogger())

	_, err := storage.ReadFile(context.Background(), "uploads/none/x.csv")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestS3Storage_DeleteUpload(t *testing.T) {
	client := newMockS3()
	storage := NewS3StorageWithClient(client, "sheets", "", testLogger())
	ctx := context.Background()

	_, err := storage.SaveUpload(ctx, "u1", "a.csv", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	_, err = storage.SaveUpload(ctx, "u2", "b.csv", bytes.NewReader([]byte("y")))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteUpload(ctx, "u1"))

	assert.Equal(t, []string{"uploads/u1/a.csv"}, client.deleted)
	assert.Contains(t, client.objects, "uploads/u2/b.csv")

	// nothing left to delete
	require.NoError(t, storage.DeleteUpload(ctx, "u1"))
	assert.Len(t, client.deleted, 1)
}
