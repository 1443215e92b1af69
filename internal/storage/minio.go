package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"offer-workflow-orchestrator/internal/domain"
)

const (
	TemplatePrefix = "templates/"
	offerPrefix    = "offers/"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Client exposes the underlying client for bucket notifications.
func (m *MinioStore) Client() *minio.Client {
	return m.client
}

func (m *MinioStore) Bucket() string {
	return m.bucket
}

func (m *MinioStore) PutDocument(ctx context.Context, objectKey string, content []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return objectKey, nil
}

// GetDocument returns the object's bytes, or domain.ErrNotFound when the key
// does not exist.
func (m *MinioStore) GetDocument(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(objectKey, err)
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, mapMinioErr(objectKey, err)
	}
	return data.Bytes(), nil
}

func mapMinioErr(objectKey string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: object %s", domain.ErrNotFound, objectKey)
	}
	return fmt.Errorf("read object %s: %w", objectKey, err)
}

// TemplateObjectKey is the bucket key under which a named template is stored.
func TemplateObjectKey(name string) string {
	return TemplatePrefix + strings.TrimPrefix(name, "/")
}

// OfferDocumentKey is the cache key for a generated document file reference.
// The whole reference is escaped into one key segment, so distinct refs never
// share a key.
func OfferDocumentKey(workflowID, fileRef string) string {
	segment := url.PathEscape(fileRef)
	if segment == "." || segment == ".." {
		segment = strings.ReplaceAll(segment, ".", "%2E")
	}
	return offerPrefix + workflowID + "/" + segment
}
