package events

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// TemplateEvent reports a template object written under the template prefix.
type TemplateEvent struct {
	Name      string
	ObjectKey string
	Size      int64
	EventName string
}

type TemplateEventSource interface {
	Run(ctx context.Context, handler func(context.Context, TemplateEvent) error) error
}

type MinioTemplateEventSource struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioTemplateEventSource(client *minio.Client, bucket string, prefix string) *MinioTemplateEventSource {
	return &MinioTemplateEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Run blocks until ctx is done or the notification stream fails. Keys that do
// not name a template are skipped; a handler error stops the loop.
func (s *MinioTemplateEventSource) Run(ctx context.Context, handler func(context.Context, TemplateEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, "", []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				objectKey, err := decodeObjectKey(record.S3.Object.Key)
				if err != nil {
					continue
				}
				name, err := parseTemplateKey(objectKey, s.prefix)
				if err != nil {
					continue
				}
				event := TemplateEvent{
					Name:      name,
					ObjectKey: objectKey,
					Size:      record.S3.Object.Size,
					EventName: record.EventName,
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// parseTemplateKey turns "templates/standard/offer.docx" into the template
// name "standard/offer.docx".
func parseTemplateKey(objectKey, prefix string) (string, error) {
	cleaned := strings.TrimLeft(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	if !strings.HasPrefix(cleaned, prefix) {
		return "", fmt.Errorf("object key %q is outside %q", objectKey, prefix)
	}
	name := strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
	if name == "" || strings.HasSuffix(name, "/") {
		return "", fmt.Errorf("object key %q does not name a template", objectKey)
	}
	if path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
		return "", fmt.Errorf("object key %q has an unclean template name", objectKey)
	}
	return name, nil
}
