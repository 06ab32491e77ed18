package printing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// TicketArchive persists rendered tickets for reprint and audit.
type TicketArchive interface {
	Store(ctx context.Context, objectName string, data []byte) (string, error)
}

// ReceiptArchive writes tickets to a Cloud Storage bucket.
type ReceiptArchive struct {
	client *storage.Client
	bucket string
}

var _ TicketArchive = (*ReceiptArchive)(nil)

// NewReceiptArchive binds the archive to a bucket.
func NewReceiptArchive(client *storage.Client, bucket string) (*ReceiptArchive, error) {
	if client == nil {
		return nil, errors.New("receipt archive: storage client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("receipt archive: bucket name is required")
	}
	return &ReceiptArchive{client: client, bucket: bucket}, nil
}

// Store uploads the ticket and returns its gs:// URI.
func (a *ReceiptArchive) Store(ctx context.Context, objectName string, data []byte) (string, error) {
	objectName = strings.TrimPrefix(strings.TrimSpace(objectName), "/")
	if objectName == "" {
		return "", errors.New("receipt archive: object name is required")
	}

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("receipt archive: write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("receipt archive: close %s: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}
