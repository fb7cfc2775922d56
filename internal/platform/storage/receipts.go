// Package storage archives rendered receipts to Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidNumber = errors.New("storage: reference number is required")

	unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// ReceiptPath is the object name for a receipt: receipts/{yyyy}/{number}.{ext}.
func ReceiptPath(number string, issuedAt time.Time, ext string) (string, error) {
	number = unsafeSegment.ReplaceAllString(strings.TrimSpace(number), "_")
	if number == "" {
		return "", errInvalidNumber
	}
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "html"
	}
	return fmt.Sprintf("receipts/%04d/%s.%s", issuedAt.UTC().Year(), number, ext), nil
}

// ObjectWriter opens a writer for one object. The GCS client satisfies it through gcsWriter.
type ObjectWriter interface {
	NewWriter(ctx context.Context, bucket, object, contentType string, metadata map[string]string) io.WriteCloser
}

type gcsWriter struct {
	client *gcs.Client
}

func (g gcsWriter) NewWriter(ctx context.Context, bucket, object, contentType string, metadata map[string]string) io.WriteCloser {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	w.CacheControl = "private, max-age=0"
	return w
}

// ReceiptArchiver uploads rendered receipts for later retrieval.
type ReceiptArchiver struct {
	writer ObjectWriter
	bucket string
	client *gcs.Client
}

// NewReceiptArchiver constructs an archiver over a writer.
func NewReceiptArchiver(writer ObjectWriter, bucket string) (*ReceiptArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if writer == nil {
		return nil, errors.New("storage: object writer is required")
	}
	return &ReceiptArchiver{writer: writer, bucket: bucket}, nil
}

// DialReceiptArchiver creates a Cloud Storage client. It returns nil, nil when no bucket
// is configured, which disables archiving.
func DialReceiptArchiver(ctx context.Context, bucket string) (*ReceiptArchiver, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: new client: %w", err)
	}
	archiver, err := NewReceiptArchiver(gcsWriter{client: client}, bucket)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	archiver.client = client
	return archiver, nil
}

// ArchiveReceipt writes body under the receipt path and returns the gs:// URI.
func (a *ReceiptArchiver) ArchiveReceipt(ctx context.Context, number string, issuedAt time.Time, contentType string, body []byte) (string, error) {
	ext := "html"
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		ext = "json"
	case strings.HasPrefix(contentType, "text/plain"):
		ext = "txt"
	}
	object, err := ReceiptPath(number, issuedAt, ext)
	if err != nil {
		return "", err
	}

	w := a.writer.NewWriter(ctx, a.bucket, object, contentType, map[string]string{"referenceNumber": number})
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

// Close releases the client when the archiver created it.
func (a *ReceiptArchiver) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
