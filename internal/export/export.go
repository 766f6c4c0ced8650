// Package export writes the untagged-resource report to its backends.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/leima/pkg/record"
)

// Exporter writes an ordered record report to a backend.
type Exporter interface {
	// Export sends the full, already-sorted report to the backend.
	Export(ctx context.Context, records []record.ScanRecord) error

	// Close cleans up resources.
	Close() error
}

// Body renders records as the report CSV: a fixed header followed by one
// line per record, LF-terminated.
func Body(records []record.ScanRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"region", "service", "id"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.Region, r.Service, r.ID}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// PutObjectAPI defines the S3 operation used for report upload.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads the report as a single timestamped CSV object.
type S3Exporter struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Exporter(client PutObjectAPI, bucket, prefix string) *S3Exporter {
	return &S3Exporter{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Export uploads the report. The object key embeds the run timestamp so
// consecutive runs never overwrite each other.
func (e *S3Exporter) Export(ctx context.Context, records []record.ScanRecord) error {
	body, err := Body(records)
	if err != nil {
		return err
	}

	key := e.objectKey()
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", e.bucket, key, err)
	}

	log.Info().
		Str("bucket", e.bucket).
		Str("key", key).
		Int("records", len(records)).
		Msg("report uploaded")
	return nil
}

func (e *S3Exporter) Close() error { return nil }

// objectKey builds <prefix>/untagged-<timestamp>.csv. Colons are kept
// out of the timestamp so keys stay shell-friendly.
func (e *S3Exporter) objectKey() string {
	name := fmt.Sprintf("untagged-%s.csv", e.now().UTC().Format("2006-01-02T15-04-05Z"))
	if e.prefix == "" {
		return name
	}
	return strings.TrimSuffix(e.prefix, "/") + "/" + name
}

// FileExporter writes the report to a local path, creating parent
// directories as needed.
type FileExporter struct {
	path string
}

func NewFileExporter(path string) *FileExporter {
	return &FileExporter{path: path}
}

func (e *FileExporter) Export(_ context.Context, records []record.ScanRecord) error {
	body, err := Body(records)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(e.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(e.path, body, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	log.Info().Str("path", e.path).Int("records", len(records)).Msg("report written")
	return nil
}

func (e *FileExporter) Close() error { return nil }

// MultiExporter fans out to multiple exporters.
type MultiExporter struct {
	exporters []Exporter
}

// NewMultiExporter creates an exporter that sends to multiple backends.
func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

// Export attempts every backend even when an earlier one fails, so one
// broken destination cannot starve the others.
func (m *MultiExporter) Export(ctx context.Context, records []record.ScanRecord) error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Export(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters.
func (m *MultiExporter) Close() error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
