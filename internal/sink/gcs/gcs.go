// Package gcs writes each record as a JSON object in Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

const contentType = "application/json"

// Config captures the bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Sink uploads one object per record at <prefix>/<run_id>/<video_id>.json.
type Sink struct {
	client  *storage.Client
	bucket  string
	prefix  string
	stamper *sink.Stamper
	owned   bool
}

// New creates a client with application default credentials.
func New(ctx context.Context, cfg Config, stamper *sink.Stamper) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s, err := NewWithClient(client, cfg, stamper)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewWithClient builds a sink around an existing client, which the caller
// keeps ownership of.
func NewWithClient(client *storage.Client, cfg Config, stamper *sink.Stamper) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamper is required")
	}
	return &Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		stamper: stamper,
	}, nil
}

// ObjectPath returns the object name used for id in this run.
func (s *Sink) ObjectPath(id crawler.VideoID) string {
	return path.Join(s.prefix, s.stamper.RunID(), string(id)+".json")
}

// PushRecord uploads record. A record pushed twice in one run overwrites the
// earlier object.
func (s *Sink) PushRecord(ctx context.Context, record crawler.EnrichedRecord) error {
	data, err := json.Marshal(s.stamper.Stamp(record))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(s.ObjectPath(record.VideoID)).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close closes the client if this sink created it.
func (s *Sink) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
