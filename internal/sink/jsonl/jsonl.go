// Package jsonl implements an append-only JSON Lines dataset file.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

// Config captures the parameters for the dataset file.
type Config struct {
	Path string
}

// Sink appends one JSON object per line.
type Sink struct {
	stamper *sink.Stamper
	mu      sync.Mutex
	file    *os.File
	closed  bool
}

// New opens (or creates) the dataset file in append mode, creating parent
// directories as needed.
func New(cfg Config, stamper *sink.Stamper) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamper is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dataset directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return &Sink{stamper: stamper, file: f}, nil
}

// PushRecord writes record as a single line. Each line is written with one
// call so concurrent pushes never interleave.
func (s *Sink) PushRecord(_ context.Context, record crawler.EnrichedRecord) error {
	line, err := json.Marshal(s.stamper.Stamp(record))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("dataset is closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Calling Close twice is safe.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("sync dataset: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return nil
}
