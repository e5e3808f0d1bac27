// Package sink persists enriched records. Every backend stores the record
// together with the run id and the time it was written.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/metrics"
)

// Entry is the stored form of a record. The record fields are inlined when
// encoded to JSON so readers can decode an Entry as a plain EnrichedRecord.
type Entry struct {
	crawler.EnrichedRecord
	RunID     string    `json:"run_id"`
	CrawledAt time.Time `json:"crawled_at"`
}

// Stamper attaches run metadata to records.
type Stamper struct {
	runID string
	clock crawler.Clock
}

// NewStamper draws a run id from ids. A nil clock means SystemClock.
func NewStamper(ids crawler.IDGenerator, clock crawler.Clock) (*Stamper, error) {
	if ids == nil {
		ids = UUIDv7{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	return &Stamper{runID: runID, clock: clock}, nil
}

// RunID returns the id shared by every entry of this run.
func (s *Stamper) RunID() string {
	return s.runID
}

// Stamp wraps record with the run id and the current time.
func (s *Stamper) Stamp(record crawler.EnrichedRecord) Entry {
	return Entry{EnrichedRecord: record, RunID: s.runID, CrawledAt: s.clock.Now()}
}

// SystemClock implements crawler.Clock using time.Now in UTC.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDv7 implements crawler.IDGenerator with time-ordered UUIDs.
type UUIDv7 struct{}

// NewID returns a UUID7 string.
func (UUIDv7) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Named pairs a sink with the label used in logs and metrics.
type Named struct {
	Name string
	Sink crawler.RecordSink
}

// Multi fans each record out to several sinks. A failing sink does not stop
// the others. A record counts as persisted once any sink accepted it; per-sink
// failures are logged and counted in metrics.
type Multi struct {
	sinks  []Named
	logger *zap.Logger
}

// ErrAllSinksFailed reports that no sink accepted a record.
var ErrAllSinksFailed = errors.New("all sinks failed")

// NewMulti builds a fan-out sink.
func NewMulti(logger *zap.Logger, sinks ...Named) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{sinks: sinks, logger: logger}
}

// PushRecord writes record to every sink. It errors only when every sink
// rejected the record.
func (m *Multi) PushRecord(ctx context.Context, record crawler.EnrichedRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.PushRecord(ctx, record); err != nil {
			metrics.ObserveSinkFailure(s.Name)
			m.logger.Warn("sink push failed",
				zap.String("sink", s.Name),
				zap.String("video_id", string(record.VideoID)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	if len(errs) > 0 && len(errs) == len(m.sinks) {
		return fmt.Errorf("%w: %w", ErrAllSinksFailed, errors.Join(errs...))
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
