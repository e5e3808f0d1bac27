package enrich

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/metrics"
)

const tracerName = "github.com/JakeFAU/video-trend-crawler/internal/enrich"

// Outcome is the terminal state of one enrichment task.
type Outcome int

// Task outcomes.
const (
	OutcomeSaved Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// String returns the metrics label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return metrics.OutcomeSaved
	case OutcomeSkipped:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}

// TaskConfig controls the per-item throttle applied before any request.
type TaskConfig struct {
	BaseDelay time.Duration
	JitterMax time.Duration
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// TaskOption customises a Task.
type TaskOption func(*Task)

// WithSleep replaces the delay implementation (tests use a no-op).
func WithSleep(fn SleepFunc) TaskOption {
	return func(t *Task) { t.sleep = fn }
}

// WithJitter replaces the jitter source; fn receives JitterMax.
func WithJitter(fn func(max time.Duration) time.Duration) TaskOption {
	return func(t *Task) { t.jitter = fn }
}

// Task enriches a single video id.
type Task struct {
	cfg    TaskConfig
	views  crawler.ViewFetcher
	stats  crawler.StatFetcher
	sink   crawler.RecordSink
	logger *zap.Logger
	sleep  SleepFunc
	jitter func(time.Duration) time.Duration
}

// NewTask constructs a Task.
func NewTask(
	cfg TaskConfig,
	views crawler.ViewFetcher,
	stats crawler.StatFetcher,
	sink crawler.RecordSink,
	logger *zap.Logger,
	opts ...TaskOption,
) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Task{
		cfg:    cfg,
		views:  views,
		stats:  stats,
		sink:   sink,
		logger: logger,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run processes id and reports how it ended. It never panics and never
// returns an error: failures are logged with the video id and dropped.
func (t *Task) Run(ctx context.Context, id crawler.VideoID) (outcome Outcome) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "enrich.video")
	span.SetAttributes(attribute.String("video_id", string(id)))
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("failed processing video",
				zap.String("video_id", string(id)),
				zap.Any("panic", r),
			)
			outcome = OutcomeFailed
		}
		metrics.ObserveVideo(outcome.String())
		span.SetAttributes(attribute.String("outcome", outcome.String()))
		if outcome == OutcomeFailed {
			span.SetStatus(codes.Error, "enrichment failed")
		}
		span.End()
	}()

	err := t.process(ctx, id)
	switch {
	case err == nil:
		t.logger.Info("saved video", zap.String("video_id", string(id)))
		return OutcomeSaved
	case errors.Is(err, ErrSkip):
		t.logger.Warn("skipping video: invalid API response", zap.String("video_id", string(id)))
		return OutcomeSkipped
	default:
		t.logger.Warn("failed processing video", zap.String("video_id", string(id)), zap.Error(err))
		return OutcomeFailed
	}
}

func (t *Task) process(ctx context.Context, id crawler.VideoID) error {
	if err := t.sleep(ctx, t.delay()); err != nil {
		return fmt.Errorf("request delay: %w", err)
	}

	view, stat := t.fetchBoth(ctx, id)

	normalized, err := Normalize(view, stat)
	if err != nil {
		return err
	}

	record := BuildRecord(id, normalized)
	if err := t.sink.PushRecord(ctx, record); err != nil {
		return fmt.Errorf("push record: %w", err)
	}
	return nil
}

// fetchBoth issues the two requests concurrently. A failed or panicking fetch
// degrades its payload to nil.
func (t *Task) fetchBoth(ctx context.Context, id crawler.VideoID) (*crawler.ViewPayload, *crawler.StatPayload) {
	var (
		view *crawler.ViewPayload
		stat *crawler.StatPayload
		wg   sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer t.recoverFetch(id, "view")
		payload, err := t.views.FetchView(ctx, id)
		if err != nil {
			t.logger.Debug("view fetch degraded", zap.String("video_id", string(id)), zap.Error(err))
			return
		}
		view = payload
	}()
	go func() {
		defer wg.Done()
		defer t.recoverFetch(id, "stat")
		payload, err := t.stats.FetchStat(ctx, id)
		if err != nil {
			t.logger.Debug("stat fetch degraded", zap.String("video_id", string(id)), zap.Error(err))
			return
		}
		stat = payload
	}()
	wg.Wait()
	return view, stat
}

func (t *Task) recoverFetch(id crawler.VideoID, resource string) {
	if r := recover(); r != nil {
		t.logger.Warn("fetch panicked",
			zap.String("video_id", string(id)),
			zap.String("resource", resource),
			zap.Any("panic", r),
		)
	}
}

func (t *Task) delay() time.Duration {
	d := t.cfg.BaseDelay
	if t.cfg.JitterMax > 0 {
		d += t.jitter(t.cfg.JitterMax)
	}
	return d
}

func randomJitter(limit time.Duration) time.Duration {
	return time.Duration(rand.Int64N(int64(limit)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
