package enrich

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/gate"
)

// ErrNoVideoIDs is returned when a batch is empty; nothing is scheduled.
var ErrNoVideoIDs = errors.New("no video ids to enrich")

// Runner processes one id. *Task satisfies it; Run must not panic.
type Runner interface {
	Run(ctx context.Context, id crawler.VideoID) Outcome
}

// Summary tallies how the tasks of one batch settled. Scheduled counts ids
// admitted through the gate and always equals Saved+Skipped+Failed. Dropped
// counts ids never admitted because ctx ended first.
type Summary struct {
	Scheduled int
	Saved     int
	Skipped   int
	Failed    int
	Dropped   int
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.Scheduled += other.Scheduled
	s.Saved += other.Saved
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Dropped += other.Dropped
}

// Coordinator fans a batch of ids out through a gate.
type Coordinator struct {
	gate   *gate.Gate
	task   Runner
	logger *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(g *gate.Gate, task Runner, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{gate: g, task: task, logger: logger}
}

// Run admits every id to the gate in order and returns once all admitted tasks
// have settled. The only error is ErrNoVideoIDs, raised before scheduling.
func (c *Coordinator) Run(ctx context.Context, ids []crawler.VideoID) (Summary, error) {
	if len(ids) == 0 {
		return Summary{}, ErrNoVideoIDs
	}

	outcomes := make([]Outcome, len(ids))
	admitted := 0
	var wg sync.WaitGroup
	for i, id := range ids {
		// Acquiring here, not in the goroutine, keeps admission in submission order.
		if err := c.gate.Acquire(ctx); err != nil {
			c.logger.Warn("batch interrupted before scheduling video",
				zap.String("video_id", string(id)),
				zap.Int("dropped", len(ids)-i),
				zap.Error(err),
			)
			break
		}
		admitted++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.gate.Release()
			outcomes[i] = c.task.Run(ctx, id)
		}()
	}
	wg.Wait()

	summary := Summary{Scheduled: admitted, Dropped: len(ids) - admitted}
	for _, o := range outcomes[:admitted] {
		switch o {
		case OutcomeSaved:
			summary.Saved++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary, nil
}
