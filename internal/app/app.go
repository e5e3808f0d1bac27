// Package app builds the crawl pipeline from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/bilibili"
	"github.com/JakeFAU/video-trend-crawler/internal/config"
	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/discovery"
	"github.com/JakeFAU/video-trend-crawler/internal/enrich"
	collyfetcher "github.com/JakeFAU/video-trend-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/video-trend-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/video-trend-crawler/internal/gate"
	"github.com/JakeFAU/video-trend-crawler/internal/logging"
	"github.com/JakeFAU/video-trend-crawler/internal/metrics"
	"github.com/JakeFAU/video-trend-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/video-trend-crawler/internal/server"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

const shutdownTimeout = 10 * time.Second

// Discoverer finds video ids for a keyword.
type Discoverer interface {
	Discover(ctx context.Context, keyword string) ([]crawler.VideoID, error)
}

// BatchRunner enriches a batch of ids.
type BatchRunner interface {
	Run(ctx context.Context, ids []crawler.VideoID) (enrich.Summary, error)
}

// Deps are the collaborators an App drives.
type Deps struct {
	Discoverer Discoverer
	Batch      BatchRunner
	Sink       crawler.RecordSink
	Metrics    *server.Server
	RunID      string
	closers    []func()
}

// App runs one crawl: every keyword is discovered and its ids enriched.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	deps   Deps
}

// New assembles an App from prebuilt collaborators.
func New(cfg config.Config, logger *zap.Logger, deps Deps) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.RunID != "" {
		logger = logging.ForRun(logger, deps.RunID)
	}
	return &App{cfg: cfg, logger: logger, deps: deps}
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	stamper, err := sink.NewStamper(sink.UUIDv7{}, sink.SystemClock{})
	if err != nil {
		return nil, err
	}
	logger = logging.ForRun(logger, stamper.RunID())
	logger.Info("building crawl pipeline",
		zap.Strings("keywords", cfg.Crawl.Keywords),
		zap.Int("max_results", cfg.Crawl.MaxResults),
		zap.Int("concurrency", cfg.Crawl.Concurrency),
		zap.Strings("sinks", cfg.Sink.Backends),
	)

	recordSink, err := setupSinks(ctx, cfg, stamper, logger.Named("sink"))
	if err != nil {
		return nil, err
	}

	var closers []func()
	discoverer, closeRenderer, err := setupDiscovery(cfg, logger.Named("discovery"))
	if err != nil {
		_ = recordSink.Close(ctx)
		return nil, err
	}
	if closeRenderer != nil {
		closers = append(closers, closeRenderer)
	}

	batch, err := setupEnrichment(cfg, recordSink, logger.Named("enrich"))
	if err != nil {
		_ = recordSink.Close(ctx)
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	var metricsSrv *server.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = server.New(cfg.Metrics.Addr, logger.Named("metrics"))
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		deps: Deps{
			Discoverer: discoverer,
			Batch:      batch,
			Sink:       recordSink,
			Metrics:    metricsSrv,
			RunID:      stamper.RunID(),
			closers:    closers,
		},
	}, nil
}

func setupDiscovery(cfg config.Config, logger *zap.Logger) (*discovery.Discoverer, func(), error) {
	headers := http.Header{}
	headers.Set("Accept-Language", cfg.HTTP.AcceptLanguage)
	headers.Set("Referer", "https://www.bilibili.com/")

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
		Headers:       headers,
	})

	var (
		rendered      crawler.PageSource
		closeRenderer func()
	)
	if cfg.Crawl.Headless {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			Headers:           headers,
			NavigationTimeout: cfg.NavTimeout(),
			RenderWait:        cfg.RenderWait(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("headless init failed: %w", err)
		}
		rendered = browser
		closeRenderer = browser.Close
		logger.Debug("headless rendering enabled", zap.Duration("render_wait", cfg.RenderWait()))
	}

	d, err := discovery.New(discovery.Options{
		SearchURL:  cfg.Crawl.SearchURL,
		MaxResults: cfg.Crawl.MaxResults,
	}, static, rendered, logger)
	if err != nil {
		if closeRenderer != nil {
			closeRenderer()
		}
		return nil, nil, err
	}
	return d, closeRenderer, nil
}

func setupEnrichment(cfg config.Config, recordSink crawler.RecordSink, logger *zap.Logger) (*enrich.Coordinator, error) {
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.MaxRPS})
	client := bilibili.New(bilibili.Config{
		ViewURL:        cfg.API.ViewURL,
		StatURL:        cfg.API.StatURL,
		Timeout:        cfg.HTTPTimeout(),
		UserAgent:      cfg.HTTP.UserAgent,
		AcceptLanguage: cfg.HTTP.AcceptLanguage,
	}, limiter, logger.Named("api"))

	g, err := gate.New(cfg.Crawl.Concurrency, metrics.SetGateInFlight)
	if err != nil {
		return nil, fmt.Errorf("gate init failed: %w", err)
	}
	task := enrich.NewTask(enrich.TaskConfig{
		BaseDelay: cfg.RequestDelay(),
		JitterMax: cfg.JitterMax(),
	}, client, client, recordSink, logger)
	return enrich.NewCoordinator(g, task, logger), nil
}

// RunID identifies this crawl in every persisted entry.
func (a *App) RunID() string {
	return a.deps.RunID
}

// Run discovers and enriches every configured keyword in order. A keyword
// whose discovery fails is logged and skipped. Run returns the combined
// summary; the error is non-nil only when ctx ends the run early.
func (a *App) Run(ctx context.Context) (enrich.Summary, error) {
	var total enrich.Summary
	if len(a.cfg.Crawl.Keywords) == 0 {
		return total, discovery.ErrNoKeywords
	}
	if a.deps.Metrics != nil {
		if _, err := a.deps.Metrics.Start(); err != nil {
			a.logger.Warn("metrics server unavailable", zap.Error(err))
		}
	}

	started := time.Now()
	for _, keyword := range a.cfg.Crawl.Keywords {
		if err := ctx.Err(); err != nil {
			break
		}
		summary, err := a.runKeyword(ctx, keyword)
		total.Add(summary)
		if err != nil {
			a.logger.Warn("keyword skipped", zap.String("keyword", keyword), zap.Error(err))
		}
	}

	a.logger.Info("crawl finished",
		zap.Int("scheduled", total.Scheduled),
		zap.Int("saved", total.Saved),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed),
		zap.Int("dropped", total.Dropped),
		zap.Duration("elapsed", time.Since(started)),
	)
	if err := ctx.Err(); err != nil {
		return total, fmt.Errorf("crawl interrupted: %w", err)
	}
	return total, nil
}

func (a *App) runKeyword(ctx context.Context, keyword string) (enrich.Summary, error) {
	logger := a.logger.With(zap.String("keyword", keyword))
	ids, err := a.deps.Discoverer.Discover(ctx, keyword)
	if err != nil {
		return enrich.Summary{}, err
	}
	logger.Info("videos discovered", zap.Int("count", len(ids)))

	summary, err := a.deps.Batch.Run(ctx, ids)
	if errors.Is(err, enrich.ErrNoVideoIDs) {
		logger.Warn("no videos found for keyword")
		return summary, nil
	}
	if err != nil {
		return summary, err
	}
	logger.Info("keyword finished",
		zap.Int("saved", summary.Saved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Close releases the browser, sinks and metrics listener.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.deps.Metrics != nil {
		if err := a.deps.Metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range a.deps.closers {
		c()
	}
	if a.deps.Sink != nil {
		if err := a.deps.Sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sinks: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
