package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/app"
	"github.com/JakeFAU/video-trend-crawler/internal/config"
	"github.com/JakeFAU/video-trend-crawler/internal/enrich"
	"github.com/JakeFAU/video-trend-crawler/internal/logging"
	"github.com/JakeFAU/video-trend-crawler/internal/telemetry"
)

// flagBindings maps crawl flags to configuration keys.
var flagBindings = map[string]string{
	"keyword":          "crawl.keywords",
	"max-results":      "crawl.max_results",
	"concurrency":      "crawl.concurrency",
	"request-delay-ms": "crawl.request_delay_ms",
	"headless":         "crawl.headless",
	"sink":             "sink.backends",
	"metrics-addr":     "metrics.addr",
}

// runner is swapped in tests to avoid touching the network.
var runner = runCrawl

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Search keywords and enrich the videos found",
		Long: `Fetches the search results page for every keyword, extracts up to
max-results video ids, then fetches metadata and statistics for each id with
bounded concurrency and appends the normalized records to the configured sinks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, *cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			_, err = runner(cmd.Context(), cfg)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("keyword", nil, "search keyword (repeatable)")
	flags.Int("max-results", 0, "videos enriched per keyword (1-50)")
	flags.Int("concurrency", 0, "concurrent enrichment tasks (1-10)")
	flags.Int("request-delay-ms", 0, "base delay before each enrichment task (100-3000)")
	flags.Bool("headless", true, "render the search page in a browser when the static page has no results")
	flags.StringSlice("sink", nil, "record sinks: memory, jsonl, sqlite, postgres, gcs, pubsub")
	flags.String("metrics-addr", "", "serve /healthz and /metrics on this address during the crawl")

	for name, key := range flagBindings {
		// Lookup never fails for the flags registered above.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func runCrawl(ctx context.Context, cfg config.Config) (enrich.Summary, error) {
	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return enrich.Summary{}, fmt.Errorf("logger init failed: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return enrich.Summary{}, err
	}
	defer func() {
		if cerr := a.Close(ctx); cerr != nil {
			logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	exporter, err := telemetry.NewExporter(cfg.Tracing.Exporter, os.Stderr)
	if err != nil {
		logger.Warn("trace exporter disabled", zap.Error(err))
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracerOptions{
		ServiceName: logging.ServiceName,
		RunID:       a.RunID(),
		SampleRatio: cfg.Tracing.SampleRatio,
		Exporter:    exporter,
	})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			if serr := tp.Shutdown(context.WithoutCancel(ctx)); serr != nil {
				logger.Warn("tracer shutdown failed", zap.Error(serr))
			}
		}()
	}

	summary, err := a.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("crawl canceled by signal")
		return summary, nil
	}
	return summary, err
}
