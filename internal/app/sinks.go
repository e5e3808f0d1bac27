package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/config"
	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
	gcssink "github.com/JakeFAU/video-trend-crawler/internal/sink/gcs"
	"github.com/JakeFAU/video-trend-crawler/internal/sink/jsonl"
	pgsink "github.com/JakeFAU/video-trend-crawler/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/video-trend-crawler/internal/sink/pubsub"
	sqlitesink "github.com/JakeFAU/video-trend-crawler/internal/sink/sqlite"
)

// setupSinks opens every configured backend. If one fails to open, the
// ones already opened are closed again.
func setupSinks(ctx context.Context, cfg config.Config, stamper *sink.Stamper, logger *zap.Logger) (*sink.Multi, error) {
	var opened []sink.Named
	closeOpened := func() {
		for _, n := range opened {
			_ = n.Sink.Close(ctx)
		}
	}
	for _, backend := range cfg.Sink.Backends {
		s, err := openSink(ctx, backend, cfg, stamper)
		if err != nil {
			closeOpened()
			return nil, fmt.Errorf("%s sink init failed: %w", backend, err)
		}
		logger.Info("sink ready", zap.String("sink", backend))
		opened = append(opened, sink.Named{Name: backend, Sink: s})
	}
	return sink.NewMulti(logger, opened...), nil
}

func openSink(ctx context.Context, backend string, cfg config.Config, stamper *sink.Stamper) (crawler.RecordSink, error) {
	switch backend {
	case config.BackendMemory:
		return sink.NewMemory(stamper), nil
	case config.BackendJSONL:
		return jsonl.New(jsonl.Config{Path: cfg.Sink.JSONL.Path}, stamper)
	case config.BackendSQLite:
		return sqlitesink.Open(ctx, sqlitesink.Config{Path: cfg.Sink.SQLite.Path}, stamper)
	case config.BackendPostgres:
		return pgsink.New(ctx, pgsink.Config{DSN: cfg.Sink.Postgres.DSN, Table: cfg.Sink.Postgres.Table}, stamper)
	case config.BackendGCS:
		return gcssink.New(ctx, gcssink.Config{Bucket: cfg.Sink.GCS.Bucket, Prefix: cfg.Sink.GCS.Prefix}, stamper)
	case config.BackendPubSub:
		return pubsubsink.New(ctx, pubsubsink.Config{ProjectID: cfg.Sink.PubSub.ProjectID, Topic: cfg.Sink.PubSub.Topic}, stamper)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", backend)
	}
}
