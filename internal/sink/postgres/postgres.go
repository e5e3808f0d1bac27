// Package postgres stores records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

const defaultTable = "videos"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for video rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes one row per record into Postgres. The table is expected to
// exist:
//
//	CREATE TABLE videos (
//		run_id          uuid        NOT NULL,
//		crawled_at      timestamptz NOT NULL,
//		video_id        text        NOT NULL,
//		title           text        NOT NULL,
//		author_id       bigint      NOT NULL,
//		views           bigint      NOT NULL,
//		engagement_rate double precision NOT NULL,
//		record          jsonb       NOT NULL
//	);
type Sink struct {
	pool    execCloser
	table   string
	stamper *sink.Stamper
}

// New creates a pool from cfg.DSN.
func New(ctx context.Context, cfg Config, stamper *sink.Stamper) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, table, stamper)
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string, stamper *sink.Stamper) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamper is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Sink{pool: pool, table: table, stamper: stamper}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// PushRecord inserts record.
func (s *Sink) PushRecord(ctx context.Context, record crawler.EnrichedRecord) error {
	entry := s.stamper.Stamp(record)
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	crawled_at,
	video_id,
	title,
	author_id,
	views,
	engagement_rate,
	record
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	args := []any{
		entry.RunID,
		entry.CrawledAt,
		string(record.VideoID),
		record.Title,
		record.Author.UserID,
		record.Engagement.Views,
		record.Engagement.EngagementRate,
		body,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
