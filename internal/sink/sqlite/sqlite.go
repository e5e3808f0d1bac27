// Package sqlite stores records in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT    NOT NULL,
	crawled_at      TEXT    NOT NULL,
	video_id        TEXT    NOT NULL,
	title           TEXT    NOT NULL,
	views           INTEGER NOT NULL,
	engagement_rate REAL    NOT NULL,
	record          TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS videos_video_id ON videos (video_id);`

const insertVideo = `INSERT INTO videos
	(run_id, crawled_at, video_id, title, views, engagement_rate, record)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

// Config captures the database location. ":memory:" keeps everything in process.
type Config struct {
	Path string
}

// Sink inserts one row per record into the videos table.
type Sink struct {
	db      *sql.DB
	stamper *sink.Stamper
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, cfg Config, stamper *sink.Stamper) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamper is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer connection; also keeps a :memory: database alive and shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Sink{db: db, stamper: stamper}, nil
}

// PushRecord inserts record. Rows are never updated.
func (s *Sink) PushRecord(ctx context.Context, record crawler.EnrichedRecord) error {
	entry := s.stamper.Stamp(record)
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertVideo,
		entry.RunID,
		entry.CrawledAt.Format(time.RFC3339Nano),
		string(record.VideoID),
		record.Title,
		record.Engagement.Views,
		record.Engagement.EngagementRate,
		string(body),
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// DB exposes the handle for read-side tooling.
func (s *Sink) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Sink) Close(context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
