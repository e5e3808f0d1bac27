// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TRENDCRAWLER_CRAWL_CONCURRENCY=5.
const EnvPrefix = "TRENDCRAWLER"

// Sink backend names accepted in sink.backends.
const (
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
)

// Numeric bounds enforced by Normalize.
const (
	MinMaxResults     = 1
	MaxMaxResults     = 50
	MinConcurrency    = 1
	MaxConcurrency    = 10
	MinRequestDelayMs = 100
	MaxRequestDelayMs = 3000
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	API      APIConfig      `mapstructure:"api"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// CrawlConfig governs discovery and the enrichment batch.
type CrawlConfig struct {
	Keywords       []string `mapstructure:"keywords" validate:"min=1,dive,required"`
	MaxResults     int      `mapstructure:"max_results"`
	Concurrency    int      `mapstructure:"concurrency"`
	RequestDelayMs int      `mapstructure:"request_delay_ms"`
	JitterMaxMs    int      `mapstructure:"jitter_max_ms" validate:"gte=0"`
	Headless       bool     `mapstructure:"headless"`
	RenderWaitMs   int      `mapstructure:"render_wait_ms" validate:"gte=0"`
	SearchURL      string   `mapstructure:"search_url" validate:"required,url"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	UserAgent      string  `mapstructure:"user_agent" validate:"required"`
	AcceptLanguage string  `mapstructure:"accept_language"`
	MaxRPS         float64 `mapstructure:"max_rps" validate:"gte=0"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
}

// APIConfig points at the metadata endpoints.
type APIConfig struct {
	ViewURL string `mapstructure:"view_url" validate:"required,url"`
	StatURL string `mapstructure:"stat_url" validate:"required,url"`
}

// HeadlessConfig configures the browser renderer.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel" validate:"gte=0"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds" validate:"gt=0"`
}

// SinkConfig selects and configures record sinks.
type SinkConfig struct {
	Backends []string       `mapstructure:"backends" validate:"min=1,dive,oneof=memory jsonl sqlite postgres gcs pubsub"`
	JSONL    JSONLConfig    `mapstructure:"jsonl"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// JSONLConfig controls the local dataset file.
type JSONLConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteConfig controls the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// GCSConfig sets the bucket and object prefix for record blobs.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds the topic records are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the optional metrics listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features. An empty Level keeps the
// mode's default.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// TracingConfig selects the span exporter and the root sampling ratio.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter" validate:"oneof=none stdout"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied Viper instance, so command-line
// flags bound to v take precedence over file and environment values.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	loadEnvFiles(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFiles loads .env next to the config file and in the working
// directory. Missing files are ignored and existing variables win.
func loadEnvFiles(path string) {
	candidates := []string{".env"}
	if path != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(path), ".env")}, candidates...)
	}
	var files []string
	seen := map[string]bool{}
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			files = append(files, abs)
		}
	}
	if len(files) > 0 {
		_ = godotenv.Load(files...)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.keywords", []string{"原神"})
	v.SetDefault("crawl.max_results", 5)
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.request_delay_ms", 400)
	v.SetDefault("crawl.jitter_max_ms", 200)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.render_wait_ms", 1200)
	v.SetDefault("crawl.search_url", "https://search.bilibili.com/all")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("http.accept_language", "zh-CN,zh;q=0.9,en;q=0.8")
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("api.view_url", "https://api.bilibili.com/x/web-interface/view")
	v.SetDefault("api.stat_url", "https://api.bilibili.com/x/web-interface/archive/stat")
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("sink.backends", []string{BackendJSONL})
	v.SetDefault("sink.jsonl.path", "data/videos.jsonl")
	v.SetDefault("sink.sqlite.path", "data/videos.db")
	v.SetDefault("sink.postgres.table", "videos")
	v.SetDefault("sink.gcs.prefix", "videos")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Normalize clamps numeric knobs into their supported ranges, trims keyword
// lists and lower-cases backend names. Out-of-range values are clamped, not
// rejected.
func (c *Config) Normalize() {
	c.Crawl.Keywords = cleanList(c.Crawl.Keywords, false)
	c.Crawl.MaxResults = clamp(c.Crawl.MaxResults, MinMaxResults, MaxMaxResults)
	c.Crawl.Concurrency = clamp(c.Crawl.Concurrency, MinConcurrency, MaxConcurrency)
	c.Crawl.RequestDelayMs = clamp(c.Crawl.RequestDelayMs, MinRequestDelayMs, MaxRequestDelayMs)
	c.Sink.Backends = cleanList(c.Sink.Backends, true)
	c.Sink.GCS.Prefix = strings.Trim(c.Sink.GCS.Prefix, "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	c.Tracing.SampleRatio = min(max(c.Tracing.SampleRatio, 0), 1)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate enforces required values and per-backend settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.HasBackend(BackendPostgres) && c.Sink.Postgres.DSN == "" {
		return fmt.Errorf("sink.postgres.dsn must be set when the postgres sink is enabled")
	}
	if c.HasBackend(BackendGCS) && c.Sink.GCS.Bucket == "" {
		return fmt.Errorf("sink.gcs.bucket must be set when the gcs sink is enabled")
	}
	if c.HasBackend(BackendPubSub) && (c.Sink.PubSub.ProjectID == "" || c.Sink.PubSub.Topic == "") {
		return fmt.Errorf("sink.pubsub.project_id and sink.pubsub.topic must be set when the pubsub sink is enabled")
	}
	if c.HasBackend(BackendJSONL) && c.Sink.JSONL.Path == "" {
		return fmt.Errorf("sink.jsonl.path must be set when the jsonl sink is enabled")
	}
	if c.HasBackend(BackendSQLite) && c.Sink.SQLite.Path == "" {
		return fmt.Errorf("sink.sqlite.path must be set when the sqlite sink is enabled")
	}
	return nil
}

// HasBackend reports whether the named sink backend is enabled.
func (c Config) HasBackend(name string) bool {
	for _, b := range c.Sink.Backends {
		if b == name {
			return true
		}
	}
	return false
}

// RequestDelay is the fixed pre-request delay of each enrichment task.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawl.RequestDelayMs) * time.Millisecond
}

// JitterMax bounds the random delay added to RequestDelay.
func (c Config) JitterMax() time.Duration {
	return time.Duration(c.Crawl.JitterMaxMs) * time.Millisecond
}

// RenderWait is how long the browser waits after the page body is ready.
func (c Config) RenderWait() time.Duration {
	return time.Duration(c.Crawl.RenderWaitMs) * time.Millisecond
}

// HTTPTimeout converts http.timeout_seconds into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts headless.nav_timeout_seconds into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// cleanList trims entries, drops blanks and duplicates, and keeps order.
func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// fieldPath turns "Config.crawl.keywords[0]" into "crawl.keywords[0]".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
