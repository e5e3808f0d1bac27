package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Crawl.Keywords, []string{"原神"}) {
		t.Fatalf("unexpected default keywords: %v", cfg.Crawl.Keywords)
	}
	if cfg.Crawl.MaxResults != 5 || cfg.Crawl.Concurrency != 3 || cfg.Crawl.RequestDelayMs != 400 {
		t.Fatalf("unexpected crawl defaults: %+v", cfg.Crawl)
	}
	if !cfg.Crawl.Headless {
		t.Fatal("expected headless to default to true")
	}
	if cfg.RequestDelay() != 400*time.Millisecond || cfg.JitterMax() != 200*time.Millisecond {
		t.Fatalf("unexpected delay helpers: %v %v", cfg.RequestDelay(), cfg.JitterMax())
	}
	if cfg.HTTPTimeout() != 15*time.Second || cfg.NavTimeout() != 25*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.HTTPTimeout(), cfg.NavTimeout())
	}
	if !reflect.DeepEqual(cfg.Sink.Backends, []string{BackendJSONL}) || cfg.Sink.JSONL.Path == "" {
		t.Fatalf("unexpected sink defaults: %+v", cfg.Sink)
	}
	if cfg.Metrics.Addr != "" {
		t.Fatalf("metrics should be disabled by default, got %q", cfg.Metrics.Addr)
	}
	if cfg.Tracing.Exporter != "none" || cfg.Tracing.SampleRatio != 1 || cfg.Logging.Level != "" {
		t.Fatalf("unexpected tracing/logging defaults: %+v %+v", cfg.Tracing, cfg.Logging)
	}
}

func TestLoadTracingAndLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		exporter string
		ratio    float64
		level    string
	}{
		{
			name:     "explicit",
			body:     "tracing:\n  exporter: STDOUT\n  sample_ratio: 0.25\nlogging:\n  level: Warn\n",
			exporter: "stdout",
			ratio:    0.25,
			level:    "warn",
		},
		{
			name:     "ratio above one is clamped",
			body:     "tracing:\n  exporter: \"\"\n  sample_ratio: 7\n",
			exporter: "none",
			ratio:    1,
		},
		{
			name:     "negative ratio is clamped",
			body:     "tracing:\n  sample_ratio: -0.5\n",
			exporter: "none",
			ratio:    0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Tracing.Exporter != tc.exporter || cfg.Tracing.SampleRatio != tc.ratio || cfg.Logging.Level != tc.level {
				t.Fatalf("unexpected tracing/logging: %+v %+v", cfg.Tracing, cfg.Logging)
			}
		})
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawl:
  keywords: ["golang", " rust ", "golang", ""]
  max_results: 20
  concurrency: 6
  request_delay_ms: 800
  jitter_max_ms: 0
  headless: false
  render_wait_ms: 500
http:
  timeout_seconds: 30
  user_agent: test-agent
  max_rps: 2.5
sink:
  backends: [Memory, sqlite]
  sqlite:
    path: /tmp/videos.db
metrics:
  addr: ":9102"
logging:
  development: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Crawl.Keywords, []string{"golang", "rust"}) {
		t.Fatalf("keywords not cleaned: %v", cfg.Crawl.Keywords)
	}
	if cfg.Crawl.MaxResults != 20 || cfg.Crawl.Concurrency != 6 || cfg.Crawl.RequestDelayMs != 800 {
		t.Fatalf("crawl overrides not applied: %+v", cfg.Crawl)
	}
	if cfg.Crawl.Headless || cfg.RenderWait() != 500*time.Millisecond {
		t.Fatalf("headless overrides not applied: %+v", cfg.Crawl)
	}
	if cfg.HTTP.UserAgent != "test-agent" || cfg.HTTP.MaxRPS != 2.5 {
		t.Fatalf("http overrides not applied: %+v", cfg.HTTP)
	}
	if !cfg.HasBackend(BackendMemory) || !cfg.HasBackend(BackendSQLite) || cfg.HasBackend(BackendJSONL) {
		t.Fatalf("unexpected backends: %v", cfg.Sink.Backends)
	}
	if cfg.Metrics.Addr != ":9102" || cfg.Logging.Development {
		t.Fatalf("unexpected metrics/logging: %+v %+v", cfg.Metrics, cfg.Logging)
	}
}

func TestLoadAcceptsSingleKeywordString(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "crawl:\n  keywords: 原神\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Crawl.Keywords, []string{"原神"}) {
		t.Fatalf("expected single keyword list, got %v", cfg.Crawl.Keywords)
	}
}

func TestLoadClampsOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                          string
		body                          string
		maxResults, conc, delayMillis int
	}{
		{
			name:        "too high",
			body:        "crawl:\n  max_results: 500\n  concurrency: 64\n  request_delay_ms: 10000\n",
			maxResults:  MaxMaxResults,
			conc:        MaxConcurrency,
			delayMillis: MaxRequestDelayMs,
		},
		{
			name:        "too low",
			body:        "crawl:\n  max_results: 0\n  concurrency: -3\n  request_delay_ms: 5\n",
			maxResults:  MinMaxResults,
			conc:        MinConcurrency,
			delayMillis: MinRequestDelayMs,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Crawl.MaxResults != tc.maxResults || cfg.Crawl.Concurrency != tc.conc || cfg.Crawl.RequestDelayMs != tc.delayMillis {
				t.Fatalf("unexpected clamping: %+v", cfg.Crawl)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRENDCRAWLER_CRAWL_CONCURRENCY", "7")
	t.Setenv("TRENDCRAWLER_CRAWL_KEYWORDS", "minecraft")
	t.Setenv("TRENDCRAWLER_METRICS_ADDR", "127.0.0.1:9200")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.Concurrency != 7 {
		t.Fatalf("expected env concurrency, got %d", cfg.Crawl.Concurrency)
	}
	if !reflect.DeepEqual(cfg.Crawl.Keywords, []string{"minecraft"}) {
		t.Fatalf("expected env keyword, got %v", cfg.Crawl.Keywords)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9200" {
		t.Fatalf("expected env metrics addr, got %q", cfg.Metrics.Addr)
	}
}

func TestLoadDotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("crawl:\n  max_results: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TRENDCRAWLER_HTTP_USER_AGENT=dotenv-agent\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TRENDCRAWLER_HTTP_USER_AGENT") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.UserAgent != "dotenv-agent" {
		t.Fatalf("expected .env user agent, got %q", cfg.HTTP.UserAgent)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(*Config) {}},
		{name: "no keywords", mutate: func(c *Config) { c.Crawl.Keywords = nil }, wantErr: "crawl.keywords"},
		{name: "unknown backend", mutate: func(c *Config) { c.Sink.Backends = []string{"kafka"} }, wantErr: "oneof"},
		{name: "bad search url", mutate: func(c *Config) { c.Crawl.SearchURL = "not a url" }, wantErr: "crawl.search_url"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, wantErr: "http.timeout_seconds"},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Sink.Backends = []string{BackendPostgres} },
			wantErr: "sink.postgres.dsn",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Sink.Backends = []string{BackendGCS} },
			wantErr: "sink.gcs.bucket",
		},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.Sink.Backends = []string{BackendPubSub}
				c.Sink.PubSub.ProjectID = "proj"
			},
			wantErr: "sink.pubsub",
		},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: "tracing.exporter"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Crawl.Keywords = append([]string(nil), base.Crawl.Keywords...)
			cfg.Sink.Backends = append([]string(nil), base.Sink.Backends...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
