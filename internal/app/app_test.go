package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/video-trend-crawler/internal/config"
	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/discovery"
	"github.com/JakeFAU/video-trend-crawler/internal/enrich"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

type fakeDiscoverer struct {
	ids map[string][]crawler.VideoID
	err map[string]error
}

func (f fakeDiscoverer) Discover(_ context.Context, keyword string) ([]crawler.VideoID, error) {
	if err := f.err[keyword]; err != nil {
		return nil, err
	}
	return f.ids[keyword], nil
}

type fakeBatch struct {
	mu      sync.Mutex
	batches [][]crawler.VideoID
}

func (f *fakeBatch) Run(_ context.Context, ids []crawler.VideoID) (enrich.Summary, error) {
	if len(ids) == 0 {
		return enrich.Summary{}, enrich.ErrNoVideoIDs
	}
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.mu.Unlock()
	return enrich.Summary{Scheduled: len(ids), Saved: len(ids) - 1, Skipped: 1}, nil
}

// MockDiscoverer mocks the Discoverer interface.
type MockDiscoverer struct {
	mock.Mock
}

// Discover satisfies the Discoverer interface for the mock.
func (m *MockDiscoverer) Discover(ctx context.Context, keyword string) ([]crawler.VideoID, error) {
	args := m.Called(ctx, keyword)
	ids, _ := args.Get(0).([]crawler.VideoID)
	return ids, args.Error(1)
}

// MockBatchRunner mocks the BatchRunner interface.
type MockBatchRunner struct {
	mock.Mock
}

// Run satisfies the BatchRunner interface for the mock.
func (m *MockBatchRunner) Run(ctx context.Context, ids []crawler.VideoID) (enrich.Summary, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(enrich.Summary), args.Error(1)
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawl.Headless = false
	cfg.Sink.Backends = []string{config.BackendMemory}
	return cfg
}

func TestRunLoopsKeywordsAndSkipsFailures(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Crawl.Keywords = []string{"a", "broken", "empty", "b"}
	core, logs := observer.New(zapcore.InfoLevel)
	batch := &fakeBatch{}
	a := New(cfg, zap.New(core), Deps{
		Discoverer: fakeDiscoverer{
			ids: map[string][]crawler.VideoID{
				"a": {"BV1a", "BV1b"},
				"b": {"BV1c", "BV1d", "BV1e"},
			},
			err: map[string]error{"broken": errors.New("search page 412")},
		},
		Batch: batch,
		RunID: "run-1",
	})

	summary, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrich.Summary{Scheduled: 5, Saved: 3, Skipped: 2}, summary)
	assert.Equal(t, [][]crawler.VideoID{{"BV1a", "BV1b"}, {"BV1c", "BV1d", "BV1e"}}, batch.batches)

	assert.Equal(t, 1, logs.FilterMessage("keyword skipped").Len())
	assert.Equal(t, 1, logs.FilterMessage("no videos found for keyword").Len())
	finished := logs.FilterMessage("crawl finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "run-1", finished[0].ContextMap()["run_id"])
	assert.EqualValues(t, 3, finished[0].ContextMap()["saved"])
	require.NoError(t, a.Close(context.Background()))
}

func TestRunHandsEachKeywordBatchToCoordinator(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Crawl.Keywords = []string{"原神", "崩坏"}

	discoverer := new(MockDiscoverer)
	batch := new(MockBatchRunner)
	discoverer.On("Discover", mock.Anything, "原神").Return([]crawler.VideoID{"BV1a", "BV1b"}, nil).Once()
	discoverer.On("Discover", mock.Anything, "崩坏").Return([]crawler.VideoID{"BV1c"}, nil).Once()
	batch.On("Run", mock.Anything, []crawler.VideoID{"BV1a", "BV1b"}).
		Return(enrich.Summary{Scheduled: 2, Saved: 1, Failed: 1}, nil).Once()
	batch.On("Run", mock.Anything, []crawler.VideoID{"BV1c"}).
		Return(enrich.Summary{Scheduled: 1, Skipped: 1}, nil).Once()

	summary, err := New(cfg, nil, Deps{Discoverer: discoverer, Batch: batch}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enrich.Summary{Scheduled: 3, Saved: 1, Skipped: 1, Failed: 1}, summary)
	discoverer.AssertExpectations(t)
	batch.AssertExpectations(t)
}

func TestRunWithoutKeywords(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Crawl.Keywords = nil
	_, err := New(cfg, nil, Deps{Discoverer: fakeDiscoverer{}, Batch: &fakeBatch{}}).Run(context.Background())
	require.ErrorIs(t, err, discovery.ErrNoKeywords)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := &fakeBatch{}
	_, err := New(cfg, nil, Deps{
		Discoverer: fakeDiscoverer{ids: map[string][]crawler.VideoID{"原神": {"BV1a"}}},
		Batch:      batch,
	}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch.batches)
}

func TestBuildRejectsBadSink(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sink.Backends = []string{config.BackendJSONL, "kafka"}
	cfg.Sink.JSONL.Path = filepath.Join(t.TempDir(), "videos.jsonl")
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown sink backend")
}

const searchHTML = `<html><body>
<a href="//www.bilibili.com/video/BV1ok411aaaa">ok</a>
<a href="//www.bilibili.com/video/BV1statonly1">stat only</a>
<a href="//www.bilibili.com/video/BV1gone11111">gone</a>
<a href="//www.bilibili.com/video/BV1ok411aaaa">dup</a>
</body></html>`

func newFakeBilibili(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "原神", r.URL.Query().Get("keyword"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, searchHTML)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("bvid") {
		case "BV1ok411aaaa":
			fmt.Fprint(w, `{"code":0,"data":{"title":"Ok","desc":"d","pic":"p","tname":"游戏","duration":60,"pubdate":1700000000,
				"owner":{"mid":7,"name":"up"},"stat":{"view":100,"like":10,"coin":5,"favorite":5,"share":1}}}`)
		default:
			fmt.Fprint(w, `{"code":-404,"message":"啥都木有","data":null}`)
		}
	})
	mux.HandleFunc("/stat", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("bvid") {
		case "BV1gone11111":
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"code":0,"data":{"view":50,"like":1,"coin":0,"favorite":0,"share":0}}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildAndRunEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newFakeBilibili(t)
	dataset := filepath.Join(t.TempDir(), "out", "videos.jsonl")

	cfg := baseConfig(t)
	cfg.Crawl.SearchURL = srv.URL + "/all"
	cfg.Crawl.RequestDelayMs = config.MinRequestDelayMs
	cfg.Crawl.JitterMaxMs = 0
	cfg.API.ViewURL = srv.URL + "/view"
	cfg.API.StatURL = srv.URL + "/stat"
	cfg.Sink.Backends = []string{config.BackendJSONL}
	cfg.Sink.JSONL.Path = dataset

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotEmpty(t, a.RunID())

	summary, err := a.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, enrich.Summary{Scheduled: 3, Saved: 2, Skipped: 1}, summary)

	f, err := os.Open(dataset)
	require.NoError(t, err)
	defer f.Close()
	var entries []sink.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e sink.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	sort.Slice(entries, func(i, j int) bool { return entries[i].VideoID < entries[j].VideoID })

	ok := entries[0]
	assert.Equal(t, crawler.VideoID("BV1ok411aaaa"), ok.VideoID)
	assert.Equal(t, "https://www.bilibili.com/video/BV1ok411aaaa", ok.URL)
	assert.Equal(t, []string{"游戏"}, ok.Tags)
	assert.Equal(t, crawler.Author{UserID: 7, Username: "up"}, ok.Author)
	assert.Equal(t, int64(100), ok.Engagement.Views)
	assert.InDelta(t, 0.2, ok.Engagement.EngagementRate, 1e-9)
	assert.Equal(t, a.RunID(), ok.RunID)

	statOnly := entries[1]
	assert.Equal(t, crawler.VideoID("BV1statonly1"), statOnly.VideoID)
	assert.Equal(t, "Untitled", statOnly.Title)
	assert.Equal(t, "Unknown", statOnly.Author.Username)
	assert.Equal(t, []string{}, statOnly.Tags)
	assert.Equal(t, int64(50), statOnly.Engagement.Views)
	assert.InDelta(t, 0.02, statOnly.Engagement.EngagementRate, 1e-9)
}
