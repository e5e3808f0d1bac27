package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
)

type fakeViews struct {
	payloads map[crawler.VideoID]*crawler.ViewPayload
	fail     map[crawler.VideoID]bool
	panicOn  crawler.VideoID
}

func (f *fakeViews) FetchView(_ context.Context, id crawler.VideoID) (*crawler.ViewPayload, error) {
	if id == f.panicOn && id != "" {
		panic("view collaborator exploded")
	}
	if f.fail[id] {
		return nil, errors.New("view transport failure")
	}
	return f.payloads[id], nil
}

type fakeStats struct {
	payloads map[crawler.VideoID]*crawler.StatPayload
	fail     map[crawler.VideoID]bool
}

func (f *fakeStats) FetchStat(_ context.Context, id crawler.VideoID) (*crawler.StatPayload, error) {
	if f.fail[id] {
		return nil, errors.New("stat transport failure")
	}
	return f.payloads[id], nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []crawler.EnrichedRecord
	err     error
}

func (s *fakeSink) PushRecord(_ context.Context, record crawler.EnrichedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) Close(context.Context) error { return nil }

func (s *fakeSink) byID() map[crawler.VideoID]crawler.EnrichedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[crawler.VideoID]crawler.EnrichedRecord, len(s.records))
	for _, r := range s.records {
		out[r.VideoID] = r
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }
