package crawler

import (
	"context"
	"time"
)

// ViewFetcher retrieves the "video view" resource for an id.
type ViewFetcher interface {
	FetchView(ctx context.Context, id VideoID) (*ViewPayload, error)
}

// StatFetcher retrieves the "video statistics" resource for an id.
type StatFetcher interface {
	FetchStat(ctx context.Context, id VideoID) (*StatPayload, error)
}

// RecordSink appends enriched records to durable storage. Implementations must
// be safe for concurrent use and must not assume any arrival order.
type RecordSink interface {
	PushRecord(ctx context.Context, record EnrichedRecord) error
	Close(ctx context.Context) error
}

// PageSource returns the HTML of a search results page.
type PageSource interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
