package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/metrics"
)

// ErrNoKeywords is returned when a run is started without any usable keyword.
var ErrNoKeywords = errors.New("no keywords configured")

const (
	// SourceStatic labels ids found in the server-rendered page.
	SourceStatic = "static"
	// SourceRendered labels ids found after rendering in a browser.
	SourceRendered = "rendered"
)

// Options configure a Discoverer.
type Options struct {
	SearchURL  string
	MaxResults int
}

// Discoverer fetches the search page for a keyword and extracts video ids.
// The static source is tried first; the rendered source, when present, is
// used if the static page yields no ids or cannot be fetched.
type Discoverer struct {
	opts     Options
	static   crawler.PageSource
	rendered crawler.PageSource
	logger   *zap.Logger
}

// New builds a Discoverer. rendered may be nil to disable browser rendering.
func New(opts Options, static, rendered crawler.PageSource, logger *zap.Logger) (*Discoverer, error) {
	if static == nil && rendered == nil {
		return nil, errors.New("discovery needs at least one page source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{opts: opts, static: static, rendered: rendered, logger: logger}, nil
}

// Discover returns up to MaxResults unique ids for keyword in page order.
func (d *Discoverer) Discover(ctx context.Context, keyword string) ([]crawler.VideoID, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrNoKeywords
	}
	target, err := SearchURL(d.opts.SearchURL, keyword)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With(zap.String("keyword", keyword), zap.String("url", target))

	var staticErr error
	if d.static != nil {
		ids, err := d.fromSource(ctx, d.static, target)
		switch {
		case err != nil:
			staticErr = err
			logger.Warn("static search page failed", zap.Error(err))
		case len(ids) > 0:
			metrics.ObserveDiscovered(SourceStatic, len(ids))
			return ids, nil
		default:
			logger.Info("static search page had no video links")
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("discover %q: %w", keyword, ctx.Err())
	}
	if d.rendered == nil {
		if staticErr != nil {
			return nil, fmt.Errorf("discover %q: %w", keyword, staticErr)
		}
		return nil, nil
	}

	logger.Info("rendering search page in browser")
	ids, err := d.fromSource(ctx, d.rendered, target)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", keyword, errors.Join(staticErr, err))
	}
	metrics.ObserveDiscovered(SourceRendered, len(ids))
	return ids, nil
}

func (d *Discoverer) fromSource(ctx context.Context, src crawler.PageSource, target string) ([]crawler.VideoID, error) {
	body, err := src.FetchPage(ctx, target)
	if err != nil {
		return nil, err
	}
	ids, err := ExtractVideoIDs(body)
	if err != nil {
		return nil, err
	}
	return Dedupe(ids, d.opts.MaxResults), nil
}
