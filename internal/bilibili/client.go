// Package bilibili implements the view and stat fetch collaborators against the
// Bilibili web-interface JSON API.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/metrics"
)

// Default endpoint URLs.
const (
	DefaultViewURL = "https://api.bilibili.com/x/web-interface/view"
	DefaultStatURL = "https://api.bilibili.com/x/web-interface/archive/stat"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointView = "view"
	EndpointStat = "stat"
)

// ErrAPI reports a response the API itself marked as unusable.
var ErrAPI = errors.New("bilibili api error")

// Waiter throttles outbound requests; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config holds configuration for the API client.
type Config struct {
	ViewURL        string
	StatURL        string
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
}

// Client implements crawler.ViewFetcher and crawler.StatFetcher.
type Client struct {
	cfg     Config
	client  *resty.Client
	limiter Waiter
	logger  *zap.Logger
}

// New creates a new API client. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Client {
	if cfg.ViewURL == "" {
		cfg.ViewURL = DefaultViewURL
	}
	if cfg.StatURL == "" {
		cfg.StatURL = DefaultStatURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept-Language", cfg.AcceptLanguage).
		SetHeader("Origin", "https://www.bilibili.com")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// FetchView retrieves the video view resource.
func (c *Client) FetchView(ctx context.Context, id crawler.VideoID) (*crawler.ViewPayload, error) {
	var env envelope[crawler.ViewPayload]
	if err := c.get(ctx, EndpointView, c.cfg.ViewURL, id, &env); err != nil {
		return nil, err
	}
	if err := checkEnvelope(EndpointView, env.Code, env.Message, env.Data == nil); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// FetchStat retrieves the video statistics resource.
func (c *Client) FetchStat(ctx context.Context, id crawler.VideoID) (*crawler.StatPayload, error) {
	var env envelope[statData]
	if err := c.get(ctx, EndpointStat, c.cfg.StatURL, id, &env); err != nil {
		return nil, err
	}
	if err := checkEnvelope(EndpointStat, env.Code, env.Message, env.Data == nil); err != nil {
		return nil, err
	}
	return env.Data.payload(), nil
}

func (c *Client) get(ctx context.Context, endpoint, url string, id crawler.VideoID, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return err
		}
	}

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("bvid", string(id)).
		SetHeader("Referer", id.URL()).
		Get(url)
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, 0, time.Since(start))
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	metrics.ObserveAPIRequest(endpoint, resp.StatusCode(), time.Since(start))

	if resp.IsError() {
		return fmt.Errorf("%w: %s returned status %d", ErrAPI, endpoint, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	c.logger.Debug("api response decoded",
		zap.String("endpoint", endpoint),
		zap.String("video_id", string(id)),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}

func checkEnvelope(endpoint string, code int, message string, missingData bool) error {
	if code != 0 {
		return fmt.Errorf("%w: %s code %d: %s", ErrAPI, endpoint, code, message)
	}
	if missingData {
		return fmt.Errorf("%w: %s response has no data", ErrAPI, endpoint)
	}
	return nil
}
