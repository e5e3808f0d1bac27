// Package pubsub publishes records to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
	"github.com/JakeFAU/video-trend-crawler/internal/sink"
)

// Message attribute keys set on every publish.
const (
	AttrVideoID = "video_id"
	AttrRunID   = "run_id"
)

// Config names the destination topic.
type Config struct {
	ProjectID string
	Topic     string
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type topicPublisher struct {
	p *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

func (t topicPublisher) Stop() {
	t.p.Stop()
}

// Sink publishes one message per record and waits for the server ack.
type Sink struct {
	publisher publisher
	stamper   *sink.Stamper
	client    *pubsub.Client
}

// New connects to Pub/Sub with application default credentials.
func New(ctx context.Context, cfg Config, stamper *sink.Stamper) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub project id and topic are required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamper is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Sink{
		publisher: topicPublisher{p: client.Publisher(cfg.Topic)},
		stamper:   stamper,
		client:    client,
	}, nil
}

func newWithPublisher(p publisher, stamper *sink.Stamper) *Sink {
	return &Sink{publisher: p, stamper: stamper}
}

// PushRecord marshals the stamped record to JSON and publishes it. Trace
// context from ctx is carried in the message attributes.
func (s *Sink) PushRecord(ctx context.Context, record crawler.EnrichedRecord) error {
	entry := s.stamper.Stamp(record)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	msg.Attributes = map[string]string{
		AttrVideoID: string(record.VideoID),
		AttrRunID:   entry.RunID,
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := s.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (s *Sink) Close(context.Context) error {
	s.publisher.Stop()
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
