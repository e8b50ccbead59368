// Package eventsink forwards synchronizer events to Kafka so other systems
// can follow booking changes, deletions included.
package eventsink

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"calendar-console/internal/event"
	"calendar-console/internal/feed"
)

const DefaultTopic = "console.booking-events"

type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds one batch; zero keeps the kafka-go default.
	WriteTimeout time.Duration
}

type Kafka struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafka returns nil when no brokers are configured, which callers treat as
// publishing disabled.
func NewKafka(cfg Config, logger zerolog.Logger) *Kafka {
	if len(cfg.Brokers) == 0 {
		logger.Warn().Msg("event sink disabled (no kafka brokers configured)")
		return nil
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (k *Kafka) Publish(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := Message(ctx, ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	k.logger.Debug().Int("count", len(msgs)).Msg("booking events published")
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Message encodes one event. The key is the booking id so every change to a
// booking lands on the same partition in order.
func Message(ctx context.Context, ev event.Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	h := &headers{list: []kafka.Header{
		{Key: "event_id", Value: []byte(feed.EntryID(ev))},
		{Key: "event_type", Value: []byte(ev.Kind)},
	}}
	otel.GetTextMapPropagator().Inject(ctx, h)
	return kafka.Message{
		Key:     []byte(ev.BookingID),
		Value:   payload,
		Headers: h.list,
		Time:    ev.At,
	}, nil
}

// HeaderValue returns the first header with key, or "".
func HeaderValue(hs []kafka.Header, key string) string {
	for _, h := range hs {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// headers carries W3C trace context into kafka message headers.
type headers struct {
	list []kafka.Header
}

func (h *headers) Get(key string) string { return HeaderValue(h.list, key) }

func (h *headers) Set(key, value string) {
	for i := range h.list {
		if h.list[i].Key == key {
			h.list[i].Value = []byte(value)
			return
		}
	}
	h.list = append(h.list, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headers) Keys() []string {
	keys := make([]string, 0, len(h.list))
	for _, x := range h.list {
		keys = append(keys, x.Key)
	}
	return keys
}
