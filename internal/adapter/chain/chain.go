// Package chain publishes and consumes backfill continuation events.
//
// A historical backfill batch that leaves files pending emits one event;
// a listener picks it up and runs the next batch. The scheduler that
// triggers backfill on a timer remains the safety net, so losing an event
// is harmless.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/riverwatch/hydro-data-service/internal/config"
)

// Event is the payload carried on the chain topic.
type Event struct {
	Remaining int       `json:"remaining"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Notifier produces chain events. It implements ingest.ChainNotifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured chain topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaChainTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyBackfillPending publishes a single continuation event.
func (n *Notifier) NotifyBackfillPending(ctx context.Context, remaining int) error {
	msg, err := serializeEvent(Event{Remaining: remaining, EmittedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

// serializeEvent marshals an Event into a Kafka message.
func serializeEvent(event Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize chain event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("backfill"),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "remaining", Value: []byte(strconv.Itoa(event.Remaining))},
		},
	}, nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// Listener consumes chain events and invokes a handler per event.
type Listener struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewListener creates a Kafka consumer group member on the chain topic.
func NewListener(cfg *config.Config, logger *slog.Logger) *Listener {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  "hydro-backfill",
		Topic:    cfg.KafkaChainTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Listener{reader: r, logger: logger}
}

// Listen blocks consuming events until ctx is canceled. Handler errors are
// logged and the event is committed anyway; the timer-driven scheduler
// retries the work.
func (l *Listener) Listen(ctx context.Context, handle func(context.Context, Event) error) error {
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch chain event: %w", err)
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.logger.Warn("malformed chain event", "offset", msg.Offset, "error", err)
		} else if err := handle(ctx, event); err != nil {
			l.logger.Error("chain event handler failed", "remaining", event.Remaining, "error", err)
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit chain event: %w", err)
		}
	}
}

func (l *Listener) Close() error {
	return l.reader.Close()
}
