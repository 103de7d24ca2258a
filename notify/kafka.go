package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
)

// KafkaConfig points the producer at a topic. A separate mailer consumes
// it, so codes travel in the message body; restrict topic ACLs accordingly.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" toml:"brokers"`
	Topic        string        `yaml:"topic" toml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout" toml:"batch_timeout"`
}

// Event is the JSON value written for every notification. The message key
// is the destination so one address stays on one partition.
type Event struct {
	Kind        credcore.NotificationKind `json:"kind"`
	Destination string                    `json:"destination"`
	Payload     map[string]string         `json:"payload,omitempty"`
	SentAt      time.Time                 `json:"sent_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notifications to a topic.
type Kafka struct {
	w     messageWriter
	clock clockwork.Clock
	log   *zap.Logger
}

// NewKafka builds a synchronous producer for cfg. Close it on shutdown.
func NewKafka(cfg KafkaConfig, log *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("notify: kafka brokers and topic are required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafka(w, clockwork.NewRealClock(), log), nil
}

func newKafka(w messageWriter, clock clockwork.Clock, log *zap.Logger) *Kafka {
	if log == nil {
		log = zap.NewNop()
	}
	return &Kafka{w: w, clock: clock, log: log.Named("kafka")}
}

// Send implements credcore.Notifier and returns once the brokers ack.
func (k *Kafka) Send(ctx context.Context, destination string, kind credcore.NotificationKind, payload map[string]string) error {
	value, err := json.Marshal(Event{
		Kind:        kind,
		Destination: destination,
		Payload:     payload,
		SentAt:      k.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(destination),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
		},
	})
	if err != nil {
		k.log.Error("kafka publish failed", zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

var _ credcore.Notifier = (*Kafka)(nil)
