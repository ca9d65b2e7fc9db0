package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/segmentio/kafka-go"

	"github.com/dapplink-labs/ton-wallet-gateway/config"
)

// Publisher mirrors record state changes to an external topic. Delivery is
// best effort: callers log a failed Publish and carry on.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	topic  string
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	log.Info("New kafka publisher", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaPublisher{
		topic: cfg.Topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish writes payload as JSON; key is the account so that one account's
// changes land on one partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (noopPublisher) Close() error                                       { return nil }

var Noop Publisher = noopPublisher{}

// NewPublisher returns the kafka publisher when brokers are configured and
// Noop otherwise.
func NewPublisher(cfg config.KafkaConfig) (Publisher, error) {
	if !cfg.Enabled() {
		return Noop, nil
	}
	return NewKafkaPublisher(cfg)
}
