// Package kafkawrapper is a small wrapper around segmentio/kafka-go for
// publishing market-data events. Writes are batched and async; the feed never
// blocks on the broker.
package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string      `yaml:"brokers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchBytes   int64         `yaml:"batch_bytes"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = 1 << 20
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	wr := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
	}
	return &Producer{w: wr}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p == nil || p.w == nil {
		return errors.New("producer not initialized")
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Producer) PublishJSON(ctx context.Context, topic string, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, []byte(key), b)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}
