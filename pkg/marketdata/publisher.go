package marketdata

import (
	"context"

	"tradefloor/pkg/kafkawrapper"
)

// KafkaPublisher forwards feed events to the out-of-process transport.
// Events are keyed by symbol so one symbol's stream stays on one partition.
type KafkaPublisher struct {
	producer *kafkawrapper.Producer
	topic    string
}

func NewKafkaPublisher(producer *kafkawrapper.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
	}
}

// OnEvent implements Sink.
func (p *KafkaPublisher) OnEvent(ctx context.Context, ev Event) error {
	return p.producer.PublishJSON(ctx, p.topic, ev.Symbol, ev)
}
