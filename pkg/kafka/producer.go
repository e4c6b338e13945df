package kafka

import (
	"context"

	"coachmarket-fulfillment/pkg/config"

	ckafka "github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kafka",
	fx.Provide(NewProducer),
)

// Producer writes to the durable log. Publish blocks until the broker
// acknowledges the write, so a nil return means the event is durable.
type Producer struct {
	producer *ckafka.Producer
}

func NewProducer(lc fx.Lifecycle, cfg *config.Config) (*Producer, error) {
	p, err := ckafka.NewProducer(&ckafka.ConfigMap{
		"bootstrap.servers":  cfg.Kafka.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Kafka] Producer connected", zap.String("brokers", cfg.Kafka.Brokers))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Flush(5000)
			p.Close()
			return nil
		},
	})

	return &Producer{producer: p}, nil
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	delivery := make(chan ckafka.Event, 1)

	err := p.producer.Produce(&ckafka.Message{
		TopicPartition: ckafka.TopicPartition{Topic: &topic, Partition: ckafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, delivery)
	if err != nil {
		return err
	}

	select {
	case e := <-delivery:
		m, ok := e.(*ckafka.Message)
		if !ok {
			return ckafka.NewError(ckafka.ErrUnknown, "unexpected delivery event", false)
		}
		return m.TopicPartition.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}
