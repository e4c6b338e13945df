package kafka

import (
	"context"
	"errors"
	"time"

	"coachmarket-fulfillment/pkg/errutil"

	ckafka "github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Message is one durable-log record handed to a Handler.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
}

type Handler func(ctx context.Context, msg Message) error

// DeadSink receives messages that exhausted their retry budget or hit a
// terminal domain block.
type DeadSink interface {
	Sink(ctx context.Context, msg Message, attemptCount int, cause error) error
}

// consumer is the slice of the confluent consumer the run loop drives.
type consumer interface {
	ReadMessage(timeout time.Duration) (*ckafka.Message, error)
	CommitMessage(m *ckafka.Message) ([]ckafka.TopicPartition, error)
	Seek(partition ckafka.TopicPartition, timeoutMs int) error
	Close() error
}

type WorkerConfig struct {
	Brokers     string
	Group       string
	Topics      []string
	MaxAttempts int
	Backoff     time.Duration
}

// Worker is one consumer-group member. Offsets are committed only after the
// handler (or the dead-letter sink) succeeds, so a crash mid-processing
// causes redelivery.
type Worker struct {
	consumer    consumer
	handle      Handler
	dead        DeadSink
	group       string
	maxAttempts int
	backoff     time.Duration
}

func NewWorker(cfg WorkerConfig, handler Handler, dead DeadSink) (*Worker, error) {
	c, err := ckafka.NewConsumer(&ckafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.Group,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, err
	}

	if err := c.SubscribeTopics(cfg.Topics, nil); err != nil {
		c.Close()
		return nil, err
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	return &Worker{
		consumer:    c,
		handle:      handler,
		dead:        dead,
		group:       cfg.Group,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	zapLog := zap.L().With(zap.String("consumer_group", w.group))
	zapLog.Info("[Kafka] Worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := w.consumer.ReadMessage(time.Second)
		if err != nil {
			var kerr ckafka.Error
			if errors.As(err, &kerr) && kerr.Code() == ckafka.ErrTimedOut {
				continue
			}
			zapLog.Warn("[Kafka] read failed", zap.Error(err))
			continue
		}

		msg := Message{
			Topic:     *raw.TopicPartition.Topic,
			Key:       string(raw.Key),
			Value:     raw.Value,
			Partition: raw.TopicPartition.Partition,
			Offset:    int64(raw.TopicPartition.Offset),
		}

		if err := w.process(ctx, msg); err != nil {
			// ReadMessage already advanced the fetch position past this
			// offset, and committing any later offset on the partition would
			// implicitly acknowledge it. Rewind so the failed message is
			// re-fetched before anything behind it can be committed.
			zapLog.Error("[Kafka] message processing failed, rewinding partition for redelivery",
				zap.String("topic", msg.Topic),
				zap.String("key", msg.Key),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if serr := w.consumer.Seek(raw.TopicPartition, 0); serr != nil {
				zapLog.Error("[Kafka] seek failed, offset redelivers after rebalance", zap.Error(serr))
			}
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if _, err := w.consumer.CommitMessage(raw); err != nil {
			zapLog.Warn("[Kafka] offset commit failed", zap.Error(err))
		}
	}
}

// process runs the handler with a bounded retry budget. Domain blocks skip
// the remaining attempts. Exhausted or blocked messages go to the dead
// sink; only a dead-sink failure propagates, keeping the offset uncommitted.
func (w *Worker) process(ctx context.Context, msg Message) error {
	var err error
	attempts := 0

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		attempts = attempt
		err = w.handle(ctx, msg)
		if err == nil {
			return nil
		}
		if errutil.IsDomainBlock(err) {
			break
		}

		zap.L().Warn("[Kafka] handler failed, backing off",
			zap.String("consumer_group", w.group),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.Key),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-time.After(w.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if w.dead == nil {
		return err
	}
	return w.dead.Sink(ctx, msg, attempts, err)
}

func (w *Worker) Close() error {
	return w.consumer.Close()
}

// RunWorker binds a worker to the fx lifecycle: the consume loop starts on
// OnStart and the consumer closes only after the loop has drained, so Close
// never races an in-flight ReadMessage.
func RunWorker(lc fx.Lifecycle, w *Worker, name string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zap.L().Error("[Kafka] worker stopped", zap.String("worker", name), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return w.Close()
			case <-stopCtx.Done():
				// The loop has not drained; leave the consumer open rather
				// than racing it. The process is exiting anyway.
				return stopCtx.Err()
			}
		},
	})
}
