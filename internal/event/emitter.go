package event

import (
	"context"
	"encoding/json"

	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/errutil"
	"coachmarket-fulfillment/pkg/kafka"
	"coachmarket-fulfillment/pkg/rediskey"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("event",
	fx.Provide(
		NewRedisNotifier,
		provideDurablePublisher,
		NewEmitter,
	),
)

// DurablePublisher is the partitioned, offset-tracked log. A failed publish
// must surface to the caller.
type DurablePublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Notifier is the best-effort live channel to connected clients. Failures
// are advisory; clients also refetch on demand.
type Notifier interface {
	Notify(ctx context.Context, studentID string, payload []byte) error
}

func provideDurablePublisher(p *kafka.Producer) DurablePublisher {
	return p
}

type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) Notifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Notify(ctx context.Context, studentID string, payload []byte) error {
	return n.rdb.Publish(ctx, rediskey.BuildNotifyChannel(studentID), payload).Err()
}

// Emitter publishes each business event on both channels: durable log first,
// keyed by the subject id so one chain stays on one partition, then
// best-effort on the live channel. Only the durable failure propagates.
type Emitter struct {
	durable     DurablePublisher
	notifier    Notifier
	node        *snowflake.Node
	topicPrefix string
}

type EmitterParams struct {
	fx.In

	Durable  DurablePublisher
	Notifier Notifier
	Node     *snowflake.Node
	Config   *config.Config
}

func NewEmitter(p EmitterParams) *Emitter {
	return &Emitter{
		durable:     p.Durable,
		notifier:    p.Notifier,
		node:        p.Node,
		topicPrefix: p.Config.Kafka.TopicPrefix,
	}
}

func (e *Emitter) Emit(ctx context.Context, t Type, correlationID, source, subjectID string, payload any) error {
	env, err := NewEnvelope(e.node, t, correlationID, source, payload)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := e.durable.Publish(ctx, t.Topic(e.topicPrefix), subjectID, raw); err != nil {
		return err
	}

	if err := e.notifier.Notify(ctx, subjectID, raw); err != nil {
		zap.L().Warn("live notification failed, client will refetch",
			zap.String("event_type", string(t)),
			zap.String("correlation_id", correlationID),
			zap.String("student_id", subjectID),
			zap.Error(err),
		)
	}

	return nil
}

// NotifyOnly publishes an advisory-only message on the live channel, for
// conditions that never reach the durable log (e.g. "allocation blocked,
// you will be notified"). Failures are logged and swallowed.
func (e *Emitter) NotifyOnly(ctx context.Context, correlationID, subjectID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("advisory payload marshal failed", zap.String("correlation_id", correlationID), zap.Error(err))
		return
	}

	if err := e.notifier.Notify(ctx, subjectID, raw); err != nil {
		zap.L().Warn("advisory notification failed",
			zap.String("correlation_id", correlationID),
			zap.String("student_id", subjectID),
			zap.Error(err),
		)
	}
}

// EnvelopeHandler adapts an envelope-typed handler to the durable-log
// worker contract.
func EnvelopeHandler(fn func(ctx context.Context, env Envelope) error) kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			return errutil.ValidationFailed("malformed event envelope", err)
		}
		return fn(ctx, env)
	}
}
