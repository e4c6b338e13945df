package cachework

import (
	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/kafka"

	"go.uber.org/fx"
)

var Module = fx.Module("cachework.service",
	fx.Provide(
		NewRedisCache,
		NewService,
	),
	fx.Invoke(RegisterWorker),
)

type workerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Service   *Service
}

// RegisterWorker subscribes to every pipeline topic on its own group. No
// dead-letter sink: eviction is best effort and the handler never fails.
func RegisterWorker(p workerParams) error {
	cfg := p.Config

	topics := make([]string, 0, len(event.AllTypes()))
	for _, t := range event.AllTypes() {
		topics = append(topics, t.Topic(cfg.Kafka.TopicPrefix))
	}

	worker, err := kafka.NewWorker(kafka.WorkerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Group:       cfg.Kafka.GroupPrefix + ".cache",
		Topics:      topics,
		MaxAttempts: 1,
		Backoff:     cfg.Fulfillment.RetryBackoff,
	}, event.EnvelopeHandler(p.Service.HandleEvent), nil)
	if err != nil {
		return err
	}

	kafka.RunWorker(p.Lifecycle, worker, "cache")
	return nil
}
