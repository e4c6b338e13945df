package schedule

import (
	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/kafka"
	"coachmarket-fulfillment/services/deadletter"

	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(
		NewProfileStore,
		NewService,
	),
	fx.Invoke(RegisterWorker),
)

type workerParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     *config.Config
	Service    *Service
	DeadLetter *deadletter.Service
}

func RegisterWorker(p workerParams) error {
	cfg := p.Config

	worker, err := kafka.NewWorker(kafka.WorkerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Group:       cfg.Kafka.GroupPrefix + ".schedule",
		Topics:      []string{event.TypeResourceAllocated.Topic(cfg.Kafka.TopicPrefix)},
		MaxAttempts: cfg.Fulfillment.MaxAttempts,
		Backoff:     cfg.Fulfillment.RetryBackoff,
	}, event.EnvelopeHandler(p.Service.HandleResourceAllocated), p.DeadLetter)
	if err != nil {
		return err
	}

	kafka.RunWorker(p.Lifecycle, worker, "schedule")
	return nil
}
