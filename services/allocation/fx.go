package allocation

import (
	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/kafka"
	"coachmarket-fulfillment/services/deadletter"
	"coachmarket-fulfillment/services/demand"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("allocation.service",
	fx.Provide(
		provideAssigner,
		provideDemandSink,
		NewService,
	),
	fx.Invoke(RegisterWorker),
)

func provideAssigner(db *gorm.DB, node *snowflake.Node) Assigner {
	return NewRoster(db, node)
}

func provideDemandSink(recorder *demand.Recorder) DemandSink {
	return recorder
}

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
		Group:       cfg.Kafka.GroupPrefix + ".allocation",
		Topics:      []string{event.TypePurchaseCreated.Topic(cfg.Kafka.TopicPrefix)},
		MaxAttempts: cfg.Fulfillment.MaxAttempts,
		Backoff:     cfg.Fulfillment.RetryBackoff,
	}, event.EnvelopeHandler(p.Service.HandlePurchaseCreated), p.DeadLetter)
	if err != nil {
		return err
	}

	kafka.RunWorker(p.Lifecycle, worker, "allocation")
	return nil
}
