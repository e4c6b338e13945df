package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coachmarket-fulfillment/internal/event"
	"coachmarket-fulfillment/pkg/asynq"
	"coachmarket-fulfillment/pkg/config"
	"coachmarket-fulfillment/pkg/db"
	"coachmarket-fulfillment/pkg/health"
	"coachmarket-fulfillment/pkg/kafka"
	"coachmarket-fulfillment/pkg/logger"
	"coachmarket-fulfillment/pkg/redis"
	"coachmarket-fulfillment/services/allocation"
	"coachmarket-fulfillment/services/cachework"
	"coachmarket-fulfillment/services/deadletter"
	"coachmarket-fulfillment/services/demand"
	"coachmarket-fulfillment/services/ledger"
	"coachmarket-fulfillment/services/purchase"
	"coachmarket-fulfillment/services/schedule"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynq.Client,
		kafka.Module,
		event.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(
			db.Otel,
			migrate,
		),
		ledger.Module,
		deadletter.Module,
		demand.Module,
		purchase.Module,
		allocation.Module,
		schedule.Module,
		cachework.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ledger.ProcessedEvent{},
		&deadletter.Entry{},
		&purchase.Purchase{},
		&purchase.Payment{},
		&allocation.Allocation{},
		&allocation.Trainer{},
		&schedule.Session{},
		&schedule.StudentProfile{},
	)
}
