package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Kafka struct {
		Brokers     string `mapstructure:"BROKERS"`
		GroupPrefix string `mapstructure:"GROUP_PREFIX"`
		TopicPrefix string `mapstructure:"TOPIC_PREFIX"`
	} `mapstructure:"KAFKA"`
	Fulfillment struct {
		DefaultTier         int           `mapstructure:"DEFAULT_TIER"`
		DefaultTimeSlot     string        `mapstructure:"DEFAULT_TIME_SLOT"`
		StartDateOffsetDays int           `mapstructure:"START_DATE_OFFSET_DAYS"`
		MaxAttempts         int           `mapstructure:"MAX_ATTEMPTS"`
		RetryBackoff        time.Duration `mapstructure:"RETRY_BACKOFF"`
		RequireMeetingPoint bool          `mapstructure:"REQUIRE_MEETING_POINT"`
	} `mapstructure:"FULFILLMENT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "coachmarket-fulfillment")

	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("KAFKA.BROKERS", "localhost:9092")
	v.SetDefault("KAFKA.GROUP_PREFIX", "fulfillment")
	v.SetDefault("KAFKA.TOPIC_PREFIX", "fulfillment")

	v.SetDefault("FULFILLMENT.DEFAULT_TIER", 30)
	v.SetDefault("FULFILLMENT.DEFAULT_TIME_SLOT", "7:00 AM")
	v.SetDefault("FULFILLMENT.START_DATE_OFFSET_DAYS", 1)
	v.SetDefault("FULFILLMENT.MAX_ATTEMPTS", 3)
	v.SetDefault("FULFILLMENT.RETRY_BACKOFF", 2*time.Second)
	v.SetDefault("FULFILLMENT.REQUIRE_MEETING_POINT", false)
}
