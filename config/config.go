package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/lending-service/pkg/kafka"
	"github.com/Astemirdum/lending-service/pkg/logger"
	"github.com/Astemirdum/lending-service/pkg/postgres"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

type HTTPServer struct {
	Host         string        `envconfig:"LENDING_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"LENDING_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE" default:"30s"`
}

// Flags is the feature-flag snapshot. It is resolved once at startup and
// passed into services explicitly instead of living in mutable global state.
type Flags struct {
	NotificationsEnabled bool `envconfig:"FLAG_NOTIFICATIONS" default:"true"`
	PenaltySweepEnabled  bool `envconfig:"FLAG_PENALTY_SWEEP" default:"true"`
	DueRemindersEnabled  bool `envconfig:"FLAG_DUE_REMINDERS" default:"true"`
}

type Worker struct {
	OutboxInterval   time.Duration `envconfig:"OUTBOX_INTERVAL" default:"5s"`
	OutboxBatchSize  int           `envconfig:"OUTBOX_BATCH" default:"50"`
	OutboxMaxRetries int           `envconfig:"OUTBOX_MAX_RETRIES" default:"5"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	ReminderDays     int           `envconfig:"REMINDER_DAYS" default:"2"`
}

type Config struct {
	Server   HTTPServer
	Database postgres.Config
	Kafka    kafka.Config
	Flags    Flags
	Worker   Worker
	Log      logger.Log
}

var (
	once sync.Once
	cfg  Config
)

type Option func(*Config)

func WithLogLevel(lvl zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = lvl
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
