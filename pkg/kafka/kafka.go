package kafka

import (
	"github.com/IBM/sarama"
)

type Config struct {
	Addrs             []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
	NotificationTopic string   `envconfig:"KAFKA_NOTIFICATION_TOPIC" default:"lending.notifications"`
}

// NewProducer returns a sync producer that waits for full ISR acks, which the
// notification outbox relies on to treat a publish as delivered.
func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true
	defaultCfg.Producer.Retry.Max = 3

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}
