package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Astemirdum/lending-service/config"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/pkg/circuit_breaker"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// EmailSender delivers a single message. Implementations live at the edge;
// the worker only cares that delivery either succeeds or returns an error.
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// OutboxStore is the slice of the repository the worker needs.
type OutboxStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimNotificationBatch(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, maxAttempts int) error
}

// Outbox drains the notification outbox: rows written inside core
// transactions are delivered here, strictly after commit, so a flaky sink can
// never roll back core state. Deliveries go through a circuit breaker to stop
// hammering a sink that is down.
type Outbox struct {
	repo     OutboxStore
	producer sarama.SyncProducer
	email    EmailSender
	cb       circuit_breaker.CircuitBreaker
	topic    string
	cfg      config.Worker
	log      *zap.Logger
}

func NewOutbox(
	repo OutboxStore,
	producer sarama.SyncProducer,
	email EmailSender,
	topic string,
	cfg config.Worker,
	log *zap.Logger,
) *Outbox {
	return &Outbox{
		repo:     repo,
		producer: producer,
		email:    email,
		cb:       circuit_breaker.New(20, 30*time.Second, 0.5, 3),
		topic:    topic,
		cfg:      cfg,
		log:      log.Named("outbox"),
	}
}

func (w *Outbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.OutboxInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.log.Error("drain", zap.Error(err))
			}
		}
	}
}

func (w *Outbox) drain(ctx context.Context) error {
	for {
		batch, err := w.claim(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, n := range batch {
			w.deliver(ctx, n)
		}
		if len(batch) < w.cfg.OutboxBatchSize {
			return nil
		}
	}
}

func (w *Outbox) claim(ctx context.Context) ([]model.Notification, error) {
	var batch []model.Notification
	err := w.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		batch, err = w.repo.ClaimNotificationBatch(ctx, w.cfg.OutboxBatchSize)
		return err
	})
	return batch, err
}

func (w *Outbox) deliver(ctx context.Context, n model.Notification) {
	err := w.cb.Call(func() error {
		return w.send(n)
	})
	if err != nil {
		w.log.Warn("delivery failed",
			zap.Int64("notification_id", n.ID),
			zap.Int("attempts", n.Attempts),
			zap.Error(err))
		if markErr := w.repo.MarkNotificationFailed(ctx, n.ID, w.cfg.OutboxMaxRetries); markErr != nil {
			w.log.Error("mark failed", zap.Int64("notification_id", n.ID), zap.Error(markErr))
		}
		return
	}
	if err := w.repo.MarkNotificationSent(ctx, n.ID); err != nil {
		// delivery happened; on restart the row is retried and the duplicate
		// send is tolerated by the at-least-once contract
		w.log.Error("mark sent", zap.Int64("notification_id", n.ID), zap.Error(err))
	}
}

func (w *Outbox) send(n model.Notification) error {
	if w.producer != nil {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{Topic: w.topic, Value: sarama.StringEncoder(data)}
		if _, _, err := w.producer.SendMessage(msg); err != nil {
			return err
		}
	}
	if n.Channel == model.ChannelEmail && w.email != nil {
		return w.email.SendEmail(n.Recipient, n.Subject, n.Body)
	}
	return nil
}
