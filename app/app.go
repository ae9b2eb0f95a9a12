package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/lending-service/config"
	"github.com/Astemirdum/lending-service/internal/handler"
	"github.com/Astemirdum/lending-service/internal/repository"
	"github.com/Astemirdum/lending-service/internal/server"
	"github.com/Astemirdum/lending-service/internal/service"
	"github.com/Astemirdum/lending-service/internal/worker"
	"github.com/Astemirdum/lending-service/migrations"
	"github.com/Astemirdum/lending-service/pkg/kafka"
	"github.com/Astemirdum/lending-service/pkg/logger"
	"github.com/Astemirdum/lending-service/pkg/postgres"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "lending")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}
	svc := service.NewService(repo, cfg.Flags, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	wg, workerCtx := errgroup.WithContext(workerCtx)

	var producer sarama.SyncProducer
	if cfg.Flags.NotificationsEnabled {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		outbox := worker.NewOutbox(repo, producer, nil, cfg.Kafka.NotificationTopic, cfg.Worker, log)
		wg.Go(func() error {
			return outbox.Run(workerCtx)
		})
	}

	if cfg.Flags.PenaltySweepEnabled {
		wg.Go(func() error {
			runSweeper(workerCtx, svc, cfg.Worker, log)
			return nil
		})
	}

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	stopWorkers()
	if err := wg.Wait(); err != nil {
		log.Error("workers", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("producer close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}

// runSweeper reassesses overdue fines and fires due-date reminders on a
// timer. Each tick is independent; a failed tick is logged and the next one
// starts clean.
func runSweeper(ctx context.Context, svc *service.Service, cfg config.Worker, log *zap.Logger) {
	log = log.Named("sweeper")
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := svc.RunPenaltySweep(ctx)
			if err != nil {
				log.Error("penalty sweep", zap.Error(err))
				continue
			}
			log.Info("penalty sweep",
				zap.Int("scanned", res.Scanned),
				zap.Int("assessed", res.FinesAssessed),
				zap.Int("lost", res.BooksLost),
				zap.Int("errors", len(res.Errors)))
			sent, err := svc.RunDueDateReminders(ctx, cfg.ReminderDays)
			if err != nil {
				log.Error("due reminders", zap.Error(err))
			} else if sent > 0 {
				log.Info("due reminders", zap.Int("sent", sent))
			}
		}
	}
}
