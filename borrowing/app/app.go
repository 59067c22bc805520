package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/config"
	"github.com/Astemirdum/borrow-service/borrowing/internal/handler"
	"github.com/Astemirdum/borrow-service/borrowing/internal/repository"
	"github.com/Astemirdum/borrow-service/borrowing/internal/server"
	"github.com/Astemirdum/borrow-service/borrowing/internal/service"
	"github.com/Astemirdum/borrow-service/borrowing/migrations"
	"github.com/Astemirdum/borrow-service/pkg/kafka"
	"github.com/Astemirdum/borrow-service/pkg/logger"
	"github.com/Astemirdum/borrow-service/pkg/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "borrowing")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo borrowing %v", err)
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka.NewProducer %v", err)
	}
	svc := service.NewService(repo, service.NewEnqueuer(producer), cfg.Policy, log)
	h := handler.New(svc, log)

	consumerGroup, err := kafka.NewConsumer(cfg.Kafka, kafka.BorrowingConsumerGroup)
	if err != nil {
		return fmt.Errorf("kafka.NewConsumer %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		kafka.Consume(gCtx, consumerGroup, handler.NewConsumer(svc.InvalidateBook, log), kafka.CatalogTopic)
		return nil
	})
	g.Go(func() error {
		return svc.RunOverdueSweeper(gCtx)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	runCancel()
	if err := g.Wait(); err != nil {
		log.Error("workers stop", zap.Error(err))
	}
	if err := consumerGroup.Close(); err != nil {
		log.Error("consumer close", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		log.Error("producer close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
