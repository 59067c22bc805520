package handler

import (
	"context"
	"encoding/json"

	"github.com/Astemirdum/borrow-service/borrowing/internal/model"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type invalidateBook func(ctx context.Context, bookUid string) error

// Consumer drops cached availability whenever the catalog announces a book
// change (copies added/removed, book edited).
type Consumer struct {
	invalidateHandler invalidateBook
	log               *zap.Logger
	ready             chan bool
}

func NewConsumer(invalidate invalidateBook, log *zap.Logger) *Consumer {
	return &Consumer{
		invalidateHandler: invalidate,
		log:               log.Named("consumer"),
		ready:             make(chan bool),
	}
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	// Mark the consumer as ready
	close(consumer.ready)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var ev model.CatalogEvent
			if err := json.Unmarshal(message.Value, &ev); err != nil {
				consumer.log.Error("catalog event decode", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.invalidateHandler(context.Background(), ev.BookUid); err != nil {
				consumer.log.Error("consumer.invalidateHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
