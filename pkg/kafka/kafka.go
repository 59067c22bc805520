package kafka

import (
	"context"
	"log"

	"github.com/IBM/sarama"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
}

const (
	BorrowingTopic         = "borrowing-events"
	CatalogTopic           = "catalog-events"
	BorrowingConsumerGroup = "borrowing-service"
)

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume loops the consumer-group session until ctx is canceled.
func Consume(ctx context.Context, cg sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topic string) {
	for {
		if err := cg.Consume(ctx, []string{topic}, handler); err != nil {
			log.Printf("kafka consume %s: %v", topic, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
