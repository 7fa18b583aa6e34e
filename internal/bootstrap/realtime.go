// Package bootstrap assembles the pieces both servers share from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memories-social/internal/config"
	appKafka "memories-social/internal/kafka"
	kafkahandlers "memories-social/internal/kafka/handlers"
	"memories-social/internal/realtime"
)

// Realtime is the change feed selected by REALTIME.DRIVER.
type Realtime struct {
	// Feed is what chat sessions subscribe to.
	Feed realtime.Feed
	// Publisher is what the message repository announces new messages on.
	Publisher realtime.Publisher

	wg      sync.WaitGroup
	closers []func()
}

// Option adjusts NewRealtime.
type Option func(*options)

type options struct {
	publishOnly bool
}

// PublishOnly is for processes that write messages but never subscribe, like
// the API server. With the kafka driver no relay consumer is started and Feed
// stays nil.
func PublishOnly() Option {
	return func(o *options) { o.publishOnly = true }
}

// NewRealtime builds the feed for cfg.Realtime.Driver. redisClient is only
// needed by the redis driver, producer only by the kafka driver.
//
// The kafka driver relays the change log into a local broker; each process
// consumes it under its own group so every node sees every change.
func NewRealtime(ctx context.Context, cfg config.Config, redisClient *redis.Client, producer appKafka.MessageProducer, opts ...Option) (*Realtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Realtime{}
	switch cfg.Realtime.Driver {
	case "", "memory":
		broker := realtime.NewBroker(cfg.Realtime.StreamBuffer)
		rt.Feed, rt.Publisher = broker, broker
		rt.closers = append(rt.closers, broker.Close)

	case "redis":
		if redisClient == nil {
			return nil, errors.New("realtime: redis driver needs a redis client")
		}
		feed := realtime.NewRedisFeed(redisClient, cfg.Realtime.ChannelPrefix, cfg.Realtime.StreamBuffer)
		rt.Feed, rt.Publisher = feed, feed

	case "kafka":
		if producer == nil {
			return nil, errors.New("realtime: kafka driver needs a producer")
		}
		rt.Publisher = appKafka.NewChangeLogPublisher(producer, cfg.Kafka.MessagesTopic)
		if o.publishOnly {
			break
		}

		broker := realtime.NewBroker(cfg.Realtime.StreamBuffer)
		rt.Feed = broker

		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("realtime: %w", err)
		}
		relay := kafkahandlers.NewChangeLogRelay(broker)
		rt.Consume(ctx, consumer, cfg.Kafka.MessagesTopic, InstanceGroup(cfg.Kafka.ConsumerGroup), relay.HandleChange)
		rt.closers = append(rt.closers, broker.Close)

	default:
		return nil, fmt.Errorf("realtime: unknown driver %q", cfg.Realtime.Driver)
	}
	log.Printf("realtime feed: %s", driverName(cfg.Realtime.Driver))
	return rt, nil
}

// Consume runs consumer on topic in the background until ctx is done.
// Close waits for it and then closes the consumer.
func (rt *Realtime) Consume(ctx context.Context, consumer appKafka.MessageConsumer, topic, groupID string, handler appKafka.MessageHandler) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := consumer.Consume(ctx, []string{topic}, groupID, handler); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 消费者 (%s) 错误: %v", topic, err)
		}
		log.Printf("Kafka 消费者 (%s) goroutine 已停止。", topic)
	}()
	rt.closers = append(rt.closers, consumer.Close)
}

// Close waits for background consumers, whose context must already be done,
// and releases the feed.
func (rt *Realtime) Close() {
	rt.wg.Wait()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// InstanceGroup derives a consumer group unique to this process, for topics
// that every node must read in full.
func InstanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return fmt.Sprintf("%s-%s-%s", base, host, uuid.NewString()[:8])
}

func driverName(d string) string {
	if d == "" {
		return "memory"
	}
	return d
}
