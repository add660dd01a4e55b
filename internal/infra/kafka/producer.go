package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/infra/config"
)

const closeTimeout = 10 * time.Second

// Producer sends audit events asynchronously. Delivery failures are logged
// and counted; they never reach the login path.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	prefix   string
	failed   atomic.Int64
	drained  sync.WaitGroup
}

func newSaramaConfig(cfg config.KafkaSettings) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Flush.Frequency = 100 * time.Millisecond
	sc.Producer.Flush.Messages = 100
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true

	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

// NewProducer dials the brokers in cfg.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	async, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.String("client_id", cfg.ClientID),
	)
	return newProducer(async, cfg.TopicPrefix, logger), nil
}

func newProducer(async sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *Producer {
	p := &Producer{producer: async, logger: logger, prefix: topicPrefix}
	p.drained.Add(1)
	go p.drainErrors()
	return p
}

// drainErrors runs until the producer closes its Errors channel.
func (p *Producer) drainErrors() {
	defer p.drained.Done()
	for perr := range p.producer.Errors() {
		p.failed.Add(1)
		fields := []zap.Field{zap.Error(perr.Err)}
		if perr.Msg != nil {
			fields = append(fields, zap.String("topic", perr.Msg.Topic))
		}
		p.logger.Error("kafka delivery failed", fields...)
	}
}

// Send enqueues a message, giving up if ctx ends first.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed reports how many messages the brokers rejected so far.
func (p *Producer) Failed() int64 {
	return p.failed.Load()
}

// Close flushes buffered messages and waits, up to closeTimeout, for the
// error stream to drain.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	p.producer.AsyncClose()

	done := make(chan struct{})
	go func() {
		p.drained.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("close kafka producer: timed out after %s", closeTimeout)
	}
}

// TopicName returns the topic for an event type, e.g. invoices.auth.account.locked.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" || strings.HasPrefix(eventType, p.prefix+".") {
		return eventType
	}
	return p.prefix + "." + eventType
}
