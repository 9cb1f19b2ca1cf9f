package kafka

import (
	// Go Internal Packages
	"context"
	"errors"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

// GroupClient is the part of *kgo.Client a group consumer needs.
type GroupClient interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	AllowRebalance()
	Close()
}

type Consumer struct {
	Client    GroupClient
	Config    *models.ConsumerConfig
	Processor EnvelopeProcessor
	Logger    *zap.Logger
}

type EnvelopeProcessor interface {
	ProcessRecords(ctx context.Context, records []models.Record) error
}

// NewEnvelopeConsumer creates a consumer for the envelope topic. Call Poll to
// start consuming.
func NewEnvelopeConsumer(conf *models.ConsumerConfig, processor EnvelopeProcessor, metrics *kprom.Metrics, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{Config: conf, Processor: processor, Logger: logger}

	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.ConsumerGroup(conf.Name),
		kgo.ConsumeTopics(conf.Topic),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	c.Client = client
	return c, nil
}

// Poll consumes until ctx is cancelled. Records are committed once the
// processor has handled them; a failed batch is left uncommitted and
// redelivered after the next rebalance.
func (c *Consumer) Poll(ctx context.Context) error {
	defer c.Client.Close()

	for {
		if ctx.Err() != nil {
			c.Logger.Info("envelope consumer stopped")
			return nil
		}

		fetches := c.Client.PollRecords(ctx, c.Config.RecordsPerPoll)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		if errors.Is(fetches.Err0(), context.Canceled) {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.Logger.Warn("fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})

		fetched := fetches.Records()
		records := make([]models.Record, len(fetched))
		for idx, record := range fetched {
			records[idx] = models.Record{Key: record.Key, Value: record.Value, Topic: record.Topic}
		}

		if err := c.Processor.ProcessRecords(ctx, records); err != nil {
			c.Logger.Error("failed to process records", zap.Error(err))
			c.Client.AllowRebalance()
			continue
		}

		if len(fetched) > 0 {
			if err := c.Client.CommitRecords(ctx, fetched...); err != nil {
				c.Logger.Warn("failed to commit records", zap.Error(err))
			}
		}
		c.Client.AllowRebalance()
	}
}
