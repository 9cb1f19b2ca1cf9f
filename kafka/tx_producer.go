package kafka

import (
	// Go Internal Packages
	"context"
	"encoding/json"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

type produceClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer publishes raw envelopes for the consumer side of the pipeline and
// parsed transactions for downstream readers. Both are keyed by hash.
type Producer struct {
	client produceClient
	config *models.ProducerConfig
	logger *zap.Logger
}

func NewProducer(conf *models.ProducerConfig, metrics *kprom.Metrics, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.AllowAutoTopicCreation(),
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, config: conf, logger: logger}, nil
}

// PublishEnvelope matches the poller's handler signature. Failures are
// logged; the poller has already marked the hash as seen.
func (p *Producer) PublishEnvelope(ctx context.Context, env models.Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("failed to marshal envelope", zap.String("hash", env.Hash), zap.Error(err))
		return
	}
	record := &kgo.Record{Topic: p.config.EnvelopeTopic, Key: []byte(env.Hash), Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.logger.Error("failed to publish envelope", zap.String("hash", env.Hash), zap.Error(err))
	}
}

func (p *Producer) Name() string { return "kafka" }

// Write publishes a parsed transaction to the parsed topic.
func (p *Producer) Write(ctx context.Context, tx *models.ParsedTransaction) error {
	value, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	record := &kgo.Record{Topic: p.config.ParsedTopic, Key: []byte(tx.ID), Value: value}
	return p.client.ProduceSync(ctx, record).FirstErr()
}

func (p *Producer) Close() {
	p.client.Close()
}
