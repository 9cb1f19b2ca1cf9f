package processors

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"

	// Local Packages
	models "rwa-stream/models"
	parser "rwa-stream/parser"

	// External Packages
	"go.uber.org/zap"
)

// Sink receives every parsed transaction. A failing sink never blocks the
// others or the aggregator.
type Sink interface {
	Name() string
	Write(ctx context.Context, tx *models.ParsedTransaction) error
}

type DeadLetterQueue interface {
	Send(ctx context.Context, records []models.Record) error
}

type Aggregator interface {
	ProcessTransaction(ctx context.Context, env models.Envelope) bool
}

type TxProcessor struct {
	Logger     *zap.Logger
	Parser     *parser.Parser
	Aggregator Aggregator
	Sinks      []Sink
	DLQ        DeadLetterQueue
}

func NewTxProcessor(logger *zap.Logger, p *parser.Parser, agg Aggregator, dlq DeadLetterQueue, sinks ...Sink) *TxProcessor {
	return &TxProcessor{Logger: logger, Parser: p, Aggregator: agg, DLQ: dlq, Sinks: sinks}
}

// ProcessEnvelope parses env, hands the result to every sink and feeds the
// aggregator. It matches the poller's handler signature.
func (p *TxProcessor) ProcessEnvelope(ctx context.Context, env models.Envelope) {
	parsed := p.Parser.Parse(env)
	if parsed != nil {
		var failed []models.Record
		for _, sink := range p.Sinks {
			if err := p.write(ctx, sink, parsed); err != nil {
				p.Logger.Error("sink failed", zap.String("sink", sink.Name()), zap.String("hash", parsed.ID), zap.Error(err))
				if record, ok := deadLetter(sink.Name(), parsed); ok {
					failed = append(failed, record)
				}
			}
		}
		p.sendDeadLetters(ctx, failed)
	}

	if p.Aggregator != nil {
		p.Aggregator.ProcessTransaction(ctx, env)
	}
}

// ProcessRecords decodes envelopes that crossed Kafka and processes each.
// Undecodable records go to the dead-letter queue.
func (p *TxProcessor) ProcessRecords(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	var failed []models.Record
	for _, record := range records {
		var env models.Envelope
		if err := json.Unmarshal(record.Value, &env); err != nil {
			p.Logger.Error("failed to unmarshal envelope", zap.ByteString("key", record.Key), zap.Error(err))
			failed = append(failed, record)
			continue
		}
		p.ProcessEnvelope(ctx, env)
	}

	if len(failed) > 0 && p.DLQ != nil {
		if err := p.DLQ.Send(ctx, failed); err != nil {
			return fmt.Errorf("failed to dead-letter %d records: %w", len(failed), err)
		}
	}
	return nil
}

func (p *TxProcessor) write(ctx context.Context, sink Sink, tx *models.ParsedTransaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Write(ctx, tx)
}

func (p *TxProcessor) sendDeadLetters(ctx context.Context, records []models.Record) {
	if len(records) == 0 || p.DLQ == nil {
		return
	}
	if err := p.DLQ.Send(ctx, records); err != nil {
		p.Logger.Error("failed to send dead letters", zap.Int("count", len(records)), zap.Error(err))
	}
}

func deadLetter(sink string, tx *models.ParsedTransaction) (models.Record, bool) {
	value, err := json.Marshal(tx)
	if err != nil {
		return models.Record{}, false
	}
	return models.Record{Key: []byte(tx.ID), Value: value, Topic: sink}, true
}
