package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	models "rwa-stream/models"
)

// fakeGroup hands out one queued batch per poll. Once the queue is empty it
// cancels the consumer's context and reports the cancellation the way kgo
// does.
type fakeGroup struct {
	mu        sync.Mutex
	batches   [][]*kgo.Record
	cancel    context.CancelFunc
	closedErr bool
	calls     []string
	committed []*kgo.Record
	closed    bool
}

func singleError(err error) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{Partitions: []kgo.FetchPartition{{Partition: -1, Err: err}}}}}}
}

func (f *fakeGroup) PollRecords(ctx context.Context, _ int) kgo.Fetches {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closedErr {
		return singleError(kgo.ErrClientClosed)
	}
	if len(f.batches) == 0 {
		f.cancel()
		return singleError(ctx.Err())
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      "envelopes",
		Partitions: []kgo.FetchPartition{{Records: batch}},
	}}}}
}

func (f *fakeGroup) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "commit")
	f.committed = append(f.committed, rs...)
	return nil
}

func (f *fakeGroup) AllowRebalance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "allow")
}

func (f *fakeGroup) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type recordingProcessor struct {
	batches [][]models.Record
	failOn  string
}

func (p *recordingProcessor) ProcessRecords(_ context.Context, records []models.Record) error {
	p.batches = append(p.batches, records)
	for _, r := range records {
		if string(r.Key) == p.failOn {
			return errors.New("processing failed")
		}
	}
	return nil
}

func record(key string) *kgo.Record {
	return &kgo.Record{Topic: "envelopes", Key: []byte(key), Value: []byte(`{"hash":"` + key + `"}`)}
}

func newTestConsumer(client *fakeGroup, processor EnvelopeProcessor) *Consumer {
	return &Consumer{
		Client:    client,
		Config:    &models.ConsumerConfig{Topic: "envelopes", RecordsPerPoll: 10},
		Processor: processor,
		Logger:    zap.NewNop(),
	}
}

func TestPollCommitsProcessedBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeGroup{cancel: cancel, batches: [][]*kgo.Record{{record("H1"), record("H2")}}}
	processor := &recordingProcessor{}

	require.NoError(t, newTestConsumer(client, processor).Poll(ctx))

	require.Len(t, processor.batches, 1)
	assert.Equal(t, models.Record{Key: []byte("H1"), Value: []byte(`{"hash":"H1"}`), Topic: "envelopes"}, processor.batches[0][0])
	assert.Len(t, client.committed, 2)
	assert.Equal(t, []string{"commit", "allow"}, client.calls)
	assert.True(t, client.closed)
}

func TestPollLeavesFailedBatchUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeGroup{cancel: cancel, batches: [][]*kgo.Record{
		{record("bad")},
		{record("H3")},
	}}
	processor := &recordingProcessor{failOn: "bad"}

	require.NoError(t, newTestConsumer(client, processor).Poll(ctx))

	require.Len(t, processor.batches, 2)
	require.Len(t, client.committed, 1)
	assert.Equal(t, "H3", string(client.committed[0].Key))
	assert.Equal(t, []string{"allow", "commit", "allow"}, client.calls)
}

func TestPollStopsWhenClientClosed(t *testing.T) {
	client := &fakeGroup{closedErr: true, cancel: func() {}}

	err := newTestConsumer(client, &recordingProcessor{}).Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka client closed")
	assert.True(t, client.closed)
}
