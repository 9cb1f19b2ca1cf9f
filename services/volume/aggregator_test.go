package volume

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	errors "rwa-stream/errors"
	models "rwa-stream/models"
	parser "rwa-stream/parser"
	sqlite "rwa-stream/repositories/sqlite"
)

type fakeCache struct {
	mu      sync.Mutex
	stored  *models.VolumeSnapshot
	loadErr error
	saves   int
	clears  int
}

func (c *fakeCache) Load(context.Context) (*models.VolumeSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.stored, nil
}

func (c *fakeCache) Save(_ context.Context, s *models.VolumeSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = s
	c.saves++
	return nil
}

func (c *fakeCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = nil
	c.loadErr = nil
	c.clears++
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAggregator(cache Cache) (*Aggregator, *clock) {
	clk := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	issuers := models.NewIssuerSet([]models.TrackedIssuer{
		{Name: "Test", Issuer: []string{"rISSUER1"}, Currency: "XYZ", City: "X"},
		{Name: "Twin", Issuer: []string{"rA", "rB"}, Currency: "TWN"},
	})
	p := parser.New(issuers, zap.NewNop(), parser.WithClock(clk.Now))
	return New(p, cache, Config{CacheExpiry: 24 * time.Hour}, zap.NewNop(), WithClock(clk.Now)), clk
}

func payment(hash, from, to string, amount models.Amount) models.Envelope {
	return models.Envelope{Hash: hash, Transaction: &models.TxBody{
		TransactionType: "Payment", Account: from, Destination: to, Amount: amount,
	}}
}

func TestRecordTransactionAccumulates(t *testing.T) {
	cache := &fakeCache{}
	agg, clk := newTestAggregator(cache)
	ctx := context.Background()

	amounts := []string{"1.5", "0", "-3", "20.25", "0.01"}
	prev := decimal.Zero
	for _, a := range amounts {
		agg.RecordTransaction(ctx, "rISSUER1", "XYZ", decimal.RequireFromString(a))
		clk.advance(time.Second)
		cur := agg.Volume("rISSUER1")
		assert.True(t, cur.GreaterThanOrEqual(prev))
		prev = cur
	}

	rec, ok := agg.Record("rISSUER1")
	require.True(t, ok)
	assert.Equal(t, "21.76", rec.CumulativeVolume.String())
	assert.Equal(t, int64(3), rec.TransactionCount)
	assert.Equal(t, "XYZ", rec.Currency)
	assert.Equal(t, 3, cache.saves)
	require.NotNil(t, cache.stored)
	assert.Len(t, cache.stored.Records, 1)
}

func TestProcessTransactionEndToEnd(t *testing.T) {
	agg, _ := newTestAggregator(&fakeCache{})
	env := payment("H1", "rSENDER", "rISSUER1", models.IssuedAmount("42.50", "", "rISSUER1"))

	require.True(t, agg.ProcessTransaction(context.Background(), env))
	rec, ok := agg.Record("rISSUER1")
	require.True(t, ok)
	assert.True(t, rec.CumulativeVolume.Equal(decimal.RequireFromString("42.50")))
	assert.Equal(t, int64(1), rec.TransactionCount)
}

func TestProcessTransactionAttributesToParticipatingAddress(t *testing.T) {
	agg, _ := newTestAggregator(&fakeCache{})
	ctx := context.Background()

	require.True(t, agg.ProcessTransaction(ctx, payment("H1", "rB", "rCUSTOMER", models.IssuedAmount("10", "TWN", "rB"))))
	assert.True(t, agg.Volume("rB").Equal(decimal.NewFromInt(10)))
	assert.True(t, agg.Volume("rA").IsZero())

	// neither party is one of the issuer's accounts
	require.True(t, agg.ProcessTransaction(ctx, payment("H2", "rX", "rY", models.IssuedAmount("5", "TWN", "rB"))))
	assert.True(t, agg.Volume("rA").Equal(decimal.NewFromInt(5)))
}

func TestProcessTransactionFilters(t *testing.T) {
	agg, _ := newTestAggregator(&fakeCache{})
	ctx := context.Background()

	trust := models.Envelope{Hash: "T1", Transaction: &models.TxBody{TransactionType: "TrustSet", Account: "rISSUER1"}}
	assert.False(t, agg.ProcessTransaction(ctx, trust))

	escrow := models.Envelope{Hash: "E1", Transaction: &models.TxBody{
		TransactionType: "EscrowCreate", Account: "rISSUER1", Amount: models.NativeAmount("5000000"),
	}}
	assert.False(t, agg.ProcessTransaction(ctx, escrow))

	tiny := payment("P1", "rISSUER1", "rX", models.IssuedAmount("0.009", "XYZ", "rISSUER1"))
	assert.False(t, agg.ProcessTransaction(ctx, tiny))

	huge := payment("P2", "rISSUER1", "rX", models.IssuedAmount("1000000001", "XYZ", "rISSUER1"))
	assert.False(t, agg.ProcessTransaction(ctx, huge))

	// a foreign issued currency sent by the issuer is not its trading volume
	foreign := payment("P3", "rISSUER1", "rX", models.IssuedAmount("10", "USD", "rELSEWHERE"))
	assert.False(t, agg.ProcessTransaction(ctx, foreign))

	native := payment("P4", "rISSUER1", "rX", models.NativeAmount("2000000"))
	assert.True(t, agg.ProcessTransaction(ctx, native))
	rec, ok := agg.Record("rISSUER1")
	require.True(t, ok)
	assert.Equal(t, "XYZ", rec.Currency)
	assert.True(t, rec.CumulativeVolume.Equal(decimal.NewFromInt(2)))
}

func TestRestoreFreshCache(t *testing.T) {
	cache := &fakeCache{}
	first, clk := newTestAggregator(cache)
	ctx := context.Background()
	first.RecordTransaction(ctx, "rA", "TWN", decimal.NewFromInt(7))
	sessionID := first.Stats().SessionID

	second, _ := newTestAggregator(cache)
	second.now = func() time.Time { return clk.Now().Add(23 * time.Hour) }
	require.True(t, second.Restore(ctx))
	assert.True(t, second.Volume("rA").Equal(decimal.NewFromInt(7)))
	assert.Equal(t, sessionID, second.Stats().SessionID)
}

func TestRestoreExpiredCache(t *testing.T) {
	cache := &fakeCache{}
	first, clk := newTestAggregator(cache)
	ctx := context.Background()
	first.RecordTransaction(ctx, "rA", "TWN", decimal.NewFromInt(7))

	second, _ := newTestAggregator(cache)
	second.now = func() time.Time { return clk.Now().Add(25 * time.Hour) }
	assert.False(t, second.Restore(ctx))
	assert.Empty(t, second.Records())
	assert.Nil(t, cache.stored)
	assert.Equal(t, 1, cache.clears)
}

func TestRestoreCorruptCache(t *testing.T) {
	cache := &fakeCache{loadErr: errors.E(errors.Invalid, "corrupted volume cache", nil)}
	agg, _ := newTestAggregator(cache)

	assert.False(t, agg.Restore(context.Background()))
	assert.Equal(t, 1, cache.clears)
	assert.Empty(t, agg.Records())
}

func TestReadsAndResets(t *testing.T) {
	cache := &fakeCache{}
	agg, clk := newTestAggregator(cache)
	ctx := context.Background()

	agg.RecordTransaction(ctx, "rA", "TWN", decimal.NewFromInt(5))
	agg.RecordTransaction(ctx, "rISSUER1", "XYZ", decimal.NewFromInt(50))
	agg.RecordTransaction(ctx, "rB", "TWN", decimal.NewFromInt(5))
	clk.advance(90 * time.Minute)

	records := agg.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []string{"rISSUER1", "rA", "rB"}, []string{records[0].Issuer, records[1].Issuer, records[2].Issuer})
	assert.True(t, agg.TotalVolume().Equal(decimal.NewFromInt(60)))

	stats := agg.Stats()
	assert.Equal(t, 3, stats.ActiveIssuers)
	assert.Equal(t, int64(3), stats.TotalTransactions)
	assert.Equal(t, int64(90), stats.SessionMinutes)
	require.NotNil(t, stats.TopIssuer)
	assert.Equal(t, "rISSUER1", stats.TopIssuer.Issuer)

	assert.True(t, agg.ClearIssuer(ctx, "rA"))
	assert.False(t, agg.ClearIssuer(ctx, "rA"))
	assert.Len(t, agg.Records(), 2)
	assert.Len(t, cache.stored.Records, 2)

	oldSession := stats.SessionID
	agg.Reset(ctx)
	assert.Empty(t, agg.Records())
	assert.True(t, agg.TotalVolume().IsZero())
	assert.NotEqual(t, oldSession, agg.Stats().SessionID)
	assert.Nil(t, cache.stored)
}

func TestConcurrentRecording(t *testing.T) {
	agg, _ := newTestAggregator(&fakeCache{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				agg.RecordTransaction(ctx, "rA", "TWN", decimal.NewFromInt(1))
			}
		}()
	}
	wg.Wait()

	rec, ok := agg.Record("rA")
	require.True(t, ok)
	assert.Equal(t, int64(200), rec.TransactionCount)
	assert.True(t, rec.CumulativeVolume.Equal(decimal.NewFromInt(200)))
}

func TestProcessTransactionCountsHashOnce(t *testing.T) {
	agg, _ := newTestAggregator(&fakeCache{})
	ctx := context.Background()
	env := payment("H1", "rSENDER", "rISSUER1", models.IssuedAmount("10", "XYZ", "rISSUER1"))

	assert.True(t, agg.ProcessTransaction(ctx, env))
	assert.False(t, agg.ProcessTransaction(ctx, env))
	assert.True(t, agg.Volume("rISSUER1").Equal(decimal.NewFromInt(10)))

	agg.Reset(ctx)
	assert.True(t, agg.ProcessTransaction(ctx, env))
}

func TestRestoredSessionSkipsCountedTransactions(t *testing.T) {
	cache := &fakeCache{}
	first, clk := newTestAggregator(cache)
	ctx := context.Background()
	env := payment("H1", "rSENDER", "rISSUER1", models.IssuedAmount("42", "XYZ", "rISSUER1"))
	require.True(t, first.ProcessTransaction(ctx, env))
	assert.Equal(t, []string{"H1"}, cache.stored.CountedHashes)

	second, _ := newTestAggregator(cache)
	second.now = func() time.Time { return clk.Now().Add(time.Hour) }
	require.True(t, second.Restore(ctx))

	assert.False(t, second.ProcessTransaction(ctx, env))
	assert.True(t, second.ProcessTransaction(ctx,
		payment("H2", "rSENDER", "rISSUER1", models.IssuedAmount("8", "XYZ", "rISSUER1"))))
	assert.True(t, second.Volume("rISSUER1").Equal(decimal.NewFromInt(50)))
}

func TestSessionSurvivesRestartWithFileCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "volume.db")

	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	cache, err := sqlite.NewVolumeCache(ctx, db, "xrpl_volume_cache")
	require.NoError(t, err)

	first, clk := newTestAggregator(cache)
	env := payment("H1", "rSENDER", "rISSUER1", models.IssuedAmount("42", "XYZ", "rISSUER1"))
	require.True(t, first.ProcessTransaction(ctx, env))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	cache, err = sqlite.NewVolumeCache(ctx, db, "xrpl_volume_cache")
	require.NoError(t, err)

	second, _ := newTestAggregator(cache)
	second.now = func() time.Time { return clk.Now().Add(2 * time.Hour) }
	require.True(t, second.Restore(ctx))
	assert.True(t, second.Volume("rISSUER1").Equal(decimal.NewFromInt(42)))
	assert.False(t, second.ProcessTransaction(ctx, env))
}
