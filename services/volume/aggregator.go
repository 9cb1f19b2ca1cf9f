package volume

import (
	// Go Internal Packages
	"context"
	"sort"
	"sync"
	"time"

	// Local Packages
	models "rwa-stream/models"
	parser "rwa-stream/parser"

	// External Packages
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	minTradeAmount = decimal.New(1, -2)
	maxTradeAmount = decimal.New(1, 9)
)

// tradingKinds are the kinds counted as trading activity. Trust lines,
// escrows, checks and mints are shown but never add volume.
var tradingKinds = map[models.TransactionKind]bool{
	models.KindPayment:     true,
	models.KindOfferCreate: true,
	models.KindOfferCancel: true,
}

// Cache persists the aggregator state between restarts. Load returns nil and
// no error when nothing is stored.
type Cache interface {
	Load(ctx context.Context) (*models.VolumeSnapshot, error)
	Save(ctx context.Context, snapshot *models.VolumeSnapshot) error
	Clear(ctx context.Context) error
}

type Config struct {
	CacheExpiry time.Duration
	// CountedCapacity bounds how many recently counted hashes are remembered
	// and persisted with the snapshot.
	CountedCapacity int
}

const defaultCountedCapacity = 2000

// Aggregator keeps session-cumulative volume per issuing address: totals only
// grow from the start of the session (or of the restored session) until an
// explicit reset. The in-memory map is the source of truth and the cache is
// a restart aid.
type Aggregator struct {
	parser *parser.Parser
	cache  Cache
	config Config
	logger *zap.Logger
	now    func() time.Time

	// saveMu serialises updates with their cache write so snapshots reach the
	// cache in the order they were taken.
	saveMu sync.Mutex

	counted *lru.Cache[string, struct{}]

	mu           sync.RWMutex
	records      map[string]*models.IssuerVolumeRecord
	sessionID    string
	sessionStart time.Time
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(p *parser.Parser, cache Cache, conf Config, logger *zap.Logger, opts ...Option) *Aggregator {
	if conf.CacheExpiry <= 0 {
		conf.CacheExpiry = 24 * time.Hour
	}
	if conf.CountedCapacity <= 0 {
		conf.CountedCapacity = defaultCountedCapacity
	}
	// only fails for a non-positive size
	counted, _ := lru.New[string, struct{}](conf.CountedCapacity)
	a := &Aggregator{
		parser:  p,
		cache:   cache,
		config:  conf,
		logger:  logger,
		now:     time.Now,
		records: make(map[string]*models.IssuerVolumeRecord),
		counted: counted,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sessionID = uuid.NewString()
	a.sessionStart = a.now().UTC()
	return a
}

// Restore loads the cached session when it is younger than the expiry.
// Stale or unreadable caches are cleared. It reports whether state was
// restored.
func (a *Aggregator) Restore(ctx context.Context) bool {
	if a.cache == nil {
		return false
	}

	snap, err := a.cache.Load(ctx)
	if err != nil {
		a.logger.Warn("discarding unreadable volume cache", zap.Error(err))
		a.clearCache(ctx)
		return false
	}
	if snap == nil {
		return false
	}

	age := a.now().Sub(snap.WrittenAt)
	if snap.WrittenAt.IsZero() || age >= a.config.CacheExpiry {
		a.logger.Info("volume cache expired, starting fresh", zap.Duration("age", age))
		a.clearCache(ctx)
		return false
	}

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = make(map[string]*models.IssuerVolumeRecord, len(snap.Records))
	for _, rec := range snap.Records {
		if rec.Issuer == "" {
			continue
		}
		r := rec
		a.records[rec.Issuer] = &r
	}
	if snap.SessionID != "" {
		a.sessionID = snap.SessionID
	}
	if !snap.SessionStart.IsZero() {
		a.sessionStart = snap.SessionStart
	}
	a.counted.Purge()
	for _, hash := range snap.CountedHashes {
		a.counted.Add(hash, struct{}{})
	}

	a.logger.Info("restored volume cache",
		zap.Int("issuers", len(a.records)), zap.Duration("age", age), zap.String("session_id", a.sessionID))
	return true
}

// RecordTransaction adds amount to the running total for address. Amounts
// that are not positive are ignored.
func (a *Aggregator) RecordTransaction(ctx context.Context, address, currency string, amount decimal.Decimal) {
	if address == "" || !amount.IsPositive() {
		return
	}

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	rec, ok := a.records[address]
	if !ok {
		rec = &models.IssuerVolumeRecord{Issuer: address, Currency: currency}
		a.records[address] = rec
	}
	rec.CumulativeVolume = rec.CumulativeVolume.Add(amount)
	rec.TransactionCount++
	rec.LastUpdated = a.now().UTC()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.save(ctx, snap)
}

// ProcessTransaction re-parses env and records it when it is trading
// activity for a tracked issuer. It reports whether volume was recorded.
func (a *Aggregator) ProcessTransaction(ctx context.Context, env models.Envelope) bool {
	parsed := a.parser.Parse(env)
	if parsed == nil || !tradingKinds[parsed.Kind] || !parsed.Amount.IsNumeric() {
		return false
	}
	if len(parsed.IssuerIdentity) == 0 {
		return false
	}
	issuer, ok := a.parser.Issuers().FindByAddress(parsed.IssuerIdentity[0])
	if !ok {
		return false
	}

	relevant := parsed.Currency == issuer.Currency ||
		parsed.Currency == models.NativeCurrency ||
		parsed.Kind == models.KindOfferCreate
	if !relevant {
		return false
	}

	amount := parsed.Amount.Value
	if amount.LessThan(minTradeAmount) || amount.GreaterThan(maxTradeAmount) {
		a.logger.Debug("ignoring implausible amount", zap.String("hash", parsed.ID), zap.String("amount", amount.String()))
		return false
	}

	address := attributedAddress(issuer, parsed)
	if address == "" {
		return false
	}
	// a restored session already holds transactions the poller sees again
	if seen, _ := a.counted.ContainsOrAdd(parsed.ID, struct{}{}); seen {
		return false
	}
	a.RecordTransaction(ctx, address, issuer.Currency, amount)
	return true
}

// attributedAddress picks which of the issuer's accounts took part in the
// transaction, falling back to the first configured one.
func attributedAddress(issuer models.TrackedIssuer, tx *models.ParsedTransaction) string {
	switch {
	case issuer.HasAddress(tx.From):
		return tx.From
	case issuer.HasAddress(tx.To):
		return tx.To
	case len(issuer.Issuer) > 0:
		return issuer.Issuer[0]
	default:
		return ""
	}
}

func (a *Aggregator) Volume(address string) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if rec, ok := a.records[address]; ok {
		return rec.CumulativeVolume
	}
	return decimal.Zero
}

func (a *Aggregator) Record(address string) (models.IssuerVolumeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[address]
	if !ok {
		return models.IssuerVolumeRecord{}, false
	}
	return *rec, true
}

// Records lists every record by descending volume.
func (a *Aggregator) Records() []models.IssuerVolumeRecord {
	a.mu.RLock()
	out := make([]models.IssuerVolumeRecord, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, *rec)
	}
	a.mu.RUnlock()

	sortByVolume(out)
	return out
}

func (a *Aggregator) TotalVolume() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := decimal.Zero
	for _, rec := range a.records {
		total = total.Add(rec.CumulativeVolume)
	}
	return total
}

func (a *Aggregator) Stats() models.VolumeStats {
	records := a.Records()

	a.mu.RLock()
	stats := models.VolumeStats{
		TotalVolume:    decimal.Zero,
		SessionID:      a.sessionID,
		SessionStart:   a.sessionStart,
		SessionMinutes: int64(a.now().Sub(a.sessionStart) / time.Minute),
	}
	a.mu.RUnlock()

	for _, rec := range records {
		stats.TotalVolume = stats.TotalVolume.Add(rec.CumulativeVolume)
		stats.TotalTransactions += rec.TransactionCount
		if rec.CumulativeVolume.IsPositive() {
			stats.ActiveIssuers++
		}
	}
	if len(records) > 0 {
		top := records[0]
		stats.TopIssuer = &top
	}
	return stats
}

// Snapshot returns the current state in its persisted form.
func (a *Aggregator) Snapshot() models.VolumeSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *a.snapshotLocked()
}

// Reset drops every record, starts a new session and clears the cache.
func (a *Aggregator) Reset(ctx context.Context) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	a.records = make(map[string]*models.IssuerVolumeRecord)
	a.sessionID = uuid.NewString()
	a.sessionStart = a.now().UTC()
	a.mu.Unlock()
	a.counted.Purge()

	a.clearCache(ctx)
	a.logger.Info("volume data reset")
}

// ClearIssuer removes one address's record. It reports whether the address
// had one.
func (a *Aggregator) ClearIssuer(ctx context.Context, address string) bool {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if _, ok := a.records[address]; !ok {
		a.mu.Unlock()
		return false
	}
	delete(a.records, address)
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.save(ctx, snap)
	return true
}

func (a *Aggregator) snapshotLocked() *models.VolumeSnapshot {
	records := make([]models.IssuerVolumeRecord, 0, len(a.records))
	for _, rec := range a.records {
		records = append(records, *rec)
	}
	sortByVolume(records)
	return &models.VolumeSnapshot{
		Records:       records,
		CountedHashes: a.counted.Keys(),
		SessionID:     a.sessionID,
		SessionStart:  a.sessionStart,
		WrittenAt:     a.now().UTC(),
	}
}

func (a *Aggregator) save(ctx context.Context, snap *models.VolumeSnapshot) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Save(ctx, snap); err != nil {
		a.logger.Error("failed to persist volume cache", zap.Error(err))
	}
}

func (a *Aggregator) clearCache(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Clear(ctx); err != nil {
		a.logger.Error("failed to clear volume cache", zap.Error(err))
	}
}

func sortByVolume(records []models.IssuerVolumeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if c := records[i].CumulativeVolume.Cmp(records[j].CumulativeVolume); c != 0 {
			return c > 0
		}
		return records[i].Issuer < records[j].Issuer
	})
}
