package composer

import (
	// Go Internal Packages
	"context"
	"sort"
	"sync"
	"time"

	// Local Packages
	models "rwa-stream/models"
	utils "rwa-stream/utils"

	// External Packages
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const supplyFetchConcurrency = 4

type VolumeSource interface {
	Records() []models.IssuerVolumeRecord
}

type SupplySource interface {
	IssuerSupply(ctx context.Context, address, currency string) (decimal.Decimal, error)
}

// Composer merges live volume with the configured issuer data and on-ledger
// supply for display.
type Composer struct {
	issuers  *models.IssuerSet
	volumes  VolumeSource
	supply   SupplySource
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	supplies map[string]decimal.Decimal
}

func New(issuers *models.IssuerSet, volumes VolumeSource, supply SupplySource, interval time.Duration, logger *zap.Logger) *Composer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Composer{
		issuers:  issuers,
		volumes:  volumes,
		supply:   supply,
		interval: interval,
		logger:   logger,
		supplies: make(map[string]decimal.Decimal),
	}
}

// Assets returns one view per tracked issuer in configuration order. Volume,
// count and last update are summed across all of the issuer's addresses.
func (c *Composer) Assets() []models.AssetView {
	byAddress := make(map[string]models.IssuerVolumeRecord)
	for _, rec := range c.volumes.Records() {
		byAddress[rec.Issuer] = rec
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	issuers := c.issuers.All()
	views := make([]models.AssetView, 0, len(issuers))
	for _, item := range issuers {
		view := models.AssetView{
			Name:     item.Name,
			Region:   item.Region,
			Currency: item.Currency,
			Issuers:  item.Issuer,
			Location: item.Location(),
			Volume:   decimal.Zero,
			Supply:   c.supplies[item.Name],
		}
		for _, addr := range item.Issuer {
			rec, ok := byAddress[addr]
			if !ok {
				continue
			}
			view.Volume = view.Volume.Add(rec.CumulativeVolume)
			view.TransactionCount += rec.TransactionCount
			if view.LastVolumeUpdate == nil || rec.LastUpdated.After(*view.LastVolumeUpdate) {
				updated := rec.LastUpdated
				view.LastVolumeUpdate = &updated
			}
		}
		view.MarketCap = MarketCap(item, view.Supply)
		views = append(views, view)
	}
	return views
}

// MarketCap values the on-ledger supply at the issuer's NAV and exchange
// rate, both defaulting to one. Without a known supply the configured
// reference amount is used.
func MarketCap(item models.TrackedIssuer, supply decimal.Decimal) decimal.Decimal {
	if !supply.IsPositive() {
		return item.Amount
	}
	nav := item.NavPrice
	if !nav.IsPositive() {
		nav = decimal.NewFromInt(1)
	}
	rate := item.ExchangeRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	return supply.Mul(nav).Mul(rate)
}

// Regional totals the asset views per region, largest volume first.
func (c *Composer) Regional() []models.RegionView {
	byRegion := make(map[string]*models.RegionView)
	var order []string
	for _, view := range c.Assets() {
		region := view.Region
		if region == "" {
			region = "Other"
		}
		rv, ok := byRegion[region]
		if !ok {
			rv = &models.RegionView{Region: region, Volume: decimal.Zero, MarketCap: decimal.Zero}
			byRegion[region] = rv
			order = append(order, region)
		}
		rv.Assets++
		rv.Volume = rv.Volume.Add(view.Volume)
		rv.TransactionCount += view.TransactionCount
		rv.MarketCap = rv.MarketCap.Add(view.MarketCap)
	}

	out := make([]models.RegionView, 0, len(order))
	for _, region := range order {
		out = append(out, *byRegion[region])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume.GreaterThan(out[j].Volume) })
	return out
}

// TotalMarketCap sums the market cap of every tracked issuer.
func (c *Composer) TotalMarketCap() decimal.Decimal {
	total := decimal.Zero
	for _, view := range c.Assets() {
		total = total.Add(view.MarketCap)
	}
	return total
}

// RefreshSupplies fetches the outstanding supply of every issuer. An issuer
// keeps its previous figure when every one of its addresses fails.
func (c *Composer) RefreshSupplies(ctx context.Context) {
	if c.supply == nil {
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]decimal.Decimal)
	)
	g := new(errgroup.Group)
	g.SetLimit(supplyFetchConcurrency)

	for _, item := range c.issuers.All() {
		item := item
		g.Go(func() error {
			total, ok := c.fetchSupply(ctx, item)
			if ok {
				mu.Lock()
				results[item.Name] = total
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	for name, supply := range results {
		c.supplies[name] = supply
	}
	c.mu.Unlock()

	c.logger.Info("refreshed issuer supplies", zap.Int("updated", len(results)), zap.Int("issuers", c.issuers.Len()))
}

func (c *Composer) fetchSupply(ctx context.Context, item models.TrackedIssuer) (decimal.Decimal, bool) {
	total := decimal.Zero
	ok := false
	for _, addr := range item.Issuer {
		supply, err := c.supply.IssuerSupply(ctx, addr, item.Currency)
		if err != nil {
			c.logger.Warn("failed to fetch issuer supply",
				zap.String("issuer", item.Name), zap.String("address", utils.ShortAddress(addr)), zap.Error(err))
			continue
		}
		total = total.Add(supply)
		ok = true
	}
	return total, ok
}

// Run refreshes supplies immediately and then on every interval. The
// returned function stops the loop and waits for it; it is safe to call
// more than once.
func (c *Composer) Run(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.RefreshSupplies(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RefreshSupplies(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
