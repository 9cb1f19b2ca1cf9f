package poller

import (
	// Go Internal Packages
	"context"
	"sort"
	"sync"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"go.uber.org/zap"
)

// Fetcher is the part of the ledger client the poller needs.
type Fetcher interface {
	FetchAccountTransactions(ctx context.Context, address string, limit int) []models.Envelope
}

// Handler receives every envelope the poller has not forwarded before.
type Handler func(ctx context.Context, env models.Envelope)

type Config struct {
	Interval          time.Duration
	PaymentInterval   time.Duration
	InitialDelay      time.Duration
	BatchLimit        int
	PaymentBatchLimit int
	SeenCapacity      int
}

// Poller runs two cadences over the tracked addresses: a general one that
// forwards every kind, payments first, and a faster one that forwards
// payments only. Both share one seen set.
type Poller struct {
	fetcher   Fetcher
	handler   Handler
	addresses []string
	config    Config
	logger    *zap.Logger
	seen      *seenSet
}

func New(fetcher Fetcher, addresses []string, handler Handler, conf Config, logger *zap.Logger) *Poller {
	if conf.Interval <= 0 {
		conf.Interval = 10 * time.Second
	}
	if conf.PaymentInterval <= 0 {
		conf.PaymentInterval = max(conf.Interval/2, 5*time.Second)
	}
	if conf.BatchLimit <= 0 {
		conf.BatchLimit = 10
	}
	if conf.PaymentBatchLimit <= 0 {
		conf.PaymentBatchLimit = 5
	}
	addrs := make([]string, len(addresses))
	copy(addrs, addresses)

	return &Poller{
		fetcher:   fetcher,
		handler:   handler,
		addresses: addrs,
		config:    conf,
		logger:    logger,
		seen:      newSeenSet(conf.SeenCapacity),
	}
}

// Start launches both cadences. The returned function cancels them and waits
// for any in-flight cycle to finish; calling it again does nothing.
func (p *Poller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.runMain(ctx)
	}()
	go func() {
		defer wg.Done()
		p.runPayments(ctx)
	}()

	p.logger.Info("poller started",
		zap.Int("addresses", len(p.addresses)),
		zap.Duration("interval", p.config.Interval),
		zap.Duration("payment_interval", p.config.PaymentInterval))

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			p.logger.Info("poller stopped")
		})
	}
}

func (p *Poller) runMain(ctx context.Context) {
	first := time.NewTimer(p.config.InitialDelay)
	defer first.Stop()
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-first.C:
			p.PollOnce(ctx)
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

func (p *Poller) runPayments(ctx context.Context) {
	ticker := time.NewTicker(p.config.PaymentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollPaymentsOnce(ctx)
		}
	}
}

// PollOnce runs one general cycle over every address.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, addr := range p.addresses {
		if ctx.Err() != nil {
			return
		}
		p.pollAddress(ctx, addr, p.config.BatchLimit, false)
	}
}

// PollPaymentsOnce runs one payment-only cycle over every address.
func (p *Poller) PollPaymentsOnce(ctx context.Context) {
	for _, addr := range p.addresses {
		if ctx.Err() != nil {
			return
		}
		p.pollAddress(ctx, addr, p.config.PaymentBatchLimit, true)
	}
}

func (p *Poller) pollAddress(ctx context.Context, addr string, limit int, paymentsOnly bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked", zap.String("address", addr), zap.Any("panic", r))
		}
	}()

	envelopes := p.fetcher.FetchAccountTransactions(ctx, addr, limit)
	if !paymentsOnly {
		sort.SliceStable(envelopes, func(i, j int) bool {
			return isPayment(envelopes[i]) && !isPayment(envelopes[j])
		})
	}

	forwarded := 0
	for _, env := range envelopes {
		if env.Hash == "" || env.Transaction == nil {
			continue
		}
		if paymentsOnly && !isPayment(env) {
			continue
		}
		if !p.seen.markNew(env.Hash) {
			continue
		}
		p.forward(ctx, env)
		forwarded++
	}

	if forwarded > 0 {
		p.logger.Debug("forwarded transactions",
			zap.String("address", addr), zap.Int("count", forwarded), zap.Bool("payments_only", paymentsOnly))
	}
}

func (p *Poller) forward(ctx context.Context, env models.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("transaction handler panicked", zap.String("hash", env.Hash), zap.Any("panic", r))
		}
	}()
	p.handler(ctx, env)
}

// SeenCount is the number of hashes currently remembered.
func (p *Poller) SeenCount() int { return p.seen.len() }

func isPayment(env models.Envelope) bool {
	return env.Transaction != nil && env.Transaction.TransactionType == string(models.KindPayment)
}
