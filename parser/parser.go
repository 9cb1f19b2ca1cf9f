package parser

import (
	// Go Internal Packages
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"go.uber.org/zap"
)

const defaultDestination = "Market"

// Parser turns envelopes into display records for the tracked issuers. Parse
// is safe for concurrent use; the issuer set is never mutated.
type Parser struct {
	issuers *models.IssuerSet
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Parser)

// WithClock overrides the timestamp source used when an envelope carries no
// close time.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

func New(issuers *models.IssuerSet, logger *zap.Logger, opts ...Option) *Parser {
	p := &Parser{issuers: issuers, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) Issuers() *models.IssuerSet { return p.issuers }

// Parse returns nil for anything that should not be shown: malformed
// envelopes, transactions touching no tracked issuer, unsupported kinds and
// zero amounts. It never panics.
func (p *Parser) Parse(env models.Envelope) (parsed *models.ParsedTransaction) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("failed to parse transaction", zap.String("hash", env.Hash), zap.Any("panic", r))
			parsed = nil
		}
	}()

	tx := env.Transaction
	hash := env.Hash
	if tx != nil && hash == "" {
		hash = tx.Hash
	}
	if tx == nil || hash == "" {
		p.logger.Debug("skipping malformed envelope", zap.String("hash", hash), zap.String("source", env.SourceIssuer))
		return nil
	}

	issuer, ok := p.resolveIssuer(tx)
	if !ok {
		return nil
	}

	kind := models.ParseKind(tx.TransactionType)
	amount, currency, ok := p.extract(kind, tx, env.Meta, issuer)
	if !ok {
		return nil
	}

	to := tx.Destination
	if to == "" {
		to = defaultDestination
	}
	ts := env.CloseTime
	if ts.IsZero() {
		ts = p.now()
	}
	identity := make([]string, len(issuer.Issuer))
	copy(identity, issuer.Issuer)

	return &models.ParsedTransaction{
		ID:             hash,
		From:           tx.Account,
		To:             to,
		Amount:         amount,
		Currency:       currency,
		Kind:           kind,
		Timestamp:      ts.UTC(),
		Location:       issuer.Location(),
		IssuerName:     issuer.Name,
		IssuerIdentity: identity,
		SourceIssuer:   env.SourceIssuer,
	}
}

// resolveIssuer prefers the issuer embedded in a structured amount over the
// sender and receiver: issued-currency transfers often move between two
// untracked accounts.
func (p *Parser) resolveIssuer(tx *models.TxBody) (models.TrackedIssuer, bool) {
	for _, a := range []models.Amount{
		tx.Amount, tx.DeliverMax, tx.SendMax, tx.DeliverMin,
		tx.TakerPays, tx.TakerGets, tx.LimitAmount,
	} {
		if a.Kind != models.AmountIssued {
			continue
		}
		if issuer, ok := p.issuers.FindByAddress(a.Issuer); ok {
			return issuer, true
		}
	}
	if issuer, ok := p.issuers.FindByAddress(tx.Account); ok {
		return issuer, true
	}
	return p.issuers.FindByAddress(tx.Destination)
}
