package parser

import (
	// Local Packages
	models "rwa-stream/models"
)

const (
	LabelTrustLine      = "Trust Line"
	LabelCancelled      = "Cancelled"
	LabelNFTMint        = "NFT Mint"
	LabelEscrowCreated  = "Escrow Created"
	LabelEscrowFinished = "Escrow Finished"
	LabelCheckCreated   = "Check Created"
	LabelUnknownAmount  = "Unknown Amount"
)

// extract resolves the display amount and currency for one transaction.
// ok is false when the record should be dropped.
func (p *Parser) extract(kind models.TransactionKind, tx *models.TxBody, meta *models.Meta, issuer models.TrackedIssuer) (models.DisplayAmount, string, bool) {
	var (
		amount   models.Amount
		fallback string
	)

	switch kind {
	case models.KindPayment:
		amount = firstSet(tx.Amount, tx.DeliverMax, deliveredAmount(meta))
		if !amount.IsSet() {
			amount = balanceDelta(meta, tx, issuer)
		}
		fallback = LabelUnknownAmount
	case models.KindOfferCreate:
		amount = firstSet(tx.TakerPays, tx.TakerGets)
		if !amount.IsSet() {
			amount = balanceDelta(meta, tx, issuer)
		}
		fallback = LabelUnknownAmount
	case models.KindCheckCash:
		amount = firstSet(tx.Amount, tx.DeliverMin, deliveredAmount(meta))
		if !amount.IsSet() {
			amount = balanceDelta(meta, tx, issuer)
		}
		fallback = LabelUnknownAmount
	case models.KindEscrowCreate:
		amount = tx.Amount
		fallback = LabelEscrowCreated
	case models.KindEscrowFinish:
		amount = balanceDelta(meta, tx, issuer)
		fallback = LabelEscrowFinished
	case models.KindCheckCreate:
		amount = tx.SendMax
		fallback = LabelCheckCreated
	case models.KindTrustSet:
		return models.LabelAmount(LabelTrustLine), issuer.Currency, true
	case models.KindOfferCancel:
		return models.LabelAmount(LabelCancelled), issuer.Currency, true
	case models.KindNFTokenMint:
		return models.LabelAmount(LabelNFTMint), issuer.Currency, true
	default:
		return models.DisplayAmount{}, "", false
	}

	if !amount.IsSet() {
		return models.LabelAmount(fallback), issuer.Currency, true
	}

	value := amount.Value.Abs()
	if value.StringFixed(2) == "0.00" {
		return models.DisplayAmount{}, "", false
	}
	return models.NumericAmount(value), p.currencyOf(amount, issuer), true
}

// currencyOf picks the display code: XRP for native amounts, otherwise the
// code configured for the amount's issuing account. An amount from an
// untracked issuer keeps its own code so the stablecoin filter drops it;
// labelling it with the tracked issuer's currency would book a foreign
// token as that stablecoin. The resolved issuer's currency is the last
// resort.
func (p *Parser) currencyOf(a models.Amount, issuer models.TrackedIssuer) string {
	if a.Kind == models.AmountNative {
		return models.NativeCurrency
	}
	if c, ok := p.issuers.CurrencyFor(a.Issuer); ok {
		return c
	}
	if a.Issuer != "" && a.Currency != "" {
		return models.CurrencyCode(a.Currency)
	}
	return issuer.Currency
}

func firstSet(amounts ...models.Amount) models.Amount {
	for _, a := range amounts {
		if a.IsSet() {
			return a
		}
	}
	return models.Amount{}
}

func deliveredAmount(meta *models.Meta) models.Amount {
	if meta == nil {
		return models.Amount{}
	}
	return meta.DeliveredAmount
}
