package parser

import (
	// Local Packages
	models "rwa-stream/models"
)

const (
	entryRippleState = "RippleState"
	entryAccountRoot = "AccountRoot"
)

// balanceDelta searches the affected ledger entries for the largest balance
// change. Trust lines involving the issuer win; otherwise the largest native
// balance change of the sender or receiver is used.
func balanceDelta(meta *models.Meta, tx *models.TxBody, issuer models.TrackedIssuer) models.Amount {
	if meta == nil {
		return models.Amount{}
	}

	var (
		bestLine   models.Amount
		bestNative models.Amount
	)
	for _, affected := range meta.AffectedNodes {
		node := affected.Node()
		if node == nil {
			continue
		}

		switch node.LedgerEntryType {
		case entryRippleState:
			final, prev := nodeBalances(node)
			lineIssuer := lineParty(final, issuer)
			if lineIssuer == "" {
				continue
			}
			delta := final.Balance.Value.Sub(prev.Balance.Value).Abs()
			if delta.GreaterThan(bestLine.Value) {
				currency := models.CurrencyCode(final.Balance.Currency)
				bestLine = models.Amount{Kind: models.AmountIssued, Value: delta, Currency: currency, Issuer: lineIssuer}
			}
		case entryAccountRoot:
			final, prev := nodeBalances(node)
			if final.Account == "" || (final.Account != tx.Account && final.Account != tx.Destination) {
				continue
			}
			if prev.Balance.Kind != models.AmountNative && final.Balance.Kind != models.AmountNative {
				continue
			}
			delta := final.Balance.Value.Sub(prev.Balance.Value).Abs()
			if delta.GreaterThan(bestNative.Value) {
				bestNative = models.Amount{Kind: models.AmountNative, Value: delta, Currency: models.NativeCurrency}
			}
		}
	}

	if bestLine.IsSet() {
		return bestLine
	}
	return bestNative
}

// nodeBalances returns the entry's final state and the state before the
// transaction. A created entry has zero before; a previous state missing a
// balance means the balance did not change.
func nodeBalances(node *models.LedgerNode) (final, prev models.NodeFields) {
	switch {
	case node.NewFields != nil:
		final = *node.NewFields
		prev = models.NodeFields{Account: final.Account}
		return final, prev
	case node.FinalFields != nil:
		final = *node.FinalFields
	}
	prev = final
	if node.PreviousFields != nil && node.PreviousFields.Balance.IsSet() {
		prev.Balance = node.PreviousFields.Balance
	}
	return final, prev
}

// lineParty returns the tracked address on either side of a trust line, or
// the empty string when neither side is tracked.
func lineParty(fields models.NodeFields, issuer models.TrackedIssuer) string {
	for _, limit := range []models.Amount{fields.HighLimit, fields.LowLimit} {
		if issuer.HasAddress(limit.Issuer) {
			return limit.Issuer
		}
	}
	return ""
}
