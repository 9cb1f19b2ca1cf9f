package ledger

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rippleEpoch is the zero point of ledger timestamps (2000-01-01 UTC).
const rippleEpoch = 946684800

const (
	linesPageLimit = 400
	maxLinesPages  = 50
)

type accountTxResult struct {
	Account      string           `json:"account"`
	Transactions []accountTxEntry `json:"transactions"`
}

// accountTxEntry covers both API versions: v1 nests the body under "tx"
// with the hash inside it, v2 uses "tx_json" and a top-level hash.
type accountTxEntry struct {
	Hash         string          `json:"hash"`
	TxJSON       json.RawMessage `json:"tx_json"`
	Tx           json.RawMessage `json:"tx"`
	Meta         json.RawMessage `json:"meta"`
	Validated    bool            `json:"validated"`
	CloseTimeISO string          `json:"close_time_iso"`
}

func (e accountTxEntry) envelope(source string) models.Envelope {
	env := models.Envelope{Hash: e.Hash, SourceIssuer: source, Validated: e.Validated}

	raw := e.TxJSON
	if len(raw) == 0 {
		raw = e.Tx
	}
	if len(raw) > 0 && raw[0] == '{' {
		var body models.TxBody
		if err := json.Unmarshal(raw, &body); err == nil {
			env.Transaction = &body
			if env.Hash == "" {
				env.Hash = body.Hash
			}
		}
	}

	// binary-mode metadata arrives as a hex string and is skipped
	if len(e.Meta) > 0 && e.Meta[0] == '{' {
		var meta models.Meta
		if err := json.Unmarshal(e.Meta, &meta); err == nil {
			env.Meta = &meta
		}
	}

	if t, err := time.Parse(time.RFC3339, e.CloseTimeISO); err == nil {
		env.CloseTime = t.UTC()
	} else if env.Transaction != nil && env.Transaction.Date > 0 {
		env.CloseTime = time.Unix(env.Transaction.Date+rippleEpoch, 0).UTC()
	}
	return env
}

// FetchAccountTransactions returns the most recent validated transactions
// touching address, newest first. It never fails: errors are logged and an
// empty slice is returned.
func (c *Client) FetchAccountTransactions(ctx context.Context, address string, limit int) []models.Envelope {
	if !c.IsConnected() {
		return []models.Envelope{}
	}

	raw, err := c.request(ctx, "account_tx", map[string]any{
		"account":          address,
		"limit":            limit,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"forward":          false,
	})
	if err != nil {
		c.logger.Error("failed to fetch account transactions", zap.String("account", address), zap.Error(err))
		return []models.Envelope{}
	}

	var res accountTxResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Error("failed to decode account_tx result", zap.String("account", address), zap.Error(err))
		return []models.Envelope{}
	}

	envelopes := make([]models.Envelope, 0, len(res.Transactions))
	for _, entry := range res.Transactions {
		envelopes = append(envelopes, entry.envelope(address))
	}
	return envelopes
}

type AccountInfo struct {
	Account    string        `json:"Account"`
	Balance    models.Amount `json:"Balance"`
	Flags      uint32        `json:"Flags"`
	OwnerCount uint32        `json:"OwnerCount"`
	Sequence   uint32        `json:"Sequence"`
}

// AccountInfo checks that address exists on the validated ledger.
func (c *Client) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	raw, err := c.request(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		AccountData AccountInfo `json:"account_data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res.AccountData, nil
}

type TrustLine struct {
	Account  string `json:"account"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	Limit    string `json:"limit"`
}

// AccountLines pages through every trust line of address.
func (c *Client) AccountLines(ctx context.Context, address string) ([]TrustLine, error) {
	var (
		lines  []TrustLine
		marker json.RawMessage
	)
	for page := 0; page < maxLinesPages; page++ {
		params := map[string]any{
			"account":      address,
			"ledger_index": "validated",
			"limit":        linesPageLimit,
		}
		if marker != nil {
			params["marker"] = marker
		}

		raw, err := c.request(ctx, "account_lines", params)
		if err != nil {
			return nil, err
		}

		var res struct {
			Lines  []TrustLine     `json:"lines"`
			Marker json.RawMessage `json:"marker"`
		}
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, err
		}
		lines = append(lines, res.Lines...)

		if len(res.Marker) == 0 || string(res.Marker) == "null" {
			break
		}
		marker = res.Marker
	}
	return lines, nil
}

// IssuerSupply returns the outstanding obligations of an issuer in currency:
// the sum of its negative trust line balances.
func (c *Client) IssuerSupply(ctx context.Context, address, currency string) (decimal.Decimal, error) {
	if _, err := c.AccountInfo(ctx, address); err != nil {
		return decimal.Zero, err
	}

	lines, err := c.AccountLines(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, line := range lines {
		if line.Currency != currency && models.CurrencyCode(line.Currency) != currency {
			continue
		}
		balance, err := decimal.NewFromString(line.Balance)
		if err != nil {
			continue
		}
		if balance.IsNegative() {
			total = total.Add(balance.Abs())
		}
	}
	return total, nil
}
