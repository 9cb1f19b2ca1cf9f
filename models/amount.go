package models

import (
	// Go Internal Packages
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	// External Packages
	"github.com/shopspring/decimal"
)

// NativeCurrency is the display code for amounts encoded in drops.
const NativeCurrency = "XRP"

var dropsPerXRP = decimal.New(1, 6)

type AmountKind uint8

const (
	AmountUnset AmountKind = iota
	AmountNative
	AmountIssued
)

// Amount is the ledger's polymorphic amount field. The wire form is either a
// string of drops or an object {currency, issuer, value}.
type Amount struct {
	Kind     AmountKind
	Value    decimal.Decimal
	Currency string
	Issuer   string
}

func NativeAmount(drops string) Amount {
	v, err := decimal.NewFromString(drops)
	if err != nil {
		return Amount{}
	}
	return Amount{Kind: AmountNative, Value: v.Div(dropsPerXRP), Currency: NativeCurrency}
}

func IssuedAmount(value, currency, issuer string) Amount {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}
	}
	return Amount{Kind: AmountIssued, Value: v, Currency: currency, Issuer: issuer}
}

func (a Amount) IsSet() bool { return a.Kind != AmountUnset }

type issuedWire struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
	Value    string `json:"value"`
}

// UnmarshalJSON never fails on shape problems: anything it cannot read is
// left Unset so one odd field does not discard the whole envelope.
func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = Amount{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var drops string
		if err := json.Unmarshal(b, &drops); err == nil {
			*a = NativeAmount(drops)
		}
	case '{':
		var w issuedWire
		if err := json.Unmarshal(b, &w); err == nil && w.Value != "" {
			*a = IssuedAmount(w.Value, w.Currency, w.Issuer)
		}
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AmountNative:
		return json.Marshal(a.Value.Mul(dropsPerXRP).Truncate(0).String())
	case AmountIssued:
		return json.Marshal(issuedWire{Currency: a.Currency, Issuer: a.Issuer, Value: a.Value.String()})
	default:
		return []byte("null"), nil
	}
}

// CurrencyCode decodes a 40 character hex currency code into its ASCII form.
// Standard three letter codes and undecodable values come back unchanged.
func CurrencyCode(code string) string {
	if len(code) != 40 {
		return code
	}
	raw, err := hex.DecodeString(code)
	if err != nil {
		return code
	}
	decoded := strings.TrimRight(string(raw), "\x00")
	if decoded == "" {
		return code
	}
	for _, r := range decoded {
		if r < 0x20 || r > 0x7e {
			return code
		}
	}
	return decoded
}
