package models

import (
	// Go Internal Packages
	"encoding/json"
	"time"

	// Local Packages
	errors "rwa-stream/errors"

	// External Packages
	"github.com/shopspring/decimal"
)

// IssuerVolumeRecord is the running total for one issuing address.
type IssuerVolumeRecord struct {
	Issuer           string          `json:"issuer"`
	Currency         string          `json:"currency"`
	CumulativeVolume decimal.Decimal `json:"sessionVolume"`
	TransactionCount int64           `json:"transactionCount"`
	LastUpdated      time.Time       `json:"lastUpdated"`
}

// VolumeSnapshot is what the aggregator persists to its cache.
type VolumeSnapshot struct {
	Records      []IssuerVolumeRecord `json:"volumeData"`
	SessionID    string               `json:"sessionId"`
	SessionStart time.Time            `json:"sessionStartTime"`
	WrittenAt    time.Time            `json:"timestamp"`

	// CountedHashes lists the most recently counted transactions, oldest
	// first, so a restored session does not count them twice.
	CountedHashes []string `json:"countedHashes,omitempty"`
}

type VolumeStats struct {
	TotalVolume       decimal.Decimal     `json:"totalVolume"`
	ActiveIssuers     int                 `json:"activeIssuers"`
	TotalTransactions int64               `json:"totalTransactions"`
	TopIssuer         *IssuerVolumeRecord `json:"topIssuer"`
	SessionID         string              `json:"sessionId"`
	SessionStart      time.Time           `json:"sessionStartTime"`
	SessionMinutes    int64               `json:"sessionMinutes"`
}

// AssetView is one tracked issuer merged with its live volume and supply.
type AssetView struct {
	Name             string          `json:"name"`
	Region           string          `json:"region"`
	Currency         string          `json:"currency"`
	Issuers          []string        `json:"issuer"`
	Location         Location        `json:"location"`
	Volume           decimal.Decimal `json:"volume24h"`
	TransactionCount int64           `json:"transactionCount"`
	LastVolumeUpdate *time.Time      `json:"lastVolumeUpdate"`
	Supply           decimal.Decimal `json:"supply"`
	MarketCap        decimal.Decimal `json:"marketCap"`
}

// ExpiryKey is the companion key holding the write time of a cached snapshot.
func ExpiryKey(cacheKey string) string { return cacheKey + "_expiry" }

func EncodeSnapshot(s *VolumeSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses a cached snapshot. Anything unreadable is reported
// as an Invalid error so callers can discard the entry.
func DecodeSnapshot(data []byte) (*VolumeSnapshot, error) {
	var s VolumeSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.E(errors.Invalid, "corrupted volume cache", err)
	}
	return &s, nil
}

// RegionView totals the assets of one region.
type RegionView struct {
	Region           string          `json:"region"`
	Assets           int             `json:"assets"`
	Volume           decimal.Decimal `json:"volume24h"`
	TransactionCount int64           `json:"transactionCount"`
	MarketCap        decimal.Decimal `json:"marketCap"`
}
