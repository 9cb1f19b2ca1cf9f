package models

import (
	// Local Packages
	utils "rwa-stream/utils"

	// External Packages
	"github.com/shopspring/decimal"
)

// TrackedIssuer is a configured asset or stablecoin. Issuer may list several
// accounts that all back the same asset.
type TrackedIssuer struct {
	Name         string          `koanf:"name" json:"name"`
	Region       string          `koanf:"region" json:"region"`
	City         string          `koanf:"city" json:"city"`
	Lat          float64         `koanf:"lat" json:"lat"`
	Lng          float64         `koanf:"lng" json:"lng"`
	Currency     string          `koanf:"currency" json:"currency"`
	Issuer       []string        `koanf:"issuer" json:"issuer"`
	Amount       decimal.Decimal `koanf:"amount" json:"amount"`
	NavPrice     decimal.Decimal `koanf:"nav_price" json:"navPrice"`
	ExchangeRate decimal.Decimal `koanf:"exchange_rate" json:"exchangeRate"`
}

func (t TrackedIssuer) HasAddress(addr string) bool {
	return addr != "" && utils.Contains(t.Issuer, addr)
}

func (t TrackedIssuer) Location() Location {
	return Location{Lat: t.Lat, Lng: t.Lng, City: t.City}
}

// IssuerSet is the immutable collection of tracked issuers for a session.
// A reload builds a new set.
type IssuerSet struct {
	issuers    []TrackedIssuer
	byAddress  map[string]int
	currencies map[string]string
	addresses  []string
}

func NewIssuerSet(issuers []TrackedIssuer) *IssuerSet {
	s := &IssuerSet{
		issuers:    make([]TrackedIssuer, len(issuers)),
		byAddress:  make(map[string]int),
		currencies: make(map[string]string),
	}
	copy(s.issuers, issuers)

	groups := make([][]string, 0, len(issuers))
	for i, item := range s.issuers {
		item.Issuer = utils.UniqueStrings(item.Issuer)
		s.issuers[i] = item
		groups = append(groups, item.Issuer)
		for _, addr := range item.Issuer {
			// later entries overwrite earlier ones, matching a plain
			// address -> currency table built by iteration
			s.currencies[addr] = item.Currency
			if _, ok := s.byAddress[addr]; !ok {
				s.byAddress[addr] = i
			}
		}
	}
	s.addresses = utils.UniqueStrings(groups...)
	return s
}

// All returns a copy of the issuers in configuration order.
func (s *IssuerSet) All() []TrackedIssuer {
	out := make([]TrackedIssuer, len(s.issuers))
	copy(out, s.issuers)
	return out
}

func (s *IssuerSet) Len() int { return len(s.issuers) }

// Addresses is the flattened, de-duplicated list of every issuing account.
func (s *IssuerSet) Addresses() []string {
	out := make([]string, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// FindByAddress returns the first configured issuer that lists addr.
func (s *IssuerSet) FindByAddress(addr string) (TrackedIssuer, bool) {
	i, ok := s.byAddress[addr]
	if !ok {
		return TrackedIssuer{}, false
	}
	return s.issuers[i], true
}

// CurrencyFor resolves the display currency code for an issuing account.
func (s *IssuerSet) CurrencyFor(addr string) (string, bool) {
	c, ok := s.currencies[addr]
	return c, ok
}
