package models

import (
	// Go Internal Packages
	"encoding/json"
	"time"

	// External Packages
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindPayment      TransactionKind = "Payment"
	KindOfferCreate  TransactionKind = "OfferCreate"
	KindOfferCancel  TransactionKind = "OfferCancel"
	KindTrustSet     TransactionKind = "TrustSet"
	KindEscrowCreate TransactionKind = "EscrowCreate"
	KindEscrowFinish TransactionKind = "EscrowFinish"
	KindNFTokenMint  TransactionKind = "NFTokenMint"
	KindCheckCreate  TransactionKind = "CheckCreate"
	KindCheckCash    TransactionKind = "CheckCash"
	KindOther        TransactionKind = "Other"
)

// ParseKind maps a TransactionType onto the kinds the pipeline knows.
func ParseKind(transactionType string) TransactionKind {
	switch k := TransactionKind(transactionType); k {
	case KindPayment, KindOfferCreate, KindOfferCancel, KindTrustSet, KindEscrowCreate,
		KindEscrowFinish, KindNFTokenMint, KindCheckCreate, KindCheckCash:
		return k
	default:
		return KindOther
	}
}

// DisplayAmount is either a numeric quantity or, for kinds that move no
// value, a short label.
type DisplayAmount struct {
	Value decimal.Decimal
	Label string
}

func NumericAmount(v decimal.Decimal) DisplayAmount { return DisplayAmount{Value: v} }

func LabelAmount(label string) DisplayAmount { return DisplayAmount{Label: label} }

func (a DisplayAmount) IsNumeric() bool { return a.Label == "" }

// String renders numeric amounts with two decimals.
func (a DisplayAmount) String() string {
	if !a.IsNumeric() {
		return a.Label
	}
	return a.Value.StringFixed(2)
}

func (a DisplayAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *DisplayAmount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if v, err := decimal.NewFromString(s); err == nil {
		*a = NumericAmount(v)
		return nil
	}
	*a = LabelAmount(s)
	return nil
}

type Location struct {
	Lat  float64 `json:"lat" bson:"lat"`
	Lng  float64 `json:"lng" bson:"lng"`
	City string  `json:"city" bson:"city"`
}

type ParsedTransaction struct {
	ID             string          `json:"id"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         DisplayAmount   `json:"amount"`
	Currency       string          `json:"currency"`
	Kind           TransactionKind `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	Location       Location        `json:"location"`
	IssuerName     string          `json:"issuerName"`
	IssuerIdentity []string        `json:"issuer"`
	SourceIssuer   string          `json:"sourceIssuer,omitempty"`
}

// MongoTransaction is the archived form of a parsed transaction.
type MongoTransaction struct {
	TxID         string    `bson:"_id"`
	From         string    `bson:"from"`
	To           string    `bson:"to"`
	Amount       string    `bson:"amount"`
	Numeric      bool      `bson:"numeric"`
	Currency     string    `bson:"currency"`
	Kind         string    `bson:"type"`
	Timestamp    time.Time `bson:"timestamp"`
	Location     Location  `bson:"location"`
	IssuerName   string    `bson:"issuer_name"`
	Issuers      []string  `bson:"issuers"`
	SourceIssuer string    `bson:"source_issuer"`
}

func (t *ParsedTransaction) Transform() MongoTransaction {
	return MongoTransaction{
		TxID:         t.ID,
		From:         t.From,
		To:           t.To,
		Amount:       t.Amount.String(),
		Numeric:      t.Amount.IsNumeric(),
		Currency:     t.Currency,
		Kind:         string(t.Kind),
		Timestamp:    t.Timestamp,
		Location:     t.Location,
		IssuerName:   t.IssuerName,
		Issuers:      t.IssuerIdentity,
		SourceIssuer: t.SourceIssuer,
	}
}
