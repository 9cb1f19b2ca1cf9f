package models

import "time"

// Envelope is one transaction as returned by account_tx, before parsing.
// SourceIssuer is the polled address that yielded it; the same transaction
// can be discovered from either side.
type Envelope struct {
	Hash         string    `json:"hash"`
	Transaction  *TxBody   `json:"transaction"`
	Meta         *Meta     `json:"meta,omitempty"`
	SourceIssuer string    `json:"source_issuer"`
	Validated    bool      `json:"validated"`
	CloseTime    time.Time `json:"close_time,omitempty"`
}

// TxBody holds the transaction fields the parser reads. Fields absent from a
// given transaction kind stay at their zero value.
type TxBody struct {
	TransactionType string `json:"TransactionType"`
	Account         string `json:"Account"`
	Destination     string `json:"Destination,omitempty"`
	Amount          Amount `json:"Amount"`
	DeliverMax      Amount `json:"DeliverMax"`
	DeliverMin      Amount `json:"DeliverMin"`
	SendMax         Amount `json:"SendMax"`
	TakerPays       Amount `json:"TakerPays"`
	TakerGets       Amount `json:"TakerGets"`
	LimitAmount     Amount `json:"LimitAmount"`
	Hash            string `json:"hash,omitempty"`
	Date            int64  `json:"date,omitempty"`
}

type Meta struct {
	TransactionResult string         `json:"TransactionResult"`
	DeliveredAmount   Amount         `json:"delivered_amount"`
	AffectedNodes     []AffectedNode `json:"AffectedNodes"`
}

// AffectedNode has exactly one of its members set.
type AffectedNode struct {
	CreatedNode  *LedgerNode `json:"CreatedNode,omitempty"`
	ModifiedNode *LedgerNode `json:"ModifiedNode,omitempty"`
	DeletedNode  *LedgerNode `json:"DeletedNode,omitempty"`
}

func (n AffectedNode) Node() *LedgerNode {
	switch {
	case n.ModifiedNode != nil:
		return n.ModifiedNode
	case n.CreatedNode != nil:
		return n.CreatedNode
	default:
		return n.DeletedNode
	}
}

type LedgerNode struct {
	LedgerEntryType string      `json:"LedgerEntryType"`
	LedgerIndex     string      `json:"LedgerIndex"`
	FinalFields     *NodeFields `json:"FinalFields,omitempty"`
	PreviousFields  *NodeFields `json:"PreviousFields,omitempty"`
	NewFields       *NodeFields `json:"NewFields,omitempty"`
}

type NodeFields struct {
	Account   string `json:"Account,omitempty"`
	Balance   Amount `json:"Balance"`
	HighLimit Amount `json:"HighLimit"`
	LowLimit  Amount `json:"LowLimit"`
}
