package notifier

import (
	"math/big"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
)

type EventKind string

const (
	EventKindTransaction      EventKind = "transaction"
	EventKindTokenTransaction EventKind = "token_transaction"
)

// Event is the webhook body posted to a service callback.
type Event struct {
	Kind            EventKind                  `json:"kind"`
	Id              string                     `json:"id"`
	ServiceUid      string                     `json:"service_uid"`
	Account         string                     `json:"account"`
	Counterparty    string                     `json:"counterparty,omitempty"`
	TokenWallet     string                     `json:"token_wallet,omitempty"`
	Root            string                     `json:"root,omitempty"`
	MessageHash     string                     `json:"message_hash"`
	TransactionHash string                     `json:"transaction_hash,omitempty"`
	LogicalTime     uint64                     `json:"logical_time,omitempty"`
	Value           string                     `json:"value"`
	Fee             string                     `json:"fee"`
	Direction       database.Direction         `json:"direction"`
	Status          database.TransactionStatus `json:"status"`
	Aborted         bool                       `json:"aborted"`
	Error           string                     `json:"error,omitempty"`
	CreatedAt       uint64                     `json:"created_at"`
}

func TransactionEvent(tx *database.Transactions) *Event {
	event := &Event{
		Kind:        EventKindTransaction,
		Id:          tx.GUID.String(),
		ServiceUid:  tx.ServiceUid,
		Account:     tx.Account.String(),
		MessageHash: tx.MessageHash.Hex(),
		LogicalTime: tx.LogicalTime,
		Value:       amount(tx.Value),
		Fee:         amount(tx.Fee),
		Direction:   tx.Direction,
		Status:      tx.Status,
		Aborted:     tx.Aborted,
		Error:       tx.Error,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.Counterparty != nil {
		event.Counterparty = tx.Counterparty.String()
	}
	if tx.LogicalTime != 0 {
		event.TransactionHash = tx.TransactionHash.Hex()
	}
	return event
}

func TokenTransactionEvent(tx *database.TokenTransactions) *Event {
	event := &Event{
		Kind:        EventKindTokenTransaction,
		Id:          tx.GUID.String(),
		ServiceUid:  tx.ServiceUid,
		Account:     tx.Account.String(),
		TokenWallet: tx.TokenWallet.String(),
		Root:        tx.Root.String(),
		MessageHash: tx.MessageHash.Hex(),
		LogicalTime: tx.LogicalTime,
		Value:       amount(tx.Amount),
		Fee:         amount(tx.Fee),
		Direction:   tx.Direction,
		Status:      tx.Status,
		Aborted:     tx.Aborted,
		Error:       tx.Error,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.Counterparty != nil {
		event.Counterparty = tx.Counterparty.String()
	}
	if tx.LogicalTime != 0 {
		event.TransactionHash = tx.TransactionHash.Hex()
	}
	return event
}

func amount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
