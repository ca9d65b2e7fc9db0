package ledger

import (
	"context"
	"errors"
)

var ErrAccountNotFound = errors.New("account not found on ledger")

// TransactionSink receives every transaction of a subscribed account. Calls for
// one account are sequential and in ledger order.
type TransactionSink interface {
	HandleTransaction(tx *RawTransaction)
}

// Engine is the ledger node connection: account streaming, message broadcast
// and contract state reads.
type Engine interface {
	Start(ctx context.Context) error
	Close() error
	Subscribe(ctx context.Context, accounts []Account, sink TransactionSink) error
	BroadcastMessage(ctx context.Context, dst Account, payload []byte) error
	GetContractState(ctx context.Context, account Account) (*ContractState, error)
}

// Metricer is the subset of gateway metrics recorded by the ledger package.
type Metricer interface {
	RecordPendingMessages(n int)
	RecordObserverQueueDepth(observer string, n int)
	RecordLedgerTransaction()
}

type noopMetricer struct{}

func (noopMetricer) RecordPendingMessages(int)            {}
func (noopMetricer) RecordObserverQueueDepth(string, int) {}
func (noopMetricer) RecordLedgerTransaction()             {}

var NoopMetrics Metricer = noopMetricer{}
