package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Direction string

const (
	DirectionIncoming Direction = "Incoming"
	DirectionOutgoing Direction = "Outgoing"
)

// TonTransactionEvent is either *ReceiveTransaction or *SentTransactionUpdate.
type TonTransactionEvent interface {
	Direction() Direction
	tonTransactionEvent()
}

// ReceiveTransaction is a native value transfer that arrived at a watched account.
type ReceiveTransaction struct {
	Account         Account
	Sender          *Account
	MessageHash     common.Hash
	TransactionHash common.Hash
	LogicalTime     uint64
	Timestamp       time.Time
	Value           *big.Int
	Fee             *big.Int
	BalanceChange   *big.Int
	Comment         string
	Bounced         bool
	Aborted         bool
}

func (*ReceiveTransaction) Direction() Direction { return DirectionIncoming }
func (*ReceiveTransaction) tonTransactionEvent() {}

type TransactionOutput struct {
	Destination *Account
	Value       *big.Int
}

// SentTransactionUpdate reports the on-ledger outcome of an external message
// submitted for a watched account.
type SentTransactionUpdate struct {
	Account         Account
	MessageHash     common.Hash
	TransactionHash common.Hash
	LogicalTime     uint64
	Timestamp       time.Time
	Fee             *big.Int
	BalanceChange   *big.Int
	Outputs         []TransactionOutput
	Aborted         bool
}

func (*SentTransactionUpdate) Direction() Direction { return DirectionOutgoing }
func (*SentTransactionUpdate) tonTransactionEvent() {}

// TokenTransactionEvent is a token transfer credited to a known token wallet.
type TokenTransactionEvent struct {
	Owner           Account
	TokenWallet     Account
	Root            Account
	Counterparty    *Account
	MessageHash     common.Hash
	TransactionHash common.Hash
	LogicalTime     uint64
	Timestamp       time.Time
	Amount          *big.Int
	Direction       Direction
	Aborted         bool
}

// WalletNotification is a transfer notification received by a token owner.
type WalletNotification struct {
	Owner           Account
	TokenWallet     Account
	Sender          *Account
	Amount          *big.Int
	MessageHash     common.Hash
	TransactionHash common.Hash
	LogicalTime     uint64
	Timestamp       time.Time
}
