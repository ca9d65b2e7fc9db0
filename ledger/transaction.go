package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type MessageKind uint8

const (
	MessageExternalIn MessageKind = iota + 1
	MessageInternal
	MessageExternalOut
)

func (k MessageKind) String() string {
	switch k {
	case MessageExternalIn:
		return "external_in"
	case MessageInternal:
		return "internal"
	case MessageExternalOut:
		return "external_out"
	default:
		return "unknown"
	}
}

// Opcode is the leading 32-bit operation tag of an internal message body.
type Opcode uint32

// Token (jetton) operations
const (
	OpNone                  Opcode = 0
	OpTokenTransfer         Opcode = 0x0f8a7ea5
	OpTokenTransferNotify   Opcode = 0x7362d09c
	OpTokenInternalTransfer Opcode = 0x178d4519
	OpTokenExcesses         Opcode = 0xd53276db
	OpTokenBurn             Opcode = 0x595f07bc
)

func (op Opcode) IsToken() bool {
	switch op {
	case OpTokenTransfer, OpTokenTransferNotify, OpTokenInternalTransfer, OpTokenExcesses, OpTokenBurn:
		return true
	}
	return false
}

// TokenPayload is the decoded body of a token operation. Counterparty is the
// destination owner for a transfer and the sending owner otherwise.
type TokenPayload struct {
	QueryID      uint64
	Amount       *big.Int
	Counterparty *Account
}

type Message struct {
	Hash    common.Hash
	Kind    MessageKind
	Src     *Account
	Dst     *Account
	Value   *big.Int
	Bounce  bool
	Bounced bool
	Op      Opcode
	Comment string
	Token   *TokenPayload
}

// RawTransaction is a transaction on a watched account as reported by the engine.
type RawTransaction struct {
	Account       Account
	Hash          common.Hash
	LogicalTime   uint64
	Timestamp     time.Time
	Aborted       bool
	Fee           *big.Int
	BalanceChange *big.Int
	InMessage     *Message
	OutMessages   []Message
}

// ExternalInHash returns the hash of the inbound external message, the key
// used to match the transaction against a pending send.
func (tx *RawTransaction) ExternalInHash() (common.Hash, bool) {
	if tx.InMessage == nil || tx.InMessage.Kind != MessageExternalIn {
		return common.Hash{}, false
	}
	return tx.InMessage.Hash, true
}

// ExternalMessage is an already signed and serialized message ready for broadcast.
type ExternalMessage struct {
	Dst      Account
	Hash     common.Hash
	Payload  []byte
	ExpireAt time.Time
}

type ContractState struct {
	Account             Account
	Balance             *big.Int
	LastTransactionHash common.Hash
	LastTransactionLt   uint64
	Timestamp           time.Time
	// Token wallet metadata, filled by the node when the account runs the token wallet code.
	TokenOwner *Account
	TokenRoot  *Account
}
