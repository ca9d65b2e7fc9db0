package services

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownService  = errors.New("unknown service")
	ErrAddressNotOwned = errors.New("address is not registered by this service")
)

const (
	errMessageExpired = "message expired"
	errMessageDropped = "message dropped before confirmation"
)

// SendRequest is an already signed native transfer. Account is the sending
// wallet, which is also the destination of the external message.
type SendRequest struct {
	ServiceUid  string
	Account     ledger.Account
	Recipient   *ledger.Account
	Value       *big.Int
	Bounce      bool
	Comment     string
	MessageHash common.Hash
	Payload     []byte
	ExpireAt    time.Time
}

// TokenSendRequest is an already signed token transfer sent through the
// owner wallet; Fee is the native value attached to the transfer.
type TokenSendRequest struct {
	ServiceUid  string
	Owner       ledger.Account
	Root        ledger.Account
	Recipient   ledger.Account
	Amount      *big.Int
	Fee         *big.Int
	MessageHash common.Hash
	Payload     []byte
	ExpireAt    time.Time
}

type AddressBalance struct {
	Address             *database.Addresses      `json:"address"`
	Deployed            bool                     `json:"deployed"`
	Balance             *big.Int                 `json:"balance"`
	LastTransactionHash common.Hash              `json:"last_transaction_hash"`
	LastTransactionLt   uint64                   `json:"last_transaction_lt"`
	Tokens              []database.TokenBalances `json:"tokens"`
}
