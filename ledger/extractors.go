package ledger

import (
	"sync"

	"github.com/dapplink-labs/ton-wallet-gateway/common/bigint"
)

// TonTransactionExtractor turns native transfers into TonTransactionEvents:
// external messages become sent updates, value-carrying internal messages
// that are not token operations become receives.
type TonTransactionExtractor struct{}

func (TonTransactionExtractor) Extract(tx *RawTransaction) (TonTransactionEvent, bool) {
	in := tx.InMessage
	if in == nil {
		return nil, false
	}
	switch in.Kind {
	case MessageExternalIn:
		update := &SentTransactionUpdate{
			Account:         tx.Account,
			MessageHash:     in.Hash,
			TransactionHash: tx.Hash,
			LogicalTime:     tx.LogicalTime,
			Timestamp:       tx.Timestamp,
			Fee:             bigint.OrZero(tx.Fee),
			BalanceChange:   bigint.OrZero(tx.BalanceChange),
			Aborted:         tx.Aborted,
		}
		for _, out := range tx.OutMessages {
			if out.Kind != MessageInternal {
				continue
			}
			update.Outputs = append(update.Outputs, TransactionOutput{Destination: out.Dst, Value: bigint.OrZero(out.Value)})
		}
		return update, true
	case MessageInternal:
		if in.Op.IsToken() || bigint.OrZero(in.Value).Sign() <= 0 {
			return nil, false
		}
		return &ReceiveTransaction{
			Account:         tx.Account,
			Sender:          in.Src,
			MessageHash:     in.Hash,
			TransactionHash: tx.Hash,
			LogicalTime:     tx.LogicalTime,
			Timestamp:       tx.Timestamp,
			Value:           bigint.OrZero(in.Value),
			Fee:             bigint.OrZero(tx.Fee),
			BalanceChange:   bigint.OrZero(tx.BalanceChange),
			Comment:         in.Comment,
			Bounced:         in.Bounced,
			Aborted:         tx.Aborted,
		}, true
	}
	return nil, false
}

// TokenWallet links a token wallet contract to its owner and token root.
type TokenWallet struct {
	Address Account
	Owner   Account
	Root    Account
}

type TokenWalletLookup interface {
	LookupTokenWallet(address Account) (TokenWallet, bool)
}

// TokenWallets is the in-memory token wallet → owner index used by the token
// extractor. It is rebuilt from storage on startup.
type TokenWallets struct {
	mu      sync.RWMutex
	wallets map[Account]TokenWallet
}

func NewTokenWallets() *TokenWallets {
	return &TokenWallets{wallets: make(map[Account]TokenWallet)}
}

func (w *TokenWallets) Add(wallet TokenWallet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wallets[wallet.Address] = wallet
}

func (w *TokenWallets) LookupTokenWallet(address Account) (TokenWallet, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	wallet, ok := w.wallets[address]
	return wallet, ok
}

// TokenTransactionExtractor emits incoming token transfers credited to a
// known token wallet.
type TokenTransactionExtractor struct {
	Wallets TokenWalletLookup
}

func (e TokenTransactionExtractor) Extract(tx *RawTransaction) (TokenTransactionEvent, bool) {
	in := tx.InMessage
	if in == nil || in.Kind != MessageInternal || in.Op != OpTokenInternalTransfer || in.Token == nil {
		return TokenTransactionEvent{}, false
	}
	wallet, ok := e.Wallets.LookupTokenWallet(tx.Account)
	if !ok {
		return TokenTransactionEvent{}, false
	}
	return TokenTransactionEvent{
		Owner:           wallet.Owner,
		TokenWallet:     wallet.Address,
		Root:            wallet.Root,
		Counterparty:    in.Token.Counterparty,
		MessageHash:     in.Hash,
		TransactionHash: tx.Hash,
		LogicalTime:     tx.LogicalTime,
		Timestamp:       tx.Timestamp,
		Amount:          bigint.OrZero(in.Token.Amount),
		Direction:       DirectionIncoming,
		Aborted:         tx.Aborted,
	}, true
}

// WalletNotificationExtractor emits transfer notifications addressed to a token owner.
type WalletNotificationExtractor struct{}

func (WalletNotificationExtractor) Extract(tx *RawTransaction) (WalletNotification, bool) {
	in := tx.InMessage
	if in == nil || in.Kind != MessageInternal || in.Op != OpTokenTransferNotify || in.Token == nil || in.Src == nil {
		return WalletNotification{}, false
	}
	return WalletNotification{
		Owner:           tx.Account,
		TokenWallet:     *in.Src,
		Sender:          in.Token.Counterparty,
		Amount:          bigint.OrZero(in.Token.Amount),
		MessageHash:     in.Hash,
		TransactionHash: tx.Hash,
		LogicalTime:     tx.LogicalTime,
		Timestamp:       tx.Timestamp,
	}, true
}
