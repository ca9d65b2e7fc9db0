package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/bigint"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

func unixTime(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func receivedStatus(aborted bool) database.TransactionStatus {
	if aborted {
		return database.TxStatusAborted
	}
	return database.TxStatusConfirmed
}

// CreateReceiveTransaction records a native transfer that reached a
// registered address. A transaction seen before is returned as stored and not
// reported again.
func (s *WalletService) CreateReceiveTransaction(ctx context.Context, event *ledger.ReceiveTransaction) (*database.Transactions, error) {
	address, err := s.resolveAddress(event.Account)
	if err != nil {
		return nil, fmt.Errorf("resolve receiver %s: %w", event.Account, err)
	}
	tx, created, err := s.db.Transactions.StoreTransaction(&database.Transactions{
		GUID:            newGuid(),
		ServiceUid:      address.ServiceUid,
		MessageHash:     event.MessageHash,
		TransactionHash: event.TransactionHash,
		Account:         event.Account,
		Counterparty:    event.Sender,
		Value:           bigint.OrZero(event.Value),
		Fee:             bigint.OrZero(event.Fee),
		BalanceChange:   bigint.OrZero(event.BalanceChange),
		LogicalTime:     event.LogicalTime,
		Direction:       database.DirectionIncoming,
		Status:          receivedStatus(event.Aborted),
		EventStatus:     database.EventStatusNew,
		Aborted:         event.Aborted,
		Bounce:          event.Bounced,
		Comment:         event.Comment,
		CreatedAt:       unixTime(event.Timestamp),
	})
	if err != nil {
		return nil, fmt.Errorf("store receive transaction: %w", err)
	}
	if !created {
		log.Debug("receive transaction already stored", "account", event.Account, "message", event.MessageHash)
		return tx, nil
	}
	log.Info("receive transaction", "service", tx.ServiceUid, "account", tx.Account, "value", tx.Value, "lt", tx.LogicalTime)
	return s.notifyTransaction(ctx, tx), nil
}

// UpdateSentTransaction applies the on-ledger outcome of an external message
// to every native and token send record waiting on it. Each group is notified
// as soon as its own update commits.
func (s *WalletService) UpdateSentTransaction(ctx context.Context, event *ledger.SentTransactionUpdate) error {
	update := database.SentUpdate{
		TransactionHash: event.TransactionHash,
		LogicalTime:     event.LogicalTime,
		Fee:             bigint.OrZero(event.Fee),
		BalanceChange:   bigint.OrZero(event.BalanceChange),
		Aborted:         event.Aborted,
	}
	txs, err := s.db.Transactions.ApplySentUpdate(event.Account, event.MessageHash, update)
	if err != nil {
		return fmt.Errorf("apply sent update: %w", err)
	}
	for i := range txs {
		s.notifyTransaction(ctx, &txs[i])
	}

	tokenTxs, err := s.db.TokenTransactions.ApplyTokenSentUpdate(event.Account, event.MessageHash, update)
	if err != nil {
		return fmt.Errorf("apply token sent update: %w", err)
	}
	for i := range tokenTxs {
		s.notifyTokenTransaction(ctx, &tokenTxs[i])
	}

	if len(txs)+len(tokenTxs) == 0 {
		log.Debug("sent update matches no send record", "account", event.Account, "message", event.MessageHash)
		return nil
	}
	log.Info("sent transaction updated", "account", event.Account, "message", event.MessageHash,
		"aborted", event.Aborted, "records", len(txs)+len(tokenTxs))
	return nil
}

// CreateReceiveTokenTransaction records a token transfer credited to a
// registered token wallet and adds it to the owner's balance.
func (s *WalletService) CreateReceiveTokenTransaction(ctx context.Context, event *ledger.TokenTransactionEvent) (*database.TokenTransactions, error) {
	balance, err := s.db.TokenBalances.QueryTokenBalance(event.Owner, event.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve token owner %s: %w", event.Owner, err)
	}

	var (
		tx      *database.TokenTransactions
		created bool
	)
	err = s.db.Transaction(func(db *database.DB) error {
		var storeErr error
		tx, created, storeErr = db.TokenTransactions.StoreTokenTransaction(&database.TokenTransactions{
			GUID:            newGuid(),
			ServiceUid:      balance.ServiceUid,
			MessageHash:     event.MessageHash,
			TransactionHash: event.TransactionHash,
			Account:         event.Owner,
			TokenWallet:     event.TokenWallet,
			Root:            event.Root,
			Counterparty:    event.Counterparty,
			Amount:          bigint.OrZero(event.Amount),
			Fee:             new(big.Int),
			LogicalTime:     event.LogicalTime,
			Direction:       database.Direction(event.Direction),
			Status:          receivedStatus(event.Aborted),
			EventStatus:     database.EventStatusNew,
			Aborted:         event.Aborted,
			CreatedAt:       unixTime(event.Timestamp),
		})
		if storeErr != nil {
			return storeErr
		}
		if !created || event.Aborted || event.Direction != ledger.DirectionIncoming {
			return nil
		}
		return db.TokenBalances.AddTokenBalance(event.Owner, event.Root, tx.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("store receive token transaction: %w", err)
	}
	if !created {
		log.Debug("token transaction already stored", "owner", event.Owner, "message", event.MessageHash)
		return tx, nil
	}
	log.Info("receive token transaction", "service", tx.ServiceUid, "owner", tx.Account, "root", tx.Root, "amount", tx.Amount)
	return s.notifyTokenTransaction(ctx, tx), nil
}

// HandleWalletNotification 处理代币到账通知：已登记的代币钱包由代币观察者记账，
// 未知钱包先向节点确认其 owner/root，再登记并按通知内容记账
func (s *WalletService) HandleWalletNotification(ctx context.Context, notification *ledger.WalletNotification) error {
	if _, ok := s.ledger.LookupTokenWallet(notification.TokenWallet); ok {
		return nil
	}
	address, err := s.resolveAddress(notification.Owner)
	if err != nil {
		return fmt.Errorf("resolve notified owner %s: %w", notification.Owner, err)
	}

	state, err := s.ledger.GetContractState(ctx, notification.TokenWallet)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		log.Warn("notification from missing token wallet", "wallet", notification.TokenWallet, "owner", notification.Owner)
		return nil
	}
	if err != nil {
		return err
	}
	if state.TokenOwner == nil || state.TokenRoot == nil || *state.TokenOwner != notification.Owner {
		log.Warn("notification from foreign contract ignored", "wallet", notification.TokenWallet, "owner", notification.Owner)
		return nil
	}

	wallet := ledger.TokenWallet{Address: notification.TokenWallet, Owner: notification.Owner, Root: *state.TokenRoot}
	if _, err := s.RegisterTokenWallet(ctx, address.ServiceUid, wallet); err != nil {
		return fmt.Errorf("register discovered token wallet: %w", err)
	}
	_, err = s.CreateReceiveTokenTransaction(ctx, &ledger.TokenTransactionEvent{
		Owner:           notification.Owner,
		TokenWallet:     notification.TokenWallet,
		Root:            wallet.Root,
		Counterparty:    notification.Sender,
		MessageHash:     notification.MessageHash,
		TransactionHash: notification.TransactionHash,
		LogicalTime:     notification.LogicalTime,
		Timestamp:       notification.Timestamp,
		Amount:          notification.Amount,
		Direction:       ledger.DirectionIncoming,
	})
	return err
}
