package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

func (s *WalletService) GetTransactionByMessageHash(ctx context.Context, serviceUid string, account ledger.Account, messageHash common.Hash) (*database.Transactions, error) {
	return s.db.Transactions.QueryTransactionByMessageHash(serviceUid, account, messageHash)
}

func (s *WalletService) GetTransactionByHash(ctx context.Context, serviceUid string, transactionHash common.Hash) (*database.Transactions, error) {
	return s.db.Transactions.QueryTransactionByHash(serviceUid, transactionHash)
}

func (s *WalletService) GetTokenTransactionByMessageHash(ctx context.Context, serviceUid string, owner, root ledger.Account, messageHash common.Hash) (*database.TokenTransactions, error) {
	return s.db.TokenTransactions.QueryTokenTransactionByMessageHash(serviceUid, owner, root, messageHash)
}

// SearchEvents lists the service's transactions by event status; it is the
// replay entry point for callbacks that failed.
func (s *WalletService) SearchEvents(ctx context.Context, serviceUid string, filter database.EventFilter) ([]database.Transactions, int64, error) {
	txs, total, err := s.db.Transactions.QueryEvents(serviceUid, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("search events of %s: %w", serviceUid, err)
	}
	return txs, total, nil
}

// MarkEvent sets EventStatus=Notified after an out-of-band delivery. Status
// is left as it is.
func (s *WalletService) MarkEvent(ctx context.Context, serviceUid string, id uuid.UUID) (*database.Transactions, error) {
	tx, err := s.db.Transactions.QueryTransactionByGuid(id)
	if err != nil {
		return nil, err
	}
	if tx.ServiceUid != serviceUid {
		return nil, database.ErrRecordNotFound
	}
	if err := s.db.Transactions.UpdateEventStatus(id, database.EventStatusNotified); err != nil {
		return nil, fmt.Errorf("mark event %s: %w", id, err)
	}
	tx.EventStatus = database.EventStatusNotified
	return tx, nil
}

func (s *WalletService) SearchTokenEvents(ctx context.Context, serviceUid string, filter database.EventFilter) ([]database.TokenTransactions, int64, error) {
	txs, total, err := s.db.TokenTransactions.QueryTokenEvents(serviceUid, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("search token events of %s: %w", serviceUid, err)
	}
	return txs, total, nil
}

func (s *WalletService) MarkTokenEvent(ctx context.Context, serviceUid string, id uuid.UUID) (*database.TokenTransactions, error) {
	tx, err := s.db.TokenTransactions.QueryTokenTransactionByGuid(id)
	if err != nil {
		return nil, err
	}
	if tx.ServiceUid != serviceUid {
		return nil, database.ErrRecordNotFound
	}
	if err := s.db.TokenTransactions.UpdateTokenEventStatus(id, database.EventStatusNotified); err != nil {
		return nil, fmt.Errorf("mark token event %s: %w", id, err)
	}
	tx.EventStatus = database.EventStatusNotified
	return tx, nil
}
