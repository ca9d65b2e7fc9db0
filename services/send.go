package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/common/bigint"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

func newGuid() uuid.UUID {
	return uuid.New()
}

func (s *WalletService) expireAt(requested time.Time) (time.Time, error) {
	now := time.Now()
	if requested.IsZero() {
		return now.Add(s.ttl), nil
	}
	if !requested.After(now) {
		return time.Time{}, fmt.Errorf("%w: message already expired at %s", ErrInvalidRequest, requested)
	}
	return requested, nil
}

func validateMessage(hash common.Hash, payload []byte) error {
	if hash == (common.Hash{}) {
		return fmt.Errorf("%w: missing message hash", ErrInvalidRequest)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty message payload", ErrInvalidRequest)
	}
	return nil
}

// CreateSendTransaction persists an outgoing transfer, broadcasts its signed
// message and reports the record to the service callback. A failed broadcast
// is recorded on the row, not returned; a resubmitted message hash returns
// the existing record without a second broadcast.
func (s *WalletService) CreateSendTransaction(ctx context.Context, req *SendRequest) (*database.Transactions, error) {
	if err := validateMessage(req.MessageHash, req.Payload); err != nil {
		return nil, err
	}
	expireAt, err := s.expireAt(req.ExpireAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedAddress(req.ServiceUid, req.Account); err != nil {
		return nil, err
	}

	tx, created, err := s.db.Transactions.StoreTransaction(&database.Transactions{
		GUID:          newGuid(),
		ServiceUid:    req.ServiceUid,
		MessageHash:   req.MessageHash,
		Account:       req.Account,
		Counterparty:  req.Recipient,
		Value:         bigint.OrZero(req.Value),
		Fee:           new(big.Int),
		BalanceChange: new(big.Int),
		Direction:     database.DirectionOutgoing,
		Status:        database.TxStatusNew,
		EventStatus:   database.EventStatusNew,
		Bounce:        req.Bounce,
		Comment:       req.Comment,
		ExpireAt:      uint64(expireAt.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("store send transaction: %w", err)
	}
	if !created {
		log.Warn("send transaction already exists", "service", req.ServiceUid, "account", req.Account, "message", req.MessageHash)
		return tx, nil
	}

	completion, err := s.ledger.SubmitMessage(ctx, &ledger.ExternalMessage{
		Dst:      req.Account,
		Hash:     req.MessageHash,
		Payload:  req.Payload,
		ExpireAt: expireAt,
	})
	if err != nil {
		log.Error("submit message fail", "account", req.Account, "message", req.MessageHash, "err", err)
		s.recordMessageStatus(ledger.MessageError.String())
		failed, updateErr := s.db.Transactions.FailPendingTransaction(tx.GUID, err.Error())
		if updateErr != nil {
			return nil, fmt.Errorf("record send failure: %w", updateErr)
		}
		if failed {
			tx.Status = database.TxStatusError
			tx.Error = err.Error()
		}
	} else {
		s.watch(completion, func(ctx context.Context, status ledger.MessageStatus) {
			s.settleTransaction(ctx, tx.GUID, status)
		})
	}
	return s.notifyTransaction(ctx, tx), nil
}

// CreateSendTokenTransaction is CreateSendTransaction for a token transfer
// through the owner's token wallet of req.Root.
func (s *WalletService) CreateSendTokenTransaction(ctx context.Context, req *TokenSendRequest) (*database.TokenTransactions, error) {
	if err := validateMessage(req.MessageHash, req.Payload); err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be positive", ErrInvalidRequest)
	}
	expireAt, err := s.expireAt(req.ExpireAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedAddress(req.ServiceUid, req.Owner); err != nil {
		return nil, err
	}
	balance, err := s.db.TokenBalances.QueryTokenBalance(req.Owner, req.Root)
	if err != nil {
		return nil, fmt.Errorf("token wallet of %s for root %s: %w", req.Owner, req.Root, err)
	}
	recipient := req.Recipient

	tx, created, err := s.db.TokenTransactions.StoreTokenTransaction(&database.TokenTransactions{
		GUID:         newGuid(),
		ServiceUid:   req.ServiceUid,
		MessageHash:  req.MessageHash,
		Account:      req.Owner,
		TokenWallet:  balance.TokenWallet,
		Root:         req.Root,
		Counterparty: &recipient,
		Amount:       req.Amount,
		Fee:          bigint.OrZero(req.Fee),
		Direction:    database.DirectionOutgoing,
		Status:       database.TxStatusNew,
		EventStatus:  database.EventStatusNew,
		ExpireAt:     uint64(expireAt.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("store send token transaction: %w", err)
	}
	if !created {
		log.Warn("send token transaction already exists", "service", req.ServiceUid, "owner", req.Owner, "message", req.MessageHash)
		return tx, nil
	}

	completion, err := s.ledger.SubmitMessage(ctx, &ledger.ExternalMessage{
		Dst:      req.Owner,
		Hash:     req.MessageHash,
		Payload:  req.Payload,
		ExpireAt: expireAt,
	})
	if err != nil {
		log.Error("submit token message fail", "owner", req.Owner, "message", req.MessageHash, "err", err)
		s.recordMessageStatus(ledger.MessageError.String())
		failed, updateErr := s.db.TokenTransactions.FailPendingTokenTransaction(tx.GUID, err.Error())
		if updateErr != nil {
			return nil, fmt.Errorf("record token send failure: %w", updateErr)
		}
		if failed {
			tx.Status = database.TxStatusError
			tx.Error = err.Error()
		}
	} else {
		s.watch(completion, func(ctx context.Context, status ledger.MessageStatus) {
			s.settleTokenTransaction(ctx, tx.GUID, status)
		})
	}
	return s.notifyTokenTransaction(ctx, tx), nil
}

// watch waits for the completion in the background; Close abandons it.
func (s *WalletService) watch(completion *ledger.Completion, settle func(ctx context.Context, status ledger.MessageStatus)) {
	s.tasks.Go(func() error {
		select {
		case status := <-completion.Done():
			s.recordMessageStatus(status.String())
			if status != ledger.MessageConfirmed {
				settle(s.resourceCtx, status)
			}
		case <-s.resourceCtx.Done():
		}
		return nil
	})
}

func settleError(status ledger.MessageStatus) string {
	if status == ledger.MessageExpired {
		return errMessageExpired
	}
	return errMessageDropped
}

// settleTransaction marks a send whose message never landed. The write only
// applies while the record is still New, so a sent update that lands between
// the read and the write wins and no failure callback goes out.
func (s *WalletService) settleTransaction(ctx context.Context, guid uuid.UUID, status ledger.MessageStatus) {
	tx, err := s.db.Transactions.QueryTransactionByGuid(guid)
	if err != nil {
		log.Error("query send transaction fail", "guid", guid, "err", err)
		return
	}
	if tx.Status != database.TxStatusNew {
		return
	}
	reason := settleError(status)
	failed, err := s.db.Transactions.FailPendingTransaction(guid, reason)
	if err != nil {
		log.Error("update send transaction fail", "guid", guid, "err", err)
		return
	}
	if !failed {
		log.Debug("send transaction settled by ledger first", "guid", guid, "status", status)
		return
	}
	log.Warn("send transaction not confirmed", "guid", guid, "message", tx.MessageHash, "status", status)
	tx.Status = database.TxStatusError
	tx.Error = reason
	s.notifyTransaction(ctx, tx)
}

func (s *WalletService) settleTokenTransaction(ctx context.Context, guid uuid.UUID, status ledger.MessageStatus) {
	tx, err := s.db.TokenTransactions.QueryTokenTransactionByGuid(guid)
	if err != nil {
		log.Error("query send token transaction fail", "guid", guid, "err", err)
		return
	}
	if tx.Status != database.TxStatusNew {
		return
	}
	reason := settleError(status)
	failed, err := s.db.TokenTransactions.FailPendingTokenTransaction(guid, reason)
	if err != nil {
		log.Error("update send token transaction fail", "guid", guid, "err", err)
		return
	}
	if !failed {
		log.Debug("send token transaction settled by ledger first", "guid", guid, "status", status)
		return
	}
	log.Warn("send token transaction not confirmed", "guid", guid, "message", tx.MessageHash, "status", status)
	tx.Status = database.TxStatusError
	tx.Error = reason
	s.notifyTokenTransaction(ctx, tx)
}

func (s *WalletService) recordMessageStatus(status string) {
	if s.metrics != nil {
		s.metrics.RecordMessageStatus(status)
	}
}
