package database

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// TokenTransactions 代币收发记录，Account 为代币持有人地址，Root 为代币合约
type TokenTransactions struct {
	GUID            uuid.UUID         `gorm:"primaryKey" json:"guid"`
	ServiceUid      string            `gorm:"column:service_uid" json:"service_uid"`
	MessageHash     common.Hash       `gorm:"column:message_hash;serializer:bytes" json:"message_hash"`
	TransactionHash common.Hash       `gorm:"column:transaction_hash;serializer:bytes" json:"transaction_hash"`
	Account         ledger.Account    `gorm:"column:account;serializer:account" json:"account"`
	TokenWallet     ledger.Account    `gorm:"column:token_wallet;serializer:account" json:"token_wallet"`
	Root            ledger.Account    `gorm:"column:root;serializer:account" json:"root"`
	Counterparty    *ledger.Account   `gorm:"column:counterparty;serializer:account" json:"counterparty,omitempty"`
	Amount          *big.Int          `gorm:"serializer:u256;column:amount" json:"amount"`
	Fee             *big.Int          `gorm:"serializer:u256;column:fee" json:"fee"`
	LogicalTime     uint64            `gorm:"column:logical_time" json:"logical_time"`
	Direction       Direction         `gorm:"column:direction" json:"direction"`
	Status          TransactionStatus `gorm:"column:status" json:"status"`
	EventStatus     EventStatus       `gorm:"column:event_status" json:"event_status"`
	Aborted         bool              `gorm:"column:aborted" json:"aborted"`
	Error           string            `gorm:"column:error" json:"error,omitempty"`
	ExpireAt        uint64            `gorm:"column:expire_at" json:"expire_at,omitempty"`
	CreatedAt       uint64            `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt       uint64            `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (TokenTransactions) TableName() string {
	return "token_transactions"
}

type TokenTransactionsView interface {
	QueryTokenTransactionByMessageHash(serviceUid string, account, root ledger.Account, messageHash common.Hash) (*TokenTransactions, error)
	QueryTokenTransactionByGuid(guid uuid.UUID) (*TokenTransactions, error)
	QueryTokenEvents(serviceUid string, filter EventFilter) ([]TokenTransactions, int64, error)
}

type TokenTransactionsDB interface {
	TokenTransactionsView

	StoreTokenTransaction(tx *TokenTransactions) (*TokenTransactions, bool, error)
	FailPendingTokenTransaction(guid uuid.UUID, errMsg string) (bool, error)
	ApplyTokenSentUpdate(account ledger.Account, messageHash common.Hash, update SentUpdate) ([]TokenTransactions, error)
	UpdateTokenEventStatus(guid uuid.UUID, status EventStatus) error
	MarkTokenEvents(serviceUid string, guids []uuid.UUID, status EventStatus) (int64, error)
}

type tokenTransactionsDB struct {
	gorm *gorm.DB
}

func NewTokenTransactionsDB(db *gorm.DB) TokenTransactionsDB {
	return &tokenTransactionsDB{gorm: db}
}

func (db *tokenTransactionsDB) StoreTokenTransaction(tx *TokenTransactions) (*TokenTransactions, bool, error) {
	now := uint64(time.Now().Unix())
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	result := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(tx)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return tx, true, nil
	}
	existing, err := db.QueryTokenTransactionByMessageHash(tx.ServiceUid, tx.Account, tx.Root, tx.MessageHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (db *tokenTransactionsDB) QueryTokenTransactionByMessageHash(serviceUid string, account, root ledger.Account, messageHash common.Hash) (*TokenTransactions, error) {
	var tx TokenTransactions
	err := db.gorm.
		Where("service_uid = ? AND account = ? AND root = ? AND message_hash = ?",
			serviceUid, account.String(), root.String(), messageHash.String()).
		Take(&tx).Error
	return takeResult(&tx, err)
}

func (db *tokenTransactionsDB) QueryTokenTransactionByGuid(guid uuid.UUID) (*TokenTransactions, error) {
	var tx TokenTransactions
	err := db.gorm.Where("guid = ?", guid).Take(&tx).Error
	return takeResult(&tx, err)
}

func (db *tokenTransactionsDB) QueryTokenEvents(serviceUid string, filter EventFilter) ([]TokenTransactions, int64, error) {
	query := db.gorm.Model(&TokenTransactions{}).Where("service_uid = ?", serviceUid)
	if len(filter.EventStatus) > 0 {
		query = query.Where("event_status IN ?", filter.EventStatus)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []TokenTransactions
	err := query.Order("created_at, guid").Limit(filter.limit()).Offset(filter.Offset).Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (db *tokenTransactionsDB) FailPendingTokenTransaction(guid uuid.UUID, errMsg string) (bool, error) {
	result := db.gorm.Model(&TokenTransactions{}).
		Where("guid = ? AND status = ?", guid, TxStatusNew).
		Updates(map[string]interface{}{
			"status":     TxStatusError,
			"error":      errMsg,
			"updated_at": uint64(time.Now().Unix()),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (db *tokenTransactionsDB) ApplyTokenSentUpdate(account ledger.Account, messageHash common.Hash, update SentUpdate) ([]TokenTransactions, error) {
	var updated []TokenTransactions
	err := db.gorm.Model(&updated).
		Clauses(clause.Returning{}).
		Where("account = ? AND message_hash = ? AND direction = ? AND status IN ?",
			account.String(), messageHash.String(), DirectionOutgoing, []TransactionStatus{TxStatusNew, TxStatusError}).
		Updates(map[string]interface{}{
			"transaction_hash": update.TransactionHash.String(),
			"logical_time":     update.LogicalTime,
			"fee":              numericString(update.Fee),
			"aborted":          update.Aborted,
			"status":           update.status(),
			"error":            "",
			"updated_at":       uint64(time.Now().Unix()),
		}).Error
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (db *tokenTransactionsDB) UpdateTokenEventStatus(guid uuid.UUID, status EventStatus) error {
	result := db.gorm.Model(&TokenTransactions{}).Where("guid = ?", guid).Updates(map[string]interface{}{
		"event_status": status,
		"updated_at":   uint64(time.Now().Unix()),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (db *tokenTransactionsDB) MarkTokenEvents(serviceUid string, guids []uuid.UUID, status EventStatus) (int64, error) {
	if len(guids) == 0 {
		return 0, nil
	}
	result := db.gorm.Model(&TokenTransactions{}).
		Where("service_uid = ? AND guid IN ?", serviceUid, guids).
		Updates(map[string]interface{}{
			"event_status": status,
			"updated_at":   uint64(time.Now().Unix()),
		})
	return result.RowsAffected, result.Error
}
