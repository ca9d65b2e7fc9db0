package database

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// Transactions 原生币收发记录；Status 跟踪链上状态，EventStatus 跟踪回调通知状态
type Transactions struct {
	GUID            uuid.UUID         `gorm:"primaryKey" json:"guid"`
	ServiceUid      string            `gorm:"column:service_uid" json:"service_uid"`
	MessageHash     common.Hash       `gorm:"column:message_hash;serializer:bytes" json:"message_hash"`
	TransactionHash common.Hash       `gorm:"column:transaction_hash;serializer:bytes" json:"transaction_hash"`
	Account         ledger.Account    `gorm:"column:account;serializer:account" json:"account"`
	Counterparty    *ledger.Account   `gorm:"column:counterparty;serializer:account" json:"counterparty,omitempty"`
	Value           *big.Int          `gorm:"serializer:u256;column:value" json:"value"`
	Fee             *big.Int          `gorm:"serializer:u256;column:fee" json:"fee"`
	BalanceChange   *big.Int          `gorm:"serializer:i256;column:balance_change" json:"balance_change"`
	LogicalTime     uint64            `gorm:"column:logical_time" json:"logical_time"`
	Direction       Direction         `gorm:"column:direction" json:"direction"`
	Status          TransactionStatus `gorm:"column:status" json:"status"`
	EventStatus     EventStatus       `gorm:"column:event_status" json:"event_status"`
	Aborted         bool              `gorm:"column:aborted" json:"aborted"`
	Bounce          bool              `gorm:"column:bounce" json:"bounce"`
	Comment         string            `gorm:"column:comment" json:"comment,omitempty"`
	Error           string            `gorm:"column:error" json:"error,omitempty"`
	ExpireAt        uint64            `gorm:"column:expire_at" json:"expire_at,omitempty"`
	CreatedAt       uint64            `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt       uint64            `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (Transactions) TableName() string {
	return "transactions"
}

// SentUpdate is the on-ledger outcome applied to outgoing records of a message.
type SentUpdate struct {
	TransactionHash common.Hash
	LogicalTime     uint64
	Fee             *big.Int
	BalanceChange   *big.Int
	Aborted         bool
}

func (u SentUpdate) status() TransactionStatus {
	if u.Aborted {
		return TxStatusAborted
	}
	return TxStatusConfirmed
}

type TransactionsView interface {
	QueryTransactionByMessageHash(serviceUid string, account ledger.Account, messageHash common.Hash) (*Transactions, error)
	QueryTransactionByHash(serviceUid string, transactionHash common.Hash) (*Transactions, error)
	QueryTransactionByGuid(guid uuid.UUID) (*Transactions, error)
	QueryEvents(serviceUid string, filter EventFilter) ([]Transactions, int64, error)
}

type TransactionsDB interface {
	TransactionsView

	StoreTransaction(tx *Transactions) (*Transactions, bool, error)
	FailPendingTransaction(guid uuid.UUID, errMsg string) (bool, error)
	ApplySentUpdate(account ledger.Account, messageHash common.Hash, update SentUpdate) ([]Transactions, error)
	UpdateEventStatus(guid uuid.UUID, status EventStatus) error
	MarkEvents(serviceUid string, guids []uuid.UUID, status EventStatus) (int64, error)
}

type transactionsDB struct {
	gorm *gorm.DB
}

func NewTransactionsDB(db *gorm.DB) TransactionsDB {
	return &transactionsDB{gorm: db}
}

// StoreTransaction 插入记录；同一业务方、账户、消息哈希已存在时返回已有记录且 created 为 false
func (db *transactionsDB) StoreTransaction(tx *Transactions) (*Transactions, bool, error) {
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
	existing, err := db.QueryTransactionByMessageHash(tx.ServiceUid, tx.Account, tx.MessageHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (db *transactionsDB) QueryTransactionByMessageHash(serviceUid string, account ledger.Account, messageHash common.Hash) (*Transactions, error) {
	var tx Transactions
	err := db.gorm.
		Where("service_uid = ? AND account = ? AND message_hash = ?", serviceUid, account.String(), messageHash.String()).
		Take(&tx).Error
	return takeResult(&tx, err)
}

func (db *transactionsDB) QueryTransactionByHash(serviceUid string, transactionHash common.Hash) (*Transactions, error) {
	var tx Transactions
	err := db.gorm.
		Where("service_uid = ? AND transaction_hash = ?", serviceUid, transactionHash.String()).
		Take(&tx).Error
	return takeResult(&tx, err)
}

func (db *transactionsDB) QueryTransactionByGuid(guid uuid.UUID) (*Transactions, error) {
	var tx Transactions
	err := db.gorm.Where("guid = ?", guid).Take(&tx).Error
	return takeResult(&tx, err)
}

func (db *transactionsDB) QueryEvents(serviceUid string, filter EventFilter) ([]Transactions, int64, error) {
	query := db.gorm.Model(&Transactions{}).Where("service_uid = ?", serviceUid)
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

	var txs []Transactions
	err := query.Order("created_at, guid").Limit(filter.limit()).Offset(filter.Offset).Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// FailPendingTransaction 仅当记录仍为 New 时置为 Error；已被链上结果更新的记录不受影响，返回 false
func (db *transactionsDB) FailPendingTransaction(guid uuid.UUID, errMsg string) (bool, error) {
	result := db.gorm.Model(&Transactions{}).
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

// ApplySentUpdate 将链上结果写入该消息对应的所有待确认发送记录，返回被更新的记录
func (db *transactionsDB) ApplySentUpdate(account ledger.Account, messageHash common.Hash, update SentUpdate) ([]Transactions, error) {
	var updated []Transactions
	err := db.gorm.Model(&updated).
		Clauses(clause.Returning{}).
		Where("account = ? AND message_hash = ? AND direction = ? AND status IN ?",
			account.String(), messageHash.String(), DirectionOutgoing, []TransactionStatus{TxStatusNew, TxStatusError}).
		Updates(map[string]interface{}{
			"transaction_hash": update.TransactionHash.String(),
			"logical_time":     update.LogicalTime,
			"fee":              numericString(update.Fee),
			"balance_change":   numericString(update.BalanceChange),
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

func (db *transactionsDB) UpdateEventStatus(guid uuid.UUID, status EventStatus) error {
	result := db.gorm.Model(&Transactions{}).Where("guid = ?", guid).Updates(map[string]interface{}{
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

func (db *transactionsDB) MarkEvents(serviceUid string, guids []uuid.UUID, status EventStatus) (int64, error) {
	if len(guids) == 0 {
		return 0, nil
	}
	result := db.gorm.Model(&Transactions{}).
		Where("service_uid = ? AND guid IN ?", serviceUid, guids).
		Updates(map[string]interface{}{
			"event_status": status,
			"updated_at":   uint64(time.Now().Unix()),
		})
	return result.RowsAffected, result.Error
}

func takeResult[T any](row *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row, nil
}

func numericString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
