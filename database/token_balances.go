package database

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// TokenBalances 记录业务方地址持有的代币，入账的代币转账会累加余额
type TokenBalances struct {
	GUID        uuid.UUID      `gorm:"primaryKey" json:"guid"`
	ServiceUid  string         `gorm:"column:service_uid" json:"service_uid"`
	Owner       ledger.Account `gorm:"column:owner;serializer:account" json:"owner"`
	Root        ledger.Account `gorm:"column:root;serializer:account" json:"root"`
	TokenWallet ledger.Account `gorm:"column:token_wallet;serializer:account" json:"token_wallet"`
	Balance     *big.Int       `gorm:"type:numeric;not null;default:0;serializer:u256" json:"balance"`
	Timestamp   uint64         `json:"timestamp"`
}

func (TokenBalances) TableName() string {
	return "token_balances"
}

type TokenBalancesView interface {
	QueryTokenBalance(owner, root ledger.Account) (*TokenBalances, error)
	QueryTokenBalancesByOwner(owner ledger.Account) ([]TokenBalances, error)
}

type TokenBalancesDB interface {
	TokenBalancesView

	StoreTokenBalance(balance *TokenBalances) (*TokenBalances, error)
	AddTokenBalance(owner, root ledger.Account, amount *big.Int) error
}

type tokenBalancesDB struct {
	gorm *gorm.DB
}

func NewTokenBalancesDB(db *gorm.DB) TokenBalancesDB {
	return &tokenBalancesDB{gorm: db}
}

func (db *tokenBalancesDB) StoreTokenBalance(balance *TokenBalances) (*TokenBalances, error) {
	if balance.Balance == nil {
		balance.Balance = new(big.Int)
	}
	result := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(balance)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 1 {
		return balance, nil
	}
	return db.QueryTokenBalance(balance.Owner, balance.Root)
}

func (db *tokenBalancesDB) AddTokenBalance(owner, root ledger.Account, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	result := db.gorm.Model(&TokenBalances{}).
		Where("owner = ? AND root = ?", owner.String(), root.String()).
		Updates(map[string]interface{}{
			"balance":   gorm.Expr("balance + CAST(? AS NUMERIC)", amount.String()),
			"timestamp": uint64(time.Now().Unix()),
		})
	if result.Error != nil {
		return fmt.Errorf("add token balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Warn("token balance row missing", "owner", owner, "root", root)
		return ErrRecordNotFound
	}
	return nil
}

func (db *tokenBalancesDB) QueryTokenBalance(owner, root ledger.Account) (*TokenBalances, error) {
	var balance TokenBalances
	err := db.gorm.Where("owner = ? AND root = ?", owner.String(), root.String()).Take(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (db *tokenBalancesDB) QueryTokenBalancesByOwner(owner ledger.Account) ([]TokenBalances, error) {
	var balances []TokenBalances
	err := db.gorm.Where("owner = ?", owner.String()).Order("root").Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}
