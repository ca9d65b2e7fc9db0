package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// TokenOwners maps a token wallet contract to the watched owner and token root.
type TokenOwners struct {
	GUID        uuid.UUID      `gorm:"primaryKey" json:"guid"`
	ServiceUid  string         `gorm:"column:service_uid" json:"service_uid"`
	TokenWallet ledger.Account `gorm:"column:token_wallet;serializer:account" json:"token_wallet"`
	Owner       ledger.Account `gorm:"column:owner;serializer:account" json:"owner"`
	Root        ledger.Account `gorm:"column:root;serializer:account" json:"root"`
	Timestamp   uint64         `json:"timestamp"`
}

func (TokenOwners) TableName() string {
	return "token_owners"
}

func (o TokenOwners) TokenWalletInfo() ledger.TokenWallet {
	return ledger.TokenWallet{Address: o.TokenWallet, Owner: o.Owner, Root: o.Root}
}

type TokenOwnersView interface {
	QueryTokenOwnerByWallet(wallet ledger.Account) (*TokenOwners, error)
	QueryAllTokenOwners() ([]TokenOwners, error)
}

type TokenOwnersDB interface {
	TokenOwnersView

	StoreTokenOwner(owner *TokenOwners) (*TokenOwners, error)
}

type tokenOwnersDB struct {
	gorm *gorm.DB
}

func NewTokenOwnersDB(db *gorm.DB) TokenOwnersDB {
	return &tokenOwnersDB{gorm: db}
}

func (db *tokenOwnersDB) StoreTokenOwner(owner *TokenOwners) (*TokenOwners, error) {
	result := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(owner)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 1 {
		return owner, nil
	}
	return db.QueryTokenOwnerByWallet(owner.TokenWallet)
}

func (db *tokenOwnersDB) QueryTokenOwnerByWallet(wallet ledger.Account) (*TokenOwners, error) {
	var owner TokenOwners
	err := db.gorm.Where("token_wallet = ?", wallet.String()).Take(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &owner, nil
}

func (db *tokenOwnersDB) QueryAllTokenOwners() ([]TokenOwners, error) {
	var owners []TokenOwners
	if err := db.gorm.Order("timestamp").Find(&owners).Error; err != nil {
		return nil, err
	}
	return owners, nil
}
