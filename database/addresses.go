package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

type Addresses struct {
	GUID        uuid.UUID      `gorm:"primaryKey" json:"guid"`
	ServiceUid  string         `gorm:"column:service_uid" json:"service_uid"`
	Account     ledger.Account `gorm:"column:account;serializer:account" json:"account"`
	AccountType AccountType    `gorm:"column:account_type" json:"account_type"`
	PublicKey   string         `gorm:"column:public_key" json:"public_key"`
	Timestamp   uint64         `json:"timestamp"`
}

func (Addresses) TableName() string {
	return "addresses"
}

type AddressesView interface {
	QueryAddressByAccount(account ledger.Account) (*Addresses, error)
	QueryAddressesByService(serviceUid string) ([]Addresses, error)
	QueryAllAddresses() ([]Addresses, error)
}

type AddressesDB interface {
	AddressesView

	StoreAddress(address *Addresses) (*Addresses, error)
}

type addressesDB struct {
	gorm *gorm.DB
}

func NewAddressesDB(db *gorm.DB) AddressesDB {
	return &addressesDB{gorm: db}
}

// StoreAddress 保存地址，地址已存在时返回已有记录
func (db *addressesDB) StoreAddress(address *Addresses) (*Addresses, error) {
	result := db.gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(address)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 1 {
		return address, nil
	}
	return db.QueryAddressByAccount(address.Account)
}

func (db *addressesDB) QueryAddressByAccount(account ledger.Account) (*Addresses, error) {
	var address Addresses
	err := db.gorm.Where("account = ?", account.String()).Take(&address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &address, nil
}

func (db *addressesDB) QueryAddressesByService(serviceUid string) ([]Addresses, error) {
	var addresses []Addresses
	err := db.gorm.Where("service_uid = ?", serviceUid).Order("timestamp").Find(&addresses).Error
	if err != nil {
		return nil, err
	}
	return addresses, nil
}

func (db *addressesDB) QueryAllAddresses() ([]Addresses, error) {
	var addresses []Addresses
	if err := db.gorm.Order("timestamp").Find(&addresses).Error; err != nil {
		return nil, err
	}
	return addresses, nil
}
