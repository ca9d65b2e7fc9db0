package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Services 接入网关的业务方，CallbackUrl 为空表示不需要回调
type Services struct {
	GUID        uuid.UUID `gorm:"primaryKey" json:"guid"`
	ServiceUid  string    `gorm:"column:service_uid;uniqueIndex" json:"service_uid"`
	CallbackUrl string    `gorm:"column:callback_url" json:"callback_url"`
	Timestamp   uint64    `json:"timestamp"`
}

func (Services) TableName() string {
	return "services"
}

func (s *Services) HasCallback() bool {
	return s != nil && s.CallbackUrl != ""
}

type ServicesView interface {
	QueryServiceByUid(serviceUid string) (*Services, error)
	QueryServicesWithCallback() ([]Services, error)
}

type ServicesDB interface {
	ServicesView

	StoreService(service *Services) error
}

type servicesDB struct {
	gorm *gorm.DB
}

func NewServicesDB(db *gorm.DB) ServicesDB {
	return &servicesDB{gorm: db}
}

// StoreService 新建业务方，已存在时更新回调地址
func (db *servicesDB) StoreService(service *Services) error {
	return db.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"callback_url", "timestamp"}),
	}).Create(service).Error
}

func (db *servicesDB) QueryServiceByUid(serviceUid string) (*Services, error) {
	var service Services
	err := db.gorm.Where("service_uid = ?", serviceUid).Take(&service).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &service, nil
}

func (db *servicesDB) QueryServicesWithCallback() ([]Services, error) {
	var services []Services
	err := db.gorm.Where("callback_url <> ''").Order("service_uid").Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}
