package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dapplink-labs/ton-wallet-gateway/common/retry"
	"github.com/dapplink-labs/ton-wallet-gateway/config"
	_ "github.com/dapplink-labs/ton-wallet-gateway/database/serializers"
)

type DB struct {
	gorm *gorm.DB

	Services          ServicesDB
	Addresses         AddressesDB
	TokenOwners       TokenOwnersDB
	TokenBalances     TokenBalancesDB
	Transactions      TransactionsDB
	TokenTransactions TokenTransactionsDB
}

func NewDB(ctx context.Context, dbConfig config.DBConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s dbname=%s sslmode=disable", dbConfig.Host, dbConfig.Name)
	if dbConfig.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", dbConfig.Port)
	}
	if dbConfig.User != "" {
		dsn += fmt.Sprintf(" user=%s", dbConfig.User)
	}
	if dbConfig.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dbConfig.Password)
	}

	newLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	gormConfig := gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        3_000,
		Logger:                 newLogger,
	}

	retryStrategy := &retry.ExponentialStrategy{Min: 1000, Max: 20_000, MaxJitter: 250}
	gormDbBox, err := retry.Do[*gorm.DB](ctx, 10, retryStrategy, func() (*gorm.DB, error) {
		gormDb, err := gorm.Open(postgres.Open(dsn), &gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return gormDb, nil
	})
	if err != nil {
		return nil, err
	}

	return newDB(gormDbBox), nil
}

func newDB(gormDb *gorm.DB) *DB {
	return &DB{
		gorm:              gormDb,
		Services:          NewServicesDB(gormDb),
		Addresses:         NewAddressesDB(gormDb),
		TokenOwners:       NewTokenOwnersDB(gormDb),
		TokenBalances:     NewTokenBalancesDB(gormDb),
		Transactions:      NewTransactionsDB(gormDb),
		TokenTransactions: NewTokenTransactionsDB(gormDb),
	}
}

// Transaction runs fn against DAOs bound to one database transaction. A DB
// without a gorm handle (in-memory DAOs in tests) runs fn directly.
func (db *DB) Transaction(fn func(db *DB) error) error {
	if db.gorm == nil {
		return fn(db)
	}
	return db.gorm.Transaction(func(tx *gorm.DB) error {
		return fn(newDB(tx))
	})
}

func (db *DB) Close() error {
	if db.gorm == nil {
		return nil
	}
	sql, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sql.Close()
}

// ExecuteSQLMigration 按文件名顺序执行目录下的全部 sql 文件
func (db *DB) ExecuteSQLMigration(migrationsFolder string) error {
	var files []string
	err := filepath.Walk(migrationsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Failed to process migration file: %s", path))
		}
		if info.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, path := range files {
		fileContent, readErr := os.ReadFile(path)
		if readErr != nil {
			return errors.Wrap(readErr, fmt.Sprintf("Error reading SQL file: %s", path))
		}
		if execErr := db.gorm.Exec(string(fileContent)).Error; execErr != nil {
			return errors.Wrap(execErr, fmt.Sprintf("Error executing SQL script: %s", path))
		}
	}
	return nil
}
