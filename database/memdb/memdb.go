// Package memdb is an in-memory test double of the database DAO interfaces.
// Only tests import it; the gateway binary always runs on Postgres. Writes
// follow the same conditions as the gorm DAOs (unique keys, status guards)
// but database.DB.Transaction gives no rollback over it.
package memdb

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

type store struct {
	mu sync.Mutex

	services          map[string]database.Services
	addresses         map[ledger.Account]database.Addresses
	tokenOwners       map[ledger.Account]database.TokenOwners
	tokenBalances     map[[2]ledger.Account]database.TokenBalances
	transactions      []*database.Transactions
	tokenTransactions []*database.TokenTransactions
}

// New returns a database.DB whose DAOs share one in-memory store.
func New() *database.DB {
	s := &store{
		services:      make(map[string]database.Services),
		addresses:     make(map[ledger.Account]database.Addresses),
		tokenOwners:   make(map[ledger.Account]database.TokenOwners),
		tokenBalances: make(map[[2]ledger.Account]database.TokenBalances),
	}
	return &database.DB{
		Services:          (*servicesDB)(s),
		Addresses:         (*addressesDB)(s),
		TokenOwners:       (*tokenOwnersDB)(s),
		TokenBalances:     (*tokenBalancesDB)(s),
		Transactions:      (*transactionsDB)(s),
		TokenTransactions: (*tokenTransactionsDB)(s),
	}
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

func copyInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}

func page[T any](rows []T, filter database.EventFilter) []T {
	if filter.Offset >= len(rows) {
		return nil
	}
	rows = rows[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(rows) {
		rows = rows[:filter.Limit]
	}
	return rows
}

func matchesEvent(eventStatus database.EventStatus, direction database.Direction, filter database.EventFilter) bool {
	if filter.Direction != "" && filter.Direction != direction {
		return false
	}
	if len(filter.EventStatus) == 0 {
		return true
	}
	for _, status := range filter.EventStatus {
		if status == eventStatus {
			return true
		}
	}
	return false
}

func sentStatus(update database.SentUpdate) database.TransactionStatus {
	if update.Aborted {
		return database.TxStatusAborted
	}
	return database.TxStatusConfirmed
}

func pendingSend(direction database.Direction, status database.TransactionStatus) bool {
	return direction == database.DirectionOutgoing &&
		(status == database.TxStatusNew || status == database.TxStatusError)
}

func containsGuid(guids []uuid.UUID, guid uuid.UUID) bool {
	for _, g := range guids {
		if g == guid {
			return true
		}
	}
	return false
}

type servicesDB store

func (db *servicesDB) StoreService(service *database.Services) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.services[service.ServiceUid]; ok {
		existing.CallbackUrl = service.CallbackUrl
		existing.Timestamp = service.Timestamp
		db.services[service.ServiceUid] = existing
		return nil
	}
	db.services[service.ServiceUid] = *service
	return nil
}

func (db *servicesDB) QueryServiceByUid(serviceUid string) (*database.Services, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	service, ok := db.services[serviceUid]
	if !ok {
		return nil, database.ErrRecordNotFound
	}
	return &service, nil
}

func (db *servicesDB) QueryServicesWithCallback() ([]database.Services, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var services []database.Services
	for _, service := range db.services {
		if service.HasCallback() {
			services = append(services, service)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ServiceUid < services[j].ServiceUid })
	return services, nil
}

type addressesDB store

func (db *addressesDB) StoreAddress(address *database.Addresses) (*database.Addresses, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.addresses[address.Account]; ok {
		return &existing, nil
	}
	db.addresses[address.Account] = *address
	return address, nil
}

func (db *addressesDB) QueryAddressByAccount(account ledger.Account) (*database.Addresses, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	address, ok := db.addresses[account]
	if !ok {
		return nil, database.ErrRecordNotFound
	}
	return &address, nil
}

func (db *addressesDB) QueryAddressesByService(serviceUid string) ([]database.Addresses, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var addresses []database.Addresses
	for _, address := range db.addresses {
		if address.ServiceUid == serviceUid {
			addresses = append(addresses, address)
		}
	}
	return addresses, nil
}

func (db *addressesDB) QueryAllAddresses() ([]database.Addresses, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	addresses := make([]database.Addresses, 0, len(db.addresses))
	for _, address := range db.addresses {
		addresses = append(addresses, address)
	}
	return addresses, nil
}

type tokenOwnersDB store

func (db *tokenOwnersDB) StoreTokenOwner(owner *database.TokenOwners) (*database.TokenOwners, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.tokenOwners[owner.TokenWallet]; ok {
		return &existing, nil
	}
	db.tokenOwners[owner.TokenWallet] = *owner
	return owner, nil
}

func (db *tokenOwnersDB) QueryTokenOwnerByWallet(wallet ledger.Account) (*database.TokenOwners, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	owner, ok := db.tokenOwners[wallet]
	if !ok {
		return nil, database.ErrRecordNotFound
	}
	return &owner, nil
}

func (db *tokenOwnersDB) QueryAllTokenOwners() ([]database.TokenOwners, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	owners := make([]database.TokenOwners, 0, len(db.tokenOwners))
	for _, owner := range db.tokenOwners {
		owners = append(owners, owner)
	}
	return owners, nil
}

type tokenBalancesDB store

func (db *tokenBalancesDB) StoreTokenBalance(balance *database.TokenBalances) (*database.TokenBalances, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := [2]ledger.Account{balance.Owner, balance.Root}
	if existing, ok := db.tokenBalances[key]; ok {
		return &existing, nil
	}
	if balance.Balance == nil {
		balance.Balance = new(big.Int)
	}
	db.tokenBalances[key] = *balance
	return balance, nil
}

func (db *tokenBalancesDB) AddTokenBalance(owner, root ledger.Account, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	key := [2]ledger.Account{owner, root}
	balance, ok := db.tokenBalances[key]
	if !ok {
		return database.ErrRecordNotFound
	}
	balance.Balance = new(big.Int).Add(balance.Balance, amount)
	balance.Timestamp = now()
	db.tokenBalances[key] = balance
	return nil
}

func (db *tokenBalancesDB) QueryTokenBalance(owner, root ledger.Account) (*database.TokenBalances, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	balance, ok := db.tokenBalances[[2]ledger.Account{owner, root}]
	if !ok {
		return nil, database.ErrRecordNotFound
	}
	balance.Balance = copyInt(balance.Balance)
	return &balance, nil
}

func (db *tokenBalancesDB) QueryTokenBalancesByOwner(owner ledger.Account) ([]database.TokenBalances, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var balances []database.TokenBalances
	for _, balance := range db.tokenBalances {
		if balance.Owner == owner {
			balance.Balance = copyInt(balance.Balance)
			balances = append(balances, balance)
		}
	}
	return balances, nil
}

type transactionsDB store

func (db *transactionsDB) find(match func(tx *database.Transactions) bool) (*database.Transactions, error) {
	for _, tx := range db.transactions {
		if match(tx) {
			found := *tx
			return &found, nil
		}
	}
	return nil, database.ErrRecordNotFound
}

func (db *transactionsDB) StoreTransaction(tx *database.Transactions) (*database.Transactions, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, err := db.find(func(row *database.Transactions) bool {
		return row.ServiceUid == tx.ServiceUid && row.Account == tx.Account && row.MessageHash == tx.MessageHash
	})
	if err == nil {
		return existing, false, nil
	}
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now()
	}
	tx.UpdatedAt = now()
	row := *tx
	db.transactions = append(db.transactions, &row)
	return tx, true, nil
}

func (db *transactionsDB) QueryTransactionByMessageHash(serviceUid string, account ledger.Account, messageHash common.Hash) (*database.Transactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.find(func(row *database.Transactions) bool {
		return row.ServiceUid == serviceUid && row.Account == account && row.MessageHash == messageHash
	})
}

func (db *transactionsDB) QueryTransactionByHash(serviceUid string, transactionHash common.Hash) (*database.Transactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.find(func(row *database.Transactions) bool {
		return row.ServiceUid == serviceUid && row.TransactionHash == transactionHash
	})
}

func (db *transactionsDB) QueryTransactionByGuid(guid uuid.UUID) (*database.Transactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.find(func(row *database.Transactions) bool { return row.GUID == guid })
}

func (db *transactionsDB) QueryEvents(serviceUid string, filter database.EventFilter) ([]database.Transactions, int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var rows []database.Transactions
	for _, tx := range db.transactions {
		if tx.ServiceUid == serviceUid && matchesEvent(tx.EventStatus, tx.Direction, filter) {
			rows = append(rows, *tx)
		}
	}
	return page(rows, filter), int64(len(rows)), nil
}

func (db *transactionsDB) FailPendingTransaction(guid uuid.UUID, errMsg string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, tx := range db.transactions {
		if tx.GUID == guid && tx.Status == database.TxStatusNew {
			tx.Status = database.TxStatusError
			tx.Error = errMsg
			tx.UpdatedAt = now()
			return true, nil
		}
	}
	return false, nil
}

func (db *transactionsDB) ApplySentUpdate(account ledger.Account, messageHash common.Hash, update database.SentUpdate) ([]database.Transactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var updated []database.Transactions
	for _, tx := range db.transactions {
		if tx.Account != account || tx.MessageHash != messageHash || !pendingSend(tx.Direction, tx.Status) {
			continue
		}
		tx.TransactionHash = update.TransactionHash
		tx.LogicalTime = update.LogicalTime
		tx.Fee = copyInt(update.Fee)
		tx.BalanceChange = copyInt(update.BalanceChange)
		tx.Aborted = update.Aborted
		tx.Status = sentStatus(update)
		tx.Error = ""
		tx.UpdatedAt = now()
		updated = append(updated, *tx)
	}
	return updated, nil
}

func (db *transactionsDB) UpdateEventStatus(guid uuid.UUID, status database.EventStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, tx := range db.transactions {
		if tx.GUID == guid {
			tx.EventStatus = status
			tx.UpdatedAt = now()
			return nil
		}
	}
	return database.ErrRecordNotFound
}

func (db *transactionsDB) MarkEvents(serviceUid string, guids []uuid.UUID, status database.EventStatus) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var affected int64
	for _, tx := range db.transactions {
		if tx.ServiceUid == serviceUid && containsGuid(guids, tx.GUID) {
			tx.EventStatus = status
			tx.UpdatedAt = now()
			affected++
		}
	}
	return affected, nil
}

type tokenTransactionsDB store

func (db *tokenTransactionsDB) find(match func(tx *database.TokenTransactions) bool) (*database.TokenTransactions, error) {
	for _, tx := range db.tokenTransactions {
		if match(tx) {
			found := *tx
			return &found, nil
		}
	}
	return nil, database.ErrRecordNotFound
}

func (db *tokenTransactionsDB) StoreTokenTransaction(tx *database.TokenTransactions) (*database.TokenTransactions, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	existing, err := db.find(func(row *database.TokenTransactions) bool {
		return row.ServiceUid == tx.ServiceUid && row.Account == tx.Account && row.Root == tx.Root && row.MessageHash == tx.MessageHash
	})
	if err == nil {
		return existing, false, nil
	}
	if tx.CreatedAt == 0 {
		tx.CreatedAt = now()
	}
	tx.UpdatedAt = now()
	row := *tx
	db.tokenTransactions = append(db.tokenTransactions, &row)
	return tx, true, nil
}

func (db *tokenTransactionsDB) QueryTokenTransactionByMessageHash(serviceUid string, account, root ledger.Account, messageHash common.Hash) (*database.TokenTransactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.find(func(row *database.TokenTransactions) bool {
		return row.ServiceUid == serviceUid && row.Account == account && row.Root == root && row.MessageHash == messageHash
	})
}

func (db *tokenTransactionsDB) QueryTokenTransactionByGuid(guid uuid.UUID) (*database.TokenTransactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.find(func(row *database.TokenTransactions) bool { return row.GUID == guid })
}

func (db *tokenTransactionsDB) QueryTokenEvents(serviceUid string, filter database.EventFilter) ([]database.TokenTransactions, int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var rows []database.TokenTransactions
	for _, tx := range db.tokenTransactions {
		if tx.ServiceUid == serviceUid && matchesEvent(tx.EventStatus, tx.Direction, filter) {
			rows = append(rows, *tx)
		}
	}
	return page(rows, filter), int64(len(rows)), nil
}

func (db *tokenTransactionsDB) FailPendingTokenTransaction(guid uuid.UUID, errMsg string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, tx := range db.tokenTransactions {
		if tx.GUID == guid && tx.Status == database.TxStatusNew {
			tx.Status = database.TxStatusError
			tx.Error = errMsg
			tx.UpdatedAt = now()
			return true, nil
		}
	}
	return false, nil
}

func (db *tokenTransactionsDB) ApplyTokenSentUpdate(account ledger.Account, messageHash common.Hash, update database.SentUpdate) ([]database.TokenTransactions, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var updated []database.TokenTransactions
	for _, tx := range db.tokenTransactions {
		if tx.Account != account || tx.MessageHash != messageHash || !pendingSend(tx.Direction, tx.Status) {
			continue
		}
		tx.TransactionHash = update.TransactionHash
		tx.LogicalTime = update.LogicalTime
		tx.Fee = copyInt(update.Fee)
		tx.Aborted = update.Aborted
		tx.Status = sentStatus(update)
		tx.Error = ""
		tx.UpdatedAt = now()
		updated = append(updated, *tx)
	}
	return updated, nil
}

func (db *tokenTransactionsDB) UpdateTokenEventStatus(guid uuid.UUID, status database.EventStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, tx := range db.tokenTransactions {
		if tx.GUID == guid {
			tx.EventStatus = status
			tx.UpdatedAt = now()
			return nil
		}
	}
	return database.ErrRecordNotFound
}

func (db *tokenTransactionsDB) MarkTokenEvents(serviceUid string, guids []uuid.UUID, status database.EventStatus) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var affected int64
	for _, tx := range db.tokenTransactions {
		if tx.ServiceUid == serviceUid && containsGuid(guids, tx.GUID) {
			tx.EventStatus = status
			tx.UpdatedAt = now()
			affected++
		}
	}
	return affected, nil
}
