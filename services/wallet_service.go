package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/cache"
	"github.com/dapplink-labs/ton-wallet-gateway/common/tasks"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/eventbus"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/notifier"
)

const defaultMessageTTL = 60 * time.Second

// Ledger is the part of ledger.Core the wallet service drives.
type Ledger interface {
	AddTonAccountSubscription(ctx context.Context, accounts []ledger.Account) error
	AddTokenWalletSubscription(ctx context.Context, wallets []ledger.TokenWallet) error
	AddWalletNotificationSubscription(ctx context.Context, owners []ledger.Account) error
	LookupTokenWallet(address ledger.Account) (ledger.TokenWallet, bool)
	SubmitMessage(ctx context.Context, msg *ledger.ExternalMessage) (*ledger.Completion, error)
	GetContractState(ctx context.Context, account ledger.Account) (*ledger.ContractState, error)
}

type CallbackDeliverer interface {
	Deliver(ctx context.Context, callbackUrl string, event *notifier.Event) error
}

type Metricer interface {
	RecordWebhookDelivery(ok bool)
	RecordMessageStatus(status string)
}

type Config struct {
	MessageTTL time.Duration
}

// WalletService 编排存储、链上消息提交和回调通知；回调失败只体现在 EventStatus 上，不影响调用结果
type WalletService struct {
	db        *database.DB
	ledger    Ledger
	addresses *cache.AddressCache
	callbacks CallbackDeliverer
	bus       eventbus.Publisher
	metrics   Metricer
	ttl       time.Duration

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewWalletService(db *database.DB, core Ledger, addresses *cache.AddressCache, callbacks CallbackDeliverer,
	bus eventbus.Publisher, cfg Config, metrics Metricer, shutdown context.CancelCauseFunc) *WalletService {
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = defaultMessageTTL
	}
	if bus == nil {
		bus = eventbus.Noop
	}
	resCtx, resCancel := context.WithCancel(context.Background())
	return &WalletService{
		db:             db,
		ledger:         core,
		addresses:      addresses,
		callbacks:      callbacks,
		bus:            bus,
		metrics:        metrics,
		ttl:            cfg.MessageTTL,
		resourceCtx:    resCtx,
		resourceCancel: resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in wallet service: %w", err))
		}},
	}
}

// Close stops the completion watchers. Records whose message is still in
// flight keep Status=New and are settled by a later sent update.
func (s *WalletService) Close() error {
	s.resourceCancel()
	if err := s.tasks.Wait(); err != nil {
		return fmt.Errorf("failed to await completion watchers: %w", err)
	}
	return nil
}

func (s *WalletService) RegisterService(ctx context.Context, serviceUid, callbackUrl string) (*database.Services, error) {
	if serviceUid == "" {
		return nil, fmt.Errorf("%w: empty service uid", ErrInvalidRequest)
	}
	service := &database.Services{
		GUID:        newGuid(),
		ServiceUid:  serviceUid,
		CallbackUrl: callbackUrl,
		Timestamp:   uint64(time.Now().Unix()),
	}
	if err := s.db.Services.StoreService(service); err != nil {
		return nil, fmt.Errorf("store service %s: %w", serviceUid, err)
	}
	log.Info("service registered", "service", serviceUid, "callback", callbackUrl)
	return s.db.Services.QueryServiceByUid(serviceUid)
}

// RegisterAddress 登记业务方地址，写入缓存并订阅原生币转账与代币到账通知
func (s *WalletService) RegisterAddress(ctx context.Context, serviceUid string, account ledger.Account, accountType database.AccountType, publicKey string) (*database.Addresses, error) {
	if _, err := s.service(serviceUid); err != nil {
		return nil, err
	}
	stored, err := s.db.Addresses.StoreAddress(&database.Addresses{
		GUID:        newGuid(),
		ServiceUid:  serviceUid,
		Account:     account,
		AccountType: accountType,
		PublicKey:   publicKey,
		Timestamp:   uint64(time.Now().Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("store address %s: %w", account, err)
	}
	if stored.ServiceUid != serviceUid {
		return nil, ErrAddressNotOwned
	}
	s.addresses.Set(stored)

	if err := s.ledger.AddTonAccountSubscription(ctx, []ledger.Account{account}); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", account, err)
	}
	if err := s.ledger.AddWalletNotificationSubscription(ctx, []ledger.Account{account}); err != nil {
		return nil, fmt.Errorf("subscribe notifications of %s: %w", account, err)
	}
	return stored, nil
}

// RegisterTokenWallet links a token wallet to an owner address of the service
// and starts watching it.
func (s *WalletService) RegisterTokenWallet(ctx context.Context, serviceUid string, wallet ledger.TokenWallet) (*database.TokenBalances, error) {
	if _, err := s.ownedAddress(serviceUid, wallet.Owner); err != nil {
		return nil, err
	}
	now := uint64(time.Now().Unix())
	owner, err := s.db.TokenOwners.StoreTokenOwner(&database.TokenOwners{
		GUID:        newGuid(),
		ServiceUid:  serviceUid,
		TokenWallet: wallet.Address,
		Owner:       wallet.Owner,
		Root:        wallet.Root,
		Timestamp:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("store token owner %s: %w", wallet.Address, err)
	}
	if owner.ServiceUid != serviceUid || owner.Owner != wallet.Owner || owner.Root != wallet.Root {
		return nil, fmt.Errorf("%w: token wallet %s belongs to %s", ErrAddressNotOwned, wallet.Address, owner.Owner)
	}
	balance, err := s.db.TokenBalances.StoreTokenBalance(&database.TokenBalances{
		GUID:        newGuid(),
		ServiceUid:  serviceUid,
		Owner:       wallet.Owner,
		Root:        wallet.Root,
		TokenWallet: wallet.Address,
		Balance:     new(big.Int),
		Timestamp:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("store token balance %s: %w", wallet.Address, err)
	}
	if err := s.ledger.AddTokenWalletSubscription(ctx, []ledger.TokenWallet{wallet}); err != nil {
		return nil, fmt.Errorf("subscribe token wallet %s: %w", wallet.Address, err)
	}
	log.Info("token wallet registered", "service", serviceUid, "wallet", wallet.Address, "owner", wallet.Owner, "root", wallet.Root)
	return balance, nil
}

// RestoreSubscriptions rebuilds the address cache and every ledger
// subscription from storage.
func (s *WalletService) RestoreSubscriptions(ctx context.Context) error {
	addresses, err := s.db.Addresses.QueryAllAddresses()
	if err != nil {
		return fmt.Errorf("query addresses: %w", err)
	}
	accounts := make([]ledger.Account, 0, len(addresses))
	for i := range addresses {
		s.addresses.Set(&addresses[i])
		accounts = append(accounts, addresses[i].Account)
	}
	if err := s.ledger.AddTonAccountSubscription(ctx, accounts); err != nil {
		return fmt.Errorf("restore account subscriptions: %w", err)
	}
	if err := s.ledger.AddWalletNotificationSubscription(ctx, accounts); err != nil {
		return fmt.Errorf("restore notification subscriptions: %w", err)
	}

	owners, err := s.db.TokenOwners.QueryAllTokenOwners()
	if err != nil {
		return fmt.Errorf("query token owners: %w", err)
	}
	wallets := make([]ledger.TokenWallet, 0, len(owners))
	for _, owner := range owners {
		wallets = append(wallets, owner.TokenWalletInfo())
	}
	if err := s.ledger.AddTokenWalletSubscription(ctx, wallets); err != nil {
		return fmt.Errorf("restore token wallet subscriptions: %w", err)
	}
	log.Info("subscriptions restored", "addresses", len(accounts), "token_wallets", len(wallets))
	return nil
}

func (s *WalletService) GetAddress(ctx context.Context, serviceUid string, account ledger.Account) (*database.Addresses, error) {
	return s.ownedAddress(serviceUid, account)
}

func (s *WalletService) CheckAddress(address string) bool {
	_, err := ledger.ParseAccount(address)
	return err == nil
}

// GetAddressBalance joins the stored address with its on-ledger state. An
// account the ledger does not know yet reports a zero balance.
func (s *WalletService) GetAddressBalance(ctx context.Context, serviceUid string, account ledger.Account) (*AddressBalance, error) {
	address, err := s.ownedAddress(serviceUid, account)
	if err != nil {
		return nil, err
	}
	result := &AddressBalance{Address: address, Balance: new(big.Int)}
	state, err := s.ledger.GetContractState(ctx, account)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
	case err != nil:
		return nil, err
	default:
		result.Deployed = true
		result.Balance = state.Balance
		result.LastTransactionHash = state.LastTransactionHash
		result.LastTransactionLt = state.LastTransactionLt
	}
	tokens, err := s.db.TokenBalances.QueryTokenBalancesByOwner(account)
	if err != nil {
		return nil, fmt.Errorf("query token balances of %s: %w", account, err)
	}
	result.Tokens = tokens
	return result, nil
}

func (s *WalletService) service(serviceUid string) (*database.Services, error) {
	service, err := s.db.Services.QueryServiceByUid(serviceUid)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceUid)
	}
	return service, err
}

// resolveAddress 先查缓存，未命中再查库并回填缓存
func (s *WalletService) resolveAddress(account ledger.Account) (*database.Addresses, error) {
	if address, ok := s.addresses.Get(account); ok {
		return address, nil
	}
	address, err := s.db.Addresses.QueryAddressByAccount(account)
	if err != nil {
		return nil, err
	}
	s.addresses.Set(address)
	return address, nil
}

func (s *WalletService) ownedAddress(serviceUid string, account ledger.Account) (*database.Addresses, error) {
	address, err := s.resolveAddress(account)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotOwned, account)
	}
	if err != nil {
		return nil, err
	}
	if address.ServiceUid != serviceUid {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotOwned, account)
	}
	return address, nil
}
