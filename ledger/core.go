package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/clock"
)

var (
	ErrNotStarted     = errors.New("ledger core is not started")
	ErrAlreadyStarted = errors.New("ledger core is already started")
	ErrEmptyMessage   = errors.New("external message has no payload")
	ErrMessageExpired = errors.New("external message already expired")
)

const (
	TonTransactionsObserver     = "ton_transactions"
	TokenTransactionsObserver   = "token_transactions"
	WalletNotificationsObserver = "wallet_notifications"

	depthReportInterval = 5 * time.Second
)

type Config struct {
	SweepInterval time.Duration
	Clock         clock.Clock
}

// Streams are the event channels handed to the consumer when the core starts.
type Streams struct {
	TonTransactions     <-chan TonTransactionEvent
	TokenTransactions   <-chan TokenTransactionEvent
	WalletNotifications <-chan WalletNotification
}

type coreState interface {
	isCoreState()
}

type configuredState struct{}

type runningState struct {
	tonTransactions     *AccountObserver[TonTransactionEvent]
	tokenTransactions   *AccountObserver[TokenTransactionEvent]
	walletNotifications *AccountObserver[WalletNotification]
	depthReporter       *clock.LoopFn
}

func (configuredState) isCoreState() {}
func (*runningState) isCoreState()   {}

// Core owns the engine, the pending queue and the subscription registry.
// It is created configured and becomes usable once Start succeeds.
type Core struct {
	engine     Engine
	clock      clock.Clock
	metrics    Metricer
	queue      *PendingMessagesQueue
	subscriber *Subscriber
	wallets    *TokenWallets

	mu    sync.Mutex
	state coreState
}

func NewCore(engine Engine, cfg Config, metrics Metricer) *Core {
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock
	}
	if metrics == nil {
		metrics = NoopMetrics
	}
	queue := NewPendingMessagesQueue(cfg.Clock, cfg.SweepInterval, metrics)
	return &Core{
		engine:     engine,
		clock:      cfg.Clock,
		metrics:    metrics,
		queue:      queue,
		subscriber: NewSubscriber(engine, queue, metrics),
		wallets:    NewTokenWallets(),
		state:      configuredState{},
	}
}

func (c *Core) Start(ctx context.Context) (Streams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(configuredState); !ok {
		return Streams{}, ErrAlreadyStarted
	}
	if err := c.engine.Start(ctx); err != nil {
		return Streams{}, fmt.Errorf("start ledger engine: %w", err)
	}
	c.queue.Start()

	running := &runningState{
		tonTransactions:     NewAccountObserver[TonTransactionEvent](TonTransactionsObserver, TonTransactionExtractor{}, c.metrics),
		tokenTransactions:   NewAccountObserver[TokenTransactionEvent](TokenTransactionsObserver, TokenTransactionExtractor{Wallets: c.wallets}, c.metrics),
		walletNotifications: NewAccountObserver[WalletNotification](WalletNotificationsObserver, WalletNotificationExtractor{}, c.metrics),
	}
	running.depthReporter = clock.NewLoopFn(c.clock, func(context.Context) {
		c.metrics.RecordObserverQueueDepth(TonTransactionsObserver, running.tonTransactions.Len())
		c.metrics.RecordObserverQueueDepth(TokenTransactionsObserver, running.tokenTransactions.Len())
		c.metrics.RecordObserverQueueDepth(WalletNotificationsObserver, running.walletNotifications.Len())
	}, nil, depthReportInterval)
	c.state = running

	log.Info("ledger core started")
	return Streams{
		TonTransactions:     running.tonTransactions.Events(),
		TokenTransactions:   running.tokenTransactions.Events(),
		WalletNotifications: running.walletNotifications.Events(),
	}, nil
}

// Close fails outstanding messages, closes the event streams and the engine.
func (c *Core) Close() error {
	c.mu.Lock()
	running, ok := c.state.(*runningState)
	c.state = configuredState{}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var result error
	if err := running.depthReporter.Close(); err != nil {
		result = errors.Join(result, err)
	}
	if err := c.queue.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close pending queue: %w", err))
	}
	if err := c.engine.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close ledger engine: %w", err))
	}
	running.tonTransactions.Close()
	running.tokenTransactions.Close()
	running.walletNotifications.Close()
	return result
}

func (c *Core) running() (*runningState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	running, ok := c.state.(*runningState)
	if !ok {
		return nil, ErrNotStarted
	}
	return running, nil
}

func (c *Core) AddTonAccountSubscription(ctx context.Context, accounts []Account) error {
	running, err := c.running()
	if err != nil {
		return err
	}
	return c.subscriber.AddSubscription(ctx, running.tonTransactions, accounts)
}

// AddTokenWalletSubscription indexes the wallets by address and watches them
// for incoming token transfers.
func (c *Core) AddTokenWalletSubscription(ctx context.Context, wallets []TokenWallet) error {
	running, err := c.running()
	if err != nil {
		return err
	}
	addresses := make([]Account, 0, len(wallets))
	for _, wallet := range wallets {
		c.wallets.Add(wallet)
		addresses = append(addresses, wallet.Address)
	}
	return c.subscriber.AddSubscription(ctx, running.tokenTransactions, addresses)
}

func (c *Core) AddWalletNotificationSubscription(ctx context.Context, owners []Account) error {
	running, err := c.running()
	if err != nil {
		return err
	}
	return c.subscriber.AddSubscription(ctx, running.walletNotifications, owners)
}

func (c *Core) LookupTokenWallet(address Account) (TokenWallet, bool) {
	return c.wallets.LookupTokenWallet(address)
}

// SubmitMessage registers msg as pending and broadcasts it. The returned
// completion resolves when the message lands, expires or the core shuts down.
// A failed broadcast resolves it as MessageError and returns the error.
func (c *Core) SubmitMessage(ctx context.Context, msg *ExternalMessage) (*Completion, error) {
	if _, err := c.running(); err != nil {
		return nil, err
	}
	if len(msg.Payload) == 0 {
		return nil, ErrEmptyMessage
	}
	if msg.Hash == (common.Hash{}) {
		return nil, fmt.Errorf("%w: missing message hash", ErrEmptyMessage)
	}
	if !msg.ExpireAt.After(c.clock.Now()) {
		return nil, ErrMessageExpired
	}

	completion, err := c.queue.AddMessage(msg.Dst, msg.Hash, msg.ExpireAt)
	if err != nil {
		return nil, err
	}
	if err := c.engine.BroadcastMessage(ctx, msg.Dst, msg.Payload); err != nil {
		c.queue.Resolve(msg.Dst, msg.Hash, MessageError)
		return nil, fmt.Errorf("broadcast message %s: %w", msg.Hash, err)
	}
	log.Info("message broadcast", "account", msg.Dst, "hash", msg.Hash, "expire_at", msg.ExpireAt)
	return completion, nil
}

// SendMessage submits msg and blocks until its terminal status.
func (c *Core) SendMessage(ctx context.Context, msg *ExternalMessage) (MessageStatus, error) {
	completion, err := c.SubmitMessage(ctx, msg)
	if err != nil {
		return 0, err
	}
	return completion.Wait(ctx)
}

func (c *Core) GetContractState(ctx context.Context, account Account) (*ContractState, error) {
	if _, err := c.running(); err != nil {
		return nil, err
	}
	state, err := c.engine.GetContractState(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("contract state of %s: %w", account, err)
	}
	return state, nil
}

func (c *Core) PendingMessages() int {
	return c.queue.Len()
}
