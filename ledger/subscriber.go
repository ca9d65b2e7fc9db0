package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/slices"
)

// Subscriber is the account → observers registry. It is the engine's sink:
// every transaction first settles a matching pending message, then fans out
// to the observers of its account.
type Subscriber struct {
	engine  Engine
	queue   *PendingMessagesQueue
	metrics Metricer

	// subscribeMu serializes AddSubscription so a failed engine subscribe
	// can't strand an observer added concurrently for the same account.
	// HandleTransaction never takes it.
	subscribeMu sync.Mutex

	mu            sync.RWMutex
	subscriptions map[Account][]Observer
}

func NewSubscriber(engine Engine, queue *PendingMessagesQueue, metrics Metricer) *Subscriber {
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &Subscriber{
		engine:        engine,
		queue:         queue,
		metrics:       metrics,
		subscriptions: make(map[Account][]Observer),
	}
}

// AddSubscription registers observer for accounts. Adding an existing pair is
// a no-op. Accounts not yet watched by any observer are subscribed on the engine.
func (s *Subscriber) AddSubscription(ctx context.Context, observer Observer, accounts []Account) error {
	s.subscribeMu.Lock()
	defer s.subscribeMu.Unlock()

	var fresh []Account
	s.mu.Lock()
	for _, account := range slices.Dedup(accounts) {
		current := s.subscriptions[account]
		if len(current) == 0 {
			fresh = append(fresh, account)
		}
		if containsObserver(current, observer) {
			continue
		}
		// copy on write, HandleTransaction iterates snapshots without the lock
		next := make([]Observer, 0, len(current)+1)
		next = append(next, current...)
		s.subscriptions[account] = append(next, observer)
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := s.engine.Subscribe(ctx, fresh, s); err != nil {
		s.rollback(observer, fresh)
		return fmt.Errorf("subscribe %d accounts: %w", len(fresh), err)
	}
	log.Debug("accounts subscribed", "observer", observer.Name(), "count", len(fresh))
	return nil
}

func (s *Subscriber) rollback(observer Observer, accounts []Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range accounts {
		rest := slices.Filter(s.subscriptions[account], func(o Observer) bool { return o != observer })
		if len(rest) == 0 {
			delete(s.subscriptions, account)
		} else {
			s.subscriptions[account] = rest
		}
	}
}

func (s *Subscriber) HandleTransaction(tx *RawTransaction) {
	s.metrics.RecordLedgerTransaction()

	if hash, ok := tx.ExternalInHash(); ok {
		if s.queue.Resolve(tx.Account, hash, MessageConfirmed) {
			log.Info("pending message confirmed", "account", tx.Account, "message", hash, "tx", tx.Hash)
		}
	}

	s.mu.RLock()
	observers := s.subscriptions[tx.Account]
	s.mu.RUnlock()

	for _, observer := range observers {
		observer.HandleTransaction(tx)
	}
}

func (s *Subscriber) IsWatched(account Account) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions[account]) > 0
}

func (s *Subscriber) Accounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]Account, 0, len(s.subscriptions))
	for account := range s.subscriptions {
		accounts = append(accounts, account)
	}
	return accounts
}

func containsObserver(observers []Observer, observer Observer) bool {
	for _, o := range observers {
		if o == observer {
			return true
		}
	}
	return false
}
