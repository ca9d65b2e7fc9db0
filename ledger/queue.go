package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/clock"
)

var ErrDuplicateEntry = errors.New("pending message already exists")

const DefaultSweepInterval = time.Second

type pendingKey struct {
	account Account
	hash    common.Hash
}

type pendingMessage struct {
	expireAt   time.Time
	completion *Completion
}

// PendingMessagesQueue tracks broadcast messages until a transaction carrying
// them is observed or their deadline passes.
type PendingMessagesQueue struct {
	clock         clock.Clock
	sweepInterval time.Duration
	metrics       Metricer

	mu      sync.Mutex
	entries map[pendingKey]*pendingMessage
	sweeper *clock.LoopFn
}

func NewPendingMessagesQueue(clk clock.Clock, sweepInterval time.Duration, metrics Metricer) *PendingMessagesQueue {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &PendingMessagesQueue{
		clock:         clk,
		sweepInterval: sweepInterval,
		metrics:       metrics,
		entries:       make(map[pendingKey]*pendingMessage),
	}
}

func (q *PendingMessagesQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweeper == nil {
		q.sweeper = clock.NewLoopFn(q.clock, q.sweep, nil, q.sweepInterval)
	}
}

// Close stops the sweep and fails every message that is still pending.
func (q *PendingMessagesQueue) Close() error {
	q.mu.Lock()
	sweeper := q.sweeper
	q.sweeper = nil
	q.mu.Unlock()

	var err error
	if sweeper != nil {
		err = sweeper.Close()
	}

	q.mu.Lock()
	remaining := q.entries
	q.entries = make(map[pendingKey]*pendingMessage)
	q.mu.Unlock()

	for key, entry := range remaining {
		log.Warn("pending message dropped on shutdown", "account", key.account, "hash", key.hash)
		entry.completion.fulfil(MessageError)
	}
	q.metrics.RecordPendingMessages(0)
	return err
}

func (q *PendingMessagesQueue) AddMessage(account Account, hash common.Hash, expireAt time.Time) (*Completion, error) {
	key := pendingKey{account: account, hash: hash}

	q.mu.Lock()
	if _, ok := q.entries[key]; ok {
		q.mu.Unlock()
		return nil, ErrDuplicateEntry
	}
	completion := newCompletion()
	q.entries[key] = &pendingMessage{expireAt: expireAt, completion: completion}
	n := len(q.entries)
	q.mu.Unlock()

	q.metrics.RecordPendingMessages(n)
	return completion, nil
}

// Resolve fulfils the pending entry for (account, hash) if there is one and
// reports whether it did.
func (q *PendingMessagesQueue) Resolve(account Account, hash common.Hash, status MessageStatus) bool {
	key := pendingKey{account: account, hash: hash}

	q.mu.Lock()
	entry, ok := q.entries[key]
	if ok {
		delete(q.entries, key)
	}
	n := len(q.entries)
	q.mu.Unlock()

	if !ok {
		return false
	}
	q.metrics.RecordPendingMessages(n)
	entry.completion.fulfil(status)
	return true
}

func (q *PendingMessagesQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *PendingMessagesQueue) sweep(_ context.Context) {
	now := q.clock.Now()

	var expired []*pendingMessage
	q.mu.Lock()
	for key, entry := range q.entries {
		if !now.Before(entry.expireAt) {
			expired = append(expired, entry)
			delete(q.entries, key)
		}
	}
	n := len(q.entries)
	q.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	log.Debug("pending messages expired", "count", len(expired), "remaining", n)
	q.metrics.RecordPendingMessages(n)
	for _, entry := range expired {
		entry.completion.fulfil(MessageExpired)
	}
}
