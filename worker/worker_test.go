package worker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapplink-labs/ton-wallet-gateway/common/retry"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

type recordingHandler struct {
	mu            sync.Mutex
	received      []uint64
	updates       []common.Hash
	tokens        []uint64
	notifications []uint64
	failures      map[uint64]int
	calls         map[uint64]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{failures: make(map[uint64]int), calls: make(map[uint64]int)}
}

func (h *recordingHandler) CreateReceiveTransaction(_ context.Context, event *ledger.ReceiveTransaction) (*database.Transactions, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[event.LogicalTime]++
	if event.LogicalTime == 404 {
		return nil, database.ErrRecordNotFound
	}
	if h.failures[event.LogicalTime] > 0 {
		h.failures[event.LogicalTime]--
		return nil, errors.New("database is down")
	}
	h.received = append(h.received, event.LogicalTime)
	return &database.Transactions{}, nil
}

func (h *recordingHandler) UpdateSentTransaction(_ context.Context, event *ledger.SentTransactionUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, event.MessageHash)
	return nil
}

func (h *recordingHandler) CreateReceiveTokenTransaction(_ context.Context, event *ledger.TokenTransactionEvent) (*database.TokenTransactions, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = append(h.tokens, event.LogicalTime)
	return &database.TokenTransactions{}, nil
}

func (h *recordingHandler) HandleWalletNotification(_ context.Context, notification *ledger.WalletNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, notification.LogicalTime)
	return nil
}

func (h *recordingHandler) snapshot() (received []uint64, updates []common.Hash, tokens, notifications []uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.received...), append([]common.Hash(nil), h.updates...),
		append([]uint64(nil), h.tokens...), append([]uint64(nil), h.notifications...)
}

type testStreams struct {
	ton    chan ledger.TonTransactionEvent
	token  chan ledger.TokenTransactionEvent
	notify chan ledger.WalletNotification
}

func setupWorker(t *testing.T, handler Handler) (*EventWorker, testStreams) {
	t.Helper()
	s := testStreams{
		ton:    make(chan ledger.TonTransactionEvent, 16),
		token:  make(chan ledger.TokenTransactionEvent, 16),
		notify: make(chan ledger.WalletNotification, 16),
	}
	w := NewEventWorker(ledger.Streams{
		TonTransactions:     s.ton,
		TokenTransactions:   s.token,
		WalletNotifications: s.notify,
	}, handler, func(error) {})
	w.strategy = &retry.FixedStrategy{Dur: time.Millisecond}
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })
	return w, s
}

func receive(lt uint64) *ledger.ReceiveTransaction {
	return &ledger.ReceiveTransaction{LogicalTime: lt, Value: big.NewInt(1)}
}

func TestEventWorker_DispatchesInOrder(t *testing.T) {
	handler := newRecordingHandler()
	_, s := setupWorker(t, handler)

	s.ton <- receive(1)
	s.ton <- &ledger.SentTransactionUpdate{MessageHash: common.HexToHash("0x01"), LogicalTime: 2}
	s.ton <- receive(3)
	s.token <- ledger.TokenTransactionEvent{LogicalTime: 4}
	s.notify <- ledger.WalletNotification{LogicalTime: 5}

	require.Eventually(t, func() bool {
		received, updates, tokens, notifications := handler.snapshot()
		return len(received) == 2 && len(updates) == 1 && len(tokens) == 1 && len(notifications) == 1
	}, time.Second, 5*time.Millisecond)

	received, updates, tokens, notifications := handler.snapshot()
	assert.Equal(t, []uint64{1, 3}, received)
	assert.Equal(t, []common.Hash{common.HexToHash("0x01")}, updates)
	assert.Equal(t, []uint64{4}, tokens)
	assert.Equal(t, []uint64{5}, notifications)
}

func TestEventWorker_RetriesTransientFailures(t *testing.T) {
	handler := newRecordingHandler()
	handler.failures[7] = 2
	_, s := setupWorker(t, handler)

	s.ton <- receive(7)
	s.ton <- receive(8)

	require.Eventually(t, func() bool {
		received, _, _, _ := handler.snapshot()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)
	received, _, _, _ := handler.snapshot()
	assert.Equal(t, []uint64{7, 8}, received)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, 3, handler.calls[7])
}

func TestEventWorker_SkipsUnregisteredAccounts(t *testing.T) {
	handler := newRecordingHandler()
	_, s := setupWorker(t, handler)

	s.ton <- receive(404)
	s.ton <- receive(9)

	require.Eventually(t, func() bool {
		received, _, _, _ := handler.snapshot()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, 1, handler.calls[404])
}

func TestEventWorker_StopsOnClosedStreams(t *testing.T) {
	handler := newRecordingHandler()
	w, s := setupWorker(t, handler)
	close(s.ton)
	close(s.token)
	close(s.notify)
	assert.NoError(t, w.Close())
}
