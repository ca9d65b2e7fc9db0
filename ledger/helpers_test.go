package ledger

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type broadcastCall struct {
	dst     Account
	payload []byte
}

type fakeEngine struct {
	mu           sync.Mutex
	started      bool
	closed       bool
	sink         TransactionSink
	subscribed   []Account
	broadcasts   []broadcastCall
	states       map[Account]*ContractState
	subscribeErr error
	broadcastErr error
	onSubscribe  func()
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{states: make(map[Account]*ContractState)}
}

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) Subscribe(_ context.Context, accounts []Account, sink TransactionSink) error {
	e.mu.Lock()
	hook := e.onSubscribe
	e.mu.Unlock()
	if hook != nil {
		hook()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subscribeErr != nil {
		return e.subscribeErr
	}
	e.sink = sink
	e.subscribed = append(e.subscribed, accounts...)
	return nil
}

func (e *fakeEngine) BroadcastMessage(_ context.Context, dst Account, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broadcastErr != nil {
		return e.broadcastErr
	}
	e.broadcasts = append(e.broadcasts, broadcastCall{dst: dst, payload: payload})
	return nil
}

func (e *fakeEngine) GetContractState(_ context.Context, account Account) (*ContractState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[account]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return state, nil
}

func (e *fakeEngine) deliver(tx *RawTransaction) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	sink.HandleTransaction(tx)
}

func (e *fakeEngine) subscribedAccounts() []Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Account(nil), e.subscribed...)
}

func testAccount(t *testing.T, b byte) Account {
	t.Helper()
	return Account{Workchain: 0, Address: common.BytesToHash([]byte{0xaa, b})}
}

func externalTx(account Account, msgHash, txHash common.Hash, lt uint64) *RawTransaction {
	return &RawTransaction{
		Account:       account,
		Hash:          txHash,
		LogicalTime:   lt,
		Timestamp:     time.Unix(1_700_000_000, 0),
		Fee:           big.NewInt(5_000_000),
		BalanceChange: big.NewInt(-105_000_000),
		InMessage: &Message{
			Hash: msgHash,
			Kind: MessageExternalIn,
			Dst:  &account,
		},
		OutMessages: []Message{{
			Kind:  MessageInternal,
			Src:   &account,
			Value: big.NewInt(100_000_000),
		}},
	}
}

func internalTx(account Account, sender Account, msgHash, txHash common.Hash, lt uint64, value int64) *RawTransaction {
	return &RawTransaction{
		Account:     account,
		Hash:        txHash,
		LogicalTime: lt,
		Timestamp:   time.Unix(1_700_000_000, 0),
		InMessage: &Message{
			Hash:  msgHash,
			Kind:  MessageInternal,
			Src:   &sender,
			Dst:   &account,
			Value: big.NewInt(value),
		},
	}
}

func receiveN[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "channel closed after %d events", len(out))
			out = append(out, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func requireNoEvent[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}
