package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapplink-labs/ton-wallet-gateway/common/clock"
)

func newTestQueue() (*PendingMessagesQueue, *clock.DeterministicClock) {
	clk := clock.NewDeterministicClock(time.Unix(1_700_000_000, 0))
	return NewPendingMessagesQueue(clk, time.Second, nil), clk
}

func requireStatus(t *testing.T, completion *Completion, want MessageStatus) {
	t.Helper()
	select {
	case got := <-completion.Done():
		require.Equal(t, want, got)
	default:
		t.Fatalf("completion not resolved, want %s", want)
	}
}

func requirePending(t *testing.T, completion *Completion) {
	t.Helper()
	select {
	case got := <-completion.Done():
		t.Fatalf("completion unexpectedly resolved as %s", got)
	default:
	}
}

func TestQueue_ResolveConfirmed(t *testing.T) {
	q, clk := newTestQueue()
	account := testAccount(t, 1)
	hash := common.HexToHash("0x01")

	completion, err := q.AddMessage(account, hash, clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	assert.True(t, q.Resolve(account, hash, MessageConfirmed))
	requireStatus(t, completion, MessageConfirmed)
	assert.Zero(t, q.Len())

	assert.False(t, q.Resolve(account, hash, MessageConfirmed), "second resolution is a no-op")
}

func TestQueue_DuplicateEntry(t *testing.T) {
	q, clk := newTestQueue()
	account := testAccount(t, 1)
	hash := common.HexToHash("0x01")

	first, err := q.AddMessage(account, hash, clk.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = q.AddMessage(account, hash, clk.Now().Add(2*time.Minute))
	require.ErrorIs(t, err, ErrDuplicateEntry)

	// the same hash on another account is a different entry
	_, err = q.AddMessage(testAccount(t, 2), hash, clk.Now().Add(time.Minute))
	require.NoError(t, err)

	requirePending(t, first)
	q.Resolve(account, hash, MessageConfirmed)
	requireStatus(t, first, MessageConfirmed)

	// resolved entries free the key
	_, err = q.AddMessage(account, hash, clk.Now().Add(time.Minute))
	require.NoError(t, err)
}

func TestQueue_ResolveUnknownIsNoop(t *testing.T) {
	q, _ := newTestQueue()
	assert.False(t, q.Resolve(testAccount(t, 9), common.HexToHash("0x09"), MessageConfirmed))
}

func TestQueue_SweepExpires(t *testing.T) {
	q, clk := newTestQueue()
	account := testAccount(t, 1)
	expireAt := clk.Now().Add(10 * time.Second)

	completion, err := q.AddMessage(account, common.HexToHash("0x01"), expireAt)
	require.NoError(t, err)
	later, err := q.AddMessage(account, common.HexToHash("0x02"), expireAt.Add(time.Minute))
	require.NoError(t, err)

	clk.AdvanceTime(9 * time.Second)
	q.sweep(context.Background())
	requirePending(t, completion)

	clk.AdvanceTime(time.Second)
	q.sweep(context.Background())
	requireStatus(t, completion, MessageExpired)
	requirePending(t, later)
	assert.Equal(t, 1, q.Len())

	// a confirmation arriving after expiry changes nothing
	assert.False(t, q.Resolve(account, common.HexToHash("0x01"), MessageConfirmed))
}

func TestQueue_ConcurrentResolveAndSweep(t *testing.T) {
	for i := 0; i < 50; i++ {
		q, clk := newTestQueue()
		account := testAccount(t, 1)
		hash := common.HexToHash("0x01")
		completion, err := q.AddMessage(account, hash, clk.Now())
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); q.sweep(context.Background()) }()
		go func() { defer wg.Done(); q.Resolve(account, hash, MessageConfirmed) }()
		go func() { defer wg.Done(); q.Resolve(account, hash, MessageError) }()
		wg.Wait()

		select {
		case status := <-completion.Done():
			assert.Contains(t, []MessageStatus{MessageConfirmed, MessageExpired, MessageError}, status)
		default:
			t.Fatal("completion not resolved")
		}
		requirePending(t, completion)
	}
}

func TestQueue_CloseFailsPending(t *testing.T) {
	q, clk := newTestQueue()
	q.Start()
	completion, err := q.AddMessage(testAccount(t, 1), common.HexToHash("0x01"), clk.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, q.Close())
	requireStatus(t, completion, MessageError)
	assert.Zero(t, q.Len())
}

func TestQueue_BackgroundSweep(t *testing.T) {
	q, clk := newTestQueue()
	q.Start()
	defer q.Close()

	completion, err := q.AddMessage(testAccount(t, 1), common.HexToHash("0x01"), clk.Now().Add(2*time.Second))
	require.NoError(t, err)

	clk.AdvanceTime(2 * time.Second)
	status, err := completion.Wait(contextWithTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, MessageExpired, status)
}

func TestCompletion_SecondFulfilPanics(t *testing.T) {
	c := newCompletion()
	c.fulfil(MessageConfirmed)
	assert.Panics(t, func() { c.fulfil(MessageExpired) })
}

func contextWithTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
