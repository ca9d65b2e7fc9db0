package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dapplink-labs/ton-wallet-gateway/common/cache"
	"github.com/dapplink-labs/ton-wallet-gateway/common/clock"
	"github.com/dapplink-labs/ton-wallet-gateway/config"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/database/memdb"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/notifier"
)

const (
	testService  = "exchange"
	otherService = "payroll"
	testTTL      = 30 * time.Second
)

type fakeEngine struct {
	mu           sync.Mutex
	sink         ledger.TransactionSink
	subscribed   map[ledger.Account]int
	broadcasts   []ledger.Account
	states       map[ledger.Account]*ledger.ContractState
	broadcastErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		subscribed: make(map[ledger.Account]int),
		states:     make(map[ledger.Account]*ledger.ContractState),
	}
}

func (e *fakeEngine) Start(context.Context) error { return nil }
func (e *fakeEngine) Close() error                { return nil }

func (e *fakeEngine) Subscribe(_ context.Context, accounts []ledger.Account, sink ledger.TransactionSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
	for _, account := range accounts {
		e.subscribed[account]++
	}
	return nil
}

func (e *fakeEngine) BroadcastMessage(_ context.Context, dst ledger.Account, _ []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broadcastErr != nil {
		return e.broadcastErr
	}
	e.broadcasts = append(e.broadcasts, dst)
	return nil
}

func (e *fakeEngine) GetContractState(_ context.Context, account ledger.Account) (*ledger.ContractState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[account]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return state, nil
}

func (e *fakeEngine) isSubscribed(account ledger.Account) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscribed[account] > 0
}

func (e *fakeEngine) deliver(tx *ledger.RawTransaction) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	sink.HandleTransaction(tx)
}

type webhook struct {
	server *httptest.Server
	fail   atomic.Bool

	mu     sync.Mutex
	events []notifier.Event
}

func newWebhook(t *testing.T) *webhook {
	w := &webhook{}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var event notifier.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		if w.fail.Load() {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.mu.Lock()
		w.events = append(w.events, event)
		w.mu.Unlock()
		rw.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(w.server.Close)
	return w
}

func (w *webhook) received() []notifier.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]notifier.Event(nil), w.events...)
}

type recordingMetrics struct {
	mu         sync.Mutex
	deliveries int
	failures   int
	statuses   map[string]int
}

func (m *recordingMetrics) RecordWebhookDelivery(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries++
	if !ok {
		m.failures++
	}
}

func (m *recordingMetrics) RecordMessageStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[string]int)
	}
	m.statuses[status]++
}

func (m *recordingMetrics) deliveryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveries
}

func (m *recordingMetrics) statusCount(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[status]
}

type testEnv struct {
	svc     *WalletService
	db      *database.DB
	core    *ledger.Core
	engine  *fakeEngine
	clock   *clock.DeterministicClock
	streams ledger.Streams
	hook    *webhook
	metrics *recordingMetrics
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:      memdb.New(),
		engine:  newFakeEngine(),
		clock:   clock.NewDeterministicClock(time.Now()),
		hook:    newWebhook(t),
		metrics: &recordingMetrics{},
	}
	env.core = ledger.NewCore(env.engine, ledger.Config{SweepInterval: time.Second, Clock: env.clock}, nil)
	streams, err := env.core.Start(context.Background())
	require.NoError(t, err)
	env.streams = streams
	t.Cleanup(func() { _ = env.core.Close() })

	addresses, err := cache.NewAddressCache(config.CacheConfig{AddressSize: 1024})
	require.NoError(t, err)
	t.Cleanup(addresses.Close)

	env.svc = NewWalletService(env.db, env.core, addresses, notifier.NewCallbackClient(time.Second),
		nil, Config{MessageTTL: testTTL}, env.metrics, func(error) {})
	t.Cleanup(func() { _ = env.svc.Close() })
	return env
}

func (env *testEnv) registerService(t *testing.T, serviceUid string, withCallback bool) {
	t.Helper()
	url := ""
	if withCallback {
		url = env.hook.server.URL
	}
	_, err := env.svc.RegisterService(context.Background(), serviceUid, url)
	require.NoError(t, err)
}

func (env *testEnv) registerAddress(t *testing.T, serviceUid string, account ledger.Account) {
	t.Helper()
	_, err := env.svc.RegisterAddress(context.Background(), serviceUid, account, database.AccountTypeWallet, "")
	require.NoError(t, err)
}

func account(b byte) ledger.Account {
	return ledger.Account{Workchain: 0, Address: common.BytesToHash([]byte{0xcc, b})}
}

func hash(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

func sendRequest(serviceUid string, from ledger.Account, msgHash common.Hash) *SendRequest {
	to := account(0xfe)
	return &SendRequest{
		ServiceUid:  serviceUid,
		Account:     from,
		Recipient:   &to,
		Value:       big.NewInt(1_000_000_000),
		Comment:     "withdraw #1",
		MessageHash: msgHash,
		Payload:     []byte{0xb5, 0xee, 0x9c, 0x72},
	}
}

// externalTx is the on-ledger transaction produced by an external message.
func externalTx(acc ledger.Account, msgHash common.Hash, lt uint64) *ledger.RawTransaction {
	to := account(0xfe)
	return &ledger.RawTransaction{
		Account:       acc,
		Hash:          hash(int64(lt) + 10_000),
		LogicalTime:   lt,
		Timestamp:     time.Unix(1_700_000_000, 0),
		Fee:           big.NewInt(5_000_000),
		BalanceChange: big.NewInt(-1_005_000_000),
		InMessage:     &ledger.Message{Hash: msgHash, Kind: ledger.MessageExternalIn, Dst: &acc},
		OutMessages: []ledger.Message{{
			Hash:  hash(int64(lt) + 20_000),
			Kind:  ledger.MessageInternal,
			Src:   &acc,
			Dst:   &to,
			Value: big.NewInt(1_000_000_000),
		}},
	}
}

func receiveEvent(acc ledger.Account, msgHash common.Hash, lt uint64) *ledger.ReceiveTransaction {
	sender := account(0xfd)
	return &ledger.ReceiveTransaction{
		Account:         acc,
		Sender:          &sender,
		MessageHash:     msgHash,
		TransactionHash: hash(int64(lt) + 10_000),
		LogicalTime:     lt,
		Timestamp:       time.Unix(1_700_000_000, 0),
		Value:           big.NewInt(2_500_000_000),
		Fee:             big.NewInt(1_000),
		BalanceChange:   big.NewInt(2_499_999_000),
		Comment:         "deposit",
	}
}

func nextTonEvent(t *testing.T, env *testEnv) ledger.TonTransactionEvent {
	t.Helper()
	select {
	case event := <-env.streams.TonTransactions:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no ton transaction event")
		return nil
	}
}

// racingTransactions runs afterQuery once, right after the first guid lookup,
// to land a ledger update between a read and the write that follows it.
type racingTransactions struct {
	database.TransactionsDB
	once       sync.Once
	afterQuery func()
}

func (r *racingTransactions) QueryTransactionByGuid(guid uuid.UUID) (*database.Transactions, error) {
	tx, err := r.TransactionsDB.QueryTransactionByGuid(guid)
	r.once.Do(r.afterQuery)
	return tx, err
}

// flakyTokenTransactions fails the next `failures` token sent updates.
type flakyTokenTransactions struct {
	database.TokenTransactionsDB
	failures atomic.Int32
}

func (f *flakyTokenTransactions) ApplyTokenSentUpdate(account ledger.Account, messageHash common.Hash, update database.SentUpdate) ([]database.TokenTransactions, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.TokenTransactionsDB.ApplyTokenSentUpdate(account, messageHash, update)
}

type failingServices struct {
	database.ServicesDB
	err error
}

func (f *failingServices) QueryServiceByUid(string) (*database.Services, error) {
	return nil, f.err
}
