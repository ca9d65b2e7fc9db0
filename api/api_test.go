package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/services"
)

type fakeWalletService struct {
	services map[string]string
	sends    []*services.SendRequest
	filters  []database.EventFilter
	marked   []uuid.UUID
}

func newFakeWalletService() *fakeWalletService {
	return &fakeWalletService{services: make(map[string]string)}
}

func (f *fakeWalletService) RegisterService(_ context.Context, serviceUid, callbackUrl string) (*database.Services, error) {
	if serviceUid == "" {
		return nil, fmt.Errorf("%w: service uid is required", services.ErrInvalidRequest)
	}
	f.services[serviceUid] = callbackUrl
	return &database.Services{GUID: uuid.New(), ServiceUid: serviceUid, CallbackUrl: callbackUrl}, nil
}

func (f *fakeWalletService) RegisterAddress(_ context.Context, serviceUid string, account ledger.Account, accountType database.AccountType, publicKey string) (*database.Addresses, error) {
	if _, ok := f.services[serviceUid]; !ok {
		return nil, services.ErrUnknownService
	}
	return &database.Addresses{GUID: uuid.New(), ServiceUid: serviceUid, Account: account, AccountType: accountType, PublicKey: publicKey}, nil
}

func (f *fakeWalletService) RegisterTokenWallet(_ context.Context, serviceUid string, wallet ledger.TokenWallet) (*database.TokenBalances, error) {
	return nil, services.ErrAddressNotOwned
}

func (f *fakeWalletService) GetAddress(_ context.Context, serviceUid string, account ledger.Account) (*database.Addresses, error) {
	return nil, database.ErrRecordNotFound
}

func (f *fakeWalletService) CheckAddress(address string) bool {
	_, err := ledger.ParseAccount(address)
	return err == nil
}

func (f *fakeWalletService) GetAddressBalance(_ context.Context, serviceUid string, account ledger.Account) (*services.AddressBalance, error) {
	return &services.AddressBalance{Address: &database.Addresses{ServiceUid: serviceUid, Account: account}, Balance: big.NewInt(42)}, nil
}

func (f *fakeWalletService) CreateSendTransaction(_ context.Context, req *services.SendRequest) (*database.Transactions, error) {
	f.sends = append(f.sends, req)
	return &database.Transactions{
		GUID:        uuid.New(),
		ServiceUid:  req.ServiceUid,
		MessageHash: req.MessageHash,
		Account:     req.Account,
		Value:       req.Value,
		Direction:   database.DirectionOutgoing,
		Status:      database.TxStatusNew,
		EventStatus: database.EventStatusNew,
	}, nil
}

func (f *fakeWalletService) CreateSendTokenTransaction(_ context.Context, req *services.TokenSendRequest) (*database.TokenTransactions, error) {
	return nil, fmt.Errorf("%w: amount must be positive", services.ErrInvalidRequest)
}

func (f *fakeWalletService) GetTransactionByMessageHash(_ context.Context, serviceUid string, account ledger.Account, messageHash common.Hash) (*database.Transactions, error) {
	return &database.Transactions{ServiceUid: serviceUid, Account: account, MessageHash: messageHash}, nil
}

func (f *fakeWalletService) GetTransactionByHash(_ context.Context, serviceUid string, transactionHash common.Hash) (*database.Transactions, error) {
	return nil, database.ErrRecordNotFound
}

func (f *fakeWalletService) GetTokenTransactionByMessageHash(_ context.Context, serviceUid string, owner, root ledger.Account, messageHash common.Hash) (*database.TokenTransactions, error) {
	return nil, database.ErrRecordNotFound
}

func (f *fakeWalletService) SearchEvents(_ context.Context, serviceUid string, filter database.EventFilter) ([]database.Transactions, int64, error) {
	f.filters = append(f.filters, filter)
	return []database.Transactions{{ServiceUid: serviceUid, EventStatus: database.EventStatusError}}, 7, nil
}

func (f *fakeWalletService) MarkEvent(_ context.Context, serviceUid string, id uuid.UUID) (*database.Transactions, error) {
	f.marked = append(f.marked, id)
	return &database.Transactions{GUID: id, ServiceUid: serviceUid, EventStatus: database.EventStatusNotified}, nil
}

func (f *fakeWalletService) SearchTokenEvents(_ context.Context, serviceUid string, filter database.EventFilter) ([]database.TokenTransactions, int64, error) {
	f.filters = append(f.filters, filter)
	return nil, 0, nil
}

func (f *fakeWalletService) MarkTokenEvent(_ context.Context, serviceUid string, id uuid.UUID) (*database.TokenTransactions, error) {
	return nil, database.ErrRecordNotFound
}

type response struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, router http.Handler, method, path, serviceUid, body string) (int, response) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if serviceUid != "" {
		req.Header.Set(ServiceHeader, serviceUid)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

const testAccount = "0:1111111111111111111111111111111111111111111111111111111111111111"

func TestRouter_Healthz(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))
	code, resp := do(t, router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
}

func TestRouter_RequiresServiceHeader(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))
	code, resp := do(t, router, http.MethodPost, "/api/v1/addresses", "", `{"account":"`+testAccount+`"}`)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "MISSING_SERVICE", resp.Code)
}

func TestRouter_RegisterServiceAndAddress(t *testing.T) {
	svc := newFakeWalletService()
	router := NewRouter(NewHandler(svc))

	code, resp := do(t, router, http.MethodPost, "/api/v1/services", "", `{"service_uid":"exchange","callback_url":"http://cb"}`)
	require.Equal(t, http.StatusCreated, code)
	var service database.Services
	require.NoError(t, json.Unmarshal(resp.Data, &service))
	assert.Equal(t, "exchange", service.ServiceUid)

	code, resp = do(t, router, http.MethodPost, "/api/v1/addresses", "exchange",
		`{"account":"`+testAccount+`","account_type":"highload_wallet"}`)
	require.Equal(t, http.StatusCreated, code)
	var address database.Addresses
	require.NoError(t, json.Unmarshal(resp.Data, &address))
	assert.Equal(t, testAccount, address.Account.String())
	assert.Equal(t, database.AccountTypeHighloadWallet, address.AccountType)

	code, resp = do(t, router, http.MethodPost, "/api/v1/addresses", "unknown", `{"account":"`+testAccount+`"}`)
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "UNKNOWN_SERVICE", resp.Code)
}

func TestRouter_RejectsMalformedBodies(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))

	cases := []struct {
		name string
		body string
	}{
		{"bad account", `{"account":"nope"}`},
		{"unknown field", `{"account":"` + testAccount + `","extra":1}`},
		{"bad account type", `{"account":"` + testAccount + `","account_type":"vault"}`},
		{"two values", `{"account":"` + testAccount + `"}{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := do(t, router, http.MethodPost, "/api/v1/addresses", "exchange", tc.body)
			require.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
		})
	}
}

func TestRouter_CreateSendTransaction(t *testing.T) {
	svc := newFakeWalletService()
	router := NewRouter(NewHandler(svc))

	messageHash := common.HexToHash("0xabcd")
	body := fmt.Sprintf(`{"account":%q,"recipient":%q,"value":1000000000,"bounce":true,"message_hash":%q,"payload":"AQID","expire_at":1700000000}`,
		testAccount, testAccount, messageHash.Hex())
	code, resp := do(t, router, http.MethodPost, "/api/v1/transactions", "exchange", body)
	require.Equal(t, http.StatusCreated, code, resp.Message)

	require.Len(t, svc.sends, 1)
	req := svc.sends[0]
	assert.Equal(t, "exchange", req.ServiceUid)
	assert.Equal(t, messageHash, req.MessageHash)
	assert.Equal(t, []byte{1, 2, 3}, req.Payload)
	assert.Equal(t, int64(1_700_000_000), req.ExpireAt.Unix())
	assert.Equal(t, 0, req.Value.Cmp(big.NewInt(1_000_000_000)))
	require.NotNil(t, req.Recipient)
	assert.True(t, req.Bounce)

	var tx database.Transactions
	require.NoError(t, json.Unmarshal(resp.Data, &tx))
	assert.Equal(t, database.TxStatusNew, tx.Status)
}

func TestRouter_TokenSendValidation(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))
	body := fmt.Sprintf(`{"owner":%q,"root":%q,"recipient":%q,"amount":0,"message_hash":%q}`,
		testAccount, testAccount, testAccount, common.HexToHash("0x01").Hex())
	code, resp := do(t, router, http.MethodPost, "/api/v1/token-transactions", "exchange", body)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", resp.Code)
}

func TestRouter_Lookups(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))
	messageHash := common.HexToHash("0xbeef")

	code, resp := do(t, router, http.MethodGet, "/api/v1/transactions/mh/"+messageHash.Hex()+"?account="+testAccount, "exchange", "")
	require.Equal(t, http.StatusOK, code)
	var tx database.Transactions
	require.NoError(t, json.Unmarshal(resp.Data, &tx))
	assert.Equal(t, messageHash, tx.MessageHash)

	code, resp = do(t, router, http.MethodGet, "/api/v1/transactions/mh/0x1234?account="+testAccount, "exchange", "")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", resp.Code)

	code, resp = do(t, router, http.MethodGet, "/api/v1/transactions/h/"+messageHash.Hex(), "exchange", "")
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	code, resp = do(t, router, http.MethodGet, "/api/v1/addresses/"+testAccount+"/balance", "exchange", "")
	require.Equal(t, http.StatusOK, code)
	var balance services.AddressBalance
	require.NoError(t, json.Unmarshal(resp.Data, &balance))
	assert.Equal(t, 0, balance.Balance.Cmp(big.NewInt(42)))

	code, resp = do(t, router, http.MethodPost, "/api/v1/token-wallets", "exchange",
		fmt.Sprintf(`{"token_wallet":%q,"owner":%q,"root":%q}`, testAccount, testAccount, testAccount))
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ADDRESS_NOT_FOUND", resp.Code)
}

func TestRouter_CheckAddress(t *testing.T) {
	router := NewRouter(NewHandler(newFakeWalletService()))
	code, resp := do(t, router, http.MethodPost, "/api/v1/addresses/check", "exchange", `{"address":"`+testAccount+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"valid":true}`, string(resp.Data))

	_, resp = do(t, router, http.MethodPost, "/api/v1/addresses/check", "exchange", `{"address":"0:zz"}`)
	assert.JSONEq(t, `{"valid":false}`, string(resp.Data))
}

func TestRouter_Events(t *testing.T) {
	svc := newFakeWalletService()
	router := NewRouter(NewHandler(svc))

	code, resp := do(t, router, http.MethodGet, "/api/v1/events?event_status=error,new&direction=incoming&limit=10&offset=5", "exchange", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, svc.filters, 1)
	assert.Equal(t, database.EventFilter{
		EventStatus: []database.EventStatus{database.EventStatusError, database.EventStatusNew},
		Direction:   database.DirectionIncoming,
		Limit:       10,
		Offset:      5,
	}, svc.filters[0])

	var got page[database.Transactions]
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, int64(7), got.Total)
	require.Len(t, got.Items, 1)

	for _, query := range []string{"event_status=done", "direction=sideways", "limit=-1", "offset=x"} {
		code, resp = do(t, router, http.MethodGet, "/api/v1/token-events?"+query, "exchange", "")
		assert.Equal(t, http.StatusBadRequest, code, query)
		assert.Equal(t, "INVALID_REQUEST", resp.Code, query)
	}

	id := uuid.New()
	code, _ = do(t, router, http.MethodPost, "/api/v1/events/"+id.String()+"/mark", "exchange", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []uuid.UUID{id}, svc.marked)

	code, _ = do(t, router, http.MethodPost, "/api/v1/events/not-a-uuid/mark", "exchange", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = do(t, router, http.MethodPost, "/api/v1/token-events/"+id.String()+"/mark", "exchange", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.True(t, strings.Contains(resp.Message, "not found"))
}
