package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/services"
)

const ServiceHeader = "X-Service-Id"

// WalletService is the orchestration surface exposed over REST.
type WalletService interface {
	RegisterService(ctx context.Context, serviceUid, callbackUrl string) (*database.Services, error)
	RegisterAddress(ctx context.Context, serviceUid string, account ledger.Account, accountType database.AccountType, publicKey string) (*database.Addresses, error)
	RegisterTokenWallet(ctx context.Context, serviceUid string, wallet ledger.TokenWallet) (*database.TokenBalances, error)
	GetAddress(ctx context.Context, serviceUid string, account ledger.Account) (*database.Addresses, error)
	CheckAddress(address string) bool
	GetAddressBalance(ctx context.Context, serviceUid string, account ledger.Account) (*services.AddressBalance, error)
	CreateSendTransaction(ctx context.Context, req *services.SendRequest) (*database.Transactions, error)
	CreateSendTokenTransaction(ctx context.Context, req *services.TokenSendRequest) (*database.TokenTransactions, error)
	GetTransactionByMessageHash(ctx context.Context, serviceUid string, account ledger.Account, messageHash common.Hash) (*database.Transactions, error)
	GetTransactionByHash(ctx context.Context, serviceUid string, transactionHash common.Hash) (*database.Transactions, error)
	GetTokenTransactionByMessageHash(ctx context.Context, serviceUid string, owner, root ledger.Account, messageHash common.Hash) (*database.TokenTransactions, error)
	SearchEvents(ctx context.Context, serviceUid string, filter database.EventFilter) ([]database.Transactions, int64, error)
	MarkEvent(ctx context.Context, serviceUid string, id uuid.UUID) (*database.Transactions, error)
	SearchTokenEvents(ctx context.Context, serviceUid string, filter database.EventFilter) ([]database.TokenTransactions, int64, error)
	MarkTokenEvent(ctx context.Context, serviceUid string, id uuid.UUID) (*database.TokenTransactions, error)
}

type Handler struct {
	service WalletService
}

func NewHandler(service WalletService) *Handler {
	return &Handler{service: service}
}

// NewRouter 注册网关的 REST 路由；除注册业务方外都需要 X-Service-Id 头
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", handler.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/services", handler.registerService)

		r.Group(func(r chi.Router) {
			r.Use(requireService)

			r.Post("/addresses", handler.registerAddress)
			r.Post("/addresses/check", handler.checkAddress)
			r.Get("/addresses/{account}", handler.getAddress)
			r.Get("/addresses/{account}/balance", handler.getAddressBalance)
			r.Post("/token-wallets", handler.registerTokenWallet)

			r.Post("/transactions", handler.createSendTransaction)
			r.Get("/transactions/mh/{messageHash}", handler.getTransactionByMessageHash)
			r.Get("/transactions/h/{transactionHash}", handler.getTransactionByHash)
			r.Post("/token-transactions", handler.createSendTokenTransaction)
			r.Get("/token-transactions/mh/{messageHash}", handler.getTokenTransactionByMessageHash)

			r.Get("/events", handler.searchEvents)
			r.Post("/events/{id}/mark", handler.markEvent)
			r.Get("/token-events", handler.searchTokenEvents)
			r.Post("/token-events/{id}/mark", handler.markTokenEvent)
		})
	})
	return r
}

type serviceKey struct{}

func requireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serviceUid := r.Header.Get(ServiceHeader)
		if serviceUid == "" {
			writeError(w, http.StatusUnauthorized, "MISSING_SERVICE", ServiceHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceKey{}, serviceUid)))
	})
}

func serviceFrom(r *http.Request) string {
	serviceUid, _ := r.Context().Value(serviceKey{}).(string)
	return serviceUid
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}
