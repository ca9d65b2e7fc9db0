package api

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/services"
)

type registerServiceRequest struct {
	ServiceUid  string `json:"service_uid"`
	CallbackUrl string `json:"callback_url"`
}

type registerAddressRequest struct {
	Account     ledger.Account `json:"account"`
	AccountType string         `json:"account_type"`
	PublicKey   string         `json:"public_key"`
}

type checkAddressRequest struct {
	Address string `json:"address"`
}

type registerTokenWalletRequest struct {
	TokenWallet ledger.Account `json:"token_wallet"`
	Owner       ledger.Account `json:"owner"`
	Root        ledger.Account `json:"root"`
}

// payload is the signed message, base64 encoded; expire_at is unix seconds
// and defaults to now + message TTL.
type sendTransactionRequest struct {
	Account     ledger.Account  `json:"account"`
	Recipient   *ledger.Account `json:"recipient"`
	Value       *big.Int        `json:"value"`
	Bounce      bool            `json:"bounce"`
	Comment     string          `json:"comment"`
	MessageHash common.Hash     `json:"message_hash"`
	Payload     []byte          `json:"payload"`
	ExpireAt    int64           `json:"expire_at"`
}

type sendTokenTransactionRequest struct {
	Owner       ledger.Account `json:"owner"`
	Root        ledger.Account `json:"root"`
	Recipient   ledger.Account `json:"recipient"`
	Amount      *big.Int       `json:"amount"`
	Fee         *big.Int       `json:"fee"`
	MessageHash common.Hash    `json:"message_hash"`
	Payload     []byte         `json:"payload"`
	ExpireAt    int64          `json:"expire_at"`
}

func expireAt(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"state": "ok"})
}

func (h *Handler) registerService(w http.ResponseWriter, r *http.Request) {
	var req registerServiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	service, err := h.service.RegisterService(r.Context(), req.ServiceUid, req.CallbackUrl)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, service)
}

func (h *Handler) registerAddress(w http.ResponseWriter, r *http.Request) {
	var req registerAddressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	accountType, err := database.ParseAccountType(req.AccountType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	address, err := h.service.RegisterAddress(r.Context(), serviceFrom(r), req.Account, accountType, req.PublicKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, address)
}

func (h *Handler) checkAddress(w http.ResponseWriter, r *http.Request) {
	var req checkAddressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"valid": h.service.CheckAddress(req.Address)})
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	account, err := ledger.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	address, err := h.service.GetAddress(r.Context(), serviceFrom(r), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, address)
}

func (h *Handler) getAddressBalance(w http.ResponseWriter, r *http.Request) {
	account, err := ledger.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	balance, err := h.service.GetAddressBalance(r.Context(), serviceFrom(r), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, balance)
}

func (h *Handler) registerTokenWallet(w http.ResponseWriter, r *http.Request) {
	var req registerTokenWalletRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	balance, err := h.service.RegisterTokenWallet(r.Context(), serviceFrom(r), ledger.TokenWallet{
		Address: req.TokenWallet,
		Owner:   req.Owner,
		Root:    req.Root,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, balance)
}

func (h *Handler) createSendTransaction(w http.ResponseWriter, r *http.Request) {
	var req sendTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	tx, err := h.service.CreateSendTransaction(r.Context(), &services.SendRequest{
		ServiceUid:  serviceFrom(r),
		Account:     req.Account,
		Recipient:   req.Recipient,
		Value:       req.Value,
		Bounce:      req.Bounce,
		Comment:     req.Comment,
		MessageHash: req.MessageHash,
		Payload:     req.Payload,
		ExpireAt:    expireAt(req.ExpireAt),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, tx)
}

func (h *Handler) createSendTokenTransaction(w http.ResponseWriter, r *http.Request) {
	var req sendTokenTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	tx, err := h.service.CreateSendTokenTransaction(r.Context(), &services.TokenSendRequest{
		ServiceUid:  serviceFrom(r),
		Owner:       req.Owner,
		Root:        req.Root,
		Recipient:   req.Recipient,
		Amount:      req.Amount,
		Fee:         req.Fee,
		MessageHash: req.MessageHash,
		Payload:     req.Payload,
		ExpireAt:    expireAt(req.ExpireAt),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, tx)
}

func (h *Handler) getTransactionByMessageHash(w http.ResponseWriter, r *http.Request) {
	messageHash, err := parseHash(chi.URLParam(r, "messageHash"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	account, err := ledger.ParseAccount(r.URL.Query().Get("account"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tx, err := h.service.GetTransactionByMessageHash(r.Context(), serviceFrom(r), account, messageHash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tx)
}

func (h *Handler) getTransactionByHash(w http.ResponseWriter, r *http.Request) {
	transactionHash, err := parseHash(chi.URLParam(r, "transactionHash"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tx, err := h.service.GetTransactionByHash(r.Context(), serviceFrom(r), transactionHash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tx)
}

func (h *Handler) getTokenTransactionByMessageHash(w http.ResponseWriter, r *http.Request) {
	messageHash, err := parseHash(chi.URLParam(r, "messageHash"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	query := r.URL.Query()
	owner, err := ledger.ParseAccount(query.Get("owner"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	root, err := ledger.ParseAccount(query.Get("root"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tx, err := h.service.GetTokenTransactionByMessageHash(r.Context(), serviceFrom(r), owner, root, messageHash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tx)
}

func (h *Handler) searchEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	txs, total, err := h.service.SearchEvents(r.Context(), serviceFrom(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, page[database.Transactions]{Items: txs, Total: total})
}

func (h *Handler) markEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	tx, err := h.service.MarkEvent(r.Context(), serviceFrom(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tx)
}

func (h *Handler) searchTokenEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	txs, total, err := h.service.SearchTokenEvents(r.Context(), serviceFrom(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, page[database.TokenTransactions]{Items: txs, Total: total})
}

func (h *Handler) markTokenEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	tx, err := h.service.MarkTokenEvent(r.Context(), serviceFrom(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tx)
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: bad hash %q", services.ErrInvalidRequest, s)
	}
	return common.BytesToHash(b), nil
}

// parseEventFilter reads ?event_status=Error,New&direction=Incoming&limit=&offset=.
func parseEventFilter(r *http.Request) (database.EventFilter, error) {
	query := r.URL.Query()
	var filter database.EventFilter
	if raw := query.Get("event_status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := database.ParseEventStatus(strings.TrimSpace(part))
			if err != nil {
				return filter, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
			}
			filter.EventStatus = append(filter.EventStatus, status)
		}
	}
	switch strings.ToLower(query.Get("direction")) {
	case "":
	case "incoming":
		filter.Direction = database.DirectionIncoming
	case "outgoing":
		filter.Direction = database.DirectionOutgoing
	default:
		return filter, fmt.Errorf("%w: bad direction %q", services.ErrInvalidRequest, query.Get("direction"))
	}
	var err error
	if filter.Limit, err = queryInt(query.Get("limit")); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(query.Get("offset")); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad number %q", services.ErrInvalidRequest, raw)
	}
	return n, nil
}
