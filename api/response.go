package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/services"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// writeServiceError maps orchestration errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, services.ErrUnknownService):
		writeError(w, http.StatusNotFound, "UNKNOWN_SERVICE", err.Error())
	case errors.Is(err, services.ErrAddressNotOwned):
		writeError(w, http.StatusNotFound, "ADDRESS_NOT_FOUND", err.Error())
	case errors.Is(err, database.ErrRecordNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
