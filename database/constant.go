package database

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRecordNotFound = errors.New("record not found")

type TransactionStatus string

const (
	TxStatusNew       TransactionStatus = "New"
	TxStatusConfirmed TransactionStatus = "Confirmed"
	TxStatusError     TransactionStatus = "Error"
	TxStatusAborted   TransactionStatus = "Aborted"
)

// EventStatus 记录回调通知的状态：New 未通知，Notified 已成功回调，Error 回调失败待重试
type EventStatus string

const (
	EventStatusNew      EventStatus = "New"
	EventStatusNotified EventStatus = "Notified"
	EventStatusError    EventStatus = "Error"
)

func ParseEventStatus(s string) (EventStatus, error) {
	switch strings.ToLower(s) {
	case "new":
		return EventStatusNew, nil
	case "notified":
		return EventStatusNotified, nil
	case "error":
		return EventStatusError, nil
	default:
		return "", fmt.Errorf("invalid event status: %s", s)
	}
}

type Direction string

const (
	DirectionIncoming Direction = "Incoming"
	DirectionOutgoing Direction = "Outgoing"
)

type AccountType string

const (
	AccountTypeWallet         AccountType = "wallet"
	AccountTypeHighloadWallet AccountType = "highload_wallet"
	AccountTypeMultisig       AccountType = "multisig"
)

func (at AccountType) String() string {
	return string(at)
}

func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(s) {
	case "", string(AccountTypeWallet):
		return AccountTypeWallet, nil
	case string(AccountTypeHighloadWallet):
		return AccountTypeHighloadWallet, nil
	case string(AccountTypeMultisig):
		return AccountTypeMultisig, nil
	default:
		return "", fmt.Errorf("invalid account type: %s", s)
	}
}

// EventFilter selects transactions for event polling. Zero values mean no filter.
type EventFilter struct {
	EventStatus []EventStatus
	Direction   Direction
	Limit       int
	Offset      int
}

const maxEventPageSize = 1000

func (f EventFilter) limit() int {
	if f.Limit <= 0 || f.Limit > maxEventPageSize {
		return maxEventPageSize
	}
	return f.Limit
}
