package rpcclient

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// Wire shapes of the ledger node protocol. Messages travel as
// google.protobuf.Struct; integers that may exceed 2^53 are decimal strings.

type wireToken struct {
	QueryID      string `json:"query_id,omitempty"`
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty,omitempty"`
}

type wireMessage struct {
	Hash    string     `json:"hash"`
	Kind    string     `json:"kind"`
	Src     string     `json:"src,omitempty"`
	Dst     string     `json:"dst,omitempty"`
	Value   string     `json:"value,omitempty"`
	Bounce  bool       `json:"bounce,omitempty"`
	Bounced bool       `json:"bounced,omitempty"`
	Op      uint32     `json:"op,omitempty"`
	Comment string     `json:"comment,omitempty"`
	Token   *wireToken `json:"token,omitempty"`
}

type wireTransaction struct {
	Account       string        `json:"account"`
	Hash          string        `json:"hash"`
	Lt            string        `json:"lt"`
	Utime         int64         `json:"utime"`
	Aborted       bool          `json:"aborted,omitempty"`
	Fee           string        `json:"fee,omitempty"`
	BalanceChange string        `json:"balance_change,omitempty"`
	InMsg         *wireMessage  `json:"in_msg,omitempty"`
	OutMsgs       []wireMessage `json:"out_msgs,omitempty"`
}

type wireContractState struct {
	Found               bool   `json:"found"`
	Account             string `json:"account"`
	Balance             string `json:"balance"`
	LastTransactionHash string `json:"last_transaction_hash,omitempty"`
	LastTransactionLt   string `json:"last_transaction_lt,omitempty"`
	Timestamp           int64  `json:"timestamp,omitempty"`
	TokenOwner          string `json:"token_owner,omitempty"`
	TokenRoot           string `json:"token_root,omitempty"`
}

type wireSubscription struct {
	Account string `json:"account"`
	AfterLt string `json:"after_lt,omitempty"`
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v interface{}) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func parseHash(s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, nil
	}
	if len(s) < 2 || s[:2] != "0x" {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	return common.BytesToHash(b), nil
}

func parseOptionalAccount(s string) (*ledger.Account, error) {
	if s == "" {
		return nil, nil
	}
	account, err := ledger.ParseAccount(s)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseKind(s string) (ledger.MessageKind, error) {
	switch s {
	case "external_in":
		return ledger.MessageExternalIn, nil
	case "internal":
		return ledger.MessageInternal, nil
	case "external_out":
		return ledger.MessageExternalOut, nil
	default:
		return 0, fmt.Errorf("unknown message kind %q", s)
	}
}

func (w *wireMessage) toMessage() (*ledger.Message, error) {
	var (
		msg ledger.Message
		err error
	)
	if msg.Hash, err = parseHash(w.Hash); err != nil {
		return nil, err
	}
	if msg.Kind, err = parseKind(w.Kind); err != nil {
		return nil, err
	}
	if msg.Src, err = parseOptionalAccount(w.Src); err != nil {
		return nil, fmt.Errorf("message src: %w", err)
	}
	if msg.Dst, err = parseOptionalAccount(w.Dst); err != nil {
		return nil, fmt.Errorf("message dst: %w", err)
	}
	if msg.Value, err = parseBig(w.Value); err != nil {
		return nil, err
	}
	msg.Bounce = w.Bounce
	msg.Bounced = w.Bounced
	msg.Op = ledger.Opcode(w.Op)
	msg.Comment = w.Comment

	if w.Token != nil {
		token := &ledger.TokenPayload{}
		if token.QueryID, err = parseUint(w.Token.QueryID); err != nil {
			return nil, fmt.Errorf("token query id: %w", err)
		}
		if token.Amount, err = parseBig(w.Token.Amount); err != nil {
			return nil, err
		}
		if token.Counterparty, err = parseOptionalAccount(w.Token.Counterparty); err != nil {
			return nil, fmt.Errorf("token counterparty: %w", err)
		}
		msg.Token = token
	}
	return &msg, nil
}

func (w *wireTransaction) toRawTransaction() (*ledger.RawTransaction, error) {
	var (
		tx  ledger.RawTransaction
		err error
	)
	if tx.Account, err = ledger.ParseAccount(w.Account); err != nil {
		return nil, err
	}
	if tx.Hash, err = parseHash(w.Hash); err != nil {
		return nil, err
	}
	if tx.LogicalTime, err = parseUint(w.Lt); err != nil {
		return nil, fmt.Errorf("transaction lt: %w", err)
	}
	tx.Timestamp = time.Unix(w.Utime, 0)
	tx.Aborted = w.Aborted
	if tx.Fee, err = parseBig(w.Fee); err != nil {
		return nil, err
	}
	if tx.BalanceChange, err = parseBig(w.BalanceChange); err != nil {
		return nil, err
	}
	if w.InMsg != nil {
		if tx.InMessage, err = w.InMsg.toMessage(); err != nil {
			return nil, fmt.Errorf("in message: %w", err)
		}
	}
	for i := range w.OutMsgs {
		out, err := w.OutMsgs[i].toMessage()
		if err != nil {
			return nil, fmt.Errorf("out message %d: %w", i, err)
		}
		tx.OutMessages = append(tx.OutMessages, *out)
	}
	return &tx, nil
}

func (w *wireContractState) toContractState() (*ledger.ContractState, error) {
	var (
		state ledger.ContractState
		err   error
	)
	if state.Account, err = ledger.ParseAccount(w.Account); err != nil {
		return nil, err
	}
	if state.Balance, err = parseBig(w.Balance); err != nil {
		return nil, err
	}
	if state.LastTransactionHash, err = parseHash(w.LastTransactionHash); err != nil {
		return nil, err
	}
	if state.LastTransactionLt, err = parseUint(w.LastTransactionLt); err != nil {
		return nil, err
	}
	if w.Timestamp != 0 {
		state.Timestamp = time.Unix(w.Timestamp, 0)
	}
	if state.TokenOwner, err = parseOptionalAccount(w.TokenOwner); err != nil {
		return nil, err
	}
	if state.TokenRoot, err = parseOptionalAccount(w.TokenRoot); err != nil {
		return nil, err
	}
	return &state, nil
}
