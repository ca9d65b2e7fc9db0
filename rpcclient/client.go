package rpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dapplink-labs/ton-wallet-gateway/common/retry"
	"github.com/dapplink-labs/ton-wallet-gateway/common/tasks"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

const (
	serviceName = "ledger.v1.LedgerNode"

	broadcastMessageMethod  = "/" + serviceName + "/BroadcastMessage"
	getContractStateMethod  = "/" + serviceName + "/GetContractState"
	subscribeAccountsMethod = "/" + serviceName + "/SubscribeAccounts"
)

var ErrNotConnected = errors.New("ledger node client is not started")

var subscribeStreamDesc = &grpc.StreamDesc{
	StreamName:    "SubscribeAccounts",
	ServerStreams: true,
}

// LedgerNodeClient is the grpc ledger.Engine. Every Subscribe call owns one
// server stream; a broken stream is reopened with backoff and resumes after
// the last logical time delivered per account.
type LedgerNodeClient struct {
	target      string
	dialOptions []grpc.DialOption
	strategy    retry.Strategy

	mu   sync.Mutex
	conn *grpc.ClientConn

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewLedgerNodeClient(target string, shutdown context.CancelCauseFunc, opts ...grpc.DialOption) *LedgerNodeClient {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	resCtx, resCancel := context.WithCancel(context.Background())
	log.Info("New ledger node rpc client", "target", target)
	return &LedgerNodeClient{
		target:         target,
		dialOptions:    opts,
		strategy:       &retry.ExponentialStrategy{Min: 1000, Max: 20_000, MaxJitter: 250},
		resourceCtx:    resCtx,
		resourceCancel: resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in ledger node client: %w", err))
		}},
	}
}

func (c *LedgerNodeClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := grpc.NewClient(c.target, c.dialOptions...)
	if err != nil {
		return fmt.Errorf("dial ledger node %s: %w", c.target, err)
	}
	c.conn = conn
	return nil
}

func (c *LedgerNodeClient) Close() error {
	c.resourceCancel()
	err := c.tasks.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err = errors.Join(err, c.conn.Close())
		c.conn = nil
	}
	return err
}

func (c *LedgerNodeClient) connection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *LedgerNodeClient) BroadcastMessage(ctx context.Context, dst ledger.Account, payload []byte) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"destination": dst.String(),
		"boc":         base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		return err
	}
	if err := conn.Invoke(ctx, broadcastMessageMethod, req, new(structpb.Struct)); err != nil {
		log.Error("broadcast message fail", "destination", dst, "err", err)
		return err
	}
	return nil
}

func (c *LedgerNodeClient) GetContractState(ctx context.Context, account ledger.Account) (*ledger.ContractState, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]interface{}{"account": account.String()})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, getContractStateMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, err
	}

	var wire wireContractState
	if err := fromStruct(resp, &wire); err != nil {
		return nil, fmt.Errorf("decode contract state: %w", err)
	}
	if !wire.Found {
		return nil, ledger.ErrAccountNotFound
	}
	return wire.toContractState()
}

// Subscribe opens the stream for accounts and returns once the node accepted
// it; delivery to sink continues until Close.
func (c *LedgerNodeClient) Subscribe(ctx context.Context, accounts []ledger.Account, sink ledger.TransactionSink) error {
	if len(accounts) == 0 {
		return nil
	}
	sub := &subscription{accounts: accounts, lastLt: make(map[ledger.Account]uint64, len(accounts))}

	stream, cancel, err := c.openStream(ctx, sub)
	if err != nil {
		return err
	}
	c.tasks.Go(func() error {
		c.run(stream, cancel, sub, sink)
		return nil
	})
	return nil
}

type subscription struct {
	accounts []ledger.Account
	lastLt   map[ledger.Account]uint64
}

func (s *subscription) request() (*structpb.Struct, error) {
	items := make([]wireSubscription, 0, len(s.accounts))
	for _, account := range s.accounts {
		item := wireSubscription{Account: account.String()}
		if lt, ok := s.lastLt[account]; ok {
			item.AfterLt = strconv.FormatUint(lt, 10)
		}
		items = append(items, item)
	}
	return toStruct(struct {
		Accounts []wireSubscription `json:"accounts"`
	}{Accounts: items})
}

// openStream starts a server stream bound to the client lifetime; ctx only
// bounds the wait for the node to accept it. The node answers an accepted
// subscription with response headers before the first transaction.
func (c *LedgerNodeClient) openStream(ctx context.Context, sub *subscription) (grpc.ClientStream, context.CancelFunc, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, nil, err
	}
	req, err := sub.request()
	if err != nil {
		return nil, nil, err
	}

	streamCtx, cancel := context.WithCancel(c.resourceCtx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	stream, err := conn.NewStream(streamCtx, subscribeStreamDesc, subscribeAccountsMethod)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open account stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("send account subscription: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("close subscription send: %w", err)
	}
	if _, err := stream.Header(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("account stream rejected: %w", err)
	}
	return stream, cancel, nil
}

func (c *LedgerNodeClient) run(stream grpc.ClientStream, cancel context.CancelFunc, sub *subscription, sink ledger.TransactionSink) {
	for {
		err := c.receive(stream, sub, sink)
		cancel()
		if c.resourceCtx.Err() != nil {
			return
		}
		log.Warn("account stream broken, reconnecting", "accounts", len(sub.accounts), "err", err)

		stream, cancel = nil, nil
		for attempt := 0; stream == nil; attempt++ {
			select {
			case <-c.resourceCtx.Done():
				return
			case <-time.After(c.strategy.Duration(attempt)):
			}
			stream, cancel, err = c.openStream(c.resourceCtx, sub)
			if err != nil {
				log.Error("reopen account stream fail", "attempt", attempt+1, "err", err)
			}
		}
	}
}

func (c *LedgerNodeClient) receive(stream grpc.ClientStream, sub *subscription, sink ledger.TransactionSink) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by node")
			}
			return err
		}

		var wire wireTransaction
		if err := fromStruct(msg, &wire); err != nil {
			log.Error("decode streamed transaction fail", "err", err)
			continue
		}
		tx, err := wire.toRawTransaction()
		if err != nil {
			log.Error("invalid streamed transaction", "account", wire.Account, "hash", wire.Hash, "err", err)
			continue
		}
		if last, ok := sub.lastLt[tx.Account]; ok && tx.LogicalTime <= last {
			continue
		}
		sub.lastLt[tx.Account] = tx.LogicalTime
		sink.HandleTransaction(tx)
	}
}
