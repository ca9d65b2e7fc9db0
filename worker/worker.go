package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/retry"
	"github.com/dapplink-labs/ton-wallet-gateway/common/tasks"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

const handleAttempts = 5

// Handler turns ledger events into persisted records.
type Handler interface {
	CreateReceiveTransaction(ctx context.Context, event *ledger.ReceiveTransaction) (*database.Transactions, error)
	UpdateSentTransaction(ctx context.Context, event *ledger.SentTransactionUpdate) error
	CreateReceiveTokenTransaction(ctx context.Context, event *ledger.TokenTransactionEvent) (*database.TokenTransactions, error)
	HandleWalletNotification(ctx context.Context, notification *ledger.WalletNotification) error
}

// EventWorker drains the core's event streams, one consumer per stream so
// each stream keeps its ledger order. A failing event is retried with
// backoff and dropped after handleAttempts.
type EventWorker struct {
	streams  ledger.Streams
	handler  Handler
	strategy retry.Strategy

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewEventWorker(streams ledger.Streams, handler Handler, shutdown context.CancelCauseFunc) *EventWorker {
	resCtx, resCancel := context.WithCancel(context.Background())
	return &EventWorker{
		streams:        streams,
		handler:        handler,
		strategy:       &retry.ExponentialStrategy{Min: 1000, Max: 20_000, MaxJitter: 250},
		resourceCtx:    resCtx,
		resourceCancel: resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in event worker: %w", err))
		}},
	}
}

func (w *EventWorker) Start() error {
	log.Info("starting event worker...")
	w.tasks.Go(func() error {
		return consume(w, ledger.TonTransactionsObserver, w.streams.TonTransactions, w.handleTonTransaction)
	})
	w.tasks.Go(func() error {
		return consume(w, ledger.TokenTransactionsObserver, w.streams.TokenTransactions, w.handleTokenTransaction)
	})
	w.tasks.Go(func() error {
		return consume(w, ledger.WalletNotificationsObserver, w.streams.WalletNotifications, w.handleWalletNotification)
	})
	return nil
}

func (w *EventWorker) Close() error {
	var result error
	w.resourceCancel()
	if err := w.tasks.Wait(); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to await event worker: %w", err))
	}
	log.Info("stop event worker success")
	return result
}

func consume[T any](w *EventWorker, name string, events <-chan T, handle func(ctx context.Context, event T) error) error {
	for {
		select {
		case <-w.resourceCtx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				log.Info("event stream closed", "stream", name)
				return nil
			}
			if err := w.handle(func(ctx context.Context) error { return handle(ctx, event) }); err != nil {
				log.Error("handle ledger event fail, dropped", "stream", name, "err", err)
			}
		}
	}
}

// handle retries fn on storage or ledger failures. An unknown account is
// not retried: the event belongs to nobody.
func (w *EventWorker) handle(fn func(ctx context.Context) error) error {
	var skipped error
	_, err := retry.Do[struct{}](w.resourceCtx, handleAttempts, w.strategy, func() (struct{}, error) {
		err := fn(w.resourceCtx)
		if errors.Is(err, database.ErrRecordNotFound) {
			skipped = err
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if skipped != nil {
		log.Warn("ledger event for unregistered account skipped", "err", skipped)
		return nil
	}
	return err
}

func (w *EventWorker) handleTonTransaction(ctx context.Context, event ledger.TonTransactionEvent) error {
	switch ev := event.(type) {
	case *ledger.ReceiveTransaction:
		_, err := w.handler.CreateReceiveTransaction(ctx, ev)
		return err
	case *ledger.SentTransactionUpdate:
		return w.handler.UpdateSentTransaction(ctx, ev)
	default:
		return fmt.Errorf("unknown ton transaction event %T", event)
	}
}

func (w *EventWorker) handleTokenTransaction(ctx context.Context, event ledger.TokenTransactionEvent) error {
	_, err := w.handler.CreateReceiveTokenTransaction(ctx, &event)
	return err
}

func (w *EventWorker) handleWalletNotification(ctx context.Context, notification ledger.WalletNotification) error {
	return w.handler.HandleWalletNotification(ctx, &notification)
}
