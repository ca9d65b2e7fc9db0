package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dapplink-labs/ton-wallet-gateway/common/tasks"
	"github.com/dapplink-labs/ton-wallet-gateway/config"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
)

type Metricer interface {
	RecordWebhookDelivery(ok bool)
}

// Notifier 定时重发回调失败（EventStatus=Error）的事件，成功后标记为 Notified
type Notifier struct {
	db        *database.DB
	client    *CallbackClient
	metrics   Metricer
	interval  time.Duration
	batchSize int

	resourceCtx    context.Context
	resourceCancel context.CancelFunc
	tasks          tasks.Group
}

func NewNotifier(db *database.DB, client *CallbackClient, cfg config.NotifierConfig, metrics Metricer, shutdown context.CancelCauseFunc) *Notifier {
	resCtx, resCancel := context.WithCancel(context.Background())
	return &Notifier{
		db:             db,
		client:         client,
		metrics:        metrics,
		interval:       cfg.RetryInterval,
		batchSize:      cfg.BatchSize,
		resourceCtx:    resCtx,
		resourceCancel: resCancel,
		tasks: tasks.Group{HandleCrit: func(err error) {
			shutdown(fmt.Errorf("critical error in notifier: %w", err))
		}},
	}
}

func (nf *Notifier) Start() error {
	log.Info("start notifier......", "interval", nf.interval)
	ticker := time.NewTicker(nf.interval)
	nf.tasks.Go(func() error {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := nf.RetryFailed(nf.resourceCtx); err != nil {
					log.Error("retry failed callbacks", "err", err)
				}
			case <-nf.resourceCtx.Done():
				log.Info("stop notifier in worker")
				return nil
			}
		}
	})
	return nil
}

func (nf *Notifier) Close() error {
	var result error
	nf.resourceCancel()
	if err := nf.tasks.Wait(); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to await notifier: %w", err))
		return result
	}
	log.Info("stop notifier success")
	return nil
}

// RetryFailed runs one re-delivery round over every service with a callback.
func (nf *Notifier) RetryFailed(ctx context.Context) error {
	services, err := nf.db.Services.QueryServicesWithCallback()
	if err != nil {
		return fmt.Errorf("query services: %w", err)
	}
	filter := database.EventFilter{EventStatus: []database.EventStatus{database.EventStatusError}, Limit: nf.batchSize}

	var result error
	for _, service := range services {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		txs, _, err := nf.db.Transactions.QueryEvents(service.ServiceUid, filter)
		if err != nil {
			result = errors.Join(result, fmt.Errorf("query events of %s: %w", service.ServiceUid, err))
			continue
		}
		var delivered []uuid.UUID
		for i := range txs {
			if nf.deliver(ctx, service.CallbackUrl, TransactionEvent(&txs[i])) {
				delivered = append(delivered, txs[i].GUID)
			}
		}
		if _, err := nf.db.Transactions.MarkEvents(service.ServiceUid, delivered, database.EventStatusNotified); err != nil {
			result = errors.Join(result, fmt.Errorf("mark events of %s: %w", service.ServiceUid, err))
		}

		tokenTxs, _, err := nf.db.TokenTransactions.QueryTokenEvents(service.ServiceUid, filter)
		if err != nil {
			result = errors.Join(result, fmt.Errorf("query token events of %s: %w", service.ServiceUid, err))
			continue
		}
		delivered = delivered[:0]
		for i := range tokenTxs {
			if nf.deliver(ctx, service.CallbackUrl, TokenTransactionEvent(&tokenTxs[i])) {
				delivered = append(delivered, tokenTxs[i].GUID)
			}
		}
		if _, err := nf.db.TokenTransactions.MarkTokenEvents(service.ServiceUid, delivered, database.EventStatusNotified); err != nil {
			result = errors.Join(result, fmt.Errorf("mark token events of %s: %w", service.ServiceUid, err))
		}

		if len(txs)+len(tokenTxs) > 0 {
			log.Info("retried failed callbacks", "service", service.ServiceUid, "events", len(txs)+len(tokenTxs))
		}
	}
	return result
}

func (nf *Notifier) deliver(ctx context.Context, callbackUrl string, event *Event) bool {
	err := nf.client.Deliver(ctx, callbackUrl, event)
	if nf.metrics != nil {
		nf.metrics.RecordWebhookDelivery(err == nil)
	}
	return err == nil
}
