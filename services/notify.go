package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/notifier"
)

// callbackUrl returns "" when the service has no webhook; such records keep
// EventStatus=New and are not attempted.
func (s *WalletService) callbackUrl(serviceUid string) (string, error) {
	service, err := s.db.Services.QueryServiceByUid(serviceUid)
	if err != nil {
		return "", fmt.Errorf("query service %s: %w", serviceUid, err)
	}
	if !service.HasCallback() {
		return "", nil
	}
	return service.CallbackUrl, nil
}

// eventStatus delivers event and reports the resulting EventStatus; ok is
// false when nothing was attempted because the service has no webhook.
func (s *WalletService) eventStatus(ctx context.Context, serviceUid string, event *notifier.Event) (database.EventStatus, bool) {
	url, err := s.callbackUrl(serviceUid)
	if err != nil {
		// 查不到回调配置时记为 Error，交给重试任务和 SearchEvents 处理
		log.Error("resolve callback fail", "service", serviceUid, "event", event.Id, "err", err)
		return database.EventStatusError, true
	}
	if url == "" {
		return "", false
	}
	return s.deliver(ctx, url, event), true
}

func (s *WalletService) deliver(ctx context.Context, url string, event *notifier.Event) database.EventStatus {
	err := s.callbacks.Deliver(ctx, url, event)
	if s.metrics != nil {
		s.metrics.RecordWebhookDelivery(err == nil)
	}
	if err != nil {
		log.Error("notify service fail", "service", event.ServiceUid, "event", event.Id, "status", event.Status, "err", err)
		return database.EventStatusError
	}
	return database.EventStatusNotified
}

func (s *WalletService) publish(ctx context.Context, event *notifier.Event) {
	if err := s.bus.Publish(ctx, event.Account, event); err != nil {
		log.Warn("mirror event fail", "event", event.Id, "err", err)
	}
}

func (s *WalletService) notifyTransaction(ctx context.Context, tx *database.Transactions) *database.Transactions {
	event := notifier.TransactionEvent(tx)
	s.publish(ctx, event)

	status, ok := s.eventStatus(ctx, tx.ServiceUid, event)
	if !ok {
		return tx
	}
	if err := s.db.Transactions.UpdateEventStatus(tx.GUID, status); err != nil {
		log.Error("update event status fail", "guid", tx.GUID, "status", status, "err", err)
		return tx
	}
	tx.EventStatus = status
	return tx
}

func (s *WalletService) notifyTokenTransaction(ctx context.Context, tx *database.TokenTransactions) *database.TokenTransactions {
	event := notifier.TokenTransactionEvent(tx)
	s.publish(ctx, event)

	status, ok := s.eventStatus(ctx, tx.ServiceUid, event)
	if !ok {
		return tx
	}
	if err := s.db.TokenTransactions.UpdateTokenEventStatus(tx.GUID, status); err != nil {
		log.Error("update token event status fail", "guid", tx.GUID, "status", status, "err", err)
		return tx
	}
	tx.EventStatus = status
	return tx
}
