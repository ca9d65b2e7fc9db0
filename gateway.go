package ton_wallet_gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/api"
	"github.com/dapplink-labs/ton-wallet-gateway/common/cache"
	"github.com/dapplink-labs/ton-wallet-gateway/common/httputil"
	"github.com/dapplink-labs/ton-wallet-gateway/config"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/eventbus"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
	"github.com/dapplink-labs/ton-wallet-gateway/metrics"
	"github.com/dapplink-labs/ton-wallet-gateway/notifier"
	"github.com/dapplink-labs/ton-wallet-gateway/rpcclient"
	"github.com/dapplink-labs/ton-wallet-gateway/services"
	"github.com/dapplink-labs/ton-wallet-gateway/worker"
)

// TonGateway wires storage, the ledger core, the orchestration service and
// the REST surface into one process.
type TonGateway struct {
	cfg *config.Config

	db        *database.DB
	addresses *cache.AddressCache
	metrics   *metrics.Metrics
	bus       eventbus.Publisher
	core      *ledger.Core
	service   *services.WalletService
	notifier  *notifier.Notifier
	worker    *worker.EventWorker

	apiServer     *httputil.HTTPServer
	metricsServer *httputil.HTTPServer

	shutdown context.CancelCauseFunc
	stopped  atomic.Bool
}

func NewTonGateway(ctx context.Context, cfg *config.Config, shutdown context.CancelCauseFunc) (*TonGateway, error) {
	db, err := database.NewDB(ctx, cfg.MasterDB)
	if err != nil {
		log.Error("init database fail", "err", err)
		return nil, err
	}

	addresses, err := cache.NewAddressCache(cfg.CacheConfig)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init address cache: %w", err), db.Close())
	}

	bus, err := eventbus.NewPublisher(cfg.Kafka)
	if err != nil {
		addresses.Close()
		return nil, errors.Join(fmt.Errorf("init event bus: %w", err), db.Close())
	}

	m := metrics.NewMetrics(nil)
	engine := rpcclient.NewLedgerNodeClient(cfg.LedgerNode.RpcUrl, shutdown)
	core := ledger.NewCore(engine, ledger.Config{SweepInterval: cfg.LedgerNode.QueueSweepInterval}, m)
	callbacks := notifier.NewCallbackClient(cfg.Notifier.Timeout)

	service := services.NewWalletService(db, core, addresses, callbacks, bus,
		services.Config{MessageTTL: cfg.LedgerNode.MessageTTL}, m, shutdown)

	return &TonGateway{
		cfg:       cfg,
		db:        db,
		addresses: addresses,
		metrics:   m,
		bus:       bus,
		core:      core,
		service:   service,
		notifier:  notifier.NewNotifier(db, callbacks, cfg.Notifier, m, shutdown),
		shutdown:  shutdown,
	}, nil
}

func (g *TonGateway) Start(ctx context.Context) error {
	metricsServer, err := metrics.StartServer(g.metrics.Registry(), g.cfg.MetricsServer.Host, g.cfg.MetricsServer.Port)
	if err != nil {
		return err
	}
	g.metricsServer = metricsServer

	streams, err := g.core.Start(ctx)
	if err != nil {
		return err
	}
	g.worker = worker.NewEventWorker(streams, g.service, g.shutdown)
	if err := g.worker.Start(); err != nil {
		return err
	}

	// 重启后按数据库中的地址和 token 钱包重新订阅，之前的链上进度由节点 after_lt 补齐
	if err := g.service.RestoreSubscriptions(ctx); err != nil {
		return fmt.Errorf("restore subscriptions: %w", err)
	}

	if err := g.notifier.Start(); err != nil {
		return err
	}

	apiServer, err := httputil.StartHTTPServer("api", api.NewRouter(api.NewHandler(g.service)), g.cfg.HttpServer.Host, g.cfg.HttpServer.Port)
	if err != nil {
		return err
	}
	g.apiServer = apiServer
	log.Info("ton wallet gateway started", "api", apiServer.Addr(), "metrics", metricsServer.Addr())
	return nil
}

// Stop closes the REST surface first and storage last. Completion watchers
// stop before the core so in-flight messages keep Status=New instead of
// being failed by the core shutdown.
func (g *TonGateway) Stop(ctx context.Context) error {
	var result error
	if g.apiServer != nil {
		if err := g.apiServer.Stop(ctx); err != nil {
			result = errors.Join(result, err)
		}
	}
	if err := g.notifier.Close(); err != nil {
		result = errors.Join(result, err)
	}
	if err := g.service.Close(); err != nil {
		result = errors.Join(result, err)
	}
	if err := g.core.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close ledger core: %w", err))
	}
	if g.worker != nil {
		if err := g.worker.Close(); err != nil {
			result = errors.Join(result, err)
		}
	}
	if err := g.bus.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close event bus: %w", err))
	}
	g.addresses.Close()
	if err := g.db.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close database: %w", err))
	}
	if g.metricsServer != nil {
		if err := g.metricsServer.Stop(ctx); err != nil {
			result = errors.Join(result, err)
		}
	}
	g.stopped.Store(true)
	log.Info("ton wallet gateway stopped")
	return result
}

func (g *TonGateway) Stopped() bool {
	return g.stopped.Load()
}

// NotifyTask runs only the failed-callback re-delivery loop against the
// shared database, for deployments that split it from the gateway process.
type NotifyTask struct {
	db       *database.DB
	notifier *notifier.Notifier
	stopped  atomic.Bool
}

func NewNotifyTask(ctx context.Context, cfg *config.Config, shutdown context.CancelCauseFunc) (*NotifyTask, error) {
	db, err := database.NewDB(ctx, cfg.MasterDB)
	if err != nil {
		log.Error("init database fail", "err", err)
		return nil, err
	}
	client := notifier.NewCallbackClient(cfg.Notifier.Timeout)
	return &NotifyTask{
		db:       db,
		notifier: notifier.NewNotifier(db, client, cfg.Notifier, metrics.NewMetrics(nil), shutdown),
	}, nil
}

func (n *NotifyTask) Start(ctx context.Context) error {
	return n.notifier.Start()
}

func (n *NotifyTask) Stop(ctx context.Context) error {
	result := n.notifier.Close()
	if err := n.db.Close(); err != nil {
		result = errors.Join(result, err)
	}
	n.stopped.Store(true)
	return result
}

func (n *NotifyTask) Stopped() bool {
	return n.stopped.Load()
}
