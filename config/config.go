package config

import (
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/json2"
	"github.com/dapplink-labs/ton-wallet-gateway/flags"
)

const (
	defaultMessageTTL          = 60 * time.Second
	defaultQueueSweepInterval  = time.Second
	defaultNotifyTimeout       = 10 * time.Second
	defaultNotifyRetryInterval = 30 * time.Second
	defaultNotifyBatchSize     = 100
	defaultAddressCacheSize    = 1_000_000
	defaultKafkaTopic          = "ton-gateway.events"
)

type Config struct {
	Migrations    string
	LedgerNode    LedgerNodeConfig
	MasterDB      DBConfig
	Notifier      NotifierConfig
	HttpServer    ServerConfig
	MetricsServer ServerConfig
	Kafka         KafkaConfig
	CacheConfig   CacheConfig
}

type LedgerNodeConfig struct {
	RpcUrl             string
	MessageTTL         time.Duration
	QueueSweepInterval time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

type NotifierConfig struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	BatchSize     int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type CacheConfig struct {
	AddressSize int64
	AddressTTL  time.Duration
}

type ServerConfig struct {
	Host string
	Port int
}

func LoadConfig(cliCtx *cli.Context) (Config, error) {
	var cfg Config
	cfg = NewConfig(cliCtx)

	if cfg.LedgerNode.MessageTTL == 0 {
		cfg.LedgerNode.MessageTTL = defaultMessageTTL
	}

	if cfg.LedgerNode.QueueSweepInterval == 0 {
		cfg.LedgerNode.QueueSweepInterval = defaultQueueSweepInterval
	}

	if cfg.Notifier.Timeout == 0 {
		cfg.Notifier.Timeout = defaultNotifyTimeout
	}

	if cfg.Notifier.RetryInterval == 0 {
		cfg.Notifier.RetryInterval = defaultNotifyRetryInterval
	}

	if cfg.Notifier.BatchSize <= 0 {
		cfg.Notifier.BatchSize = defaultNotifyBatchSize
	}

	if cfg.CacheConfig.AddressSize <= 0 {
		cfg.CacheConfig.AddressSize = defaultAddressCacheSize
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultKafkaTopic
	}

	log.Info("loaded ledger node config", "config", json2.ToPrettyJSON(cfg.LedgerNode))
	return cfg, nil
}

func NewConfig(ctx *cli.Context) Config {
	return Config{
		Migrations: ctx.String(flags.MigrationsFlag.Name),
		LedgerNode: LedgerNodeConfig{
			RpcUrl:             ctx.String(flags.LedgerNodeRpcFlag.Name),
			MessageTTL:         ctx.Duration(flags.MessageTTLFlag.Name),
			QueueSweepInterval: ctx.Duration(flags.QueueSweepIntervalFlag.Name),
		},
		MasterDB: DBConfig{
			Host:     ctx.String(flags.MasterDbHostFlag.Name),
			Port:     ctx.Int(flags.MasterDbPortFlag.Name),
			Name:     ctx.String(flags.MasterDbNameFlag.Name),
			User:     ctx.String(flags.MasterDbUserFlag.Name),
			Password: ctx.String(flags.MasterDbPasswordFlag.Name),
		},
		Notifier: NotifierConfig{
			Timeout:       ctx.Duration(flags.NotifyTimeoutFlag.Name),
			RetryInterval: ctx.Duration(flags.NotifyRetryIntervalFlag.Name),
			BatchSize:     ctx.Int(flags.NotifyBatchSizeFlag.Name),
		},
		HttpServer: ServerConfig{
			Host: ctx.String(flags.HttpHostFlag.Name),
			Port: ctx.Int(flags.HttpPortFlag.Name),
		},
		MetricsServer: ServerConfig{
			Host: ctx.String(flags.MetricsHostFlag.Name),
			Port: ctx.Int(flags.MetricsPortFlag.Name),
		},
		Kafka: KafkaConfig{
			Brokers: ctx.StringSlice(flags.KafkaBrokersFlag.Name),
			Topic:   ctx.String(flags.KafkaTopicFlag.Name),
		},
		CacheConfig: CacheConfig{
			AddressSize: ctx.Int64(flags.AddressCacheSizeFlag.Name),
			AddressTTL:  ctx.Duration(flags.AddressCacheTTLFlag.Name),
		},
	}
}

// DbConfigTest 读取集成测试数据库配置，未设置 TON_GATEWAY_TEST_DB_HOST 时返回 nil
func DbConfigTest() *DBConfig {
	host := os.Getenv("TON_GATEWAY_TEST_DB_HOST")
	if host == "" {
		return nil
	}
	port, _ := strconv.Atoi(os.Getenv("TON_GATEWAY_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	cfg := &DBConfig{
		Host:     host,
		Port:     port,
		Name:     os.Getenv("TON_GATEWAY_TEST_DB_NAME"),
		User:     os.Getenv("TON_GATEWAY_TEST_DB_USER"),
		Password: os.Getenv("TON_GATEWAY_TEST_DB_PASSWORD"),
	}
	if cfg.Name == "" {
		cfg.Name = "ton_gateway"
	}
	return cfg
}
