package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

const envVarPrefix = "TON_GATEWAY"

func prefixEnvVars(name string) []string {
	return []string{envVarPrefix + "_" + name}
}

var (
	MigrationsFlag = &cli.StringFlag{
		Name:    "migrations-dir",
		Value:   "./migrations",
		Usage:   "path for database migrations",
		EnvVars: prefixEnvVars("MIGRATIONS_DIR"),
	}

	// Ledger node
	LedgerNodeRpcFlag = &cli.StringFlag{
		Name:    "ledger-node-rpc",
		Usage:   "grpc address of the ledger node",
		Value:   "127.0.0.1:8189",
		EnvVars: prefixEnvVars("LEDGER_NODE_RPC"),
	}
	MessageTTLFlag = &cli.DurationFlag{
		Name:    "message-ttl",
		Usage:   "default lifetime of a submitted external message",
		Value:   60 * time.Second,
		EnvVars: prefixEnvVars("MESSAGE_TTL"),
	}
	QueueSweepIntervalFlag = &cli.DurationFlag{
		Name:    "queue-sweep-interval",
		Usage:   "how often expired pending messages are swept",
		Value:   time.Second,
		EnvVars: prefixEnvVars("QUEUE_SWEEP_INTERVAL"),
	}

	// Database
	MasterDbHostFlag = &cli.StringFlag{
		Name:     "master-db-host",
		Usage:    "The host of the master database",
		EnvVars:  prefixEnvVars("MASTER_DB_HOST"),
		Required: true,
	}
	MasterDbPortFlag = &cli.IntFlag{
		Name:     "master-db-port",
		Usage:    "The port of the master database",
		EnvVars:  prefixEnvVars("MASTER_DB_PORT"),
		Required: true,
	}
	MasterDbUserFlag = &cli.StringFlag{
		Name:     "master-db-user",
		Usage:    "The user of the master database",
		EnvVars:  prefixEnvVars("MASTER_DB_USER"),
		Required: true,
	}
	MasterDbPasswordFlag = &cli.StringFlag{
		Name:    "master-db-password",
		Usage:   "The password of the master database",
		EnvVars: prefixEnvVars("MASTER_DB_PASSWORD"),
	}
	MasterDbNameFlag = &cli.StringFlag{
		Name:     "master-db-name",
		Usage:    "The db name of the master database",
		EnvVars:  prefixEnvVars("MASTER_DB_NAME"),
		Required: true,
	}

	// Webhook notifier
	NotifyTimeoutFlag = &cli.DurationFlag{
		Name:    "notify-timeout",
		Usage:   "per attempt timeout of a webhook callback",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVars("NOTIFY_TIMEOUT"),
	}
	NotifyRetryIntervalFlag = &cli.DurationFlag{
		Name:    "notify-retry-interval",
		Usage:   "how often failed webhook deliveries are retried",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("NOTIFY_RETRY_INTERVAL"),
	}
	NotifyBatchSizeFlag = &cli.IntFlag{
		Name:    "notify-batch-size",
		Usage:   "max events re-delivered per service and retry round",
		Value:   100,
		EnvVars: prefixEnvVars("NOTIFY_BATCH_SIZE"),
	}

	// Servers
	HttpHostFlag = &cli.StringFlag{
		Name:    "http-host",
		Usage:   "The host of the rest api",
		Value:   "127.0.0.1",
		EnvVars: prefixEnvVars("HTTP_HOST"),
	}
	HttpPortFlag = &cli.IntFlag{
		Name:    "http-port",
		Usage:   "The port of the rest api",
		Value:   8987,
		EnvVars: prefixEnvVars("HTTP_PORT"),
	}
	MetricsHostFlag = &cli.StringFlag{
		Name:    "metrics-host",
		Usage:   "The host of the metrics",
		Value:   "127.0.0.1",
		EnvVars: prefixEnvVars("METRICS_HOST"),
	}
	MetricsPortFlag = &cli.IntFlag{
		Name:    "metrics-port",
		Usage:   "The port of the metrics",
		Value:   7214,
		EnvVars: prefixEnvVars("METRICS_PORT"),
	}

	// Kafka mirror, disabled when no broker is given
	KafkaBrokersFlag = &cli.StringSliceFlag{
		Name:    "kafka-brokers",
		Usage:   "kafka brokers receiving the event mirror",
		EnvVars: prefixEnvVars("KAFKA_BROKERS"),
	}
	KafkaTopicFlag = &cli.StringFlag{
		Name:    "kafka-topic",
		Usage:   "kafka topic of the event mirror",
		Value:   "ton-gateway.events",
		EnvVars: prefixEnvVars("KAFKA_TOPIC"),
	}

	// Cache
	AddressCacheSizeFlag = &cli.Int64Flag{
		Name:    "address-cache-size",
		Usage:   "max number of cached watched addresses",
		Value:   1_000_000,
		EnvVars: prefixEnvVars("ADDRESS_CACHE_SIZE"),
	}
	AddressCacheTTLFlag = &cli.DurationFlag{
		Name:    "address-cache-ttl",
		Usage:   "lifetime of a cached address entry",
		Value:   time.Hour,
		EnvVars: prefixEnvVars("ADDRESS_CACHE_TTL"),
	}
)

var requiredFlags = []cli.Flag{
	MigrationsFlag,
	MasterDbHostFlag,
	MasterDbPortFlag,
	MasterDbUserFlag,
	MasterDbNameFlag,
}

var optionalFlags = []cli.Flag{
	LedgerNodeRpcFlag,
	MessageTTLFlag,
	QueueSweepIntervalFlag,
	MasterDbPasswordFlag,
	NotifyTimeoutFlag,
	NotifyRetryIntervalFlag,
	NotifyBatchSizeFlag,
	HttpHostFlag,
	HttpPortFlag,
	MetricsHostFlag,
	MetricsPortFlag,
	KafkaBrokersFlag,
	KafkaTopicFlag,
	AddressCacheSizeFlag,
	AddressCacheTTLFlag,
}

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

var Flags []cli.Flag
