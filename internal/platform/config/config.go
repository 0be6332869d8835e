package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	vstrings "identityvault/pkg/platform/strings"
)

// Ledger modes.
const (
	LedgerModeEthereum = "ethereum"
	LedgerModeMemory   = "memory"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string

	Ledger   LedgerConfig
	Sync     SyncConfig
	Poller   PollerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// LedgerConfig selects and parameterizes the contract gateway.
type LedgerConfig struct {
	Mode               string
	RPCURL             string
	ChainID            int64
	ContractAddress    string
	OperatorPrivateKey string
	StoreGasLimit      uint64
	ShareGasLimit      uint64
	// ReadLag only applies to the in-memory ledger.
	ReadLag time.Duration
}

// SyncConfig tunes the orchestrator's confirm-then-verify policy.
type SyncConfig struct {
	StoreSettleDelay time.Duration
	ShareSettleDelay time.Duration
	ViewCacheTTL     time.Duration
}

// PollerConfig drives the background refresh task.
type PollerConfig struct {
	Interval       time.Duration
	WatchAddresses []string
}

// RedisConfig is optional; an empty URL keeps the view cache in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig is optional; an empty URL keeps stores in memory.
type PostgresConfig struct {
	URL string
}

// KafkaConfig is optional; no brokers disables the notification sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Defaults mirrored from the deployed IdentityVault on Moonbase Alpha.
const (
	DefaultChainID         = 1287
	DefaultRPCURL          = "https://rpc.api.moonbase.moonbeam.network"
	DefaultContractAddress = "0xe909fb6aF39120A14441740FdC2Be873Ee5650b2"
	DefaultStoreGasLimit   = 500000
	DefaultShareGasLimit   = 300000
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:          envString("VAULT_ADDR", ":8080"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Ledger: LedgerConfig{
			Mode:               envString("LEDGER_MODE", LedgerModeEthereum),
			RPCURL:             envString("RPC_URL", DefaultRPCURL),
			ChainID:            envInt64("CHAIN_ID", DefaultChainID),
			ContractAddress:    envString("CONTRACT_ADDRESS", DefaultContractAddress),
			OperatorPrivateKey: os.Getenv("OPERATOR_PRIVATE_KEY"),
			StoreGasLimit:      uint64(envInt64("STORE_GAS_LIMIT", DefaultStoreGasLimit)),
			ShareGasLimit:      uint64(envInt64("SHARE_GAS_LIMIT", DefaultShareGasLimit)),
			ReadLag:            envDuration("MEMORY_LEDGER_READ_LAG", 0),
		},
		Sync: SyncConfig{
			StoreSettleDelay: envDuration("STORE_SETTLE_DELAY", 2*time.Second),
			ShareSettleDelay: envDuration("SHARE_SETTLE_DELAY", time.Second),
			ViewCacheTTL:     envDuration("VIEW_CACHE_TTL", 5*time.Minute),
		},
		Poller: PollerConfig{
			Interval:       envDuration("POLL_INTERVAL", 15*time.Second),
			WatchAddresses: envList("WATCH_ADDRESSES"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     int(envInt64("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(envInt64("REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", "identity.notifications"),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	return vstrings.SplitList(os.Getenv(key), ",")
}
