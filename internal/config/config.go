package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Security  SecurityConfig
	Bridge    BridgeConfig
	RateLimit RateLimitConfig
	Detector  DetectorConfig
	Chains    ChainsConfig
	Quorum    QuorumConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds JWT configuration for the admin surface
type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

// SecurityConfig holds credentials for non-interactive callers
type SecurityConfig struct {
	// AdminAPIKeyHash is the bcrypt hash of the service API key. Empty
	// disables API-key access.
	AdminAPIKeyHash string
}

// BridgeConfig holds orchestrator tuning
type BridgeConfig struct {
	// TransferExpiry is how long a transfer may stay non-terminal before the
	// sweep reverts it.
	TransferExpiry time.Duration
	// PollInterval is how often confirmation status is polled.
	PollInterval time.Duration
	// WorkerPoolSize bounds concurrent chain I/O so admission control never
	// waits on adapter calls.
	WorkerPoolSize int
	SweepInterval  time.Duration
}

// RateLimitConfig holds sliding-window rate limiter settings
type RateLimitConfig struct {
	Limit           int
	Window          time.Duration
	BurstMultiplier float64
	CleanupInterval time.Duration
	IdleTTL         time.Duration
}

// DetectorConfig holds flash-loan detector thresholds
type DetectorConfig struct {
	HistorySize            int
	RapidSequenceWindow    time.Duration
	RapidSequenceThreshold int
	LargeAmountThreshold   string
	LargeAmountWindow      time.Duration
	RecentAttackBuffer     int
}

// ChainConfig holds one chain adapter's endpoint and policy settings
type ChainConfig struct {
	ChainID        string
	Name           string
	RPCURL         string
	WSURL          string
	RPCUser        string
	RPCPassword    string
	Confirmations  int64
	MaxRetries     int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	RPCRateLimit   float64
	// SenderKey is the hot wallet private key for chains the bridge submits
	// to. Empty means the adapter is read-only.
	SenderKey string
}

// ChainsConfig holds the supported chain endpoints
type ChainsConfig struct {
	EVM    ChainConfig
	UTXO   ChainConfig
	Ledger ChainConfig
}

// QuorumConfig holds the approval threshold and approver set
type QuorumConfig struct {
	Threshold int
	// Approvers is a comma-separated list of approver addresses.
	Approvers string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "chainbridge"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-in-production"),
			Expiry: getEnvAsDuration("JWT_EXPIRY", 1*time.Hour),
		},
		Security: SecurityConfig{
			AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
		},
		Bridge: BridgeConfig{
			TransferExpiry: getEnvAsDuration("BRIDGE_TRANSFER_EXPIRY", 30*time.Minute),
			PollInterval:   getEnvAsDuration("BRIDGE_POLL_INTERVAL", 5*time.Second),
			WorkerPoolSize: getEnvAsInt("BRIDGE_WORKER_POOL_SIZE", 16),
			SweepInterval:  getEnvAsDuration("BRIDGE_SWEEP_INTERVAL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Limit:           getEnvAsInt("RATE_LIMIT", 10),
			Window:          getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			BurstMultiplier: getEnvAsFloat("RATE_LIMIT_BURST_MULTIPLIER", 1.5),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
			IdleTTL:         getEnvAsDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
		},
		Detector: DetectorConfig{
			HistorySize:            getEnvAsInt("DETECTOR_HISTORY_SIZE", 256),
			RapidSequenceWindow:    getEnvAsDuration("DETECTOR_RAPID_WINDOW", time.Minute),
			RapidSequenceThreshold: getEnvAsInt("DETECTOR_RAPID_THRESHOLD", 5),
			LargeAmountThreshold:   getEnv("DETECTOR_LARGE_AMOUNT_THRESHOLD", "100000"),
			LargeAmountWindow:      getEnvAsDuration("DETECTOR_LARGE_AMOUNT_WINDOW", time.Hour),
			RecentAttackBuffer:     getEnvAsInt("DETECTOR_RECENT_ATTACK_BUFFER", 100),
		},
		Chains: ChainsConfig{
			EVM: ChainConfig{
				ChainID:        getEnv("EVM_CHAIN_ID", "eip155:84532"),
				Name:           getEnv("EVM_CHAIN_NAME", "Base Sepolia"),
				RPCURL:         getEnv("EVM_RPC_URL", "https://sepolia.base.org"),
				WSURL:          getEnv("EVM_WS_URL", ""),
				Confirmations:  int64(getEnvAsInt("EVM_CONFIRMATIONS", 12)),
				MaxRetries:     getEnvAsInt("EVM_MAX_RETRIES", 3),
				RetryBackoff:   getEnvAsDuration("EVM_RETRY_BACKOFF", time.Second),
				RequestTimeout: getEnvAsDuration("EVM_REQUEST_TIMEOUT", 15*time.Second),
				RPCRateLimit:   getEnvAsFloat("EVM_RPC_RATE_LIMIT", 20),
				SenderKey:      getEnv("EVM_SENDER_KEY", ""),
			},
			UTXO: ChainConfig{
				ChainID:        getEnv("UTXO_CHAIN_ID", "bip122:testnet"),
				Name:           getEnv("UTXO_CHAIN_NAME", "Bitcoin Testnet"),
				RPCURL:         getEnv("UTXO_RPC_URL", "http://localhost:18332"),
				RPCUser:        getEnv("UTXO_RPC_USER", ""),
				RPCPassword:    getEnv("UTXO_RPC_PASSWORD", ""),
				Confirmations:  int64(getEnvAsInt("UTXO_CONFIRMATIONS", 6)),
				MaxRetries:     getEnvAsInt("UTXO_MAX_RETRIES", 3),
				RetryBackoff:   getEnvAsDuration("UTXO_RETRY_BACKOFF", 2*time.Second),
				RequestTimeout: getEnvAsDuration("UTXO_REQUEST_TIMEOUT", 20*time.Second),
				RPCRateLimit:   getEnvAsFloat("UTXO_RPC_RATE_LIMIT", 10),
			},
			Ledger: ChainConfig{
				ChainID:        getEnv("LEDGER_CHAIN_ID", "internal:ledger"),
				Name:           getEnv("LEDGER_CHAIN_NAME", "Internal Ledger"),
				RPCURL:         getEnv("LEDGER_RPC_URL", "http://localhost:9090"),
				Confirmations:  int64(getEnvAsInt("LEDGER_CONFIRMATIONS", 1)),
				MaxRetries:     getEnvAsInt("LEDGER_MAX_RETRIES", 3),
				RetryBackoff:   getEnvAsDuration("LEDGER_RETRY_BACKOFF", 500*time.Millisecond),
				RequestTimeout: getEnvAsDuration("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
				RPCRateLimit:   getEnvAsFloat("LEDGER_RPC_RATE_LIMIT", 50),
			},
		},
		Quorum: QuorumConfig{
			Threshold: getEnvAsInt("QUORUM_THRESHOLD", 2),
			Approvers: getEnv("QUORUM_APPROVERS", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
