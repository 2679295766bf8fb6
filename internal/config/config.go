package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"token-backfill/internal/domain"
)

// Storage backends accepted by STORAGE_BACKEND and --storage.
const (
	BackendPostgres   = "postgres"
	BackendMySQL      = "mysql"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Upstream API caps page*offset at this many rows.
const maxPageSize = 10000

type Config struct {
	Development bool

	// Chain data API
	APIKey    string
	APIURL    string
	RateLimit float64 // requests per second
	PageSize  int

	// Chain
	ChainID int64
	RPCURL  string

	// Storage
	StorageBackend string
	DatabaseURL    string
	MySQLDSN       string
	ClickHouseDSN  string
	ChunkSize      int

	TokensFile     string
	PushgatewayURL string
}

// LoadConfig reads the configuration from the environment, loading a .env
// file first if one exists. It does not validate; callers apply flag
// overrides and then call Validate.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Development:    getEnvAsBool("DEVELOPMENT", false),
		APIKey:         getEnv("ETHERSCAN_API_KEY", ""),
		APIURL:         getEnv("ETHERSCAN_API_URL", "https://api.etherscan.io/v2/api"),
		RateLimit:      getEnvAsFloat("ETHERSCAN_RATE_LIMIT", 5),
		PageSize:       getEnvAsInt("PAGE_SIZE", 1000),
		ChainID:        int64(getEnvAsInt("CHAIN_ID", 137)),
		RPCURL:         getEnv("RPC_URL", "https://polygon-rpc.com"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MySQLDSN:       getEnv("MYSQL_DSN", ""),
		ClickHouseDSN:  getEnv("CLICKHOUSE_DSN", ""),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		TokensFile:     getEnv("TOKENS_FILE", "tokens.yaml"),
		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
	}
}

// Validate checks that all required configuration fields are properly set.
// Every returned error wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return configErr("ETHERSCAN_API_KEY is required")
	}
	if c.APIURL == "" {
		return configErr("ETHERSCAN_API_URL is required")
	}
	if c.RateLimit <= 0 {
		return configErr("ETHERSCAN_RATE_LIMIT must be positive, got %v", c.RateLimit)
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		return configErr("PAGE_SIZE must be in [1, %d], got %d", maxPageSize, c.PageSize)
	}
	if c.ChainID <= 0 {
		return configErr("CHAIN_ID must be positive, got %d", c.ChainID)
	}
	if c.ChunkSize <= 0 {
		return configErr("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.TokensFile == "" {
		return configErr("TOKENS_FILE is required")
	}

	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return configErr("DATABASE_URL is required for the postgres backend")
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return configErr("MYSQL_DSN is required for the mysql backend")
		}
	case BackendClickHouse:
		if c.ClickHouseDSN == "" {
			return configErr("CLICKHOUSE_DSN is required for the clickhouse backend")
		}
	case BackendMemory:
	default:
		return configErr("unknown storage backend %q", c.StorageBackend)
	}

	return nil
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
