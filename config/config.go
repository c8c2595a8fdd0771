package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

// Config holds the chaincode process configuration
type Config struct {
	Server   ServerConfig
	OpsAddr  string
	LogLevel slog.Level
	Policy   ledger.Policy
}

// ServerConfig configures external service mode. An empty Address means the
// chaincode is launched by the peer.
type ServerConfig struct {
	Address      string
	ChaincodeID  string
	TLSDisabled  bool
	KeyFile      string
	CertFile     string
	ClientCAFile string
}

// ExternalService reports whether the chaincode runs as its own server
func (c *Config) ExternalService() bool {
	return c.Server.Address != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Address:      os.Getenv("CHAINCODE_SERVER_ADDRESS"),
			ChaincodeID:  os.Getenv("CHAINCODE_ID"),
			TLSDisabled:  getEnv("CHAINCODE_TLS_DISABLED", "true") == "true",
			KeyFile:      os.Getenv("CHAINCODE_TLS_KEY_FILE"),
			CertFile:     os.Getenv("CHAINCODE_TLS_CERT_FILE"),
			ClientCAFile: os.Getenv("CHAINCODE_TLS_CLIENT_CA_FILE"),
		},
		OpsAddr: os.Getenv("OPS_LISTEN_ADDRESS"),
		Policy:  ledger.DefaultPolicy(),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if cfg.ExternalService() {
		if cfg.Server.ChaincodeID == "" {
			return nil, fmt.Errorf("CHAINCODE_ID is required when CHAINCODE_SERVER_ADDRESS is set")
		}
		if !cfg.Server.TLSDisabled && (cfg.Server.KeyFile == "" || cfg.Server.CertFile == "") {
			return nil, fmt.Errorf("CHAINCODE_TLS_KEY_FILE and CHAINCODE_TLS_CERT_FILE are required when TLS is enabled")
		}
	}

	var err error
	if cfg.Policy.MinPrice, err = getEnvDecimal("MIN_PRICE", cfg.Policy.MinPrice); err != nil {
		return nil, err
	}
	if cfg.Policy.MaxPrice, err = getEnvDecimal("MAX_PRICE", cfg.Policy.MaxPrice); err != nil {
		return nil, err
	}
	if !cfg.Policy.MinPrice.IsPositive() {
		return nil, fmt.Errorf("MIN_PRICE must be positive, got %s", cfg.Policy.MinPrice)
	}
	if cfg.Policy.MinPrice.GreaterThan(cfg.Policy.MaxPrice) {
		return nil, fmt.Errorf("MIN_PRICE %s exceeds MAX_PRICE %s", cfg.Policy.MinPrice, cfg.Policy.MaxPrice)
	}
	if cfg.Policy.MaxBatchSize, err = getEnvInt("MAX_BATCH_SIZE", cfg.Policy.MaxBatchSize); err != nil {
		return nil, err
	}
	if cfg.Policy.MaxBatchSize < 1 {
		return nil, fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", cfg.Policy.MaxBatchSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
