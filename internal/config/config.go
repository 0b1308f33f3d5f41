package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ErrNoVaults indicates that no vault address was configured.
var ErrNoVaults = errors.New("no sector vaults configured: set SECTOR_VAULTS, SECTOR_VAULT_<NAME>, SECTOR_VAULT or VAULTS_FILE")

// VaultConfig names one vault to reconcile.
type VaultConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PrivateKey       string
	RPCURL           string
	Vaults           []VaultConfig
	PollInterval     time.Duration
	RescanInterval   time.Duration
	ShutdownTimeout  time.Duration
	TxReceiptTimeout time.Duration
	TxPollInterval   time.Duration
	GasLimit         uint64
	LogLevel         string
	LogFormat        string

	DatabaseURL  string
	SQLitePath   string
	HTTPPort     string
	AdminAPIKey  string
	SnapshotCron string

	CoinGeckoURL        string
	CoinGeckoDelay      time.Duration
	CoinGeckoRetryMax   int
	PriceTokensFile     string
	PriceWorkerInterval time.Duration

	SheetsSpreadsheetID   string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults. A .env
// file in the working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := Config{
		PrivateKey:       os.Getenv("PRIVATE_KEY"),
		RPCURL:           envOrDefault("RPC_URL", "https://sepolia.base.org"),
		PollInterval:     envOrDefaultDuration("POLL_INTERVAL", 12*time.Second),
		RescanInterval:   envOrDefaultDuration("RESCAN_INTERVAL", 10*time.Minute),
		ShutdownTimeout:  envOrDefaultDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		TxReceiptTimeout: envOrDefaultDuration("TX_RECEIPT_TIMEOUT", 60*time.Second),
		TxPollInterval:   envOrDefaultDuration("TX_POLL_INTERVAL", time.Second),
		GasLimit:         uint64(envOrDefaultInt("GAS_LIMIT", 8_000_000)),
		LogLevel:         envOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:        envOrDefault("LOG_FORMAT", "TEXT"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		HTTPPort:     os.Getenv("HTTP_PORT"),
		AdminAPIKey:  os.Getenv("ADMIN_API_KEY"),
		SnapshotCron: envOrDefault("SNAPSHOT_CRON", "0 * * * *"),

		CoinGeckoURL:        envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoDelay:      envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax:   envOrDefaultInt("COINGECKO_RETRY_MAX", 5),
		PriceTokensFile:     os.Getenv("PRICE_TOKENS_FILE"),
		PriceWorkerInterval: envOrDefaultDuration("PRICE_WORKER_INTERVAL", time.Hour),

		SheetsSpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
		GoogleCredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
	}

	vaults := vaultsFromEnv()
	if path := os.Getenv("VAULTS_FILE"); path != "" {
		fromFile, err := ReadVaultsFile(path)
		if err != nil {
			return Config{}, err
		}
		vaults = append(vaults, fromFile...)
	}
	cfg.Vaults = lo.UniqBy(vaults, func(v VaultConfig) common.Address { return common.HexToAddress(v.Address) })
	return cfg, nil
}

// vaultsFromEnv collects SECTOR_VAULTS (named Vault-N), then every SECTOR_VAULT_<NAME>
// in name order. The legacy SECTOR_VAULT is only used when neither is set.
func vaultsFromEnv() []VaultConfig {
	var vaults []VaultConfig
	for i, addr := range strings.Split(os.Getenv("SECTOR_VAULTS"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			vaults = append(vaults, VaultConfig{Name: fmt.Sprintf("Vault-%d", i+1), Address: addr})
		}
	}

	var named []VaultConfig
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		name, isVault := strings.CutPrefix(key, "SECTOR_VAULT_")
		if !ok || !isVault || name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		named = append(named, VaultConfig{Name: name, Address: strings.TrimSpace(value)})
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })
	vaults = append(vaults, named...)

	if len(vaults) == 0 {
		if addr := strings.TrimSpace(os.Getenv("SECTOR_VAULT")); addr != "" {
			vaults = append(vaults, VaultConfig{Name: "Default", Address: addr})
		}
	}
	return vaults
}

// ReadVaultsFile parses a YAML list of {name, address} entries.
func ReadVaultsFile(path string) ([]VaultConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vaults file: %w", err)
	}
	var vaults []VaultConfig
	if err := yaml.Unmarshal(data, &vaults); err != nil {
		return nil, fmt.Errorf("parsing vaults file: %w", err)
	}
	return vaults, nil
}

// Validate checks what the reconciler needs to run.
func (c Config) Validate() error {
	if c.PrivateKey == "" {
		return errors.New("PRIVATE_KEY is required")
	}
	if len(c.Vaults) == 0 {
		return ErrNoVaults
	}
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault %s has no name", v.Address)
		}
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("vault %s: invalid address %q", v.Name, v.Address)
		}
	}
	if c.GasLimit == 0 {
		return errors.New("GAS_LIMIT must be positive")
	}
	return c.ValidateIntervals()
}

// ValidateIntervals rejects non-positive durations that feed tickers and timeouts.
// RESCAN_INTERVAL is exempt: zero disables the periodic rescan.
func (c Config) ValidateIntervals() error {
	intervals := []struct {
		key   string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"TX_RECEIPT_TIMEOUT", c.TxReceiptTimeout},
		{"TX_POLL_INTERVAL", c.TxPollInterval},
		{"PRICE_WORKER_INTERVAL", c.PriceWorkerInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.key, iv.value)
		}
	}
	if c.RescanInterval < 0 {
		return fmt.Errorf("RESCAN_INTERVAL must not be negative, got %s", c.RescanInterval)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

// envOrDefaultDuration accepts Go durations ("12s", "1m30s") and bare integers as seconds.
func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return d
}
