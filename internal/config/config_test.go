package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	vaultA = "0x00000000000000000000000000000000000000aa"
	vaultB = "0x00000000000000000000000000000000000000bb"
	vaultC = "0x00000000000000000000000000000000000000cc"
)

// clearEnv unsets every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PRIVATE_KEY", "RPC_URL", "SECTOR_VAULTS", "SECTOR_VAULT", "VAULTS_FILE",
		"POLL_INTERVAL", "RESCAN_INTERVAL", "SHUTDOWN_TIMEOUT", "TX_RECEIPT_TIMEOUT",
		"TX_POLL_INTERVAL", "GAS_LIMIT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL",
		"SQLITE_PATH", "HTTP_PORT", "ADMIN_API_KEY", "SNAPSHOT_CRON", "COINGECKO_URL",
		"COINGECKO_DELAY", "COINGECKO_RETRY_MAX", "PRICE_TOKENS_FILE", "PRICE_WORKER_INTERVAL",
	}
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, "SECTOR_VAULT_") {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RPCURL != "https://sepolia.base.org" {
		t.Errorf("RPCURL = %q, want default", cfg.RPCURL)
	}
	if cfg.PollInterval != 12*time.Second {
		t.Errorf("PollInterval = %v, want 12s", cfg.PollInterval)
	}
	if cfg.RescanInterval != 10*time.Minute {
		t.Errorf("RescanInterval = %v, want 10m", cfg.RescanInterval)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.TxReceiptTimeout != time.Minute || cfg.TxPollInterval != time.Second {
		t.Errorf("tx timings = %v/%v, want 1m/1s", cfg.TxReceiptTimeout, cfg.TxPollInterval)
	}
	if cfg.GasLimit != 8_000_000 {
		t.Errorf("GasLimit = %d, want 8000000", cfg.GasLimit)
	}
	if cfg.LogLevel != "INFO" || cfg.LogFormat != "TEXT" {
		t.Errorf("logging = %s/%s, want INFO/TEXT", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.SnapshotCron != "0 * * * *" {
		t.Errorf("SnapshotCron = %q", cfg.SnapshotCron)
	}
	if cfg.CoinGeckoDelay != 6*time.Second || cfg.CoinGeckoRetryMax != 5 {
		t.Errorf("coingecko = %v/%d", cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
	}
	if len(cfg.Vaults) != 0 {
		t.Errorf("Vaults = %v, want none", cfg.Vaults)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m30s")
	t.Setenv("GAS_LIMIT", "500000")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s from integer seconds", cfg.PollInterval)
	}
	if cfg.ShutdownTimeout != 90*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 1m30s", cfg.ShutdownTimeout)
	}
	if cfg.GasLimit != 500_000 {
		t.Errorf("GasLimit = %d", cfg.GasLimit)
	}
	if cfg.LogFormat != "JSON" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAS_LIMIT", "lots")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GasLimit != 8_000_000 {
		t.Errorf("GasLimit = %d, want default on invalid input", cfg.GasLimit)
	}
	if cfg.PollInterval != 12*time.Second {
		t.Errorf("PollInterval = %v, want default on invalid input", cfg.PollInterval)
	}
}

func TestLoadVaultSources(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []VaultConfig
	}{
		{
			name: "comma separated list",
			env:  map[string]string{"SECTOR_VAULTS": vaultA + ", " + vaultB + ","},
			want: []VaultConfig{{"Vault-1", vaultA}, {"Vault-2", vaultB}},
		},
		{
			name: "named vaults sorted by name",
			env:  map[string]string{"SECTOR_VAULT_MIA": vaultB, "SECTOR_VAULT_AI": vaultA},
			want: []VaultConfig{{"AI", vaultA}, {"MIA", vaultB}},
		},
		{
			name: "legacy single vault",
			env:  map[string]string{"SECTOR_VAULT": vaultC},
			want: []VaultConfig{{"Default", vaultC}},
		},
		{
			name: "legacy ignored when others are set",
			env:  map[string]string{"SECTOR_VAULT": vaultC, "SECTOR_VAULTS": vaultA},
			want: []VaultConfig{{"Vault-1", vaultA}},
		},
		{
			name: "duplicates keep the first name",
			env:  map[string]string{"SECTOR_VAULTS": vaultA, "SECTOR_VAULT_AI": strings.ToUpper(vaultA[2:])},
			want: []VaultConfig{{"Vault-1", vaultA}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(cfg.Vaults) != len(tt.want) {
				t.Fatalf("Vaults = %v, want %v", cfg.Vaults, tt.want)
			}
			for i := range tt.want {
				if cfg.Vaults[i] != tt.want[i] {
					t.Errorf("Vaults[%d] = %v, want %v", i, cfg.Vaults[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadVaultsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "vaults.yaml")
	content := "- name: Energy\n  address: " + vaultB + "\n- name: Health\n  address: " + vaultC + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VAULTS_FILE", path)
	t.Setenv("SECTOR_VAULT_AI", vaultA)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []VaultConfig{{"AI", vaultA}, {"Energy", vaultB}, {"Health", vaultC}}
	if len(cfg.Vaults) != len(want) {
		t.Fatalf("Vaults = %v, want %v", cfg.Vaults, want)
	}
	for i := range want {
		if cfg.Vaults[i] != want[i] {
			t.Errorf("Vaults[%d] = %v, want %v", i, cfg.Vaults[i], want[i])
		}
	}
}

func TestLoadVaultsFileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULTS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing vaults file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("name: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VAULTS_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed vaults file")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		PrivateKey:          "0x01",
		Vaults:              []VaultConfig{{"AI", vaultA}},
		PollInterval:        time.Second,
		RescanInterval:      10 * time.Minute,
		ShutdownTimeout:     30 * time.Second,
		TxReceiptTimeout:    time.Minute,
		TxPollInterval:      time.Second,
		PriceWorkerInterval: time.Hour,
		GasLimit:            8_000_000,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.PrivateKey = "" }},
		{"no vaults", func(c *Config) { c.Vaults = nil }},
		{"bad address", func(c *Config) { c.Vaults = []VaultConfig{{"AI", "0x123"}} }},
		{"unnamed vault", func(c *Config) { c.Vaults = []VaultConfig{{"", vaultA}} }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero gas", func(c *Config) { c.GasLimit = 0 }},
		{"zero tx poll interval", func(c *Config) { c.TxPollInterval = 0 }},
		{"negative receipt timeout", func(c *Config) { c.TxReceiptTimeout = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"zero price worker interval", func(c *Config) { c.PriceWorkerInterval = 0 }},
		{"negative rescan interval", func(c *Config) { c.RescanInterval = -time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Vaults = append([]VaultConfig(nil), valid.Vaults...)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	noRescan := valid
	noRescan.RescanInterval = 0
	if err := noRescan.Validate(); err != nil {
		t.Errorf("zero rescan interval: %v", err)
	}

	noVaults := valid
	noVaults.Vaults = nil
	if err := noVaults.Validate(); !errors.Is(err, ErrNoVaults) {
		t.Errorf("err = %v, want ErrNoVaults", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantRPC  string
		wantWarn bool
	}{
		{"no file", "", "https://sepolia.base.org", false},
		{"valid file", "RPC_URL=http://dotenv:8545\n", "http://dotenv:8545", false},
		{"malformed file", "GAS-LIMIT=1\n", "https://sepolia.base.org", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			if tt.contents != "" {
				if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(tt.contents), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			t.Chdir(dir)

			var logs bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.RPCURL != tt.wantRPC {
				t.Errorf("RPCURL = %q, want %q", cfg.RPCURL, tt.wantRPC)
			}
			if warned := strings.Contains(logs.String(), ".env"); warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v; logs: %s", warned, tt.wantWarn, logs.String())
			}
		})
	}
}
