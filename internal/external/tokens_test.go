package external

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTokens(t *testing.T) {
	path := writeFile(t, `
tokens:
  - symbol: FIL
    coingecko_id: filecoin
    address: "0x4e248e77ccff9766ec3d836a8219d5dd4b646d1d"
    decimals: 18
  - symbol: USDX
    coingecko_id: some-usd
    decimals: 6
  - symbol: LTC
    coingecko_id: litecoin
`)
	tokens, err := LoadTokens(path)
	if err != nil {
		t.Fatalf("LoadTokens: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("len = %d, want 3", len(tokens))
	}
	if tokens[0].Address != common.HexToAddress("0x4e248e77ccff9766ec3d836a8219d5dd4b646d1d") {
		t.Errorf("FIL address = %s", tokens[0].Address.Hex())
	}
	if tokens[1].Address != (common.Address{}) || tokens[1].Decimals != 6 {
		t.Errorf("USDX = %+v", tokens[1])
	}
	if tokens[2].Decimals != 18 {
		t.Errorf("LTC decimals = %d, want default 18", tokens[2].Decimals)
	}
}

func TestLoadTokensErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "tokens: []\n"},
		{"missing id", "tokens:\n  - symbol: FIL\n"},
		{"bad address", "tokens:\n  - symbol: FIL\n    coingecko_id: filecoin\n    address: nope\n"},
		{"bad yaml", "tokens: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTokens(writeFile(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := LoadTokens(writeFile(t, "tokens: []\n")); !errors.Is(err, ErrNoTokens) {
		t.Errorf("err = %v, want ErrNoTokens", err)
	}
	if _, err := LoadTokens(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestScalePrice(t *testing.T) {
	tests := []struct {
		usd      string
		decimals uint8
		want     string
	}{
		{"2.85", 18, "2850000000000000000"},
		{"2.85", 6, "2850000"},
		{"0.0000001234", 6, "0"},
		{"84.123456789", 6, "84123456"},
		{"100", 0, "100"},
	}
	for _, tt := range tests {
		got := ScalePrice(decimal.RequireFromString(tt.usd), tt.decimals)
		if got.String() != tt.want {
			t.Errorf("ScalePrice(%s, %d) = %s, want %s", tt.usd, tt.decimals, got, tt.want)
		}
	}
}

func TestDefaultTokensAreComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, tok := range DefaultTokens {
		if tok.CoinGeckoID == "" || tok.Address == (common.Address{}) || tok.Decimals != 18 {
			t.Errorf("incomplete token %+v", tok)
		}
		if seen[tok.Symbol] {
			t.Errorf("duplicate symbol %s", tok.Symbol)
		}
		seen[tok.Symbol] = true
	}
}
