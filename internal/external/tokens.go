package external

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrNoTokens is returned when a token file lists nothing.
var ErrNoTokens = errors.New("no price tokens configured")

// PriceToken maps an on-chain basket asset to its CoinGecko ID.
type PriceToken struct {
	Symbol      string         `yaml:"symbol"`
	CoinGeckoID string         `yaml:"coingecko_id"`
	Address     common.Address `yaml:"-"`
	RawAddress  string         `yaml:"address"`
	Decimals    uint8          `yaml:"decimals"`
}

// DefaultTokens is the sector token list the vault oracles are seeded from.
var DefaultTokens = []PriceToken{
	{Symbol: "BAT", CoinGeckoID: "basic-attention-token", Address: common.HexToAddress("0x02a8db2231f88fee863081aa7baa4b7e3795e84d"), Decimals: 18},
	{Symbol: "BDX", CoinGeckoID: "beldex", Address: common.HexToAddress("0xc8805760222bd0a26a9cd0517fecd47f8a0f735f"), Decimals: 18},
	{Symbol: "FIL", CoinGeckoID: "filecoin", Address: common.HexToAddress("0x4e248e77ccff9766ec3d836a8219d5dd4b646d1d"), Decimals: 18},
	{Symbol: "GLM", CoinGeckoID: "golem", Address: common.HexToAddress("0xec675ef3bd4db1ce1e01990984222636311854d0"), Decimals: 18},
	{Symbol: "ICP", CoinGeckoID: "internet-computer", Address: common.HexToAddress("0xb6eb2a1b73bc0d9402c59c1b092abcec900b3d04"), Decimals: 18},
	{Symbol: "NEAR", CoinGeckoID: "near", Address: common.HexToAddress("0x31d0d71d767ce6b4d92af123476f6db87a4f4249"), Decimals: 18},
	{Symbol: "NMR", CoinGeckoID: "numeraire", Address: common.HexToAddress("0x7ae619fb4025218ba58f0541cc6ebaaefb604769"), Decimals: 18},
	{Symbol: "SIREN", CoinGeckoID: "siren", Address: common.HexToAddress("0x4221c19e2bebd58a3bc7b8d38c76bdc72644ff9f"), Decimals: 18},
	{Symbol: "TRAC", CoinGeckoID: "origintrail", Address: common.HexToAddress("0x812ce10fb1b923c054c47c0cd93244b45850e6a8"), Decimals: 18},
	{Symbol: "VANA", CoinGeckoID: "vana", Address: common.HexToAddress("0x2832bfd3b0141ef7f1452ea1975323153ac0a7c7"), Decimals: 18},
	{Symbol: "BCH", CoinGeckoID: "bitcoin-cash", Address: common.HexToAddress("0xbe1e8ce9c2e3125aa4155e360cab1de1d6109239"), Decimals: 18},
	{Symbol: "COMP", CoinGeckoID: "compound", Address: common.HexToAddress("0x07c0080711b2e937f32846779ee6c5828b8ab24d"), Decimals: 18},
	{Symbol: "FRAX", CoinGeckoID: "frax", Address: common.HexToAddress("0x9babf71cff53a59cbd5aaff768238a60c6ac3f4b"), Decimals: 18},
	{Symbol: "KAS", CoinGeckoID: "kaspa", Address: common.HexToAddress("0x0fe6ef67eff87378f49864e666039387ff8ade4e"), Decimals: 18},
	{Symbol: "LTC", CoinGeckoID: "litecoin", Address: common.HexToAddress("0x0c4ceba4def071a21650e54e598a6602157521cc"), Decimals: 18},
	{Symbol: "UNI", CoinGeckoID: "uniswap", Address: common.HexToAddress("0xf07f3722753db48f1c967d97eefcdd837a247105"), Decimals: 18},
	{Symbol: "WLFI", CoinGeckoID: "world-liberty-financial", Address: common.HexToAddress("0x3eefe62cb64e762b2c207a5e901a16e616a0dc7c"), Decimals: 18},
	{Symbol: "XRP", CoinGeckoID: "ripple", Address: common.HexToAddress("0xef28f15fff0df624c7cafe1fcd59a73f366559ca"), Decimals: 18},
	{Symbol: "ZEN", CoinGeckoID: "horizen", Address: common.HexToAddress("0xadc745fbaca7d2f6857a19c64f1d0b26094e1033"), Decimals: 18},
}

type tokensFile struct {
	Tokens []PriceToken `yaml:"tokens"`
}

// LoadTokens reads a YAML token list:
//
//	tokens:
//	  - symbol: FIL
//	    coingecko_id: filecoin
//	    address: "0x4e24..."
//	    decimals: 18
func LoadTokens(path string) ([]PriceToken, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var f tokensFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	if len(f.Tokens) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTokens)
	}

	for i, t := range f.Tokens {
		if t.Symbol == "" || t.CoinGeckoID == "" {
			return nil, fmt.Errorf("token %d in %s: symbol and coingecko_id are required", i, path)
		}
		if t.RawAddress != "" {
			if !common.IsHexAddress(t.RawAddress) {
				return nil, fmt.Errorf("token %s: invalid address %q", t.Symbol, t.RawAddress)
			}
			f.Tokens[i].Address = common.HexToAddress(t.RawAddress)
		}
		if t.Decimals == 0 {
			f.Tokens[i].Decimals = 18
		}
	}
	return f.Tokens, nil
}

// ScalePrice converts a human USD price into an oracle integer with the given decimals,
// truncating any excess precision.
func ScalePrice(usd decimal.Decimal, decimals uint8) *big.Int {
	return usd.Shift(int32(decimals)).Truncate(0).BigInt()
}
