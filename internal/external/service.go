package external

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/tonefinance/sectorvault/internal/contracts"
)

// TokenPrice is a fetched USD price together with its oracle-scaled integer.
type TokenPrice struct {
	Token  PriceToken
	USD    decimal.Decimal
	Scaled *big.Int
}

// PriceSink receives oracle-scaled prices, e.g. an oracle contract.
type PriceSink interface {
	SetPrice(ctx context.Context, asset common.Address, price *big.Int) error
}

// Service fetches external prices and distributes them to storage and an oracle.
type Service struct {
	coingecko      *CoinGeckoClient
	tokens         []PriceToken
	oracleDecimals uint8
	repo           QuoteRepository // optional
	sink           PriceSink       // optional
}

// NewService creates a new price Service for tokens, scaling prices to oracleDecimals.
func NewService(coingecko *CoinGeckoClient, tokens []PriceToken, oracleDecimals uint8) *Service {
	return &Service{
		coingecko:      coingecko,
		tokens:         tokens,
		oracleDecimals: oracleDecimals,
	}
}

// WithRepository stores every fetched quote in repo.
func (s *Service) WithRepository(repo QuoteRepository) *Service {
	s.repo = repo
	return s
}

// WithSink pushes every fetched price with a known token address to sink.
func (s *Service) WithSink(sink PriceSink) *Service {
	s.sink = sink
	return s
}

// FetchPrices returns the current price of every token CoinGecko knows, in token order.
func (s *Service) FetchPrices(ctx context.Context) ([]TokenPrice, error) {
	ids := lo.Map(s.tokens, func(t PriceToken, _ int) string { return t.CoinGeckoID })
	usd, err := s.coingecko.FetchUSDPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching external prices: %w", err)
	}

	var prices []TokenPrice
	for _, t := range s.tokens {
		p, ok := usd[t.CoinGeckoID]
		if !ok {
			slog.Warn("no CoinGecko price", "symbol", t.Symbol, "id", t.CoinGeckoID)
			continue
		}
		prices = append(prices, TokenPrice{Token: t, USD: p, Scaled: ScalePrice(p, s.oracleDecimals)})
	}
	return prices, nil
}

// UpdatePrices fetches prices, stores them and pushes them to the sink.
func (s *Service) UpdatePrices(ctx context.Context) error {
	prices, err := s.FetchPrices(ctx)
	if err != nil {
		return err
	}
	return s.Publish(ctx, prices)
}

// Publish stores prices in the repository and pushes those with a token address to
// the sink. Prices that round to zero at oracle precision are stored but not pushed.
func (s *Service) Publish(ctx context.Context, prices []TokenPrice) error {
	for _, p := range prices {
		if s.repo != nil {
			if err := s.repo.SaveQuote(ctx, p.Token.Symbol, p.USD); err != nil {
				return fmt.Errorf("storing quote for %s: %w", p.Token.Symbol, err)
			}
		}
		if s.sink == nil || p.Token.Address == (common.Address{}) {
			continue
		}
		if p.Scaled.Sign() == 0 {
			slog.Warn("price rounds to zero at oracle precision, not pushed", "symbol", p.Token.Symbol, "usd", p.USD.String())
			continue
		}
		if err := s.sink.SetPrice(ctx, p.Token.Address, p.Scaled); err != nil {
			return fmt.Errorf("pushing price for %s: %w", p.Token.Symbol, err)
		}
	}
	return nil
}

// TxSender submits a transaction and waits for its receipt.
type TxSender interface {
	SendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// OracleWriter is a PriceSink that sends setPrice transactions to an oracle contract.
type OracleWriter struct {
	tx     TxSender
	oracle common.Address
}

// NewOracleWriter creates a writer for the oracle at address; tx must be signed by its owner.
func NewOracleWriter(tx TxSender, oracle common.Address) *OracleWriter {
	return &OracleWriter{tx: tx, oracle: oracle}
}

func (w *OracleWriter) SetPrice(ctx context.Context, asset common.Address, price *big.Int) error {
	data, err := contracts.PackSetPrice(asset, price)
	if err != nil {
		return err
	}
	if _, err := w.tx.SendAndWait(ctx, w.oracle, data); err != nil {
		return fmt.Errorf("setPrice %s: %w", asset.Hex(), err)
	}
	return nil
}
