package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/tonefinance/sectorvault/internal/config"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/export"
	"github.com/tonefinance/sectorvault/internal/external"
)

func pricesCommand() *cli.Command {
	return &cli.Command{
		Name:  "prices",
		Usage: "fetch CoinGecko USD prices and print them scaled for the oracle",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "decimals", Value: 18, Usage: "oracle price decimals"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens, err := priceTokens(cfg)
			if err != nil {
				return err
			}

			coingecko := external.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
			svc := external.NewService(coingecko, tokens, uint8(c.Uint("decimals")))
			if cfg.DatabaseURL != "" {
				pool, err := openDatabase(c.Context, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				svc = svc.WithRepository(external.NewPgQuoteRepository(pool))
			}

			prices, err := svc.FetchPrices(c.Context)
			if err != nil {
				return err
			}
			if err := svc.Publish(c.Context, prices); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tADDRESS\tUSD\tSCALED")
			for _, p := range prices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Token.Symbol, p.Token.Address.Hex(), p.USD.String(), p.Scaled.String())
			}
			return w.Flush()
		},
	}
}

// priceTokens returns the PRICE_TOKENS_FILE list, or the built-in sector tokens.
func priceTokens(cfg config.Config) ([]external.PriceToken, error) {
	if cfg.PriceTokensFile == "" {
		return external.DefaultTokens, nil
	}
	return external.LoadTokens(cfg.PriceTokensFile)
}

func depositorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "depositors",
		Usage: "list the depositors of a vault from its DepositRequested logs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vault", Usage: "vault address or configured name (default: first configured vault)"},
			&cli.Uint64Flag{Name: "from", Usage: "first block to scan"},
			&cli.Uint64Flag{Name: "to", Usage: "last block to scan (default: head)"},
			&cli.Uint64Flag{Name: "chunk", Value: export.DefaultLogChunk, Usage: "blocks per log query"},
			&cli.StringFlag{Name: "xlsx", Usage: "also write the report to this XLSX file"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			target, err := resolveVault(cfg.Vaults, c.String("vault"))
			if err != nil {
				return err
			}

			client, err := ethclient.DialContext(c.Context, cfg.RPCURL)
			if err != nil {
				return fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
			}
			defer client.Close()

			report, err := depositorReport(c.Context, client, target, c.Uint64("from"), c.Uint64("to"), c.Uint64("chunk"))
			if err != nil {
				return err
			}
			if err := report.WriteText(os.Stdout); err != nil {
				return err
			}

			if path := c.String("xlsx"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				if err := report.WriteXLSX(f); err != nil {
					return err
				}
				slog.Info("depositor report written", "path", path)
			}
			return nil
		},
	}
}

// depositReader is the chain surface the depositor report needs.
type depositReader interface {
	contracts.Caller
	contracts.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
}

func depositorReport(ctx context.Context, client depositReader, target config.VaultConfig, from, to, chunk uint64) (export.DepositorReport, error) {
	vault := common.HexToAddress(target.Address)
	quote, err := contracts.NewVault(vault, client).QuoteToken(ctx)
	if err != nil {
		return export.DepositorReport{}, fmt.Errorf("reading quote token: %w", err)
	}
	decimals, err := contracts.NewERC20(quote, client).Decimals(ctx)
	if err != nil {
		return export.DepositorReport{}, fmt.Errorf("reading quote decimals: %w", err)
	}
	if to == 0 {
		if to, err = client.BlockNumber(ctx); err != nil {
			return export.DepositorReport{}, fmt.Errorf("reading head block: %w", err)
		}
	}

	deposits, err := export.CollectDeposits(ctx, client, vault, from, to, chunk)
	if err != nil {
		return export.DepositorReport{}, err
	}
	return export.BuildReport(target.Name, vault, decimals, deposits), nil
}

// resolveVault picks the configured vault named (case-insensitively) or addressed by
// ref. A hex address not in the configuration is accepted as is.
func resolveVault(vaults []config.VaultConfig, ref string) (config.VaultConfig, error) {
	if ref == "" {
		if len(vaults) == 0 {
			return config.VaultConfig{}, config.ErrNoVaults
		}
		return vaults[0], nil
	}

	v, ok := lo.Find(vaults, func(v config.VaultConfig) bool {
		return strings.EqualFold(v.Name, ref) || strings.EqualFold(v.Address, ref)
	})
	if ok {
		return v, nil
	}
	if common.IsHexAddress(ref) {
		return config.VaultConfig{Name: ref, Address: ref}, nil
	}
	return config.VaultConfig{}, fmt.Errorf("unknown vault %q", ref)
}
