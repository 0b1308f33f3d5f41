package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/tonefinance/sectorvault/internal/config"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/domain"
	"github.com/tonefinance/sectorvault/internal/external"
	"github.com/tonefinance/sectorvault/internal/reconciler"
	"github.com/tonefinance/sectorvault/internal/simulator"
	"github.com/tonefinance/sectorvault/internal/worker"
)

const (
	simQuoteDecimals = 6
	simUserFunding   = 100_000
	simFulfillerCash = 1_000_000
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "run the reconciler against an in-process chain with a demo sector and traffic",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "assets", Value: 3, Usage: "number of price tokens in the demo basket"},
			&cli.IntFlag{Name: "users", Value: 3, Usage: "number of simulated depositors"},
			&cli.DurationFlag{Name: "traffic-interval", Value: 5 * time.Second, Usage: "time between simulated user requests"},
			&cli.DurationFlag{Name: "poll", Value: 2 * time.Second, Usage: "reconciler poll interval"},
			&cli.BoolFlag{Name: "offline", Usage: "keep the seeded $1 prices instead of fetching CoinGecko"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.PollInterval = c.Duration("poll")
			if err := cfg.ValidateIntervals(); err != nil {
				return err
			}
			if d := c.Duration("traffic-interval"); d <= 0 {
				return fmt.Errorf("--traffic-interval must be positive, got %s", d)
			}

			tokens, err := priceTokens(cfg)
			if err != nil {
				return err
			}
			n := c.Int("assets")
			if n < 1 || n > len(tokens) {
				return fmt.Errorf("--assets must be between 1 and %d", len(tokens))
			}
			return runSimulation(c.Context, cfg, simOptions{
				tokens:  tokens[:n],
				users:   c.Int("users"),
				traffic: c.Duration("traffic-interval"),
				offline: c.Bool("offline"),
			})
		},
	}
}

type simOptions struct {
	tokens  []external.PriceToken
	users   int
	traffic time.Duration
	offline bool
}

// demoSector is a deployed sector plus the accounts that drive it.
type demoSector struct {
	chain  *simulator.Chain
	sector simulator.Sector
	owner  common.Address
	users  []common.Address
}

func runSimulation(ctx context.Context, cfg config.Config, opts simOptions) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating fulfiller key: %w", err)
	}

	demo, err := deployDemo(simulator.New(), key, opts.tokens, opts.users)
	if err != nil {
		return err
	}

	tx, err := reconciler.NewTransactor(ctx, demo.chain, key, txConfig(cfg))
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	workers := []func(context.Context){
		func(ctx context.Context) { demo.runTraffic(ctx, opts.traffic) },
	}
	if !opts.offline {
		tokens := make([]external.PriceToken, len(opts.tokens))
		copy(tokens, opts.tokens)
		for i := range tokens {
			tokens[i].Address = demo.sector.Assets[i]
		}
		coingecko := external.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
		prices := external.NewService(coingecko, tokens, simQuoteDecimals).
			WithSink(external.NewOracleWriter(tx, demo.sector.Oracle))
		if pool != nil {
			prices = prices.WithRepository(external.NewPgQuoteRepository(pool))
		}
		workers = append(workers, worker.NewPriceWorker(prices, cfg.PriceWorkerInterval).Run)
	}

	slog.Info("Simulator: sector deployed",
		"vault", demo.sector.Vault.Hex(),
		"quote", demo.sector.Quote.Hex(),
		"oracle", demo.sector.Oracle.Hex(),
		"fulfiller", tx.From().Hex(),
		"users", len(demo.users))

	return runStack(ctx, cfg, stack{
		client:  demo.chain,
		tx:      tx,
		targets: []reconciler.Target{{Name: "Simulated Sector", Address: demo.sector.Vault}},
		pool:    pool,
		workers: workers,
	})
}

// deployDemo deploys an equal-weight sector over tokens, owned and fulfilled by key's
// account, and funds users with quote tokens approved to the vault.
func deployDemo(chain *simulator.Chain, key *ecdsa.PrivateKey, tokens []external.PriceToken, users int) (*demoSector, error) {
	fulfiller := crypto.PubkeyToAddress(key.PublicKey)
	weights := equalWeights(len(tokens))

	assets := make([]simulator.AssetSpec, len(tokens))
	for i, t := range tokens {
		assets[i] = simulator.AssetSpec{
			Name:     t.Symbol,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			Price:    domain.Pow10(simQuoteDecimals),
			Weight:   weights[i],
		}
	}

	sector, err := chain.DeploySector(simulator.SectorSpec{
		Name:             "Simulated Sector",
		Symbol:           "SIM",
		Owner:            fulfiller,
		Fulfiller:        fulfiller,
		QuoteSymbol:      "USDC",
		QuoteDecimals:    simQuoteDecimals,
		Assets:           assets,
		FulfillerFunding: simFulfillerCash,
	})
	if err != nil {
		return nil, fmt.Errorf("deploying sector: %w", err)
	}
	if err := chain.Mint(sector.Quote, fulfiller, units(simFulfillerCash)); err != nil {
		return nil, fmt.Errorf("funding fulfiller: %w", err)
	}

	demo := &demoSector{chain: chain, sector: sector, owner: fulfiller}
	for i := range users {
		user := common.BigToAddress(big.NewInt(int64(0xa11ce + i)))
		if err := chain.Mint(sector.Quote, user, units(simUserFunding)); err != nil {
			return nil, fmt.Errorf("funding user %d: %w", i, err)
		}
		if err := chain.ApproveMax(sector.Quote, user, sector.Vault); err != nil {
			return nil, fmt.Errorf("approving user %d: %w", i, err)
		}
		demo.users = append(demo.users, user)
	}
	return demo, nil
}

// equalWeights splits BasisPoints over n assets, giving the remainder to the first.
func equalWeights(n int) []int64 {
	weights := make([]int64, n)
	for i := range weights {
		weights[i] = domain.BasisPoints / int64(n)
	}
	weights[0] += domain.BasisPoints % int64(n)
	return weights
}

func units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), domain.Pow10(simQuoteDecimals))
}

// runTraffic submits a user request every interval: mostly deposits, sometimes a
// withdrawal of half a user's shares, and occasionally an owner rebalance that
// reverses the basket weights.
func (d *demoSector) runTraffic(ctx context.Context, interval time.Duration) {
	slog.Info("TrafficWorker: starting", "interval", interval, "users", len(d.users))
	if len(d.users) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			slog.Info("TrafficWorker: shutting down")
			return
		case <-ticker.C:
			if err := d.step(ctx, tick); err != nil {
				slog.Warn("TrafficWorker: request refused", "error", err)
			}
		}
	}
}

func (d *demoSector) step(ctx context.Context, tick int) error {
	if tick%10 == 0 {
		return d.requestRebalance(ctx)
	}

	user := d.users[rand.IntN(len(d.users))]
	if rand.IntN(3) == 0 {
		shares, err := contracts.NewVault(d.sector.Vault, d.chain).BalanceOf(ctx, user)
		if err != nil {
			return err
		}
		if half := new(big.Int).Rsh(shares, 1); half.Sign() > 0 {
			return d.send(user, "withdrawal", contracts.PackRequestWithdrawal, half)
		}
	}
	amount := units(int64(100 + rand.IntN(900)))
	return d.send(user, "deposit", contracts.PackRequestDeposit, amount)
}

func (d *demoSector) send(user common.Address, kind string, pack func(*big.Int) ([]byte, error), amount *big.Int) error {
	data, err := pack(amount)
	if err != nil {
		return err
	}
	if _, err := d.chain.Transact(user, d.sector.Vault, data); err != nil {
		return fmt.Errorf("%s request from %s: %w", kind, user.Hex(), err)
	}
	slog.Info("TrafficWorker: request submitted", "kind", kind, "user", user.Hex(), "amount", amount)
	return nil
}

func (d *demoSector) requestRebalance(ctx context.Context) error {
	basket, err := contracts.NewVault(d.sector.Vault, d.chain).Basket(ctx)
	if err != nil {
		return err
	}
	if len(basket.Assets) < 2 {
		return nil
	}
	weights := make([]*big.Int, len(basket.Weights))
	for i, w := range basket.Weights {
		weights[len(weights)-1-i] = w
	}
	data, err := contracts.PackRequestRebalance(basket.Assets, weights)
	if err != nil {
		return err
	}
	if _, err := d.chain.Transact(d.owner, d.sector.Vault, data); err != nil {
		return fmt.Errorf("rebalance request: %w", err)
	}
	slog.Info("TrafficWorker: rebalance requested", "weights", weights)
	return nil
}
