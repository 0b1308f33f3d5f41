package export

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// DefaultLogChunk is the block span of one eth_getLogs call while collecting deposits.
const DefaultLogChunk = 10_000

// Deposit is one DepositRequested event.
type Deposit struct {
	ID          *big.Int
	User        common.Address
	QuoteAmount *big.Int
	Timestamp   int64
	Block       uint64
	TxHash      common.Hash
}

// Depositor aggregates the deposit requests of one user.
type Depositor struct {
	User     common.Address
	Requests int
	Total    *big.Int
}

// DepositorReport lists every deposit request of a vault and its unique depositors.
type DepositorReport struct {
	Vault         string
	Address       common.Address
	QuoteDecimals uint8
	Deposits      []Deposit
	Depositors    []Depositor
}

// CollectDeposits reads DepositRequested logs of vault in blocks [from, to], querying
// at most chunk blocks at a time.
func CollectDeposits(ctx context.Context, client contracts.LogFilterer, vault common.Address, from, to, chunk uint64) ([]Deposit, error) {
	if chunk == 0 {
		chunk = DefaultLogChunk
	}

	var deposits []Deposit
	for start := from; start <= to; start += chunk {
		end := min(start+chunk-1, to)
		logs, err := client.FilterLogs(ctx, contracts.EventQuery([]common.Address{vault}, start, end, contracts.EventDepositRequested))
		if err != nil {
			return nil, fmt.Errorf("filtering logs %d-%d: %w", start, end, err)
		}
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			ev, err := contracts.ParseDepositRequested(lg)
			if err != nil {
				return nil, fmt.Errorf("decoding log %s/%d: %w", lg.TxHash.Hex(), lg.Index, err)
			}
			deposits = append(deposits, Deposit{
				ID:          ev.DepositId,
				User:        ev.User,
				QuoteAmount: ev.QuoteAmount,
				Timestamp:   ev.Timestamp.Int64(),
				Block:       lg.BlockNumber,
				TxHash:      lg.TxHash,
			})
		}
		if end == to {
			break
		}
	}
	return deposits, nil
}

// BuildReport orders deposits by id and aggregates them per user, users sorted by address.
func BuildReport(name string, vault common.Address, quoteDecimals uint8, deposits []Deposit) DepositorReport {
	deposits = slices.Clone(deposits)
	slices.SortFunc(deposits, func(a, b Deposit) int { return a.ID.Cmp(b.ID) })

	grouped := lo.GroupBy(deposits, func(d Deposit) common.Address { return d.User })
	depositors := lo.MapToSlice(grouped, func(user common.Address, ds []Deposit) Depositor {
		total := lo.Reduce(ds, func(acc *big.Int, d Deposit, _ int) *big.Int {
			return acc.Add(acc, d.QuoteAmount)
		}, new(big.Int))
		return Depositor{User: user, Requests: len(ds), Total: total}
	})
	slices.SortFunc(depositors, func(a, b Depositor) int {
		return cmp.Compare(strings.ToLower(a.User.Hex()), strings.ToLower(b.User.Hex()))
	})

	return DepositorReport{
		Vault:         name,
		Address:       vault,
		QuoteDecimals: quoteDecimals,
		Deposits:      deposits,
		Depositors:    depositors,
	}
}

// WriteText prints the report in plain text.
func (r DepositorReport) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s Depositors (%s) ===\n", r.Vault, r.Address.Hex())
	if len(r.Deposits) == 0 {
		b.WriteString("No deposits found\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Total deposit requests: %d\n", len(r.Deposits))
	fmt.Fprintf(&b, "Unique depositors: %d\n\n", len(r.Depositors))

	b.WriteString("=== Depositor List ===\n")
	for i, d := range r.Depositors {
		fmt.Fprintf(&b, "%d. %s  requests=%d  total=%s\n", i+1, strings.ToLower(d.User.Hex()), d.Requests, domain.FormatUnits(d.Total, r.QuoteDecimals))
	}

	b.WriteString("\n=== Deposit Details ===\n")
	for _, d := range r.Deposits {
		fmt.Fprintf(&b, "#%s  %s  %s  block=%d  tx=%s\n", d.ID, strings.ToLower(d.User.Hex()), domain.FormatUnits(d.QuoteAmount, r.QuoteDecimals), d.Block, d.TxHash.Hex())
	}

	_, err := io.WriteString(w, b.String())
	return err
}
