package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RequestKind identifies the type of a vault request.
type RequestKind string

const (
	RequestDeposit    RequestKind = "deposit"
	RequestWithdrawal RequestKind = "withdrawal"
	RequestRebalance  RequestKind = "rebalance"
)

// PendingDeposit is an open deposit request. Its quote funds are escrowed by the vault.
type PendingDeposit struct {
	ID          *big.Int       `json:"id"`
	User        common.Address `json:"user"`
	QuoteAmount *big.Int       `json:"quoteAmount"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PendingWithdrawal is an open withdrawal request. Its shares stay in the user's wallet.
type PendingWithdrawal struct {
	ID           *big.Int       `json:"id"`
	User         common.Address `json:"user"`
	SharesAmount *big.Int       `json:"sharesAmount"`
	Timestamp    time.Time      `json:"timestamp"`
}

// RebalanceRequest is the single pending basket change of a vault.
type RebalanceRequest struct {
	NewBasket Basket `json:"newBasket"`
}
