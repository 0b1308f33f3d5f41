package ledger

import (
	"errors"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// Validation errors.
var (
	ErrZeroAmount     = errors.New("amount must be greater than zero")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrLengthMismatch = domain.ErrLengthMismatch
	ErrInvalidWeights = domain.ErrInvalidWeights
	ErrDuplicateAsset = domain.ErrDuplicateAsset
	ErrZeroAddress    = domain.ErrZeroAddress
	ErrEmptyBasket    = domain.ErrEmptyBasket
	ErrPriceNotSet    = errors.New("oracle price not set")
	ErrDecimalsNotSet = errors.New("oracle asset decimals not set")
	ErrQuoteInBasket  = errors.New("quote token cannot be a basket asset")
	ErrUnknownAsset   = errors.New("unknown token")
	ErrUnknownOracle  = errors.New("unknown oracle")
)

// Authorization errors.
var (
	ErrNotFulfiller = errors.New("caller is not the fulfiller")
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrNotRequester = errors.New("caller is neither the requester nor the owner")
)

// Consistency errors.
var (
	ErrValueMismatch      = errors.New("basket value does not match quote amount")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrOracleDecimals     = errors.New("oracle decimals must equal quote token decimals")
	ErrZeroShares         = errors.New("deposit would mint zero shares")
	ErrWorthlessShares    = errors.New("shares outstanding against a vault with no value")
	ErrVaultNotEmpty      = errors.New("basket can only be replaced while no shares exist")
)

// ErrNotFound is returned for request ids that were never created or are already closed.
var ErrNotFound = errors.New("request not found")

// Liveness errors.
var (
	ErrRebalancePending    = errors.New("rebalance pending")
	ErrRequestsOutstanding = errors.New("pending requests outstanding")
	ErrNoRebalance         = errors.New("no rebalance pending")
)

// ErrReentrantCall is returned when a mutating call is made while another one is running.
var ErrReentrantCall = errors.New("reentrant call")
