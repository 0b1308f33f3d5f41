package ledger

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestWithdrawalFlow(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(1000))
	quoteBefore := f.quote.BalanceOf(alice)
	fulfillerQuote := f.quote.BalanceOf(fulfiller)

	id, err := f.ledger.RequestWithdrawal(alice, usd(400))
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if got := f.ledger.BalanceOf(alice); got.Cmp(usd(1000)) != 0 {
		t.Fatalf("shares moved at request time: %s", got)
	}
	value, err := f.ledger.CalculateWithdrawalValue(usd(400))
	if err != nil {
		t.Fatal(err)
	}
	if value.Cmp(usd(400)) != 0 {
		t.Fatalf("withdrawal value = %s, want %s", value, usd(400))
	}

	amts := f.withdrawalAmounts(usd(400))
	if want := amounts(usd(160), usd(120), usd(120)); !reflect.DeepEqual(amts, want) {
		t.Fatalf("amounts = %v, want %v", amts, want)
	}
	if err := f.ledger.FulfillWithdrawal(fulfiller, id, amts); err != nil {
		t.Fatalf("FulfillWithdrawal: %v", err)
	}

	if got := f.ledger.BalanceOf(alice); got.Cmp(usd(600)) != 0 {
		t.Errorf("alice shares = %s, want %s", got, usd(600))
	}
	if got := new(big.Int).Sub(f.quote.BalanceOf(alice), quoteBefore); got.Cmp(usd(400)) != 0 {
		t.Errorf("alice received %s, want %s", got, usd(400))
	}
	if got := new(big.Int).Sub(fulfillerQuote, f.quote.BalanceOf(fulfiller)); got.Cmp(usd(400)) != 0 {
		t.Errorf("fulfiller paid %s, want %s", got, usd(400))
	}
	if got := f.assets[0].BalanceOf(vaultAddr); got.Cmp(usd(240)) != 0 {
		t.Errorf("vault asset A = %s, want %s", got, usd(240))
	}
	if got := f.nav(); got.Cmp(usd(600)) != 0 {
		t.Errorf("nav = %s, want %s", got, usd(600))
	}
	if got := f.ledger.CommittedShares(alice); got.Sign() != 0 {
		t.Errorf("committed = %s after fulfillment", got)
	}

	if err := f.ledger.FulfillWithdrawal(fulfiller, id, amts); !errors.Is(err, ErrNotFound) {
		t.Errorf("replay err = %v, want ErrNotFound", err)
	}
}

func TestWithdrawalValueMismatch(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(1000))
	id, err := f.ledger.RequestWithdrawal(alice, usd(400))
	if err != nil {
		t.Fatal(err)
	}
	before := f.balances(alice, fulfiller, vaultAddr)

	err = f.ledger.FulfillWithdrawal(fulfiller, id, amounts(usd(200), usd(120), usd(120)))
	if !errors.Is(err, ErrValueMismatch) {
		t.Fatalf("err = %v, want ErrValueMismatch", err)
	}
	if after := f.balances(alice, fulfiller, vaultAddr); !reflect.DeepEqual(before, after) {
		t.Errorf("balances changed on revert")
	}
}

func TestWithdrawalRequestValidation(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(100))

	if _, err := f.ledger.RequestWithdrawal(alice, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("zero err = %v, want ErrZeroAmount", err)
	}
	if _, err := f.ledger.RequestWithdrawal(alice, usd(101)); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("over balance err = %v, want ErrInsufficientShares", err)
	}
	if _, err := f.ledger.RequestWithdrawal(bob, usd(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("no shares err = %v, want ErrInsufficientShares", err)
	}
}

func TestOverlappingWithdrawalsAreCapped(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(100))

	first, err := f.ledger.RequestWithdrawal(alice, usd(60))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.RequestWithdrawal(alice, usd(50)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("overlapping request err = %v, want ErrInsufficientShares", err)
	}
	if _, err := f.ledger.RequestWithdrawal(alice, usd(40)); err != nil {
		t.Fatalf("request within remaining balance: %v", err)
	}

	f.must(f.ledger.CancelWithdrawal(alice, first))
	if got := f.ledger.CommittedShares(alice); got.Cmp(usd(40)) != 0 {
		t.Errorf("committed after cancel = %s, want %s", got, usd(40))
	}
}

func TestWithdrawalRechecksBalance(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(100))
	id, err := f.ledger.RequestWithdrawal(alice, usd(100))
	if err != nil {
		t.Fatal(err)
	}
	amts := f.withdrawalAmounts(usd(100))

	// Shares stay transferable while the request is open.
	if err := f.ledger.Transfer(alice, bob, usd(30)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	err = f.ledger.FulfillWithdrawal(fulfiller, id, amts)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
	if _, ok := f.ledger.PendingWithdrawal(id); !ok {
		t.Error("request closed by failed fulfillment")
	}
	if err := f.ledger.CancelWithdrawal(owner, id); err != nil {
		t.Errorf("owner cancel: %v", err)
	}
}

func TestCancelWithdrawal(t *testing.T) {
	f := newFixture(t, standardBasket())
	f.depositAndFulfill(alice, usd(100))
	id, err := f.ledger.RequestWithdrawal(alice, usd(10))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.ledger.CancelWithdrawal(bob, id); !errors.Is(err, ErrNotRequester) {
		t.Errorf("bob cancel err = %v, want ErrNotRequester", err)
	}
	if err := f.ledger.CancelWithdrawal(alice, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.ledger.BalanceOf(alice); got.Cmp(usd(100)) != 0 {
		t.Errorf("shares = %s after cancel, want %s", got, usd(100))
	}
	if err := f.ledger.CancelWithdrawal(alice, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second cancel err = %v, want ErrNotFound", err)
	}
	if got := f.ledger.NextWithdrawalID(); got != 1 {
		t.Errorf("NextWithdrawalID = %d, want 1", got)
	}
}

func TestWithdrawalValueWithoutSupply(t *testing.T) {
	f := newFixture(t, standardBasket())
	v, err := f.ledger.CalculateWithdrawalValue(usd(5))
	if err != nil {
		t.Fatal(err)
	}
	if v.Sign() != 0 {
		t.Errorf("value with no supply = %s, want 0", v)
	}
}
