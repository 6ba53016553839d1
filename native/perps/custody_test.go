package perps

import (
	"testing"

	"github.com/holiman/uint256"
)

func newBorrowRateCustody() *Custody {
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.BorrowRate = BorrowRateParams{
		BaseRate:           0,
		Slope1:             1_000_000,
		Slope2:             10_000_000,
		OptimalUtilization: 800_000_000,
	}
	return c
}

// TestUpdateBorrowRateBelowKink covers SPEC_FULL.md section 8 scenario E:
// utilization at 50% (below the 80% kink) yields rate = utilization *
// slope1 / optimal = 0.5/0.8 * 1_000_000 = 625_000.
func TestUpdateBorrowRateBelowKink(t *testing.T) {
	c := newBorrowRateCustody()
	c.Assets.Owned = uint256.NewInt(1_000_000)
	c.Assets.Locked = uint256.NewInt(500_000)

	if err := c.UpdateBorrowRate(1000); err != nil {
		t.Fatalf("update borrow rate: %v", err)
	}
	if got := c.BorrowRateState.CurrentRate.Uint64(); got != 625_000 {
		t.Fatalf("expected rate 625000, got %d", got)
	}
}

// TestUpdateBorrowRateAboveKink covers utilization at 90% (above the 80%
// kink): rate = slope1 + (0.9-0.8)/(1-0.8) * slope2
//            = 1_000_000 + 0.5*10_000_000 = 6_000_000.
func TestUpdateBorrowRateAboveKink(t *testing.T) {
	c := newBorrowRateCustody()
	c.Assets.Owned = uint256.NewInt(1_000_000)
	c.Assets.Locked = uint256.NewInt(900_000)

	if err := c.UpdateBorrowRate(1000); err != nil {
		t.Fatalf("update borrow rate: %v", err)
	}
	if got := c.BorrowRateState.CurrentRate.Uint64(); got != 6_000_000 {
		t.Fatalf("expected rate 6000000, got %d", got)
	}
}

func TestUpdateBorrowRateZeroOwnedIsZeroRate(t *testing.T) {
	c := newBorrowRateCustody()
	if err := c.UpdateBorrowRate(1000); err != nil {
		t.Fatalf("update borrow rate: %v", err)
	}
	if !c.BorrowRateState.CurrentRate.IsZero() {
		t.Fatalf("expected zero rate on empty custody, got %d", c.BorrowRateState.CurrentRate.Uint64())
	}
	if c.BorrowRateState.LastUpdate != 1000 {
		t.Fatalf("expected last_update advanced to 1000, got %d", c.BorrowRateState.LastUpdate)
	}
}

func TestGetCumulativeInterestAccruesAtOldRate(t *testing.T) {
	c := newBorrowRateCustody()
	c.Assets.Owned = uint256.NewInt(1_000_000)
	c.Assets.Locked = uint256.NewInt(500_000)
	if err := c.UpdateBorrowRate(0); err != nil {
		t.Fatalf("seed rate: %v", err)
	}

	got, err := c.GetCumulativeInterest(secondsPerHour)
	if err != nil {
		t.Fatalf("cumulative interest: %v", err)
	}
	if got.Uint64() != 625_000 {
		t.Fatalf("expected one hour of accrual at 625000/hr, got %d", got.Uint64())
	}
}

func TestLockFundsRespectsMaxUtilization(t *testing.T) {
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Assets.Owned = uint256.NewInt(1_000)
	c.Pricing.MaxUtilization = 5_000 // 50%

	if err := c.LockFunds(uint256.NewInt(400)); err != nil {
		t.Fatalf("lock below cap: %v", err)
	}
	if err := c.LockFunds(uint256.NewInt(200)); err != ErrMaxUtilization {
		t.Fatalf("expected ErrMaxUtilization, got %v", err)
	}
}

func TestLockFundsRejectsVirtualCustody(t *testing.T) {
	c := NewCustody("pool-a", "virt", 6, true, true)
	if err := c.LockFunds(uint256.NewInt(1)); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestUnlockFundsSaturatesAtZero(t *testing.T) {
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Assets.Locked = uint256.NewInt(5)
	if err := c.UnlockFunds(uint256.NewInt(10)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !c.Assets.Locked.IsZero() {
		t.Fatalf("expected locked saturated to zero, got %d", c.Assets.Locked.Uint64())
	}
}

func TestAddPositionThenRemovePositionResetsStatsOnLastClose(t *testing.T) {
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Pricing.MaxPayoffMult = 10_000

	pos := &Position{
		Pool:                       "pool-a",
		Custody:                    "mint-a",
		Side:                       SideLong,
		EntryPrice:                 uint256.NewInt(2_000_000), // 2.0 at PRICE scale
		SizeUsd:                    uint256.NewInt(1_000_000_000),
		BorrowSizeUsd:              uint256.NewInt(1_000_000_000),
		LockedAmount:               uint256.NewInt(500),
		CumulativeInterestSnapshot: new(uint256.Int),
	}
	price := NewOraclePrice(uint256.NewInt(2_000_000), -PriceDecimals)

	if err := c.AddPosition(pos, price, 0, nil); err != nil {
		t.Fatalf("add position: %v", err)
	}
	if c.LongPositions.OpenPositions != 1 {
		t.Fatalf("expected 1 open position, got %d", c.LongPositions.OpenPositions)
	}
	if c.LongPositions.SizeUsd.Uint64() != 1_000_000_000 {
		t.Fatalf("expected size_usd tracked, got %d", c.LongPositions.SizeUsd.Uint64())
	}

	if err := c.RemovePosition(pos, 0, nil); err != nil {
		t.Fatalf("remove position: %v", err)
	}
	if c.LongPositions.OpenPositions != 0 {
		t.Fatalf("expected stats reset to zero, got %d open positions", c.LongPositions.OpenPositions)
	}
	if !c.LongPositions.SizeUsd.IsZero() || !c.LongPositions.WeightedPrice.IsZero() {
		t.Fatalf("expected all aggregate fields reset to zero")
	}
}

// TestAddPositionCrossCollateralSplitsTradingAndCollateralUpdates covers
// the cross-collateral short path of SPEC_FULL.md section 4.5: the trading
// custody takes open_positions and size/locked/weighted-price, and the
// collateral custody takes open_positions/borrow_size_usd/cumulative_interest.
func TestAddPositionCrossCollateralSplitsTradingAndCollateralUpdates(t *testing.T) {
	trading := NewCustody("pool-a", "mint-a", 6, false, false)
	collateral := NewCustody("pool-a", "mint-b", 6, true, false)

	pos := &Position{
		Pool:                       "pool-a",
		Custody:                    "mint-a",
		CollateralCustody:          "mint-b",
		Side:                       SideShort,
		EntryPrice:                 uint256.NewInt(2_000_000),
		SizeUsd:                    uint256.NewInt(1_000_000_000),
		BorrowSizeUsd:              uint256.NewInt(1_000_000_000),
		LockedAmount:               uint256.NewInt(500),
		CumulativeInterestSnapshot: new(uint256.Int),
	}
	price := NewOraclePrice(uint256.NewInt(2_000_000), -PriceDecimals)

	if err := trading.AddPosition(pos, price, 0, collateral); err != nil {
		t.Fatalf("add position: %v", err)
	}

	if trading.ShortPositions.OpenPositions != 1 {
		t.Fatalf("expected trading custody to track 1 open position, got %d", trading.ShortPositions.OpenPositions)
	}
	if trading.ShortPositions.SizeUsd.Uint64() != 1_000_000_000 {
		t.Fatalf("expected trading custody size_usd tracked, got %d", trading.ShortPositions.SizeUsd.Uint64())
	}
	if trading.ShortPositions.TotalQuantity.IsZero() {
		t.Fatalf("expected trading custody to track weighted quantity")
	}
	if !trading.ShortPositions.BorrowSizeUsd.IsZero() {
		t.Fatalf("expected trading custody to never track borrow_size_usd for a cross-collateral position, got %d", trading.ShortPositions.BorrowSizeUsd.Uint64())
	}
	if !trading.ShortPositions.CumulativeInterestUsd.IsZero() {
		t.Fatalf("expected trading custody to never track cumulative interest for a cross-collateral position")
	}

	if collateral.ShortPositions.OpenPositions != 1 {
		t.Fatalf("expected collateral custody to track 1 open position, got %d", collateral.ShortPositions.OpenPositions)
	}
	if collateral.ShortPositions.BorrowSizeUsd.Uint64() != 1_000_000_000 {
		t.Fatalf("expected collateral custody borrow_size_usd tracked, got %d", collateral.ShortPositions.BorrowSizeUsd.Uint64())
	}
	if !collateral.ShortPositions.SizeUsd.IsZero() {
		t.Fatalf("expected collateral custody to never take a size_usd contribution, got %d", collateral.ShortPositions.SizeUsd.Uint64())
	}
	if !collateral.ShortPositions.LockedAmount.IsZero() {
		t.Fatalf("expected collateral custody to never take a locked_amount contribution")
	}
	if !collateral.ShortPositions.WeightedPrice.IsZero() || !collateral.ShortPositions.TotalQuantity.IsZero() {
		t.Fatalf("expected collateral custody to never take a weighted-price contribution")
	}

	if err := trading.RemovePosition(pos, 100, collateral); err != nil {
		t.Fatalf("remove position: %v", err)
	}
	if trading.ShortPositions.OpenPositions != 0 {
		t.Fatalf("expected trading custody stats reset on last close, got %d", trading.ShortPositions.OpenPositions)
	}
	if collateral.ShortPositions.OpenPositions != 0 {
		t.Fatalf("expected collateral custody stats reset on last close, got %d", collateral.ShortPositions.OpenPositions)
	}
}

func TestGetLockedAmountCapsShortAtOneX(t *testing.T) {
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Pricing.MaxPayoffMult = 30_000 // 3x

	long, err := c.GetLockedAmount(uint256.NewInt(1_000), SideLong)
	if err != nil {
		t.Fatalf("locked amount long: %v", err)
	}
	if long.Uint64() != 3_000 {
		t.Fatalf("expected long locked 3000, got %d", long.Uint64())
	}

	short, err := c.GetLockedAmount(uint256.NewInt(1_000), SideShort)
	if err != nil {
		t.Fatalf("locked amount short: %v", err)
	}
	if short.Uint64() != 1_000 {
		t.Fatalf("expected short locked capped at 1000, got %d", short.Uint64())
	}
}
