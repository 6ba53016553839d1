package perps

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestGetEntryFeeBaseOnly(t *testing.T) {
	p := NewPool("pool-a")
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Fees.OpenPositionFee = 100 // 1%
	c.Assets.Owned = uint256.NewInt(1_000_000)
	c.Assets.Locked = new(uint256.Int)
	c.BorrowRate.OptimalUtilization = 800_000_000

	fee, err := p.GetEntryFee(c, uint256.NewInt(10_000), uint256.NewInt(100))
	if err != nil {
		t.Fatalf("entry fee: %v", err)
	}
	if fee.Uint64() != 100 { // 1% of 10000
		t.Fatalf("expected base fee 100, got %d", fee.Uint64())
	}
}

func TestGetEntryFeeSurchargesPastKink(t *testing.T) {
	p := NewPool("pool-a")
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Fees.OpenPositionFee = 100
	c.Fees.UtilizationMult = 10_000 // 100%
	c.Assets.Owned = uint256.NewInt(1_000_000)
	c.Assets.Locked = uint256.NewInt(700_000)
	c.BorrowRate.OptimalUtilization = 800_000_000 // 80%

	fee, err := p.GetEntryFee(c, uint256.NewInt(10_000), uint256.NewInt(200_000))
	if err != nil {
		t.Fatalf("entry fee: %v", err)
	}
	if fee.Uint64() <= 100 {
		t.Fatalf("expected surcharge above base fee 100, got %d", fee.Uint64())
	}
}

func TestGetExitFeeAndLiquidationFee(t *testing.T) {
	p := NewPool("pool-a")
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Fees.ClosePositionFee = 50
	c.Fees.LiquidationFee = 25

	exit, err := p.GetExitFee(c, uint256.NewInt(10_000))
	if err != nil {
		t.Fatalf("exit fee: %v", err)
	}
	if exit.Uint64() != 50 {
		t.Fatalf("expected exit fee 50, got %d", exit.Uint64())
	}

	liq, err := p.GetLiquidationFee(c, uint256.NewInt(10_000))
	if err != nil {
		t.Fatalf("liquidation fee: %v", err)
	}
	if liq.Uint64() != 25 {
		t.Fatalf("expected liquidation fee 25, got %d", liq.Uint64())
	}
}

func TestGetLiquidityActionFeeFixedMode(t *testing.T) {
	p := NewPool("pool-a")
	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Fees.Mode = FeesModeFixed

	fee, err := p.GetLiquidityActionFee(c, 100, uint256.NewInt(10_000), new(uint256.Int), uint256.NewInt(1_000_000), uint256.NewInt(1_010_000), uint256.NewInt(5_000_000))
	if err != nil {
		t.Fatalf("liquidity action fee: %v", err)
	}
	if fee.Uint64() != 100 {
		t.Fatalf("expected fixed fee 100, got %d", fee.Uint64())
	}
}

// TestGetLiquidityActionFeeOptimalModeAddsBaseFee covers SPEC_FULL.md
// section 4.7's Optimal mode: the final fee is base_fee + lp_fee, not
// lp_fee alone (pool.rs get_fee_optimal). At the target ratio, lp_fee
// equals custody.Fees.OptimalFee exactly, so the fee must still include
// the base fee on top.
func TestGetLiquidityActionFeeOptimalModeAddsBaseFee(t *testing.T) {
	p := NewPool("pool-a")
	p.Custodies = []string{"mint-a"}
	p.Ratios = []TokenRatios{{Target: 2_000, Min: 0, Max: 10_000}}

	c := NewCustody("pool-a", "mint-a", 6, false, false)
	c.Fees.Mode = FeesModeOptimal
	c.Fees.OptimalFee = 50
	c.Fees.MaxFee = 200

	baseFeeBps := uint64(100)
	poolAumUsd := uint256.NewInt(5_000_000)
	newCustodyUsd := uint256.NewInt(1_000_000) // ratio exactly at target (20%)

	fee, err := p.GetLiquidityActionFee(c, baseFeeBps, uint256.NewInt(10_000), new(uint256.Int), uint256.NewInt(1_000_000), newCustodyUsd, poolAumUsd)
	if err != nil {
		t.Fatalf("liquidity action fee: %v", err)
	}
	if fee.Uint64() != 150 { // base_fee 100 + lp_fee 50 at target
		t.Fatalf("expected fee 150 (base_fee + lp_fee), got %d", fee.Uint64())
	}
}

func TestCustodyRatioUsdZeroAum(t *testing.T) {
	ratio, err := custodyRatioUsd(uint256.NewInt(100), new(uint256.Int))
	if err != nil {
		t.Fatalf("custody ratio: %v", err)
	}
	if !ratio.IsZero() {
		t.Fatalf("expected zero ratio on zero aum, got %d", ratio.Uint64())
	}
}
