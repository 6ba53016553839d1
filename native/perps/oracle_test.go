package perps

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestOraclePriceGetMinPriceClampsStablecoin(t *testing.T) {
	spot := NewOraclePrice(uint256.NewInt(1_020_000), -UsdDecimals) // $1.02
	ema := NewOraclePrice(uint256.NewInt(1_010_000), -UsdDecimals)  // $1.01

	min, err := spot.GetMinPrice(ema, true)
	if err != nil {
		t.Fatalf("get min price: %v", err)
	}
	if min.Price.Uint64() != oneUsd.Uint64() {
		t.Fatalf("expected stablecoin min clamped to $1, got %d", min.Price.Uint64())
	}
}

func TestOraclePriceGetMaxPriceClampsStablecoin(t *testing.T) {
	spot := NewOraclePrice(uint256.NewInt(980_000), -UsdDecimals) // $0.98
	ema := NewOraclePrice(uint256.NewInt(970_000), -UsdDecimals)  // $0.97

	max, err := spot.GetMaxPrice(ema, true)
	if err != nil {
		t.Fatalf("get max price: %v", err)
	}
	if max.Price.Uint64() != oneUsd.Uint64() {
		t.Fatalf("expected stablecoin max clamped to $1, got %d", max.Price.Uint64())
	}
}

func TestOraclePriceGetMinPriceNonStableUsesLower(t *testing.T) {
	spot := NewOraclePrice(uint256.NewInt(2_100_000), -UsdDecimals)
	ema := NewOraclePrice(uint256.NewInt(2_000_000), -UsdDecimals)

	min, err := spot.GetMinPrice(ema, false)
	if err != nil {
		t.Fatalf("get min price: %v", err)
	}
	if min.Price.Uint64() != 2_000_000 {
		t.Fatalf("expected ema (lower) to win, got %d", min.Price.Uint64())
	}
}

func TestGetAssetAmountUsdAndBack(t *testing.T) {
	price := NewOraclePrice(uint256.NewInt(2_000_000), -PriceDecimals) // $2.00
	amount := uint256.NewInt(5_000_000)                                // 5 tokens at 6 decimals

	usd, err := price.GetAssetAmountUsd(amount, 6)
	if err != nil {
		t.Fatalf("asset amount usd: %v", err)
	}
	if usd.Uint64() != 10_000_000 { // $10.00 at -6
		t.Fatalf("expected 10000000, got %d", usd.Uint64())
	}

	back, err := price.GetTokenAmount(usd, 6)
	if err != nil {
		t.Fatalf("token amount: %v", err)
	}
	if back.Uint64() != amount.Uint64() {
		t.Fatalf("round trip mismatch: expected %d, got %d", amount.Uint64(), back.Uint64())
	}
}

func TestGetTokenAmountZeroPriceFails(t *testing.T) {
	price := NewOraclePrice(new(uint256.Int), -PriceDecimals)
	if _, err := price.GetTokenAmount(uint256.NewInt(1), 6); err != ErrDivideByZero {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}
