package perps

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestCheckedAddOverflow(t *testing.T) {
	max := new(uint256.Int).Not(uint256.NewInt(0))
	if _, err := checkedAdd(max, uint256.NewInt(1)); err != ErrMathOverflow {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestCheckedSubUnderflow(t *testing.T) {
	if _, err := checkedSub(uint256.NewInt(1), uint256.NewInt(2)); err != ErrMathOverflow {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestCheckedDivByZero(t *testing.T) {
	if _, err := checkedDiv(uint256.NewInt(1), uint256.NewInt(0)); err != ErrDivideByZero {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}

func TestCheckedCeilDivRoundsUp(t *testing.T) {
	got, err := checkedCeilDiv(uint256.NewInt(10), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("ceil div: %v", err)
	}
	if got.Uint64() != 4 {
		t.Fatalf("expected 4, got %d", got.Uint64())
	}
}

func TestCheckedCeilDivExact(t *testing.T) {
	got, err := checkedCeilDiv(uint256.NewInt(9), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("ceil div: %v", err)
	}
	if got.Uint64() != 3 {
		t.Fatalf("expected 3, got %d", got.Uint64())
	}
}

func TestScaleToExponentRaising(t *testing.T) {
	// fromExp=-6 (USD) to toExp=-4 (BPS): raising the exponent means
	// dividing by 10^2.
	got, err := scaleToExponent(uint256.NewInt(123_456), -6, -4)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if got.Uint64() != 1234 {
		t.Fatalf("expected 1234, got %d", got.Uint64())
	}
}

func TestCheckedAsU64Overflow(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 65)
	if _, err := checkedAsU64(huge); err != ErrMathOverflow {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestCheckedDecimalCeilMulRoundsAwayFromZero(t *testing.T) {
	// 333 tokens at 1% (100 bps) = 3.33, ceil to 4.
	got, err := checkedDecimalCeilMul(uint256.NewInt(333), 0, uint256.NewInt(100), -BpsDecimals, 0)
	if err != nil {
		t.Fatalf("decimal ceil mul: %v", err)
	}
	if got.Uint64() != 4 {
		t.Fatalf("expected 4, got %d", got.Uint64())
	}
}

func TestSatSubSaturatesAtZero(t *testing.T) {
	got := satSub(uint256.NewInt(5), uint256.NewInt(10))
	if !got.IsZero() {
		t.Fatalf("expected zero, got %d", got.Uint64())
	}
}
