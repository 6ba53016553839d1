package perps

import (
	"github.com/holiman/uint256"
)

// Fixed-point decimal scales used throughout the engine.
const (
	BpsDecimals   = 4
	PriceDecimals = 6
	UsdDecimals   = 6
	RateDecimals  = 9
)

var (
	bpsPower  = uint256.NewInt(10_000)
	ratePower = uint256.NewInt(1_000_000_000)

	// maxUint128 bounds quantities (cumulative interest, weighted price,
	// total quantity) that must fit in 128 bits even though they are carried
	// in a 256-bit accumulator.
	maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// checkedAdd returns a+b, failing with ErrMathOverflow on overflow.
func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	result := new(uint256.Int)
	if _, overflow := result.AddOverflow(a, b); overflow {
		return nil, ErrMathOverflow
	}
	return result, nil
}

// checkedSub returns a-b, failing with ErrMathOverflow on underflow.
func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	result := new(uint256.Int)
	if _, overflow := result.SubOverflow(a, b); overflow {
		return nil, ErrMathOverflow
	}
	return result, nil
}

// checkedMul returns a*b, failing with ErrMathOverflow on overflow.
func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	result := new(uint256.Int)
	if _, overflow := result.MulOverflow(a, b); overflow {
		return nil, ErrMathOverflow
	}
	return result, nil
}

// checkedDiv returns a/b, floored, failing with ErrDivideByZero when b is zero.
func checkedDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// checkedCeilDiv returns ceil(a/b), failing with ErrDivideByZero when b is zero.
func checkedCeilDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	quo, rem := new(uint256.Int), new(uint256.Int)
	quo.DivMod(a, b, rem)
	if !rem.IsZero() {
		var err error
		quo, err = checkedAdd(quo, uint256.NewInt(1))
		if err != nil {
			return nil, err
		}
	}
	return quo, nil
}

// checkedAsU64 downcasts value, failing with ErrMathOverflow when it does
// not fit in 64 bits.
func checkedAsU64(value *uint256.Int) (uint64, error) {
	if !value.IsUint64() {
		return 0, ErrMathOverflow
	}
	return value.Uint64(), nil
}

// checkedAsU128 verifies value fits below 2^128, used for the wide
// accumulators (cumulative interest, weighted price, total quantity) that
// the engine still bounds even though it carries them in 256-bit words.
func checkedAsU128(value *uint256.Int) (*uint256.Int, error) {
	if value.Gt(maxUint128) {
		return nil, ErrMathOverflow
	}
	return value, nil
}

// pow10 returns 10^n as a uint256, failing with ErrMathOverflow if it would
// not fit (n is always a small decimal-exponent delta in practice).
func pow10(n int) (*uint256.Int, error) {
	if n < 0 {
		return nil, ErrMathOverflow
	}
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	var err error
	for i := 0; i < n; i++ {
		result, err = checkedMul(result, ten)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// scaleToExponent rescales value from decimal exponent fromExp to toExp.
// Lowering the exponent (fromExp > toExp) multiplies; raising it divides
// (truncating, per the kernel's default rounding).
func scaleToExponent(value *uint256.Int, fromExp, toExp int) (*uint256.Int, error) {
	if fromExp == toExp {
		return new(uint256.Int).Set(value), nil
	}
	if fromExp > toExp {
		factor, err := pow10(fromExp - toExp)
		if err != nil {
			return nil, err
		}
		return checkedMul(value, factor)
	}
	factor, err := pow10(toExp - fromExp)
	if err != nil {
		return nil, err
	}
	return checkedDiv(value, factor)
}

// checkedDecimalMul computes floor((a*b) rescaled to resultExp) given a is
// expressed at aExp and b at bExp.
func checkedDecimalMul(a *uint256.Int, aExp int, b *uint256.Int, bExp int, resultExp int) (*uint256.Int, error) {
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	return scaleToExponent(product, aExp+bExp, resultExp)
}

// checkedDecimalCeilMul is checkedDecimalMul rounding away from zero,
// used for fee computations where the protocol must never under-charge.
func checkedDecimalCeilMul(a *uint256.Int, aExp int, b *uint256.Int, bExp int, resultExp int) (*uint256.Int, error) {
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	combinedExp := aExp + bExp
	if combinedExp > resultExp {
		// Lowering the exponent is an exact multiply, per scaleToExponent:
		// no digits are discarded, so there is nothing to round.
		return scaleToExponent(product, combinedExp, resultExp)
	}
	// Raising the exponent discards digits; round away from zero instead of
	// truncating so fee computations never undercharge.
	factor, err := pow10(resultExp - combinedExp)
	if err != nil {
		return nil, err
	}
	return checkedCeilDiv(product, factor)
}

func minU256(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

func maxU256(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// satSub returns a-b, saturating at zero instead of erroring. Used for the
// handful of stat/unlock paths the design notes call out as intentionally
// non-failing (see SPEC_FULL.md section 9).
func satSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}
