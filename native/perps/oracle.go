package perps

import "github.com/holiman/uint256"

// OraclePrice is a normalized (price, exponent) pair as read from the
// external oracle collaborator (see SPEC_FULL.md section 6). The core never
// fetches or validates staleness itself; it only compares and rescales
// values it is handed.
type OraclePrice struct {
	Price    *uint256.Int
	Exponent int32
}

// NewOraclePrice constructs an OraclePrice, defaulting a nil Price to zero
// so callers never need a nil check before comparing.
func NewOraclePrice(price *uint256.Int, exponent int32) OraclePrice {
	if price == nil {
		price = new(uint256.Int)
	}
	return OraclePrice{Price: price, Exponent: exponent}
}

// normalized rescales the price to exponent -UsdDecimals so two prices with
// different exponents can be compared directly.
func (p OraclePrice) normalized() (*uint256.Int, error) {
	return scaleToExponent(p.Price, int(p.Exponent), -UsdDecimals)
}

// less reports whether p < other once both are rescaled to a common exponent.
func (p OraclePrice) less(other OraclePrice) (bool, error) {
	a, err := p.normalized()
	if err != nil {
		return false, err
	}
	b, err := other.normalized()
	if err != nil {
		return false, err
	}
	return a.Lt(b), nil
}

// min returns the smaller of p and other, normalized to -UsdDecimals.
func (p OraclePrice) min(other OraclePrice) (OraclePrice, error) {
	lt, err := p.less(other)
	if err != nil {
		return OraclePrice{}, err
	}
	if lt {
		a, err := p.normalized()
		if err != nil {
			return OraclePrice{}, err
		}
		return OraclePrice{Price: a, Exponent: -UsdDecimals}, nil
	}
	b, err := other.normalized()
	if err != nil {
		return OraclePrice{}, err
	}
	return OraclePrice{Price: b, Exponent: -UsdDecimals}, nil
}

// max returns the larger of p and other, normalized to -UsdDecimals.
func (p OraclePrice) max(other OraclePrice) (OraclePrice, error) {
	lt, err := p.less(other)
	if err != nil {
		return OraclePrice{}, err
	}
	if lt {
		b, err := other.normalized()
		if err != nil {
			return OraclePrice{}, err
		}
		return OraclePrice{Price: b, Exponent: -UsdDecimals}, nil
	}
	a, err := p.normalized()
	if err != nil {
		return OraclePrice{}, err
	}
	return OraclePrice{Price: a, Exponent: -UsdDecimals}, nil
}

// oneUsd is 1.00 expressed at -UsdDecimals, used to clamp stablecoin prices.
var oneUsd = func() *uint256.Int {
	p, err := pow10(UsdDecimals)
	if err != nil {
		panic(err)
	}
	return p
}()

// GetMinPrice returns the smaller of p and ema, clamped to $1.00 when
// isStable is true and the selected minimum exceeds that anchor.
func (p OraclePrice) GetMinPrice(ema OraclePrice, isStable bool) (OraclePrice, error) {
	min, err := p.min(ema)
	if err != nil {
		return OraclePrice{}, err
	}
	if isStable && min.Price.Gt(oneUsd) {
		return OraclePrice{Price: new(uint256.Int).Set(oneUsd), Exponent: -UsdDecimals}, nil
	}
	return min, nil
}

// GetMaxPrice returns the larger of p and ema, clamped to $1.00 when
// isStable is true and the selected maximum is below that anchor (on the max
// side a stable is never valued at less than a dollar).
func (p OraclePrice) GetMaxPrice(ema OraclePrice, isStable bool) (OraclePrice, error) {
	max, err := p.max(ema)
	if err != nil {
		return OraclePrice{}, err
	}
	if isStable && max.Price.Lt(oneUsd) {
		return OraclePrice{Price: new(uint256.Int).Set(oneUsd), Exponent: -UsdDecimals}, nil
	}
	return max, nil
}

// GetAssetAmountUsd converts a token amount (at the given decimals) into a
// USD value at -UsdDecimals.
func (p OraclePrice) GetAssetAmountUsd(amount *uint256.Int, decimals uint32) (*uint256.Int, error) {
	return checkedDecimalMul(p.Price, int(p.Exponent), amount, -int(decimals), -UsdDecimals)
}

// GetTokenAmount is the inverse of GetAssetAmountUsd: converts a USD value
// at -UsdDecimals into a token amount at the given decimals, truncating
// toward zero.
func (p OraclePrice) GetTokenAmount(usd *uint256.Int, decimals uint32) (*uint256.Int, error) {
	if p.Price.IsZero() {
		return nil, ErrDivideByZero
	}
	usdAtPriceExp, err := scaleToExponent(usd, -UsdDecimals, int(p.Exponent)-int(decimals))
	if err != nil {
		return nil, err
	}
	return checkedDiv(usdAtPriceExp, p.Price)
}
