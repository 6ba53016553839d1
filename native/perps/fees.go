package perps

import "github.com/holiman/uint256"

// GetEntryFee computes the open-position fee: base_fee on size, surcharged
// once the post-trade utilization passes the custody's kink
// (SPEC_FULL.md section 4.7).
func (p *Pool) GetEntryFee(custody *Custody, size, newLock *uint256.Int) (*uint256.Int, error) {
	fee, err := checkedDecimalCeilMul(size, 0, uint256.NewInt(custody.Fees.OpenPositionFee), -BpsDecimals, 0)
	if err != nil {
		return nil, err
	}

	lockedAfter, err := checkedAdd(custody.Assets.Locked, newLock)
	if err != nil {
		return nil, err
	}
	if custody.Assets.Owned.IsZero() {
		return fee, nil
	}
	utilization, err := checkedDiv(new(uint256.Int).Mul(lockedAfter, ratePower), custody.Assets.Owned)
	if err != nil {
		return nil, err
	}
	optimal := uint256.NewInt(custody.BorrowRate.OptimalUtilization)
	if utilization.Cmp(optimal) <= 0 || optimal.Cmp(ratePower) >= 0 {
		return fee, nil
	}
	excess, err := checkedSub(utilization, optimal)
	if err != nil {
		return nil, err
	}
	denom, err := checkedSub(ratePower, optimal)
	if err != nil {
		return nil, err
	}
	if denom.IsZero() {
		return fee, nil
	}
	mult := uint256.NewInt(custody.Fees.UtilizationMult)
	surcharge, err := checkedMul(excess, mult)
	if err != nil {
		return nil, err
	}
	surcharge, err = checkedDiv(surcharge, denom)
	if err != nil {
		return nil, err
	}
	bonus, err := checkedMul(fee, surcharge)
	if err != nil {
		return nil, err
	}
	bonus, err = checkedDiv(bonus, bpsPower)
	if err != nil {
		return nil, err
	}
	return checkedAdd(fee, bonus)
}

// GetExitFee computes the close-position fee on size.
func (p *Pool) GetExitFee(custody *Custody, size *uint256.Int) (*uint256.Int, error) {
	return checkedDecimalCeilMul(size, 0, uint256.NewInt(custody.Fees.ClosePositionFee), -BpsDecimals, 0)
}

// GetLiquidationFee computes the liquidation-mode exit fee on size.
func (p *Pool) GetLiquidationFee(custody *Custody, size *uint256.Int) (*uint256.Int, error) {
	return checkedDecimalCeilMul(size, 0, uint256.NewInt(custody.Fees.LiquidationFee), -BpsDecimals, 0)
}

// custodyRatioUsd returns this custody's share of USD value relative to the
// current pool AUM, needed by the Linear/Optimal fee modes.
func custodyRatioUsd(custodyUsd, poolAumUsd *uint256.Int) (*uint256.Int, error) {
	if poolAumUsd.IsZero() {
		return new(uint256.Int), nil
	}
	ratio, err := checkedMul(custodyUsd, bpsPower)
	if err != nil {
		return nil, err
	}
	return checkedDiv(ratio, poolAumUsd)
}

// GetLiquidityActionFee applies the custody's configured FeesMode to an
// add/remove liquidity-style action moving custodyUsd to newCustodyUsd
// against an unchanged poolAumUsd (SPEC_FULL.md section 4.7).
func (p *Pool) GetLiquidityActionFee(custody *Custody, baseFeeBps uint64, amountAdd, amountRemove, custodyUsd, newCustodyUsd, poolAumUsd *uint256.Int) (*uint256.Int, error) {
	larger := amountAdd
	if amountRemove.Gt(larger) {
		larger = amountRemove
	}
	baseFee := uint256.NewInt(baseFeeBps)

	switch custody.Fees.Mode {
	case FeesModeFixed:
		return checkedDecimalCeilMul(larger, 0, baseFee, -BpsDecimals, 0)
	case FeesModeLinear:
		return p.linearFee(custody, baseFee, larger, custodyUsd, newCustodyUsd, poolAumUsd)
	default:
		return p.optimalFee(custody, baseFeeBps, larger, newCustodyUsd, poolAumUsd)
	}
}

func (p *Pool) linearFee(custody *Custody, baseFee, amount, custodyUsd, newCustodyUsd, poolAumUsd *uint256.Int) (*uint256.Int, error) {
	currentRatio, err := custodyRatioUsd(custodyUsd, poolAumUsd)
	if err != nil {
		return nil, err
	}
	newRatio, err := custodyRatioUsd(newCustodyUsd, poolAumUsd)
	if err != nil {
		return nil, err
	}

	idx := custodyIndex(p, custody.Mint)
	if idx < 0 {
		return nil, ErrUnsupportedToken
	}
	target := uint256.NewInt(p.Ratios[idx].Target)

	var deviation, span *uint256.Int
	toward := false
	if newRatio.Gt(target) {
		deviation, err = checkedSub(newRatio, target)
		if err != nil {
			return nil, err
		}
		span, err = checkedSub(uint256.NewInt(p.Ratios[idx].Max), target)
		if err != nil {
			return nil, err
		}
		toward = newRatio.Lt(currentRatio)
	} else {
		deviation, err = checkedSub(target, newRatio)
		if err != nil {
			return nil, err
		}
		span, err = checkedSub(target, uint256.NewInt(p.Ratios[idx].Min))
		if err != nil {
			return nil, err
		}
		toward = newRatio.Gt(currentRatio) || (newRatio.Lt(target) && currentRatio.Gt(target) && deviation.Lt(new(uint256.Int).Sub(currentRatio, target)))
	}

	ratioMult := uint256.NewInt(custody.Fees.RatioMult)
	var extra *uint256.Int
	if span.IsZero() {
		extra = new(uint256.Int)
	} else {
		extra, err = checkedMul(ratioMult, deviation)
		if err != nil {
			return nil, err
		}
		extra, err = checkedDiv(extra, span)
		if err != nil {
			return nil, err
		}
	}
	ratioFeeMult, err := checkedAdd(bpsPower, extra)
	if err != nil {
		return nil, err
	}

	var effectiveBps *uint256.Int
	if toward {
		effectiveBps, err = checkedDiv(new(uint256.Int).Mul(baseFee, bpsPower), ratioFeeMult)
		if err != nil {
			return nil, err
		}
	} else {
		effectiveBps, err = checkedMul(baseFee, ratioFeeMult)
		if err != nil {
			return nil, err
		}
		effectiveBps, err = checkedDiv(effectiveBps, bpsPower)
		if err != nil {
			return nil, err
		}
	}
	return checkedDecimalCeilMul(amount, 0, effectiveBps, -BpsDecimals, 0)
}

// optimalFee computes the Optimal-mode fee as base_fee + lp_fee, where
// lp_fee is interpolated linearly across the custody's target/min/max
// ratio band (pool.rs get_fee_optimal; SPEC_FULL.md section 4.7).
func (p *Pool) optimalFee(custody *Custody, baseFeeBps uint64, amount, newCustodyUsd, poolAumUsd *uint256.Int) (*uint256.Int, error) {
	idx := custodyIndex(p, custody.Mint)
	if idx < 0 {
		return nil, ErrUnsupportedToken
	}
	ratios := p.Ratios[idx]
	newRatio, err := custodyRatioUsd(newCustodyUsd, poolAumUsd)
	if err != nil {
		return nil, err
	}
	if newRatio.Lt(uint256.NewInt(ratios.Min)) || newRatio.Gt(uint256.NewInt(ratios.Max)) {
		return nil, ErrTokenRatioOutOfRange
	}

	target := int64(ratios.Target)
	postRatio := int64(0)
	if newRatio.IsUint64() {
		postRatio = int64(newRatio.Uint64())
	}
	slopeDen := int64(ratios.Max - ratios.Min)
	if slopeDen == 0 {
		slopeDen = 1
	}
	slopeNum := int64(custody.Fees.MaxFee) - int64(custody.Fees.OptimalFee)

	lpFee := (slopeNum*postRatio + int64(custody.Fees.OptimalFee)*slopeDen - target*slopeNum) / slopeDen
	totalBps := lpFee + int64(baseFeeBps)
	if totalBps < 0 {
		totalBps = 0
	}
	return checkedDecimalCeilMul(amount, 0, uint256.NewInt(uint64(totalBps)), -BpsDecimals, 0)
}

func custodyIndex(p *Pool, mint string) int {
	for i, m := range p.Custodies {
		if m == mint {
			return i
		}
	}
	return -1
}
