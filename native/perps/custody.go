package perps

import "github.com/holiman/uint256"

const secondsPerHour = 3600

// GetCumulativeInterest returns the custody's cumulative interest
// accumulator projected forward to curtime, without mutating state. The
// ceiling rounding favors the pool (SPEC_FULL.md section 4.3).
func (c *Custody) GetCumulativeInterest(curtime int64) (*uint256.Int, error) {
	if curtime <= c.BorrowRateState.LastUpdate {
		return new(uint256.Int).Set(c.BorrowRateState.CumulativeInterest), nil
	}
	elapsed := uint256.NewInt(uint64(curtime - c.BorrowRateState.LastUpdate))
	accrued, err := checkedMul(elapsed, c.BorrowRateState.CurrentRate)
	if err != nil {
		return nil, err
	}
	accrued, err = checkedCeilDiv(accrued, uint256.NewInt(secondsPerHour))
	if err != nil {
		return nil, err
	}
	return checkedAdd(c.BorrowRateState.CumulativeInterest, accrued)
}

// UpdateBorrowRate folds accrued interest into the cumulative accumulator at
// the custody's existing rate, advances last_update to curtime, and
// recomputes current_rate from the kinked two-slope curve
// (SPEC_FULL.md section 4.3). Order matters: interest accrues at the old
// rate before the rate itself changes.
func (c *Custody) UpdateBorrowRate(curtime int64) error {
	if c.Assets.Owned.IsZero() {
		c.BorrowRateState.CurrentRate = new(uint256.Int)
		if curtime > c.BorrowRateState.LastUpdate {
			c.BorrowRateState.LastUpdate = curtime
		}
		return nil
	}

	if curtime > c.BorrowRateState.LastUpdate {
		accrued, err := c.GetCumulativeInterest(curtime)
		if err != nil {
			return err
		}
		accrued, err = checkedAsU128(accrued)
		if err != nil {
			return err
		}
		c.BorrowRateState.CumulativeInterest = accrued
		c.BorrowRateState.LastUpdate = curtime
	}

	utilization, err := checkedDiv(new(uint256.Int).Mul(c.Assets.Locked, ratePower), c.Assets.Owned)
	if err != nil {
		return err
	}
	if utilization.Gt(ratePower) {
		utilization = new(uint256.Int).Set(ratePower)
	}

	optimal := uint256.NewInt(c.BorrowRate.OptimalUtilization)
	slope1 := uint256.NewInt(c.BorrowRate.Slope1)
	slope2 := uint256.NewInt(c.BorrowRate.Slope2)

	var hourly *uint256.Int
	if utilization.Lt(optimal) || optimal.Cmp(ratePower) >= 0 {
		num, err := checkedMul(utilization, slope1)
		if err != nil {
			return err
		}
		hourly, err = checkedDiv(num, optimal)
		if err != nil {
			return err
		}
	} else {
		excess, err := checkedSub(utilization, optimal)
		if err != nil {
			return err
		}
		denom, err := checkedSub(ratePower, optimal)
		if err != nil {
			return err
		}
		var extra *uint256.Int
		if denom.IsZero() {
			extra = new(uint256.Int)
		} else {
			num, err := checkedMul(excess, slope2)
			if err != nil {
				return err
			}
			extra, err = checkedDiv(num, denom)
			if err != nil {
				return err
			}
		}
		hourly, err = checkedAdd(slope1, extra)
		if err != nil {
			return err
		}
	}

	rate, err := checkedAdd(hourly, uint256.NewInt(c.BorrowRate.BaseRate))
	if err != nil {
		return err
	}
	c.BorrowRateState.CurrentRate = rate
	return nil
}

// GetInterestAmountUsd returns the interest owed on position since it last
// synced its cumulative-interest snapshot (SPEC_FULL.md section 4.3).
func (c *Custody) GetInterestAmountUsd(position *Position, curtime int64) (*uint256.Int, error) {
	if position.BorrowSizeUsd.IsZero() || c.IsVirtual {
		return new(uint256.Int), nil
	}
	current, err := c.GetCumulativeInterest(curtime)
	if err != nil {
		return nil, err
	}
	if current.Lt(position.CumulativeInterestSnapshot) {
		return new(uint256.Int), nil
	}
	delta, err := checkedSub(current, position.CumulativeInterestSnapshot)
	if err != nil {
		return nil, err
	}
	owed, err := checkedMul(delta, position.BorrowSizeUsd)
	if err != nil {
		return nil, err
	}
	return checkedDiv(owed, ratePower)
}

// LockFunds reserves amount tokens against the custody's owned balance.
// Fails with ErrInvalidArgument on virtual custodies, ErrInsufficientFunds
// if locked would exceed owned, and ErrMaxUtilization if the configured
// utilization cap is breached (SPEC_FULL.md section 4.4).
func (c *Custody) LockFunds(amount *uint256.Int) error {
	if c.IsVirtual {
		return ErrInvalidArgument
	}
	locked, err := checkedAdd(c.Assets.Locked, amount)
	if err != nil {
		return err
	}
	if c.Assets.Owned.Lt(locked) {
		return ErrInsufficientFunds
	}
	if c.Pricing.MaxUtilization > 0 && c.Pricing.MaxUtilization < uint64(10_000) {
		utilization, err := checkedDiv(new(uint256.Int).Mul(locked, bpsPower), c.Assets.Owned)
		if err != nil {
			return err
		}
		if utilization.Gt(uint256.NewInt(c.Pricing.MaxUtilization)) {
			return ErrMaxUtilization
		}
	}
	c.Assets.Locked = locked
	return nil
}

// UnlockFunds releases amount tokens, saturating at zero rather than
// erroring — the one intentional non-failing path named in
// SPEC_FULL.md section 7 (a close-path rollback must not itself fail).
func (c *Custody) UnlockFunds(amount *uint256.Int) error {
	if c.IsVirtual {
		return ErrInvalidArgument
	}
	c.Assets.Locked = satSub(c.Assets.Locked, amount)
	return nil
}

// GetLockedAmount computes the pool-side reserve guaranteeing the capped
// trader payoff for a position of the given size and side
// (SPEC_FULL.md section 4.4).
func (c *Custody) GetLockedAmount(size *uint256.Int, side Side) (*uint256.Int, error) {
	mult := c.Pricing.MaxPayoffMult
	if side == SideShort && mult > 10_000 {
		mult = 10_000
	}
	locked, err := checkedMul(size, uint256.NewInt(mult))
	if err != nil {
		return nil, err
	}
	return checkedDiv(locked, bpsPower)
}

// AddPosition folds the newly-opened position into the custody's aggregate
// side statistics (SPEC_FULL.md section 4.5). collateralCustody is nil for
// same-custody positions, where this custody's stats take the full update
// (size/locked/weighted-price/quantity plus borrow-size and interest).
//
// When collateralCustody is non-nil (the cross-collateral short path), this
// custody's own stats take only open_positions/size/locked/weighted-price/
// quantity; borrow
// size and interest tracking are never folded in here. Instead
// collateralCustody's own side stats get a narrow update of exactly
// open_positions, borrow_size_usd, and cumulative_interest_usd/snapshot —
// mirroring the distinct collateral-custody block in the original source
// (custody.rs AddPosition), which never gives the collateral custody a
// size_usd/locked_amount/weighted_price/total_quantity contribution.
func (c *Custody) AddPosition(position *Position, tokenPrice OraclePrice, curtime int64, collateralCustody *Custody) error {
	stats := c.positionStats(position.Side)

	interest, err := c.GetInterestAmountUsd(&Position{
		BorrowSizeUsd:              stats.BorrowSizeUsd,
		CumulativeInterestSnapshot: stats.CumulativeInterestSnapshot,
	}, curtime)
	if err != nil {
		return err
	}

	stats.OpenPositions++
	stats.SizeUsd, err = checkedAdd(stats.SizeUsd, position.SizeUsd)
	if err != nil {
		return err
	}
	stats.LockedAmount, err = checkedAdd(stats.LockedAmount, position.LockedAmount)
	if err != nil {
		return err
	}

	if collateralCustody == nil {
		stats.CumulativeInterestUsd, err = checkedAdd(stats.CumulativeInterestUsd, interest)
		if err != nil {
			return err
		}
		stats.CumulativeInterestSnapshot = new(uint256.Int).Set(position.CumulativeInterestSnapshot)
		stats.BorrowSizeUsd, err = checkedAdd(stats.BorrowSizeUsd, position.BorrowSizeUsd)
		if err != nil {
			return err
		}
	}

	positionPriceUsd, err := scaleToExponent(position.EntryPrice, -PriceDecimals, -UsdDecimals)
	if err != nil {
		return err
	}
	if !positionPriceUsd.IsZero() {
		quantity, err := checkedDiv(new(uint256.Int).Mul(position.SizeUsd, bpsPower), positionPriceUsd)
		if err != nil {
			return err
		}
		weighted, err := checkedMul(position.EntryPrice, quantity)
		if err != nil {
			return err
		}
		stats.WeightedPrice, err = checkedAdd(stats.WeightedPrice, weighted)
		if err != nil {
			return err
		}
		stats.WeightedPrice, err = checkedAsU128(stats.WeightedPrice)
		if err != nil {
			return err
		}
		stats.TotalQuantity, err = checkedAdd(stats.TotalQuantity, quantity)
		if err != nil {
			return err
		}
	}

	lockedUsd, err := tokenPrice.GetAssetAmountUsd(stats.LockedAmount, c.Decimals)
	if err != nil {
		return err
	}
	if c.Pricing.MaxPositionLockedUsd != nil && !c.Pricing.MaxPositionLockedUsd.IsZero() {
		positionLockedUsd, err := tokenPrice.GetAssetAmountUsd(position.LockedAmount, c.Decimals)
		if err != nil {
			return err
		}
		if positionLockedUsd.Gt(c.Pricing.MaxPositionLockedUsd) {
			return ErrPositionAmountLimit
		}
	}
	if c.Pricing.MaxTotalLockedUsd != nil && !c.Pricing.MaxTotalLockedUsd.IsZero() {
		if lockedUsd.Gt(c.Pricing.MaxTotalLockedUsd) {
			return ErrCustodyAmountLimit
		}
	}

	if collateralCustody == nil {
		return nil
	}

	cstats := collateralCustody.positionStats(position.Side)
	cInterest, err := collateralCustody.GetInterestAmountUsd(&Position{
		BorrowSizeUsd:              cstats.BorrowSizeUsd,
		CumulativeInterestSnapshot: cstats.CumulativeInterestSnapshot,
	}, curtime)
	if err != nil {
		return err
	}
	cstats.CumulativeInterestUsd, err = checkedAdd(cstats.CumulativeInterestUsd, cInterest)
	if err != nil {
		return err
	}
	cstats.CumulativeInterestSnapshot = new(uint256.Int).Set(position.CumulativeInterestSnapshot)
	cstats.OpenPositions++
	cstats.BorrowSizeUsd, err = checkedAdd(cstats.BorrowSizeUsd, position.BorrowSizeUsd)
	if err != nil {
		return err
	}
	return nil
}

// RemovePosition reverses AddPosition. Per SPEC_FULL.md section 4.5, when
// this was the last open position on a side, that side's aggregate is reset
// to zero outright rather than subtracted, avoiding drift in the weighted
// average from accumulated rounding. collateralCustody mirrors AddPosition:
// nil for same-custody positions, or the distinct collateral custody whose
// narrow open_positions/borrow_size_usd/interest stats must also unwind
// (custody.rs RemovePosition).
func (c *Custody) RemovePosition(position *Position, curtime int64, collateralCustody *Custody) error {
	stats := c.positionStats(position.Side)

	if stats.OpenPositions <= 1 {
		*stats = newPositionStats()
		if collateralCustody == nil {
			return nil
		}
		// The collateral custody's side stats only ever hold the narrow
		// open_positions/borrow_size_usd/interest contribution, so the
		// same-custody unwind applies to them unchanged.
		return collateralCustody.RemovePosition(position, curtime, nil)
	}

	if collateralCustody == nil {
		interest, err := c.GetInterestAmountUsd(&Position{
			BorrowSizeUsd:              stats.BorrowSizeUsd,
			CumulativeInterestSnapshot: stats.CumulativeInterestSnapshot,
		}, curtime)
		if err != nil {
			return err
		}
		positionInterest, err := c.GetInterestAmountUsd(position, curtime)
		if err != nil {
			return err
		}
		cumulative, err := c.GetCumulativeInterest(curtime)
		if err != nil {
			return err
		}
		stats.CumulativeInterestUsd, err = checkedAdd(stats.CumulativeInterestUsd, interest)
		if err != nil {
			return err
		}
		stats.CumulativeInterestUsd = satSub(stats.CumulativeInterestUsd, positionInterest)
		stats.CumulativeInterestSnapshot = cumulative
		stats.BorrowSizeUsd = satSub(stats.BorrowSizeUsd, position.BorrowSizeUsd)
	}

	stats.OpenPositions--
	stats.SizeUsd = satSub(stats.SizeUsd, position.SizeUsd)
	stats.LockedAmount = satSub(stats.LockedAmount, position.LockedAmount)

	positionPriceUsd, err := scaleToExponent(position.EntryPrice, -PriceDecimals, -UsdDecimals)
	if err != nil {
		return err
	}
	if !positionPriceUsd.IsZero() {
		quantity, err := checkedDiv(new(uint256.Int).Mul(position.SizeUsd, bpsPower), positionPriceUsd)
		if err != nil {
			return err
		}
		weighted, err := checkedMul(position.EntryPrice, quantity)
		if err != nil {
			return err
		}
		stats.WeightedPrice = satSub(stats.WeightedPrice, weighted)
		stats.TotalQuantity = satSub(stats.TotalQuantity, quantity)
	}

	if collateralCustody == nil {
		return nil
	}

	cstats := collateralCustody.positionStats(position.Side)
	if cstats.OpenPositions <= 1 {
		*cstats = newPositionStats()
		return nil
	}

	cInterest, err := collateralCustody.GetInterestAmountUsd(&Position{
		BorrowSizeUsd:              cstats.BorrowSizeUsd,
		CumulativeInterestSnapshot: cstats.CumulativeInterestSnapshot,
	}, curtime)
	if err != nil {
		return err
	}
	cPositionInterest, err := collateralCustody.GetInterestAmountUsd(position, curtime)
	if err != nil {
		return err
	}
	cCumulative, err := collateralCustody.GetCumulativeInterest(curtime)
	if err != nil {
		return err
	}
	cstats.CumulativeInterestUsd, err = checkedAdd(cstats.CumulativeInterestUsd, cInterest)
	if err != nil {
		return err
	}
	cstats.CumulativeInterestUsd = satSub(cstats.CumulativeInterestUsd, cPositionInterest)
	cstats.CumulativeInterestSnapshot = cCumulative
	cstats.OpenPositions--
	cstats.BorrowSizeUsd = satSub(cstats.BorrowSizeUsd, position.BorrowSizeUsd)
	return nil
}

// GetCollectivePosition synthesizes a virtual Position representing every
// open position on one side of this custody (SPEC_FULL.md section 4.5).
func (c *Custody) GetCollectivePosition(side Side) (*Position, error) {
	stats := c.positionStats(side)
	price := new(uint256.Int)
	if !stats.TotalQuantity.IsZero() {
		var err error
		price, err = checkedDiv(stats.WeightedPrice, stats.TotalQuantity)
		if err != nil {
			return nil, err
		}
	}
	return &Position{
		Pool:                       c.Pool,
		Custody:                    c.Mint,
		Side:                       side,
		EntryPrice:                 price,
		SizeUsd:                    new(uint256.Int).Set(stats.SizeUsd),
		BorrowSizeUsd:              new(uint256.Int).Set(stats.BorrowSizeUsd),
		LockedAmount:               new(uint256.Int).Set(stats.LockedAmount),
		CumulativeInterestSnapshot: new(uint256.Int).Set(stats.CumulativeInterestSnapshot),
		UnrealizedProfitUsd:        new(uint256.Int),
		UnrealizedLossUsd:          new(uint256.Int),
		CollateralUsd:              new(uint256.Int),
		CollateralAmount:           new(uint256.Int),
	}, nil
}
