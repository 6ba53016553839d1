package perps

import "github.com/holiman/uint256"

// GetPrice applies a directional spread to the conservative side of the two
// oracle readings: longs quote the ask (max price, widened), shorts quote
// the bid (min price, narrowed) (SPEC_FULL.md section 4.6).
func (p *Pool) GetPrice(tokenPrice, tokenEmaPrice OraclePrice, side Side, spreadBps uint64) (*uint256.Int, error) {
	switch side {
	case SideLong:
		maxPrice, err := tokenPrice.max(tokenEmaPrice)
		if err != nil {
			return nil, err
		}
		spreadAmount, err := checkedDecimalCeilMul(maxPrice.Price, 0, uint256.NewInt(spreadBps), -BpsDecimals, 0)
		if err != nil {
			return nil, err
		}
		return checkedAdd(maxPrice.Price, spreadAmount)
	case SideShort:
		minPrice, err := tokenPrice.min(tokenEmaPrice)
		if err != nil {
			return nil, err
		}
		spreadAmount, err := checkedDecimalMul(minPrice.Price, 0, uint256.NewInt(spreadBps), -BpsDecimals, 0)
		if err != nil {
			return nil, err
		}
		if spreadAmount.Gt(minPrice.Price) {
			return new(uint256.Int), nil
		}
		return checkedSub(minPrice.Price, spreadAmount)
	default:
		return nil, ErrInvalidArgument
	}
}

// GetEntryPrice computes the price a trader opens at, rescaled to
// PriceDecimals. Must be strictly positive.
func (p *Pool) GetEntryPrice(tokenPrice, tokenEmaPrice OraclePrice, side Side, custody *Custody) (*uint256.Int, error) {
	spread := custody.Pricing.TradeSpreadLong
	if side == SideShort {
		spread = custody.Pricing.TradeSpreadShort
	}
	price, err := p.GetPrice(tokenPrice, tokenEmaPrice, side, spread)
	if err != nil {
		return nil, err
	}
	price, err = scaleToExponent(price, -UsdDecimals, -PriceDecimals)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, ErrInvalidArgument
	}
	return price, nil
}

// GetExitPrice computes the price a trader closes at: the opposite side's
// spread from entry (closing a long quotes the bid, closing a short quotes
// the ask).
func (p *Pool) GetExitPrice(tokenPrice, tokenEmaPrice OraclePrice, side Side, custody *Custody) (*uint256.Int, error) {
	closingSide := SideShort
	spread := custody.Pricing.TradeSpreadShort
	if side == SideShort {
		closingSide = SideLong
		spread = custody.Pricing.TradeSpreadLong
	}
	price, err := p.GetPrice(tokenPrice, tokenEmaPrice, closingSide, spread)
	if err != nil {
		return nil, err
	}
	price, err = scaleToExponent(price, -UsdDecimals, -PriceDecimals)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, ErrInvalidArgument
	}
	return price, nil
}

// CheckEntrySlippage enforces the open-position price bound: longs require
// the quoted entry price to not exceed the trader's bound, shorts require
// the opposite (SPEC_FULL.md section 4.6).
func CheckEntrySlippage(side Side, entryPrice, priceBound *uint256.Int) error {
	switch side {
	case SideLong:
		if priceBound.Lt(entryPrice) {
			return ErrMaxPriceSlippage
		}
	case SideShort:
		if priceBound.Gt(entryPrice) {
			return ErrMaxPriceSlippage
		}
	default:
		return ErrInvalidArgument
	}
	return nil
}

// CheckExitSlippage enforces the close-position price bound, the mirror of
// CheckEntrySlippage.
func CheckExitSlippage(side Side, exitPrice, priceBound *uint256.Int) error {
	switch side {
	case SideLong:
		if priceBound.Gt(exitPrice) {
			return ErrMaxPriceSlippage
		}
	case SideShort:
		if priceBound.Lt(exitPrice) {
			return ErrMaxPriceSlippage
		}
	default:
		return ErrInvalidArgument
	}
	return nil
}

// GetLeverage returns size_usd / current_margin_usd in BPS, or math.MaxU64
// equivalent (2^64-1) when margin is zero (SPEC_FULL.md section 4.8).
func (p *Pool) GetLeverage(sizeUsd, collateralUsd, profitUsd, lossUsd *uint256.Int) (*uint256.Int, error) {
	margin, err := checkedAdd(collateralUsd, profitUsd)
	if err != nil {
		return nil, err
	}
	margin = satSub(margin, lossUsd)
	if margin.IsZero() {
		return new(uint256.Int).SetUint64(^uint64(0)), nil
	}
	leverage, err := checkedMul(sizeUsd, bpsPower)
	if err != nil {
		return nil, err
	}
	return checkedDiv(leverage, margin)
}

// CheckLeverage reports whether leverage is within the custody's configured
// bound. When initial is true (position-opening and collateral-adjustment
// checks), it additionally enforces the min/max initial-leverage band
// (pool.rs check_leverage; SPEC_FULL.md section 4.8). Current-state checks
// such as liquidation pass initial=false and only enforce MaxLeverage.
func CheckLeverage(leverage *uint256.Int, pricing PricingParams, initial bool) bool {
	if leverage.Cmp(uint256.NewInt(pricing.MaxLeverage)) > 0 {
		return false
	}
	if !initial {
		return true
	}
	return leverage.Cmp(uint256.NewInt(pricing.MinInitialLeverage)) >= 0 &&
		leverage.Cmp(uint256.NewInt(pricing.MaxInitialLeverage)) <= 0
}

// GetLiquidationPrice inverts the max-leverage bound to the token price at
// which position would become liquidatable, holding size/collateral fixed
// (pool.rs get_liquidation_price; SPEC_FULL.md section 4.8).
func (p *Pool) GetLiquidationPrice(position *Position, tokenEmaPrice OraclePrice, custody, collateralCustody *Custody, curtime int64) (*uint256.Int, error) {
	if position.SizeUsd.IsZero() || position.EntryPrice.IsZero() {
		return new(uint256.Int), nil
	}

	size, err := tokenEmaPrice.GetTokenAmount(position.SizeUsd, custody.Decimals)
	if err != nil {
		return nil, err
	}
	exitFeeTokens, err := p.GetExitFee(custody, size)
	if err != nil {
		return nil, err
	}
	exitFeeUsd, err := tokenEmaPrice.GetAssetAmountUsd(exitFeeTokens, custody.Decimals)
	if err != nil {
		return nil, err
	}
	interestUsd, err := collateralCustody.GetInterestAmountUsd(position, curtime)
	if err != nil {
		return nil, err
	}

	unrealizedLossUsd, err := checkedAdd(exitFeeUsd, interestUsd)
	if err != nil {
		return nil, err
	}
	unrealizedLossUsd, err = checkedAdd(unrealizedLossUsd, position.UnrealizedLossUsd)
	if err != nil {
		return nil, err
	}

	maxLossUsd, err := checkedMul(position.SizeUsd, bpsPower)
	if err != nil {
		return nil, err
	}
	maxLossUsd, err = checkedDiv(maxLossUsd, uint256.NewInt(custody.Pricing.MaxLeverage))
	if err != nil {
		return nil, err
	}
	maxLossUsd, err = checkedAdd(maxLossUsd, unrealizedLossUsd)
	if err != nil {
		return nil, err
	}

	marginUsd, err := checkedAdd(position.CollateralUsd, position.UnrealizedProfitUsd)
	if err != nil {
		return nil, err
	}

	aboveMargin := maxLossUsd.Cmp(marginUsd) >= 0
	var maxPriceDiffUsd *uint256.Int
	if aboveMargin {
		maxPriceDiffUsd, err = checkedSub(maxLossUsd, marginUsd)
	} else {
		maxPriceDiffUsd, err = checkedSub(marginUsd, maxLossUsd)
	}
	if err != nil {
		return nil, err
	}

	positionPriceUsd, err := scaleToExponent(position.EntryPrice, -PriceDecimals, -UsdDecimals)
	if err != nil {
		return nil, err
	}
	if positionPriceUsd.IsZero() {
		return nil, ErrDivideByZero
	}

	maxPriceDiff, err := checkedMul(maxPriceDiffUsd, positionPriceUsd)
	if err != nil {
		return nil, err
	}
	maxPriceDiff, err = checkedDiv(maxPriceDiff, position.SizeUsd)
	if err != nil {
		return nil, err
	}
	maxPriceDiff, err = scaleToExponent(maxPriceDiff, -UsdDecimals, -PriceDecimals)
	if err != nil {
		return nil, err
	}

	switch {
	case position.Side == SideLong:
		if aboveMargin {
			return checkedAdd(position.EntryPrice, maxPriceDiff)
		}
		if position.EntryPrice.Gt(maxPriceDiff) {
			return checkedSub(position.EntryPrice, maxPriceDiff)
		}
		return new(uint256.Int), nil
	case aboveMargin:
		if position.EntryPrice.Gt(maxPriceDiff) {
			return checkedSub(position.EntryPrice, maxPriceDiff)
		}
		return new(uint256.Int), nil
	default:
		return checkedAdd(position.EntryPrice, maxPriceDiff)
	}
}

// pnlResult is the triple returned by GetPnlUsd.
type pnlResult struct {
	ProfitUsd *uint256.Int
	LossUsd   *uint256.Int
	ExitFee   *uint256.Int
}

// GetPnlUsd implements the nine-step profit/loss computation of
// SPEC_FULL.md section 4.8, including the capped-upside and same-block
// round-trip guard.
func (p *Pool) GetPnlUsd(position *Position, custody, collateralCustody *Custody, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice OraclePrice, curtime int64, liquidation bool) (*pnlResult, error) {
	exitPrice, err := p.GetExitPrice(tokenPrice, tokenEmaPrice, position.Side, custody)
	if err != nil {
		return nil, err
	}
	size, err := tokenEmaPrice.GetTokenAmount(position.SizeUsd, custody.Decimals)
	if err != nil {
		return nil, err
	}
	var exitFee *uint256.Int
	if liquidation {
		exitFee, err = p.GetLiquidationFee(custody, size)
	} else {
		exitFee, err = p.GetExitFee(custody, size)
	}
	if err != nil {
		return nil, err
	}

	exitFeeUsd, err := tokenEmaPrice.GetAssetAmountUsd(exitFee, custody.Decimals)
	if err != nil {
		return nil, err
	}

	interestUsd, err := collateralCustody.GetInterestAmountUsd(position, curtime)
	if err != nil {
		return nil, err
	}

	totalLossUsd, err := checkedAdd(exitFeeUsd, interestUsd)
	if err != nil {
		return nil, err
	}
	totalLossUsd, err = checkedAdd(totalLossUsd, position.UnrealizedLossUsd)
	if err != nil {
		return nil, err
	}

	var profitDiff, lossDiff *uint256.Int
	if position.Side == SideLong {
		profitDiff = satSub(exitPrice, position.EntryPrice)
		lossDiff = satSub(position.EntryPrice, exitPrice)
	} else {
		profitDiff = satSub(position.EntryPrice, exitPrice)
		lossDiff = satSub(exitPrice, position.EntryPrice)
	}

	positionPriceUsd, err := scaleToExponent(position.EntryPrice, -PriceDecimals, -UsdDecimals)
	if err != nil {
		return nil, err
	}
	if positionPriceUsd.IsZero() {
		return nil, ErrDivideByZero
	}

	minCollateralPrice, err := collateralPrice.GetMinPrice(collateralEmaPrice, collateralCustody.IsStable)
	if err != nil {
		return nil, err
	}
	if collateralCustody.IsVirtual {
		minCollateralPrice = OraclePrice{Price: new(uint256.Int).Set(oneUsd), Exponent: -UsdDecimals}
	}
	maxProfitUsd, err := minCollateralPrice.GetAssetAmountUsd(position.LockedAmount, collateralCustody.Decimals)
	if err != nil {
		return nil, err
	}

	if profitDiff.Sign() > 0 {
		potentialProfit, err := checkedMul(position.SizeUsd, profitDiff)
		if err != nil {
			return nil, err
		}
		potentialProfit, err = checkedDiv(potentialProfit, positionPriceUsd)
		if err != nil {
			return nil, err
		}
		potentialProfit, err = checkedAdd(potentialProfit, position.UnrealizedProfitUsd)
		if err != nil {
			return nil, err
		}

		if potentialProfit.Cmp(totalLossUsd) >= 0 {
			curProfit := satSub(potentialProfit, totalLossUsd)
			if curtime <= position.OpenTime {
				curProfit = new(uint256.Int)
			} else if curProfit.Gt(maxProfitUsd) {
				curProfit = maxProfitUsd
			}
			return &pnlResult{ProfitUsd: curProfit, LossUsd: new(uint256.Int), ExitFee: exitFee}, nil
		}
		loss := satSub(totalLossUsd, potentialProfit)
		return &pnlResult{ProfitUsd: new(uint256.Int), LossUsd: loss, ExitFee: exitFee}, nil
	}

	var potentialLoss *uint256.Int
	if lossDiff.Sign() > 0 {
		num, err := checkedMul(position.SizeUsd, lossDiff)
		if err != nil {
			return nil, err
		}
		potentialLoss, err = checkedCeilDiv(num, positionPriceUsd)
		if err != nil {
			return nil, err
		}
	} else {
		potentialLoss = new(uint256.Int)
	}
	potentialLoss, err = checkedAdd(potentialLoss, totalLossUsd)
	if err != nil {
		return nil, err
	}

	if potentialLoss.Cmp(position.UnrealizedProfitUsd) <= 0 {
		curProfit := satSub(position.UnrealizedProfitUsd, potentialLoss)
		if curtime <= position.OpenTime {
			curProfit = new(uint256.Int)
		} else if curProfit.Gt(maxProfitUsd) {
			curProfit = maxProfitUsd
		}
		return &pnlResult{ProfitUsd: curProfit, LossUsd: new(uint256.Int), ExitFee: exitFee}, nil
	}
	loss := satSub(potentialLoss, position.UnrealizedProfitUsd)
	return &pnlResult{ProfitUsd: new(uint256.Int), LossUsd: loss, ExitFee: exitFee}, nil
}

// closeAmountResult is the quadruple returned by GetCloseAmount.
type closeAmountResult struct {
	TransferAmount *uint256.Int
	FeeAmount      *uint256.Int
	ProfitUsd      *uint256.Int
	LossUsd        *uint256.Int
}

// GetCloseAmount computes how many collateral tokens a closing trader
// receives, bounded above by locked+collateral (SPEC_FULL.md section 4.8).
func (p *Pool) GetCloseAmount(position *Position, custody, collateralCustody *Custody, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice OraclePrice, curtime int64, liquidation bool) (*closeAmountResult, error) {
	pnl, err := p.GetPnlUsd(position, custody, collateralCustody, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice, curtime, liquidation)
	if err != nil {
		return nil, err
	}

	availableUsd, err := checkedAdd(position.CollateralUsd, pnl.ProfitUsd)
	if err != nil {
		return nil, err
	}
	availableUsd = satSub(availableUsd, pnl.LossUsd)

	maxCollateralPrice, err := collateralPrice.GetMaxPrice(collateralEmaPrice, collateralCustody.IsStable)
	if err != nil {
		return nil, err
	}
	closeAmount, err := maxCollateralPrice.GetTokenAmount(availableUsd, collateralCustody.Decimals)
	if err != nil {
		return nil, err
	}

	maxAmount, err := checkedAdd(satSub(position.LockedAmount, pnl.ExitFee), position.CollateralAmount)
	if err != nil {
		return nil, err
	}

	transfer := closeAmount
	if maxAmount.Lt(closeAmount) {
		transfer = maxAmount
	}
	return &closeAmountResult{TransferAmount: transfer, FeeAmount: pnl.ExitFee, ProfitUsd: pnl.ProfitUsd, LossUsd: pnl.LossUsd}, nil
}

// GetAssetsUnderManagementUsd sums every custody's owned-token USD value per
// the pool's AumCalcMode (SPEC_FULL.md section 2.1/3.1).
func (p *Pool) GetAssetsUnderManagementUsd(custodies []*Custody, prices, emaPrices []OraclePrice) (*uint256.Int, error) {
	total := new(uint256.Int)
	for i, custody := range custodies {
		var price OraclePrice
		var err error
		switch p.AumCalcMode {
		case AumCalcModeMin:
			price, err = prices[i].GetMinPrice(emaPrices[i], custody.IsStable)
		case AumCalcModeMax:
			price, err = prices[i].GetMaxPrice(emaPrices[i], custody.IsStable)
		case AumCalcModeLast:
			price = prices[i]
		default:
			price = emaPrices[i]
		}
		if err != nil {
			return nil, err
		}
		usd, err := price.GetAssetAmountUsd(custody.Assets.Owned, custody.Decimals)
		if err != nil {
			return nil, err
		}
		total, err = checkedAdd(total, usd)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}
