package perps

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/ag-wnl/perp-dex/crypto"
	"github.com/ag-wnl/perp-dex/native/common"
)

const moduleName = "perps"

// engineState is the persistence seam the engine talks to instead of any
// concrete storage, RPC, or on-chain dependency (SPEC_FULL.md section 2.1).
type engineState interface {
	GetPool(poolID string) (*Pool, error)
	PutPool(pool *Pool) error
	GetCustody(poolID, mint string) (*Custody, error)
	PutCustody(custody *Custody) error
	GetPosition(owner crypto.Address, poolID, custodyMint string, side Side) (*Position, error)
	PutPosition(position *Position) error
	DeletePosition(owner crypto.Address, poolID, custodyMint string, side Side) error
}

// TokenLedger models the external token-ledger collaborator
// (SPEC_FULL.md section 6): moving fungible balances between a trader's
// account and the pool's vault. The engine never touches a concrete ledger
// implementation directly.
type TokenLedger interface {
	TransferFromUser(owner crypto.Address, custodyMint string, amount *uint256.Int) error
	TransferFromPool(owner crypto.Address, custodyMint string, amount *uint256.Int) error
}

// PauseView reports whether an operation or custody is currently paused.
// Reused as-is from native/common (SPEC_FULL.md section 6).
type PauseView = common.PauseView

// Engine orchestrates the position lifecycle operations against injected
// state, a token ledger, and an optional structured logger/metrics sink.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	pauses  PauseView
	log     *slog.Logger
	metrics *PerpMetrics

	quotaStore common.Store
	quota      common.Quota
}

// NewEngine constructs an Engine. log may be nil, in which case log lines
// are discarded. Metrics are pulled from the package-level singleton
// registry (observability-style nil-receiver-safe, see metrics.go).
func NewEngine(state engineState, ledger TokenLedger, log *slog.Logger) *Engine {
	return &Engine{state: state, ledger: ledger, log: log, metrics: Metrics()}
}

// SetPauses injects the pause-guard view consulted before every operation.
func (e *Engine) SetPauses(p PauseView) { e.pauses = p }

// SetQuota injects a per-trader open-position rate limit, reusing
// native/common's generic quota counter (see DESIGN.md). A nil
// store disables quota enforcement entirely.
func (e *Engine) SetQuota(store common.Store, quota common.Quota) {
	e.quotaStore = store
	e.quota = quota
}

// checkOpenPositionQuota enforces the per-trader open-position rate limit
// when a quota store has been configured; a no-op otherwise.
func (e *Engine) checkOpenPositionQuota(owner crypto.Address, curtime int64) error {
	if e.quotaStore == nil {
		return nil
	}
	epoch := uint64(0)
	if e.quota.EpochSeconds > 0 {
		epoch = uint64(curtime) / uint64(e.quota.EpochSeconds)
	}
	_, err := common.Apply(e.quotaStore, moduleName, epoch, owner.Bytes(), e.quota, 1, 0)
	return err
}

func (e *Engine) guard(allowed bool) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !allowed {
		return ErrInstructionNotAllowed
	}
	return nil
}

func (e *Engine) ensureState() error {
	if e.state == nil {
		return ErrNilState
	}
	return nil
}

// OpenPosition implements SPEC_FULL.md section 4.9's open_position
// algorithm: validates inputs and permissions, prices the trade, sizes the
// position and its locked reserve, checks initial leverage, reserves pool
// funds, moves collateral+fee from the trader, and folds the position into
// custody aggregates.
func (e *Engine) OpenPosition(owner crypto.Address, poolID, custodyMint, collateralMint string, side Side, collateralAmount, sizeAmount, priceBound *uint256.Int, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice OraclePrice, curtime int64) (*Position, error) {
	requestID := uuid.NewString()
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, ErrInvalidArgument
	}
	if collateralAmount.IsZero() || sizeAmount.IsZero() {
		return nil, ErrInvalidArgument
	}

	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNilPool
	}
	custody, err := e.state.GetCustody(poolID, custodyMint)
	if err != nil {
		return nil, err
	}
	if custody == nil {
		return nil, ErrNilCustody
	}
	if err := e.guard(pool.Permissions.AllowOpenPosition && custody.Permissions.AllowOpenPosition && !custody.IsStable); err != nil {
		e.warn(requestID, "open_position", err, poolID, custodyMint, side)
		return nil, err
	}
	if err := e.checkOpenPositionQuota(owner, curtime); err != nil {
		e.warn(requestID, "open_position", err, poolID, custodyMint, side)
		return nil, err
	}

	crossCollateral := usesCollateralCustody(side, custody)
	var collateralCustody *Custody
	if crossCollateral {
		if collateralMint == "" || collateralMint == custodyMint {
			return nil, ErrInvalidCollateralCustody
		}
		collateralCustody, err = e.state.GetCustody(poolID, collateralMint)
		if err != nil {
			return nil, err
		}
		if collateralCustody == nil || !collateralCustody.IsStable || collateralCustody.IsVirtual {
			return nil, ErrInvalidCollateralCustody
		}
	} else {
		if collateralMint != "" && collateralMint != custodyMint {
			return nil, ErrInvalidCollateralCustody
		}
		collateralCustody = custody
		collateralMint = custodyMint
	}

	entryPrice, err := pool.GetEntryPrice(tokenPrice, tokenEmaPrice, side, custody)
	if err != nil {
		return nil, err
	}
	if err := CheckEntrySlippage(side, entryPrice, priceBound); err != nil {
		return nil, err
	}

	sizeUsd, err := NewOraclePrice(entryPrice, -PriceDecimals).GetAssetAmountUsd(sizeAmount, custody.Decimals)
	if err != nil {
		return nil, err
	}
	minCollateralPrice, err := collateralPrice.GetMinPrice(collateralEmaPrice, collateralCustody.IsStable)
	if err != nil {
		return nil, err
	}
	collateralUsd, err := minCollateralPrice.GetAssetAmountUsd(collateralAmount, collateralCustody.Decimals)
	if err != nil {
		return nil, err
	}

	var lockedBaseAmount *uint256.Int
	if crossCollateral {
		maxCollateralPrice, perr := collateralPrice.GetMaxPrice(collateralEmaPrice, collateralCustody.IsStable)
		if perr != nil {
			return nil, perr
		}
		lockedBaseAmount, err = maxCollateralPrice.GetTokenAmount(sizeUsd, collateralCustody.Decimals)
	} else {
		lockedBaseAmount = sizeAmount
	}
	if err != nil {
		return nil, err
	}
	lockedAmount, err := collateralCustody.GetLockedAmount(lockedBaseAmount, side)
	if err != nil {
		return nil, err
	}
	if lockedAmount.IsZero() {
		return nil, ErrInvalidArgument
	}

	var borrowSizeUsd *uint256.Int
	if custody.Pricing.MaxPayoffMult != 10_000 {
		if crossCollateral {
			maxCollateralPrice, perr := collateralPrice.GetMaxPrice(collateralEmaPrice, collateralCustody.IsStable)
			if perr != nil {
				return nil, perr
			}
			borrowSizeUsd, err = maxCollateralPrice.GetAssetAmountUsd(lockedAmount, collateralCustody.Decimals)
		} else {
			borrowSizeUsd, err = NewOraclePrice(entryPrice, -PriceDecimals).GetAssetAmountUsd(lockedAmount, custody.Decimals)
		}
		if err != nil {
			return nil, err
		}
	} else {
		borrowSizeUsd = new(uint256.Int).Set(sizeUsd)
	}

	feeAmountToken, err := pool.GetEntryFee(custody, sizeAmount, lockedAmount)
	if err != nil {
		return nil, err
	}
	feeUsd, err := tokenPrice.GetAssetAmountUsd(feeAmountToken, custody.Decimals)
	if err != nil {
		return nil, err
	}
	var feeAmountCollateral *uint256.Int
	if crossCollateral {
		feeAmountCollateral, err = minCollateralPrice.GetTokenAmount(feeUsd, collateralCustody.Decimals)
	} else {
		feeAmountCollateral = feeAmountToken
	}
	if err != nil {
		return nil, err
	}

	transferAmount, err := checkedAdd(collateralAmount, feeAmountCollateral)
	if err != nil {
		return nil, err
	}

	cumulativeInterest, err := collateralCustody.GetCumulativeInterest(curtime)
	if err != nil {
		return nil, err
	}

	position := &Position{
		Owner:                      owner,
		Pool:                       poolID,
		Custody:                    custodyMint,
		CollateralCustody:          collateralMint,
		OpenTime:                   curtime,
		UpdateTime:                 curtime,
		Side:                       side,
		EntryPrice:                 entryPrice,
		SizeUsd:                    sizeUsd,
		BorrowSizeUsd:              borrowSizeUsd,
		CollateralUsd:              collateralUsd,
		UnrealizedProfitUsd:        new(uint256.Int),
		UnrealizedLossUsd:          new(uint256.Int),
		CumulativeInterestSnapshot: cumulativeInterest,
		LockedAmount:               lockedAmount,
		CollateralAmount:           collateralAmount,
	}

	leverage, err := pool.GetLeverage(position.SizeUsd, position.CollateralUsd, new(uint256.Int), new(uint256.Int))
	if err != nil {
		return nil, err
	}
	if !CheckLeverage(leverage, custody.Pricing, true) {
		e.warn(requestID, "open_position", ErrMaxLeverage, poolID, custodyMint, side)
		return nil, ErrMaxLeverage
	}

	if err := collateralCustody.LockFunds(lockedAmount); err != nil {
		e.warn(requestID, "open_position", err, poolID, custodyMint, side)
		return nil, err
	}

	if e.ledger != nil {
		if err := e.ledger.TransferFromUser(owner, collateralMint, transferAmount); err != nil {
			return nil, err
		}
	}

	custody.CollectedFees.OpenPositionUsd = wrappingAdd(custody.CollectedFees.OpenPositionUsd, feeUsd)
	collateralCustody.Assets.Collateral, err = checkedAdd(collateralCustody.Assets.Collateral, collateralAmount)
	if err != nil {
		return nil, err
	}
	protocolShare, err := checkedMul(feeUsd, uint256.NewInt(custody.Fees.ProtocolShare))
	if err != nil {
		return nil, err
	}
	protocolShare, err = checkedDiv(protocolShare, bpsPower)
	if err != nil {
		return nil, err
	}
	custody.Assets.ProtocolFees = wrappingAdd(custody.Assets.ProtocolFees, protocolShare)

	custody.VolumeStats.OpenPositionUsd = wrappingAdd(custody.VolumeStats.OpenPositionUsd, sizeUsd)
	if side == SideLong {
		custody.TradeStats.OiLongUsd = wrappingAdd(custody.TradeStats.OiLongUsd, sizeUsd)
	} else {
		custody.TradeStats.OiShortUsd = wrappingAdd(custody.TradeStats.OiShortUsd, sizeUsd)
	}

	if !crossCollateral {
		if err := custody.AddPosition(position, tokenEmaPrice, curtime, nil); err != nil {
			return nil, err
		}
		if err := custody.UpdateBorrowRate(curtime); err != nil {
			return nil, err
		}
	} else {
		if err := custody.AddPosition(position, tokenEmaPrice, curtime, collateralCustody); err != nil {
			return nil, err
		}
		if err := collateralCustody.UpdateBorrowRate(curtime); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutCustody(custody); err != nil {
		return nil, err
	}
	if crossCollateral {
		if err := e.state.PutCustody(collateralCustody); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}

	e.metrics.ObserveOpen(poolID, side, feeUsd)
	e.info(requestID, "open_position", poolID, custodyMint, side)
	return position, nil
}

// ClosePosition implements SPEC_FULL.md section 4.9's close_position
// algorithm, including the same-custody mirroring step.
func (e *Engine) ClosePosition(owner crypto.Address, poolID, custodyMint string, side Side, priceBound *uint256.Int, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice OraclePrice, curtime int64, liquidation bool) (*uint256.Int, error) {
	requestID := uuid.NewString()
	if err := e.ensureState(); err != nil {
		return nil, err
	}

	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNilPool
	}
	custody, err := e.state.GetCustody(poolID, custodyMint)
	if err != nil {
		return nil, err
	}
	if custody == nil {
		return nil, ErrNilCustody
	}
	if err := e.guard(pool.Permissions.AllowClosePosition && custody.Permissions.AllowClosePosition); err != nil {
		e.warn(requestID, "close_position", err, poolID, custodyMint, side)
		return nil, err
	}

	position, err := e.state.GetPosition(owner, poolID, custodyMint, side)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrNilPosition
	}

	crossCollateral := position.CollateralCustody != custodyMint
	collateralCustody := custody
	if crossCollateral {
		collateralCustody, err = e.state.GetCustody(poolID, position.CollateralCustody)
		if err != nil {
			return nil, err
		}
		if collateralCustody == nil {
			return nil, ErrNilCustody
		}
	}

	exitPrice, err := pool.GetExitPrice(tokenPrice, tokenEmaPrice, side, custody)
	if err != nil {
		return nil, err
	}
	if priceBound != nil && !priceBound.IsZero() {
		if err := CheckExitSlippage(side, exitPrice, priceBound); err != nil {
			return nil, err
		}
	}

	result, err := pool.GetCloseAmount(position, custody, collateralCustody, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice, curtime, liquidation)
	if err != nil {
		return nil, err
	}

	if err := collateralCustody.UnlockFunds(position.LockedAmount); err != nil {
		return nil, err
	}

	if collateralCustody.Assets.Owned.Lt(result.TransferAmount) {
		return nil, ErrInsufficientAmountReturned
	}

	if e.ledger != nil {
		if err := e.ledger.TransferFromPool(owner, position.CollateralCustody, result.TransferAmount); err != nil {
			return nil, err
		}
	}

	feeUsd, err := collateralEmaPrice.GetAssetAmountUsd(result.FeeAmount, collateralCustody.Decimals)
	if err != nil {
		feeUsd = new(uint256.Int)
	}
	custody.CollectedFees.ClosePositionUsd = wrappingAdd(custody.CollectedFees.ClosePositionUsd, feeUsd)

	netOut := satSub(result.TransferAmount, position.CollateralAmount)
	netIn := satSub(position.CollateralAmount, result.TransferAmount)
	collateralCustody.Assets.Owned = satSub(collateralCustody.Assets.Owned, netOut)
	collateralCustody.Assets.Owned = wrappingAdd(collateralCustody.Assets.Owned, netIn)
	collateralCustody.Assets.Collateral = satSub(collateralCustody.Assets.Collateral, position.CollateralAmount)

	if !collateralCustody.Assets.Owned.IsZero() {
		protocolShare, perr := checkedMul(feeUsd, uint256.NewInt(custody.Fees.ProtocolShare))
		if perr == nil {
			protocolShare, perr = checkedDiv(protocolShare, bpsPower)
			if perr == nil {
				collateralCustody.Assets.ProtocolFees = wrappingAdd(collateralCustody.Assets.ProtocolFees, protocolShare)
			}
		}
	}

	custody.VolumeStats.ClosePositionUsd = wrappingAdd(custody.VolumeStats.ClosePositionUsd, position.SizeUsd)
	custody.TradeStats.ProfitUsd = wrappingAdd(custody.TradeStats.ProfitUsd, result.ProfitUsd)
	custody.TradeStats.LossUsd = wrappingAdd(custody.TradeStats.LossUsd, result.LossUsd)
	if side == SideLong {
		custody.TradeStats.OiLongUsd = satSub(custody.TradeStats.OiLongUsd, position.SizeUsd)
	} else {
		custody.TradeStats.OiShortUsd = satSub(custody.TradeStats.OiShortUsd, position.SizeUsd)
	}

	if crossCollateral {
		if err := custody.RemovePosition(position, curtime, collateralCustody); err != nil {
			return nil, err
		}
		if err := collateralCustody.UpdateBorrowRate(curtime); err != nil {
			return nil, err
		}
	} else {
		if err := custody.RemovePosition(position, curtime, nil); err != nil {
			return nil, err
		}
		if err := custody.UpdateBorrowRate(curtime); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutCustody(custody); err != nil {
		return nil, err
	}
	if crossCollateral {
		if err := e.state.PutCustody(collateralCustody); err != nil {
			return nil, err
		}
	}
	if err := e.state.DeletePosition(owner, poolID, custodyMint, side); err != nil {
		return nil, err
	}

	e.metrics.ObserveClose(poolID, side, feeUsd)
	e.info(requestID, "close_position", poolID, custodyMint, side)
	return result.TransferAmount, nil
}

// AddCollateral implements SPEC_FULL.md section 4.9's add_collateral
// algorithm.
func (e *Engine) AddCollateral(owner crypto.Address, poolID, custodyMint string, side Side, amount *uint256.Int, collateralPrice, collateralEmaPrice OraclePrice, curtime int64) error {
	requestID := uuid.NewString()
	if err := e.ensureState(); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrInvalidArgument
	}

	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return err
	}
	if pool == nil {
		return ErrNilPool
	}
	custody, err := e.state.GetCustody(poolID, custodyMint)
	if err != nil {
		return err
	}
	if custody == nil {
		return ErrNilCustody
	}
	if err := e.guard(pool.Permissions.AllowOpenPosition && custody.Permissions.AllowOpenPosition); err != nil {
		return err
	}

	position, err := e.state.GetPosition(owner, poolID, custodyMint, side)
	if err != nil {
		return err
	}
	if position == nil {
		return ErrNilPosition
	}

	collateralCustody := custody
	if position.CollateralCustody != custodyMint {
		collateralCustody, err = e.state.GetCustody(poolID, position.CollateralCustody)
		if err != nil {
			return err
		}
		if collateralCustody == nil {
			return ErrNilCustody
		}
	}

	minCollateralPrice, err := collateralPrice.GetMinPrice(collateralEmaPrice, collateralCustody.IsStable)
	if err != nil {
		return err
	}
	collateralUsd, err := minCollateralPrice.GetAssetAmountUsd(amount, collateralCustody.Decimals)
	if err != nil {
		return err
	}

	position.CollateralUsd, err = checkedAdd(position.CollateralUsd, collateralUsd)
	if err != nil {
		return err
	}
	position.CollateralAmount, err = checkedAdd(position.CollateralAmount, amount)
	if err != nil {
		return err
	}
	position.UpdateTime = curtime

	leverage, err := pool.GetLeverage(position.SizeUsd, position.CollateralUsd, position.UnrealizedProfitUsd, position.UnrealizedLossUsd)
	if err != nil {
		return err
	}
	if !CheckLeverage(leverage, custody.Pricing, true) {
		return ErrMaxLeverage
	}

	if e.ledger != nil {
		if err := e.ledger.TransferFromUser(owner, position.CollateralCustody, amount); err != nil {
			return err
		}
	}

	collateralCustody.Assets.Collateral, err = checkedAdd(collateralCustody.Assets.Collateral, amount)
	if err != nil {
		return err
	}

	if err := e.state.PutCustody(collateralCustody); err != nil {
		return err
	}
	if err := e.state.PutPosition(position); err != nil {
		return err
	}

	e.info(requestID, "add_collateral", poolID, custodyMint, side)
	return nil
}

// RemoveCollateral implements SPEC_FULL.md section 4.9's remove_collateral
// algorithm, preserving the strict zero-collateral rejection the design
// notes call out as intentional.
func (e *Engine) RemoveCollateral(owner crypto.Address, poolID, custodyMint string, side Side, collateralUsd *uint256.Int, collateralPrice, collateralEmaPrice OraclePrice, curtime int64) (*uint256.Int, error) {
	requestID := uuid.NewString()
	if err := e.ensureState(); err != nil {
		return nil, err
	}

	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNilPool
	}
	custody, err := e.state.GetCustody(poolID, custodyMint)
	if err != nil {
		return nil, err
	}
	if custody == nil {
		return nil, ErrNilCustody
	}
	if err := e.guard(pool.Permissions.AllowCollateralWithdrawal && custody.Permissions.AllowCollateralWithdrawal); err != nil {
		return nil, err
	}

	position, err := e.state.GetPosition(owner, poolID, custodyMint, side)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, ErrNilPosition
	}
	if collateralUsd.IsZero() || collateralUsd.Cmp(position.CollateralUsd) >= 0 {
		return nil, ErrInvalidArgument
	}

	collateralCustody := custody
	if position.CollateralCustody != custodyMint {
		collateralCustody, err = e.state.GetCustody(poolID, position.CollateralCustody)
		if err != nil {
			return nil, err
		}
		if collateralCustody == nil {
			return nil, ErrNilCustody
		}
	}

	maxCollateralPrice, err := collateralPrice.GetMaxPrice(collateralEmaPrice, collateralCustody.IsStable)
	if err != nil {
		return nil, err
	}
	amount, err := maxCollateralPrice.GetTokenAmount(collateralUsd, collateralCustody.Decimals)
	if err != nil {
		return nil, err
	}
	if amount.Gt(position.CollateralAmount) {
		return nil, ErrInsufficientFunds
	}

	position.CollateralUsd = satSub(position.CollateralUsd, collateralUsd)
	position.CollateralAmount = satSub(position.CollateralAmount, amount)
	position.UpdateTime = curtime

	leverage, err := pool.GetLeverage(position.SizeUsd, position.CollateralUsd, position.UnrealizedProfitUsd, position.UnrealizedLossUsd)
	if err != nil {
		return nil, err
	}
	if !CheckLeverage(leverage, custody.Pricing, true) {
		return nil, ErrMaxLeverage
	}

	if e.ledger != nil {
		if err := e.ledger.TransferFromPool(owner, position.CollateralCustody, amount); err != nil {
			return nil, err
		}
	}

	collateralCustody.Assets.Collateral = satSub(collateralCustody.Assets.Collateral, amount)

	if err := e.state.PutCustody(collateralCustody); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}

	e.info(requestID, "remove_collateral", poolID, custodyMint, side)
	return amount, nil
}

// Liquidate reports whether a position's current leverage has crossed the
// custody's max and, if so, the liquidation-mode P&L that would apply. A
// pure read-only helper (SPEC_FULL.md section 4.10) — it mutates nothing
// and is not one of the four lifecycle transactions.
//
// LiquidateResult bundles GetPnlUsd's triple with the price at which the
// position becomes liquidatable, since Liquidate computes both (SPEC_FULL.md
// section 4.8; pool.rs get_liquidation_price).
type LiquidateResult struct {
	ProfitUsd        *uint256.Int
	LossUsd          *uint256.Int
	ExitFee          *uint256.Int
	LiquidationPrice *uint256.Int
}

func (e *Engine) Liquidate(poolID, custodyMint string, owner crypto.Address, side Side, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice OraclePrice, curtime int64) (*LiquidateResult, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	custody, err := e.state.GetCustody(poolID, custodyMint)
	if err != nil {
		return nil, err
	}
	position, err := e.state.GetPosition(owner, poolID, custodyMint, side)
	if err != nil {
		return nil, err
	}
	if position == nil || custody == nil || pool == nil {
		return nil, ErrNilPosition
	}
	collateralCustody := custody
	if position.CollateralCustody != custodyMint {
		collateralCustody, err = e.state.GetCustody(poolID, position.CollateralCustody)
		if err != nil {
			return nil, err
		}
	}
	leverage, err := pool.GetLeverage(position.SizeUsd, position.CollateralUsd, position.UnrealizedProfitUsd, position.UnrealizedLossUsd)
	if err != nil {
		return nil, err
	}
	if CheckLeverage(leverage, custody.Pricing, false) {
		return nil, ErrNotLiquidatable
	}
	pnl, err := pool.GetPnlUsd(position, custody, collateralCustody, tokenPrice, tokenEmaPrice, collateralPrice, collateralEmaPrice, curtime, true)
	if err != nil {
		return nil, err
	}
	liquidationPrice, err := pool.GetLiquidationPrice(position, tokenEmaPrice, custody, collateralCustody, curtime)
	if err != nil {
		return nil, err
	}
	return &LiquidateResult{
		ProfitUsd:        pnl.ProfitUsd,
		LossUsd:          pnl.LossUsd,
		ExitFee:          pnl.ExitFee,
		LiquidationPrice: liquidationPrice,
	}, nil
}

func wrappingAdd(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Add(a, b)
}

func (e *Engine) info(requestID, op, poolID, custodyMint string, side Side) {
	if e.log == nil {
		return
	}
	e.log.Info("perps operation", "request_id", requestID, "op", op, "pool", poolID, "custody", custodyMint, "side", side.String())
}

func (e *Engine) warn(requestID, op string, err error, poolID, custodyMint string, side Side) {
	if e.log == nil {
		return
	}
	e.log.Warn("perps operation rejected", "request_id", requestID, "op", op, "pool", poolID, "custody", custodyMint, "side", side.String(), "error", fmt.Sprint(err))
}
