package perps

import (
	"github.com/holiman/uint256"

	"github.com/ag-wnl/perp-dex/crypto"
)

// Side identifies the direction of a leveraged position.
type Side int

const (
	SideNone Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "none"
	}
}

// Valid reports whether s is a tradable side (None is only a zero-value
// placeholder and must be rejected by every lifecycle operation).
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// FeesMode selects how a custody's liquidity-action fee is computed.
type FeesMode int

const (
	FeesModeFixed FeesMode = iota
	FeesModeLinear
	FeesModeOptimal
)

// AumCalcMode selects which oracle reading feeds assets-under-management
// valuation. Carried over from the original source (SPEC_FULL.md 3.1); the
// distilled spec mentions AUM valuation but not this selector.
type AumCalcMode int

const (
	AumCalcModeMin AumCalcMode = iota
	AumCalcModeMax
	AumCalcModeLast
	AumCalcModeEMA
)

// OracleType identifies the feed protocol backing a custody's OracleParams.
type OracleType int

const (
	OracleTypeNone OracleType = iota
	OracleTypePyth
	OracleTypeSwitchboard
)

// CollateralChange distinguishes an increase from a decrease in a position's
// collateral. No function in this package takes it as a parameter.
type CollateralChange int

const (
	CollateralChangeNone CollateralChange = iota
	CollateralChangeAdd
	CollateralChangeRemove
)

// TokenRatios bounds a custody's target share of pool AUM, all in BPS.
type TokenRatios struct {
	Target uint64
	Min    uint64
	Max    uint64
}

// OracleParams describes how a custody's price should be fetched and
// validated by the external oracle collaborator (SPEC_FULL.md section 6).
// The core never dereferences these fields itself.
type OracleParams struct {
	OracleType      OracleType
	OracleAccountID string
	MaxPriceError   uint64
	MaxPriceAgeSec  uint64
}

// PricingParams governs entry/exit spread and utilization limits for a
// custody.
type PricingParams struct {
	TradeSpreadLong  uint64 // BPS
	TradeSpreadShort uint64 // BPS
	SwapSpread       uint64 // BPS
	MaxLeverage      uint64 // BPS, e.g. 100000 = 10x
	// MinInitialLeverage/MaxInitialLeverage additionally bound the
	// position-opening and collateral-adjustment leverage checks
	// (pool.rs check_leverage; SPEC_FULL.md section 4.8). Current-state
	// checks such as liquidation only enforce MaxLeverage.
	MinInitialLeverage uint64 // BPS
	MaxInitialLeverage uint64 // BPS
	MaxPayoffMult    uint64 // BPS, e.g. 30000 = 3x
	MaxUtilization   uint64 // BPS; 0 or BPS_POWER disables the cap
	MaxPositionLockedUsd *uint256.Int
	MaxTotalLockedUsd    *uint256.Int
}

// Fees groups every fee parameter a custody carries. Rates are in BPS.
type Fees struct {
	Mode FeesMode

	SwapFee           uint64
	AddLiquidityFee   uint64
	RemoveLiquidityFee uint64
	OpenPositionFee   uint64
	ClosePositionFee  uint64
	LiquidationFee    uint64

	// UtilizationMult scales the open-position fee surcharge once
	// utilization passes BorrowRateParams.OptimalUtilization.
	UtilizationMult uint64

	// RatioMult scales the Linear fee-mode penalty/discount.
	RatioMult uint64

	// OptimalFee/MaxFee parameterize the Optimal (piecewise-linear) mode.
	OptimalFee uint64
	MaxFee     uint64

	ProtocolShare uint64 // BPS of every collected fee routed to protocol_fees
}

// BorrowRateParams parameterizes the kinked two-slope interest curve.
type BorrowRateParams struct {
	BaseRate           uint64 // RATE, per-hour
	Slope1             uint64 // RATE, per-hour
	Slope2             uint64 // RATE, per-hour
	OptimalUtilization uint64 // RATE (fraction of RATE_POWER)
}

// BorrowRateState is the mutable half of the interest model: the current
// hourly rate and the running cumulative-interest accumulator.
type BorrowRateState struct {
	CurrentRate        *uint256.Int // RATE, per-hour
	CumulativeInterest *uint256.Int // RATE
	LastUpdate         int64        // unix seconds
}

func newBorrowRateState() BorrowRateState {
	return BorrowRateState{
		CurrentRate:        new(uint256.Int),
		CumulativeInterest: new(uint256.Int),
	}
}

func (s BorrowRateState) clone() BorrowRateState {
	return BorrowRateState{
		CurrentRate:        new(uint256.Int).Set(s.CurrentRate),
		CumulativeInterest: new(uint256.Int).Set(s.CumulativeInterest),
		LastUpdate:         s.LastUpdate,
	}
}

// Assets is the custody's token-denominated balance sheet.
type Assets struct {
	Collateral    *uint256.Int
	ProtocolFees  *uint256.Int
	Owned         *uint256.Int
	Locked        *uint256.Int
}

func newAssets() Assets {
	return Assets{
		Collateral:   new(uint256.Int),
		ProtocolFees: new(uint256.Int),
		Owned:        new(uint256.Int),
		Locked:       new(uint256.Int),
	}
}

func (a Assets) clone() Assets {
	return Assets{
		Collateral:   new(uint256.Int).Set(a.Collateral),
		ProtocolFees: new(uint256.Int).Set(a.ProtocolFees),
		Owned:        new(uint256.Int).Set(a.Owned),
		Locked:       new(uint256.Int).Set(a.Locked),
	}
}

// FeesStats accumulates collected fee USD values per lifecycle operation.
// Wrapping add semantics (SPEC_FULL.md section 9) — these fields must never
// abort an operation.
type FeesStats struct {
	SwapUsd            *uint256.Int
	AddLiquidityUsd    *uint256.Int
	RemoveLiquidityUsd *uint256.Int
	OpenPositionUsd    *uint256.Int
	ClosePositionUsd   *uint256.Int
	LiquidationUsd     *uint256.Int
}

func newFeesStats() FeesStats {
	return FeesStats{
		SwapUsd:            new(uint256.Int),
		AddLiquidityUsd:    new(uint256.Int),
		RemoveLiquidityUsd: new(uint256.Int),
		OpenPositionUsd:    new(uint256.Int),
		ClosePositionUsd:   new(uint256.Int),
		LiquidationUsd:     new(uint256.Int),
	}
}

func (f FeesStats) clone() FeesStats {
	return FeesStats{
		SwapUsd:            new(uint256.Int).Set(f.SwapUsd),
		AddLiquidityUsd:    new(uint256.Int).Set(f.AddLiquidityUsd),
		RemoveLiquidityUsd: new(uint256.Int).Set(f.RemoveLiquidityUsd),
		OpenPositionUsd:    new(uint256.Int).Set(f.OpenPositionUsd),
		ClosePositionUsd:   new(uint256.Int).Set(f.ClosePositionUsd),
		LiquidationUsd:     new(uint256.Int).Set(f.LiquidationUsd),
	}
}

// VolumeStats accumulates traded USD volume per operation.
type VolumeStats struct {
	SwapUsd            *uint256.Int
	AddLiquidityUsd    *uint256.Int
	RemoveLiquidityUsd *uint256.Int
	OpenPositionUsd    *uint256.Int
	ClosePositionUsd   *uint256.Int
}

func newVolumeStats() VolumeStats {
	return VolumeStats{
		SwapUsd:            new(uint256.Int),
		AddLiquidityUsd:    new(uint256.Int),
		RemoveLiquidityUsd: new(uint256.Int),
		OpenPositionUsd:    new(uint256.Int),
		ClosePositionUsd:   new(uint256.Int),
	}
}

func (v VolumeStats) clone() VolumeStats {
	return VolumeStats{
		SwapUsd:            new(uint256.Int).Set(v.SwapUsd),
		AddLiquidityUsd:    new(uint256.Int).Set(v.AddLiquidityUsd),
		RemoveLiquidityUsd: new(uint256.Int).Set(v.RemoveLiquidityUsd),
		OpenPositionUsd:    new(uint256.Int).Set(v.OpenPositionUsd),
		ClosePositionUsd:   new(uint256.Int).Set(v.ClosePositionUsd),
	}
}

// TradeStats tracks realized profit/loss and open interest for a custody.
type TradeStats struct {
	ProfitUsd  *uint256.Int
	LossUsd    *uint256.Int
	OiLongUsd  *uint256.Int
	OiShortUsd *uint256.Int
}

func newTradeStats() TradeStats {
	return TradeStats{
		ProfitUsd:  new(uint256.Int),
		LossUsd:    new(uint256.Int),
		OiLongUsd:  new(uint256.Int),
		OiShortUsd: new(uint256.Int),
	}
}

func (t TradeStats) clone() TradeStats {
	return TradeStats{
		ProfitUsd:  new(uint256.Int).Set(t.ProfitUsd),
		LossUsd:    new(uint256.Int).Set(t.LossUsd),
		OiLongUsd:  new(uint256.Int).Set(t.OiLongUsd),
		OiShortUsd: new(uint256.Int).Set(t.OiShortUsd),
	}
}

// PositionStats is the aggregate of all open positions on one side of a
// custody. weightedPrice/totalQuantity together give a volume-weighted
// average entry price.
type PositionStats struct {
	OpenPositions             uint64
	CollateralUsd             *uint256.Int
	SizeUsd                   *uint256.Int
	BorrowSizeUsd             *uint256.Int
	LockedAmount              *uint256.Int
	WeightedPrice             *uint256.Int // u128 range
	TotalQuantity             *uint256.Int // u128 range
	CumulativeInterestUsd     *uint256.Int
	CumulativeInterestSnapshot *uint256.Int
}

func newPositionStats() PositionStats {
	return PositionStats{
		CollateralUsd:              new(uint256.Int),
		SizeUsd:                    new(uint256.Int),
		BorrowSizeUsd:              new(uint256.Int),
		LockedAmount:               new(uint256.Int),
		WeightedPrice:              new(uint256.Int),
		TotalQuantity:              new(uint256.Int),
		CumulativeInterestUsd:      new(uint256.Int),
		CumulativeInterestSnapshot: new(uint256.Int),
	}
}

func (p PositionStats) clone() PositionStats {
	return PositionStats{
		OpenPositions:              p.OpenPositions,
		CollateralUsd:              new(uint256.Int).Set(p.CollateralUsd),
		SizeUsd:                    new(uint256.Int).Set(p.SizeUsd),
		BorrowSizeUsd:              new(uint256.Int).Set(p.BorrowSizeUsd),
		LockedAmount:               new(uint256.Int).Set(p.LockedAmount),
		WeightedPrice:              new(uint256.Int).Set(p.WeightedPrice),
		TotalQuantity:              new(uint256.Int).Set(p.TotalQuantity),
		CumulativeInterestUsd:      new(uint256.Int).Set(p.CumulativeInterestUsd),
		CumulativeInterestSnapshot: new(uint256.Int).Set(p.CumulativeInterestSnapshot),
	}
}

// Permissions gates which operations a custody (or, at the pool level, the
// whole engine) currently allows.
type Permissions struct {
	AllowSwap               bool
	AllowAddLiquidity       bool
	AllowRemoveLiquidity    bool
	AllowOpenPosition       bool
	AllowClosePosition      bool
	AllowPnlWithdrawal      bool
	AllowCollateralWithdrawal bool
	AllowSizeChange         bool
}

// AllowAll returns the permissive default used when constructing a fresh
// custody or pool.
func AllowAll() Permissions {
	return Permissions{
		AllowSwap:                 true,
		AllowAddLiquidity:         true,
		AllowRemoveLiquidity:      true,
		AllowOpenPosition:         true,
		AllowClosePosition:        true,
		AllowPnlWithdrawal:        true,
		AllowCollateralWithdrawal: true,
		AllowSizeChange:           true,
	}
}

// Custody is the pool's per-token vault and accounting record
// (SPEC_FULL.md section 3).
type Custody struct {
	Pool     string
	Mint     string
	Decimals uint32
	IsStable bool
	IsVirtual bool

	Oracle   OracleParams
	Pricing  PricingParams
	Permissions Permissions
	Fees     Fees
	BorrowRate BorrowRateParams

	Assets        Assets
	CollectedFees FeesStats
	VolumeStats   VolumeStats
	TradeStats    TradeStats

	LongPositions  PositionStats
	ShortPositions PositionStats

	BorrowRateState BorrowRateState
}

// ID returns the stable (pool, mint) key identifying this custody.
func (c *Custody) ID() string {
	return c.Pool + "/" + c.Mint
}

// NewCustody constructs a custody with zeroed accounting state and the
// supplied static configuration.
func NewCustody(pool, mint string, decimals uint32, isStable, isVirtual bool) *Custody {
	return &Custody{
		Pool:            pool,
		Mint:            mint,
		Decimals:        decimals,
		IsStable:        isStable,
		IsVirtual:       isVirtual,
		Permissions:     AllowAll(),
		Assets:          newAssets(),
		CollectedFees:   newFeesStats(),
		VolumeStats:     newVolumeStats(),
		TradeStats:      newTradeStats(),
		LongPositions:   newPositionStats(),
		ShortPositions:  newPositionStats(),
		BorrowRateState: newBorrowRateState(),
	}
}

// Clone returns a deep copy so callers may mutate a working copy before
// persisting it, matching the engine's compute-then-persist discipline
// (SPEC_FULL.md section 7).
func (c *Custody) Clone() *Custody {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Assets = c.Assets.clone()
	clone.CollectedFees = c.CollectedFees.clone()
	clone.VolumeStats = c.VolumeStats.clone()
	clone.TradeStats = c.TradeStats.clone()
	clone.LongPositions = c.LongPositions.clone()
	clone.ShortPositions = c.ShortPositions.clone()
	clone.BorrowRateState = c.BorrowRateState.clone()
	return &clone
}

func (c *Custody) positionStats(side Side) *PositionStats {
	if side == SideLong {
		return &c.LongPositions
	}
	return &c.ShortPositions
}

// Pool is the market composed of multiple custodies with target weight
// ratios (SPEC_FULL.md section 3).
type Pool struct {
	Name          string
	Custodies     []string // custody mints, ordered
	Ratios        []TokenRatios
	AumUsd        *uint256.Int
	AumCalcMode   AumCalcMode
	InceptionTime int64
	Permissions   Permissions
}

// NewPool constructs an empty pool.
func NewPool(name string) *Pool {
	return &Pool{
		Name:        name,
		AumUsd:      new(uint256.Int),
		AumCalcMode: AumCalcModeEMA,
		Permissions: AllowAll(),
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Custodies = append([]string(nil), p.Custodies...)
	clone.Ratios = append([]TokenRatios(nil), p.Ratios...)
	clone.AumUsd = new(uint256.Int).Set(p.AumUsd)
	return &clone
}

// Position is a trader's isolated leveraged exposure (SPEC_FULL.md
// section 3).
type Position struct {
	Owner            crypto.Address
	Pool             string
	Custody          string
	CollateralCustody string

	OpenTime   int64
	UpdateTime int64
	Side       Side

	EntryPrice   *uint256.Int // PRICE
	SizeUsd      *uint256.Int
	BorrowSizeUsd *uint256.Int
	CollateralUsd *uint256.Int

	UnrealizedProfitUsd *uint256.Int
	UnrealizedLossUsd   *uint256.Int

	CumulativeInterestSnapshot *uint256.Int // RATE

	LockedAmount     *uint256.Int
	CollateralAmount *uint256.Int
}

// Key returns the stable (owner, pool, custody, side) identifier a caller's
// engineState implementation may use to key storage.
func (p *Position) Key() string {
	return p.Owner.String() + "/" + p.Pool + "/" + p.Custody + "/" + p.Side.String()
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.EntryPrice = new(uint256.Int).Set(p.EntryPrice)
	clone.SizeUsd = new(uint256.Int).Set(p.SizeUsd)
	clone.BorrowSizeUsd = new(uint256.Int).Set(p.BorrowSizeUsd)
	clone.CollateralUsd = new(uint256.Int).Set(p.CollateralUsd)
	clone.UnrealizedProfitUsd = new(uint256.Int).Set(p.UnrealizedProfitUsd)
	clone.UnrealizedLossUsd = new(uint256.Int).Set(p.UnrealizedLossUsd)
	clone.CumulativeInterestSnapshot = new(uint256.Int).Set(p.CumulativeInterestSnapshot)
	clone.LockedAmount = new(uint256.Int).Set(p.LockedAmount)
	clone.CollateralAmount = new(uint256.Int).Set(p.CollateralAmount)
	return &clone
}

// usesCollateralCustody reports whether side/custody combination requires a
// distinct collateral custody (cross-collateral shorts and virtual trading
// custodies), matching open_position step 3 in SPEC_FULL.md section 4.9.
func usesCollateralCustody(side Side, custody *Custody) bool {
	return side == SideShort || custody.IsVirtual
}
