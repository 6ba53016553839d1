package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the engine's runtime configuration: per-pool policy defaults
// that seed new custodies, plus engine-level feature toggles.
type Config struct {
	Environment string `toml:"Environment"`
	LogLevel    string `toml:"LogLevel"`

	DefaultPricing    PricingDefaults    `toml:"pricing"`
	DefaultFees       FeesDefaults       `toml:"fees"`
	DefaultBorrowRate BorrowRateDefaults `toml:"borrow_rate"`
	Pauses            PauseDefaults      `toml:"pauses"`
}

// PricingDefaults seeds PricingParams for a newly created custody.
type PricingDefaults struct {
	TradeSpreadLongBps  uint64 `toml:"TradeSpreadLongBps"`
	TradeSpreadShortBps uint64 `toml:"TradeSpreadShortBps"`
	SwapSpreadBps       uint64 `toml:"SwapSpreadBps"`
	MaxLeverageBps      uint64 `toml:"MaxLeverageBps"`
	MaxPayoffMultBps    uint64 `toml:"MaxPayoffMultBps"`
	MaxUtilizationBps   uint64 `toml:"MaxUtilizationBps"`
}

// FeesDefaults seeds Fees for a newly created custody.
type FeesDefaults struct {
	Mode                  string `toml:"Mode"`
	OpenPositionFeeBps    uint64 `toml:"OpenPositionFeeBps"`
	ClosePositionFeeBps   uint64 `toml:"ClosePositionFeeBps"`
	LiquidationFeeBps     uint64 `toml:"LiquidationFeeBps"`
	UtilizationMultBps    uint64 `toml:"UtilizationMultBps"`
	RatioMultBps          uint64 `toml:"RatioMultBps"`
	OptimalFeeBps         uint64 `toml:"OptimalFeeBps"`
	MaxFeeBps             uint64 `toml:"MaxFeeBps"`
	ProtocolShareBps      uint64 `toml:"ProtocolShareBps"`
}

// BorrowRateDefaults seeds BorrowRateParams for a newly created custody.
type BorrowRateDefaults struct {
	BaseRate           uint64 `toml:"BaseRate"`
	Slope1             uint64 `toml:"Slope1"`
	Slope2             uint64 `toml:"Slope2"`
	OptimalUtilization uint64 `toml:"OptimalUtilization"`
}

// PauseDefaults mirrors native/common's pause-guard switches at startup.
type PauseDefaults struct {
	OpenPosition      bool `toml:"OpenPosition"`
	ClosePosition     bool `toml:"ClosePosition"`
	CollateralChange  bool `toml:"CollateralChange"`
}

// Load loads the engine configuration from path, synthesizing and
// persisting sane defaults if the file does not yet exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault creates and persists a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Environment: "dev",
		LogLevel:    "info",
		DefaultPricing: PricingDefaults{
			TradeSpreadLongBps:  10,
			TradeSpreadShortBps: 10,
			SwapSpreadBps:       10,
			MaxLeverageBps:      100_000,
			MaxPayoffMultBps:    30_000,
			MaxUtilizationBps:   9_000,
		},
		DefaultFees: FeesDefaults{
			Mode:                "optimal",
			OpenPositionFeeBps:  100,
			ClosePositionFeeBps: 100,
			LiquidationFeeBps:   50,
			UtilizationMultBps:  2_000,
			RatioMultBps:        20_000,
			OptimalFeeBps:       20,
			MaxFeeBps:           80,
			ProtocolShareBps:    2_000,
		},
		DefaultBorrowRate: BorrowRateDefaults{
			BaseRate:           0,
			Slope1:             1_000_000,
			Slope2:             10_000_000,
			OptimalUtilization: 800_000_000,
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
