package market

import (
	"fmt"

	fpmath "PerpEngine/internal/math"
)

// ContractTier controls how much fill-price divergence from the oracle TWAP
// a market tolerates. Higher (safer) tiers get tighter bands.
type ContractTier int32

const (
	TierA ContractTier = iota
	TierB
	TierC
	TierSpeculative
)

// MaxOracleDivergencePct returns the tier's tolerated divergence between a
// fill price and the 5-minute oracle TWAP (pct scale).
func (t ContractTier) MaxOracleDivergencePct() int64 {
	switch t {
	case TierA:
		return 100_000 // 10%
	case TierB:
		return 200_000 // 20%
	case TierC:
		return 500_000 // 50%
	default:
		return 1_000_000 // 100%
	}
}

func (t ContractTier) String() string {
	switch t {
	case TierA:
		return "A"
	case TierB:
		return "B"
	case TierC:
		return "C"
	case TierSpeculative:
		return "Speculative"
	default:
		return "Unknown"
	}
}

// Status gates what operations a market accepts.
type Status int32

const (
	StatusActive Status = iota
	StatusReduceOnly
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusReduceOnly:
		return "ReduceOnly"
	case StatusPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Market is one perp market's static configuration plus its AMM.
type Market struct {
	Index        uint16
	Symbol       string
	OracleSource string

	AMM *AMM

	TickSize     int64 // price scale
	StepSize     int64 // base scale
	MinOrderSize int64 // base scale

	ContractTier           ContractTier
	MarginRatioInitial     int64 // margin scale
	MarginRatioMaintenance int64 // margin scale
	MaxSpread              int64 // pct scale

	// SettleBandPct bounds |settle price - oracle| / oracle for PnL settlement.
	SettleBandPct int64 // pct scale

	Status Status
}

// ValidateMarketParams checks that market parameters are within valid
// ranges: maintenance > 0, initial > maintenance, initial < full margin,
// tick/step/min sizes positive.
func ValidateMarketParams(m *Market) error {
	if m.MarginRatioMaintenance <= 0 {
		return fmt.Errorf("maintenance margin ratio must be > 0, got %d", m.MarginRatioMaintenance)
	}
	if m.MarginRatioInitial <= m.MarginRatioMaintenance {
		return fmt.Errorf("initial margin ratio (%d) must be > maintenance (%d)",
			m.MarginRatioInitial, m.MarginRatioMaintenance)
	}
	if m.MarginRatioInitial >= fpmath.MarginConfig.Scale {
		return fmt.Errorf("initial margin ratio must be < %d, got %d",
			fpmath.MarginConfig.Scale, m.MarginRatioInitial)
	}
	if m.TickSize <= 0 {
		return fmt.Errorf("tick_size must be > 0, got %d", m.TickSize)
	}
	if m.StepSize <= 0 {
		return fmt.Errorf("step_size must be > 0, got %d", m.StepSize)
	}
	if m.MinOrderSize <= 0 {
		return fmt.Errorf("min_order_size must be > 0, got %d", m.MinOrderSize)
	}
	if m.MinOrderSize%m.StepSize != 0 {
		return fmt.Errorf("min_order_size (%d) must be a step_size (%d) multiple",
			m.MinOrderSize, m.StepSize)
	}
	if m.AMM == nil {
		return fmt.Errorf("market %d has no AMM", m.Index)
	}
	return nil
}

// DefaultMarket builds a market centered on the given oracle price with
// conventional risk parameters (10x initial leverage, tier A).
func DefaultMarket(index uint16, symbol string, oraclePrice int64) *Market {
	return &Market{
		Index:                  index,
		Symbol:                 symbol,
		OracleSource:           "static",
		AMM:                    NewAMM(oraclePrice, 1000*fpmath.BaseConfig.Scale, defaultFundingPeriod),
		TickSize:               fpmath.PriceConfig.Scale / 10_000, // 0.0001
		StepSize:               fpmath.BaseConfig.Scale / 10_000,  // 0.0001
		MinOrderSize:           fpmath.BaseConfig.Scale / 10_000,
		ContractTier:           TierA,
		MarginRatioInitial:     1_000, // 10%
		MarginRatioMaintenance: 500,   // 5%
		MaxSpread:              100_000,
		SettleBandPct:          25_000, // 2.5%
		Status:                 StatusActive,
	}
}
