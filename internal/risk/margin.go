package risk

import (
	"math"

	"PerpEngine/internal/account"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
)

// MarginKind selects which margin ratio a health computation uses. Initial
// gates new risk; maintenance gates liquidation.
type MarginKind int32

const (
	Initial MarginKind = iota
	Maintenance
)

// MarketView is the per-market input to a health computation: the market's
// risk parameters plus a validated oracle price.
type MarketView struct {
	Market      *market.Market
	OraclePrice int64
}

// Health is a cross-margin snapshot of one account. All quote-scale fields
// are signed; MarginRatio is margin scale (10000 = 100%).
type Health struct {
	TotalCollateral   int64
	MarginRequirement int64
	TotalNotional     int64
	UnrealizedPnl     int64
	MarginRatio       int64
}

// Meets reports whether collateral covers the requirement.
func (h Health) Meets() bool { return h.TotalCollateral >= h.MarginRequirement }

// ComputeHealth values the account across every market it has exposure in.
// Spot collateral is weighted when positive and counted in full when
// negative; perp exposure contributes unrealized plus settled PnL to
// collateral and oracle notional times the margin ratio to the requirement.
// Markets missing from views contribute nothing, so callers must pass a view
// for every market the account holds a position in.
func ComputeHealth(a *account.Account, kind MarginKind, views map[uint16]MarketView) Health {
	var h Health

	for _, sb := range a.SpotBalances() {
		if sb.Balance >= 0 {
			h.TotalCollateral += fpmath.MulDiv(sb.Balance, sb.Weight, fpmath.MarginConfig.Scale, fpmath.RoundDown)
		} else {
			h.TotalCollateral += sb.Balance
		}
	}

	for _, pos := range a.Positions() {
		view, ok := views[pos.MarketIndex]
		if !ok {
			continue
		}

		upnl := pos.UnrealizedPnl(view.OraclePrice)
		h.UnrealizedPnl += upnl
		h.TotalCollateral += upnl + pos.SettledPerpPnl

		notional := pos.Notional(view.OraclePrice)
		h.TotalNotional += notional

		ratio := view.Market.MarginRatioMaintenance
		if kind == Initial {
			ratio = view.Market.MarginRatioInitial
		}
		h.MarginRequirement += fpmath.MulDiv(notional, ratio, fpmath.MarginConfig.Scale, fpmath.RoundUp)
	}

	if h.TotalNotional > 0 {
		h.MarginRatio = fpmath.MulDiv(h.TotalCollateral, fpmath.MarginConfig.Scale, h.TotalNotional, fpmath.RoundDown)
	} else {
		h.MarginRatio = math.MaxInt64
	}
	return h
}

// CanBeLiquidated reports whether the account fails its maintenance
// requirement while carrying exposure.
func CanBeLiquidated(a *account.Account, views map[uint16]MarketView) bool {
	h := ComputeHealth(a, Maintenance, views)
	return h.TotalNotional > 0 && !h.Meets()
}
