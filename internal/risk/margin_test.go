package risk_test

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
	"PerpEngine/internal/risk"
)

func price(dollars float64) int64 { return int64(math.Round(dollars * float64(fpmath.PriceConfig.Scale))) }
func base(units float64) int64    { return int64(math.Round(units * float64(fpmath.BaseConfig.Scale))) }
func quote(dollars float64) int64 { return int64(math.Round(dollars * float64(fpmath.QuoteConfig.Scale))) }

func newViews(oraclePrice int64) map[uint16]risk.MarketView {
	return map[uint16]risk.MarketView{
		0: {Market: market.DefaultMarket(0, "SOL-PERP", oraclePrice), OraclePrice: oraclePrice},
	}
}

func fundedAccount(t *testing.T, collateral int64) *account.Account {
	t.Helper()
	a := account.New(uuid.New(), 0)
	if err := a.Deposit("USDC", collateral, fpmath.MarginConfig.Scale); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return a
}

func TestComputeHealth_FlatAccount(t *testing.T) {
	a := fundedAccount(t, quote(1000))
	h := risk.ComputeHealth(a, risk.Maintenance, newViews(price(150)))

	if h.TotalCollateral != quote(1000) {
		t.Errorf("collateral = %d, want %d", h.TotalCollateral, quote(1000))
	}
	if h.MarginRequirement != 0 || h.TotalNotional != 0 {
		t.Errorf("flat account should have no requirement: %+v", h)
	}
	if !h.Meets() {
		t.Error("flat funded account must be healthy")
	}
}

func TestComputeHealth_LongPosition(t *testing.T) {
	a := fundedAccount(t, quote(1000))
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(base(1), -quote(150)) // long 1 @ $150

	// Oracle at entry: no pnl, notional $150.
	h := risk.ComputeHealth(a, risk.Maintenance, newViews(price(150)))
	if h.UnrealizedPnl != 0 {
		t.Errorf("upnl = %d, want 0", h.UnrealizedPnl)
	}
	if h.TotalNotional != quote(150) {
		t.Errorf("notional = %d, want %d", h.TotalNotional, quote(150))
	}
	// Default maintenance ratio is 5%.
	if want := quote(7.5); h.MarginRequirement != want {
		t.Errorf("maintenance requirement = %d, want %d", h.MarginRequirement, want)
	}

	// Initial ratio is 10%.
	h = risk.ComputeHealth(a, risk.Initial, newViews(price(150)))
	if want := quote(15); h.MarginRequirement != want {
		t.Errorf("initial requirement = %d, want %d", h.MarginRequirement, want)
	}

	// Oracle drop marks the position down.
	h = risk.ComputeHealth(a, risk.Maintenance, newViews(price(100)))
	if h.UnrealizedPnl != -quote(50) {
		t.Errorf("upnl = %d, want %d", h.UnrealizedPnl, -quote(50))
	}
	if h.TotalCollateral != quote(950) {
		t.Errorf("collateral = %d, want %d", h.TotalCollateral, quote(950))
	}
}

func TestComputeHealth_WeightedSpot(t *testing.T) {
	a := account.New(uuid.New(), 0)
	// 80% weight: $1000 counts as $800.
	if err := a.Deposit("wSOL", quote(1000), 8_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h := risk.ComputeHealth(a, risk.Maintenance, newViews(price(150)))
	if h.TotalCollateral != quote(800) {
		t.Errorf("weighted collateral = %d, want %d", h.TotalCollateral, quote(800))
	}
}

func TestComputeHealth_NegativeBalanceUnweighted(t *testing.T) {
	a := fundedAccount(t, quote(100))
	if err := a.AdjustSpot("USDC", -quote(300)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	h := risk.ComputeHealth(a, risk.Maintenance, newViews(price(150)))
	if h.TotalCollateral != -quote(200) {
		t.Errorf("deficit collateral = %d, want %d", h.TotalCollateral, -quote(200))
	}
}

func TestCanBeLiquidated(t *testing.T) {
	a := fundedAccount(t, quote(100))
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(base(10), -quote(1500)) // long 10 @ $150, ~15x

	if risk.CanBeLiquidated(a, newViews(price(150))) {
		t.Error("position at entry with 6.7%% margin ratio should survive 5%% maintenance")
	}

	// Oracle $145: upnl -$50, collateral $50, maintenance 5% of $1450 = $72.5.
	if !risk.CanBeLiquidated(a, newViews(price(145))) {
		t.Error("underwater position must be liquidatable")
	}

	// Flat accounts are never liquidatable, even with a deficit.
	flat := account.New(uuid.New(), 0)
	flat.Deposit("USDC", quote(1), fpmath.MarginConfig.Scale)
	flat.AdjustSpot("USDC", -quote(10))
	if risk.CanBeLiquidated(flat, newViews(price(150))) {
		t.Error("flat account must not be liquidatable")
	}
}
