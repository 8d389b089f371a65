package risk_test

import (
	"testing"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/risk"
)

func TestCheckSettleBand(t *testing.T) {
	band := int64(25_000) // 2.5%

	if err := risk.CheckSettleBand(price(150), price(151), band); err != nil {
		t.Errorf("0.67%% divergence should pass: %v", err)
	}
	if err := risk.CheckSettleBand(price(150), price(160), band); err == nil {
		t.Error("6.7% divergence should fail")
	}
	if err := risk.CheckSettleBand(0, price(150), band); err == nil {
		t.Error("zero oracle should fail")
	}
}

func TestApplySettlement_RealizesAndRebases(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(base(1), -quote(150))

	settled := risk.ApplySettlement(pos, price(160))
	if settled != quote(10) {
		t.Errorf("settled = %d, want %d", settled, quote(10))
	}
	if pos.SettledPerpPnl != quote(10) {
		t.Errorf("settled pnl = %d, want %d", pos.SettledPerpPnl, quote(10))
	}
	if got := pos.UnrealizedPnl(price(160)); got != 0 {
		t.Errorf("upnl after settlement = %d, want 0", got)
	}
	if pos.EntryPrice() != price(160) {
		t.Errorf("rebased entry = %d, want %d", pos.EntryPrice(), price(160))
	}

	// Nothing left to settle at the same price.
	if again := risk.ApplySettlement(pos, price(160)); again != 0 {
		t.Errorf("second settlement = %d, want 0", again)
	}
}

func TestApplySettlement_ShortLoss(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(-base(2), quote(300)) // short 2 @ $150

	settled := risk.ApplySettlement(pos, price(160))
	if settled != -quote(20) {
		t.Errorf("settled = %d, want %d", settled, -quote(20))
	}
	if got := pos.UnrealizedPnl(price(160)); got != 0 {
		t.Errorf("upnl after settlement = %d, want 0", got)
	}
}
