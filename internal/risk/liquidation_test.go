package risk_test

import (
	"testing"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/risk"
)

func TestPlanLiquidation_FullPosition(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(base(2), -quote(300)) // long 2 @ $150

	cfg := risk.LiquidationConfig{LiquidatorFeePct: 10_000, InsuranceFeePct: 5_000}
	tr, err := risk.PlanLiquidation(pos, 0, price(140), base(0.0001), cfg)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if tr.BaseTransfer != base(2) {
		t.Errorf("base transfer = %d, want %d", tr.BaseTransfer, base(2))
	}
	if tr.QuoteTransfer != quote(280) {
		t.Errorf("quote transfer = %d, want %d", tr.QuoteTransfer, quote(280))
	}
	if tr.LiquidatorFee != quote(2.8) {
		t.Errorf("liquidator fee = %d, want %d", tr.LiquidatorFee, quote(2.8))
	}
	if tr.InsuranceFee != quote(1.4) {
		t.Errorf("insurance fee = %d, want %d", tr.InsuranceFee, quote(1.4))
	}
}

func TestPlanLiquidation_PartialSnapsToStep(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(-base(5), quote(750)) // short 5 @ $150

	step := base(0.1)
	tr, err := risk.PlanLiquidation(pos, base(1.25), price(150), step, risk.DefaultLiquidationConfig())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if tr.BaseTransfer != -base(1.2) {
		t.Errorf("snapped transfer = %d, want %d", tr.BaseTransfer, -base(1.2))
	}

	if _, err := risk.PlanLiquidation(pos, step-1, price(150), step, risk.DefaultLiquidationConfig()); err == nil {
		t.Error("sub-step amount should be rejected")
	}
}

func TestPlanLiquidation_FlatPosition(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	if _, err := risk.PlanLiquidation(pos, 0, price(150), base(0.1), risk.DefaultLiquidationConfig()); err == nil {
		t.Error("flat position should be rejected")
	}
}

func TestApplyTransfer_PositionInheritance(t *testing.T) {
	va := account.New(uuid.New(), 0)
	victim, _ := va.GetOrCreatePosition(0)
	victim.ApplyDelta(base(2), -quote(300)) // long 2 @ $150

	la := account.New(uuid.New(), 0)
	liquidator, _ := la.GetOrCreatePosition(0)

	tr, err := risk.PlanLiquidation(victim, 0, price(140), base(0.1), risk.DefaultLiquidationConfig())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	risk.ApplyTransfer(victim, liquidator, tr)

	// Victim exits at oracle, realizing the $20 loss.
	if !victim.IsFlat() {
		t.Errorf("victim base = %d, want flat", victim.BaseAssetAmount)
	}
	if victim.SettledPerpPnl != -quote(20) {
		t.Errorf("victim settled pnl = %d, want %d", victim.SettledPerpPnl, -quote(20))
	}

	// Liquidator inherits the long at the oracle price.
	if liquidator.BaseAssetAmount != base(2) {
		t.Errorf("liquidator base = %d, want %d", liquidator.BaseAssetAmount, base(2))
	}
	if liquidator.EntryPrice() != price(140) {
		t.Errorf("liquidator entry = %d, want %d", liquidator.EntryPrice(), price(140))
	}

	// Base and quote are conserved across the transfer.
	if victim.BaseAssetAmount+liquidator.BaseAssetAmount != base(2) {
		t.Error("base not conserved")
	}
}

func TestApplyTransfer_ShortSide(t *testing.T) {
	va := account.New(uuid.New(), 0)
	victim, _ := va.GetOrCreatePosition(0)
	victim.ApplyDelta(-base(1), quote(150)) // short 1 @ $150

	la := account.New(uuid.New(), 0)
	liquidator, _ := la.GetOrCreatePosition(0)

	tr, err := risk.PlanLiquidation(victim, 0, price(160), base(0.1), risk.DefaultLiquidationConfig())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	risk.ApplyTransfer(victim, liquidator, tr)

	if !victim.IsFlat() || victim.SettledPerpPnl != -quote(10) {
		t.Errorf("victim should be flat with -$10 realized: base=%d pnl=%d",
			victim.BaseAssetAmount, victim.SettledPerpPnl)
	}
	if liquidator.BaseAssetAmount != -base(1) {
		t.Errorf("liquidator base = %d, want %d", liquidator.BaseAssetAmount, -base(1))
	}
	if liquidator.EntryPrice() != price(160) {
		t.Errorf("liquidator entry = %d, want %d", liquidator.EntryPrice(), price(160))
	}
}

func TestInsuranceFund(t *testing.T) {
	f := risk.NewInsuranceFund(quote(100))

	f.Credit(quote(50))
	if f.Balance() != quote(150) {
		t.Errorf("balance = %d, want %d", f.Balance(), quote(150))
	}

	if got := f.CoverDeficit(quote(200)); got != quote(150) {
		t.Errorf("covered = %d, want clamp to %d", got, quote(150))
	}
	if f.Balance() != 0 {
		t.Errorf("balance after drain = %d, want 0", f.Balance())
	}

	f.Credit(-quote(10))
	if f.Balance() != 0 {
		t.Error("negative credit must be ignored")
	}
}
