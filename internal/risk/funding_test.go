package risk_test

import (
	"testing"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/market"
	fpmath "PerpEngine/internal/math"
	"PerpEngine/internal/risk"
)

func TestComputeFundingUpdate_PremiumSplitAcrossDay(t *testing.T) {
	amm := market.NewAMM(price(150.15), 1000*fpmath.BaseConfig.Scale, 3600)

	upd := risk.ComputeFundingUpdate(0, amm, price(150), 1000)

	// Mark 0.1% above oracle, 24 hourly periods: 0.1% / 24 per period.
	want := fpmath.MulDiv(price(150.15)-price(150), fpmath.RateConfig.Scale, price(150), fpmath.RoundHalfEven) / 24
	if upd.Rate != want {
		t.Errorf("rate = %d, want %d", upd.Rate, want)
	}
	if upd.Rate <= 0 {
		t.Error("mark above oracle must produce a positive rate (longs pay)")
	}
	if upd.OracleTwap != price(150) || upd.Ts != 1000 {
		t.Errorf("unexpected update metadata: %+v", upd)
	}
}

func TestComputeFundingUpdate_Clamped(t *testing.T) {
	// Mark 50% above oracle would exceed the per-period cap.
	amm := market.NewAMM(price(225), 1000*fpmath.BaseConfig.Scale, 86_400)

	upd := risk.ComputeFundingUpdate(0, amm, price(150), 0)
	if upd.Rate != fpmath.DefaultMaxFundingRate {
		t.Errorf("rate = %d, want clamp at %d", upd.Rate, fpmath.DefaultMaxFundingRate)
	}
}

func TestSettleFunding_LongPaysPositiveRate(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(base(10), -quote(1500))

	// 0.1% rate on $1500 notional: long pays $1.50.
	rate := fpmath.RateConfig.Scale / 1000
	paid := risk.SettleFunding(pos, rate, price(150), 5000)

	if paid != quote(1.5) {
		t.Errorf("payment = %d, want %d", paid, quote(1.5))
	}
	if pos.SettledPerpPnl != -quote(1.5) {
		t.Errorf("settled pnl = %d, want %d", pos.SettledPerpPnl, -quote(1.5))
	}
	if pos.LastFundingTs != 5000 {
		t.Errorf("funding ts = %d, want 5000", pos.LastFundingTs)
	}
}

func TestSettleFunding_ShortReceivesPositiveRate(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)
	pos.ApplyDelta(-base(10), quote(1500))

	rate := fpmath.RateConfig.Scale / 1000
	paid := risk.SettleFunding(pos, rate, price(150), 5000)

	if paid != -quote(1.5) {
		t.Errorf("payment = %d, want %d", paid, -quote(1.5))
	}
	if pos.SettledPerpPnl != quote(1.5) {
		t.Errorf("settled pnl = %d, want %d", pos.SettledPerpPnl, quote(1.5))
	}
}

func TestSettleFunding_FlatOnlyStamps(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	paid := risk.SettleFunding(pos, fpmath.RateConfig.Scale/1000, price(150), 7000)
	if paid != 0 || pos.SettledPerpPnl != 0 {
		t.Errorf("flat position must not pay: paid=%d pnl=%d", paid, pos.SettledPerpPnl)
	}
	if pos.LastFundingTs != 7000 {
		t.Errorf("funding ts = %d, want 7000", pos.LastFundingTs)
	}
}
