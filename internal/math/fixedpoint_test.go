package math_test

import (
	"testing"

	fpmath "PerpEngine/internal/math"
)

func TestMulDiv_Rounding(t *testing.T) {
	cases := []struct {
		name    string
		a, b, d int64
		mode    fpmath.RoundingMode
		want    int64
	}{
		{"exact", 10, 10, 4, fpmath.RoundHalfEven, 25},
		{"half_even_down", 5, 1, 2, fpmath.RoundHalfEven, 2},
		{"half_even_up", 7, 1, 2, fpmath.RoundHalfEven, 4},
		{"round_down", 7, 1, 2, fpmath.RoundDown, 3},
		{"round_up", 7, 1, 3, fpmath.RoundUp, 3},
		{"negative_trunc", -7, 1, 2, fpmath.RoundDown, -3},
		{"negative_up", -7, 1, 2, fpmath.RoundUp, -4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fpmath.MulDiv(tc.a, tc.b, tc.d, tc.mode)
			if got != tc.want {
				t.Errorf("MulDiv(%d, %d, %d) = %d, want %d", tc.a, tc.b, tc.d, got, tc.want)
			}
		})
	}
}

func TestBaseToQuote(t *testing.T) {
	// 1.0 base at $150 -> 150 quote units
	base := fpmath.BaseConfig.Scale
	price := 150 * fpmath.PriceConfig.Scale

	quote := fpmath.BaseToQuote(base, price, fpmath.RoundHalfEven)
	if quote != 150*fpmath.QuoteConfig.Scale {
		t.Errorf("BaseToQuote = %d, want %d", quote, 150*fpmath.QuoteConfig.Scale)
	}
}

func TestQuoteToBase_RoundTrip(t *testing.T) {
	price := 150 * fpmath.PriceConfig.Scale
	quote := 75 * fpmath.QuoteConfig.Scale // $75 at $150 -> 0.5 base

	base := fpmath.QuoteToBase(quote, price, fpmath.RoundHalfEven)
	if base != fpmath.BaseConfig.Scale/2 {
		t.Errorf("QuoteToBase = %d, want %d", base, fpmath.BaseConfig.Scale/2)
	}
}

func TestSnapToTick(t *testing.T) {
	tick := int64(100)

	if got := fpmath.SnapToTick(1050, tick, true); got != 1000 {
		t.Errorf("buy snap: got %d, want 1000", got)
	}
	if got := fpmath.SnapToTick(1050, tick, false); got != 1100 {
		t.Errorf("sell snap: got %d, want 1100", got)
	}
	if got := fpmath.SnapToTick(1000, tick, true); got != 1000 {
		t.Errorf("aligned price should not move, got %d", got)
	}
}

func TestInterpolate_Endpoints(t *testing.T) {
	if got := fpmath.Interpolate(100, 200, -5, 10); got != 100 {
		t.Errorf("before start: got %d, want 100", got)
	}
	if got := fpmath.Interpolate(100, 200, 10, 10); got != 200 {
		t.Errorf("at end: got %d, want 200", got)
	}
	if got := fpmath.Interpolate(100, 200, 15, 10); got != 200 {
		t.Errorf("past end: got %d, want 200", got)
	}
	if got := fpmath.Interpolate(100, 200, 5, 10); got != 150 {
		t.Errorf("midpoint: got %d, want 150", got)
	}
}

func TestInterpolate_Monotonic(t *testing.T) {
	prev := int64(0)
	for slot := int64(0); slot <= 20; slot++ {
		p := fpmath.Interpolate(150_000_000, 153_000_000, slot, 20)
		if p < prev {
			t.Fatalf("interpolation not monotonic at slot %d: %d < %d", slot, p, prev)
		}
		if p < 150_000_000 || p > 153_000_000 {
			t.Fatalf("interpolation out of bounds at slot %d: %d", slot, p)
		}
		prev = p
	}
}

func TestComputeAvgEntryPrice(t *testing.T) {
	// 1.0 @ 100 plus 1.0 @ 200 -> avg 150
	avg := fpmath.ComputeAvgEntryPrice(
		fpmath.BaseConfig.Scale, 100*fpmath.PriceConfig.Scale,
		fpmath.BaseConfig.Scale, 200*fpmath.PriceConfig.Scale,
	)
	if avg != 150*fpmath.PriceConfig.Scale {
		t.Errorf("avg entry = %d, want %d", avg, 150*fpmath.PriceConfig.Scale)
	}

	// From flat, avg is the fill price
	avg = fpmath.ComputeAvgEntryPrice(0, 0, fpmath.BaseConfig.Scale, 42)
	if avg != 42 {
		t.Errorf("avg entry from flat = %d, want 42", avg)
	}
}

func TestComputeFundingRate(t *testing.T) {
	oracle := 150 * fpmath.PriceConfig.Scale

	// Mark 1% above oracle, 24 periods/day -> rate = 1%/24
	mark := oracle + oracle/100
	rate := fpmath.ComputeFundingRate(mark, oracle, 24, 0)
	want := fpmath.RateScale / 100 / 24
	if fpmath.AbsInt64(rate-int64(want)) > 1 {
		t.Errorf("funding rate = %d, want ~%d", rate, want)
	}

	// Mark below oracle -> negative rate
	rate = fpmath.ComputeFundingRate(oracle-oracle/100, oracle, 24, 0)
	if rate >= 0 {
		t.Errorf("expected negative rate, got %d", rate)
	}

	// Clamp
	rate = fpmath.ComputeFundingRate(2*oracle, oracle, 24, fpmath.DefaultMaxFundingRate)
	if rate != fpmath.DefaultMaxFundingRate {
		t.Errorf("expected clamped rate %d, got %d", fpmath.DefaultMaxFundingRate, rate)
	}
}

func TestComputeFundingPayment_Signs(t *testing.T) {
	oracle := 150 * fpmath.PriceConfig.Scale
	rate := int64(fpmath.RateScale / 1000) // 0.1%
	base := fpmath.BaseConfig.Scale        // 1.0 long

	// Long with positive rate pays
	payment := fpmath.ComputeFundingPayment(rate, base, oracle)
	if payment <= 0 {
		t.Errorf("long should pay with positive rate, got %d", payment)
	}
	// 0.1% of $150 notional = $0.15
	if payment != 150_000 {
		t.Errorf("payment = %d, want 150000", payment)
	}

	// Short with positive rate receives
	payment = fpmath.ComputeFundingPayment(rate, -base, oracle)
	if payment >= 0 {
		t.Errorf("short should receive with positive rate, got %d", payment)
	}

	// Flat pays nothing
	if p := fpmath.ComputeFundingPayment(rate, 0, oracle); p != 0 {
		t.Errorf("flat position payment = %d, want 0", p)
	}
}
