package oracle_test

import (
	"testing"

	fpmath "PerpEngine/internal/math"
	"PerpEngine/internal/oracle"
)

const solMarket uint16 = 0

func newTestAdapter() (*oracle.Adapter, *oracle.StaticSource) {
	src := oracle.NewStaticSource()
	return oracle.NewAdapter(src, oracle.DefaultGuardConfig()), src
}

func TestAdapter_GetPrice(t *testing.T) {
	adapter, src := newTestAdapter()
	src.Set(solMarket, 150*fpmath.PriceConfig.Scale, 100, 10)

	p, err := adapter.GetPrice(solMarket, 10)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if p.Price != 150*fpmath.PriceConfig.Scale {
		t.Errorf("price = %d, want %d", p.Price, 150*fpmath.PriceConfig.Scale)
	}
	if err := adapter.Validate(p, 10); err != nil {
		t.Errorf("fresh price should validate: %v", err)
	}
}

func TestAdapter_UnknownMarket(t *testing.T) {
	adapter, _ := newTestAdapter()
	if _, err := adapter.GetPrice(99, 10); err == nil {
		t.Error("expected error for unknown market")
	}
}

func TestAdapter_StalePrice(t *testing.T) {
	adapter, src := newTestAdapter()
	src.Set(solMarket, 150*fpmath.PriceConfig.Scale, 100, 10)

	p, err := adapter.GetPrice(solMarket, 10)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}

	// 100 slots later the reading is stale (max age 25).
	if err := adapter.Validate(p, 110); err == nil {
		t.Error("expected staleness rejection")
	}
}

func TestAdapter_WideConfidence(t *testing.T) {
	adapter, src := newTestAdapter()
	price := int64(150 * fpmath.PriceConfig.Scale)

	// Confidence at 5% of price exceeds the 2% default cap.
	src.Set(solMarket, price, uint64(price/20), 10)
	p, _ := adapter.GetPrice(solMarket, 10)
	if err := adapter.Validate(p, 10); err == nil {
		t.Error("expected confidence rejection")
	}

	// Tight confidence passes.
	src.Set(solMarket, price, uint64(price/1000), 11)
	p, _ = adapter.GetPrice(solMarket, 11)
	if err := adapter.Validate(p, 11); err != nil {
		t.Errorf("tight confidence should pass: %v", err)
	}
}

func TestAdapter_InvalidFlag(t *testing.T) {
	adapter, _ := newTestAdapter()
	p := oracle.Price{Price: 100, Confidence: 0, Slot: 10, Valid: false}
	if err := adapter.Validate(p, 10); err == nil {
		t.Error("expected rejection of invalid reading")
	}
}

func TestAdapter_Twap(t *testing.T) {
	adapter, src := newTestAdapter()

	src.Set(solMarket, 100*fpmath.PriceConfig.Scale, 0, 10)
	adapter.GetPrice(solMarket, 10)

	twap, ok := adapter.Twap(solMarket)
	if !ok || twap != 100*fpmath.PriceConfig.Scale {
		t.Fatalf("single-sample twap = %d (ok=%v), want %d", twap, ok, 100*fpmath.PriceConfig.Scale)
	}

	// Hold 100 for 100 slots, then jump to 200; twap stays between.
	src.Set(solMarket, 100*fpmath.PriceConfig.Scale, 0, 110)
	adapter.GetPrice(solMarket, 110)
	src.Set(solMarket, 200*fpmath.PriceConfig.Scale, 0, 120)
	adapter.GetPrice(solMarket, 120)

	twap, _ = adapter.Twap(solMarket)
	if twap < 100*fpmath.PriceConfig.Scale || twap > 200*fpmath.PriceConfig.Scale {
		t.Errorf("twap %d outside sample bounds", twap)
	}
	if twap >= 150*fpmath.PriceConfig.Scale {
		t.Errorf("twap %d should be weighted toward the long-held 100", twap)
	}
}
