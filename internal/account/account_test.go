package account_test

import (
	"testing"

	"github.com/google/uuid"

	"PerpEngine/internal/account"
	"PerpEngine/internal/book"
	fpmath "PerpEngine/internal/math"
)

func price(dollars int64) int64 { return dollars * fpmath.PriceConfig.Scale }
func base(units float64) int64  { return int64(units * float64(fpmath.BaseConfig.Scale)) }
func quote(dollars int64) int64 { return dollars * fpmath.QuoteConfig.Scale }

func TestAccount_OrderSlots(t *testing.T) {
	a := account.New(uuid.New(), 0)

	for i := 0; i < account.MaxOrders; i++ {
		o := &book.Order{OrderID: a.NextOrderID(), BaseAssetAmount: 1000}
		if err := a.AddOrder(o); err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
	}
	if err := a.AddOrder(&book.Order{OrderID: a.NextOrderID()}); err != account.ErrMaxOrders {
		t.Errorf("expected ErrMaxOrders, got %v", err)
	}

	// Freeing a slot makes room again.
	a.RemoveOrder(1)
	if err := a.AddOrder(&book.Order{OrderID: a.NextOrderID()}); err != nil {
		t.Errorf("slot should be free after remove: %v", err)
	}
}

func TestAccount_OrderIDsMonotonic(t *testing.T) {
	a := account.New(uuid.New(), 0)
	prev := uint32(0)
	for i := 0; i < 10; i++ {
		id := a.NextOrderID()
		if id <= prev {
			t.Fatalf("order ids must be monotonic: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestAccount_PositionSlots(t *testing.T) {
	a := account.New(uuid.New(), 0)

	for i := 0; i < account.MaxPositions; i++ {
		if _, err := a.GetOrCreatePosition(uint16(i)); err != nil {
			t.Fatalf("market %d: %v", i, err)
		}
	}
	if _, err := a.GetOrCreatePosition(99); err != account.ErrMaxPositions {
		t.Errorf("expected ErrMaxPositions, got %v", err)
	}

	// Existing market does not need a new slot.
	if _, err := a.GetOrCreatePosition(0); err != nil {
		t.Errorf("existing market: %v", err)
	}
}

func TestAccount_DepositAndAdjust(t *testing.T) {
	a := account.New(uuid.New(), 0)

	if err := a.Deposit("USDC", quote(1000), fpmath.MarginConfig.Scale); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := a.SpotBalanceOf("USDC"); got != quote(1000) {
		t.Errorf("balance = %d, want %d", got, quote(1000))
	}

	if err := a.AdjustSpot("USDC", -quote(100)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got := a.SpotBalanceOf("USDC"); got != quote(900) {
		t.Errorf("balance after debit = %d, want %d", got, quote(900))
	}

	if err := a.Deposit("USDC", 0, fpmath.MarginConfig.Scale); err == nil {
		t.Error("zero deposit should be rejected")
	}
	if err := a.AdjustSpot("SOL", -1); err == nil {
		t.Error("debiting an unheld asset should fail")
	}
}

func TestRegistry_SubAccountLimits(t *testing.T) {
	r := account.NewRegistry()
	owner := uuid.New()

	if _, err := r.Create(owner, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create(owner, 0); err != account.ErrInvalidSubAccount {
		t.Errorf("duplicate sub-account: expected ErrInvalidSubAccount, got %v", err)
	}
	if _, err := r.Create(owner, account.MaxSubAccounts); err != account.ErrInvalidSubAccount {
		t.Errorf("out-of-range sub-account: expected ErrInvalidSubAccount, got %v", err)
	}
	if _, err := r.Get(owner, 3); err != account.ErrAccountNotFound {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPosition_OpenIncrease(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	// Buy 1.0 @ $150: quote flow is -150.
	realized := pos.ApplyDelta(base(1), -quote(150))
	if realized != 0 {
		t.Errorf("opening realizes nothing, got %d", realized)
	}
	if pos.BaseAssetAmount != base(1) || pos.QuoteEntryAmount != -quote(150) {
		t.Errorf("unexpected position: base=%d entry=%d", pos.BaseAssetAmount, pos.QuoteEntryAmount)
	}
	if pos.EntryPrice() != price(150) {
		t.Errorf("entry price = %d, want %d", pos.EntryPrice(), price(150))
	}

	// Buy 1.0 more @ $160: avg entry $155.
	pos.ApplyDelta(base(1), -quote(160))
	if pos.EntryPrice() != price(155) {
		t.Errorf("avg entry = %d, want %d", pos.EntryPrice(), price(155))
	}
}

func TestPosition_ReduceRealizesPnl(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	// Long 2.0 @ $150, sell 1.0 @ $160: +$10 realized.
	pos.ApplyDelta(base(2), -quote(300))
	realized := pos.ApplyDelta(-base(1), quote(160))

	if realized != quote(10) {
		t.Errorf("realized = %d, want %d", realized, quote(10))
	}
	if pos.BaseAssetAmount != base(1) {
		t.Errorf("remaining base = %d, want %d", pos.BaseAssetAmount, base(1))
	}
	if pos.QuoteEntryAmount != -quote(150) {
		t.Errorf("remaining entry = %d, want %d", pos.QuoteEntryAmount, -quote(150))
	}
	if pos.SettledPerpPnl != quote(10) {
		t.Errorf("settled pnl = %d, want %d", pos.SettledPerpPnl, quote(10))
	}
}

func TestPosition_FullCloseZeroesBasis(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	pos.ApplyDelta(base(1), -quote(150))
	realized := pos.ApplyDelta(-base(1), quote(140))

	if realized != -quote(10) {
		t.Errorf("realized = %d, want %d", realized, -quote(10))
	}
	if !pos.IsFlat() || pos.QuoteEntryAmount != 0 || pos.QuoteBreakEvenAmount != 0 {
		t.Errorf("close should zero the basis: %+v", pos)
	}
}

func TestPosition_FlipSplitsFill(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	// Long 1.0 @ $150, then sell 2.0 @ $160: close +$10, open short 1.0 @ $160.
	pos.ApplyDelta(base(1), -quote(150))
	realized := pos.ApplyDelta(-base(2), quote(320))

	if realized != quote(10) {
		t.Errorf("realized = %d, want %d", realized, quote(10))
	}
	if pos.BaseAssetAmount != -base(1) {
		t.Errorf("flipped base = %d, want %d", pos.BaseAssetAmount, -base(1))
	}
	if pos.QuoteEntryAmount != quote(160) {
		t.Errorf("new entry = %d, want %d", pos.QuoteEntryAmount, quote(160))
	}
}

func TestPosition_UnrealizedPnl(t *testing.T) {
	a := account.New(uuid.New(), 0)
	pos, _ := a.GetOrCreatePosition(0)

	pos.ApplyDelta(base(1), -quote(150))
	if got := pos.UnrealizedPnl(price(160)); got != quote(10) {
		t.Errorf("long upnl = %d, want %d", got, quote(10))
	}
	if got := pos.UnrealizedPnl(price(140)); got != -quote(10) {
		t.Errorf("long downside upnl = %d, want %d", got, -quote(10))
	}

	short, _ := a.GetOrCreatePosition(1)
	short.ApplyDelta(-base(1), quote(150))
	if got := short.UnrealizedPnl(price(140)); got != quote(10) {
		t.Errorf("short upnl = %d, want %d", got, quote(10))
	}
}
