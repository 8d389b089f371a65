package oracle

import (
	"fmt"
	"sync"

	fpmath "PerpEngine/internal/math"
)

// Price is a normalized oracle reading for one market.
type Price struct {
	Price      int64  // price scale
	Confidence uint64 // same scale as price
	Slot       uint64
	Valid      bool
}

// Source produces oracle readings. Implementations sit outside the engine
// (price-feed ingestion is not the core's concern).
type Source interface {
	Read(marketIndex uint16) (Price, error)
}

// StaticSource is a settable in-memory source used by tests and local runs.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[uint16]Price
}

func NewStaticSource() *StaticSource {
	return &StaticSource{prices: make(map[uint16]Price)}
}

// Set publishes a new reading for a market.
func (s *StaticSource) Set(marketIndex uint16, price int64, confidence uint64, slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[marketIndex] = Price{Price: price, Confidence: confidence, Slot: slot, Valid: true}
}

func (s *StaticSource) Read(marketIndex uint16) (Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[marketIndex]
	if !ok {
		return Price{}, fmt.Errorf("no oracle price for market %d", marketIndex)
	}
	return p, nil
}

// GuardConfig bounds what the engine will accept from a source.
type GuardConfig struct {
	// MaxSlotAge is the staleness bound in slots.
	MaxSlotAge uint64
	// MaxConfidencePct caps confidence / price (pct scale).
	MaxConfidencePct int64
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxSlotAge:       25,
		MaxConfidencePct: 20_000, // 2%
	}
}

// Adapter wraps a Source with validity checks and a short TWAP used by the
// fill price-band guard and funding.
type Adapter struct {
	source Source
	guard  GuardConfig

	mu    sync.Mutex
	twaps map[uint16]*twapTracker
}

func NewAdapter(source Source, guard GuardConfig) *Adapter {
	return &Adapter{
		source: source,
		guard:  guard,
		twaps:  make(map[uint16]*twapTracker),
	}
}

// GetPrice reads and records the current price for a market. An error here
// means no reading at all; validity issues are reported via Validate.
func (a *Adapter) GetPrice(marketIndex uint16, currentSlot uint64) (Price, error) {
	p, err := a.source.Read(marketIndex)
	if err != nil {
		return Price{}, err
	}

	a.mu.Lock()
	tracker, ok := a.twaps[marketIndex]
	if !ok {
		tracker = newTwapTracker(twapWindowSlots)
		a.twaps[marketIndex] = tracker
	}
	tracker.record(p.Price, p.Slot)
	a.mu.Unlock()

	return p, nil
}

// Validate reports why a reading is unusable, or nil if it passes the
// guard rails.
func (a *Adapter) Validate(p Price, currentSlot uint64) error {
	if !p.Valid {
		return fmt.Errorf("oracle price marked invalid")
	}
	if p.Price <= 0 {
		return fmt.Errorf("oracle price non-positive: %d", p.Price)
	}
	if currentSlot > p.Slot && currentSlot-p.Slot > a.guard.MaxSlotAge {
		return fmt.Errorf("oracle price stale: %d slots old (max %d)", currentSlot-p.Slot, a.guard.MaxSlotAge)
	}

	confPct := fpmath.MulDiv(int64(p.Confidence), fpmath.PctConfig.Scale, p.Price, fpmath.RoundUp)
	if confPct > a.guard.MaxConfidencePct {
		return fmt.Errorf("oracle confidence too wide: %d (max %d)", confPct, a.guard.MaxConfidencePct)
	}
	return nil
}

// Twap returns the recorded short-window TWAP for a market, falling back to
// the latest price when the window holds a single sample.
func (a *Adapter) Twap(marketIndex uint16) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tracker, ok := a.twaps[marketIndex]
	if !ok {
		return 0, false
	}
	return tracker.twap(), true
}
