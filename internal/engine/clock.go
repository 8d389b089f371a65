package engine

import (
	"sync"
	"time"
)

// Clock supplies the slot and wall time the engine stamps operations with.
// Auctions advance in slots; expiry and funding use unix seconds.
type Clock interface {
	Slot() uint64
	Ts() int64
}

// SystemClock derives slots from wall time at a fixed slot duration.
type SystemClock struct {
	start        time.Time
	slotDuration time.Duration
}

// NewSystemClock starts counting slots from now. slotDuration defaults to
// 400ms when zero.
func NewSystemClock(slotDuration time.Duration) *SystemClock {
	if slotDuration <= 0 {
		slotDuration = 400 * time.Millisecond
	}
	return &SystemClock{start: time.Now(), slotDuration: slotDuration}
}

func (c *SystemClock) Slot() uint64 {
	return uint64(time.Since(c.start) / c.slotDuration)
}

func (c *SystemClock) Ts() int64 {
	return time.Now().Unix()
}

// ManualClock is a settable clock for tests and deterministic replay.
type ManualClock struct {
	mu   sync.Mutex
	slot uint64
	ts   int64
}

func NewManualClock(slot uint64, ts int64) *ManualClock {
	return &ManualClock{slot: slot, ts: ts}
}

func (c *ManualClock) Slot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

func (c *ManualClock) Ts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

func (c *ManualClock) SetSlot(slot uint64) {
	c.mu.Lock()
	c.slot = slot
	c.mu.Unlock()
}

func (c *ManualClock) SetTs(ts int64) {
	c.mu.Lock()
	c.ts = ts
	c.mu.Unlock()
}

// Advance moves both the slot and timestamp forward.
func (c *ManualClock) Advance(slots uint64, seconds int64) {
	c.mu.Lock()
	c.slot += slots
	c.ts += seconds
	c.mu.Unlock()
}
