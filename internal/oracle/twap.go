package oracle

// twapWindowSlots approximates a 5-minute window at ~2.5 slots/second.
const twapWindowSlots = 750

// twapTracker keeps a slot-weighted running average over a sliding window.
// Samples are weighted by the slot distance to the next sample, so bursts
// of readings at the same slot do not dominate the average.
type twapTracker struct {
	window  uint64
	samples []twapSample
}

type twapSample struct {
	price int64
	slot  uint64
}

func newTwapTracker(window uint64) *twapTracker {
	return &twapTracker{window: window}
}

func (t *twapTracker) record(price int64, slot uint64) {
	// Ignore regressions; replace same-slot samples.
	if n := len(t.samples); n > 0 {
		last := t.samples[n-1]
		if slot < last.slot {
			return
		}
		if slot == last.slot {
			t.samples[n-1].price = price
			return
		}
	}

	t.samples = append(t.samples, twapSample{price: price, slot: slot})

	// Evict samples older than the window.
	cutoff := uint64(0)
	if slot > t.window {
		cutoff = slot - t.window
	}
	i := 0
	for i < len(t.samples)-1 && t.samples[i+1].slot <= cutoff {
		i++
	}
	t.samples = t.samples[i:]
}

func (t *twapTracker) twap() int64 {
	n := len(t.samples)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return t.samples[0].price
	}

	var weightedSum, totalWeight int64
	for i := 0; i < n-1; i++ {
		weight := int64(t.samples[i+1].slot - t.samples[i].slot)
		weightedSum += t.samples[i].price * weight
		totalWeight += weight
	}
	// The newest sample carries a minimum weight of one slot.
	weightedSum += t.samples[n-1].price
	totalWeight++

	return weightedSum / totalWeight
}
