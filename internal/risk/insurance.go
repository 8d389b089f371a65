package risk

import "sync"

// InsuranceFund is the backstop pool fed by liquidation fees. It covers
// account deficits left behind by full liquidations.
type InsuranceFund struct {
	mu      sync.Mutex
	balance int64 // quote scale
}

func NewInsuranceFund(seed int64) *InsuranceFund {
	return &InsuranceFund{balance: seed}
}

func (f *InsuranceFund) Balance() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

// Credit adds liquidation fee revenue to the fund.
func (f *InsuranceFund) Credit(amount int64) {
	if amount <= 0 {
		return
	}
	f.mu.Lock()
	f.balance += amount
	f.mu.Unlock()
}

// CoverDeficit pays out up to amount, bounded by the fund balance. Returns
// what was actually covered; the shortfall stays with the account.
func (f *InsuranceFund) CoverDeficit(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	covered := amount
	if covered > f.balance {
		covered = f.balance
	}
	f.balance -= covered
	return covered
}
