package account

import (
	"sync"

	"github.com/google/uuid"
)

// Key identifies a sub-account.
type Key struct {
	Owner      uuid.UUID
	SubAccount uint16
}

// Registry holds all accounts. The engine takes the registry lock around
// every operation that reads or mutates positions so cross-market margin
// checks always see a consistent snapshot of one account.
type Registry struct {
	mu       sync.Mutex
	accounts map[Key]*Account
}

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[Key]*Account)}
}

// Lock serializes account state access. Callers hold it for the whole
// operation (fill, liquidation, settle), not per lookup.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// Create claims a sub-account slot. The id must be below MaxSubAccounts
// and unused.
func (r *Registry) Create(owner uuid.UUID, subAccountID uint16) (*Account, error) {
	if subAccountID >= MaxSubAccounts {
		return nil, ErrInvalidSubAccount
	}
	key := Key{Owner: owner, SubAccount: subAccountID}
	if _, exists := r.accounts[key]; exists {
		return nil, ErrInvalidSubAccount
	}
	a := New(owner, subAccountID)
	r.accounts[key] = a
	return a, nil
}

// Get looks up a sub-account.
func (r *Registry) Get(owner uuid.UUID, subAccountID uint16) (*Account, error) {
	a, ok := r.accounts[Key{Owner: owner, SubAccount: subAccountID}]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// All returns every account (funding sweeps, admin views).
func (r *Registry) All() []*Account {
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}
