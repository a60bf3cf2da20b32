package chain

import (
	"sort"
	"sync"
)

// Bank is the native value ledger. Balances are in the smallest unit.
type Bank struct {
	mu       sync.Mutex
	balances map[Address]uint64
}

// NewBank creates an empty ledger.
func NewBank() *Bank {
	return &Bank{balances: make(map[Address]uint64)}
}

// BalanceOf returns the balance of a.
func (b *Bank) BalanceOf(a Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[a]
}

// Mint credits amount to a. It is the faucet used by tests and dev mode.
func (b *Bank) Mint(a Address, amount uint64) error {
	if a.IsZero() {
		return ErrInvalidAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.balances[a] + amount
	if next < b.balances[a] {
		return ErrInvalidAmount.With("mint overflows balance of %s", a)
	}
	b.balances[a] = next
	return nil
}

// Transfer moves amount from one account to another. It either fully
// applies or returns an error with no effect.
func (b *Bank) Transfer(from, to Address, amount uint64) error {
	if to.IsZero() || from.IsZero() {
		return ErrInvalidAddress
	}
	if amount == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from] < amount {
		return ErrInsufficient.With("%s holds %d, needs %d", from, b.balances[from], amount)
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

// Payment is one leg of a batch transfer.
type Payment struct {
	To     Address `json:"to"`
	Amount uint64  `json:"amount"`
}

// Pay sends every payment from one account under a single lock. Either all
// legs apply or none do.
func (b *Bank) Pay(from Address, payments []Payment) error {
	if from.IsZero() {
		return ErrInvalidAddress
	}
	var total uint64
	for _, p := range payments {
		if p.To.IsZero() {
			return ErrInvalidAddress.With("payment to the zero address")
		}
		next := total + p.Amount
		if next < total {
			return ErrInvalidAmount.With("batch total overflows")
		}
		total = next
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from] < total {
		return ErrInsufficient.With("%s holds %d, batch needs %d", from, b.balances[from], total)
	}
	b.balances[from] -= total
	for _, p := range payments {
		b.balances[p.To] += p.Amount
	}
	return nil
}

// Accounts returns a copy of all non-zero balances ordered by address.
func (b *Bank) Accounts() []Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Account, 0, len(b.balances))
	for a, v := range b.balances {
		if v == 0 {
			continue
		}
		out = append(out, Account{Address: a, Balance: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Restore replaces all balances. Used when loading a snapshot.
func (b *Bank) Restore(accounts []Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[Address]uint64, len(accounts))
	for _, acc := range accounts {
		b.balances[acc.Address] = acc.Balance
	}
}

// Account is a single balance entry.
type Account struct {
	Address Address `json:"address"`
	Balance uint64  `json:"balance"`
}
