package token

import (
	"context"
	"sort"
	"sync"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/engine"
)

// Registry is an in-memory StatToken with ERC-721 style approvals.
type Registry struct {
	mu        sync.RWMutex
	nextID    uint64
	owners    map[uint64]chain.Address
	stats     map[uint64]Stats
	approved  map[uint64]chain.Address
	operators map[chain.Address]map[chain.Address]bool
}

// NewRegistry creates an empty collection. Token ids start at 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID:    1,
		owners:    make(map[uint64]chain.Address),
		stats:     make(map[uint64]Stats),
		approved:  make(map[uint64]chain.Address),
		operators: make(map[chain.Address]map[chain.Address]bool),
	}
}

// Mint creates a token with explicit stats and returns its id.
func (r *Registry) Mint(to chain.Address, stats Stats) (uint64, error) {
	if to.IsZero() {
		return 0, chain.ErrInvalidAddress
	}
	if !stats.Valid() {
		return 0, ErrInvalidStats.With("atk=%d def=%d hp=%d", stats.Atk, stats.Def, stats.HP)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.owners[id] = to
	r.stats[id] = stats
	return id, nil
}

// MintRandom mints a token whose stats are derived from seed.
func (r *Registry) MintRandom(to chain.Address, seed engine.Hash) (uint64, error) {
	return r.Mint(to, RollStats(seed))
}

// RollStats maps a digest uniformly onto the mint ranges.
func RollStats(seed engine.Hash) Stats {
	return Stats{
		Atk: AtkMin + uint64(seed[0])%(AtkMax-AtkMin+1),
		Def: DefMin + uint64(seed[1])%(DefMax-DefMin+1),
		HP:  HPMin + uint64(seed[2])%(HPMax-HPMin+1),
	}
}

func (r *Registry) OwnerOf(tokenID uint64) (chain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return "", ErrNotFound.With("token %d does not exist", tokenID)
	}
	return owner, nil
}

func (r *Registry) StatsOf(tokenID uint64) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stats[tokenID]
	if !ok {
		return Stats{}, ErrNotFound.With("token %d does not exist", tokenID)
	}
	return s, nil
}

func (r *Registry) BalanceOf(owner chain.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n uint64
	for _, o := range r.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// TokensOf lists the ids held by owner in ascending order.
func (r *Registry) TokensOf(owner chain.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []uint64
	for id, o := range r.owners {
		if o == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Approve lets spender move one token. Only the owner may approve.
func (r *Registry) Approve(owner, spender chain.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.owners[tokenID]
	if !ok {
		return ErrNotFound.With("token %d does not exist", tokenID)
	}
	if cur != owner {
		return ErrWrongOwner
	}
	r.approved[tokenID] = spender
	return nil
}

// SetApprovalForAll grants or revokes operator over all of owner's tokens.
func (r *Registry) SetApprovalForAll(owner, operator chain.Address, ok bool) error {
	if operator.IsZero() {
		return chain.ErrInvalidAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operators[owner] == nil {
		r.operators[owner] = make(map[chain.Address]bool)
	}
	r.operators[owner][operator] = ok
	return nil
}

func (r *Registry) TransferFrom(_ context.Context, operator, from, to chain.Address, tokenID uint64) error {
	if to.IsZero() {
		return chain.ErrInvalidAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.owners[tokenID]
	if !ok {
		return ErrNotFound.With("token %d does not exist", tokenID)
	}
	if cur != from {
		return ErrWrongOwner.With("token %d is held by %s, not %s", tokenID, cur, from)
	}
	if operator != from && r.approved[tokenID] != operator && !r.operators[from][operator] {
		return ErrNotApproved.With("%s may not move token %d", operator, tokenID)
	}
	r.owners[tokenID] = to
	delete(r.approved, tokenID)
	return nil
}

// Holding is one token in a registry snapshot.
type Holding struct {
	ID       uint64        `json:"id"`
	Owner    chain.Address `json:"owner"`
	Stats    Stats         `json:"stats"`
	Approved chain.Address `json:"approved,omitempty"`
}

// State is the serialisable form of a Registry.
type State struct {
	NextID    uint64                            `json:"next_id"`
	Tokens    []Holding                         `json:"tokens"`
	Operators map[chain.Address][]chain.Address `json:"operators,omitempty"`
}

// Snapshot captures the full registry.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := State{NextID: r.nextID, Operators: make(map[chain.Address][]chain.Address)}
	for id, owner := range r.owners {
		st.Tokens = append(st.Tokens, Holding{ID: id, Owner: owner, Stats: r.stats[id], Approved: r.approved[id]})
	}
	sort.Slice(st.Tokens, func(i, j int) bool { return st.Tokens[i].ID < st.Tokens[j].ID })
	for owner, ops := range r.operators {
		for op, ok := range ops {
			if ok {
				st.Operators[owner] = append(st.Operators[owner], op)
			}
		}
		sort.Slice(st.Operators[owner], func(i, j int) bool { return st.Operators[owner][i] < st.Operators[owner][j] })
	}
	return st
}

// Restore replaces the registry contents with st.
func (r *Registry) Restore(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID = max(st.NextID, 1)
	r.owners = make(map[uint64]chain.Address, len(st.Tokens))
	r.stats = make(map[uint64]Stats, len(st.Tokens))
	r.approved = make(map[uint64]chain.Address)
	r.operators = make(map[chain.Address]map[chain.Address]bool)
	for _, h := range st.Tokens {
		r.owners[h.ID] = h.Owner
		r.stats[h.ID] = h.Stats
		if !h.Approved.IsZero() {
			r.approved[h.ID] = h.Approved
		}
	}
	for owner, ops := range st.Operators {
		r.operators[owner] = make(map[chain.Address]bool, len(ops))
		for _, op := range ops {
			r.operators[owner][op] = true
		}
	}
}
