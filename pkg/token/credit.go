package token

import "sync"

// CreditToken is a multi-token ledger: balances are keyed by
// (owner, tokenID), one tokenID per credit batch. Approval is
// collection-wide per operator, there is no per-amount allowance.
type CreditToken struct {
	mu        sync.Mutex
	balances  map[string]map[uint64]int64 // owner -> tokenID -> qty
	operators map[string]map[string]bool  // owner -> operator -> approved
}

func NewCreditToken() *CreditToken {
	return &CreditToken{
		balances:  make(map[string]map[uint64]int64),
		operators: make(map[string]map[string]bool),
	}
}

func (c *CreditToken) Mint(owner string, tokenID uint64, qty int64) error {
	if qty <= 0 {
		return ErrInvalidAmount
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[owner] == nil {
		c.balances[owner] = make(map[uint64]int64)
	}
	c.balances[owner][tokenID] += qty
	return nil
}

func (c *CreditToken) BalanceOf(owner string, tokenID uint64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[owner][tokenID]
}

// SetApprovalForAll grants or revokes the operator over the owner's
// entire collection. Re-granting is a no-op.
func (c *CreditToken) SetApprovalForAll(owner, operator string, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.operators[owner] == nil {
		c.operators[owner] = make(map[string]bool)
	}
	c.operators[owner][operator] = approved
}

func (c *CreditToken) IsApprovedForAll(owner, operator string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operators[owner][operator]
}

// SafeTransferFrom moves qty of tokenID from owner to recipient. The
// operator must be the owner or hold collection-wide approval.
func (c *CreditToken) SafeTransferFrom(operator, from, to string, tokenID uint64, qty int64) error {
	if qty <= 0 {
		return ErrInvalidAmount
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if operator != from && !c.operators[from][operator] {
		return ErrNotApproved
	}
	if c.balances[from][tokenID] < qty {
		return ErrInsufficientBalance
	}
	c.balances[from][tokenID] -= qty
	if c.balances[to] == nil {
		c.balances[to] = make(map[uint64]int64)
	}
	c.balances[to][tokenID] += qty
	return nil
}
