package token

import (
	"errors"
	"sync"
)

var (
	ErrInvalidAmount         = errors.New("invalid token amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotApproved           = errors.New("operator not approved")
)

// Stablecoin is a fungible ledger with per-spender allowances.
// All amounts are integer micro-units: 1.00 == 1_000_000.
type Stablecoin struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]map[string]int64 // owner -> spender -> micros
}

func NewStablecoin() *Stablecoin {
	return &Stablecoin{
		balances:   make(map[string]int64),
		allowances: make(map[string]map[string]int64),
	}
}

func (s *Stablecoin) Mint(owner string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[owner] += amount
	return nil
}

func (s *Stablecoin) BalanceOf(owner string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[owner]
}

// Approve sets the spender's allowance to exactly amount, replacing any
// previous value.
func (s *Stablecoin) Approve(owner, spender string, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allowances[owner] == nil {
		s.allowances[owner] = make(map[string]int64)
	}
	s.allowances[owner][spender] = amount
	return nil
}

func (s *Stablecoin) Allowance(owner, spender string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowances[owner][spender]
}

// Transfer moves amount from the caller's own balance.
func (s *Stablecoin) Transfer(from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(from, to, amount)
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming the spender's allowance.
func (s *Stablecoin) TransferFrom(spender, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.allowances[from][spender] < amount {
		return ErrInsufficientAllowance
	}
	if err := s.move(from, to, amount); err != nil {
		return err
	}
	s.allowances[from][spender] -= amount
	return nil
}

// Refund reverses a TransferFrom: amount moves from the spender's
// holding back to the owner and the allowance the transfer consumed is
// restored, leaving both ledgers as they were before the collection.
func (s *Stablecoin) Refund(spender, owner string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.move(spender, owner, amount); err != nil {
		return err
	}
	if s.allowances[owner] == nil {
		s.allowances[owner] = make(map[string]int64)
	}
	s.allowances[owner][spender] += amount
	return nil
}

func (s *Stablecoin) move(from, to string, amount int64) error {
	if s.balances[from] < amount {
		return ErrInsufficientBalance
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}
