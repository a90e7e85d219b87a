package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrInvalidAmount = errors.New("invalid amount")
var ErrInvalidAccount = errors.New("invalid account")

// Credit is one leg of an outbound payment.
type Credit struct {
	Account string
	Amount  uint64
}

// Ledger holds account balances. CreditAll applies every credit or none.
type Ledger interface {
	Debit(ctx context.Context, account string, amount uint64) error
	Credit(ctx context.Context, account string, amount uint64) error
	CreditAll(ctx context.Context, credits []Credit) error
	Balance(ctx context.Context, account string) (uint64, error)
}

type Memory struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]uint64)}
}

func (m *Memory) Debit(ctx context.Context, account string, amount uint64) error {
	if err := validate(account, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[account] < amount {
		return ErrInsufficientFunds
	}
	m.balances[account] -= amount
	return nil
}

func (m *Memory) Credit(ctx context.Context, account string, amount uint64) error {
	return m.CreditAll(ctx, []Credit{{Account: account, Amount: amount}})
}

func (m *Memory) CreditAll(ctx context.Context, credits []Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate against a scratch copy so a bad leg leaves every balance untouched.
	next := make(map[string]uint64, len(credits))
	for _, c := range credits {
		if err := validate(c.Account, c.Amount); err != nil {
			return err
		}
		bal, ok := next[c.Account]
		if !ok {
			bal = m.balances[c.Account]
		}
		if bal > math.MaxUint64-c.Amount {
			return ErrInvalidAmount
		}
		next[c.Account] = bal + c.Amount
	}
	for account, bal := range next {
		m.balances[account] = bal
	}
	return nil
}

func (m *Memory) Balance(ctx context.Context, account string) (uint64, error) {
	if account == "" {
		return 0, ErrInvalidAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func validate(account string, amount uint64) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}
