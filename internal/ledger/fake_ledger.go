package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// FakeLedger is an in-memory ledger that mirrors the chips token semantics:
// owner-only mint, explicit allowances, transferFrom-style custody pulls.
// Used by tests and local development in place of a real chain.
type FakeLedger struct {
	mu         sync.Mutex
	owner      string
	custody    string
	balances   map[string]*big.Int
	allowances map[string]*big.Int // key: owner|spender
}

// NewFakeLedger creates a ledger whose mint authority is owner and whose
// custody account is the engine address.
func NewFakeLedger(owner, custody string) *FakeLedger {
	return &FakeLedger{
		owner:      normalize(owner),
		custody:    normalize(custody),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func allowanceKey(owner, spender string) string {
	return normalize(owner) + "|" + normalize(spender)
}

// Mint credits amount to an account. Only the ledger owner may mint.
func (f *FakeLedger) Mint(caller, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if normalize(caller) != f.owner {
		return fmt.Errorf("mint: %w", ErrNotOwner)
	}
	f.credit(to, amount)
	return nil
}

// Approve grants the spender an allowance over the owner's balance.
func (f *FakeLedger) Approve(owner, spender string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (f *FakeLedger) Pull(_ context.Context, from string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := allowanceKey(from, f.custody)
	allowed := f.allowances[key]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("pull %s from %s: %w", amount, from, ErrInsufficientAllowance)
	}
	bal := f.balances[normalize(from)]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("pull %s from %s: %w", amount, from, ErrInsufficientBalance)
	}

	allowed.Sub(allowed, amount)
	bal.Sub(bal, amount)
	f.credit(f.custody, amount)
	return nil
}

func (f *FakeLedger) Push(_ context.Context, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	bal := f.balances[f.custody]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("push %s to %s: %w", amount, to, ErrInsufficientCustodyBalance)
	}
	bal.Sub(bal, amount)
	f.credit(to, amount)
	return nil
}

func (f *FakeLedger) BalanceOf(_ context.Context, addr string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal := f.balances[normalize(addr)]
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (f *FakeLedger) Allowance(_ context.Context, owner, spender string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := f.allowances[allowanceKey(owner, spender)]
	if allowed == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowed), nil
}

// credit assumes f.mu is held.
func (f *FakeLedger) credit(addr string, amount *big.Int) {
	key := normalize(addr)
	bal := f.balances[key]
	if bal == nil {
		bal = new(big.Int)
		f.balances[key] = bal
	}
	bal.Add(bal, amount)
}
