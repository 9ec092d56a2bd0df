package ledger

import (
	"context"
	"errors"
	"math/big"
)

// Adapter is the narrow interface to the external chips token ledger. The
// engine never holds balances itself; custody moves only through these calls.
// Amounts are unsigned integers in the token's base unit (18 decimals).
type Adapter interface {
	// Pull moves amount from the player's balance into engine custody.
	// Requires a prior allowance granted to the engine account.
	Pull(ctx context.Context, from string, amount *big.Int) error
	// Push moves amount out of engine custody to the given account.
	// Pushing zero is a no-op.
	Push(ctx context.Context, to string, amount *big.Int) error
	BalanceOf(ctx context.Context, addr string) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
}

// HealthChecker is implemented by adapters backed by a remote node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

var (
	ErrInsufficientAllowance      = errors.New("insufficient allowance")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInsufficientCustodyBalance = errors.New("insufficient custody balance")
	ErrNotOwner                   = errors.New("caller is not the token owner")
	ErrInvalidAmount              = errors.New("invalid amount")
)
