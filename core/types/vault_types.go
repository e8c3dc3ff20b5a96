package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IVault is the custodial balance ledger.
type IVault interface {
	// GetBalance returns the user's vault balance (power) at storage scale.
	// Maps to: getBalance(address)
	GetBalance(ctx context.Context, user common.Address) (*big.Int, error)

	// TotalStaked returns the vault-wide total at storage scale.
	// Maps to: totalStaked()
	TotalStaked(ctx context.Context) (*big.Int, error)

	// Deposit submits a payable deposit carrying value at value scale.
	// Maps to: deposit() payable
	Deposit(ctx context.Context, value *big.Int) (common.Hash, error)

	// Withdraw submits a withdrawal of amount at storage scale.
	// Maps to: withdraw(uint256)
	Withdraw(ctx context.Context, amount *big.Int) (common.Hash, error)

	Address() common.Address
}

// VaultSnapshot mirrors the vault for one account. Nil fields have not been read.
type VaultSnapshot struct {
	Account       common.Address
	Connected     bool
	Balance       *big.Int
	TotalStaked   *big.Int
	WalletBalance *big.Int // native balance, value scale
}
