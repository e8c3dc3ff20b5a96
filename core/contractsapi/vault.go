package contractsapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// Vault provides methods for interacting with the custodial balance ledger
type Vault struct {
	c *contract
}

// Compile-time check that Vault implements IVault
var _ types.IVault = (*Vault)(nil)

// NewVaultOptions contains options for creating a Vault instance
type NewVaultOptions struct {
	Transport types.Transport
	Address   common.Address
}

// LoadVault creates a new Vault instance with the given options
func LoadVault(options NewVaultOptions) (*Vault, error) {
	parsed, err := contracts.VaultABI()
	if err != nil {
		return nil, err
	}
	c, err := newContract("vault", options.Address, parsed, options.Transport)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Vault{c: c}, nil
}

func (v *Vault) Address() common.Address { return v.c.address }

// GetBalance returns the user's power at storage scale
func (v *Vault) GetBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := v.c.callOne(ctx, "getBalance", user)
	if err != nil {
		return nil, err
	}
	return extractBigInt(out, "getBalance")
}

func (v *Vault) TotalStaked(ctx context.Context) (*big.Int, error) {
	out, err := v.c.callOne(ctx, "totalStaked")
	if err != nil {
		return nil, err
	}
	return extractBigInt(out, "totalStaked")
}

// Deposit sends value (value scale) to the payable deposit()
func (v *Vault) Deposit(ctx context.Context, value *big.Int) (common.Hash, error) {
	if value == nil || value.Sign() <= 0 {
		return common.Hash{}, errors.Wrap(types.ErrInvalidAmount, "deposit value must be positive")
	}
	return v.c.execute(ctx, "deposit", value)
}

// Withdraw requests amount (storage scale) back from the vault
func (v *Vault) Withdraw(ctx context.Context, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, errors.Wrap(types.ErrInvalidAmount, "withdraw amount must be positive")
	}
	return v.c.execute(ctx, "withdraw", nil, amount)
}
