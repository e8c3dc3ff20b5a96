package cli

import (
	"context"
	"math/big"

	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/spf13/cobra"
)

// StatusCmd returns the status command
func StatusCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connected account, vault power and wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				if err := c.Vault.RefetchAll(ctx); err != nil {
					return err
				}
				env.printVault(c.Vault.Snapshot())
				return nil
			})
		},
	}
}

// DepositCmd returns the deposit command
func DepositCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Move HBAR from the wallet into the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				h, err := c.Vault.Deposit(ctx, args[0])
				if err != nil {
					return err
				}
				if err := settle(ctx, h, c.Vault.LastCascade); err != nil {
					return err
				}
				env.printVault(c.Vault.Snapshot())
				return nil
			})
		},
	}
}

// WithdrawCmd returns the withdraw command
func WithdrawCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Move power out of the vault back to the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, c *osbclient.Client) error {
				// the balance check needs a fresh read
				if err := c.Vault.RefetchAll(ctx); err != nil {
					return err
				}
				h, err := c.Vault.Withdraw(ctx, args[0])
				if err != nil {
					return err
				}
				if err := settle(ctx, h, c.Vault.LastCascade); err != nil {
					return err
				}
				env.printVault(c.Vault.Snapshot())
				return nil
			})
		},
	}
}

func (e *Env) printVault(s types.VaultSnapshot) {
	if !s.Connected {
		e.printf("Account:      (not connected)\n")
	} else {
		e.printf("Account:      %s\n", s.Account.Hex())
		e.printf("Vault power:  %s\n", amount(s.Balance, util.StorageScale))
		e.printf("Wallet:       %s HBAR\n", amount(s.WalletBalance, util.ValueScale))
	}
	e.printf("Total staked: %s\n", amount(s.TotalStaked, util.StorageScale))
}

func amount(v *big.Int, scale int32) string {
	return util.FormatAmount(v, scale, "-")
}
