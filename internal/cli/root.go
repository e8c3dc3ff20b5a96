package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the osb command tree over env.
func NewRootCmd(env *Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "osb",
		Short: "OneSafeBet - vault, elemental rounds, prediction markets and quests",
		Long: `osb mirrors the OneSafeBet contracts on the Hedera EVM testnet and submits
deposits, withdrawals, votes and claims from the key in OSB_PRIVATE_KEY.

Every write asks for confirmation before signing unless --yes is given, and
returns once the ledger state reflects the change.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&env.yes, "yes", "y", false, "Sign without asking for confirmation")
	rootCmd.PersistentFlags().StringVar(&env.account, "account", "", "Show another account instead of the signer's (writes still sign with the key)")
	rootCmd.PersistentFlags().DurationVar(&env.timeout, "timeout", defaultTimeout, "Give up waiting for the ledger after this long")

	// Vault
	rootCmd.AddCommand(StatusCmd(env))
	rootCmd.AddCommand(DepositCmd(env))
	rootCmd.AddCommand(WithdrawCmd(env))

	// Elemental game
	rootCmd.AddCommand(RoundCmd(env))
	rootCmd.AddCommand(VoteCmd(env))
	rootCmd.AddCommand(ClaimRoundCmd(env))

	// Prediction markets
	rootCmd.AddCommand(MarketsCmd(env))
	rootCmd.AddCommand(MarketCreateCmd(env))
	rootCmd.AddCommand(MarketVoteCmd(env))
	rootCmd.AddCommand(MarketClaimCmd(env))

	rootCmd.AddCommand(QuestsCmd(env))
	rootCmd.AddCommand(WatchCmd(env))

	return rootCmd
}
