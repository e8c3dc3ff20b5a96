package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ═══════════════════════════════════════════════════════════════
// ERROR TAXONOMY
// ═══════════════════════════════════════════════════════════════

var (
	// ErrUserRejected means the signer declined to sign. No hash was assigned.
	ErrUserRejected = errors.New("transaction rejected by signer")
	// ErrInsufficientFunds is a client-side pre-check failure; nothing was submitted.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOperationInFlight is returned by Submit while another write is non-terminal.
	ErrOperationInFlight = errors.New("another operation is in flight")
	// ErrNetwork marks transport failures during reads, writes or finality waits.
	ErrNetwork = errors.New("network error")
	// ErrRevertedOnChain means the ledger rejected the mutation.
	ErrRevertedOnChain = errors.New("reverted on chain")
	// ErrInvalidAmount is a conversion or validation failure; nothing was submitted.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrStaleDataRace is recorded when a read still disagrees with the
	// expected post-mutation state after the last reconciliation offset.
	ErrStaleDataRace = errors.New("ledger state still stale after reconciliation")

	ErrNotConnected     = errors.New("wallet not connected")
	ErrInvalidFaction   = errors.New("invalid faction")
	ErrVotingLocked     = errors.New("voting is locked for this round")
	ErrClaimUnavailable = errors.New("no reward available to claim")
	ErrMarketClosed     = errors.New("market is not open for voting")
	ErrMarketNotWatched = errors.New("market state not loaded")
)

// NetworkError wraps a transport failure with the operation it happened in.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrNetwork)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrNetwork, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RevertError carries the ledger-provided reason for a rejected mutation.
// TxHash is zero when the ledger rejected the call during gas estimation.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	msg := ErrRevertedOnChain.Error()
	if e.TxHash != (common.Hash{}) {
		msg = fmt.Sprintf("%s (tx %s)", msg, e.TxHash.Hex())
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	return msg
}

func (e *RevertError) Is(target error) bool { return target == ErrRevertedOnChain }

// AsNetworkError wraps err in a NetworkError unless it already belongs to the taxonomy.
func AsNetworkError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}

// IsClassified reports whether err matches any taxonomy sentinel.
func IsClassified(err error) bool {
	for _, sentinel := range []error{
		ErrUserRejected, ErrInsufficientFunds, ErrOperationInFlight, ErrNetwork,
		ErrRevertedOnChain, ErrInvalidAmount, ErrStaleDataRace, ErrNotConnected,
		ErrInvalidFaction, ErrVotingLocked, ErrClaimUnavailable, ErrMarketClosed,
		ErrMarketNotWatched,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Describe returns a short user-facing description of err.
func Describe(err error) string {
	var revert *RevertError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &revert):
		if revert.Reason != "" {
			return "rejected by the ledger: " + revert.Reason
		}
		return "rejected by the ledger"
	case errors.Is(err, ErrUserRejected):
		return "you declined the signature request"
	case errors.Is(err, ErrNetwork):
		return "network error, please try again"
	default:
		return err.Error()
	}
}
