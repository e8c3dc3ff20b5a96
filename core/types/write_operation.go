package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the lifecycle position of a WriteOperation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingSignature
	PhaseSubmitted
	PhaseConfirming
	PhaseConfirmed
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:              "idle",
	PhaseSubmitting:        "submitting",
	PhaseAwaitingSignature: "awaiting_signature",
	PhaseSubmitted:         "submitted",
	PhaseConfirming:        "confirming",
	PhaseConfirmed:         "confirmed",
	PhaseFailed:            "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether a new submission may start from this phase.
func (p Phase) Terminal() bool {
	return p == PhaseIdle || p == PhaseConfirmed || p == PhaseFailed
}

// WriteOperation is one mutating request from submission to settlement.
type WriteOperation struct {
	ID        string // assigned locally, stable before any hash exists
	Name      string
	Args      []any
	Value     *big.Int
	TxHash    common.Hash
	Phase     Phase
	Err       error
	CreatedAt time.Time
	SettledAt time.Time
}

// HasHash reports whether the ledger assigned a submission identifier.
func (o WriteOperation) HasHash() bool {
	return o.TxHash != (common.Hash{})
}

// SettlementID is the identifier used for notification dedup: the tx hash
// when one was assigned, otherwise the local operation id.
func (o WriteOperation) SettlementID() string {
	if o.HasHash() {
		return o.TxHash.Hex()
	}
	return "op:" + o.ID
}
