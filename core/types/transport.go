package types

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ReceiptStatusSuccessful mirrors the EVM receipt status for an included, non-reverted tx.
const ReceiptStatusSuccessful = uint64(1)

// Receipt is the settlement record returned by the finality port.
type Receipt struct {
	TxHash       common.Hash
	BlockNumber  *big.Int
	GasUsed      uint64
	Status       uint64
	RevertReason string // best effort, empty when the node does not expose it
}

// Succeeded reports whether the ledger accepted the mutation.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// Transport abstracts the communication layer with the ledger.
//
// The default implementation (osbclient.RPCTransport) speaks Ethereum JSON-RPC
// to a relay. Tests use an in-memory ledger implementing the same interface.
type Transport interface {
	// Call performs a side-effect-free contract read and returns the raw ABI output.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// Execute signs and submits a mutation and returns its transaction hash.
	// It fails with ErrUserRejected when the signer declines, before any hash exists.
	Execute(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)

	// WaitTx polls for inclusion of txHash every interval until the ledger
	// reports a receipt or ctx is done. A reverted tx still yields a receipt.
	WaitTx(ctx context.Context, txHash common.Hash, interval time.Duration) (*Receipt, error)

	// BalanceAt returns the native balance of account at value scale.
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)

	// ChainID returns the network chain identifier.
	ChainID() *big.Int

	// Signer returns the signer used for mutations, nil in read-only mode.
	Signer() Signer
}

// Signer approves and signs transactions on behalf of one account.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// NotificationSink renders outcome events outside this layer.
type NotificationSink interface {
	EmitSuccess(message, link string)
	EmitFailure(message string)
}
