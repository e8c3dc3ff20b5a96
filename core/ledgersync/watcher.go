package ledgersync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/types"
	"go.uber.org/zap"
)

// FinalityWaiter is the part of the transport the watcher needs.
type FinalityWaiter interface {
	WaitTx(ctx context.Context, txHash common.Hash, interval time.Duration) (*types.Receipt, error)
}

// Watcher waits for inclusion of submitted transactions. It adds no timeout of
// its own; the transport's retry behavior and ctx govern how long it waits.
type Watcher struct {
	waiter   FinalityWaiter
	interval time.Duration
	logger   *zap.Logger
}

func NewWatcher(waiter FinalityWaiter, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{waiter: waiter, interval: interval, logger: logging.OrGlobal(logger)}
}

// Await returns the receipt of an accepted transaction. A reverted receipt
// becomes a *types.RevertError and a failed watch a *types.NetworkError.
func (w *Watcher) Await(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	w.logger.Debug("waiting for inclusion", zap.String("txHash", txHash.Hex()), zap.Duration("interval", w.interval))

	receipt, err := w.waiter.WaitTx(ctx, txHash, w.interval)
	if err != nil {
		return nil, types.AsNetworkError("wait "+txHash.Hex(), err)
	}
	if receipt == nil {
		return nil, &types.NetworkError{Op: "wait " + txHash.Hex()}
	}
	if !receipt.Succeeded() {
		return receipt, &types.RevertError{TxHash: txHash, Reason: receipt.RevertReason}
	}
	return receipt, nil
}
