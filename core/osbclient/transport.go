package osbclient

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// gasHeadroom is applied to every estimate, in percent.
const gasHeadroom = 120

// RPCTransport implements types.Transport over Ethereum JSON-RPC.
// This is the default transport used by the client.
//
// RPCTransport provides:
//   - contract reads through eth_call
//   - signed legacy transactions (the Hedera relay prices gas per transaction)
//   - receipt polling for finality
//   - revert reason recovery from estimation errors and failed receipts
//
// Every request waits on a shared token bucket so a burst of polling reads
// does not trip the relay's rate limit.
type RPCTransport struct {
	client  *ethclient.Client
	chainID *big.Int
	signer  types.Signer
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Verify RPCTransport implements Transport interface at compile time
var _ types.Transport = (*RPCTransport)(nil)

// TransportOptions configures an RPCTransport.
type TransportOptions struct {
	// ChainID is compared with the node's eth_chainId. Zero skips the check.
	ChainID *big.Int
	// Signer is used for Execute. Nil means read-only.
	Signer types.Signer
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
}

// DialRPCTransport connects to a JSON-RPC endpoint.
//
// Example:
//
//	transport, err := osbclient.DialRPCTransport(ctx, "https://testnet.hashio.io/api", osbclient.TransportOptions{
//	    ChainID: big.NewInt(296),
//	    Signer:  signer,
//	})
func DialRPCTransport(ctx context.Context, endpoint string, opts TransportOptions) (*RPCTransport, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}
	t, err := NewRPCTransport(ctx, rpcClient, opts)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return t, nil
}

// NewRPCTransport wraps an existing rpc client, e.g. an in-process one.
func NewRPCTransport(ctx context.Context, rpcClient *rpc.Client, opts TransportOptions) (*RPCTransport, error) {
	t := &RPCTransport{
		client:  ethclient.NewClient(rpcClient),
		signer:  opts.Signer,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logging.OrGlobal(opts.Logger).Named("rpc"),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	remote, err := t.client.ChainID(ctx)
	if err != nil {
		return nil, types.AsNetworkError("chain id", err)
	}
	if opts.ChainID != nil && opts.ChainID.Sign() > 0 && opts.ChainID.Cmp(remote) != 0 {
		return nil, errors.Errorf("endpoint serves chain %s, expected %s", remote, opts.ChainID)
	}
	t.chainID = remote
	return t, nil
}

// Call executes a read-only contract call against the latest block.
func (t *RPCTransport) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, types.AsNetworkError("call", err)
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, errors.WithStack(&types.RevertError{Reason: reason})
		}
		return nil, types.AsNetworkError("call", err)
	}
	return out, nil
}

// Execute estimates, signs and broadcasts a legacy transaction.
//
// A revert during estimation is reported as a RevertError with a zero hash:
// the ledger refused the mutation before anything was signed. Errors from the
// signer are returned unchanged, so a declined prompt stays ErrUserRejected.
func (t *RPCTransport) Execute(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if t.signer == nil {
		return common.Hash{}, errors.New("transport is read-only: no signer configured")
	}
	if value == nil {
		value = new(big.Int)
	}
	from := t.signer.Address()

	if err := t.limiter.Wait(ctx); err != nil {
		return common.Hash{}, types.AsNetworkError("execute", err)
	}
	nonce, err := t.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, types.AsNetworkError("nonce", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, types.AsNetworkError("gas price", err)
	}
	gas, err := t.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return common.Hash{}, errors.WithStack(&types.RevertError{Reason: reason})
		}
		return common.Hash{}, types.AsNetworkError("estimate gas", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas * gasHeadroom / 100,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := t.signer.SignTx(ctx, tx, t.chainID)
	if err != nil {
		return common.Hash{}, err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return common.Hash{}, types.AsNetworkError("execute", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, types.AsNetworkError("send transaction", err)
	}
	t.logger.Debug("transaction sent",
		zap.String("txHash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash(), nil
}

// WaitTx polls eth_getTransactionReceipt until the transaction is included.
// A reverted transaction still returns its receipt, with the reason recovered
// by replaying the call at the inclusion block when the node allows it.
func (t *RPCTransport) WaitTx(ctx context.Context, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-ticker.C:
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, errors.WithStack(err)
			}
			r, err := t.client.TransactionReceipt(ctx, txHash)
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			if err != nil {
				if isTransientReceiptError(err) {
					continue
				}
				return nil, types.AsNetworkError("receipt", err)
			}
			receipt := &types.Receipt{
				TxHash:      r.TxHash,
				BlockNumber: r.BlockNumber,
				GasUsed:     r.GasUsed,
				Status:      r.Status,
			}
			if !receipt.Succeeded() {
				receipt.RevertReason = t.replayRevert(ctx, txHash, r.BlockNumber)
			}
			return receipt, nil
		}
	}
}

// BalanceAt returns the native balance of account at value scale.
func (t *RPCTransport) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, types.AsNetworkError("balance", err)
	}
	b, err := t.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, types.AsNetworkError("balance", err)
	}
	return b, nil
}

func (t *RPCTransport) ChainID() *big.Int {
	return new(big.Int).Set(t.chainID)
}

func (t *RPCTransport) Signer() types.Signer {
	return t.signer
}

// Close releases the underlying connection.
func (t *RPCTransport) Close() {
	t.client.Close()
}

func (t *RPCTransport) replayRevert(ctx context.Context, txHash common.Hash, block *big.Int) string {
	tx, _, err := t.client.TransactionByHash(ctx, txHash)
	if err != nil {
		t.logger.Debug("revert replay skipped", zap.String("txHash", txHash.Hex()), zap.Error(err))
		return ""
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(t.chainID), tx)
	if err != nil {
		return ""
	}
	_, err = t.client.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, block)
	reason, _ := revertReason(err)
	return reason
}

// revertReason extracts the Error(string) payload from a JSON-RPC error.
// ok is true whenever the node reported revert data, even if it is a custom
// error that cannot be decoded to text.
func revertReason(err error) (reason string, ok bool) {
	if err == nil {
		return "", false
	}
	var de rpc.DataError
	if !errors.As(err, &de) {
		return "", false
	}
	raw, isString := de.ErrorData().(string)
	if !isString {
		return "", false
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", true
	}
	return reason, true
}

func isTransientReceiptError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"not found", "not indexed", "pending", "unknown transaction"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
