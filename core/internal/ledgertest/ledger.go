// Package ledgertest provides an in-memory ledger that speaks the ABI of the
// deployed contracts, for tests that need a Transport.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// CallHandler answers a read with the method's output values.
type CallHandler func(args []any) ([]any, error)

// WriteHandler applies a mutation when it is included. A returned error
// becomes a reverted receipt carrying err.Error() as the reason.
type WriteHandler func(from common.Address, value *big.Int, args []any) error

// SentTx is one accepted Execute.
type SentTx struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Method string
	Args   []any
	Value  *big.Int
}

type contractDef struct {
	abi    abi.ABI
	calls  map[string]CallHandler
	writes map[string]WriteHandler
}

// Ledger implements types.Transport in memory.
type Ledger struct {
	mu        sync.Mutex
	chainID   *big.Int
	signer    types.Signer
	contracts map[common.Address]*contractDef
	wallets   map[common.Address]*big.Int
	pending   map[common.Hash]SentTx
	receipts  map[common.Hash]*types.Receipt
	sent      []SentTx
	calls     map[string]int
	hold      bool
	rejectErr error
	callErr   error
	block     int64
}

var _ types.Transport = (*Ledger)(nil)

// New returns an empty ledger whose writes are sent from signer.
func New(signer types.Signer) *Ledger {
	return &Ledger{
		chainID:   big.NewInt(296),
		signer:    signer,
		contracts: make(map[common.Address]*contractDef),
		wallets:   make(map[common.Address]*big.Int),
		pending:   make(map[common.Hash]SentTx),
		receipts:  make(map[common.Hash]*types.Receipt),
		calls:     make(map[string]int),
	}
}

// Register deploys parsed at addr with no handlers.
func (l *Ledger) Register(addr common.Address, parsed abi.ABI) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[addr] = &contractDef{
		abi:    parsed,
		calls:  make(map[string]CallHandler),
		writes: make(map[string]WriteHandler),
	}
}

func (l *Ledger) HandleCall(addr common.Address, method string, fn CallHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[addr].calls[method] = fn
}

func (l *Ledger) HandleWrite(addr common.Address, method string, fn WriteHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contracts[addr].writes[method] = fn
}

// SetWallet sets the native balance of account, at value scale.
func (l *Ledger) SetWallet(account common.Address, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[account] = new(big.Int).Set(balance)
}

// HoldConfirmations keeps new transactions pending until Confirm is called.
func (l *Ledger) HoldConfirmations(hold bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hold = hold
}

// Confirm includes a pending transaction.
func (l *Ledger) Confirm(hash common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx, ok := l.pending[hash]; ok {
		delete(l.pending, hash)
		l.includeLocked(tx)
	}
}

// ConfirmAll includes every pending transaction.
func (l *Ledger) ConfirmAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for hash, tx := range l.pending {
		delete(l.pending, hash)
		l.includeLocked(tx)
	}
}

// RejectNext makes the next Execute fail with err before a hash is assigned.
func (l *Ledger) RejectNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejectErr = err
}

// FailCalls makes every read fail with err until called with nil.
func (l *Ledger) FailCalls(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callErr = err
}

// CallCount returns how many reads of method were served.
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// Sent returns every accepted transaction in submission order.
func (l *Ledger) Sent() []SentTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SentTx(nil), l.sent...)
}

func (l *Ledger) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	def, method, args, err := l.decodeLocked(to, data)
	if err != nil {
		return nil, err
	}
	l.calls[method.Name]++
	if l.callErr != nil {
		return nil, l.callErr
	}
	fn, ok := def.calls[method.Name]
	if !ok {
		return nil, errors.Errorf("no handler for %s", method.Name)
	}
	out, err := fn(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (l *Ledger) Execute(_ context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rejectErr != nil {
		err := l.rejectErr
		l.rejectErr = nil
		return common.Hash{}, err
	}
	_, method, args, err := l.decodeLocked(to, data)
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		value = new(big.Int)
	}

	tx := SentTx{
		From:   l.from(),
		To:     to,
		Method: method.Name,
		Args:   args,
		Value:  new(big.Int).Set(value),
	}
	tx.Hash = crypto.Keccak256Hash(data, []byte(fmt.Sprintf("%d", len(l.sent))))
	l.sent = append(l.sent, tx)

	if l.hold {
		l.pending[tx.Hash] = tx
	} else {
		l.includeLocked(tx)
	}
	return tx.Hash, nil
}

func (l *Ledger) WaitTx(ctx context.Context, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		r, ok := l.receipts[hash]
		l.mu.Unlock()
		if ok {
			cp := *r
			return &cp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Ledger) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.callErr != nil {
		return nil, l.callErr
	}
	if b, ok := l.wallets[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *Ledger) ChainID() *big.Int { return new(big.Int).Set(l.chainID) }

func (l *Ledger) Signer() types.Signer { return l.signer }

func (l *Ledger) from() common.Address {
	if l.signer == nil {
		return common.Address{}
	}
	return l.signer.Address()
}

func (l *Ledger) decodeLocked(to common.Address, data []byte) (*contractDef, *abi.Method, []any, error) {
	def, ok := l.contracts[to]
	if !ok {
		return nil, nil, nil, errors.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, nil, errors.New("calldata too short")
	}
	method, err := def.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, nil, errors.WithStack(err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, nil, errors.WithStack(err)
	}
	return def, method, args, nil
}

// includeLocked applies tx and records its receipt.
func (l *Ledger) includeLocked(tx SentTx) {
	l.block++
	receipt := &types.Receipt{
		TxHash:      tx.Hash,
		BlockNumber: big.NewInt(l.block),
		GasUsed:     21000,
		Status:      types.ReceiptStatusSuccessful,
	}

	if tx.Value.Sign() > 0 {
		wallet := l.wallets[tx.From]
		if wallet == nil || wallet.Cmp(tx.Value) < 0 {
			receipt.Status = 0
			receipt.RevertReason = "insufficient wallet balance"
			l.receipts[tx.Hash] = receipt
			return
		}
		l.wallets[tx.From] = new(big.Int).Sub(wallet, tx.Value)
	}

	if fn, ok := l.contracts[tx.To].writes[tx.Method]; ok {
		if err := fn(tx.From, tx.Value, tx.Args); err != nil {
			receipt.Status = 0
			receipt.RevertReason = err.Error()
			if tx.Value.Sign() > 0 {
				l.wallets[tx.From].Add(l.wallets[tx.From], tx.Value)
			}
		}
	}
	l.receipts[tx.Hash] = receipt
}

// Signer is a types.Signer that returns transactions unsigned.
type Signer struct {
	Account common.Address
}

func (s Signer) Address() common.Address { return s.Account }

func (s Signer) SignTx(_ context.Context, tx *ethtypes.Transaction, _ *big.Int) (*ethtypes.Transaction, error) {
	return tx, nil
}

// Sink records notifications.
type Sink struct {
	mu        sync.Mutex
	Successes []string
	Links     []string
	Failures  []string
}

func (s *Sink) EmitSuccess(message, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Successes = append(s.Successes, message)
	s.Links = append(s.Links, link)
}

func (s *Sink) EmitFailure(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, message)
}

// Counts returns the number of successes and failures so far.
func (s *Sink) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Successes), len(s.Failures)
}

// Snapshot returns copies of the recorded messages.
func (s *Sink) Snapshot() (successes, failures []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Successes...), append([]string(nil), s.Failures...)
}
