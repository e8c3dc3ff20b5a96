package contractsapi

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// contract binds one deployed ABI to a transport.
type contract struct {
	name      string
	address   common.Address
	abi       abi.ABI
	transport types.Transport
}

func newContract(name string, address common.Address, parsed abi.ABI, transport types.Transport) (*contract, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if address == (common.Address{}) {
		return nil, errors.Errorf("%s address is required", name)
	}
	return &contract{
		name:      name,
		address:   address,
		abi:       parsed,
		transport: transport,
	}, nil
}

// ═══════════════════════════════════════════════════════════════
// HELPER METHODS
// ═══════════════════════════════════════════════════════════════

// call packs a read, sends it through the transport and unpacks the outputs
func (c *contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s.%s", c.name, method)
	}

	raw, err := c.transport.Call(ctx, c.address, data)
	if err != nil {
		return nil, types.AsNetworkError(fmt.Sprintf("call %s.%s", c.name, method), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s.%s returned no data", c.name, method)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s.%s", c.name, method)
	}
	return out, nil
}

// execute packs a mutation and submits it, returning the assigned hash
func (c *contract) execute(ctx context.Context, method string, value *big.Int, args ...any) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "failed to pack %s.%s", c.name, method)
	}

	hash, err := c.transport.Execute(ctx, c.address, data, value)
	if err != nil {
		return common.Hash{}, types.AsNetworkError(fmt.Sprintf("execute %s.%s", c.name, method), err)
	}
	return hash, nil
}

// callOne is call for methods with exactly one output
func (c *contract) callOne(ctx context.Context, method string, args ...any) (any, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s.%s: expected 1 output, got %d", c.name, method, len(out))
	}
	return out[0], nil
}

func extractBigInt(val any, method string) (*big.Int, error) {
	v, ok := val.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid %s output type: %T", method, val)
	}
	return v, nil
}

func extractBool(val any, method string) (bool, error) {
	v, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("invalid %s output type: %T", method, val)
	}
	return v, nil
}

func extractUint8(val any, method string) (uint8, error) {
	v, ok := val.(uint8)
	if !ok {
		return 0, fmt.Errorf("invalid %s output type: %T", method, val)
	}
	return v, nil
}

func extractAddress(val any, method string) (common.Address, error) {
	v, ok := val.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("invalid %s output type: %T", method, val)
	}
	return v, nil
}
