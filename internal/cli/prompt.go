package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/onesafebet/sdk-go/core/util"
	"github.com/pkg/errors"
)

// PromptSigner asks on the terminal before every signature. Anything but
// y or yes declines with types.ErrUserRejected.
type PromptSigner struct {
	types.Signer

	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	autoApprove bool
}

var _ types.Signer = (*PromptSigner)(nil)

func NewPromptSigner(inner types.Signer, in io.Reader, out io.Writer, autoApprove bool) *PromptSigner {
	return &PromptSigner{Signer: inner, in: bufio.NewReader(in), out: out, autoApprove: autoApprove}
}

func (p *PromptSigner) SignTx(ctx context.Context, tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	if !p.autoApprove {
		if err := p.confirm(tx); err != nil {
			return nil, err
		}
	}
	return p.Signer.SignTx(ctx, tx, chainID)
}

func (p *PromptSigner) confirm(tx *ethtypes.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	fmt.Fprintf(p.out, "Sign transaction to %s from %s (value %s HBAR, gas %d)? [y/N] ",
		to, p.Address().Hex(), util.ToDecimalString(tx.Value(), util.ValueScale), tx.Gas())

	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		return errors.Wrap(types.ErrUserRejected, "no confirmation")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return errors.WithStack(types.ErrUserRejected)
	}
}
