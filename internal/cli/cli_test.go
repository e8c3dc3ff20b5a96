package cli

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/onesafebet/sdk-go/core/config"
	"github.com/onesafebet/sdk-go/core/osbclient"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// vaultOnlyTransport answers the two vault reads and fails everything else.
type vaultOnlyTransport struct {
	totalStaked *big.Int
	balance     *big.Int
	wallet      *big.Int
}

var (
	selTotalStaked = crypto.Keccak256([]byte("totalStaked()"))[:4]
	selGetBalance  = crypto.Keccak256([]byte("getBalance(address)"))[:4]
)

func word(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }

func (m *vaultOnlyTransport) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, selTotalStaked):
		return word(m.totalStaked), nil
	case bytes.HasPrefix(data, selGetBalance):
		return word(m.balance), nil
	}
	return nil, errors.New("not deployed")
}

func (m *vaultOnlyTransport) Execute(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
	return common.Hash{}, errors.New("read-only")
}

func (m *vaultOnlyTransport) WaitTx(ctx context.Context, _ common.Hash, _ time.Duration) (*types.Receipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *vaultOnlyTransport) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return m.wallet, nil
}

func (m *vaultOnlyTransport) ChainID() *big.Int { return big.NewInt(296) }

func (m *vaultOnlyTransport) Signer() types.Signer { return nil }

func testEnv(t *testing.T, transport types.Transport) (*Env, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.LogLevel = "error"
	out := &bytes.Buffer{}
	return &Env{
		Out:        out,
		In:         strings.NewReader(""),
		LoadConfig: func() (config.Config, error) { return cfg, nil },
		Options:    []osbclient.Option{osbclient.WithTransport(transport)},
	}, out
}

func execute(env *Env, args ...string) error {
	root := NewRootCmd(env)
	root.SetArgs(args)
	root.SetOut(env.Out)
	root.SetErr(env.Out)
	return root.ExecuteContext(context.Background())
}

func TestRootCmdRegistersCommands(t *testing.T) {
	root := NewRootCmd(DefaultEnv())

	want := []string{
		"status", "deposit", "withdraw", "round", "vote", "claim-round",
		"markets", "market-create", "market-vote", "market-claim", "quests", "watch",
	}
	registered := map[string]bool{}
	for _, sub := range root.Commands() {
		registered[sub.Name()] = true
		require.NotEmpty(t, sub.Short, "%s should have a Short description", sub.Name())
	}
	for _, name := range want {
		require.True(t, registered[name], "%s not registered", name)
	}
	require.NotNil(t, root.PersistentFlags().Lookup("yes"))
	require.NotNil(t, root.PersistentFlags().Lookup("account"))
}

func TestStatusReadOnly(t *testing.T) {
	env, out := testEnv(t, &vaultOnlyTransport{totalStaked: big.NewInt(1_250_000_000)})

	require.NoError(t, execute(env, "status"))
	require.Contains(t, out.String(), "(not connected)")
	require.Contains(t, out.String(), "Total staked: 12.5")
}

func TestStatusForAnotherAccount(t *testing.T) {
	env, out := testEnv(t, &vaultOnlyTransport{
		totalStaked: big.NewInt(1_250_000_000),
		balance:     big.NewInt(500_000_000),
		wallet:      new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)),
	})

	require.NoError(t, execute(env, "status", "--account", "0x00000000000000000000000000000000000000a1"))
	require.Contains(t, out.String(), "Account:      "+common.HexToAddress("0xa1").Hex())
	require.Contains(t, out.String(), "Vault power:  5\n")
	require.Contains(t, out.String(), "Wallet:       2 HBAR")
}

func TestCommandsRefuseBeforeReachingTheLedger(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "deposit without account", args: []string{"deposit", "1"}, want: types.ErrNotConnected},
		{name: "unknown faction", args: []string{"vote", "lava"}, want: types.ErrInvalidFaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := testEnv(t, &vaultOnlyTransport{totalStaked: big.NewInt(0)})
			err := execute(env, tt.args...)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "deposit needs an amount", args: []string{"deposit"}},
		{name: "bad market id", args: []string{"market-claim", "first"}},
		{name: "zero market id", args: []string{"market-claim", "0"}},
		{name: "bad side", args: []string{"market-vote", "1", "maybe", "10"}},
		{name: "create needs a question", args: []string{"market-create"}},
		{name: "bad account", args: []string{"status", "--account", "alice"}},
		{name: "zero watch interval", args: []string{"watch", "--every", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := testEnv(t, &vaultOnlyTransport{totalStaked: big.NewInt(0)})
			require.Error(t, execute(env, tt.args...))
		})
	}
}

// recordingSigner counts signatures and returns the transaction unchanged.
type recordingSigner struct{ signed int }

func (s *recordingSigner) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000a1")
}

func (s *recordingSigner) SignTx(_ context.Context, tx *ethtypes.Transaction, _ *big.Int) (*ethtypes.Transaction, error) {
	s.signed++
	return tx, nil
}

func TestPromptSigner(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000a0001")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{To: &to, Value: big.NewInt(1e18), Gas: 60_000, GasPrice: big.NewInt(1)})

	tests := []struct {
		name        string
		input       string
		autoApprove bool
		wantSigned  bool
		wantPrompt  bool
	}{
		{name: "yes", input: "y\n", wantSigned: true, wantPrompt: true},
		{name: "long yes", input: " YES \n", wantSigned: true, wantPrompt: true},
		{name: "no", input: "n\n", wantPrompt: true},
		{name: "enter declines", input: "\n", wantPrompt: true},
		{name: "closed input declines", input: "", wantPrompt: true},
		{name: "auto approve", autoApprove: true, wantSigned: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &recordingSigner{}
			out := &bytes.Buffer{}
			p := NewPromptSigner(inner, strings.NewReader(tt.input), out, tt.autoApprove)

			_, err := p.SignTx(context.Background(), tx, big.NewInt(296))
			if tt.wantSigned {
				require.NoError(t, err)
				require.Equal(t, 1, inner.signed)
			} else {
				require.ErrorIs(t, err, types.ErrUserRejected)
				require.Zero(t, inner.signed)
			}
			if tt.wantPrompt {
				require.Contains(t, out.String(), "value 1 HBAR, gas 60000")
			} else {
				require.Empty(t, out.String())
			}
			require.Equal(t, inner.Address(), p.Address())
		})
	}
}

func TestParseMarketID(t *testing.T) {
	id, err := parseMarketID("12")
	require.NoError(t, err)
	require.Equal(t, uint64(12), id)

	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := parseMarketID(bad)
		require.Error(t, err, bad)
	}
}
