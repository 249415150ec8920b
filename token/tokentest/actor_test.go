package tokentest

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/sandbox/wasmtest"
	"github.com/weiihann/actorbench/token"
)

type fixture struct {
	exec     *sandbox.Executor
	accounts []sandbox.Account
	actor    address.Address
	nonces   map[int]uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	bin := wasmtest.Const(0)

	tester, err := sandbox.NewTester(network.Version16, sandbox.StateTreeVersion4,
		sandbox.NewMemoryBlockstore(), sandbox.WithNativeActor(bin, Actor{}))
	require.NoError(t, err)

	accounts, err := tester.CreateAccounts(2)
	require.NoError(t, err)

	st := token.NewState("ZondaxCoin", "ZDX", 8, 1_000_000)
	st.Balances[accounts[0].Address.String()] = 100

	head, err := tester.SetState(st)
	require.NoError(t, err)

	actor, err := address.NewIDAddress(10000)
	require.NoError(t, err)
	require.NoError(t, tester.SetActorFromBin(bin, head, actor, big.Zero()))

	exec, err := tester.InstantiateMachine(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close(ctx) })

	return &fixture{exec: exec, accounts: accounts, actor: actor, nonces: make(map[int]uint64)}
}

func (f *fixture) call(t *testing.T, sender int, method abi.MethodNum, args ...any) *sandbox.ApplyRet {
	t.Helper()

	params, err := token.EncodeParams(args...)
	require.NoError(t, err)

	ret, err := f.exec.ExecuteMessage(context.Background(), &sandbox.Message{
		From:     f.accounts[sender].Address,
		To:       f.actor,
		Sequence: f.nonces[sender],
		Method:   method,
		Params:   params,
		GasLimit: 1_000_000_000,
	}, sandbox.Explicit, 100)
	require.NoError(t, err)

	f.nonces[sender]++

	return ret
}

func TestActorQueries(t *testing.T) {
	f := newFixture(t)
	alice := f.accounts[0].Address.String()

	tests := []struct {
		method abi.MethodNum
		args   []any
		want   string
	}{
		{method: token.MethodGetName, want: "Token name: ZondaxCoin"},
		{method: token.MethodGetSymbol, want: "Token symbol: ZDX"},
		{method: token.MethodGetDecimal, want: "Token decimal: 8"},
		{method: token.MethodGetTotalSupply, want: "Token total supply: 1000000"},
		{method: token.MethodGetBalanceOf, args: []any{alice}, want: "Balance: 100"},
		{method: token.MethodGetBalanceOf, args: []any{"100"}, want: "Balance: 100"},
	}

	for _, tt := range tests {
		ret := f.call(t, 0, tt.method, tt.args...)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, ret.FailureInfo)
		require.Equal(t, tt.want, string(ret.Receipt.Return))
	}
}

func TestActorTransferLimits(t *testing.T) {
	f := newFixture(t)
	bob := f.accounts[1].Address.String()

	ret := f.call(t, 0, token.MethodTransfer, bob, uint64(101))
	require.Equal(t, exitcode.ErrAssertionFailed, ret.Receipt.ExitCode)

	ret = f.call(t, 0, token.MethodTransfer, bob, uint64(0))
	require.Equal(t, exitcode.ErrAssertionFailed, ret.Receipt.ExitCode)

	ret = f.call(t, 0, token.MethodTransfer, bob, uint64(40))
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, ret.FailureInfo)
	require.Equal(t, "from 100 to 101 amount 40", string(ret.Receipt.Return))

	ret = f.call(t, 1, token.MethodGetBalanceOf, bob)
	require.Equal(t, "Balance: 40", string(ret.Receipt.Return))
}

func TestActorAllowance(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.accounts[0].Address.String(), f.accounts[1].Address.String()

	ret := f.call(t, 0, token.MethodApproval, uint64(30), bob)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, ret.FailureInfo)
	require.Equal(t, "approval 100:101 for 30", string(ret.Receipt.Return))

	ret = f.call(t, 1, token.MethodAllowance, alice, bob)
	require.Equal(t, "Allowance for 101 by 100: 30", string(ret.Receipt.Return))

	// Bob may not spend more than approved.
	ret = f.call(t, 1, token.MethodTransferFrom, alice, bob, uint64(31))
	require.Equal(t, exitcode.ErrAssertionFailed, ret.Receipt.ExitCode)

	ret = f.call(t, 1, token.MethodTransferFrom, alice, bob, uint64(30))
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, ret.FailureInfo)

	ret = f.call(t, 1, token.MethodAllowance, alice, bob)
	require.Equal(t, "Allowance for 101 by 100: 0", string(ret.Receipt.Return))
}

func TestActorRejectsBadCalls(t *testing.T) {
	f := newFixture(t)

	ret := f.call(t, 0, token.MethodGetBalanceOf)
	require.Equal(t, exitcode.ErrIllegalArgument, ret.Receipt.ExitCode)

	ret = f.call(t, 0, token.MethodGetBalanceOf, uint64(1))
	require.Equal(t, exitcode.ErrIllegalArgument, ret.Receipt.ExitCode)

	ret = f.call(t, 0, abi.MethodNum(42))
	require.Equal(t, exitcode.ErrUnhandledMessage, ret.Receipt.ExitCode)
}
