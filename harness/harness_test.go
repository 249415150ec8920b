package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/sandbox/wasmtest"
	"github.com/weiihann/actorbench/token"
	"github.com/weiihann/actorbench/token/tokentest"
	"github.com/weiihann/actorbench/workload"
	"go.uber.org/mock/gomock"
)

// okActor returns nothing for every method; failActor aborts with exit
// code 17.
var (
	okActor   = wasmtest.Const(0)
	failActor = wasmtest.Const(17)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBinary(t *testing.T, name string, bin []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, bin, 0o644))

	return path
}

func sandboxAccounts(t *testing.T, n int) []sandbox.Account {
	t.Helper()

	tester, err := sandbox.NewTester(NetworkVersion, StateTreeVersion, sandbox.NewMemoryBlockstore())
	require.NoError(t, err)

	accounts, err := tester.CreateAccounts(n)
	require.NoError(t, err)

	return accounts
}

func defaultCalls(t *testing.T) []workload.Call {
	t.Helper()

	actor, err := address.NewIDAddress(ActorID)
	require.NoError(t, err)

	calls, err := workload.NewGenerator(workload.DefaultPlan()).Generate(sandboxAccounts(t, 3), actor)
	require.NoError(t, err)

	return calls
}

func okRet(gas int64) *sandbox.ApplyRet {
	return &sandbox.ApplyRet{Receipt: sandbox.Receipt{ExitCode: exitcode.Ok, GasUsed: gas}}
}

func TestBootstrap(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := NewMockEnvironment(ctrl)
	exec := NewMockExecutor(ctrl)

	plan := workload.DefaultPlan()
	accounts := sandboxAccounts(t, plan.Accounts)
	head, err := cid.Prefix{Version: 1, Codec: cid.DagCBOR, MhType: 0xb220, MhLength: 32}.Sum([]byte("state"))
	require.NoError(t, err)

	bin := []byte("wasm")

	gomock.InOrder(
		env.EXPECT().CreateAccounts(3).Return(accounts, nil),
		env.EXPECT().SetState(gomock.Any()).DoAndReturn(func(obj any) (cid.Cid, error) {
			st, ok := obj.(*token.State)
			require.True(t, ok)
			require.Equal(t, "ZondaxCoin", st.Name)
			require.Equal(t, "ZDX", st.Symbol)
			require.Equal(t, uint8(8), st.Decimals)
			require.Equal(t, uint64(1_000_000), st.TotalSupply)
			require.Equal(t, map[string]uint64{
				accounts[0].Address.String(): 1000,
				accounts[1].Address.String(): 1000,
			}, st.Balances)
			require.Empty(t, st.Allowed)

			return head, nil
		}),
		env.EXPECT().SetActorFromBin(bin, head, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ []byte, _ cid.Cid, addr address.Address, balance abi.TokenAmount) error {
				id, err := address.IDFromAddress(addr)
				require.NoError(t, err)
				require.Equal(t, uint64(ActorID), id)
				require.True(t, balance.IsZero())

				return nil
			}),
		env.EXPECT().InstantiateMachine(gomock.Any()).Return(exec, nil),
	)

	dep, err := Bootstrap(context.Background(), env, "v", bin, plan)
	require.NoError(t, err)
	require.Equal(t, head, dep.StateCID)
	require.Equal(t, accounts, dep.Accounts)
	require.Same(t, exec, dep.Executor)
}

func TestBootstrapInstallFailureIsEngineError(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := NewMockEnvironment(ctrl)

	env.EXPECT().CreateAccounts(3).Return(sandboxAccounts(t, 3), nil)
	env.EXPECT().SetState(gomock.Any()).Return(cid.Undef, nil)
	env.EXPECT().SetActorFromBin(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("boom"))

	_, err := Bootstrap(context.Background(), env, "v", []byte("wasm"), workload.DefaultPlan())
	require.Error(t, err)
	require.Equal(t, KindEngine, KindOf(err))

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, "v", herr.Variant)
	require.Equal(t, "install actor", herr.Op)
}

func TestBootstrapStateFailureIsSerializationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := NewMockEnvironment(ctrl)

	env.EXPECT().CreateAccounts(3).Return(sandboxAccounts(t, 3), nil)
	env.EXPECT().SetState(gomock.Any()).Return(cid.Undef, errors.New("encode"))

	_, err := Bootstrap(context.Background(), env, "v", []byte("wasm"), workload.DefaultPlan())
	require.Equal(t, KindSerialization, KindOf(err))
}

func TestBootstrapFundingOutOfRangeIsConfigError(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := NewMockEnvironment(ctrl)

	plan := workload.DefaultPlan()
	plan.Funding = append(plan.Funding, workload.Funding{Account: 5, Amount: 1})

	env.EXPECT().CreateAccounts(3).Return(sandboxAccounts(t, 3), nil)

	_, err := Bootstrap(context.Background(), env, "v", []byte("wasm"), plan)
	require.ErrorContains(t, err, "account index 5 out of range")
	require.Equal(t, KindConfig, KindOf(err))
}

func TestDriverSubmitsInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := NewMockExecutor(ctrl)
	calls := defaultCalls(t)

	var prev *gomock.Call
	for i, c := range calls {
		want := c
		gas := int64(1000 + i)
		call := exec.EXPECT().
			ExecuteMessage(gomock.Any(), gomock.Any(), sandbox.Explicit, RawLength).
			DoAndReturn(func(_ context.Context, msg *sandbox.Message, _ sandbox.ApplyKind, _ int) (*sandbox.ApplyRet, error) {
				require.Equal(t, want.From, msg.From)
				require.Equal(t, want.Nonce, msg.Sequence)
				require.Equal(t, want.Method, msg.Method)
				require.Equal(t, want.GasLimit, msg.GasLimit)

				return okRet(gas), nil
			})
		if prev != nil {
			call.After(prev)
		}
		prev = call
	}

	d := &Driver{Executor: exec, Policy: ExitCodesInclude, Variant: "v", Logger: discardLogger()}

	receipts, err := d.Run(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, receipts, len(calls))

	for i, r := range receipts {
		require.Equal(t, calls[i].Label, r.Label)
		require.Equal(t, int64(1000+i), r.GasUsed)
		require.True(t, r.Succeeded())
	}
}

func TestDriverExitCodePolicies(t *testing.T) {
	tests := []struct {
		name         string
		policy       ExitCodePolicy
		wantErr      bool
		wantExcluded bool
	}{
		{name: "include", policy: ExitCodesInclude},
		{name: "exclude", policy: ExitCodesExclude, wantExcluded: true},
		{name: "abort", policy: ExitCodesAbort, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			exec := NewMockExecutor(ctrl)
			calls := defaultCalls(t)[:2]

			failed := &sandbox.ApplyRet{
				Receipt:     sandbox.Receipt{ExitCode: exitcode.ExitCode(17), GasUsed: 777},
				FailureInfo: "nope",
			}

			first := exec.EXPECT().ExecuteMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return(failed, nil)
			if !tt.wantErr {
				exec.EXPECT().ExecuteMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(okRet(5), nil).After(first)
			}

			d := &Driver{Executor: exec, Policy: tt.policy, Variant: "v", Logger: discardLogger()}

			receipts, err := d.Run(context.Background(), calls)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, KindLogical, KindOf(err))
				require.Empty(t, receipts)

				return
			}

			require.NoError(t, err)
			require.Len(t, receipts, 2)
			require.Equal(t, int64(17), receipts[0].ExitCode)
			require.Equal(t, int64(777), receipts[0].GasUsed)
			require.Equal(t, tt.wantExcluded, receipts[0].Excluded)
			require.False(t, receipts[1].Excluded)
		})
	}
}

func TestDriverEngineFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := NewMockExecutor(ctrl)

	exec.EXPECT().ExecuteMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("vm crashed"))

	d := &Driver{Executor: exec, Policy: ExitCodesInclude, Variant: "v"}

	_, err := d.Run(context.Background(), defaultCalls(t))
	require.Error(t, err)
	require.Equal(t, KindEngine, KindOf(err))
	require.Contains(t, err.Error(), "vm crashed")
}

func TestDriverCanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := NewMockExecutor(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Driver{Executor: exec, Policy: ExitCodesInclude, Variant: "v"}

	_, err := d.Run(ctx, defaultCalls(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunnerRun(t *testing.T) {
	path := writeBinary(t, "ok.wasm", okActor)

	runner := NewRunner(Variant{Label: "ok", Path: path}, nil, discardLogger())

	res, err := runner.Run(context.Background(), RunConfig{
		Plan:      workload.DefaultPlan(),
		ExitCodes: ExitCodesInclude,
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res.Variant)
	require.Equal(t, int64(len(okActor)), res.BinarySize)
	require.Len(t, res.Receipts, 6)
	require.Len(t, res.Calls, 6)
	require.NotEmpty(t, res.StateHead)

	for _, r := range res.Receipts {
		require.True(t, r.Succeeded())
		require.Positive(t, r.GasUsed)
	}
}

func TestRunnerMissingBinaryIsIOError(t *testing.T) {
	runner := NewRunner(Variant{Label: "gone", Path: filepath.Join(t.TempDir(), "nope.wasm")},
		nil, discardLogger())

	_, err := runner.Run(context.Background(), RunConfig{Plan: workload.DefaultPlan()})
	require.Error(t, err)
	require.Equal(t, KindIO, KindOf(err))
}

func TestRunnerReportsDeployedSize(t *testing.T) {
	padded := append(append([]byte(nil), okActor...), 0x00, 0x04, 0x03, 'p', 'a', 'd')
	path := writeBinary(t, "padded.wasm", padded)

	res, err := NewRunner(Variant{Label: "padded", Path: path}, nil, discardLogger()).
		Run(context.Background(), RunConfig{Plan: workload.DefaultPlan()})
	require.NoError(t, err)
	require.Equal(t, int64(len(padded)), res.BinarySize)

	empty := writeBinary(t, "empty.wasm", nil)

	_, err = NewRunner(Variant{Label: "empty", Path: empty}, nil, discardLogger()).
		Run(context.Background(), RunConfig{Plan: workload.DefaultPlan()})
	require.ErrorContains(t, err, "is empty")
	require.Equal(t, KindIO, KindOf(err))
}

func TestRunnerIsolatesVariants(t *testing.T) {
	path := writeBinary(t, "ok.wasm", okActor)
	cfg := RunConfig{Plan: workload.DefaultPlan(), ExitCodes: ExitCodesInclude}

	first, err := NewRunner(Variant{Label: "a", Path: path}, nil, discardLogger()).
		Run(context.Background(), cfg)
	require.NoError(t, err)

	second, err := NewRunner(Variant{Label: "b", Path: path}, nil, discardLogger()).
		Run(context.Background(), cfg)
	require.NoError(t, err)

	// Fresh environments: nonces restart and gas is identical.
	for i := range first.Receipts {
		require.Equal(t, first.Receipts[i].GasUsed, second.Receipts[i].GasUsed)
	}
	require.Equal(t, first.StateHead, second.StateHead)
}

func TestRunSuiteFailurePolicies(t *testing.T) {
	okPath := writeBinary(t, "ok.wasm", okActor)
	failPath := writeBinary(t, "fail.wasm", failActor)

	variants := []Variant{
		{Label: "ok", Path: okPath},
		{Label: "broken", Path: filepath.Join(t.TempDir(), "missing.wasm")},
		{Label: "fail", Path: failPath},
	}

	tests := []struct {
		name       string
		policy     FailurePolicy
		parallel   bool
		wantErr    bool
		wantLabels []string
	}{
		{name: "abort", policy: FailAbort, wantErr: true},
		{name: "skip", policy: FailSkip, wantLabels: []string{"ok", "fail"}},
		{name: "missing", policy: FailMissing, wantLabels: []string{"ok", "broken", "fail"}},
		{name: "parallel missing", policy: FailMissing, parallel: true,
			wantLabels: []string{"ok", "broken", "fail"}},
		{name: "parallel abort", policy: FailAbort, parallel: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
				Variants:  variants,
				Plan:      workload.DefaultPlan(),
				ExitCodes: ExitCodesInclude,
				OnFailure: tt.policy,
				Parallel:  tt.parallel,
			})
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, KindIO, KindOf(err))
				require.Nil(t, results)

				return
			}

			require.NoError(t, err)

			labels := make([]string, len(results))
			for i, r := range results {
				labels[i] = r.Variant
			}
			require.Equal(t, tt.wantLabels, labels)

			for _, r := range results {
				if r.Variant == "broken" {
					require.True(t, r.Missing)
					require.NotEmpty(t, r.Error)
				} else {
					require.False(t, r.Missing)
					require.Len(t, r.Receipts, 6)
				}
			}
		})
	}
}

func TestRunSuiteAbortOnFailedCall(t *testing.T) {
	failPath := writeBinary(t, "fail.wasm", failActor)

	_, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants:  []Variant{{Label: "fail", Path: failPath}},
		Plan:      workload.DefaultPlan(),
		ExitCodes: ExitCodesAbort,
		OnFailure: FailAbort,
	})
	require.Error(t, err)
	require.Equal(t, KindLogical, KindOf(err))
}

func TestRunSuiteUsesFactory(t *testing.T) {
	okPath := writeBinary(t, "ok.wasm", okActor)

	var created int
	factory := func() (Environment, error) {
		created++
		return NewSandboxEnvironment()
	}

	results, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants: []Variant{{Label: "a", Path: okPath}, {Label: "b", Path: okPath}},
		Plan:     workload.DefaultPlan(),
		NewEnv:   factory,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 2, created)
}

func TestRunSuiteFactoryError(t *testing.T) {
	okPath := writeBinary(t, "ok.wasm", okActor)

	_, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants: []Variant{{Label: "a", Path: okPath}},
		Plan:     workload.DefaultPlan(),
		NewEnv:   func() (Environment, error) { return nil, errors.New("no vm") },
	})
	require.Equal(t, KindEngine, KindOf(err))
}

func TestRunSuiteRejectsInvalidPlan(t *testing.T) {
	okPath := writeBinary(t, "ok.wasm", okActor)

	plan := workload.DefaultPlan()
	plan.Funding = append(plan.Funding, workload.Funding{Account: 3, Amount: 1})

	_, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants: []Variant{{Label: "a", Path: okPath}},
		Plan:     plan,
		NewEnv: func() (Environment, error) {
			t.Fatal("no environment is created for an invalid plan")
			return nil, nil
		},
	})
	require.Equal(t, KindConfig, KindOf(err))
}

func TestRunSuiteUnlinkableActorIsEngineError(t *testing.T) {
	// Imports a syscall the sandbox does not provide.
	bin := wasmtest.Importing(wasmtest.Import{
		Module: "ipld",
		Name:   "block_open_v2",
		Type: wasmtest.FuncType{
			Params:  []wasmtest.ValType{wasmtest.I32, wasmtest.I32},
			Results: []wasmtest.ValType{wasmtest.I32},
		},
	})
	path := writeBinary(t, "bad.wasm", bin)

	results, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants:  []Variant{{Label: "bad", Path: path}},
		Plan:      workload.DefaultPlan(),
		ExitCodes: ExitCodesInclude,
		OnFailure: FailAbort,
	})
	require.Nil(t, results)
	require.Equal(t, KindEngine, KindOf(err))
	require.ErrorIs(t, err, sandbox.ErrIllegalActor)

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, "instantiate machine", herr.Op)
}

// runTokenPlan drives plan against the native token actor and returns
// the receipts and the final token state.
func runTokenPlan(t *testing.T, plan workload.Plan, policy ExitCodePolicy) ([]Receipt, *token.State, error) {
	t.Helper()

	ctx := context.Background()
	bin := wasmtest.Const(0)

	env, err := SandboxFactory(sandbox.WithNativeActor(bin, tokentest.Actor{}))()
	require.NoError(t, err)

	dep, err := Bootstrap(ctx, env, "token", bin, plan)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dep.Executor.Close(ctx) })

	calls, err := workload.NewGenerator(plan).Generate(dep.Accounts, dep.Actor)
	require.NoError(t, err)

	driver := &Driver{Executor: dep.Executor, Policy: policy, Variant: "token", Logger: discardLogger()}

	receipts, runErr := driver.Run(ctx, calls)

	head, err := dep.Executor.StateHead(dep.Actor)
	require.NoError(t, err)

	data, err := env.ReadObject(head)
	require.NoError(t, err)

	st, err := token.DecodeState(data)
	require.NoError(t, err)

	return receipts, st, runErr
}

func TestDefaultPlanTokenSemantics(t *testing.T) {
	receipts, st, err := runTokenPlan(t, workload.DefaultPlan(), ExitCodesAbort)
	require.NoError(t, err)
	require.Len(t, receipts, 6)

	for _, r := range receipts {
		require.Zero(t, r.ExitCode, "%s: %s", r.Label, r.FailureInfo)
		require.Positive(t, r.GasUsed)
	}

	require.Equal(t, "Token name: ZondaxCoin", string(receipts[0].Return))
	require.Equal(t, "Token symbol: ZDX", string(receipts[1].Return))
	require.Equal(t, "Balance: 1000", string(receipts[2].Return))

	require.Equal(t, map[string]uint64{"100": 0, "101": 1500, "102": 500}, st.Balances)
	require.Equal(t, map[string]uint64{tokentest.AllowanceKey("100", "101"): 0}, st.Allowed)
}

func TestTransferFromNeedsPriorApproval(t *testing.T) {
	plan := workload.DefaultPlan()
	plan.Calls[4], plan.Calls[5] = plan.Calls[5], plan.Calls[4]

	receipts, st, err := runTokenPlan(t, plan, ExitCodesInclude)
	require.NoError(t, err)
	require.Len(t, receipts, 6)

	require.Equal(t, "TransferFrom", receipts[4].Label)
	require.Equal(t, int64(exitcode.ErrAssertionFailed), receipts[4].ExitCode)
	require.Contains(t, receipts[4].FailureInfo, "approved amount")
	require.Zero(t, receipts[5].ExitCode, receipts[5].FailureInfo)

	// The failed TransferFrom left the balances alone.
	require.Equal(t, map[string]uint64{"100": 500, "101": 1500}, st.Balances)
	require.Equal(t, map[string]uint64{tokentest.AllowanceKey("100", "101"): 500}, st.Allowed)

	_, _, err = runTokenPlan(t, plan, ExitCodesAbort)
	require.Equal(t, KindLogical, KindOf(err))
	require.ErrorContains(t, err, "TransferFrom")
}

func TestRunSuiteTokenActor(t *testing.T) {
	bin := wasmtest.Const(0)
	path := writeBinary(t, "token.wasm", bin)

	results, err := RunSuite(context.Background(), discardLogger(), SuiteConfig{
		Variants:  []Variant{{Label: "a", Path: path}, {Label: "b", Path: path}},
		Plan:      workload.DefaultPlan(),
		ExitCodes: ExitCodesAbort,
		OnFailure: FailAbort,
		NewEnv:    SandboxFactory(sandbox.WithNativeActor(bin, tokentest.Actor{})),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		for _, r := range res.Receipts {
			require.Zero(t, r.ExitCode, "%s: %s", r.Label, r.FailureInfo)
		}
	}

	require.Equal(t, results[0].StateHead, results[1].StateHead)
	require.Equal(t, results[0].Receipts, results[1].Receipts)
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{in: "Go actor=./temp/go.wasm", want: Variant{Label: "Go actor", Path: "./temp/go.wasm"}},
		{in: " a = b=c ", want: Variant{Label: "a", Path: "b=c"}},
		{in: "noequals", wantErr: true},
		{in: "=path", wantErr: true},
		{in: "label=", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseVariant(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVariant(%q): expected error", tt.in)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseVariant(%q): %v", tt.in, err)

			continue
		}

		if got != tt.want {
			t.Errorf("ParseVariant(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultVariants(t *testing.T) {
	variants := DefaultVariants()
	if len(variants) != 4 {
		t.Fatalf("variants: got %d, want 4", len(variants))
	}

	if variants[3].Label != "Go actor" || variants[3].Path != "./temp/go-erc20-actor.wasm" {
		t.Errorf("unexpected last variant %+v", variants[3])
	}
}

func TestPolicyParsing(t *testing.T) {
	if p, err := ParseExitCodePolicy(""); err != nil || p != ExitCodesInclude {
		t.Errorf("empty exit code policy: %q, %v", p, err)
	}

	if _, err := ParseExitCodePolicy("ignore"); err == nil {
		t.Error("expected error for unknown exit code policy")
	}

	if p, err := ParseFailurePolicy("missing"); err != nil || p != FailMissing {
		t.Errorf("missing failure policy: %q, %v", p, err)
	}

	if _, err := ParseFailurePolicy("retry"); err == nil {
		t.Error("expected error for unknown failure policy")
	}
}

func TestKindOf(t *testing.T) {
	err := newError(KindIO, "v", "write", errors.New("disk full"))
	wrapped := errors.Join(errors.New("context"), err)

	if got := KindOf(wrapped); got != KindIO {
		t.Errorf("KindOf: got %s, want io", got)
	}

	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf plain: got %s", got)
	}

	if got := err.Error(); got != "v: io write: disk full" {
		t.Errorf("Error(): %q", got)
	}
}
