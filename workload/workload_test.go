package workload

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/token"
)

func testAccounts(t *testing.T, n int) []sandbox.Account {
	t.Helper()

	tester, err := sandbox.NewTester(network.Version16, sandbox.StateTreeVersion4,
		sandbox.NewMemoryBlockstore())
	if err != nil {
		t.Fatalf("new tester: %v", err)
	}

	accounts, err := tester.CreateAccounts(n)
	if err != nil {
		t.Fatalf("create accounts: %v", err)
	}

	return accounts
}

func testActor(t *testing.T) address.Address {
	t.Helper()

	actor, err := address.NewIDAddress(10000)
	if err != nil {
		t.Fatalf("actor address: %v", err)
	}

	return actor
}

func TestDefaultPlanNonces(t *testing.T) {
	plan := DefaultPlan()
	accounts := testAccounts(t, plan.Accounts)

	calls, err := NewGenerator(plan).Generate(accounts, testActor(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := []struct {
		label  string
		sender int
		nonce  uint64
		method uint64
	}{
		{"GetName", 0, 0, 2},
		{"GetSymbol", 0, 1, 3},
		{"GetBalanceOf", 0, 2, 6},
		{"Transfer", 0, 3, 7},
		{"Allowance", 0, 4, 10},
		{"TransferFrom", 1, 0, 9},
	}

	if len(calls) != len(want) {
		t.Fatalf("calls: got %d, want %d", len(calls), len(want))
	}

	for i, w := range want {
		c := calls[i]
		if c.Label != w.label || c.Sender != w.sender || c.Nonce != w.nonce ||
			uint64(c.Method) != w.method {
			t.Errorf("call %d: got %s sender=%d nonce=%d method=%d, want %+v",
				i, c.Label, c.Sender, c.Nonce, c.Method, w)
		}

		if c.GasLimit != DefaultGasLimit {
			t.Errorf("call %d: gas limit %d", i, c.GasLimit)
		}

		if c.From != accounts[w.sender].Address {
			t.Errorf("call %d: from %s, want %s", i, c.From, accounts[w.sender].Address)
		}
	}
}

func TestDefaultPlanParams(t *testing.T) {
	plan := DefaultPlan()
	accounts := testAccounts(t, plan.Accounts)

	calls, err := NewGenerator(plan).Generate(accounts, testActor(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if calls[0].Params != nil || calls[1].Params != nil {
		t.Error("getters without arguments must have empty params")
	}

	a0 := accounts[0].Address.String()
	a1 := accounts[1].Address.String()
	a2 := accounts[2].Address.String()

	expect := func(idx int, args ...any) {
		t.Helper()

		want, err := token.EncodeParams(args...)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		if !bytes.Equal(calls[idx].Params, want) {
			t.Errorf("call %d (%s): params %x, want %x",
				idx, calls[idx].Label, calls[idx].Params, want)
		}
	}

	expect(2, a0)
	expect(3, a1, uint64(500))
	expect(4, uint64(500), a1)
	expect(5, a0, a2, uint64(500))
}

func TestTransferAloneStartsAtNonceZero(t *testing.T) {
	plan := DefaultPlan()
	plan.Calls = []CallTemplate{plan.Calls[3]}

	calls, err := NewGenerator(plan).Generate(testAccounts(t, 3), testActor(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if calls[0].Nonce != 0 {
		t.Errorf("nonce: got %d, want 0", calls[0].Nonce)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	plan := DefaultPlan()

	var buf1, buf2 bytes.Buffer

	calls1, err := NewGenerator(plan).Generate(testAccounts(t, 3), testActor(t))
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}

	calls2, err := NewGenerator(plan).Generate(testAccounts(t, 3), testActor(t))
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}

	sum1, err := WriteJSONL(&buf1, calls1)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	sum2, err := WriteJSONL(&buf2, calls2)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if buf1.String() != buf2.String() {
		t.Error("call sequences differ across independent account sets")
	}

	if sum1 != sum2 {
		t.Errorf("summaries differ: %+v vs %+v", sum1, sum2)
	}
}

func TestGenerateTooFewAccounts(t *testing.T) {
	_, err := NewGenerator(DefaultPlan()).Generate(testAccounts(t, 2), testActor(t))
	if err == nil {
		t.Fatal("expected error for missing accounts")
	}
}

func TestWriteJSONL(t *testing.T) {
	plan := DefaultPlan()

	calls, err := NewGenerator(plan).Generate(testAccounts(t, 3), testActor(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var buf bytes.Buffer

	summary, err := WriteJSONL(&buf, calls)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if summary.TotalCalls != 6 || summary.Senders != 2 {
		t.Errorf("summary: got %+v", summary)
	}

	scanner := bufio.NewScanner(&buf)
	lineNum := 0

	for scanner.Scan() {
		var op Operation
		if err := json.Unmarshal(scanner.Bytes(), &op); err != nil {
			t.Fatalf("line %d: invalid JSON: %v", lineNum, err)
		}

		if op.Index != lineNum {
			t.Errorf("line %d: index %d", lineNum, op.Index)
		}

		if op.Name != token.MethodName(calls[lineNum].Method) {
			t.Errorf("line %d: method name %q", lineNum, op.Name)
		}

		if lineNum >= 2 && !strings.HasPrefix(op.Params, "0x") {
			t.Errorf("line %d: params missing 0x prefix: %q", lineNum, op.Params)
		}

		lineNum++
	}

	if lineNum != len(calls) {
		t.Errorf("lines: got %d, want %d", lineNum, len(calls))
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Plan)
		wantErr string
	}{
		{name: "default", mutate: func(*Plan) {}},
		{
			name:    "no accounts",
			mutate:  func(p *Plan) { p.Accounts = 0 },
			wantErr: "at least one account",
		},
		{
			name:    "zero gas",
			mutate:  func(p *Plan) { p.GasLimit = 0 },
			wantErr: "gas limit",
		},
		{
			name:    "no calls",
			mutate:  func(p *Plan) { p.Calls = nil },
			wantErr: "no calls",
		},
		{
			name:    "sender out of range",
			mutate:  func(p *Plan) { p.Calls[5].Sender = 3 },
			wantErr: "sender index 3",
		},
		{
			name:    "account arg out of range",
			mutate:  func(p *Plan) { p.Calls[2].Args = []Arg{AccountArg(7)} },
			wantErr: "account index 7",
		},
		{
			name:    "funding out of range",
			mutate:  func(p *Plan) { p.Funding = append(p.Funding, Funding{Account: -1}) },
			wantErr: "funding 2",
		},
		{
			name:    "empty arg",
			mutate:  func(p *Plan) { p.Calls[2].Args = []Arg{{}} },
			wantErr: "exactly one",
		},
		{
			name: "ambiguous arg",
			mutate: func(p *Plan) {
				n := uint64(1)
				p.Calls[2].Args = []Arg{{Uint: &n, Text: new(string)}}
			},
			wantErr: "exactly one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := DefaultPlan()
			tt.mutate(&plan)

			err := plan.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSmokePlan(t *testing.T) {
	plan := SmokePlan()
	if err := plan.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	calls, err := NewGenerator(plan).Generate(testAccounts(t, 1), testActor(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(calls) != 2 || calls[0].Nonce != 0 || calls[1].Nonce != 1 {
		t.Errorf("unexpected smoke calls: %+v", calls)
	}
}
