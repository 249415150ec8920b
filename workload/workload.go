// Package workload turns a benchmark plan into the deterministic, ordered
// list of token actor calls replayed against every variant. A Plan names
// the accounts to create, how they are funded, the token metadata and the
// call templates; a Generator resolves the templates against concrete
// accounts and assigns per-sender nonces.
package workload

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/token"
)

// DefaultGasLimit is the gas ceiling given to every call.
const DefaultGasLimit int64 = 1_000_000_000

// Arg is one typed call argument. Exactly one field is set.
type Arg struct {
	// Account is replaced by the robust address string of the account
	// with this index.
	Account *int    `yaml:"account,omitempty" json:"account,omitempty"`
	Uint    *uint64 `yaml:"uint,omitempty" json:"uint,omitempty"`
	Text    *string `yaml:"text,omitempty" json:"text,omitempty"`
}

// AccountArg references the account at index.
func AccountArg(index int) Arg { return Arg{Account: &index} }

// UintArg is an unsigned integer argument.
func UintArg(v uint64) Arg { return Arg{Uint: &v} }

// TextArg is a string argument.
func TextArg(s string) Arg { return Arg{Text: &s} }

func (a Arg) validate(accounts int) error {
	set := 0
	if a.Account != nil {
		set++
		if *a.Account < 0 || *a.Account >= accounts {
			return fmt.Errorf("account index %d out of range [0,%d)", *a.Account, accounts)
		}
	}
	if a.Uint != nil {
		set++
	}
	if a.Text != nil {
		set++
	}

	if set != 1 {
		return fmt.Errorf("argument must set exactly one of account, uint, text (got %d)", set)
	}

	return nil
}

func (a Arg) resolve(accounts []sandbox.Account) (any, error) {
	switch {
	case a.Account != nil:
		i := *a.Account
		if i < 0 || i >= len(accounts) {
			return nil, fmt.Errorf("account index %d out of range [0,%d)", i, len(accounts))
		}

		return accounts[i].Address.String(), nil
	case a.Uint != nil:
		return *a.Uint, nil
	case a.Text != nil:
		return *a.Text, nil
	default:
		return nil, errors.New("empty argument")
	}
}

// Funding credits Amount tokens to the account at index Account in the
// initial token state.
type Funding struct {
	Account int    `yaml:"account" json:"account"`
	Amount  uint64 `yaml:"amount" json:"amount"`
}

// TokenInfo is the token metadata of the initial state.
type TokenInfo struct {
	Name        string `yaml:"name" json:"name"`
	Symbol      string `yaml:"symbol" json:"symbol"`
	Decimals    uint8  `yaml:"decimals" json:"decimals"`
	TotalSupply uint64 `yaml:"total_supply" json:"total_supply"`
}

// CallTemplate is a call before account resolution.
type CallTemplate struct {
	Label  string        `yaml:"label" json:"label"`
	Sender int           `yaml:"sender" json:"sender"`
	Method abi.MethodNum `yaml:"method" json:"method"`
	Args   []Arg         `yaml:"args,omitempty" json:"args,omitempty"`
}

// Plan is everything needed to set up and drive one variant.
type Plan struct {
	Accounts int            `yaml:"accounts" json:"accounts"`
	Funding  []Funding      `yaml:"funding,omitempty" json:"funding,omitempty"`
	Token    TokenInfo      `yaml:"token" json:"token"`
	GasLimit int64          `yaml:"gas_limit" json:"gas_limit"`
	Calls    []CallTemplate `yaml:"calls" json:"calls"`
}

// DefaultPlan is the six call ERC20 script: three accounts, the first two
// funded with 1000 ZDX.
//
// Approval takes (amount, spender) while Transfer takes (receiver,
// amount). Both orders are what the actors decode.
func DefaultPlan() Plan {
	return Plan{
		Accounts: 3,
		Funding: []Funding{
			{Account: 0, Amount: 1000},
			{Account: 1, Amount: 1000},
		},
		Token: TokenInfo{
			Name:        "ZondaxCoin",
			Symbol:      "ZDX",
			Decimals:    8,
			TotalSupply: 1_000_000,
		},
		GasLimit: DefaultGasLimit,
		Calls: []CallTemplate{
			{Label: "GetName", Sender: 0, Method: token.MethodGetName},
			{Label: "GetSymbol", Sender: 0, Method: token.MethodGetSymbol},
			{
				Label:  "GetBalanceOf",
				Sender: 0,
				Method: token.MethodGetBalanceOf,
				Args:   []Arg{AccountArg(0)},
			},
			{
				Label:  "Transfer",
				Sender: 0,
				Method: token.MethodTransfer,
				Args:   []Arg{AccountArg(1), UintArg(500)},
			},
			{
				Label:  "Allowance",
				Sender: 0,
				Method: token.MethodApproval,
				Args:   []Arg{UintArg(500), AccountArg(1)},
			},
			{
				Label:  "TransferFrom",
				Sender: 1,
				Method: token.MethodTransferFrom,
				Args:   []Arg{AccountArg(0), AccountArg(2), UintArg(500)},
			},
		},
	}
}

// SmokePlan checks a single binary: one unfunded account reading the
// token name and symbol.
func SmokePlan() Plan {
	return Plan{
		Accounts: 1,
		Token: TokenInfo{
			Name:        "Zondax coin",
			Symbol:      "ZDX",
			Decimals:    8,
			TotalSupply: 1_000_000,
		},
		GasLimit: DefaultGasLimit,
		Calls: []CallTemplate{
			{Label: "GetName", Sender: 0, Method: token.MethodGetName},
			{Label: "GetSymbol", Sender: 0, Method: token.MethodGetSymbol},
		},
	}
}

// Validate checks account references and the gas ceiling.
func (p Plan) Validate() error {
	if p.Accounts < 1 {
		return fmt.Errorf("plan needs at least one account, got %d", p.Accounts)
	}

	if p.GasLimit <= 0 {
		return fmt.Errorf("gas limit must be positive, got %d", p.GasLimit)
	}

	if len(p.Calls) == 0 {
		return errors.New("plan has no calls")
	}

	for i, f := range p.Funding {
		if f.Account < 0 || f.Account >= p.Accounts {
			return fmt.Errorf("funding %d: account index %d out of range [0,%d)",
				i, f.Account, p.Accounts)
		}
	}

	for i, c := range p.Calls {
		if c.Label == "" {
			return fmt.Errorf("call %d: empty label", i)
		}

		if c.Sender < 0 || c.Sender >= p.Accounts {
			return fmt.Errorf("call %d (%s): sender index %d out of range [0,%d)",
				i, c.Label, c.Sender, p.Accounts)
		}

		for j, a := range c.Args {
			if err := a.validate(p.Accounts); err != nil {
				return fmt.Errorf("call %d (%s) arg %d: %w", i, c.Label, j, err)
			}
		}
	}

	return nil
}

// Labels returns the call labels in order.
func (p Plan) Labels() []string {
	labels := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		labels[i] = c.Label
	}

	return labels
}

// Call is a fully resolved call ready to be submitted.
type Call struct {
	Index    int
	Label    string
	Sender   int
	From     address.Address
	To       address.Address
	Nonce    uint64
	Method   abi.MethodNum
	Params   []byte
	GasLimit int64
}

// Message returns the explicit message for c.
func (c Call) Message() *sandbox.Message {
	return &sandbox.Message{
		From:     c.From,
		To:       c.To,
		Sequence: c.Nonce,
		Method:   c.Method,
		Params:   c.Params,
		GasLimit: c.GasLimit,
	}
}

// Generator produces the call sequence of a Plan.
type Generator struct {
	plan Plan
}

// NewGenerator creates a Generator for plan.
func NewGenerator(plan Plan) *Generator {
	return &Generator{plan: plan}
}

// Generate resolves every call template against accounts and the actor
// address. Nonces are per sender: they start at 0 and grow by one for
// each call that sender makes. Generate has no side effects, so equal
// inputs yield equal sequences.
func (g *Generator) Generate(accounts []sandbox.Account, actor address.Address) ([]Call, error) {
	if len(accounts) < g.plan.Accounts {
		return nil, fmt.Errorf("plan needs %d accounts, got %d", g.plan.Accounts, len(accounts))
	}

	nonces := make(map[int]uint64, len(accounts))
	calls := make([]Call, 0, len(g.plan.Calls))

	for i, tmpl := range g.plan.Calls {
		if tmpl.Sender < 0 || tmpl.Sender >= len(accounts) {
			return nil, fmt.Errorf("call %d (%s): sender index %d out of range",
				i, tmpl.Label, tmpl.Sender)
		}

		args := make([]any, 0, len(tmpl.Args))
		for j, a := range tmpl.Args {
			v, err := a.resolve(accounts)
			if err != nil {
				return nil, fmt.Errorf("call %d (%s) arg %d: %w", i, tmpl.Label, j, err)
			}

			args = append(args, v)
		}

		params, err := token.EncodeParams(args...)
		if err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, tmpl.Label, err)
		}

		nonce := nonces[tmpl.Sender]
		nonces[tmpl.Sender] = nonce + 1

		calls = append(calls, Call{
			Index:    i,
			Label:    tmpl.Label,
			Sender:   tmpl.Sender,
			From:     accounts[tmpl.Sender].Address,
			To:       actor,
			Nonce:    nonce,
			Method:   tmpl.Method,
			Params:   params,
			GasLimit: g.plan.GasLimit,
		})
	}

	return calls, nil
}

// Operation is the JSONL record of one call.
type Operation struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	From     string `json:"from"`
	To       string `json:"to"`
	Nonce    uint64 `json:"nonce"`
	Method   uint64 `json:"method"`
	Name     string `json:"method_name"`
	Params   string `json:"params,omitempty"`
	GasLimit int64  `json:"gas_limit"`
}

// Summary contains statistics about a written call sequence.
type Summary struct {
	TotalCalls int
	Senders    int
}

// WriteJSONL writes calls to w, one JSON object per line.
func WriteJSONL(w io.Writer, calls []Call) (Summary, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var summary Summary

	senders := make(map[int]struct{})

	for _, c := range calls {
		op := Operation{
			Index:    c.Index,
			Label:    c.Label,
			From:     c.From.String(),
			To:       c.To.String(),
			Nonce:    c.Nonce,
			Method:   uint64(c.Method),
			Name:     token.MethodName(c.Method),
			GasLimit: c.GasLimit,
		}
		if len(c.Params) > 0 {
			op.Params = "0x" + hex.EncodeToString(c.Params)
		}

		if err := enc.Encode(op); err != nil {
			return summary, fmt.Errorf("encode call %d: %w", c.Index, err)
		}

		senders[c.Sender] = struct{}{}
		summary.TotalCalls++
	}

	summary.Senders = len(senders)

	return summary, nil
}
