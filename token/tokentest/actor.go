// Package tokentest implements the ERC20 token actor in Go against the
// sandbox runtime. It keeps real balances and allowances across calls, so
// tests can check the effect of a call sequence without a compiled
// binary.
//
// Accounts are keyed by actor ID ("101"). Address arguments and the
// robust keys of an initial state are resolved to IDs on load.
package tokentest

import (
	"fmt"
	"strconv"

	cbor "github.com/Salvionied/cbor/v2"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/token"
)

// Actor is a stateless handle; all state lives behind the actor root.
type Actor struct{}

var _ sandbox.NativeActor = Actor{}

// AllowanceKey is the Allowed map key of spender's allowance from owner.
func AllowanceKey(owner, spender string) string {
	return owner + ":" + spender
}

// Invoke dispatches on the message method.
func (Actor) Invoke(rt sandbox.Runtime, params sandbox.BlockID) sandbox.BlockID {
	msg := rt.Message()
	caller := strconv.FormatUint(uint64(msg.Caller), 10)

	st := loadState(rt)
	args := readArgs(rt, params)

	var reply string

	switch msg.Method {
	case token.MethodGetName:
		reply = "Token name: " + st.Name
	case token.MethodGetSymbol:
		reply = "Token symbol: " + st.Symbol
	case token.MethodGetDecimal:
		reply = fmt.Sprintf("Token decimal: %d", st.Decimals)
	case token.MethodGetTotalSupply:
		reply = fmt.Sprintf("Token total supply: %d", st.TotalSupply)
	case token.MethodGetBalanceOf:
		wantArgs(rt, args, 1)
		reply = fmt.Sprintf("Balance: %d", st.Balances[accountArg(rt, args[0])])
	case token.MethodTransfer:
		wantArgs(rt, args, 2)
		receiver, amount := accountArg(rt, args[0]), amountArg(rt, args[1])

		move(rt, st, caller, receiver, amount)
		saveState(rt, st)

		reply = fmt.Sprintf("from %s to %s amount %d", caller, receiver, amount)
	case token.MethodAllowance:
		wantArgs(rt, args, 2)
		owner, spender := accountArg(rt, args[0]), accountArg(rt, args[1])

		reply = fmt.Sprintf("Allowance for %s by %s: %d", spender, owner,
			st.Allowed[AllowanceKey(owner, spender)])
	case token.MethodTransferFrom:
		wantArgs(rt, args, 3)
		owner, receiver, amount := accountArg(rt, args[0]), accountArg(rt, args[1]), amountArg(rt, args[2])

		key := AllowanceKey(owner, caller)

		approved := st.Allowed[key]
		if approved == 0 {
			rt.Abort(exitcode.ErrAssertionFailed, "approved amount should be greater than zero")
		}

		if amount > approved {
			rt.Abort(exitcode.ErrAssertionFailed,
				fmt.Sprintf("transfer amount should be less than approved spending amount of %s", caller))
		}

		move(rt, st, owner, receiver, amount)
		st.Allowed[key] = approved - amount
		saveState(rt, st)

		reply = "Transaction successful"
	case token.MethodApproval:
		wantArgs(rt, args, 2)
		amount, spender := amountArg(rt, args[0]), accountArg(rt, args[1])

		key := AllowanceKey(caller, spender)
		st.Allowed[key] += amount
		saveState(rt, st)

		reply = fmt.Sprintf("approval %s for %d", key, st.Allowed[key])
	default:
		rt.Abort(exitcode.ErrUnhandledMessage, fmt.Sprintf("unknown method %d", msg.Method))
	}

	ret, err := rt.BlockCreate(sandbox.CodecRaw, []byte(reply))
	if err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}

	return ret
}

func move(rt sandbox.Runtime, st *token.State, from, to string, amount uint64) {
	balance := st.Balances[from]
	if balance < amount {
		rt.Abort(exitcode.ErrAssertionFailed,
			fmt.Sprintf("transfer amount should be less than or equal to balance of %s", from))
	}

	st.Balances[from] = balance - amount
	st.Balances[to] += amount
}

func readBlock(rt sandbox.Runtime, id sandbox.BlockID) []byte {
	stat, err := rt.BlockStat(id)
	if err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}

	data := make([]byte, stat.Size)
	if _, err := rt.BlockRead(id, 0, data); err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}

	return data
}

func loadState(rt sandbox.Runtime) *token.State {
	id, _, err := rt.BlockOpen(rt.Root())
	if err != nil {
		rt.Abort(exitcode.ErrIllegalState, "open state: "+err.Error())
	}

	st, err := token.DecodeState(readBlock(rt, id))
	if err != nil {
		rt.Abort(exitcode.ErrSerialization, err.Error())
	}

	if st.Balances == nil || st.Allowed == nil {
		rt.Abort(exitcode.ErrIllegalState, "state maps must not be null")
	}

	balances := make(map[string]uint64, len(st.Balances))
	for k, v := range st.Balances {
		balances[normalize(rt, k)] += v
	}

	st.Balances = balances

	return st
}

func saveState(rt sandbox.Runtime, st *token.State) {
	data, err := token.EncodeState(st)
	if err != nil {
		rt.Abort(exitcode.ErrSerialization, err.Error())
	}

	id, err := rt.BlockCreate(sandbox.CodecDagCBOR, data)
	if err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}

	root, err := rt.BlockLink(id, sandbox.HashBlake2b256, 32)
	if err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}

	if err := rt.SetRoot(root); err != nil {
		rt.Abort(exitcode.ErrIllegalState, err.Error())
	}
}

func readArgs(rt sandbox.Runtime, params sandbox.BlockID) []any {
	if params == sandbox.NoBlock {
		return nil
	}

	var args []any
	if err := cbor.Unmarshal(readBlock(rt, params), &args); err != nil {
		rt.Abort(exitcode.ErrSerialization, "params expected to be an array: "+err.Error())
	}

	return args
}

func wantArgs(rt sandbox.Runtime, args []any, n int) {
	if len(args) != n {
		rt.Abort(exitcode.ErrIllegalArgument,
			fmt.Sprintf("method takes %d parameters, got %d", n, len(args)))
	}
}

// normalize maps an address string to the ID of the actor behind it.
// Strings that are not resolvable addresses are kept as they are.
func normalize(rt sandbox.Runtime, s string) string {
	addr, err := address.NewFromString(s)
	if err != nil {
		return s
	}

	id, ok := rt.ResolveAddress(addr)
	if !ok {
		return s
	}

	return strconv.FormatUint(uint64(id), 10)
}

func accountArg(rt sandbox.Runtime, v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		rt.Abort(exitcode.ErrIllegalArgument, fmt.Sprintf("expected an address, got %v", v))
	}

	return normalize(rt, s)
}

func amountArg(rt sandbox.Runtime, v any) uint64 {
	n, ok := v.(uint64)
	if !ok || n == 0 {
		rt.Abort(exitcode.ErrAssertionFailed, fmt.Sprintf("amount should be greater than zero, got %v", v))
	}

	return n
}
