package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	"github.com/tetratelabs/wazero"
)

// ErrExecutorClosed is returned by an Executor after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Executor applies messages to a finalized state tree. Messages are
// applied one at a time; it is not safe for concurrent use.
type Executor struct {
	nv       network.Version
	store    Blockstore
	tree     *StateTree
	resolve  map[address.Address]address.Address
	prices   PriceList
	baseRoot cid.Cid
	natives  map[cid.Cid]NativeActor

	runtime   wazero.Runtime
	compiled  map[cid.Cid]wazero.CompiledModule
	codeSizes map[cid.Cid]int
	closed    bool
}

func newExecutor(ctx context.Context, t *Tester, root cid.Cid) (*Executor, error) {
	rt := wazero.NewRuntimeWithConfig(ctx,
		wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true))

	if err := instantiateHostModules(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	e := &Executor{
		nv:        t.networkVersion,
		store:     t.store,
		tree:      t.tree,
		resolve:   t.resolve,
		prices:    t.prices,
		baseRoot:  root,
		natives:   t.natives,
		runtime:   rt,
		compiled:  make(map[cid.Cid]wazero.CompiledModule),
		codeSizes: make(map[cid.Cid]int),
	}

	if err := e.loadCode(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	return e, nil
}

// Close releases the wazero runtime and every compiled module.
func (e *Executor) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}

	e.closed = true

	return e.runtime.Close(ctx)
}

// BaseRoot returns the state root the machine was instantiated with.
func (e *Executor) BaseRoot() cid.Cid {
	return e.baseRoot
}

// Flush persists the current state tree and returns its root.
func (e *Executor) Flush() (cid.Cid, error) {
	return e.tree.Flush()
}

// StateHead returns the current state CID of the actor at addr.
func (e *Executor) StateHead(addr address.Address) (cid.Cid, error) {
	id, ok := e.lookupID(addr)
	if !ok {
		return cid.Undef, fmt.Errorf("%w: %s", ErrActorNotFound, addr)
	}

	act, err := e.tree.GetActor(id)
	if err != nil {
		return cid.Undef, err
	}

	return act.Head, nil
}

func (e *Executor) lookupID(addr address.Address) (address.Address, bool) {
	if addr.Protocol() == address.ID {
		_, err := e.tree.GetActor(addr)
		return addr, err == nil
	}

	id, ok := e.resolve[addr]

	return id, ok
}

// ExecuteMessage applies msg and returns its receipt. rawLength is the
// serialized size of the message and is charged as inclusion gas for
// explicit messages. A non-success exit code is reported in the receipt;
// the returned error is reserved for faults of the executor itself.
func (e *Executor) ExecuteMessage(
	ctx context.Context,
	msg *Message,
	kind ApplyKind,
	rawLength int,
) (*ApplyRet, error) {
	if e.closed {
		return nil, ErrExecutorClosed
	}

	if msg == nil {
		return nil, errors.New("execute message: nil message")
	}

	if rawLength < 0 {
		return nil, fmt.Errorf("execute message: negative raw length %d", rawLength)
	}

	gas := &gasTracker{limit: msg.GasLimit}
	fromID, fromKnown := e.lookupID(msg.From)

	if kind == Explicit {
		if !fromKnown {
			return prevalidationFailure(exitcode.SysErrSenderInvalid,
				"sender %s not found", msg.From), nil
		}

		inclusion := e.prices.OnChainMessage(rawLength)
		if msg.GasLimit < inclusion {
			return prevalidationFailure(exitcode.SysErrOutOfGas,
				"gas limit %d below inclusion cost %d", msg.GasLimit, inclusion), nil
		}

		from, err := e.tree.GetActor(fromID)
		if err != nil {
			return nil, err
		}

		if from.Sequence != msg.Sequence {
			return prevalidationFailure(exitcode.SysErrSenderStateInvalid,
				"actor sequence invalid: %d != %d", msg.Sequence, from.Sequence), nil
		}

		gas.charge(inclusion)

		from.Sequence++
		if err := e.tree.SetActor(fromID, from); err != nil {
			return nil, err
		}
	}

	return e.send(ctx, msg, fromID, fromKnown, gas)
}

func prevalidationFailure(code exitcode.ExitCode, format string, args ...any) *ApplyRet {
	return &ApplyRet{
		Receipt:     Receipt{ExitCode: code},
		FailureInfo: fmt.Sprintf(format, args...),
	}
}

func failure(gas *gasTracker, code exitcode.ExitCode, format string, args ...any) *ApplyRet {
	return &ApplyRet{
		Receipt:     Receipt{ExitCode: code, GasUsed: gas.used},
		FailureInfo: fmt.Sprintf(format, args...),
	}
}

func outOfGas(gas *gasTracker) *ApplyRet {
	return failure(gas, exitcode.SysErrOutOfGas, "out of gas (limit %d)", gas.limit)
}

func (e *Executor) send(
	ctx context.Context,
	msg *Message,
	fromID address.Address,
	fromKnown bool,
	gas *gasTracker,
) (*ApplyRet, error) {
	if !gas.charge(e.prices.SendBase) {
		return outOfGas(gas), nil
	}

	toID, ok := e.lookupID(msg.To)
	if !ok {
		return failure(gas, exitcode.SysErrInvalidReceiver,
			"receiver %s not found", msg.To), nil
	}

	to, err := e.tree.GetActor(toID)
	if err != nil {
		return nil, err
	}

	value := msg.Value
	if value.Int == nil {
		value = big.Zero()
	}

	if value.Sign() < 0 {
		return failure(gas, sysErrIllegalArgument,
			"negative value %s", value), nil
	}

	transfer := value.Sign() > 0 && fromKnown && fromID != toID
	if transfer {
		from, err := e.tree.GetActor(fromID)
		if err != nil {
			return nil, err
		}

		if big.Cmp(from.Balance, value) < 0 {
			return failure(gas, exitcode.SysErrInsufficientFunds,
				"sender balance %s below value %s", from.Balance, value), nil
		}
	}

	var (
		ret  []byte
		logs []string
	)

	if msg.Method != 0 && to.Code != accountCode {
		k := e.newKernel(msg, fromID, toID, to, value, gas)

		applyRet, err := e.invoke(ctx, to.Code, k)
		if err != nil || applyRet != nil {
			return applyRet, err
		}

		if !gas.charge(int64(len(k.ret)) * e.prices.OnChainReturnValuePerByte) {
			return outOfGas(gas), nil
		}

		if err := k.commit(); err != nil {
			return nil, err
		}

		to.Head = k.root
		ret = k.ret
		logs = k.logs
	} else if msg.Method != 0 {
		return failure(gas, exitcode.SysErrInvalidMethod,
			"method %d on account actor %s", msg.Method, msg.To), nil
	}

	if transfer {
		from, err := e.tree.GetActor(fromID)
		if err != nil {
			return nil, err
		}

		from.Balance = big.Sub(from.Balance, value)
		to.Balance = big.Add(to.Balance, value)

		if err := e.tree.SetActor(fromID, from); err != nil {
			return nil, err
		}
	}

	if err := e.tree.SetActor(toID, to); err != nil {
		return nil, err
	}

	return &ApplyRet{
		Receipt: Receipt{
			ExitCode: exitcode.Ok,
			Return:   ret,
			GasUsed:  gas.used,
		},
		Logs: logs,
	}, nil
}

func (e *Executor) newKernel(
	msg *Message,
	fromID, toID address.Address,
	to *Actor,
	value abi.TokenAmount,
	gas *gasTracker,
) *kernel {
	k := &kernel{
		msg: MessageContext{
			Method:        msg.Method,
			ValueReceived: value,
		},
		nv:      e.nv,
		balance: big.Add(to.Balance, value),
		baseFee: BaseFee(),
		root:    to.Head,
		store:   e.store,
		pending: make(map[cid.Cid][]byte),
		resolve: e.lookupID,
		prices:  e.prices,
		gas:     gas,
	}

	if id, err := address.IDFromAddress(fromID); err == nil {
		k.msg.Origin = abi.ActorID(id)
		k.msg.Caller = abi.ActorID(id)
	}

	if id, err := address.IDFromAddress(toID); err == nil {
		k.msg.Receiver = abi.ActorID(id)
	}

	k.addParams(msg.Params)

	return k
}

// loadCode compiles and validates every WASM actor installed in the tree.
// Native code and builtin actors are skipped.
func (e *Executor) loadCode(ctx context.Context) error {
	return e.tree.ForEach(func(addr address.Address, act *Actor) error {
		code := act.Code
		if code.Prefix().Codec != cid.Raw || code.Prefix().MhType == builtinPrefix.MhType {
			return nil
		}

		if _, ok := e.natives[code]; ok {
			return nil
		}

		if _, ok := e.compiled[code]; ok {
			return nil
		}

		bin, err := e.store.Get(code)
		if err != nil {
			return fmt.Errorf("load code of %s: %w", addr, err)
		}

		compiled, err := e.runtime.CompileModule(withMeter(ctx), bin)
		if err != nil {
			return fmt.Errorf("actor %s: %w: %v", addr, ErrIllegalActor, err)
		}

		if err := validateActor(e.runtime, compiled); err != nil {
			return fmt.Errorf("actor %s: %w", addr, err)
		}

		e.compiled[code] = compiled
		e.codeSizes[code] = len(bin)

		return nil
	})
}

// invoke runs the actor code behind k. It returns a non-nil ApplyRet when
// the invocation ended with a non-success exit code, and an error when
// the executor itself failed.
func (e *Executor) invoke(ctx context.Context, code cid.Cid, k *kernel) (*ApplyRet, error) {
	var (
		retID BlockID
		ok    bool
	)

	if native, found := e.natives[code]; found {
		retID, ok = k.runNative(native)
	} else {
		compiled, found := e.compiled[code]
		if !found {
			return nil, fmt.Errorf("code %s: %w", code, ErrNotFound)
		}

		if !k.gas.charge(int64(e.codeSizes[code]) * e.prices.InstantiatePerCodeByte) {
			return outOfGas(k.gas), nil
		}

		var err error

		retID, ok, err = k.runWasm(ctx, e.runtime, compiled)
		if err != nil {
			return nil, err
		}
	}

	if k.gas.exhausted {
		return outOfGas(k.gas), nil
	}

	if !ok {
		exit := k.exit
		if exit == nil {
			exit = &actorExit{code: sysErrIllegalActor, msg: "invocation ended without exit code"}
		}

		ret := failure(k.gas, exit.code, "%s", exit.msg)
		ret.Logs = k.logs

		return ret, nil
	}

	data, found := k.returnData(retID)
	if !found {
		return failure(k.gas, sysErrIllegalActor, "invoke returned unknown block %d", retID), nil
	}

	k.ret = data

	return nil, nil
}
