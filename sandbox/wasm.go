package sandbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
)

// WASM actors follow the FVM calling convention. The module exports its
// linear memory and
//
//	invoke(params_block u32) -> return_block u32
//
// and imports syscalls from the modules below. A syscall returning data
// takes a pointer to its output as the first argument and returns an
// error number, 0 on success.
const (
	invokeExport = "invoke"
	memoryExport = "memory"

	// maxCidLen bounds the bytes read when parsing a CID from memory.
	maxCidLen = 100
)

// ErrIllegalActor is returned when installed actor code cannot run on the
// sandbox: it does not compile, imports a syscall the sandbox does not
// provide or lacks the invoke entry point.
var ErrIllegalActor = errors.New("illegal actor code")

type kernelKey struct{}

func withKernel(ctx context.Context, k *kernel) context.Context {
	return context.WithValue(ctx, kernelKey{}, k)
}

func kernelFrom(ctx context.Context) *kernel {
	k, _ := ctx.Value(kernelKey{}).(*kernel)
	return k
}

func mustKernel(ctx context.Context) *kernel {
	k := kernelFrom(ctx)
	if k == nil {
		panic(sys.NewExitError(uint32(sysErrIllegalActor)))
	}

	return k
}

// runWasm instantiates compiled and calls its invoke export. An error is
// returned only when the module cannot be instantiated at all.
func (k *kernel) runWasm(
	ctx context.Context,
	rt wazero.Runtime,
	compiled wazero.CompiledModule,
) (BlockID, bool, error) {
	ctx = withKernel(ctx, k)

	mod, err := rt.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		if k.exit != nil || k.gas.exhausted {
			return NoBlock, false, nil
		}

		return NoBlock, false, fmt.Errorf("instantiate actor: %w", err)
	}
	defer mod.Close(ctx)

	results, err := mod.ExportedFunction(invokeExport).Call(ctx, uint64(k.paramsID))
	if err != nil {
		if k.exit == nil {
			k.exit = exitFromError(err)
		}

		return NoBlock, false, nil
	}

	return BlockID(uint32(results[0])), true, nil
}

func exitFromError(err error) *actorExit {
	var exitErr *sys.ExitError
	if !errors.As(err, &exitErr) {
		return &actorExit{code: sysErrIllegalInstruction, msg: err.Error()}
	}

	if exitErr.ExitCode() == 0 {
		return &actorExit{code: sysErrIllegalActor, msg: "actor exited with code 0"}
	}

	return &actorExit{
		code: exitcode.ExitCode(exitErr.ExitCode()),
		msg:  fmt.Sprintf("actor exited with code %d", exitErr.ExitCode()),
	}
}

// validateActor checks that compiled links against the host modules of
// rt and exposes the FVM entry point.
func validateActor(rt wazero.Runtime, compiled wazero.CompiledModule) error {
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()

		host := rt.Module(module)
		if host == nil {
			return fmt.Errorf("%w: unknown syscall module %q (imported by %s)", ErrIllegalActor, module, name)
		}

		want, ok := host.ExportedFunctionDefinitions()[name]
		if !ok {
			return fmt.Errorf("%w: unknown syscall %s.%s", ErrIllegalActor, module, name)
		}

		if !slices.Equal(def.ParamTypes(), want.ParamTypes()) ||
			!slices.Equal(def.ResultTypes(), want.ResultTypes()) {
			return fmt.Errorf("%w: syscall %s.%s imported with signature %s, want %s",
				ErrIllegalActor, module, name, signature(def), signature(want))
		}
	}

	if len(compiled.ImportedMemories()) > 0 {
		return fmt.Errorf("%w: actor imports memory", ErrIllegalActor)
	}

	if _, ok := compiled.ExportedMemories()[memoryExport]; !ok {
		return fmt.Errorf("%w: actor does not export %q", ErrIllegalActor, memoryExport)
	}

	invoke, ok := compiled.ExportedFunctions()[invokeExport]
	if !ok {
		return fmt.Errorf("%w: actor does not export %q", ErrIllegalActor, invokeExport)
	}

	i32 := []api.ValueType{api.ValueTypeI32}
	if !slices.Equal(invoke.ParamTypes(), i32) || !slices.Equal(invoke.ResultTypes(), i32) {
		return fmt.Errorf("%w: invoke has signature %s, want (i32) -> (i32)", ErrIllegalActor, signature(invoke))
	}

	return nil
}

func signature(def api.FunctionDefinition) string {
	name := func(types []api.ValueType) string {
		out := "("
		for i, t := range types {
			if i > 0 {
				out += " "
			}
			out += api.ValueTypeName(t)
		}

		return out + ")"
	}

	return name(def.ParamTypes()) + " -> " + name(def.ResultTypes())
}

func instantiateHostModules(ctx context.Context, rt wazero.Runtime) error {
	modules := []struct {
		name  string
		funcs map[string]any
	}{
		{"ipld", map[string]any{
			"block_open":   ipldBlockOpen,
			"block_create": ipldBlockCreate,
			"block_read":   ipldBlockRead,
			"block_stat":   ipldBlockStat,
			"block_link":   ipldBlockLink,
		}},
		{"self", map[string]any{
			"root":            selfRoot,
			"set_root":        selfSetRoot,
			"current_balance": selfCurrentBalance,
		}},
		{"message", map[string]any{
			"context": messageContext,
		}},
		{"vm", map[string]any{
			"abort": vmAbort,
		}},
		{"actor", map[string]any{
			"resolve_address": actorResolveAddress,
		}},
		{"network", map[string]any{
			"curr_epoch": networkCurrEpoch,
			"version":    networkVersion,
			"base_fee":   networkBaseFee,
		}},
		{"debug", map[string]any{
			"log":     debugLog,
			"enabled": debugEnabled,
		}},
		{"gas", map[string]any{
			"charge": gasCharge,
		}},
	}

	for _, m := range modules {
		b := rt.NewHostModuleBuilder(m.name)
		for name, fn := range m.funcs {
			b = b.NewFunctionBuilder().WithFunc(fn).Export(name)
		}

		if _, err := b.Instantiate(ctx); err != nil {
			return fmt.Errorf("instantiate %s module: %w", m.name, err)
		}
	}

	return nil
}

func errnoOf(err error) uint32 {
	if err == nil {
		return 0
	}

	var e Errno
	if errors.As(err, &e) {
		return uint32(e)
	}

	return uint32(ErrnoIllegalOperation)
}

func memRead(mod api.Module, ptr, size uint32) ([]byte, bool) {
	mem := mod.Memory()
	if mem == nil {
		return nil, false
	}

	data, ok := mem.Read(ptr, size)
	if !ok {
		return nil, false
	}

	return slices.Clone(data), true
}

func memWrite(mod api.Module, ptr uint32, data []byte) bool {
	mem := mod.Memory()

	return mem != nil && mem.Write(ptr, data)
}

// readCid parses a CID starting at ptr. Bytes past the CID are ignored.
func readCid(mod api.Module, ptr uint32) (cid.Cid, bool) {
	mem := mod.Memory()
	if mem == nil || ptr >= mem.Size() {
		return cid.Undef, false
	}

	size := min(uint32(maxCidLen), mem.Size()-ptr)

	buf, ok := memRead(mod, ptr, size)
	if !ok {
		return cid.Undef, false
	}

	_, c, err := cid.CidFromBytes(buf)
	if err != nil {
		return cid.Undef, false
	}

	return c, true
}

func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func le64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func writeCid(mod api.Module, ret, ptr, maxLen uint32, c cid.Cid) uint32 {
	b := c.Bytes()
	if uint32(len(b)) > maxLen {
		return uint32(ErrnoBufferTooSmall)
	}

	if !memWrite(mod, ptr, b) || !memWrite(mod, ret, le32(uint32(len(b)))) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func ipldBlockOpen(ctx context.Context, mod api.Module, ret, cidPtr uint32) uint32 {
	k := mustKernel(ctx)

	c, ok := readCid(mod, cidPtr)
	if !ok {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalCid)
	}

	id, stat, err := k.BlockOpen(c)
	if err != nil {
		return errnoOf(err)
	}

	// IpldOpen{codec u64, id u32, size u32}
	out := le64(stat.Codec)
	out = binary.LittleEndian.AppendUint32(out, uint32(id))
	out = binary.LittleEndian.AppendUint32(out, stat.Size)

	if !memWrite(mod, ret, out) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func ipldBlockCreate(ctx context.Context, mod api.Module, ret uint32, codec uint64, data, size uint32) uint32 {
	k := mustKernel(ctx)

	buf, ok := memRead(mod, data, size)
	if !ok {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalArgument)
	}

	id, err := k.BlockCreate(codec, buf)
	if err != nil {
		return errnoOf(err)
	}

	if !memWrite(mod, ret, le32(uint32(id))) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func ipldBlockRead(ctx context.Context, mod api.Module, ret, id, offset, obuf, maxLen uint32) uint32 {
	k := mustKernel(ctx)

	buf := make([]byte, maxLen)

	n, err := k.BlockRead(BlockID(id), offset, buf)
	if err != nil {
		return errnoOf(err)
	}

	if !memWrite(mod, obuf, buf[:n]) || !memWrite(mod, ret, le32(uint32(n))) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func ipldBlockStat(ctx context.Context, mod api.Module, ret, id uint32) uint32 {
	k := mustKernel(ctx)

	stat, err := k.BlockStat(BlockID(id))
	if err != nil {
		return errnoOf(err)
	}

	// IpldStat{codec u64, size u32}
	out := binary.LittleEndian.AppendUint32(le64(stat.Codec), stat.Size)
	if !memWrite(mod, ret, out) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func ipldBlockLink(
	ctx context.Context,
	mod api.Module,
	ret, id uint32,
	hashFun uint64,
	hashLen, cidPtr, cidMax uint32,
) uint32 {
	k := mustKernel(ctx)

	c, err := k.BlockLink(BlockID(id), hashFun, hashLen)
	if err != nil {
		return errnoOf(err)
	}

	return writeCid(mod, ret, cidPtr, cidMax, c)
}

func selfRoot(ctx context.Context, mod api.Module, ret, cidPtr, cidMax uint32) uint32 {
	k := mustKernel(ctx)

	return writeCid(mod, ret, cidPtr, cidMax, k.Root())
}

func selfSetRoot(ctx context.Context, mod api.Module, cidPtr uint32) uint32 {
	k := mustKernel(ctx)

	c, ok := readCid(mod, cidPtr)
	if !ok {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalCid)
	}

	return errnoOf(k.SetRoot(c))
}

func writeTokenAmount(mod api.Module, ret uint32, lo, hi uint64) uint32 {
	if !memWrite(mod, ret, append(le64(lo), le64(hi)...)) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func selfCurrentBalance(ctx context.Context, mod api.Module, ret uint32) uint32 {
	lo, hi := tokenAmountWords(mustKernel(ctx).CurrentBalance())

	return writeTokenAmount(mod, ret, lo, hi)
}

func messageContext(ctx context.Context, mod api.Module, ret uint32) uint32 {
	msg := mustKernel(ctx).Message()

	// MessageContext{origin, caller, receiver, method u64, value_received {lo, hi u64}}
	out := le64(uint64(msg.Origin))
	out = binary.LittleEndian.AppendUint64(out, uint64(msg.Caller))
	out = binary.LittleEndian.AppendUint64(out, uint64(msg.Receiver))
	out = binary.LittleEndian.AppendUint64(out, uint64(msg.Method))

	lo, hi := tokenAmountWords(msg.ValueReceived)
	out = binary.LittleEndian.AppendUint64(out, lo)
	out = binary.LittleEndian.AppendUint64(out, hi)

	if !memWrite(mod, ret, out) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func vmAbort(ctx context.Context, mod api.Module, code, msgPtr, msgLen uint32) {
	k := mustKernel(ctx)

	var msg string
	if msgLen > 0 {
		if data, ok := memRead(mod, msgPtr, msgLen); ok {
			msg = string(data)
		}
	}

	k.Abort(exitcode.ExitCode(code), msg)
}

func actorResolveAddress(ctx context.Context, mod api.Module, ret, addrPtr, addrLen uint32) uint32 {
	k := mustKernel(ctx)

	raw, ok := memRead(mod, addrPtr, addrLen)
	if !ok {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalArgument)
	}

	addr, err := address.NewFromBytes(raw)
	if err != nil {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalArgument)
	}

	// ResolveAddress{resolved i32, value u64}
	id, found := k.ResolveAddress(addr)

	var resolved uint32
	if found {
		resolved = 1
	}

	if !memWrite(mod, ret, append(le32(resolved), le64(uint64(id))...)) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func networkCurrEpoch(ctx context.Context, mod api.Module, ret uint32) uint32 {
	epoch := mustKernel(ctx).CurrentEpoch()
	if !memWrite(mod, ret, le64(uint64(epoch))) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func networkVersion(ctx context.Context, mod api.Module, ret uint32) uint32 {
	nv := mustKernel(ctx).NetworkVersion()
	if !memWrite(mod, ret, le32(uint32(nv))) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func networkBaseFee(ctx context.Context, mod api.Module, ret uint32) uint32 {
	lo, hi := tokenAmountWords(mustKernel(ctx).BaseFee())

	return writeTokenAmount(mod, ret, lo, hi)
}

func debugLog(ctx context.Context, mod api.Module, msgPtr, msgLen uint32) uint32 {
	k := mustKernel(ctx)

	data, ok := memRead(mod, msgPtr, msgLen)
	if !ok {
		k.charge(k.prices.Syscall)
		return uint32(ErrnoIllegalArgument)
	}

	k.Log(string(data))

	return 0
}

func debugEnabled(ctx context.Context, mod api.Module, ret uint32) uint32 {
	k := mustKernel(ctx)
	k.charge(k.prices.Syscall)

	// Logging is always on so actor logs end up in the receipt.
	if !memWrite(mod, ret, le32(1)) {
		return uint32(ErrnoIllegalArgument)
	}

	return 0
}

func gasCharge(ctx context.Context, mod api.Module, namePtr, nameLen uint32, amount uint64) uint32 {
	k := mustKernel(ctx)

	name, _ := memRead(mod, namePtr, nameLen)
	k.ChargeGas(string(name), int64(amount))

	return 0
}

// meterFactory charges FunctionCall gas on entry to every function the
// actor defines.
type meterFactory struct{}

func withMeter(ctx context.Context) context.Context {
	return experimental.WithFunctionListenerFactory(ctx, meterFactory{})
}

func (meterFactory) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	if _, _, imported := def.Import(); imported {
		return nil
	}

	return meterListener{}
}

type meterListener struct{}

func (meterListener) Before(
	ctx context.Context,
	mod api.Module,
	_ api.FunctionDefinition,
	_ []uint64,
	_ experimental.StackIterator,
) {
	k := kernelFrom(ctx)
	if k == nil {
		return
	}

	if !k.gas.charge(k.prices.FunctionCall) {
		code := uint32(exitcode.SysErrOutOfGas)
		_ = mod.CloseWithExitCode(ctx, code)
		panic(sys.NewExitError(code))
	}
}

func (meterListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (meterListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
