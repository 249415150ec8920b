package sandbox

import (
	"fmt"
	"math/big"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/tetratelabs/wazero/sys"
)

// BlockID names a block opened or created during one invocation. NoBlock
// stands for absent params and for an empty return value.
type BlockID uint32

// NoBlock is the reserved "no data" block.
const NoBlock BlockID = 0

// Codecs accepted by BlockCreate.
const (
	CodecRaw     = uint64(cid.Raw)
	CodecDagCBOR = uint64(cid.DagCBOR)
)

// HashBlake2b256 is the only multihash BlockLink accepts.
const HashBlake2b256 = uint64(mh.BLAKE2B_MIN + 31)

// Errno is a recoverable syscall error handed back to the actor. The
// numbering follows the FVM error numbers.
type Errno uint32

// Syscall errors.
const (
	ErrnoIllegalArgument Errno = iota + 1
	ErrnoIllegalOperation
	ErrnoLimitExceeded
	ErrnoAssertionFailed
	ErrnoInsufficientFunds
	ErrnoNotFound
	ErrnoInvalidHandle
	ErrnoIllegalCid
	ErrnoIllegalCodec
	ErrnoSerialization
	ErrnoForbidden
	ErrnoBufferTooSmall
)

var errnoNames = map[Errno]string{
	ErrnoIllegalArgument:   "illegal argument",
	ErrnoIllegalOperation:  "illegal operation",
	ErrnoLimitExceeded:     "limit exceeded",
	ErrnoAssertionFailed:   "assertion failed",
	ErrnoInsufficientFunds: "insufficient funds",
	ErrnoNotFound:          "not found",
	ErrnoInvalidHandle:     "invalid handle",
	ErrnoIllegalCid:        "illegal cid",
	ErrnoIllegalCodec:      "illegal codec",
	ErrnoSerialization:     "serialization",
	ErrnoForbidden:         "forbidden",
	ErrnoBufferTooSmall:    "buffer too small",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return "syscall error: " + name
	}

	return fmt.Sprintf("syscall error %d", uint32(e))
}

// BlockStat describes an open block.
type BlockStat struct {
	Codec uint64
	Size  uint32
}

// MessageContext is what the actor learns about the message invoking it.
type MessageContext struct {
	Origin        abi.ActorID
	Caller        abi.ActorID
	Receiver      abi.ActorID
	Method        abi.MethodNum
	ValueReceived abi.TokenAmount
}

// Runtime is the syscall surface of one invocation. WASM actors reach it
// through the host modules; native actors call it directly. Abort and
// running out of gas end the invocation and do not return.
type Runtime interface {
	Message() MessageContext
	NetworkVersion() network.Version
	CurrentEpoch() abi.ChainEpoch
	BaseFee() abi.TokenAmount
	CurrentBalance() abi.TokenAmount

	Root() cid.Cid
	SetRoot(c cid.Cid) error

	BlockOpen(c cid.Cid) (BlockID, BlockStat, error)
	BlockStat(id BlockID) (BlockStat, error)
	BlockRead(id BlockID, offset uint32, buf []byte) (int, error)
	BlockCreate(codec uint64, data []byte) (BlockID, error)
	BlockLink(id BlockID, hashFun uint64, hashLen uint32) (cid.Cid, error)

	ResolveAddress(addr address.Address) (abi.ActorID, bool)
	ChargeGas(name string, amount int64)
	Log(msg string)
	Abort(code exitcode.ExitCode, msg string)
}

// NativeActor is actor code implemented in Go against Runtime.
type NativeActor interface {
	Invoke(rt Runtime, params BlockID) BlockID
}

type block struct {
	codec uint64
	data  []byte
}

type actorExit struct {
	code exitcode.ExitCode
	msg  string
}

// kernel implements Runtime for one message. Blocks linked during the
// invocation stay pending until the executor commits them.
type kernel struct {
	msg      MessageContext
	nv       network.Version
	balance  abi.TokenAmount
	baseFee  abi.TokenAmount
	root     cid.Cid
	paramsID BlockID

	store   Blockstore
	pending map[cid.Cid][]byte
	blocks  []block
	resolve func(address.Address) (address.Address, bool)
	prices  PriceList
	gas     *gasTracker

	exit *actorExit
	ret  []byte
	logs []string
}

func (k *kernel) addParams(params []byte) {
	if len(params) == 0 {
		return
	}

	k.blocks = append(k.blocks, block{codec: CodecDagCBOR, data: params})
	k.paramsID = BlockID(len(k.blocks))
}

// terminate records why the invocation ends and unwinds the actor.
func (k *kernel) terminate(code exitcode.ExitCode, format string, args ...any) {
	if k.exit == nil {
		k.exit = &actorExit{code: code, msg: fmt.Sprintf(format, args...)}
	}

	panic(sys.NewExitError(uint32(code)))
}

func (k *kernel) charge(amount int64) {
	if !k.gas.charge(amount) {
		k.terminate(exitcode.SysErrOutOfGas, "out of gas (limit %d)", k.gas.limit)
	}
}

func (k *kernel) block(id BlockID) (block, error) {
	if id == NoBlock || int(id) > len(k.blocks) {
		return block{}, ErrnoInvalidHandle
	}

	return k.blocks[id-1], nil
}

func (k *kernel) load(c cid.Cid) ([]byte, bool) {
	if data, ok := k.pending[c]; ok {
		return data, true
	}

	data, err := k.store.Get(c)
	if err != nil {
		return nil, false
	}

	return data, true
}

func (k *kernel) Message() MessageContext {
	k.charge(k.prices.Syscall)

	return k.msg
}

func (k *kernel) NetworkVersion() network.Version {
	k.charge(k.prices.Syscall)

	return k.nv
}

func (k *kernel) CurrentEpoch() abi.ChainEpoch {
	k.charge(k.prices.Syscall)

	return 0
}

func (k *kernel) BaseFee() abi.TokenAmount {
	k.charge(k.prices.Syscall)

	return k.baseFee
}

func (k *kernel) CurrentBalance() abi.TokenAmount {
	k.charge(k.prices.Syscall)

	return k.balance
}

func (k *kernel) Root() cid.Cid {
	k.charge(k.prices.Syscall)

	return k.root
}

func (k *kernel) SetRoot(c cid.Cid) error {
	k.charge(k.prices.Syscall)

	if !c.Defined() {
		return ErrnoIllegalCid
	}

	if _, ok := k.pending[c]; !ok && !k.store.Has(c) {
		return ErrnoNotFound
	}

	k.root = c

	return nil
}

func (k *kernel) BlockOpen(c cid.Cid) (BlockID, BlockStat, error) {
	k.charge(k.prices.Syscall + k.prices.BlockOpenBase)

	data, ok := k.load(c)
	if !ok {
		return NoBlock, BlockStat{}, ErrnoNotFound
	}

	k.charge(int64(len(data)) * k.prices.BlockOpenPerByte)

	codec := c.Prefix().Codec
	k.blocks = append(k.blocks, block{codec: codec, data: data})

	return BlockID(len(k.blocks)), BlockStat{Codec: codec, Size: uint32(len(data))}, nil
}

func (k *kernel) BlockStat(id BlockID) (BlockStat, error) {
	k.charge(k.prices.Syscall)

	b, err := k.block(id)
	if err != nil {
		return BlockStat{}, err
	}

	return BlockStat{Codec: b.codec, Size: uint32(len(b.data))}, nil
}

func (k *kernel) BlockRead(id BlockID, offset uint32, buf []byte) (int, error) {
	k.charge(k.prices.Syscall)

	b, err := k.block(id)
	if err != nil {
		return 0, err
	}

	if int(offset) > len(b.data) {
		return 0, ErrnoIllegalArgument
	}

	n := copy(buf, b.data[offset:])
	k.charge(int64(n) * k.prices.BlockReadPerByte)

	return n, nil
}

func (k *kernel) BlockCreate(codec uint64, data []byte) (BlockID, error) {
	k.charge(k.prices.Syscall + k.prices.BlockCreateBase +
		int64(len(data))*k.prices.BlockCreatePerByte)

	if codec != CodecRaw && codec != CodecDagCBOR {
		return NoBlock, ErrnoIllegalCodec
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	k.blocks = append(k.blocks, block{codec: codec, data: buf})

	return BlockID(len(k.blocks)), nil
}

func (k *kernel) BlockLink(id BlockID, hashFun uint64, hashLen uint32) (cid.Cid, error) {
	b, err := k.block(id)
	if err != nil {
		k.charge(k.prices.Syscall)
		return cid.Undef, err
	}

	k.charge(k.prices.Syscall + k.prices.BlockLinkBase +
		int64(len(b.data))*k.prices.BlockLinkPerByte)

	if hashFun != HashBlake2b256 || hashLen != 32 {
		return cid.Undef, ErrnoIllegalArgument
	}

	prefix := cborPrefix
	prefix.Codec = b.codec

	c, err := prefix.Sum(b.data)
	if err != nil {
		return cid.Undef, ErrnoIllegalCid
	}

	k.pending[c] = b.data

	return c, nil
}

func (k *kernel) ResolveAddress(addr address.Address) (abi.ActorID, bool) {
	k.charge(k.prices.Syscall)

	idAddr, ok := k.resolve(addr)
	if !ok {
		return 0, false
	}

	id, err := address.IDFromAddress(idAddr)
	if err != nil {
		return 0, false
	}

	return abi.ActorID(id), true
}

func (k *kernel) ChargeGas(_ string, amount int64) {
	k.charge(amount)
}

func (k *kernel) Log(msg string) {
	k.charge(k.prices.Syscall)
	k.logs = append(k.logs, msg)
}

// Abort ends the invocation with code. Codes in the system range are
// reserved to the VM and turn into an illegal-actor exit.
func (k *kernel) Abort(code exitcode.ExitCode, msg string) {
	if code < exitcode.FirstActorErrorCode {
		k.terminate(sysErrIllegalActor, "actor aborted with reserved exit code %d: %s", code, msg)
	}

	if msg == "" {
		msg = fmt.Sprintf("actor aborted with exit code %d", code)
	}

	k.terminate(code, "%s", msg)
}

// runNative calls actor and converts a panic that is not a termination
// into an illegal-instruction exit.
func (k *kernel) runNative(actor NativeActor) (ret BlockID, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if k.exit == nil {
				k.exit = &actorExit{code: sysErrIllegalInstruction, msg: fmt.Sprint(r)}
			}

			ret, ok = NoBlock, false
		}
	}()

	return actor.Invoke(k, k.paramsID), true
}

// returnData resolves the block the actor returned.
func (k *kernel) returnData(id BlockID) ([]byte, bool) {
	if id == NoBlock {
		return nil, true
	}

	b, err := k.block(id)
	if err != nil {
		return nil, false
	}

	return b.data, true
}

// commit writes every block linked during the invocation to the store.
func (k *kernel) commit() error {
	for c, data := range k.pending {
		if err := k.store.Put(c, data); err != nil {
			return fmt.Errorf("commit block %s: %w", c, err)
		}
	}

	return nil
}

// tokenAmountWords splits a non-negative amount into its low and high
// 64-bit words, the layout the FVM uses for token amounts in memory.
func tokenAmountWords(v abi.TokenAmount) (lo, hi uint64) {
	if v.Int == nil || v.Sign() <= 0 {
		return 0, 0
	}

	mask := new(big.Int).SetUint64(^uint64(0))
	lo = new(big.Int).And(v.Int, mask).Uint64()
	hi = new(big.Int).Rsh(v.Int, 64).Uint64()

	return lo, hi
}
