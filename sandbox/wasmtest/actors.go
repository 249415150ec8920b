package wasmtest

// Syscall imports, with the signatures the sandbox host modules export.
var (
	BlockOpen = Import{"ipld", "block_open", FuncType{
		Params: []ValType{I32, I32}, Results: []ValType{I32},
	}}
	BlockCreate = Import{"ipld", "block_create", FuncType{
		Params: []ValType{I32, I64, I32, I32}, Results: []ValType{I32},
	}}
	BlockRead = Import{"ipld", "block_read", FuncType{
		Params: []ValType{I32, I32, I32, I32, I32}, Results: []ValType{I32},
	}}
	BlockLink = Import{"ipld", "block_link", FuncType{
		Params: []ValType{I32, I32, I64, I32, I32, I32}, Results: []ValType{I32},
	}}
	Root = Import{"self", "root", FuncType{
		Params: []ValType{I32, I32, I32}, Results: []ValType{I32},
	}}
	SetRoot = Import{"self", "set_root", FuncType{
		Params: []ValType{I32}, Results: []ValType{I32},
	}}
	MessageContext = Import{"message", "context", FuncType{
		Params: []ValType{I32}, Results: []ValType{I32},
	}}
	Abort = Import{"vm", "abort", FuncType{
		Params: []ValType{I32, I32, I32},
	}}
	Log = Import{"debug", "log", FuncType{
		Params: []ValType{I32, I32}, Results: []ValType{I32},
	}}
)

const (
	codecRaw       = 0x55
	codecDagCBOR   = 0x71
	blake2b256     = 0xb220
	messageDataPtr = 256
)

var invokeType = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}

// Actor builds a module with one page of memory whose invoke export runs
// body after the given imports.
func Actor(imports []Import, body []byte, data ...Data) []byte {
	return Module{
		Imports:     imports,
		Funcs:       []Func{{Type: invokeType, Body: body}},
		Exports:     []Export{{Name: "invoke", Func: uint32(len(imports))}},
		MemoryPages: 1,
		Data:        data,
	}.Bytes()
}

// Const returns nothing when code is 0 and aborts with code otherwise.
func Const(code uint32) []byte {
	if code == 0 {
		return Actor(nil, I32Const(0))
	}

	return Actor([]Import{Abort}, Code(
		I32Const(int32(code)), I32Const(0), I32Const(0), Call(0),
		Unreachable,
	))
}

// AbortWith aborts with code and msg.
func AbortWith(code uint32, msg string) []byte {
	return Actor([]Import{Abort}, Code(
		I32Const(int32(code)), I32Const(messageDataPtr), I32Const(int32(len(msg))), Call(0),
		Unreachable,
	), Data{Offset: messageDataPtr, Bytes: []byte(msg)})
}

// EchoParams returns its params block unchanged.
func EchoParams() []byte {
	return Actor(nil, LocalGet(0))
}

// Caller returns the caller actor ID as 8 little-endian bytes.
func Caller() []byte {
	return Actor([]Import{MessageContext, BlockCreate}, Code(
		I32Const(0), Call(0), Drop,
		// the caller ID sits at offset 8 of the message context
		I32Const(64), I64Const(codecRaw), I32Const(8), I32Const(8), Call(1), Drop,
		I32Const(64), I32Load(0),
	))
}

// SetState stores its params as the new state root and returns nothing.
// A non-zero abortCode aborts after the root has been set.
func SetState(abortCode uint32) []byte {
	body := Code(
		// n = block_read(params, 0, buf=1024, max=4096)
		I32Const(0), LocalGet(0), I32Const(0), I32Const(1024), I32Const(4096), Call(0), Drop,
		// id = block_create(dag-cbor, buf, n)
		I32Const(4), I64Const(codecDagCBOR), I32Const(1024), I32Const(0), I32Load(0), Call(1), Drop,
		// cid at 512 = block_link(id, blake2b-256, 32)
		I32Const(8), I32Const(4), I32Load(0), I64Const(blake2b256), I32Const(32), I32Const(512), I32Const(100),
		Call(2), Drop,
		I32Const(512), Call(3), Drop,
	)

	if abortCode != 0 {
		body = Code(body, I32Const(int32(abortCode)), I32Const(0), I32Const(0), Call(4), Unreachable)
	} else {
		body = Code(body, I32Const(0))
	}

	return Actor([]Import{BlockRead, BlockCreate, BlockLink, SetRoot, Abort}, body)
}

// GetState returns the block behind its state root.
func GetState() []byte {
	return Actor([]Import{Root, BlockOpen}, Code(
		I32Const(0), I32Const(16), I32Const(100), Call(0), Drop,
		// IpldOpen at 128: codec u64, id u32, size u32
		I32Const(128), I32Const(16), Call(1), Drop,
		I32Const(128), I32Load(8),
	))
}

// Logger writes msg to the debug log and returns nothing.
func Logger(msg string) []byte {
	return Actor([]Import{Log}, Code(
		I32Const(messageDataPtr), I32Const(int32(len(msg))), Call(0), Drop,
		I32Const(0),
	), Data{Offset: messageDataPtr, Bytes: []byte(msg)})
}

// Spin calls an empty function in an endless loop.
func Spin() []byte {
	return Module{
		Funcs: []Func{
			{Type: invokeType, Body: Code(Loop, Call(1), Br0, End, Unreachable)},
			{Type: FuncType{}},
		},
		Exports:     []Export{{Name: "invoke", Func: 0}},
		MemoryPages: 1,
	}.Bytes()
}

// Importing imports imp and otherwise returns nothing.
func Importing(imp Import) []byte {
	return Actor([]Import{imp}, I32Const(0))
}
