// Package wasmtest assembles small WASM actors that follow the FVM calling
// convention, for tests that need real bytecode to run in the sandbox.
package wasmtest

import (
	"slices"
)

// ValType is a WASM value type.
type ValType byte

// Value types.
const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported host function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a function defined by the module. Body is the instruction
// sequence without the final end opcode.
type Func struct {
	Type   FuncType
	Locals []ValType
	Body   []byte
}

// Export names a function by its index in the combined import and
// function index space.
type Export struct {
	Name string
	Func uint32
}

// Data is an active data segment of memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module describes a whole module. MemoryPages > 0 defines memory 0 and
// exports it as "memory".
type Module struct {
	Imports     []Import
	Funcs       []Func
	Exports     []Export
	MemoryPages uint32
	Data        []Data
}

// Bytes encodes the module in the binary format.
func (m Module) Bytes() []byte {
	var types []FuncType

	typeIndex := func(ft FuncType) uint32 {
		for i, t := range types {
			if slices.Equal(t.Params, ft.Params) && slices.Equal(t.Results, ft.Results) {
				return uint32(i)
			}
		}

		types = append(types, ft)

		return uint32(len(types) - 1)
	}

	var imports []byte
	for _, imp := range m.Imports {
		imports = append(imports, name(imp.Module)...)
		imports = append(imports, name(imp.Name)...)
		imports = append(imports, 0x00)
		imports = append(imports, uleb(typeIndex(imp.Type))...)
	}

	var funcs, code []byte
	for _, f := range m.Funcs {
		funcs = append(funcs, uleb(typeIndex(f.Type))...)

		body := uleb(uint32(len(f.Locals)))
		for _, l := range f.Locals {
			body = append(body, 0x01, byte(l))
		}

		body = append(body, f.Body...)
		body = append(body, 0x0b)

		code = append(code, uleb(uint32(len(body)))...)
		code = append(code, body...)
	}

	var typeSec []byte
	for _, t := range types {
		typeSec = append(typeSec, 0x60)
		typeSec = append(typeSec, valTypes(t.Params)...)
		typeSec = append(typeSec, valTypes(t.Results)...)
	}

	var exports []byte
	exportCount := len(m.Exports)

	if m.MemoryPages > 0 {
		exports = append(exports, name("memory")...)
		exports = append(exports, 0x02, 0x00)
		exportCount++
	}

	for _, e := range m.Exports {
		exports = append(exports, name(e.Name)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(e.Func)...)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, len(types), typeSec)...)

	if len(m.Imports) > 0 {
		out = append(out, section(2, len(m.Imports), imports)...)
	}

	out = append(out, section(3, len(m.Funcs), funcs)...)

	if m.MemoryPages > 0 {
		out = append(out, section(5, 1, append([]byte{0x00}, uleb(m.MemoryPages)...))...)
	}

	out = append(out, section(7, exportCount, exports)...)
	out = append(out, section(10, len(m.Funcs), code)...)

	if len(m.Data) > 0 {
		var data []byte
		for _, d := range m.Data {
			data = append(data, 0x00)
			data = append(data, I32Const(d.Offset)...)
			data = append(data, 0x0b)
			data = append(data, uleb(uint32(len(d.Bytes)))...)
			data = append(data, d.Bytes...)
		}

		out = append(out, section(11, len(m.Data), data)...)
	}

	return out
}

func section(id byte, count int, items []byte) []byte {
	content := append(uleb(uint32(count)), items...)

	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)

	return append(out, content...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func valTypes(ts []ValType) []byte {
	out := uleb(uint32(len(ts)))
	for _, t := range ts {
		out = append(out, byte(t))
	}

	return out
}

func uleb(v uint32) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		if v != 0 {
			out = append(out, b|0x80)
			continue
		}

		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}

		out = append(out, b|0x80)
	}
}

// Instructions.

func Code(parts ...[]byte) []byte { return slices.Concat(parts...) }

func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

func I64Const(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }

func LocalGet(i uint32) []byte { return append([]byte{0x20}, uleb(i)...) }

func LocalSet(i uint32) []byte { return append([]byte{0x21}, uleb(i)...) }

func Call(f uint32) []byte { return append([]byte{0x10}, uleb(f)...) }

// I32Load loads from the address on the stack plus offset.
func I32Load(offset uint32) []byte { return append([]byte{0x28, 0x02}, uleb(offset)...) }

// I64Load loads from the address on the stack plus offset.
func I64Load(offset uint32) []byte { return append([]byte{0x29, 0x03}, uleb(offset)...) }

var (
	Drop        = []byte{0x1a}
	Unreachable = []byte{0x00}
	I64Eq       = []byte{0x51}
	If          = []byte{0x04, 0x40}
	End         = []byte{0x0b}
	Loop        = []byte{0x03, 0x40}
	Br0         = []byte{0x0c, 0x00}
)
