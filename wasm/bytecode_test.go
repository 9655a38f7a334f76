package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

func relocI32(v int32) *wasm.Instruction {
	ins := wasm.I32Const(v)
	ins.Reloc = true
	return ins
}

func TestEncodeCodeRelocPadding(t *testing.T) {
	m := &wasm.Module{}
	ins := relocI32(0)
	code := []*wasm.Instruction{ins, wasm.NewInstruction(wasm.OpDrop), wasm.End()}

	out, err := wasm.EncodeCode(m, nil, code, wasm.EncodeOptions{Relocatable: true, RelocBase: 100})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x80, 0x80, 0x80, 0x80, 0x00, 0x1A, 0x0B}, out)
	assert.Equal(t, 101, ins.ROff)

	plain := relocI32(0)
	out, err = wasm.EncodeCode(m, nil, []*wasm.Instruction{plain, wasm.End()}, wasm.EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x00, 0x0B}, out)
	assert.Equal(t, -1, plain.ROff)
}

func TestEncodeCodeRelocI64(t *testing.T) {
	ins := wasm.I64Const(1)
	ins.Reloc = true
	out, err := wasm.EncodeCode(&wasm.Module{}, nil, []*wasm.Instruction{ins, wasm.End()},
		wasm.EncodeOptions{Relocatable: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42, 0x81, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00, 0x0B}, out)
	assert.Equal(t, 1, ins.ROff)
}

func sampleCode(m *wasm.Module) ([]*wasm.Local, []*wasm.Instruction) {
	callee := m.AddImportedFunction("env", "g", &wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	sp := m.AddGlobal(wasm.ValI32, true, []*wasm.Instruction{wasm.I32Const(1024), wasm.End()})
	m.Memories = append(m.Memories, &wasm.Memory{Limits: wasm.Limits{Min: 1}})
	locals := []*wasm.Local{{Type: wasm.ValI32}, {Type: wasm.ValI64}}

	brTable := wasm.NewInstruction(wasm.OpBrTable)
	brTable.Labels = []uint32{0, 1}
	brTable.Label = 0

	v128 := wasm.NewInstruction(wasm.OpV128Const)
	for i := range v128.V128 {
		v128.V128[i] = byte(i)
	}
	load := wasm.MemoryOp(wasm.OpI32Load, 300)
	load.Reloc = true
	call := wasm.Call(callee)
	call.Reloc = true
	get := wasm.GlobalGet(sp)
	get.Reloc = true
	wide := wasm.I64Const(-5)
	wide.Reloc = true

	return locals, []*wasm.Instruction{
		wasm.Block(wasm.OpBlock, wasm.BlockVoid),
		wasm.Block(wasm.OpBlock, wasm.BlockVoid),
		wasm.LocalGet(locals[0]),
		brTable,
		wasm.End(),
		wasm.End(),
		get,
		load,
		call,
		wide,
		wasm.LocalSet(locals[1]),
		v128,
		wasm.NewInstruction(wasm.OpDrop),
		wasm.F64Const(2.5),
		wasm.NewInstruction(wasm.OpDrop),
		wasm.NewInstruction(wasm.OpMemorySize),
		wasm.NewInstruction(wasm.OpDrop),
		wasm.End(),
	}
}

func TestByteLengthMatchesEncoding(t *testing.T) {
	for _, relocatable := range []bool{false, true} {
		m := &wasm.Module{}
		locals, code := sampleCode(m)

		n, err := wasm.ByteLength(m, locals, code, relocatable)
		require.NoError(t, err)
		out, err := wasm.EncodeCode(m, locals, code, wasm.EncodeOptions{Relocatable: relocatable})
		require.NoError(t, err)
		assert.Equal(t, len(out), n, "relocatable=%v", relocatable)
	}
}

func TestDecodeCodeRoundTrip(t *testing.T) {
	m := &wasm.Module{}
	locals, code := sampleCode(m)
	out, err := wasm.EncodeCode(m, locals, code, wasm.EncodeOptions{Relocatable: true})
	require.NoError(t, err)

	decoded, err := wasm.DecodeCode(out, m, locals, wasm.DecodeOptions{Reloc: true})
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Start)
	assert.Equal(t, len(out), decoded.End)
	require.Len(t, decoded.Instructions, len(code))

	for i, ins := range decoded.Instructions {
		want := code[i]
		assert.Equal(t, want.Opcode, ins.Opcode, "instruction %d", i)
		assert.Equal(t, want.Reloc, ins.Reloc, "instruction %d reloc", i)
		assert.Equal(t, -1, ins.ROff)
	}
	assert.Same(t, m.Globals[0], decoded.Instructions[6].Global)
	assert.Equal(t, uint64(300), decoded.Instructions[7].MemArg.Offset)
	assert.Equal(t, uint32(2), decoded.Instructions[7].MemArg.Align)
	assert.Same(t, m.Functions[0], decoded.Instructions[8].Func)
	assert.Equal(t, int64(-5), decoded.Instructions[9].I64)
	assert.Same(t, locals[1], decoded.Instructions[10].Local)
	assert.Equal(t, code[11].V128, decoded.Instructions[11].V128)
	assert.Equal(t, 2.5, decoded.Instructions[13].F64)
	assert.Equal(t, []uint32{0, 1}, decoded.Instructions[3].Labels)

	again, err := wasm.EncodeCode(m, locals, decoded.Instructions, wasm.EncodeOptions{Relocatable: true})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestDecodeCodeStopsAtFinalEnd(t *testing.T) {
	data := []byte{0x02, 0x40, 0x0B, 0x0B, 0xFF}
	code, err := wasm.DecodeCode(data, &wasm.Module{}, nil, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, code.End)
	assert.Len(t, code.Instructions, 3)
}

func TestDecodeCodeRelocDetection(t *testing.T) {
	data := []byte{0x41, 0x80, 0x80, 0x80, 0x80, 0x00, 0x1A, 0x0B}

	code, err := wasm.DecodeCode(data, &wasm.Module{}, nil, wasm.DecodeOptions{Reloc: true})
	require.NoError(t, err)
	assert.True(t, code.Instructions[0].Reloc)
	assert.Equal(t, int32(0), code.Instructions[0].I32)

	code, err = wasm.DecodeCode(data, &wasm.Module{}, nil, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.False(t, code.Instructions[0].Reloc)
}

func TestDecodeCodeUsage(t *testing.T) {
	m := &wasm.Module{}
	f := m.AddImportedFunction("env", "f", &wasm.FuncType{})
	data := []byte{0x10, 0x00, 0x10, 0x00, 0x12, 0x00, 0x0B}
	_, err := wasm.DecodeCode(data, m, nil, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Usage)
}

func TestDecodeCodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		locals int
		kind   errors.Kind
	}{
		{"local out of bounds", []byte{0x20, 0x05, 0x0B}, 1, errors.KindOutOfBounds},
		{"function out of bounds", []byte{0x10, 0x00, 0x0B}, 0, errors.KindOutOfBounds},
		{"reserved memory byte", []byte{0x3F, 0x01, 0x0B}, 0, errors.KindInvalidShape},
		{"unknown opcode", []byte{0x27, 0x0B}, 0, errors.KindUnsupported},
		{"unknown simd sub-opcode", []byte{0xFD, 0x9A, 0x01, 0x0B}, 0, errors.KindInvalidShape},
		{"sub-opcode out of range", []byte{0xFC, 0x80, 0x04, 0x0B}, 0, errors.KindInvalidShape},
		{"else without if", []byte{0x05, 0x0B}, 0, errors.KindInvalidShape},
		{"invalid block type", []byte{0x02, 0x7A, 0x0B, 0x0B}, 0, errors.KindInvalidShape},
		{"truncated immediate", []byte{0x41}, 0, errors.KindInvalidData},
		{"missing end", []byte{0x01, 0x01}, 0, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locals := make([]*wasm.Local, tt.locals)
			for i := range locals {
				locals[i] = &wasm.Local{Type: wasm.ValI32}
			}
			_, err := wasm.DecodeCode(tt.data, &wasm.Module{}, locals, wasm.DecodeOptions{})
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestEncodeCodeReferenceError(t *testing.T) {
	m := &wasm.Module{}
	other := &wasm.Module{}
	foreign := other.AddImportedFunction("env", "x", &wasm.FuncType{})

	_, err := wasm.EncodeCode(m, nil, []*wasm.Instruction{wasm.Call(foreign), wasm.End()}, wasm.EncodeOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindReference))

	stray := &wasm.Local{Type: wasm.ValI32}
	_, err = wasm.ByteLength(m, nil, []*wasm.Instruction{wasm.LocalGet(stray), wasm.End()}, false)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindReference))
}

func TestMemArgAlignFlag(t *testing.T) {
	m := &wasm.Module{}
	data := []byte{0x41, 0x00, 0x28, 0x42, 0x00, 0x1A, 0x0B}
	_, err := wasm.DecodeCode(data, m, nil, wasm.DecodeOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidShape))
}

// operandFixture returns a module with one entity of every kind an
// immediate can reference.
func operandFixture() (*wasm.Module, []*wasm.Local) {
	m := &wasm.Module{}
	ft := m.AddType(&wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	m.AddImportedFunction("env", "f", ft)
	m.AddGlobal(wasm.ValI32, true, []*wasm.Instruction{wasm.I32Const(0), wasm.End()})
	m.Tables = append(m.Tables, &wasm.Table{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}})
	m.Memories = append(m.Memories, &wasm.Memory{Limits: wasm.Limits{Min: 1}})
	m.Tags = append(m.Tags, &wasm.Tag{Type: ft})
	m.DataSegments = append(m.DataSegments, &wasm.DataSegment{Init: []byte{1}})
	m.ElementSegments = append(m.ElementSegments, &wasm.ElementSegment{ElemType: wasm.ValFuncRef})
	return m, []*wasm.Local{{Type: wasm.ValI32}}
}

// withOperands fills the immediates info.Imm needs and wraps the
// instruction in the frames it must appear inside.
func withOperands(m *wasm.Module, locals []*wasm.Local, info *wasm.OpInfo) []*wasm.Instruction {
	ins := wasm.NewInstruction(info.Opcode)
	switch info.Imm {
	case wasm.ImmBlock:
		ins = wasm.Block(info.Opcode, wasm.BlockVoid)
	case wasm.ImmBrTable:
		ins.Labels = []uint32{0}
	case wasm.ImmFunc:
		ins.Func = m.Functions[0]
	case wasm.ImmCallIndirect:
		ins.Type = m.Types[0]
		ins.Table = m.Tables[0]
	case wasm.ImmLocal:
		ins.Local = locals[0]
	case wasm.ImmGlobal:
		ins.Global = m.Globals[0]
	case wasm.ImmTable:
		ins.Table = m.Tables[0]
	case wasm.ImmMemArg, wasm.ImmMemArgLane:
		ins.MemArg = wasm.MemArg{Align: 1, Offset: 200}
	case wasm.ImmI32:
		ins.I32 = -300
	case wasm.ImmI64:
		ins.I64 = 1 << 40
	case wasm.ImmF32:
		ins.F32 = 1.5
	case wasm.ImmF64:
		ins.F64 = -2.25
	case wasm.ImmV128, wasm.ImmShuffle:
		ins.V128[3] = 7
	case wasm.ImmRefType:
		ins.RefType = wasm.ValFuncRef
	case wasm.ImmSelectTypes:
		ins.Types = []wasm.ValType{wasm.ValF64}
	case wasm.ImmTag:
		ins.Tag = m.Tags[0]
	case wasm.ImmMemoryInit, wasm.ImmData:
		ins.Data = m.DataSegments[0]
	case wasm.ImmTableInit:
		ins.Elem = m.ElementSegments[0]
		ins.Table = m.Tables[0]
	case wasm.ImmElem:
		ins.Elem = m.ElementSegments[0]
	case wasm.ImmTableCopy:
		ins.Table = m.Tables[0]
		ins.Table2 = m.Tables[0]
	}

	switch info.Opcode {
	case wasm.OpEnd:
		return []*wasm.Instruction{ins}
	case wasm.OpElse:
		return []*wasm.Instruction{wasm.Block(wasm.OpIf, wasm.BlockVoid), ins, wasm.End(), wasm.End()}
	case wasm.OpCatch, wasm.OpCatchAll:
		return []*wasm.Instruction{wasm.Block(wasm.OpTry, wasm.BlockVoid), ins, wasm.End(), wasm.End()}
	case wasm.OpDelegate:
		return []*wasm.Instruction{wasm.Block(wasm.OpTry, wasm.BlockVoid), ins, wasm.End()}
	}
	if info.Imm == wasm.ImmBlock {
		return []*wasm.Instruction{ins, wasm.End(), wasm.End()}
	}
	return []*wasm.Instruction{ins, wasm.End()}
}

func TestEveryOpcodeEncodes(t *testing.T) {
	ops := wasm.Opcodes()
	require.NotEmpty(t, ops)

	for _, op := range ops {
		info, ok := wasm.Lookup(op)
		require.True(t, ok)

		m, locals := operandFixture()
		code := withOperands(m, locals, info)

		n, err := wasm.ByteLength(m, locals, code, false)
		require.NoError(t, err, info.Name)
		out, err := wasm.EncodeCode(m, locals, code, wasm.EncodeOptions{})
		require.NoError(t, err, info.Name)
		assert.Equal(t, len(out), n, "%s size", info.Name)

		decoded, err := wasm.DecodeCode(out, m, locals, wasm.DecodeOptions{})
		require.NoError(t, err, info.Name)
		assert.Equal(t, len(out), decoded.End, "%s end", info.Name)
		require.Len(t, decoded.Instructions, len(code), info.Name)
		for i, ins := range decoded.Instructions {
			assert.Equal(t, code[i].Opcode, ins.Opcode, "%s instruction %d", info.Name, i)
		}

		again, err := wasm.EncodeCode(m, locals, decoded.Instructions, wasm.EncodeOptions{})
		require.NoError(t, err, info.Name)
		assert.Equal(t, out, again, info.Name)
	}
}

func TestEncodeCodeRelocOffsetOverflow(t *testing.T) {
	m := &wasm.Module{}
	m.Memories = append(m.Memories, &wasm.Memory{Limits: wasm.Limits{Min: 1}})
	load := wasm.MemoryOp(wasm.OpI64Load, 1<<33)
	load.Reloc = true
	code := []*wasm.Instruction{wasm.I64Const(0), load, wasm.NewInstruction(wasm.OpDrop), wasm.End()}

	_, err := wasm.EncodeCode(m, nil, code, wasm.EncodeOptions{Relocatable: true})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindOverflow))

	_, err = wasm.ByteLength(m, nil, code, true)
	assert.True(t, errors.IsKind(err, errors.KindOverflow))

	out, err := wasm.EncodeCode(m, nil, code, wasm.EncodeOptions{})
	require.NoError(t, err)
	decoded, err := wasm.DecodeCode(out, m, nil, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<33), decoded.Instructions[1].MemArg.Offset)
}
