package builtins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite/builtins"
)

var allocaSequence = []wasm.Opcode{
	wasm.OpLocalSet, wasm.OpGlobalGet, wasm.OpLocalGet, wasm.OpI32Sub,
	wasm.OpI32Const, wasm.OpI32And, wasm.OpLocalTee, wasm.OpGlobalSet, wasm.OpLocalGet,
}

func concat(parts ...[]wasm.Opcode) []wasm.Opcode {
	var out []wasm.Opcode
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestAllocaSynthesizesPrologue(t *testing.T) {
	m := &wasm.Module{}
	sp := m.AddImportedGlobal("env", builtins.StackPointer, i32, true)
	alloca := m.AddImportedFunction("env", "alloca", ft(vals(i32), i32))
	alloca.Usage = 1
	fn := m.AddFunction(ft(nil, i32), []*wasm.Instruction{
		wasm.I32Const(0),
		wasm.Block(wasm.OpIf, wasm.BlockVoid),
		wasm.I32Const(0),
		wasm.NewInstruction(wasm.OpReturn),
		wasm.End(),
		wasm.I32Const(8),
		wasm.Call(alloca),
		wasm.End(),
	})

	lower(t, m)
	code := fn.Code
	restore := []wasm.Opcode{wasm.OpLocalGet, wasm.OpGlobalSet}
	assert.Equal(t, concat(
		[]wasm.Opcode{wasm.OpGlobalGet, wasm.OpLocalSet},
		[]wasm.Opcode{wasm.OpI32Const, wasm.OpIf, wasm.OpI32Const},
		restore,
		[]wasm.Opcode{wasm.OpReturn, wasm.OpEnd, wasm.OpI32Const},
		allocaSequence,
		restore,
		[]wasm.Opcode{wasm.OpEnd},
	), opcodes(code))

	require.Len(t, fn.Locals, 2)
	entry, size := fn.Locals[0], fn.Locals[1]
	assert.Same(t, sp, code[0].Global)
	assert.Same(t, entry, code[1].Local)
	assert.Same(t, entry, code[5].Local)
	assert.Same(t, sp, code[6].Global)
	assert.Same(t, size, code[10].Local)
	assert.Equal(t, int32(-16), code[14].I32)
	assert.Same(t, entry, code[19].Local)
	assert.Same(t, sp, code[20].Global)
}

func TestAllocaReusesEntryCapture(t *testing.T) {
	m := &wasm.Module{}
	sp := m.AddGlobal(i32, true, []*wasm.Instruction{wasm.I32Const(1024), wasm.End()})
	m.Exports = append(m.Exports, &wasm.Export{Name: builtins.StackPointer, Kind: wasm.KindGlobal, Global: sp})
	alloca := m.AddImportedFunction("env", "__builtin_alloca", ft(vals(i32), i32))
	alloca.Usage = 2
	fn := m.AddFunction(ft(nil, i32), nil)
	saved := fn.AddLocal(i32)
	fn.Code = []*wasm.Instruction{
		wasm.GlobalGet(sp),
		wasm.LocalTee(saved),
		wasm.NewInstruction(wasm.OpDrop),
		wasm.I32Const(8),
		wasm.Call(alloca),
		wasm.I32Const(16),
		wasm.Call(alloca),
		wasm.NewInstruction(wasm.OpI32Add),
		wasm.LocalGet(saved),
		wasm.GlobalSet(sp),
		wasm.End(),
	}

	lower(t, m)
	assert.Equal(t, concat(
		[]wasm.Opcode{wasm.OpGlobalGet, wasm.OpLocalTee, wasm.OpDrop, wasm.OpI32Const},
		allocaSequence,
		[]wasm.Opcode{wasm.OpI32Const},
		allocaSequence,
		[]wasm.Opcode{wasm.OpI32Add, wasm.OpLocalGet, wasm.OpGlobalSet, wasm.OpEnd},
	), opcodes(fn.Code))
	assert.Len(t, fn.Locals, 2, "only the size scratch local is added")
	assert.Equal(t, 0, alloca.Usage)
}

func TestAllocaCaptureWithoutRestore(t *testing.T) {
	m := &wasm.Module{}
	sp := m.AddImportedGlobal("env", builtins.StackPointer, i32, true)
	alloca := m.AddImportedFunction("env", "alloca", ft(vals(i32), i32))
	alloca.Usage = 1
	fn := m.AddFunction(ft(nil), nil)
	saved := fn.AddLocal(i32)
	fn.Code = []*wasm.Instruction{
		wasm.GlobalGet(sp),
		wasm.LocalSet(saved),
		wasm.I32Const(8),
		wasm.Call(alloca),
		wasm.NewInstruction(wasm.OpDrop),
		wasm.End(),
	}

	lower(t, m)
	code := fn.Code
	assert.Equal(t, concat(
		[]wasm.Opcode{wasm.OpGlobalGet, wasm.OpLocalSet},
		[]wasm.Opcode{wasm.OpGlobalGet, wasm.OpLocalSet, wasm.OpI32Const},
		allocaSequence,
		[]wasm.Opcode{wasm.OpDrop, wasm.OpLocalGet, wasm.OpGlobalSet, wasm.OpEnd},
	), opcodes(code))

	require.Len(t, fn.Locals, 3)
	entry := fn.Locals[1]
	assert.Same(t, entry, code[1].Local)
	assert.Same(t, saved, code[3].Local)
	assert.Same(t, entry, code[15].Local)
	assert.Same(t, sp, code[16].Global)
}

func TestAllocaNoStackPointer(t *testing.T) {
	m := &wasm.Module{}
	alloca := m.AddImportedFunction("env", "alloca", ft(vals(i32), i32))
	alloca.Usage = 1
	m.AddFunction(ft(nil, i32), []*wasm.Instruction{wasm.I32Const(8), wasm.Call(alloca), wasm.End()})

	_, err := rewrite.New(builtins.Alloca(), rewrite.DefaultOptions()).RewriteCalls(m, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound), err.Error())
}

func TestAllocaConditionalExit(t *testing.T) {
	m := &wasm.Module{}
	m.AddImportedGlobal("env", builtins.StackPointer, i32, true)
	alloca := m.AddImportedFunction("env", "alloca", ft(vals(i32), i32))
	alloca.Usage = 1
	brIf := wasm.NewInstruction(wasm.OpBrIf)
	m.AddFunction(ft(nil, i32), []*wasm.Instruction{
		wasm.I32Const(8),
		wasm.Call(alloca),
		wasm.I32Const(1),
		brIf,
		wasm.End(),
	})

	_, err := rewrite.New(builtins.Alloca(), rewrite.DefaultOptions()).RewriteCalls(m, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnsupported), err.Error())
}
