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

type memFixture struct {
	m      *wasm.Module
	callee *wasm.Function
	fn     *wasm.Function
	dst    *wasm.Local
	src    *wasm.Local
	x      *wasm.Local
}

// newMemFixture declares env.<name> and a function (dst, src) -> i32 with
// one extra i32 local. body receives the fixture and returns the code.
func newMemFixture(name string, body func(f *memFixture) []*wasm.Instruction) *memFixture {
	m := &wasm.Module{}
	m.Memories = append(m.Memories, &wasm.Memory{Limits: wasm.Limits{Min: 1}})
	callee := m.AddImportedFunction("env", name, ft(vals(i32, i32, i32), i32))
	fn := m.AddFunction(ft(vals(i32, i32), i32), nil)
	f := &memFixture{m: m, callee: callee, fn: fn, dst: fn.Locals[0], src: fn.Locals[1]}
	f.x = fn.AddLocal(i32)
	fn.Code = body(f)
	for _, ins := range fn.Code {
		if ins.Opcode == wasm.OpCall && ins.Func == callee {
			callee.Usage++
		}
	}
	return f
}

func (f *memFixture) call() []*wasm.Instruction {
	return []*wasm.Instruction{
		wasm.LocalGet(f.dst),
		wasm.LocalGet(f.src),
		wasm.I32Const(16),
		wasm.Call(f.callee),
	}
}

func TestMemcpyDrop(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		return append(f.call(), wasm.NewInstruction(wasm.OpDrop), wasm.I32Const(0), wasm.End())
	})
	before := len(f.fn.Code)

	report := lower(t, f.m)
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpLocalGet, wasm.OpI32Const, wasm.OpMemoryCopy,
		wasm.OpI32Const, wasm.OpEnd,
	}, opcodes(f.fn.Code))
	assert.Len(t, f.fn.Code, before-1)
	assert.Len(t, f.fn.Locals, 3, "no scratch local")
	assert.Equal(t, []string{"env.memcpy"}, report.Removed)

	out, err := f.m.Encode(wasm.EncodeOptions{})
	require.NoError(t, err)
	assert.Contains(t, string(out), string([]byte{0xFC, 0x0A, 0x00, 0x00}))
}

func TestMemsetDrop(t *testing.T) {
	f := newMemFixture("memset", func(f *memFixture) []*wasm.Instruction {
		return append(f.call(), wasm.NewInstruction(wasm.OpDrop), wasm.I32Const(0), wasm.End())
	})

	lower(t, f.m)
	assert.Equal(t, wasm.OpMemoryFill, f.fn.Code[3].Opcode)
	assert.Equal(t, wasm.OpI32Const, f.fn.Code[4].Opcode)
}

func TestMemcpyTee(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		return append(f.call(), wasm.LocalTee(f.x), wasm.End())
	})

	lower(t, f.m)
	code := f.fn.Code
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Const,
		wasm.OpMemoryCopy, wasm.OpLocalGet, wasm.OpEnd,
	}, opcodes(code))
	assert.Same(t, f.dst, code[0].Local)
	assert.Same(t, f.x, code[1].Local)
	assert.Same(t, f.x, code[5].Local)
	assert.Len(t, f.fn.Locals, 3)
}

func TestMemcpySet(t *testing.T) {
	f := newMemFixture("memmove", func(f *memFixture) []*wasm.Instruction {
		return append(f.call(), wasm.LocalSet(f.x), wasm.LocalGet(f.x), wasm.End())
	})

	lower(t, f.m)
	code := f.fn.Code
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Const,
		wasm.OpMemoryCopy, wasm.OpLocalGet, wasm.OpEnd,
	}, opcodes(code))
	assert.Same(t, f.x, code[1].Local)
	assert.Same(t, f.x, code[5].Local)
}

func TestMemcpyTeeTargetLive(t *testing.T) {
	// x is read while computing the arguments, so teeing it early would
	// change the source pointer.
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		return []*wasm.Instruction{
			wasm.LocalGet(f.dst),
			wasm.LocalGet(f.x),
			wasm.I32Const(16),
			wasm.Call(f.callee),
			wasm.LocalTee(f.x),
			wasm.End(),
		}
	})

	lower(t, f.m)
	code := f.fn.Code
	require.Len(t, f.fn.Locals, 4)
	scratch := f.fn.Locals[3]
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Const,
		wasm.OpMemoryCopy, wasm.OpLocalGet, wasm.OpLocalTee, wasm.OpEnd,
	}, opcodes(code))
	assert.Same(t, scratch, code[1].Local)
	assert.Same(t, f.x, code[2].Local)
	assert.Same(t, scratch, code[5].Local)
	assert.Same(t, f.x, code[6].Local)
}

func TestMemcpyInline(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		return append(f.call(), wasm.I32Const(4), wasm.NewInstruction(wasm.OpI32Add), wasm.End())
	})

	lower(t, f.m)
	code := f.fn.Code
	require.Len(t, f.fn.Locals, 4)
	scratch := f.fn.Locals[3]
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Const,
		wasm.OpMemoryCopy, wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add, wasm.OpEnd,
	}, opcodes(code))
	assert.Same(t, scratch, code[1].Local)
	assert.Same(t, scratch, code[5].Local)
}

func TestMemcpyInlineTwice(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		code := append(f.call(), wasm.NewInstruction(wasm.OpI32Eqz), wasm.NewInstruction(wasm.OpDrop))
		return append(append(code, f.call()...), wasm.End())
	})

	lower(t, f.m)
	assert.Len(t, f.fn.Locals, 4, "scratch local is created once")
	assert.Equal(t, 0, f.callee.Usage)
}

func TestMemcpyScratchConflict(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		scratch := f.fn.ScratchLocal("memdst", i32)
		return []*wasm.Instruction{
			wasm.LocalGet(f.dst),
			wasm.LocalGet(scratch),
			wasm.I32Const(16),
			wasm.Call(f.callee),
			wasm.I32Const(4),
			wasm.NewInstruction(wasm.OpI32Add),
			wasm.End(),
		}
	})

	_, err := rewrite.New(builtins.Memory(), rewrite.DefaultOptions()).RewriteCalls(f.m, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict), err.Error())
}

func TestMemcpyDestinationInBlock(t *testing.T) {
	f := newMemFixture("memcpy", func(f *memFixture) []*wasm.Instruction {
		return []*wasm.Instruction{
			wasm.Block(wasm.OpBlock, i32),
			wasm.LocalGet(f.dst),
			wasm.End(),
			wasm.LocalGet(f.src),
			wasm.I32Const(16),
			wasm.Call(f.callee),
			wasm.LocalTee(f.x),
			wasm.End(),
		}
	})

	lower(t, f.m)
	assert.Equal(t, []wasm.Opcode{
		wasm.OpBlock, wasm.OpLocalGet, wasm.OpEnd, wasm.OpLocalTee,
		wasm.OpLocalGet, wasm.OpI32Const, wasm.OpMemoryCopy, wasm.OpLocalGet, wasm.OpEnd,
	}, opcodes(f.fn.Code))
	assert.Same(t, f.x, f.fn.Code[3].Local)
}
