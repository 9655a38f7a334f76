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

func tableModule() (*wasm.Module, *wasm.Table) {
	m := &wasm.Module{}
	table := &wasm.Table{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}}
	m.Tables = append(m.Tables, table)
	return m, table
}

func TestTableGrow(t *testing.T) {
	m, table := tableModule()
	grow := m.AddImportedFunction("env", "table_grow", ft(vals(i32), i32))
	grow.Usage = 1
	fn := m.AddFunction(ft(vals(i32), i32), nil)
	fn.Code = []*wasm.Instruction{
		wasm.LocalGet(fn.Locals[0]),
		wasm.I32Const(1),
		wasm.NewInstruction(wasm.OpI32Add),
		wasm.Call(grow),
		wasm.End(),
	}

	lower(t, m)
	code := fn.Code
	assert.Equal(t, []wasm.Opcode{
		wasm.OpRefNull, wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Add, wasm.OpTableGrow, wasm.OpEnd,
	}, opcodes(code))
	assert.Equal(t, wasm.ValFuncRef, code[0].RefType)
	assert.Same(t, table, code[4].Table)

	_, err := m.Encode(wasm.EncodeOptions{})
	require.NoError(t, err)
}

func TestTableZerofill(t *testing.T) {
	m, table := tableModule()
	fill := m.AddImportedFunction("env", "table_zerofill", ft(vals(i32, i32)))
	fill.Usage = 1
	fn := m.AddFunction(ft(vals(i32, i32)), nil)
	fn.Code = []*wasm.Instruction{
		wasm.LocalGet(fn.Locals[0]),
		wasm.LocalGet(fn.Locals[1]),
		wasm.I32Const(2),
		wasm.NewInstruction(wasm.OpI32Mul),
		wasm.Call(fill),
		wasm.End(),
	}

	lower(t, m)
	code := fn.Code
	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet, wasm.OpRefNull, wasm.OpLocalGet, wasm.OpI32Const, wasm.OpI32Mul, wasm.OpTableFill, wasm.OpEnd,
	}, opcodes(code))
	assert.Same(t, table, code[5].Table)
}

func TestTableSize(t *testing.T) {
	m, table := tableModule()
	size := m.AddImportedFunction("env", "table_size", ft(nil, i32))
	size.Usage = 1
	fn := m.AddFunction(ft(nil, i32), nil)
	fn.Code = []*wasm.Instruction{wasm.Call(size), wasm.End()}

	lower(t, m)
	assert.Equal(t, []wasm.Opcode{wasm.OpTableSize, wasm.OpEnd}, opcodes(fn.Code))
	assert.Same(t, table, fn.Code[0].Table)
}

func TestTableMissing(t *testing.T) {
	m := &wasm.Module{}
	size := m.AddImportedFunction("env", "table_size", ft(nil, i32))
	size.Usage = 1
	m.AddFunction(ft(nil, i32), []*wasm.Instruction{wasm.Call(size), wasm.End()})

	_, err := rewrite.New(builtins.Tables(), rewrite.DefaultOptions()).RewriteCalls(m, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound), err.Error())
}
