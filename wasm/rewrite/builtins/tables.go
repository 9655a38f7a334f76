package builtins

import (
	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// Tables returns table_grow, table_zerofill and table_size, which operate
// on table 0. table.grow and table.fill take an initial reference that the
// C signatures leave out; a ref.null of the table's element type is pushed
// ahead of the corresponding argument.
func Tables() []rewrite.Builtin {
	return []rewrite.Builtin{
		{
			Name:    "table_grow",
			Type:    sig([]wasm.ValType{wasm.ValI32}, []wasm.ValType{wasm.ValI32}),
			Handler: tableWithRef(wasm.OpTableGrow, 0),
		},
		{
			Name:    "table_zerofill",
			Type:    sig([]wasm.ValType{wasm.ValI32, wasm.ValI32}, nil),
			Handler: tableWithRef(wasm.OpTableFill, 1),
		},
		{
			Name: "table_size",
			Type: sig(nil, []wasm.ValType{wasm.ValI32}),
			Handler: func(site *rewrite.Site) (rewrite.Result, error) {
				t, err := firstTable(site.Module)
				if err != nil {
					return rewrite.Declined(), err
				}
				site.Replace(tableOp(wasm.OpTableSize, t))
				return rewrite.Replaced(), nil
			},
		},
	}
}

func firstTable(m *wasm.Module) (*wasm.Table, error) {
	if len(m.Tables) == 0 {
		return nil, errors.NotFound(errors.PhaseRewrite, "table", "0")
	}
	return m.Tables[0], nil
}

func tableOp(op wasm.Opcode, t *wasm.Table) *wasm.Instruction {
	ins := wasm.NewInstruction(op)
	ins.Table = t
	return ins
}

// tableWithRef pushes ref.null before argument arg and replaces the call
// with op.
func tableWithRef(op wasm.Opcode, arg int) rewrite.Handler {
	return func(site *rewrite.Site) (rewrite.Result, error) {
		t, err := firstTable(site.Module)
		if err != nil {
			return rewrite.Declined(), err
		}
		at, err := site.ArgStart(arg)
		if err != nil {
			return rewrite.Declined(), err
		}
		site.InsertAt(at, wasm.RefNull(t.ElemType))
		site.Replace(tableOp(op, t))
		return rewrite.Replaced(), nil
	}
}
