package builtins

import (
	"slices"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// Default returns every builtin this package provides.
func Default() []rewrite.Builtin {
	var all []rewrite.Builtin
	for _, family := range [][]rewrite.Builtin{
		Atomics(),
		Math(),
		Classify(),
		Memory(),
		Alloca(),
		Tables(),
	} {
		all = append(all, family...)
	}
	return all
}

func sig(params, results []wasm.ValType) *wasm.FuncType {
	return &wasm.FuncType{Params: params, Results: results}
}

// nativeInstruction returns op with natural alignment and offset 0 when it
// accesses memory.
func nativeInstruction(op wasm.Opcode) *wasm.Instruction {
	info, _ := wasm.Lookup(op)
	if info.Imm == wasm.ImmMemArg {
		return wasm.MemoryOp(op, 0)
	}
	return wasm.NewInstruction(op)
}

// native returns a builtin that replaces the call with op. Its expected
// signature is the stack effect of op.
func native(name string, op wasm.Opcode) rewrite.Builtin {
	info, ok := wasm.Lookup(op)
	if !ok {
		panic("builtins: unknown opcode " + op.String())
	}
	return rewrite.Builtin{
		Name: name,
		Type: sig(slices.Clone(info.Pull.Types), slices.Clone(info.Push.Types)),
		Handler: func(site *rewrite.Site) (rewrite.Result, error) {
			site.Replace(nativeInstruction(op))
			return rewrite.Replaced(), nil
		},
	}
}
