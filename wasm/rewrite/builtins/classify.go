package builtins

import (
	"math"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// Classify returns isnan, isnanf, isinf and isinff.
//
// NaN is the only value not equal to itself, so isnan tees its operand to
// a scratch local and compares it with itself. isinf compares the
// magnitude with +Inf.
func Classify() []rewrite.Builtin {
	return []rewrite.Builtin{
		{Name: "isnan", Type: sig([]wasm.ValType{wasm.ValF64}, []wasm.ValType{wasm.ValI32}), Handler: isNaN(wasm.ValF64)},
		{Name: "isnanf", Type: sig([]wasm.ValType{wasm.ValF32}, []wasm.ValType{wasm.ValI32}), Handler: isNaN(wasm.ValF32)},
		{Name: "isinf", Type: sig([]wasm.ValType{wasm.ValF64}, []wasm.ValType{wasm.ValI32}), Handler: isInf(wasm.ValF64)},
		{Name: "isinff", Type: sig([]wasm.ValType{wasm.ValF32}, []wasm.ValType{wasm.ValI32}), Handler: isInf(wasm.ValF32)},
	}
}

func isNaN(t wasm.ValType) rewrite.Handler {
	ne := wasm.OpF64Ne
	if t == wasm.ValF32 {
		ne = wasm.OpF32Ne
	}
	return func(site *rewrite.Site) (rewrite.Result, error) {
		tmp := site.ScratchLocal("isnan."+t.String(), t)
		site.Replace(
			wasm.LocalTee(tmp),
			wasm.LocalGet(tmp),
			wasm.NewInstruction(ne),
		)
		return rewrite.Replaced(), nil
	}
}

func isInf(t wasm.ValType) rewrite.Handler {
	return func(site *rewrite.Site) (rewrite.Result, error) {
		if t == wasm.ValF32 {
			site.Replace(
				wasm.NewInstruction(wasm.OpF32Abs),
				wasm.F32Const(float32(math.Inf(1))),
				wasm.NewInstruction(wasm.OpF32Eq),
			)
		} else {
			site.Replace(
				wasm.NewInstruction(wasm.OpF64Abs),
				wasm.F64Const(math.Inf(1)),
				wasm.NewInstruction(wasm.OpF64Eq),
			)
		}
		return rewrite.Replaced(), nil
	}
}
