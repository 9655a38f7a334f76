package builtins

import (
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

var mathOps = []struct {
	name string
	f32  wasm.Opcode
	f64  wasm.Opcode
}{
	{"ceil", wasm.OpF32Ceil, wasm.OpF64Ceil},
	{"floor", wasm.OpF32Floor, wasm.OpF64Floor},
	{"trunc", wasm.OpF32Trunc, wasm.OpF64Trunc},
	{"nearest", wasm.OpF32Nearest, wasm.OpF64Nearest},
	{"sqrt", wasm.OpF32Sqrt, wasm.OpF64Sqrt},
	{"abs", wasm.OpF32Abs, wasm.OpF64Abs},
	{"min", wasm.OpF32Min, wasm.OpF64Min},
	{"max", wasm.OpF32Max, wasm.OpF64Max},
	{"copysign", wasm.OpF32Copysign, wasm.OpF64Copysign},
}

// Math returns the f32_* and f64_* float builtins.
func Math() []rewrite.Builtin {
	out := make([]rewrite.Builtin, 0, 2*len(mathOps))
	for _, m := range mathOps {
		out = append(out, native("f32_"+m.name, m.f32), native("f64_"+m.name, m.f64))
	}
	return out
}
