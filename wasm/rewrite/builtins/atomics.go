package builtins

import (
	"strings"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// Atomics returns a builtin for every threads instruction, named after the
// instruction with dots replaced by underscores: memory_atomic_notify,
// atomic_fence, i32_atomic_rmw8_add_u and so on.
func Atomics() []rewrite.Builtin {
	var out []rewrite.Builtin
	for _, op := range wasm.Opcodes() {
		if op.Prefix() != wasm.PrefixAtomic {
			continue
		}
		info, _ := wasm.Lookup(op)
		out = append(out, native(strings.ReplaceAll(info.Name, ".", "_"), op))
	}
	return out
}
