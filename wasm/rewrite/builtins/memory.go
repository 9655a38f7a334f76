package builtins

import (
	"strconv"

	"github.com/willf/bitset"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// scratchDst holds the destination pointer when the builtin's result is
// used inline.
const scratchDst = "memdst"

// Memory returns memcpy, memmove and memset. The C functions return the
// destination pointer while memory.copy and memory.fill return nothing, so
// the handler looks at how the result is consumed:
//
//   - drop: the drop is removed.
//   - local.tee x: x is teed right after the destination is produced and
//     the original tee becomes local.get x.
//   - local.set x: x is teed right after the destination is produced and
//     the set is removed.
//   - anything else: the destination is teed to a scratch local and read
//     back after the bulk instruction.
func Memory() []rewrite.Builtin {
	t := sig([]wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32}, []wasm.ValType{wasm.ValI32})
	return []rewrite.Builtin{
		{Name: "memcpy", Type: t, Handler: bulkMemory(wasm.OpMemoryCopy)},
		{Name: "memmove", Type: t, Handler: bulkMemory(wasm.OpMemoryCopy)},
		{Name: "memset", Type: t, Handler: bulkMemory(wasm.OpMemoryFill)},
	}
}

// usedLocals returns the set of locals referenced by code[from:to].
func usedLocals(fn *wasm.Function, from, to int) *bitset.BitSet {
	used := bitset.New(uint(len(fn.Locals)))
	for _, ins := range fn.Code[from:to] {
		if ins.Local == nil {
			continue
		}
		if idx := fn.LocalIndex(ins.Local); idx >= 0 {
			used.Set(uint(idx))
		}
	}
	return used
}

func bulkMemory(op wasm.Opcode) rewrite.Handler {
	return func(site *rewrite.Site) (rewrite.Result, error) {
		fn := site.Func
		next := site.Next()
		if next != nil && next.Opcode == wasm.OpDrop {
			site.Splice(site.Index, 2, wasm.NewInstruction(op))
			return rewrite.Replaced(), nil
		}

		dst, err := site.Arg(0)
		if err != nil {
			return rewrite.Declined(), err
		}
		used := usedLocals(fn, site.ProducerEnd(dst)+1, site.Index)

		if next != nil && (next.Opcode == wasm.OpLocalTee || next.Opcode == wasm.OpLocalSet) {
			x := next.Local
			if idx := fn.LocalIndex(x); idx >= 0 && !used.Test(uint(idx)) {
				if _, err := site.InsertAfter(dst, wasm.LocalTee(x)); err != nil {
					return rewrite.Declined(), err
				}
				site.Replace(wasm.NewInstruction(op))
				if next.Opcode == wasm.OpLocalTee {
					site.Splice(site.Index+1, 1, wasm.LocalGet(x))
				} else {
					site.RemoveAt(site.Index + 1)
				}
				return rewrite.Replaced(), nil
			}
		}

		tmp := site.ScratchLocal(scratchDst, wasm.ValI32)
		if used.Test(uint(fn.LocalIndex(tmp))) {
			return rewrite.Declined(), errors.Conflict(errors.PhaseRewrite,
				[]string{fn.String(), strconv.Itoa(site.Index)},
				"scratch local "+scratchDst+" is live across the call")
		}
		if _, err := site.InsertAfter(dst, wasm.LocalTee(tmp)); err != nil {
			return rewrite.Declined(), err
		}
		site.Replace(wasm.NewInstruction(op))
		site.InsertAt(site.Index+1, wasm.LocalGet(tmp))
		return rewrite.Replaced(), nil
	}
}
