package builtins

import (
	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

// StackPointer is the name of the shadow stack pointer global.
const StackPointer = "__stack_pointer"

const (
	scratchEntry = "alloca.entry"
	scratchSize  = "alloca.size"
)

// Alloca returns alloca and __builtin_alloca. Each call moves the shadow
// stack pointer down by the requested size, rounded to 16 bytes, and
// returns the new pointer. The pointer on function entry is kept in a
// local and written back on every exit.
func Alloca() []rewrite.Builtin {
	t := sig([]wasm.ValType{wasm.ValI32}, []wasm.ValType{wasm.ValI32})
	return []rewrite.Builtin{
		{Name: "alloca", Type: t, Handler: lowerAlloca},
		{Name: "__builtin_alloca", Type: t, Handler: lowerAlloca},
	}
}

// stackPointer returns the imported env.__stack_pointer, or the global
// exported as __stack_pointer.
func stackPointer(m *wasm.Module) (*wasm.Global, error) {
	if g := m.FindGlobalImport("env", StackPointer); g != nil {
		return g, nil
	}
	if e := m.FindExport(StackPointer); e != nil && e.Kind == wasm.KindGlobal {
		return e.Global, nil
	}
	return nil, errors.NotFound(errors.PhaseRewrite, "global", StackPointer)
}

// entryCapture returns the local holding the stack pointer on entry when
// the function starts with global.get sp; local.set/tee x and writes x back
// to sp right before every exit.
func entryCapture(code []*wasm.Instruction, sp *wasm.Global) *wasm.Local {
	if len(code) < 2 {
		return nil
	}
	if code[0].Opcode != wasm.OpGlobalGet || code[0].Global != sp {
		return nil
	}
	if op := code[1].Opcode; op != wasm.OpLocalSet && op != wasm.OpLocalTee {
		return nil
	}
	x := code[1].Local
	at, ok := exits(code)
	if !ok {
		return nil
	}
	for _, i := range at {
		if i < 4 {
			return nil
		}
		get, set := code[i-2], code[i-1]
		if get.Opcode != wasm.OpLocalGet || get.Local != x || set.Opcode != wasm.OpGlobalSet || set.Global != sp {
			return nil
		}
	}
	return x
}

// exits lists the instructions that leave the function: returns, tail
// calls, branches to the function label and the final end. ok is false
// when a conditional branch targets the function label.
func exits(code []*wasm.Instruction) (at []int, ok bool) {
	depth := 0
	for i, ins := range code {
		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
			depth++
		case wasm.OpEnd, wasm.OpDelegate:
			if depth == 0 {
				at = append(at, i)
			}
			depth--
		case wasm.OpReturn, wasm.OpReturnCall, wasm.OpReturnCallIndirect:
			at = append(at, i)
		case wasm.OpBr:
			if int(ins.Label) == depth {
				at = append(at, i)
			}
		case wasm.OpBrIf, wasm.OpBrTable:
			if ins.Label == uint32(depth) || containsLabel(ins.Labels, depth) {
				return nil, false
			}
		}
	}
	return at, true
}

// captureEntry stores the entry stack pointer at the start of the function
// and restores it before every exit.
func captureEntry(site *rewrite.Site, sp *wasm.Global) error {
	at, ok := exits(site.Code())
	if !ok {
		return errors.New(errors.PhaseRewrite, errors.KindUnsupported).
			Path(site.Func.String()).
			Detail("conditional branch out of a function that uses alloca").
			Build()
	}
	entry := site.ScratchLocal(scratchEntry, wasm.ValI32)
	for k := len(at) - 1; k >= 0; k-- {
		site.InsertAt(at[k], wasm.LocalGet(entry), wasm.GlobalSet(sp))
	}
	site.InsertAt(0, wasm.GlobalGet(sp), wasm.LocalSet(entry))
	return nil
}

func containsLabel(labels []uint32, depth int) bool {
	for _, l := range labels {
		if int(l) == depth {
			return true
		}
	}
	return false
}

func lowerAlloca(site *rewrite.Site) (rewrite.Result, error) {
	sp, err := stackPointer(site.Module)
	if err != nil {
		return rewrite.Declined(), err
	}
	if entryCapture(site.Code(), sp) == nil {
		if err := captureEntry(site, sp); err != nil {
			return rewrite.Declined(), err
		}
	}

	size := site.ScratchLocal(scratchSize, wasm.ValI32)
	site.Replace(
		wasm.LocalSet(size),
		wasm.GlobalGet(sp),
		wasm.LocalGet(size),
		wasm.NewInstruction(wasm.OpI32Sub),
		wasm.I32Const(-16),
		wasm.NewInstruction(wasm.OpI32And),
		wasm.LocalTee(size),
		wasm.GlobalSet(sp),
		wasm.LocalGet(size),
	)
	return rewrite.Replaced(), nil
}
