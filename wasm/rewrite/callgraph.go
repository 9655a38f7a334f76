package rewrite

import "github.com/raweden/wasm-ylinker-sub002/wasm"

// CallGraph maps each defined function to the functions it calls directly.
type CallGraph map[*wasm.Function][]*wasm.Function

// BuildCallGraph collects the call and return_call targets of every
// defined function.
func BuildCallGraph(m *wasm.Module) CallGraph {
	cg := make(CallGraph)
	for _, fn := range m.DefinedFunctions() {
		for _, ins := range fn.Code {
			if ins.Opcode != wasm.OpCall && ins.Opcode != wasm.OpReturnCall {
				continue
			}
			if ins.Func != nil {
				cg[fn] = appendUnique(cg[fn], ins.Func)
			}
		}
	}
	return cg
}

// Callers returns the functions that call target directly, in module order.
func (cg CallGraph) Callers(m *wasm.Module, target *wasm.Function) []*wasm.Function {
	var out []*wasm.Function
	for _, fn := range m.Functions {
		for _, callee := range cg[fn] {
			if callee == target {
				out = append(out, fn)
				break
			}
		}
	}
	return out
}

// TransitiveCallers finds all functions that transitively call any of the
// targets. The targets themselves are included.
func (cg CallGraph) TransitiveCallers(targets map[*wasm.Function]bool) map[*wasm.Function]bool {
	result := make(map[*wasm.Function]bool, len(targets))
	for t := range targets {
		result[t] = true
	}

	// Fixed-point iteration: keep expanding until no changes
	changed := true
	for changed {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}
	return result
}

// TransitiveCallees finds all functions reachable from any of the sources.
// The sources themselves are included.
func (cg CallGraph) TransitiveCallees(sources map[*wasm.Function]bool) map[*wasm.Function]bool {
	result := make(map[*wasm.Function]bool, len(sources))
	work := make([]*wasm.Function, 0, len(sources))
	for s := range sources {
		result[s] = true
		work = append(work, s)
	}
	for len(work) > 0 {
		fn := work[len(work)-1]
		work = work[:len(work)-1]
		for _, callee := range cg[fn] {
			if !result[callee] {
				result[callee] = true
				work = append(work, callee)
			}
		}
	}
	return result
}

func appendUnique(slice []*wasm.Function, fn *wasm.Function) []*wasm.Function {
	for _, v := range slice {
		if v == fn {
			return slice
		}
	}
	return append(slice, fn)
}
