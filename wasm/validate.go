package wasm

import (
	"fmt"

	"github.com/raweden/wasm-ylinker-sub002/errors"
)

// Memory page limits.
const (
	MemoryMaxPages32 = 65536
	MemoryMaxPages64 = 1 << 48
)

// Validate checks the structural invariants of the object graph: imports
// precede definitions in every collection, defined functions carry code,
// every entity referenced from an instruction is a member of the module,
// and memory limits are in range. It does not type-check code.
func (m *Module) Validate() error {
	if err := m.validateImportOrder(); err != nil {
		return err
	}
	if err := m.validateReferences(); err != nil {
		return err
	}
	if err := m.validateMemoryLimits(); err != nil {
		return err
	}
	return nil
}

func importsFirst[T any](items []T, imported func(T) bool, what string) error {
	seenDefined := false
	for i, it := range items {
		if !imported(it) {
			seenDefined = true
			continue
		}
		if seenDefined {
			return errors.InvalidData(errors.PhaseEncode, []string{what, fmt.Sprint(i)},
				"import follows a defined entry")
		}
	}
	return nil
}

func (m *Module) validateImportOrder() error {
	if err := importsFirst(m.Functions, func(f *Function) bool { return f.Import != nil }, "function"); err != nil {
		return err
	}
	if err := importsFirst(m.Tables, func(t *Table) bool { return t.Import != nil }, "table"); err != nil {
		return err
	}
	if err := importsFirst(m.Memories, func(mem *Memory) bool { return mem.Import != nil }, "memory"); err != nil {
		return err
	}
	if err := importsFirst(m.Globals, func(g *Global) bool { return g.Import != nil }, "global"); err != nil {
		return err
	}
	return importsFirst(m.Tags, func(t *Tag) bool { return t.Import != nil }, "tag")
}

// validateReferences resolves every instruction operand the way the
// encoder does, reporting the first dangling reference.
func (m *Module) validateReferences() error {
	ix := newIndexSpace(m)
	for _, fn := range m.DefinedFunctions() {
		if len(fn.Code) == 0 || fn.Code[len(fn.Code)-1].Opcode != OpEnd {
			return errors.InvalidData(errors.PhaseEncode, []string{"function", fn.String()},
				"code must end with end")
		}
		if _, err := byteLength(ix, fn.Locals, fn.Code, false); err != nil {
			return fmt.Errorf("function %s: %w", fn, err)
		}
	}
	for i, g := range m.Globals {
		if g.Import != nil {
			continue
		}
		if _, err := byteLength(ix, nil, g.Init, false); err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
	}
	return nil
}

func (m *Module) validateMemoryLimits() error {
	for i, mem := range m.Memories {
		maxPages := uint64(MemoryMaxPages32)
		if mem.Limits.Memory64 {
			maxPages = MemoryMaxPages64
		}
		path := []string{"memory", fmt.Sprint(i)}
		if mem.Limits.Shared && !mem.Limits.HasMax {
			return errors.InvalidData(errors.PhaseEncode, path, "shared memory must have maximum limit")
		}
		if mem.Limits.Min > maxPages {
			return errors.InvalidData(errors.PhaseEncode, path,
				fmt.Sprintf("min pages %d exceeds maximum %d", mem.Limits.Min, maxPages))
		}
		if mem.Limits.HasMax && mem.Limits.Max > maxPages {
			return errors.InvalidData(errors.PhaseEncode, path,
				fmt.Sprintf("max pages %d exceeds maximum %d", mem.Limits.Max, maxPages))
		}
	}
	return nil
}
