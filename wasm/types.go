package wasm

import (
	"fmt"
	"strconv"
	"strings"
)

// Module represents a decoded WebAssembly module.
//
// Instructions reference the entities below by pointer; positional
// indices are computed only while encoding, so passes can add and remove
// entities without renumbering operands. Within Functions, Globals,
// Tables, Memories and Tags all imported entries precede defined ones.
type Module struct {
	Types           []*FuncType
	Functions       []*Function
	Tables          []*Table
	Memories        []*Memory
	Globals         []*Global
	Tags            []*Tag
	Exports         []*Export
	Start           *Function
	ElementSegments []*ElementSegment
	DataSegments    []*DataSegment

	// Sections holds every section in file order, custom sections included.
	// Known sections are regenerated from the fields above on encode.
	Sections []*Section

	// HasDataCount controls emission of the data count section.
	HasDataCount bool

	importSeq int
	decoded   *layout // index spaces at decode time
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValAny:
		return "any"
	case BlockVoid:
		return "void"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

func validValType(v ValType) bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return true
	}
	return false
}

func validRefType(v ValType) bool {
	return v == ValFuncRef || v == ValExtern
}

// FuncType represents a WebAssembly function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether both signatures match element-wise.
func (t *FuncType) Equal(o *FuncType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return valTypesEqual(t.Params, o.Params) && valTypesEqual(t.Results, o.Results)
}

func (t *FuncType) String() string {
	return "(" + joinValTypes(t.Params) + ") -> (" + joinValTypes(t.Results) + ")"
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinValTypes(ts []ValType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Import names the module and field an entity is imported from.
type Import struct {
	Module string
	Name   string

	seq int // position in the import section
}

func (i *Import) String() string {
	return i.Module + "." + i.Name
}

// Local is a function parameter or declared local.
type Local struct {
	Type ValType
}

// Function is either imported (Import set) or defined (Locals and Code set).
type Function struct {
	Type   *FuncType
	Import *Import

	// Locals starts with one entry per parameter. Locals are only appended.
	Locals []*Local
	Code   []*Instruction

	// Name comes from the name section.
	Name string

	// Usage counts call sites targeting this function.
	Usage int

	// Dirty forces re-encoding from Code instead of the cached body bytes.
	Dirty bool

	body    []byte
	scratch map[string]*Local
}

// IsImport reports whether the function is imported.
func (f *Function) IsImport() bool {
	return f.Import != nil
}

// Params returns the locals that hold the function parameters.
func (f *Function) Params() []*Local {
	n := len(f.Type.Params)
	if n > len(f.Locals) {
		n = len(f.Locals)
	}
	return f.Locals[:n]
}

// AddLocal appends a new local of type t.
func (f *Function) AddLocal(t ValType) *Local {
	l := &Local{Type: t}
	f.Locals = append(f.Locals, l)
	f.Dirty = true
	return l
}

// ScratchLocal returns the local cached under key, appending it on first use.
func (f *Function) ScratchLocal(key string, t ValType) *Local {
	if l, ok := f.scratch[key]; ok {
		return l
	}
	if f.scratch == nil {
		f.scratch = make(map[string]*Local)
	}
	l := f.AddLocal(t)
	f.scratch[key] = l
	return l
}

// LocalIndex returns the index of l, or -1.
func (f *Function) LocalIndex(l *Local) int {
	for i, x := range f.Locals {
		if x == l {
			return i
		}
	}
	return -1
}

// IndexOf returns the position of ins in Code, or -1.
func (f *Function) IndexOf(ins *Instruction) int {
	for i, x := range f.Code {
		if x == ins {
			return i
		}
	}
	return -1
}

func (f *Function) String() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.Import != nil:
		return f.Import.String()
	default:
		return "<anonymous>"
	}
}

// Limits describes the size bounds of a table or memory.
type Limits struct {
	Min      uint64
	Max      uint64
	HasMax   bool
	Shared   bool
	Memory64 bool
}

// Table is an imported or defined table.
type Table struct {
	Import   *Import
	ElemType ValType
	Limits   Limits
}

// Memory is an imported or defined linear memory.
type Memory struct {
	Import *Import
	Limits Limits
}

// Global is an imported or defined global. Init is empty for imports.
type Global struct {
	Import  *Import
	Type    ValType
	Mutable bool
	Init    []*Instruction
}

// Tag is an exception tag.
type Tag struct {
	Import    *Import
	Attribute byte
	Type      *FuncType
}

// Export exposes one entity under Name. Exactly one reference is set,
// matching Kind.
type Export struct {
	Name   string
	Kind   byte
	Func   *Function
	Table  *Table
	Memory *Memory
	Global *Global
	Tag    *Tag
}

// ElementSegment initializes table entries. Flags is the binary segment
// kind (0-7); it selects active/passive/declarative mode, whether Table is
// explicit, and whether entries are Funcs or Exprs.
type ElementSegment struct {
	Flags    uint32
	Table    *Table
	Offset   []*Instruction
	ElemType ValType
	Funcs    []*Function
	Exprs    [][]*Instruction
}

// Passive reports whether the segment is passive or declarative.
func (e *ElementSegment) Passive() bool {
	return e.Flags&0x01 != 0
}

// UsesExprs reports whether entries are encoded as expressions.
func (e *ElementSegment) UsesExprs() bool {
	return e.Flags&0x04 != 0
}

// DataSegment initializes linear memory. Flags 0 is active on memory 0,
// 1 is passive and 2 is active with an explicit memory.
type DataSegment struct {
	Flags  uint32
	Memory *Memory
	Offset []*Instruction
	Init   []byte
}

// Passive reports whether the segment is passive.
func (d *DataSegment) Passive() bool {
	return d.Flags == 1
}

// Section is one section of the binary. Name and Data are used by custom
// sections; known sections are regenerated from the module.
type Section struct {
	ID   byte
	Name string
	Data []byte

	raw       []byte // payload as decoded
	rawName   string
	sizeWidth int
}

func (s *Section) String() string {
	if s.ID == SectionCustom {
		return "custom " + strconv.Quote(s.Name)
	}
	return sectionName(s.ID)
}

// numImported counts the leading imported entries of a collection.
func numImported[T any](items []T, imported func(T) bool) int {
	n := 0
	for _, it := range items {
		if !imported(it) {
			break
		}
		n++
	}
	return n
}

// NumImportedFunctions returns the number of imported functions, which is
// also the index of the first defined function.
func (m *Module) NumImportedFunctions() int {
	return numImported(m.Functions, func(f *Function) bool { return f.Import != nil })
}

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int {
	return numImported(m.Globals, func(g *Global) bool { return g.Import != nil })
}

// NumImportedTables returns the number of imported tables
func (m *Module) NumImportedTables() int {
	return numImported(m.Tables, func(t *Table) bool { return t.Import != nil })
}

// NumImportedMemories returns the number of imported memories
func (m *Module) NumImportedMemories() int {
	return numImported(m.Memories, func(mem *Memory) bool { return mem.Import != nil })
}

// NumImportedTags returns the number of imported tags
func (m *Module) NumImportedTags() int {
	return numImported(m.Tags, func(t *Tag) bool { return t.Import != nil })
}

// DefinedFunctions returns the functions that have bodies.
func (m *Module) DefinedFunctions() []*Function {
	return m.Functions[m.NumImportedFunctions():]
}

// FindType returns the type with the given shape, or nil.
func (m *Module) FindType(params, results []ValType) *FuncType {
	want := &FuncType{Params: params, Results: results}
	for _, t := range m.Types {
		if t.Equal(want) {
			return t
		}
	}
	return nil
}

// AddType returns an existing type equal to ft, or appends ft.
func (m *Module) AddType(ft *FuncType) *FuncType {
	if t := m.FindType(ft.Params, ft.Results); t != nil {
		return t
	}
	m.Types = append(m.Types, ft)
	return ft
}

func (m *Module) newImport(module, name string) *Import {
	m.importSeq++
	return &Import{Module: module, Name: name, seq: m.importSeq}
}

// AddImportedFunction declares a new function import after the existing ones.
func (m *Module) AddImportedFunction(module, name string, ft *FuncType) *Function {
	f := &Function{Type: m.AddType(ft), Import: m.newImport(module, name)}
	n := m.NumImportedFunctions()
	m.Functions = append(m.Functions, nil)
	copy(m.Functions[n+1:], m.Functions[n:])
	m.Functions[n] = f
	return f
}

// AddFunction appends a defined function with parameter locals for ft.
func (m *Module) AddFunction(ft *FuncType, code []*Instruction) *Function {
	f := &Function{Type: m.AddType(ft), Code: code, Dirty: true}
	for _, p := range f.Type.Params {
		f.Locals = append(f.Locals, &Local{Type: p})
	}
	m.Functions = append(m.Functions, f)
	return f
}

// AddImportedGlobal declares a new global import after the existing ones.
func (m *Module) AddImportedGlobal(module, name string, t ValType, mutable bool) *Global {
	g := &Global{Import: m.newImport(module, name), Type: t, Mutable: mutable}
	n := m.NumImportedGlobals()
	m.Globals = append(m.Globals, nil)
	copy(m.Globals[n+1:], m.Globals[n:])
	m.Globals[n] = g
	return g
}

// AddGlobal appends a defined global.
func (m *Module) AddGlobal(t ValType, mutable bool, init []*Instruction) *Global {
	g := &Global{Type: t, Mutable: mutable, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// FindFunctionImport returns the imported function module.name, or nil.
func (m *Module) FindFunctionImport(module, name string) *Function {
	for _, f := range m.Functions {
		if f.Import == nil {
			break
		}
		if f.Import.Module == module && f.Import.Name == name {
			return f
		}
	}
	return nil
}

// FindGlobalImport returns the imported global module.name, or nil.
func (m *Module) FindGlobalImport(module, name string) *Global {
	for _, g := range m.Globals {
		if g.Import == nil {
			break
		}
		if g.Import.Module == module && g.Import.Name == name {
			return g
		}
	}
	return nil
}

// FindExport returns the export with the given name, or nil.
func (m *Module) FindExport(name string) *Export {
	for _, e := range m.Exports {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FindCustomSection returns the first custom section named name, or nil.
func (m *Module) FindCustomSection(name string) *Section {
	for _, s := range m.Sections {
		if s.ID == SectionCustom && s.Name == name {
			return s
		}
	}
	return nil
}

// FunctionIndex returns the position of f in Functions, or -1.
func (m *Module) FunctionIndex(f *Function) int {
	for i, x := range m.Functions {
		if x == f {
			return i
		}
	}
	return -1
}

// RemoveFunction deletes f from Functions. It does not check for
// remaining references; see FunctionReferenced.
func (m *Module) RemoveFunction(f *Function) bool {
	i := m.FunctionIndex(f)
	if i < 0 {
		return false
	}
	m.Functions = append(m.Functions[:i], m.Functions[i+1:]...)
	return true
}

// FunctionReferenced reports whether f is reachable from anything other
// than a call instruction: exports, the start function, element segments,
// or ref.func in code and initializers.
func (m *Module) FunctionReferenced(f *Function) bool {
	if m.Start == f {
		return true
	}
	for _, e := range m.Exports {
		if e.Func == f {
			return true
		}
	}
	refFunc := func(code []*Instruction) bool {
		for _, ins := range code {
			if ins.Opcode == OpRefFunc && ins.Func == f {
				return true
			}
		}
		return false
	}
	for _, seg := range m.ElementSegments {
		for _, x := range seg.Funcs {
			if x == f {
				return true
			}
		}
		for _, expr := range seg.Exprs {
			if refFunc(expr) {
				return true
			}
		}
	}
	for _, g := range m.Globals {
		if refFunc(g.Init) {
			return true
		}
	}
	for _, fn := range m.Functions {
		if refFunc(fn.Code) {
			return true
		}
	}
	return false
}

// ExportNames returns the names under which f is exported.
func (m *Module) ExportNames(f *Function) []string {
	var names []string
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Func == f {
			names = append(names, e.Name)
		}
	}
	return names
}
