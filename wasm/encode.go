package wasm

import (
	"bytes"
	"fmt"
	"slices"
	"sort"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm/internal/binary"
)

// layout records the entity index spaces a module was decoded with.
// Cached function bodies stay valid while every index space keeps its
// decoded prefix.
type layout struct {
	types    []*FuncType
	funcs    []*Function
	tables   []*Table
	memories []*Memory
	globals  []*Global
	tags     []*Tag
	data     []*DataSegment
	elems    []*ElementSegment
	names    []string
}

func snapshotLayout(m *Module) *layout {
	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
	}
	return &layout{
		names:    names,
		types:    slices.Clone(m.Types),
		funcs:    slices.Clone(m.Functions),
		tables:   slices.Clone(m.Tables),
		memories: slices.Clone(m.Memories),
		globals:  slices.Clone(m.Globals),
		tags:     slices.Clone(m.Tags),
		data:     slices.Clone(m.DataSegments),
		elems:    slices.Clone(m.ElementSegments),
	}
}

func keepsPrefix[T comparable](old, cur []T) bool {
	return len(cur) >= len(old) && slices.Equal(old, cur[:len(old)])
}

// cachedBodiesValid reports whether raw bodies captured at decode time
// still encode the same indices.
func (m *Module) cachedBodiesValid() bool {
	l := m.decoded
	if l == nil {
		return false
	}
	return keepsPrefix(l.types, m.Types) &&
		keepsPrefix(l.funcs, m.Functions) &&
		keepsPrefix(l.tables, m.Tables) &&
		keepsPrefix(l.memories, m.Memories) &&
		keepsPrefix(l.globals, m.Globals) &&
		keepsPrefix(l.tags, m.Tags) &&
		keepsPrefix(l.data, m.DataSegments) &&
		keepsPrefix(l.elems, m.ElementSegments)
}

// namesUnchanged reports whether the function index space and every
// function name are as decoded, so the name section needs no rebuild.
func (m *Module) namesUnchanged() bool {
	l := m.decoded
	if l == nil || !m.cachedBodiesValid() || !slices.Equal(l.funcs, m.Functions) {
		return false
	}
	for i, fn := range m.Functions {
		if fn.Name != l.names[i] {
			return false
		}
	}
	return true
}

// moduleEncoder holds per-encode state.
type moduleEncoder struct {
	m        *Module
	opts     EncodeOptions
	ix       *indexSpace
	useCache bool
}

// Encode serializes the module. Known sections are regenerated from the
// object graph; a regenerated section equal to its decoded payload keeps
// its original size encoding, so an unmodified module round-trips
// byte-identically. With opts.Relocatable every Reloc immediate in the
// code section is padded and its absolute file offset stored in ROff.
func (m *Module) Encode(opts EncodeOptions) ([]byte, error) {
	m.ensureSections()

	e := &moduleEncoder{
		m:        m,
		opts:     opts,
		ix:       newIndexSpace(m),
		useCache: !opts.Relocatable && m.cachedBodiesValid(),
	}

	w := binary.NewWriter()
	w.WriteFixed32(Magic)
	w.WriteFixed32(Version)

	for _, sec := range m.Sections {
		if sec.ID == SectionCode && opts.Relocatable {
			if err := e.relocatableCode(w); err != nil {
				return nil, fmt.Errorf("code section: %w", err)
			}
			continue
		}
		payload, emit, err := e.section(sec)
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionName(sec.ID), err)
		}
		if !emit {
			continue
		}
		writeSection(w, sec, payload)
	}
	return w.Bytes(), nil
}

func writeSection(w *binary.Writer, sec *Section, payload []byte) {
	w.Byte(sec.ID)
	if sec.sizeWidth > 0 && bytes.Equal(payload, sec.raw) {
		w.WriteU32Width(uint32(len(payload)), sec.sizeWidth)
	} else {
		w.WriteU32(uint32(len(payload)))
	}
	w.WriteBytes(payload)
}

// wantsSection reports whether a known section has content to emit.
func (m *Module) wantsSection(id byte) bool {
	switch id {
	case SectionType:
		return len(m.Types) > 0
	case SectionImport:
		return m.NumImportedFunctions() > 0 || m.NumImportedTables() > 0 ||
			m.NumImportedMemories() > 0 || m.NumImportedGlobals() > 0 || m.NumImportedTags() > 0
	case SectionFunction, SectionCode:
		return len(m.DefinedFunctions()) > 0
	case SectionTable:
		return len(m.Tables) > m.NumImportedTables()
	case SectionMemory:
		return len(m.Memories) > m.NumImportedMemories()
	case SectionTag:
		return len(m.Tags) > m.NumImportedTags()
	case SectionGlobal:
		return len(m.Globals) > m.NumImportedGlobals()
	case SectionExport:
		return len(m.Exports) > 0
	case SectionStart:
		return m.Start != nil
	case SectionElement:
		return len(m.ElementSegments) > 0
	case SectionDataCount:
		return m.HasDataCount
	case SectionData:
		return len(m.DataSegments) > 0
	}
	return false
}

// ensureSections inserts a section in canonical position for every
// collection that has content but no section yet.
func (m *Module) ensureSections() {
	present := make(map[byte]bool, len(m.Sections))
	for _, s := range m.Sections {
		present[s.ID] = true
	}
	ids := make([]byte, 0, len(sectionRank))
	for id := range sectionRank {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return sectionRank[ids[i]] < sectionRank[ids[j]] })

	for _, id := range ids {
		if present[id] || !m.wantsSection(id) {
			continue
		}
		rank := sectionRank[id]
		at := -1
		for i, s := range m.Sections {
			if s.ID != SectionCustom && sectionRank[s.ID] < rank {
				at = i + 1
			}
		}
		if at < 0 {
			// before the first known section, after leading custom sections
			at = 0
			for at < len(m.Sections) && m.Sections[at].ID == SectionCustom {
				at++
			}
		}
		m.Sections = slices.Insert(m.Sections, at, &Section{ID: id})
		present[id] = true
	}
}

func (e *moduleEncoder) section(sec *Section) ([]byte, bool, error) {
	m := e.m
	w := binary.NewWriter()
	var err error

	switch sec.ID {
	case SectionCustom:
		data := sec.Data
		if sec.Name == "name" {
			data = m.encodeNameSection(sec.Data, e.ix)
		}
		w.WriteName(sec.Name)
		w.WriteBytes(data)
		return w.Bytes(), true, nil
	case SectionStart:
		if m.Start == nil {
			return nil, false, nil
		}
		idx, ok := e.ix.funcs[m.Start]
		if !ok {
			return nil, false, errors.Reference(errors.PhaseEncode, []string{"start"}, "start function")
		}
		w.WriteU32(uint32(idx))
	case SectionDataCount:
		if !m.HasDataCount {
			return nil, false, nil
		}
		w.WriteU32(uint32(len(m.DataSegments)))
	case SectionType:
		w.WriteU32(uint32(len(m.Types)))
		for _, t := range m.Types {
			w.Byte(funcTypeForm)
			writeValTypes(w, t.Params)
			writeValTypes(w, t.Results)
		}
	case SectionImport:
		err = e.imports(w)
	case SectionFunction:
		err = e.functions(w)
	case SectionTable:
		defined := m.Tables[m.NumImportedTables():]
		w.WriteU32(uint32(len(defined)))
		for _, t := range defined {
			writeTableType(w, t)
		}
	case SectionMemory:
		defined := m.Memories[m.NumImportedMemories():]
		w.WriteU32(uint32(len(defined)))
		for _, mem := range defined {
			writeLimits(w, mem.Limits)
		}
	case SectionTag:
		err = e.tags(w)
	case SectionGlobal:
		err = e.globals(w)
	case SectionExport:
		err = e.exports(w)
	case SectionElement:
		err = e.elements(w)
	case SectionCode:
		if e.codeUnchanged() && sec.raw != nil {
			return sec.raw, true, nil
		}
		err = e.code(w)
	case SectionData:
		err = e.dataSegments(w)
	default:
		return sec.raw, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return w.Bytes(), true, nil
}

func writeValTypes(w *binary.Writer, ts []ValType) {
	w.WriteU32(uint32(len(ts)))
	for _, t := range ts {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.HasMax {
		flags |= limitsHasMax
	}
	if l.Shared {
		flags |= limitsShared
	}
	if l.Memory64 {
		flags |= limitsMemory64
	}
	w.Byte(flags)
	if l.Memory64 {
		w.WriteU64(l.Min)
		if l.HasMax {
			w.WriteU64(l.Max)
		}
		return
	}
	w.WriteU32(uint32(l.Min))
	if l.HasMax {
		w.WriteU32(uint32(l.Max))
	}
}

func writeTableType(w *binary.Writer, t *Table) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g *Global) {
	w.Byte(byte(g.Type))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (e *moduleEncoder) typeIndex(t *FuncType, path ...string) (uint32, error) {
	idx, ok := e.ix.types[t]
	if !ok {
		return 0, errors.Reference(errors.PhaseEncode, path, "type")
	}
	return uint32(idx), nil
}

type importEntry struct {
	imp   *Import
	write func(w *binary.Writer) error
}

// imports emits the imported entities of every kind merged back into
// declaration order.
func (e *moduleEncoder) imports(w *binary.Writer) error {
	m := e.m
	var entries []importEntry
	for _, f := range m.Functions[:m.NumImportedFunctions()] {
		f := f
		entries = append(entries, importEntry{f.Import, func(w *binary.Writer) error {
			idx, err := e.typeIndex(f.Type, "import", f.Import.String())
			if err != nil {
				return err
			}
			w.Byte(KindFunc)
			w.WriteU32(idx)
			return nil
		}})
	}
	for _, t := range m.Tables[:m.NumImportedTables()] {
		t := t
		entries = append(entries, importEntry{t.Import, func(w *binary.Writer) error {
			w.Byte(KindTable)
			writeTableType(w, t)
			return nil
		}})
	}
	for _, mem := range m.Memories[:m.NumImportedMemories()] {
		mem := mem
		entries = append(entries, importEntry{mem.Import, func(w *binary.Writer) error {
			w.Byte(KindMemory)
			writeLimits(w, mem.Limits)
			return nil
		}})
	}
	for _, g := range m.Globals[:m.NumImportedGlobals()] {
		g := g
		entries = append(entries, importEntry{g.Import, func(w *binary.Writer) error {
			w.Byte(KindGlobal)
			writeGlobalType(w, g)
			return nil
		}})
	}
	for _, t := range m.Tags[:m.NumImportedTags()] {
		t := t
		entries = append(entries, importEntry{t.Import, func(w *binary.Writer) error {
			idx, err := e.typeIndex(t.Type, "import", t.Import.String())
			if err != nil {
				return err
			}
			w.Byte(KindTag)
			w.Byte(t.Attribute)
			w.WriteU32(idx)
			return nil
		}})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].imp.seq < entries[j].imp.seq })

	w.WriteU32(uint32(len(entries)))
	for _, ent := range entries {
		w.WriteName(ent.imp.Module)
		w.WriteName(ent.imp.Name)
		if err := ent.write(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *moduleEncoder) functions(w *binary.Writer) error {
	defined := e.m.DefinedFunctions()
	w.WriteU32(uint32(len(defined)))
	for _, fn := range defined {
		idx, err := e.typeIndex(fn.Type, "function", fn.String())
		if err != nil {
			return err
		}
		w.WriteU32(idx)
	}
	return nil
}

func (e *moduleEncoder) tags(w *binary.Writer) error {
	defined := e.m.Tags[e.m.NumImportedTags():]
	w.WriteU32(uint32(len(defined)))
	for i, t := range defined {
		idx, err := e.typeIndex(t.Type, "tag", fmt.Sprint(i))
		if err != nil {
			return err
		}
		w.Byte(t.Attribute)
		w.WriteU32(idx)
	}
	return nil
}

// expr writes a constant expression. Reloc immediates keep their padding
// in relocatable mode; offsets are only recorded for function bodies.
func (e *moduleEncoder) expr(w *binary.Writer, code []*Instruction) error {
	em := &emitter{ix: e.ix, reloc: e.opts.Relocatable, s: &writeSink{w: w}}
	return em.code(code)
}

func (e *moduleEncoder) globals(w *binary.Writer) error {
	defined := e.m.Globals[e.m.NumImportedGlobals():]
	w.WriteU32(uint32(len(defined)))
	for i, g := range defined {
		writeGlobalType(w, g)
		if err := e.expr(w, g.Init); err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
	}
	return nil
}

func (e *moduleEncoder) exports(w *binary.Writer) error {
	w.WriteU32(uint32(len(e.m.Exports)))
	for _, exp := range e.m.Exports {
		var (
			idx int
			ok  bool
		)
		switch exp.Kind {
		case KindFunc:
			idx, ok = e.ix.funcs[exp.Func]
		case KindTable:
			idx, ok = e.ix.tables[exp.Table]
		case KindMemory:
			idx, ok = e.ix.memories[exp.Memory]
		case KindGlobal:
			idx, ok = e.ix.globals[exp.Global]
		case KindTag:
			idx, ok = e.ix.tags[exp.Tag]
		}
		if !ok {
			return errors.Reference(errors.PhaseEncode, []string{"export", exp.Name}, "exported entity")
		}
		w.WriteName(exp.Name)
		w.Byte(exp.Kind)
		w.WriteU32(uint32(idx))
	}
	return nil
}

func (e *moduleEncoder) elements(w *binary.Writer) error {
	w.WriteU32(uint32(len(e.m.ElementSegments)))
	for i, seg := range e.m.ElementSegments {
		path := []string{"element", fmt.Sprint(i)}
		flags := seg.Flags
		var tableIdx int
		if !seg.Passive() {
			if seg.Table != nil {
				idx, ok := e.ix.tables[seg.Table]
				if !ok {
					return errors.Reference(errors.PhaseEncode, path, "table")
				}
				tableIdx = idx
			}
			if tableIdx != 0 {
				flags |= 0x02
			}
		}
		w.WriteU32(flags)
		if flags&0x01 == 0 {
			if flags&0x02 != 0 {
				w.WriteU32(uint32(tableIdx))
			}
			if err := e.expr(w, seg.Offset); err != nil {
				return err
			}
		}
		if flags&0x03 != 0 {
			if seg.UsesExprs() {
				w.Byte(byte(seg.ElemType))
			} else {
				w.Byte(0x00)
			}
		}
		if seg.UsesExprs() {
			w.WriteU32(uint32(len(seg.Exprs)))
			for _, x := range seg.Exprs {
				if err := e.expr(w, x); err != nil {
					return err
				}
			}
			continue
		}
		w.WriteU32(uint32(len(seg.Funcs)))
		for _, f := range seg.Funcs {
			idx, ok := e.ix.funcs[f]
			if !ok {
				return errors.Reference(errors.PhaseEncode, path, "function "+funcLabel(f))
			}
			w.WriteU32(uint32(idx))
		}
	}
	return nil
}

func (e *moduleEncoder) dataSegments(w *binary.Writer) error {
	w.WriteU32(uint32(len(e.m.DataSegments)))
	for i, seg := range e.m.DataSegments {
		path := []string{"data", fmt.Sprint(i)}
		flags := seg.Flags
		memIdx := 0
		if flags != 1 && seg.Memory != nil {
			idx, ok := e.ix.memories[seg.Memory]
			if !ok {
				return errors.Reference(errors.PhaseEncode, path, "memory")
			}
			memIdx = idx
			if memIdx != 0 {
				flags = 2
			}
		}
		w.WriteU32(flags)
		if flags == 2 {
			w.WriteU32(uint32(memIdx))
		}
		if flags != 1 {
			if err := e.expr(w, seg.Offset); err != nil {
				return err
			}
		}
		w.WriteU32(uint32(len(seg.Init)))
		w.WriteBytes(seg.Init)
	}
	return nil
}

// localsDecl encodes the declared (non-parameter) locals as run-length groups.
func localsDecl(fn *Function) []byte {
	declared := fn.Locals[len(fn.Params()):]
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, l := range declared {
		if k := len(groups) - 1; k >= 0 && groups[k].t == l.Type {
			groups[k].n++
			continue
		}
		groups = append(groups, group{1, l.Type})
	}
	w := binary.NewWriter()
	w.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		w.WriteU32(g.n)
		w.Byte(byte(g.t))
	}
	return w.Bytes()
}

func (e *moduleEncoder) body(fn *Function) ([]byte, error) {
	if e.useCache && !fn.Dirty && fn.body != nil {
		return fn.body, nil
	}
	if len(fn.Code) == 0 {
		return nil, errors.InvalidInput(errors.PhaseEncode, "function "+fn.String()+" has no code")
	}
	w := binary.NewWriter()
	w.WriteBytes(localsDecl(fn))
	if err := writeCode(e.ix, fn.Locals, fn.Code, w, 0, false); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// codeUnchanged reports whether every defined function still has its
// decoded body, letting the code section keep its original bytes.
func (e *moduleEncoder) codeUnchanged() bool {
	if !e.useCache || !slices.Equal(e.m.decoded.funcs, e.m.Functions) {
		return false
	}
	for _, fn := range e.m.DefinedFunctions() {
		if fn.Dirty || fn.body == nil {
			return false
		}
	}
	return true
}

func (e *moduleEncoder) code(w *binary.Writer) error {
	defined := e.m.DefinedFunctions()
	w.WriteU32(uint32(len(defined)))
	for _, fn := range defined {
		body, err := e.body(fn)
		if err != nil {
			return fmt.Errorf("function %s: %w", fn, err)
		}
		w.WriteU32(uint32(len(body)))
		w.WriteBytes(body)
	}
	return nil
}

// relocatableCode writes the code section straight into the module
// writer with a padded size field, so ROff values are file offsets.
func (e *moduleEncoder) relocatableCode(w *binary.Writer) error {
	defined := e.m.DefinedFunctions()
	w.Byte(SectionCode)
	sizeAt := w.ReserveU32()
	start := w.Len()
	w.WriteU32(uint32(len(defined)))
	for _, fn := range defined {
		if len(fn.Code) == 0 {
			return errors.InvalidInput(errors.PhaseEncode, "function "+fn.String()+" has no code")
		}
		decl := localsDecl(fn)
		n, err := byteLength(e.ix, fn.Locals, fn.Code, true)
		if err != nil {
			return fmt.Errorf("function %s: %w", fn, err)
		}
		w.WriteU32(uint32(len(decl) + n))
		w.WriteBytes(decl)
		if err := writeCode(e.ix, fn.Locals, fn.Code, w, 0, true); err != nil {
			return fmt.Errorf("function %s: %w", fn, err)
		}
	}
	w.PatchU32(sizeAt, uint32(w.Len()-start))
	return nil
}
