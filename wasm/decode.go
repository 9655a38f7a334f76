package wasm

import (
	stderrors "errors"
	"fmt"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = stderrors.New("invalid wasm magic number")
	ErrInvalidVersion = stderrors.New("invalid wasm version")
)

const funcTypeForm = 0x60

// moduleDecoder carries state between sections. Function bodies are
// decoded after every section is read, so instructions can reference
// data segments declared after the code section.
type moduleDecoder struct {
	m      *Module
	opts   DecodeOptions
	bodies [][]byte
	nDecl  int // defined functions declared by the function section
}

// ParseModule decodes a WebAssembly binary into a Module. Every section
// keeps its raw payload so unchanged sections re-encode byte-identically.
func ParseModule(data []byte, opts DecodeOptions) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadFixed32()
	if err != nil {
		return nil, r.Wrap("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadFixed32()
	if err != nil {
		return nil, r.Wrap("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	d := &moduleDecoder{m: &Module{}, opts: opts}
	var lastRank int

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.Wrap("section header", err)
		}

		if id != SectionCustom {
			rank, known := sectionRank[id]
			if !known {
				return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
					Detail("unknown section id 0x%02x", id).
					Value(id).
					Build()
			}
			if rank <= lastRank {
				return nil, errors.InvalidData(errors.PhaseDecode, []string{"sections"},
					fmt.Sprintf("section %d appears out of order", id))
			}
			lastRank = rank
		}

		sizeStart := r.Position()
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.Wrap("section size", err)
		}
		sizeWidth := r.Position() - sizeStart

		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.Wrap("section data", err)
		}

		sec := &Section{ID: id, raw: payload, sizeWidth: sizeWidth}
		d.m.Sections = append(d.m.Sections, sec)

		if err := d.section(sec, payload); err != nil {
			return nil, err
		}
	}

	if err := d.functionBodies(); err != nil {
		return nil, err
	}
	if s := d.m.FindCustomSection("name"); s != nil {
		readFunctionNames(d.m, s.Data)
	}
	d.m.decoded = snapshotLayout(d.m)
	return d.m, nil
}

func (d *moduleDecoder) section(sec *Section, payload []byte) error {
	sr := binary.NewReader(payload)
	var err error
	switch sec.ID {
	case SectionCustom:
		if sec.Name, err = sr.ReadName(); err != nil {
			return fmt.Errorf("custom section: %w", err)
		}
		sec.rawName = sec.Name
		sec.Data = payload[sr.Position():]
		return nil
	case SectionType:
		err = d.parseTypeSection(sr)
	case SectionImport:
		err = d.parseImportSection(sr)
	case SectionFunction:
		err = d.parseFunctionSection(sr)
	case SectionTable:
		err = d.parseTableSection(sr)
	case SectionMemory:
		err = d.parseMemorySection(sr)
	case SectionTag:
		err = d.parseTagSection(sr)
	case SectionGlobal:
		err = d.parseGlobalSection(sr)
	case SectionExport:
		err = d.parseExportSection(sr)
	case SectionStart:
		err = d.parseStartSection(sr)
	case SectionElement:
		err = d.parseElementSection(sr)
	case SectionDataCount:
		_, err = sr.ReadU32()
		d.m.HasDataCount = true
	case SectionCode:
		err = d.parseCodeSection(sr)
	case SectionData:
		err = d.parseDataSection(sr)
	}
	if err != nil {
		return fmt.Errorf("%s section: %w", sectionName(sec.ID), err)
	}
	if sr.Len() != 0 {
		return errors.InvalidData(errors.PhaseDecode, []string{sectionName(sec.ID)},
			fmt.Sprintf("%d trailing bytes", sr.Len()))
	}
	return nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	case SectionTag:
		return "tag"
	default:
		return fmt.Sprintf("section(%d)", id)
	}
}

// count reads a vector length and rejects counts larger than the
// remaining payload, since every element takes at least one byte.
func count(r *binary.Reader) (uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, errors.InvalidData(errors.PhaseDecode, nil,
			fmt.Sprintf("vector length %d exceeds remaining %d bytes", n, r.Len()))
	}
	return n, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if !validValType(ValType(b)) {
		return 0, errors.InvalidShape(errors.PhaseDecode, nil, "invalid value type", b)
	}
	return ValType(b), nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ts := make([]ValType, n)
	for i := range ts {
		if ts[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func (d *moduleDecoder) parseTypeSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	d.m.Types = make([]*FuncType, 0, n)
	for i := uint32(0); i < n; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != funcTypeForm {
			return errors.InvalidShape(errors.PhaseDecode, []string{"type", fmt.Sprint(i)},
				"unsupported type form", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		d.m.Types = append(d.m.Types, &FuncType{Params: params, Results: results})
	}
	return nil
}

func (d *moduleDecoder) typeRef(r *binary.Reader) (*FuncType, error) {
	idx, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(d.m.Types) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"type"}, int(idx), len(d.m.Types))
	}
	return d.m.Types[idx], nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^(limitsHasMax|limitsShared|limitsMemory64) != 0 {
		return Limits{}, errors.InvalidShape(errors.PhaseDecode, []string{"limits"}, "invalid limits flags", flags)
	}
	l := Limits{
		HasMax:   flags&limitsHasMax != 0,
		Shared:   flags&limitsShared != 0,
		Memory64: flags&limitsMemory64 != 0,
	}
	read := func() (uint64, error) {
		if l.Memory64 {
			return r.ReadU64()
		}
		v, err := r.ReadU32()
		return uint64(v), err
	}
	if l.Min, err = read(); err != nil {
		return Limits{}, err
	}
	if l.HasMax {
		if l.Max, err = read(); err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

func readTableType(r *binary.Reader) (ValType, Limits, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, Limits{}, err
	}
	if !validRefType(ValType(b)) {
		return 0, Limits{}, errors.InvalidShape(errors.PhaseDecode, []string{"table"}, "invalid element type", b)
	}
	l, err := readLimits(r)
	return ValType(b), l, err
}

func readGlobalType(r *binary.Reader) (ValType, bool, error) {
	t, err := readValType(r)
	if err != nil {
		return 0, false, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	if mut > 1 {
		return 0, false, errors.InvalidShape(errors.PhaseDecode, []string{"global"}, "invalid mutability", mut)
	}
	return t, mut == 1, nil
}

func (d *moduleDecoder) parseImportSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	m := d.m
	for i := uint32(0); i < n; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := m.newImport(module, name)

		switch kind {
		case KindFunc:
			ft, err := d.typeRef(r)
			if err != nil {
				return err
			}
			m.Functions = append(m.Functions, &Function{Type: ft, Import: imp})
		case KindTable:
			et, lim, err := readTableType(r)
			if err != nil {
				return err
			}
			m.Tables = append(m.Tables, &Table{Import: imp, ElemType: et, Limits: lim})
		case KindMemory:
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			m.Memories = append(m.Memories, &Memory{Import: imp, Limits: lim})
		case KindGlobal:
			t, mut, err := readGlobalType(r)
			if err != nil {
				return err
			}
			m.Globals = append(m.Globals, &Global{Import: imp, Type: t, Mutable: mut})
		case KindTag:
			attr, err := r.ReadByte()
			if err != nil {
				return err
			}
			ft, err := d.typeRef(r)
			if err != nil {
				return err
			}
			m.Tags = append(m.Tags, &Tag{Import: imp, Attribute: attr, Type: ft})
		default:
			return errors.InvalidShape(errors.PhaseDecode, []string{"import", imp.String()}, "invalid import kind", kind)
		}
	}
	return nil
}

func (d *moduleDecoder) parseFunctionSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ft, err := d.typeRef(r)
		if err != nil {
			return err
		}
		d.m.Functions = append(d.m.Functions, &Function{Type: ft})
	}
	d.nDecl = int(n)
	return nil
}

func (d *moduleDecoder) parseTableSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		et, lim, err := readTableType(r)
		if err != nil {
			return err
		}
		d.m.Tables = append(d.m.Tables, &Table{ElemType: et, Limits: lim})
	}
	return nil
}

func (d *moduleDecoder) parseMemorySection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		d.m.Memories = append(d.m.Memories, &Memory{Limits: lim})
	}
	return nil
}

func (d *moduleDecoder) parseTagSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		attr, err := r.ReadByte()
		if err != nil {
			return err
		}
		ft, err := d.typeRef(r)
		if err != nil {
			return err
		}
		d.m.Tags = append(d.m.Tags, &Tag{Attribute: attr, Type: ft})
	}
	return nil
}

// readExpr decodes a constant expression at the reader position.
func (d *moduleDecoder) readExpr(r *binary.Reader) ([]*Instruction, error) {
	code, err := DecodeCode(r.Rest(), d.m, nil, d.opts)
	if err != nil {
		return nil, err
	}
	if err := r.Skip(code.End); err != nil {
		return nil, err
	}
	return code.Instructions, nil
}

func (d *moduleDecoder) parseGlobalSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		t, mut, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := d.readExpr(r)
		if err != nil {
			return err
		}
		d.m.Globals = append(d.m.Globals, &Global{Type: t, Mutable: mut, Init: init})
	}
	return nil
}

func entityAt[T any](items []T, idx uint32, what string) (T, error) {
	if int(idx) >= len(items) {
		var zero T
		return zero, errors.OutOfBounds(errors.PhaseDecode, []string{what}, int(idx), len(items))
	}
	return items[idx], nil
}

func (d *moduleDecoder) parseExportSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	m := d.m
	for i := uint32(0); i < n; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		exp := &Export{Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			exp.Func, err = entityAt(m.Functions, idx, "function")
		case KindTable:
			exp.Table, err = entityAt(m.Tables, idx, "table")
		case KindMemory:
			exp.Memory, err = entityAt(m.Memories, idx, "memory")
		case KindGlobal:
			exp.Global, err = entityAt(m.Globals, idx, "global")
		case KindTag:
			exp.Tag, err = entityAt(m.Tags, idx, "tag")
		default:
			err = errors.InvalidShape(errors.PhaseDecode, []string{"export", name}, "invalid export kind", kind)
		}
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func (d *moduleDecoder) parseStartSection(r *binary.Reader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	d.m.Start, err = entityAt(d.m.Functions, idx, "function")
	return err
}

func (d *moduleDecoder) funcRefs(r *binary.Reader) ([]*Function, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	funcs := make([]*Function, n)
	for i := range funcs {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if funcs[i], err = entityAt(d.m.Functions, idx, "function"); err != nil {
			return nil, err
		}
	}
	return funcs, nil
}

func (d *moduleDecoder) exprs(r *binary.Reader) ([][]*Instruction, error) {
	n, err := count(r)
	if err != nil {
		return nil, err
	}
	exprs := make([][]*Instruction, n)
	for i := range exprs {
		if exprs[i], err = d.readExpr(r); err != nil {
			return nil, err
		}
	}
	return exprs, nil
}

func (d *moduleDecoder) defaultTable() *Table {
	if len(d.m.Tables) == 0 {
		return nil
	}
	return d.m.Tables[0]
}

func (d *moduleDecoder) parseElementSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return errors.InvalidShape(errors.PhaseDecode, []string{"element", fmt.Sprint(i)}, "invalid segment flags", flags)
		}
		seg := &ElementSegment{Flags: flags, ElemType: ValFuncRef}

		// active segments: flags 0, 2, 4, 6
		if flags&0x01 == 0 {
			seg.Table = d.defaultTable()
			if flags&0x02 != 0 {
				idx, err := r.ReadU32()
				if err != nil {
					return err
				}
				if seg.Table, err = entityAt(d.m.Tables, idx, "table"); err != nil {
					return err
				}
			}
			if seg.Offset, err = d.readExpr(r); err != nil {
				return err
			}
		}

		// flags 0 and 4 carry no element kind or type
		if flags&0x03 != 0 {
			b, err := r.ReadByte()
			if err != nil {
				return err
			}
			if seg.UsesExprs() {
				if !validRefType(ValType(b)) {
					return errors.InvalidShape(errors.PhaseDecode, []string{"element", fmt.Sprint(i)}, "invalid reference type", b)
				}
				seg.ElemType = ValType(b)
			} else if b != 0x00 {
				return errors.InvalidShape(errors.PhaseDecode, []string{"element", fmt.Sprint(i)}, "invalid element kind", b)
			}
		}

		if seg.UsesExprs() {
			seg.Exprs, err = d.exprs(r)
		} else {
			seg.Funcs, err = d.funcRefs(r)
		}
		if err != nil {
			return err
		}
		d.m.ElementSegments = append(d.m.ElementSegments, seg)
	}
	return nil
}

func (d *moduleDecoder) parseDataSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg := &DataSegment{Flags: flags}
		switch flags {
		case 0:
			if len(d.m.Memories) > 0 {
				seg.Memory = d.m.Memories[0]
			}
		case 1:
		case 2:
			idx, err := r.ReadU32()
			if err != nil {
				return err
			}
			if seg.Memory, err = entityAt(d.m.Memories, idx, "memory"); err != nil {
				return err
			}
		default:
			return errors.InvalidShape(errors.PhaseDecode, []string{"data", fmt.Sprint(i)}, "invalid segment flags", flags)
		}
		if flags != 1 {
			if seg.Offset, err = d.readExpr(r); err != nil {
				return err
			}
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(size))
		if err != nil {
			return err
		}
		seg.Init = init
		d.m.DataSegments = append(d.m.DataSegments, seg)
	}
	return nil
}

func (d *moduleDecoder) parseCodeSection(r *binary.Reader) error {
	n, err := count(r)
	if err != nil {
		return err
	}
	d.bodies = make([][]byte, n)
	for i := range d.bodies {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if d.bodies[i], err = r.ReadBytes(int(size)); err != nil {
			return err
		}
	}
	return nil
}

func (d *moduleDecoder) functionBodies() error {
	defined := d.m.DefinedFunctions()
	if len(d.bodies) != d.nDecl || len(defined) != d.nDecl {
		return errors.InvalidData(errors.PhaseDecode, []string{"code"},
			fmt.Sprintf("function section declares %d functions, code section has %d bodies", d.nDecl, len(d.bodies)))
	}
	maxLocals := d.opts.MaxLocals
	if maxLocals == 0 {
		maxLocals = DefaultMaxLocals
	}
	base := d.m.NumImportedFunctions()
	for i, fn := range defined {
		if err := d.functionBody(fn, d.bodies[i], maxLocals); err != nil {
			return fmt.Errorf("code section: function %d: %w", base+i, err)
		}
	}
	return nil
}

func (d *moduleDecoder) functionBody(fn *Function, body []byte, maxLocals uint32) error {
	r := binary.NewReader(body)
	groups, err := count(r)
	if err != nil {
		return err
	}

	fn.Locals = make([]*Local, 0, len(fn.Type.Params))
	for _, p := range fn.Type.Params {
		fn.Locals = append(fn.Locals, &Local{Type: p})
	}

	var total uint64
	for g := uint32(0); g < groups; g++ {
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		t, err := readValType(r)
		if err != nil {
			return err
		}
		total += uint64(n)
		if total > uint64(maxLocals) {
			return errors.Overflow(errors.PhaseDecode, []string{"locals"}, total, fmt.Sprintf("local limit %d", maxLocals))
		}
		for k := uint32(0); k < n; k++ {
			fn.Locals = append(fn.Locals, &Local{Type: t})
		}
	}

	code, err := DecodeCode(body[r.Position():], d.m, fn.Locals, d.opts)
	if err != nil {
		return err
	}
	if r.Position()+code.End != len(body) {
		return errors.InvalidData(errors.PhaseDecode, []string{"body"},
			fmt.Sprintf("%d bytes after final end", len(body)-r.Position()-code.End))
	}
	fn.Code = code.Instructions
	fn.body = body
	fn.Dirty = false
	return nil
}
