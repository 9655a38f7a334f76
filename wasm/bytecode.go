package wasm

import (
	"math"
	"strconv"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm/internal/binary"
)

// Code is a decoded instruction sequence. Start and End are byte offsets
// into the decoded data; End is just past the final end opcode.
type Code struct {
	Start        int
	End          int
	Instructions []*Instruction
}

// DecodeOptions controls instruction decoding.
type DecodeOptions struct {
	// Reloc marks immediates stored as padded LEB128 (5 bytes, 10 for
	// i64.const) as relocatable so they keep their width on re-encode.
	Reloc bool

	// MaxLocals caps the number of locals declared by one function body.
	// Zero uses DefaultMaxLocals.
	MaxLocals uint32
}

// DefaultMaxLocals is the local count limit used when DecodeOptions.MaxLocals is zero.
const DefaultMaxLocals = 50000

// EncodeOptions controls instruction and module encoding.
type EncodeOptions struct {
	// Relocatable pads every immediate marked Reloc to a fixed width and
	// records its offset in Instruction.ROff.
	Relocatable bool

	// RelocBase is added to offsets recorded by EncodeCode.
	RelocBase int
}

// sink receives the operand stream of an encoding pass. The counting sink
// and the writing sink see identical calls, so sizes and bytes agree.
type sink interface {
	putByte(b byte)
	putBytes(p []byte)
	putU32(v uint32)
	putU64(v uint64)
	putS32(v int32)
	putS64(v int64)
	padU32(v uint32)
	padS32(v int32)
	padS64(v int64)
	pos() int
}

type countSink struct{ n int }

func (c *countSink) putByte(byte) { c.n++ }
func (c *countSink) putBytes(p []byte) { c.n += len(p) }
func (c *countSink) putU32(v uint32) { c.n += binary.SizeU64(uint64(v)) }
func (c *countSink) putU64(v uint64) { c.n += binary.SizeU64(v) }
func (c *countSink) putS32(v int32) { c.n += binary.SizeS64(int64(v)) }
func (c *countSink) putS64(v int64) { c.n += binary.SizeS64(v) }
func (c *countSink) padU32(uint32) { c.n += binary.PaddedU32Size }
func (c *countSink) padS32(int32) { c.n += binary.PaddedU32Size }
func (c *countSink) padS64(int64) { c.n += binary.PaddedU64Size }
func (c *countSink) pos() int { return c.n }

type writeSink struct {
	w    *binary.Writer
	base int
}

func (s *writeSink) putByte(b byte) { s.w.Byte(b) }
func (s *writeSink) putBytes(p []byte) { s.w.WriteBytes(p) }
func (s *writeSink) putU32(v uint32) { s.w.WriteU32(v) }
func (s *writeSink) putU64(v uint64) { s.w.WriteU64(v) }
func (s *writeSink) putS32(v int32) { s.w.WriteS32(v) }
func (s *writeSink) putS64(v int64) { s.w.WriteS64(v) }
func (s *writeSink) padU32(v uint32) { s.w.WriteU32Padded(v) }
func (s *writeSink) padS32(v int32) { s.w.WriteS32Padded(v) }
func (s *writeSink) padS64(v int64) { s.w.WriteS64Padded(v) }
func (s *writeSink) pos() int { return s.base + s.w.Len() }

// indexSpace maps module entities to their positions. It is built once
// per encode and shared by every function body.
type indexSpace struct {
	types    map[*FuncType]int
	funcs    map[*Function]int
	tables   map[*Table]int
	memories map[*Memory]int
	globals  map[*Global]int
	tags     map[*Tag]int
	data     map[*DataSegment]int
	elems    map[*ElementSegment]int
}

func positions[T comparable](items []T) map[T]int {
	idx := make(map[T]int, len(items))
	for i, it := range items {
		if _, dup := idx[it]; !dup {
			idx[it] = i
		}
	}
	return idx
}

func newIndexSpace(m *Module) *indexSpace {
	return &indexSpace{
		types:    positions(m.Types),
		funcs:    positions(m.Functions),
		tables:   positions(m.Tables),
		memories: positions(m.Memories),
		globals:  positions(m.Globals),
		tags:     positions(m.Tags),
		data:     positions(m.DataSegments),
		elems:    positions(m.ElementSegments),
	}
}

// emitter walks instructions and writes their encoding into a sink.
type emitter struct {
	ix       *indexSpace
	locals   map[*Local]int
	reloc    bool
	recordAt bool
	s        sink
}

func lookup[T comparable](idx map[T]int, v T) (uint32, bool) {
	i, ok := idx[v]
	return uint32(i), ok
}

func insPath(i int, ins *Instruction) []string {
	return []string{strconv.Itoa(i), ins.Opcode.String()}
}

func (e *emitter) code(code []*Instruction) error {
	for i, ins := range code {
		if err := e.instruction(i, ins); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) record(ins *Instruction) {
	if e.recordAt {
		ins.ROff = e.s.pos()
	}
}

// optional resolves an entity that defaults to index 0 when nil.
func optional[T comparable](idx map[T]int, v T) (uint32, bool) {
	var zero T
	if v == zero {
		return 0, true
	}
	return lookup(idx, v)
}

func (e *emitter) instruction(i int, ins *Instruction) error {
	info, ok := Lookup(ins.Opcode)
	if !ok {
		return errors.Unsupported(errors.PhaseEncode, "opcode "+ins.Opcode.String())
	}
	if ins.Opcode.Prefixed() {
		e.s.putByte(ins.Opcode.Prefix())
		e.s.putU32(uint32(ins.Opcode.Sub()))
	} else {
		e.s.putByte(byte(ins.Opcode))
	}

	missing := func(what string) error {
		return errors.Reference(errors.PhaseEncode, insPath(i, ins), what)
	}

	switch info.Imm {
	case ImmNone:

	case ImmBlock:
		switch {
		case ins.Type != nil:
			idx, ok := lookup(e.ix.types, ins.Type)
			if !ok {
				return missing("block type")
			}
			e.s.putS64(int64(idx))
		case ins.Block == ValAny:
			e.s.putByte(byte(BlockVoid))
		default:
			e.s.putByte(byte(ins.Block))
		}

	case ImmLabel:
		e.s.putU32(ins.Label)

	case ImmBrTable:
		e.s.putU32(uint32(len(ins.Labels)))
		for _, l := range ins.Labels {
			e.s.putU32(l)
		}
		e.s.putU32(ins.Label)

	case ImmFunc:
		idx, ok := lookup(e.ix.funcs, ins.Func)
		if !ok {
			return missing("function " + funcLabel(ins.Func))
		}
		if ins.Reloc && e.reloc {
			e.record(ins)
			e.s.padU32(idx)
		} else {
			e.s.putU32(idx)
		}

	case ImmCallIndirect:
		tidx, ok := lookup(e.ix.types, ins.Type)
		if !ok {
			return missing("call_indirect type")
		}
		table, ok := optional(e.ix.tables, ins.Table)
		if !ok {
			return missing("table")
		}
		e.s.putU32(tidx)
		e.s.putU32(table)

	case ImmLocal:
		idx, ok := e.locals[ins.Local]
		if !ok {
			return missing("local")
		}
		e.s.putU32(uint32(idx))

	case ImmGlobal:
		idx, ok := lookup(e.ix.globals, ins.Global)
		if !ok {
			return missing("global")
		}
		if ins.Reloc && e.reloc {
			e.record(ins)
			e.s.padU32(idx)
		} else {
			e.s.putU32(idx)
		}

	case ImmTable:
		idx, ok := optional(e.ix.tables, ins.Table)
		if !ok {
			return missing("table")
		}
		e.s.putU32(idx)

	case ImmMemArg:
		return e.memArg(i, ins)

	case ImmMemArgLane:
		if err := e.memArg(i, ins); err != nil {
			return err
		}
		e.s.putByte(ins.Lane)

	case ImmMemory, ImmFence:
		e.s.putByte(0)

	case ImmI32:
		if ins.Reloc && e.reloc {
			e.record(ins)
			e.s.padS32(ins.I32)
		} else {
			e.s.putS32(ins.I32)
		}

	case ImmI64:
		if ins.Reloc && e.reloc {
			e.record(ins)
			e.s.padS64(ins.I64)
		} else {
			e.s.putS64(ins.I64)
		}

	case ImmF32:
		var b [4]byte
		bits := math.Float32bits(ins.F32)
		b[0], b[1], b[2], b[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
		e.s.putBytes(b[:])

	case ImmF64:
		var b [8]byte
		bits := math.Float64bits(ins.F64)
		for k := range b {
			b[k] = byte(bits >> (8 * k))
		}
		e.s.putBytes(b[:])

	case ImmV128, ImmShuffle:
		e.s.putBytes(ins.V128[:])

	case ImmLane:
		e.s.putByte(ins.Lane)

	case ImmRefType:
		e.s.putByte(byte(ins.RefType))

	case ImmSelectTypes:
		e.s.putU32(uint32(len(ins.Types)))
		for _, t := range ins.Types {
			e.s.putByte(byte(t))
		}

	case ImmTag:
		idx, ok := lookup(e.ix.tags, ins.Tag)
		if !ok {
			return missing("tag")
		}
		e.s.putU32(idx)

	case ImmMemoryInit:
		idx, ok := lookup(e.ix.data, ins.Data)
		if !ok {
			return missing("data segment")
		}
		e.s.putU32(idx)
		e.s.putByte(0)

	case ImmData:
		idx, ok := lookup(e.ix.data, ins.Data)
		if !ok {
			return missing("data segment")
		}
		e.s.putU32(idx)

	case ImmMemoryCopy:
		e.s.putByte(0)
		e.s.putByte(0)

	case ImmTableInit:
		idx, ok := lookup(e.ix.elems, ins.Elem)
		if !ok {
			return missing("element segment")
		}
		table, ok := optional(e.ix.tables, ins.Table)
		if !ok {
			return missing("table")
		}
		e.s.putU32(idx)
		e.s.putU32(table)

	case ImmElem:
		idx, ok := lookup(e.ix.elems, ins.Elem)
		if !ok {
			return missing("element segment")
		}
		e.s.putU32(idx)

	case ImmTableCopy:
		dst, ok := optional(e.ix.tables, ins.Table)
		if !ok {
			return missing("table")
		}
		src, ok := optional(e.ix.tables, ins.Table2)
		if !ok {
			return missing("table")
		}
		e.s.putU32(dst)
		e.s.putU32(src)

	default:
		return errors.Unsupported(errors.PhaseEncode, "immediate layout of "+info.Name)
	}
	return nil
}

// memArg writes align and offset. A relocatable offset is padded to
// five bytes, so it must fit in 32 bits.
func (e *emitter) memArg(i int, ins *Instruction) error {
	e.s.putU32(ins.MemArg.Align)
	if ins.Reloc && e.reloc {
		if ins.MemArg.Offset > math.MaxUint32 {
			return errors.Overflow(errors.PhaseEncode, insPath(i, ins), ins.MemArg.Offset, "relocatable u32 offset")
		}
		e.record(ins)
		e.s.padU32(uint32(ins.MemArg.Offset))
		return nil
	}
	e.s.putU64(ins.MemArg.Offset)
	return nil
}

func funcLabel(f *Function) string {
	if f == nil {
		return "<nil>"
	}
	return f.String()
}

// ByteLength returns the encoded size of code. With relocatable set,
// immediates marked Reloc count at their padded width.
func ByteLength(m *Module, locals []*Local, code []*Instruction, relocatable bool) (int, error) {
	return byteLength(newIndexSpace(m), locals, code, relocatable)
}

func byteLength(ix *indexSpace, locals []*Local, code []*Instruction, relocatable bool) (int, error) {
	c := &countSink{}
	e := &emitter{ix: ix, locals: positions(locals), reloc: relocatable, s: c}
	if err := e.code(code); err != nil {
		return 0, err
	}
	return c.n, nil
}

// EncodeCode encodes code against the entity collections of m. In
// relocatable mode each Reloc immediate is padded and its offset plus
// RelocBase is stored in ROff.
func EncodeCode(m *Module, locals []*Local, code []*Instruction, opts EncodeOptions) ([]byte, error) {
	w := binary.NewWriter()
	if err := writeCode(newIndexSpace(m), locals, code, w, opts.RelocBase, opts.Relocatable); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// writeCode appends code to w. Offsets recorded in ROff are base plus the
// writer position, so passing the module writer with base 0 yields
// absolute offsets.
func writeCode(ix *indexSpace, locals []*Local, code []*Instruction, w *binary.Writer, base int, relocatable bool) error {
	e := &emitter{
		ix:       ix,
		locals:   positions(locals),
		reloc:    relocatable,
		recordAt: relocatable,
		s:        &writeSink{w: w, base: base},
	}
	return e.code(code)
}

// frameFunc is the implicit outermost frame of an expression.
const frameFunc Opcode = 0xFFFF

type codeDecoder struct {
	r      *binary.Reader
	m      *Module
	locals []*Local
	opts   DecodeOptions
}

// DecodeCode decodes one expression, a function body or a constant
// expression, from data. Decoding stops after the end that closes the
// implicit outer block. Entity indices resolve against m; call and
// return_call increment the callee's Usage.
func DecodeCode(data []byte, m *Module, locals []*Local, opts DecodeOptions) (*Code, error) {
	d := &codeDecoder{r: binary.NewReader(data), m: m, locals: locals, opts: opts}
	return d.decode()
}

func (d *codeDecoder) at() []string {
	return []string{"@" + strconv.Itoa(d.r.Position())}
}

func (d *codeDecoder) truncated(err error) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(d.at()...).
		Detail("truncated instruction").
		Cause(err).
		Build()
}

func (d *codeDecoder) decode() (*Code, error) {
	code := &Code{Start: 0}
	frames := []Opcode{frameFunc}

	for len(frames) > 0 {
		start := d.r.Position()
		op, err := d.opcode()
		if err != nil {
			return nil, err
		}
		info, _ := Lookup(op)
		ins := NewInstruction(op)
		if err := d.immediates(info, ins); err != nil {
			return nil, err
		}

		top := len(frames) - 1
		shape := func(detail string) error {
			return errors.InvalidShape(errors.PhaseDecode, []string{"@" + strconv.Itoa(start)}, detail, info.Name)
		}
		switch op {
		case OpBlock, OpLoop, OpIf, OpTry:
			frames = append(frames, op)
		case OpElse:
			if frames[top] != OpIf {
				return nil, shape("else without if")
			}
			frames[top] = OpElse
		case OpCatch:
			if frames[top] != OpTry && frames[top] != OpCatch {
				return nil, shape("catch without try")
			}
			frames[top] = OpCatch
		case OpCatchAll:
			if frames[top] != OpTry && frames[top] != OpCatch {
				return nil, shape("catch_all without try")
			}
			frames[top] = OpCatchAll
		case OpDelegate:
			if frames[top] != OpTry {
				return nil, shape("delegate without try")
			}
			frames = frames[:top]
		case OpEnd:
			frames = frames[:top]
		}
		code.Instructions = append(code.Instructions, ins)
	}
	code.End = d.r.Position()
	return code, nil
}

func (d *codeDecoder) opcode() (Opcode, error) {
	start := d.r.Position()
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, d.truncated(err)
	}
	switch b {
	case PrefixMisc, PrefixSIMD, PrefixAtomic:
		sub, err := d.r.ReadU32()
		if err != nil {
			return 0, d.truncated(err)
		}
		if sub > 0xFF {
			return 0, errors.InvalidShape(errors.PhaseDecode, []string{"@" + strconv.Itoa(start)},
				"sub-opcode out of range", sub)
		}
		op := Opcode(b)<<8 | Opcode(sub)
		if _, ok := Lookup(op); !ok {
			return 0, errors.InvalidShape(errors.PhaseDecode, []string{"@" + strconv.Itoa(start)},
				"unknown sub-opcode", op)
		}
		return op, nil
	}
	op := Opcode(b)
	if _, ok := Lookup(op); !ok {
		return 0, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Path("@" + strconv.Itoa(start)).
			Detail("unknown opcode 0x%02x", b).
			Value(b).
			Build()
	}
	return op, nil
}

func (d *codeDecoder) u32() (uint32, error) {
	v, err := d.r.ReadU32()
	if err != nil {
		return 0, d.truncated(err)
	}
	return v, nil
}

func (d *codeDecoder) byteVal() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, d.truncated(err)
	}
	return b, nil
}

func (d *codeDecoder) reserved() error {
	b, err := d.byteVal()
	if err != nil {
		return err
	}
	if b != 0 {
		return errors.InvalidShape(errors.PhaseDecode, d.at(), "reserved byte must be zero", b)
	}
	return nil
}

// entity reads an index and resolves it in items.
func entity[T any](d *codeDecoder, items []T, what string) (T, uint32, error) {
	var zero T
	idx, err := d.u32()
	if err != nil {
		return zero, 0, err
	}
	if int(idx) >= len(items) {
		return zero, idx, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path(d.at()...).
			Detail("%s index %d out of bounds (length %d)", what, idx, len(items)).
			Value(idx).
			Build()
	}
	return items[idx], idx, nil
}

// tableRef resolves a table index, allowing index 0 in modules without tables.
func (d *codeDecoder) tableRef() (*Table, error) {
	pos := d.r.Position()
	idx, err := d.u32()
	if err != nil {
		return nil, err
	}
	if idx == 0 && len(d.m.Tables) == 0 {
		return nil, nil
	}
	if int(idx) >= len(d.m.Tables) {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path("@" + strconv.Itoa(pos)).
			Detail("table index %d out of bounds (length %d)", idx, len(d.m.Tables)).
			Value(idx).
			Build()
	}
	return d.m.Tables[idx], nil
}

// padded reports whether the immediate read from start was stored at the
// relocation width.
func (d *codeDecoder) padded(start, width int) bool {
	return d.opts.Reloc && d.r.Position()-start == width
}

func (d *codeDecoder) immediates(info *OpInfo, ins *Instruction) error {
	switch info.Imm {
	case ImmNone:

	case ImmBlock:
		v, err := d.r.ReadS64()
		if err != nil {
			return d.truncated(err)
		}
		switch {
		case v == -64:
			ins.Block = BlockVoid
		case v < 0:
			t := ValType(byte(v & 0x7f))
			if v < -64 || !validValType(t) {
				return errors.InvalidShape(errors.PhaseDecode, d.at(), "invalid block type", v)
			}
			ins.Block = t
		default:
			if v >= int64(len(d.m.Types)) {
				return errors.OutOfBounds(errors.PhaseDecode, d.at(), int(v), len(d.m.Types))
			}
			ins.Type = d.m.Types[v]
		}

	case ImmLabel:
		l, err := d.u32()
		if err != nil {
			return err
		}
		ins.Label = l

	case ImmBrTable:
		n, err := d.u32()
		if err != nil {
			return err
		}
		if int(n) > d.r.Len() {
			return errors.InvalidData(errors.PhaseDecode, d.at(), "br_table label count exceeds body")
		}
		ins.Labels = make([]uint32, n)
		for k := range ins.Labels {
			if ins.Labels[k], err = d.u32(); err != nil {
				return err
			}
		}
		if ins.Label, err = d.u32(); err != nil {
			return err
		}

	case ImmFunc:
		start := d.r.Position()
		f, _, err := entity(d, d.m.Functions, "function")
		if err != nil {
			return err
		}
		ins.Func = f
		ins.Reloc = d.padded(start, binary.PaddedU32Size)
		if ins.Opcode == OpCall || ins.Opcode == OpReturnCall {
			f.Usage++
		}

	case ImmCallIndirect:
		t, _, err := entity(d, d.m.Types, "type")
		if err != nil {
			return err
		}
		ins.Type = t
		if ins.Table, err = d.tableRef(); err != nil {
			return err
		}

	case ImmLocal:
		l, _, err := entity(d, d.locals, "local")
		if err != nil {
			return err
		}
		ins.Local = l

	case ImmGlobal:
		start := d.r.Position()
		g, _, err := entity(d, d.m.Globals, "global")
		if err != nil {
			return err
		}
		ins.Global = g
		ins.Reloc = d.padded(start, binary.PaddedU32Size)

	case ImmTable:
		t, err := d.tableRef()
		if err != nil {
			return err
		}
		ins.Table = t

	case ImmMemArg:
		return d.memArg(ins)

	case ImmMemArgLane:
		if err := d.memArg(ins); err != nil {
			return err
		}
		lane, err := d.byteVal()
		if err != nil {
			return err
		}
		ins.Lane = lane

	case ImmMemory, ImmFence:
		return d.reserved()

	case ImmI32:
		start := d.r.Position()
		v, err := d.r.ReadS32()
		if err != nil {
			return d.truncated(err)
		}
		ins.I32 = v
		ins.Reloc = d.padded(start, binary.PaddedU32Size)

	case ImmI64:
		start := d.r.Position()
		v, err := d.r.ReadS64()
		if err != nil {
			return d.truncated(err)
		}
		ins.I64 = v
		ins.Reloc = d.padded(start, binary.PaddedU64Size)

	case ImmF32:
		bits, err := d.r.ReadFixed32()
		if err != nil {
			return d.truncated(err)
		}
		ins.F32 = math.Float32frombits(bits)

	case ImmF64:
		bits, err := d.r.ReadFixed64()
		if err != nil {
			return d.truncated(err)
		}
		ins.F64 = math.Float64frombits(bits)

	case ImmV128, ImmShuffle:
		b, err := d.r.ReadBytes(16)
		if err != nil {
			return d.truncated(err)
		}
		copy(ins.V128[:], b)

	case ImmLane:
		lane, err := d.byteVal()
		if err != nil {
			return err
		}
		ins.Lane = lane

	case ImmRefType:
		b, err := d.byteVal()
		if err != nil {
			return err
		}
		if !validRefType(ValType(b)) {
			return errors.InvalidShape(errors.PhaseDecode, d.at(), "invalid reference type", b)
		}
		ins.RefType = ValType(b)

	case ImmSelectTypes:
		n, err := d.u32()
		if err != nil {
			return err
		}
		if int(n) > d.r.Len() {
			return errors.InvalidData(errors.PhaseDecode, d.at(), "select type count exceeds body")
		}
		ins.Types = make([]ValType, n)
		for k := range ins.Types {
			b, err := d.byteVal()
			if err != nil {
				return err
			}
			if !validValType(ValType(b)) {
				return errors.InvalidShape(errors.PhaseDecode, d.at(), "invalid value type", b)
			}
			ins.Types[k] = ValType(b)
		}

	case ImmTag:
		t, _, err := entity(d, d.m.Tags, "tag")
		if err != nil {
			return err
		}
		ins.Tag = t

	case ImmMemoryInit:
		seg, _, err := entity(d, d.m.DataSegments, "data segment")
		if err != nil {
			return err
		}
		ins.Data = seg
		return d.reserved()

	case ImmData:
		seg, _, err := entity(d, d.m.DataSegments, "data segment")
		if err != nil {
			return err
		}
		ins.Data = seg

	case ImmMemoryCopy:
		if err := d.reserved(); err != nil {
			return err
		}
		return d.reserved()

	case ImmTableInit:
		seg, _, err := entity(d, d.m.ElementSegments, "element segment")
		if err != nil {
			return err
		}
		ins.Elem = seg
		if ins.Table, err = d.tableRef(); err != nil {
			return err
		}

	case ImmElem:
		seg, _, err := entity(d, d.m.ElementSegments, "element segment")
		if err != nil {
			return err
		}
		ins.Elem = seg

	case ImmTableCopy:
		var err error
		if ins.Table, err = d.tableRef(); err != nil {
			return err
		}
		if ins.Table2, err = d.tableRef(); err != nil {
			return err
		}

	default:
		return errors.Unsupported(errors.PhaseDecode, "immediate layout of "+info.Name)
	}
	return nil
}

func (d *codeDecoder) memArg(ins *Instruction) error {
	align, err := d.u32()
	if err != nil {
		return err
	}
	if align&0x40 != 0 {
		return errors.InvalidShape(errors.PhaseDecode, d.at(), "multi-memory memarg not supported", align)
	}
	ins.MemArg.Align = align
	start := d.r.Position()
	off, err := d.r.ReadU64()
	if err != nil {
		return d.truncated(err)
	}
	ins.MemArg.Offset = off
	ins.Reloc = d.padded(start, binary.PaddedU32Size)
	return nil
}
