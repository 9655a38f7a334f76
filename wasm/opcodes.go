package wasm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// OpClass is the semantic class of an opcode.
type OpClass uint8

const (
	ClassControl OpClass = iota
	ClassParametric
	ClassVariable
	ClassTable
	ClassMemory
	ClassConst
	ClassCompare
	ClassArith
	ClassConvert
	ClassReference
	ClassBulk
	ClassAtomic
	ClassVector
	ClassException
)

var classNames = [...]string{
	ClassControl:    "control",
	ClassParametric: "parametric",
	ClassVariable:   "variable",
	ClassTable:      "table",
	ClassMemory:     "memory",
	ClassConst:      "const",
	ClassCompare:    "compare",
	ClassArith:      "arith",
	ClassConvert:    "convert",
	ClassReference:  "reference",
	ClassBulk:       "bulk",
	ClassAtomic:     "atomic",
	ClassVector:     "vector",
	ClassException:  "exception",
}

func (c OpClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", c)
}

// ImmKind describes the immediate operands that follow an opcode.
type ImmKind uint8

const (
	ImmNone         ImmKind = iota
	ImmBlock                // block type: 0x40, value type or type index
	ImmLabel                // relative depth
	ImmBrTable              // label vector + default
	ImmFunc                 // function index
	ImmCallIndirect         // type index + table index
	ImmLocal                // local index
	ImmGlobal               // global index
	ImmTable                // table index
	ImmMemArg               // align + offset
	ImmMemory               // reserved memory byte
	ImmI32
	ImmI64
	ImmF32
	ImmF64
	ImmV128
	ImmLane        // lane index byte
	ImmMemArgLane  // memarg + lane index
	ImmShuffle     // 16 lane bytes
	ImmRefType     // reference type byte
	ImmSelectTypes // vector of value types
	ImmTag         // tag index
	ImmMemoryInit  // data index + reserved memory byte
	ImmData        // data index
	ImmMemoryCopy  // two reserved memory bytes
	ImmTableInit   // element index + table index
	ImmElem        // element index
	ImmTableCopy   // destination + source table index
	ImmFence       // reserved byte
)

// MemTraits describes how a memory instruction accesses linear memory.
type MemTraits struct {
	Align   uint8 // natural alignment, log2
	Load    bool
	Store   bool
	MayTrap bool
}

// Effect is a fixed type list or a function of the instruction operands.
type Effect struct {
	Types []ValType
	Func  func(fn *Function, ins *Instruction) []ValType
}

// Resolve returns the types for ins inside fn.
func (e Effect) Resolve(fn *Function, ins *Instruction) []ValType {
	if e.Func != nil {
		return e.Func(fn, ins)
	}
	return e.Types
}

// OpInfo is the registry entry for one opcode.
type OpInfo struct {
	Opcode Opcode
	Name   string
	Class  OpClass
	Imm    ImmKind
	Mem    *MemTraits
	Pull   Effect
	Push   Effect

	// Terminal marks unconditional control transfers; the operand stack
	// after them is polymorphic.
	Terminal bool
}

var (
	registryOnce sync.Once
	registry     map[Opcode]*OpInfo
	registryName map[string]*OpInfo
)

func loadRegistry() {
	registryOnce.Do(func() {
		b := registryBuilder{}
		b.control()
		b.variables()
		b.memory()
		b.numeric()
		b.misc()
		b.atomics()
		b.simd()
		registry = b
		registryName = make(map[string]*OpInfo, len(b))
		for _, info := range b {
			registryName[info.Name] = info
		}
	})
}

// Lookup returns the registry entry for op.
func Lookup(op Opcode) (*OpInfo, bool) {
	loadRegistry()
	info, ok := registry[op]
	return info, ok
}

// OpcodeByName returns the opcode with the given text-format name.
func OpcodeByName(name string) (Opcode, bool) {
	loadRegistry()
	info, ok := registryName[name]
	if !ok {
		return 0, false
	}
	return info.Opcode, true
}

// Opcodes returns every registered opcode in ascending order.
func Opcodes() []Opcode {
	loadRegistry()
	ops := make([]Opcode, 0, len(registry))
	for op := range registry {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

type registryBuilder map[Opcode]*OpInfo

// parseSig reads "pull_push" where each letter is a value type:
// i=i32 l=i64 f=f32 d=f64 v=v128 r=funcref a=any.
func parseSig(sig string) (pull, push []ValType) {
	in, out, ok := strings.Cut(sig, "_")
	if !ok {
		panic("wasm: malformed signature " + sig)
	}
	conv := func(s string) []ValType {
		if s == "" {
			return nil
		}
		ts := make([]ValType, len(s))
		for i := range s {
			switch s[i] {
			case 'i':
				ts[i] = ValI32
			case 'l':
				ts[i] = ValI64
			case 'f':
				ts[i] = ValF32
			case 'd':
				ts[i] = ValF64
			case 'v':
				ts[i] = ValV128
			case 'r':
				ts[i] = ValFuncRef
			case 'a':
				ts[i] = ValAny
			default:
				panic("wasm: bad type letter in " + sig)
			}
		}
		return ts
	}
	return conv(in), conv(out)
}

func (b registryBuilder) add(op Opcode, name string, class OpClass, imm ImmKind, sig string) *OpInfo {
	if prev, dup := b[op]; dup {
		panic(fmt.Sprintf("wasm: opcode 0x%04x registered twice (%s, %s)", uint16(op), prev.Name, name))
	}
	pull, push := parseSig(sig)
	info := &OpInfo{
		Opcode: op,
		Name:   name,
		Class:  class,
		Imm:    imm,
		Pull:   Effect{Types: pull},
		Push:   Effect{Types: push},
	}
	b[op] = info
	return info
}

func (b registryBuilder) dynamic(op Opcode, name string, class OpClass, imm ImmKind, pull, push func(*Function, *Instruction) []ValType) *OpInfo {
	info := b.add(op, name, class, imm, "_")
	info.Pull.Func = pull
	info.Push.Func = push
	return info
}

func (b registryBuilder) load(op Opcode, name string, class OpClass, imm ImmKind, sig string, align uint8) {
	b.add(op, name, class, imm, sig).Mem = &MemTraits{Align: align, Load: true, MayTrap: true}
}

func (b registryBuilder) store(op Opcode, name string, class OpClass, imm ImmKind, sig string, align uint8) {
	b.add(op, name, class, imm, sig).Mem = &MemTraits{Align: align, Store: true, MayTrap: true}
}

// seq registers consecutive opcodes sharing class and signature.
func (b registryBuilder) seq(first Opcode, class OpClass, sig string, names ...string) {
	for i, name := range names {
		b.add(first+Opcode(i), name, class, ImmNone, sig)
	}
}

// seqSig registers consecutive opcodes given as "name sig" pairs.
func (b registryBuilder) seqSig(first Opcode, class OpClass, entries ...string) {
	for i, e := range entries {
		name, sig, _ := strings.Cut(e, " ")
		b.add(first+Opcode(i), name, class, ImmNone, sig)
	}
}

func typesOf(t ValType) []ValType {
	if t == ValAny {
		return []ValType{ValAny}
	}
	return []ValType{t}
}

func blockPull(_ *Function, ins *Instruction) []ValType {
	return ins.BlockParams()
}

func blockPush(_ *Function, ins *Instruction) []ValType {
	return ins.BlockResults()
}

func ifPull(_ *Function, ins *Instruction) []ValType {
	params := ins.BlockParams()
	out := make([]ValType, 0, len(params)+1)
	out = append(out, params...)
	return append(out, ValI32)
}

func callPull(_ *Function, ins *Instruction) []ValType {
	if ins.Func == nil || ins.Func.Type == nil {
		return nil
	}
	return ins.Func.Type.Params
}

func callPush(_ *Function, ins *Instruction) []ValType {
	if ins.Func == nil || ins.Func.Type == nil {
		return nil
	}
	return ins.Func.Type.Results
}

func callIndirectPull(_ *Function, ins *Instruction) []ValType {
	if ins.Type == nil {
		return []ValType{ValI32}
	}
	out := make([]ValType, 0, len(ins.Type.Params)+1)
	out = append(out, ins.Type.Params...)
	return append(out, ValI32)
}

func callIndirectPush(_ *Function, ins *Instruction) []ValType {
	if ins.Type == nil {
		return nil
	}
	return ins.Type.Results
}

func localType(_ *Function, ins *Instruction) []ValType {
	if ins.Local == nil {
		return []ValType{ValAny}
	}
	return []ValType{ins.Local.Type}
}

func globalType(_ *Function, ins *Instruction) []ValType {
	if ins.Global == nil {
		return []ValType{ValAny}
	}
	return []ValType{ins.Global.Type}
}

func selectOperand(ins *Instruction) ValType {
	if len(ins.Types) > 0 {
		return ins.Types[0]
	}
	return ValAny
}

func selectPull(_ *Function, ins *Instruction) []ValType {
	t := selectOperand(ins)
	return []ValType{t, t, ValI32}
}

func selectPush(_ *Function, ins *Instruction) []ValType {
	return typesOf(selectOperand(ins))
}

func tableElem(ins *Instruction) ValType {
	if ins.Table == nil {
		return ValFuncRef
	}
	return ins.Table.ElemType
}

func tagParams(_ *Function, ins *Instruction) []ValType {
	if ins.Tag == nil || ins.Tag.Type == nil {
		return nil
	}
	return ins.Tag.Type.Params
}

func none(*Function, *Instruction) []ValType { return nil }

func (b registryBuilder) control() {
	b.add(OpUnreachable, "unreachable", ClassControl, ImmNone, "_").Terminal = true
	b.add(OpNop, "nop", ClassControl, ImmNone, "_")
	b.dynamic(OpBlock, "block", ClassControl, ImmBlock, blockPull, blockPush)
	b.dynamic(OpLoop, "loop", ClassControl, ImmBlock, blockPull, blockPush)
	b.dynamic(OpIf, "if", ClassControl, ImmBlock, ifPull, blockPush)
	b.add(OpElse, "else", ClassControl, ImmNone, "_")
	b.add(OpEnd, "end", ClassControl, ImmNone, "_")
	b.add(OpBr, "br", ClassControl, ImmLabel, "_").Terminal = true
	b.add(OpBrIf, "br_if", ClassControl, ImmLabel, "i_")
	b.add(OpBrTable, "br_table", ClassControl, ImmBrTable, "i_").Terminal = true
	b.add(OpReturn, "return", ClassControl, ImmNone, "_").Terminal = true
	b.dynamic(OpCall, "call", ClassControl, ImmFunc, callPull, callPush)
	b.dynamic(OpCallIndirect, "call_indirect", ClassControl, ImmCallIndirect, callIndirectPull, callIndirectPush)
	b.dynamic(OpReturnCall, "return_call", ClassControl, ImmFunc, callPull, none).Terminal = true
	b.dynamic(OpReturnCallIndirect, "return_call_indirect", ClassControl, ImmCallIndirect, callIndirectPull, none).Terminal = true

	b.dynamic(OpTry, "try", ClassException, ImmBlock, blockPull, blockPush)
	b.dynamic(OpCatch, "catch", ClassException, ImmTag, none, tagParams)
	b.dynamic(OpThrow, "throw", ClassException, ImmTag, tagParams, none).Terminal = true
	b.add(OpRethrow, "rethrow", ClassException, ImmLabel, "_").Terminal = true
	b.add(OpDelegate, "delegate", ClassException, ImmLabel, "_")
	b.add(OpCatchAll, "catch_all", ClassException, ImmNone, "_")

	b.add(OpDrop, "drop", ClassParametric, ImmNone, "a_")
	b.dynamic(OpSelect, "select", ClassParametric, ImmNone, selectPull, selectPush)
	b.dynamic(OpSelectType, "select", ClassParametric, ImmSelectTypes, selectPull, selectPush).Name = "select_t"

	b.dynamic(OpRefNull, "ref.null", ClassReference, ImmRefType, none,
		func(_ *Function, ins *Instruction) []ValType { return []ValType{ins.RefType} })
	b.add(OpRefIsNull, "ref.is_null", ClassReference, ImmNone, "a_i")
	b.add(OpRefFunc, "ref.func", ClassReference, ImmFunc, "_r")
}

func (b registryBuilder) variables() {
	b.dynamic(OpLocalGet, "local.get", ClassVariable, ImmLocal, none, localType)
	b.dynamic(OpLocalSet, "local.set", ClassVariable, ImmLocal, localType, none)
	b.dynamic(OpLocalTee, "local.tee", ClassVariable, ImmLocal, localType, localType)
	b.dynamic(OpGlobalGet, "global.get", ClassVariable, ImmGlobal, none, globalType)
	b.dynamic(OpGlobalSet, "global.set", ClassVariable, ImmGlobal, globalType, none)

	b.dynamic(OpTableGet, "table.get", ClassTable, ImmTable,
		func(*Function, *Instruction) []ValType { return []ValType{ValI32} },
		func(_ *Function, ins *Instruction) []ValType { return []ValType{tableElem(ins)} })
	b.dynamic(OpTableSet, "table.set", ClassTable, ImmTable,
		func(_ *Function, ins *Instruction) []ValType { return []ValType{ValI32, tableElem(ins)} },
		none)
}

func (b registryBuilder) memory() {
	loads := []struct {
		op    Opcode
		name  string
		sig   string
		align uint8
	}{
		{OpI32Load, "i32.load", "i_i", 2},
		{OpI64Load, "i64.load", "i_l", 3},
		{OpF32Load, "f32.load", "i_f", 2},
		{OpF64Load, "f64.load", "i_d", 3},
		{OpI32Load8S, "i32.load8_s", "i_i", 0},
		{OpI32Load8U, "i32.load8_u", "i_i", 0},
		{OpI32Load16S, "i32.load16_s", "i_i", 1},
		{OpI32Load16U, "i32.load16_u", "i_i", 1},
		{OpI64Load8S, "i64.load8_s", "i_l", 0},
		{OpI64Load8U, "i64.load8_u", "i_l", 0},
		{OpI64Load16S, "i64.load16_s", "i_l", 1},
		{OpI64Load16U, "i64.load16_u", "i_l", 1},
		{OpI64Load32S, "i64.load32_s", "i_l", 2},
		{OpI64Load32U, "i64.load32_u", "i_l", 2},
	}
	for _, l := range loads {
		b.load(l.op, l.name, ClassMemory, ImmMemArg, l.sig, l.align)
	}
	stores := []struct {
		op    Opcode
		name  string
		sig   string
		align uint8
	}{
		{OpI32Store, "i32.store", "ii_", 2},
		{OpI64Store, "i64.store", "il_", 3},
		{OpF32Store, "f32.store", "if_", 2},
		{OpF64Store, "f64.store", "id_", 3},
		{OpI32Store8, "i32.store8", "ii_", 0},
		{OpI32Store16, "i32.store16", "ii_", 1},
		{OpI64Store8, "i64.store8", "il_", 0},
		{OpI64Store16, "i64.store16", "il_", 1},
		{OpI64Store32, "i64.store32", "il_", 2},
	}
	for _, s := range stores {
		b.store(s.op, s.name, ClassMemory, ImmMemArg, s.sig, s.align)
	}
	b.add(OpMemorySize, "memory.size", ClassMemory, ImmMemory, "_i")
	b.add(OpMemoryGrow, "memory.grow", ClassMemory, ImmMemory, "i_i")
}

func (b registryBuilder) numeric() {
	b.add(OpI32Const, "i32.const", ClassConst, ImmI32, "_i")
	b.add(OpI64Const, "i64.const", ClassConst, ImmI64, "_l")
	b.add(OpF32Const, "f32.const", ClassConst, ImmF32, "_f")
	b.add(OpF64Const, "f64.const", ClassConst, ImmF64, "_d")

	b.add(OpI32Eqz, "i32.eqz", ClassCompare, ImmNone, "i_i")
	b.seq(OpI32Eq, ClassCompare, "ii_i",
		"i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s",
		"i32.gt_u", "i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u")
	b.add(OpI64Eqz, "i64.eqz", ClassCompare, ImmNone, "l_i")
	b.seq(OpI64Eq, ClassCompare, "ll_i",
		"i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s",
		"i64.gt_u", "i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u")
	b.seq(OpF32Eq, ClassCompare, "ff_i", "f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge")
	b.seq(OpF64Eq, ClassCompare, "dd_i", "f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge")

	b.seq(OpI32Clz, ClassArith, "i_i", "i32.clz", "i32.ctz", "i32.popcnt")
	b.seq(OpI32Add, ClassArith, "ii_i",
		"i32.add", "i32.sub", "i32.mul", "i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u",
		"i32.and", "i32.or", "i32.xor", "i32.shl", "i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr")
	b.seq(OpI64Clz, ClassArith, "l_l", "i64.clz", "i64.ctz", "i64.popcnt")
	b.seq(OpI64Add, ClassArith, "ll_l",
		"i64.add", "i64.sub", "i64.mul", "i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u",
		"i64.and", "i64.or", "i64.xor", "i64.shl", "i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr")
	b.seq(OpF32Abs, ClassArith, "f_f",
		"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt")
	b.seq(OpF32Add, ClassArith, "ff_f",
		"f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign")
	b.seq(OpF64Abs, ClassArith, "d_d",
		"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt")
	b.seq(OpF64Add, ClassArith, "dd_d",
		"f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign")

	b.seqSig(OpI32WrapI64, ClassConvert,
		"i32.wrap_i64 l_i",
		"i32.trunc_f32_s f_i",
		"i32.trunc_f32_u f_i",
		"i32.trunc_f64_s d_i",
		"i32.trunc_f64_u d_i",
		"i64.extend_i32_s i_l",
		"i64.extend_i32_u i_l",
		"i64.trunc_f32_s f_l",
		"i64.trunc_f32_u f_l",
		"i64.trunc_f64_s d_l",
		"i64.trunc_f64_u d_l",
		"f32.convert_i32_s i_f",
		"f32.convert_i32_u i_f",
		"f32.convert_i64_s l_f",
		"f32.convert_i64_u l_f",
		"f32.demote_f64 d_f",
		"f64.convert_i32_s i_d",
		"f64.convert_i32_u i_d",
		"f64.convert_i64_s l_d",
		"f64.convert_i64_u l_d",
		"f64.promote_f32 f_d",
		"i32.reinterpret_f32 f_i",
		"i64.reinterpret_f64 d_l",
		"f32.reinterpret_i32 i_f",
		"f64.reinterpret_i64 l_d",
		"i32.extend8_s i_i",
		"i32.extend16_s i_i",
		"i64.extend8_s l_l",
		"i64.extend16_s l_l",
		"i64.extend32_s l_l",
	)
}

func (b registryBuilder) misc() {
	b.seqSig(OpI32TruncSatF32S, ClassConvert,
		"i32.trunc_sat_f32_s f_i",
		"i32.trunc_sat_f32_u f_i",
		"i32.trunc_sat_f64_s d_i",
		"i32.trunc_sat_f64_u d_i",
		"i64.trunc_sat_f32_s f_l",
		"i64.trunc_sat_f32_u f_l",
		"i64.trunc_sat_f64_s d_l",
		"i64.trunc_sat_f64_u d_l",
	)
	b.add(OpMemoryInit, "memory.init", ClassBulk, ImmMemoryInit, "iii_").Mem = &MemTraits{Store: true, MayTrap: true}
	b.add(OpDataDrop, "data.drop", ClassBulk, ImmData, "_")
	b.add(OpMemoryCopy, "memory.copy", ClassBulk, ImmMemoryCopy, "iii_").Mem = &MemTraits{Load: true, Store: true, MayTrap: true}
	b.add(OpMemoryFill, "memory.fill", ClassBulk, ImmMemory, "iii_").Mem = &MemTraits{Store: true, MayTrap: true}
	b.add(OpTableInit, "table.init", ClassTable, ImmTableInit, "iii_")
	b.add(OpElemDrop, "elem.drop", ClassTable, ImmElem, "_")
	b.add(OpTableCopy, "table.copy", ClassTable, ImmTableCopy, "iii_")
	b.dynamic(OpTableGrow, "table.grow", ClassTable, ImmTable,
		func(_ *Function, ins *Instruction) []ValType { return []ValType{tableElem(ins), ValI32} },
		func(*Function, *Instruction) []ValType { return []ValType{ValI32} })
	b.add(OpTableSize, "table.size", ClassTable, ImmTable, "_i")
	b.dynamic(OpTableFill, "table.fill", ClassTable, ImmTable,
		func(_ *Function, ins *Instruction) []ValType { return []ValType{ValI32, tableElem(ins), ValI32} },
		none)
}

// atomicRMWWidths lists the seven widths of each read-modify-write group
// in opcode order.
var atomicRMWWidths = []struct {
	prefix string
	suffix string
	typ    string
	align  uint8
}{
	{"i32.atomic.rmw", "", "i", 2},
	{"i64.atomic.rmw", "", "l", 3},
	{"i32.atomic.rmw8", "_u", "i", 0},
	{"i32.atomic.rmw16", "_u", "i", 1},
	{"i64.atomic.rmw8", "_u", "l", 0},
	{"i64.atomic.rmw16", "_u", "l", 1},
	{"i64.atomic.rmw32", "_u", "l", 2},
}

func (b registryBuilder) atomics() {
	b.load(OpMemoryAtomicNotify, "memory.atomic.notify", ClassAtomic, ImmMemArg, "ii_i", 2)
	b.load(OpMemoryAtomicWait32, "memory.atomic.wait32", ClassAtomic, ImmMemArg, "iil_i", 2)
	b.load(OpMemoryAtomicWait64, "memory.atomic.wait64", ClassAtomic, ImmMemArg, "ill_i", 3)
	b.add(OpAtomicFence, "atomic.fence", ClassAtomic, ImmFence, "_")

	loads := []struct {
		name  string
		sig   string
		align uint8
	}{
		{"i32.atomic.load", "i_i", 2},
		{"i64.atomic.load", "i_l", 3},
		{"i32.atomic.load8_u", "i_i", 0},
		{"i32.atomic.load16_u", "i_i", 1},
		{"i64.atomic.load8_u", "i_l", 0},
		{"i64.atomic.load16_u", "i_l", 1},
		{"i64.atomic.load32_u", "i_l", 2},
	}
	for i, l := range loads {
		b.load(OpI32AtomicLoad+Opcode(i), l.name, ClassAtomic, ImmMemArg, l.sig, l.align)
	}
	stores := []struct {
		name  string
		sig   string
		align uint8
	}{
		{"i32.atomic.store", "ii_", 2},
		{"i64.atomic.store", "il_", 3},
		{"i32.atomic.store8", "ii_", 0},
		{"i32.atomic.store16", "ii_", 1},
		{"i64.atomic.store8", "il_", 0},
		{"i64.atomic.store16", "il_", 1},
		{"i64.atomic.store32", "il_", 2},
	}
	for i, s := range stores {
		b.store(OpI32AtomicStore+Opcode(i), s.name, ClassAtomic, ImmMemArg, s.sig, s.align)
	}

	groups := []struct {
		first Opcode
		op    string
	}{
		{OpI32AtomicRMWAdd, "add"},
		{OpI32AtomicRMWSub, "sub"},
		{OpI32AtomicRMWAnd, "and"},
		{OpI32AtomicRMWOr, "or"},
		{OpI32AtomicRMWXor, "xor"},
		{OpI32AtomicRMWXchg, "xchg"},
		{OpI32AtomicRMWCmpxchg, "cmpxchg"},
	}
	for _, g := range groups {
		for i, w := range atomicRMWWidths {
			sig := "i" + w.typ + "_" + w.typ
			if g.op == "cmpxchg" {
				sig = "i" + w.typ + w.typ + "_" + w.typ
			}
			name := w.prefix + "." + g.op + w.suffix
			info := b.add(g.first+Opcode(i), name, ClassAtomic, ImmMemArg, sig)
			info.Mem = &MemTraits{Align: w.align, Load: true, Store: true, MayTrap: true}
		}
	}
}

type simdEntry struct {
	sub  byte
	name string
	sig  string
}

// simdPlain lists SIMD opcodes without immediates.
var simdPlain = []simdEntry{
	{0x0e, "i8x16.swizzle", "vv_v"},
	{0x0f, "i8x16.splat", "i_v"},
	{0x10, "i16x8.splat", "i_v"},
	{0x11, "i32x4.splat", "i_v"},
	{0x12, "i64x2.splat", "l_v"},
	{0x13, "f32x4.splat", "f_v"},
	{0x14, "f64x2.splat", "d_v"},
	{0x23, "i8x16.eq", "vv_v"},
	{0x24, "i8x16.ne", "vv_v"},
	{0x25, "i8x16.lt_s", "vv_v"},
	{0x26, "i8x16.lt_u", "vv_v"},
	{0x27, "i8x16.gt_s", "vv_v"},
	{0x28, "i8x16.gt_u", "vv_v"},
	{0x29, "i8x16.le_s", "vv_v"},
	{0x2a, "i8x16.le_u", "vv_v"},
	{0x2b, "i8x16.ge_s", "vv_v"},
	{0x2c, "i8x16.ge_u", "vv_v"},
	{0x2d, "i16x8.eq", "vv_v"},
	{0x2e, "i16x8.ne", "vv_v"},
	{0x2f, "i16x8.lt_s", "vv_v"},
	{0x30, "i16x8.lt_u", "vv_v"},
	{0x31, "i16x8.gt_s", "vv_v"},
	{0x32, "i16x8.gt_u", "vv_v"},
	{0x33, "i16x8.le_s", "vv_v"},
	{0x34, "i16x8.le_u", "vv_v"},
	{0x35, "i16x8.ge_s", "vv_v"},
	{0x36, "i16x8.ge_u", "vv_v"},
	{0x37, "i32x4.eq", "vv_v"},
	{0x38, "i32x4.ne", "vv_v"},
	{0x39, "i32x4.lt_s", "vv_v"},
	{0x3a, "i32x4.lt_u", "vv_v"},
	{0x3b, "i32x4.gt_s", "vv_v"},
	{0x3c, "i32x4.gt_u", "vv_v"},
	{0x3d, "i32x4.le_s", "vv_v"},
	{0x3e, "i32x4.le_u", "vv_v"},
	{0x3f, "i32x4.ge_s", "vv_v"},
	{0x40, "i32x4.ge_u", "vv_v"},
	{0x41, "f32x4.eq", "vv_v"},
	{0x42, "f32x4.ne", "vv_v"},
	{0x43, "f32x4.lt", "vv_v"},
	{0x44, "f32x4.gt", "vv_v"},
	{0x45, "f32x4.le", "vv_v"},
	{0x46, "f32x4.ge", "vv_v"},
	{0x47, "f64x2.eq", "vv_v"},
	{0x48, "f64x2.ne", "vv_v"},
	{0x49, "f64x2.lt", "vv_v"},
	{0x4a, "f64x2.gt", "vv_v"},
	{0x4b, "f64x2.le", "vv_v"},
	{0x4c, "f64x2.ge", "vv_v"},
	{0x4d, "v128.not", "v_v"},
	{0x4e, "v128.and", "vv_v"},
	{0x4f, "v128.andnot", "vv_v"},
	{0x50, "v128.or", "vv_v"},
	{0x51, "v128.xor", "vv_v"},
	{0x52, "v128.bitselect", "vvv_v"},
	{0x53, "v128.any_true", "v_i"},
	{0x5e, "f32x4.demote_f64x2_zero", "v_v"},
	{0x5f, "f64x2.promote_low_f32x4", "v_v"},
	{0x60, "i8x16.abs", "v_v"},
	{0x61, "i8x16.neg", "v_v"},
	{0x62, "i8x16.popcnt", "v_v"},
	{0x63, "i8x16.all_true", "v_i"},
	{0x64, "i8x16.bitmask", "v_i"},
	{0x65, "i8x16.narrow_i16x8_s", "vv_v"},
	{0x66, "i8x16.narrow_i16x8_u", "vv_v"},
	{0x67, "f32x4.ceil", "v_v"},
	{0x68, "f32x4.floor", "v_v"},
	{0x69, "f32x4.trunc", "v_v"},
	{0x6a, "f32x4.nearest", "v_v"},
	{0x6b, "i8x16.shl", "vi_v"},
	{0x6c, "i8x16.shr_s", "vi_v"},
	{0x6d, "i8x16.shr_u", "vi_v"},
	{0x6e, "i8x16.add", "vv_v"},
	{0x6f, "i8x16.add_sat_s", "vv_v"},
	{0x70, "i8x16.add_sat_u", "vv_v"},
	{0x71, "i8x16.sub", "vv_v"},
	{0x72, "i8x16.sub_sat_s", "vv_v"},
	{0x73, "i8x16.sub_sat_u", "vv_v"},
	{0x74, "f64x2.ceil", "v_v"},
	{0x75, "f64x2.floor", "v_v"},
	{0x76, "i8x16.min_s", "vv_v"},
	{0x77, "i8x16.min_u", "vv_v"},
	{0x78, "i8x16.max_s", "vv_v"},
	{0x79, "i8x16.max_u", "vv_v"},
	{0x7a, "f64x2.trunc", "v_v"},
	{0x7b, "i8x16.avgr_u", "vv_v"},
	{0x7c, "i16x8.extadd_pairwise_i8x16_s", "v_v"},
	{0x7d, "i16x8.extadd_pairwise_i8x16_u", "v_v"},
	{0x7e, "i32x4.extadd_pairwise_i16x8_s", "v_v"},
	{0x7f, "i32x4.extadd_pairwise_i16x8_u", "v_v"},
	{0x80, "i16x8.abs", "v_v"},
	{0x81, "i16x8.neg", "v_v"},
	{0x82, "i16x8.q15mulr_sat_s", "vv_v"},
	{0x83, "i16x8.all_true", "v_i"},
	{0x84, "i16x8.bitmask", "v_i"},
	{0x85, "i16x8.narrow_i32x4_s", "vv_v"},
	{0x86, "i16x8.narrow_i32x4_u", "vv_v"},
	{0x87, "i16x8.extend_low_i8x16_s", "v_v"},
	{0x88, "i16x8.extend_high_i8x16_s", "v_v"},
	{0x89, "i16x8.extend_low_i8x16_u", "v_v"},
	{0x8a, "i16x8.extend_high_i8x16_u", "v_v"},
	{0x8b, "i16x8.shl", "vi_v"},
	{0x8c, "i16x8.shr_s", "vi_v"},
	{0x8d, "i16x8.shr_u", "vi_v"},
	{0x8e, "i16x8.add", "vv_v"},
	{0x8f, "i16x8.add_sat_s", "vv_v"},
	{0x90, "i16x8.add_sat_u", "vv_v"},
	{0x91, "i16x8.sub", "vv_v"},
	{0x92, "i16x8.sub_sat_s", "vv_v"},
	{0x93, "i16x8.sub_sat_u", "vv_v"},
	{0x94, "f64x2.nearest", "v_v"},
	{0x95, "i16x8.mul", "vv_v"},
	{0x96, "i16x8.min_s", "vv_v"},
	{0x97, "i16x8.min_u", "vv_v"},
	{0x98, "i16x8.max_s", "vv_v"},
	{0x99, "i16x8.max_u", "vv_v"},
	{0x9b, "i16x8.avgr_u", "vv_v"},
	{0x9c, "i16x8.extmul_low_i8x16_s", "vv_v"},
	{0x9d, "i16x8.extmul_high_i8x16_s", "vv_v"},
	{0x9e, "i16x8.extmul_low_i8x16_u", "vv_v"},
	{0x9f, "i16x8.extmul_high_i8x16_u", "vv_v"},
	{0xa0, "i32x4.abs", "v_v"},
	{0xa1, "i32x4.neg", "v_v"},
	{0xa3, "i32x4.all_true", "v_i"},
	{0xa4, "i32x4.bitmask", "v_i"},
	{0xa7, "i32x4.extend_low_i16x8_s", "v_v"},
	{0xa8, "i32x4.extend_high_i16x8_s", "v_v"},
	{0xa9, "i32x4.extend_low_i16x8_u", "v_v"},
	{0xaa, "i32x4.extend_high_i16x8_u", "v_v"},
	{0xab, "i32x4.shl", "vi_v"},
	{0xac, "i32x4.shr_s", "vi_v"},
	{0xad, "i32x4.shr_u", "vi_v"},
	{0xae, "i32x4.add", "vv_v"},
	{0xb1, "i32x4.sub", "vv_v"},
	{0xb5, "i32x4.mul", "vv_v"},
	{0xb6, "i32x4.min_s", "vv_v"},
	{0xb7, "i32x4.min_u", "vv_v"},
	{0xb8, "i32x4.max_s", "vv_v"},
	{0xb9, "i32x4.max_u", "vv_v"},
	{0xba, "i32x4.dot_i16x8_s", "vv_v"},
	{0xbc, "i32x4.extmul_low_i16x8_s", "vv_v"},
	{0xbd, "i32x4.extmul_high_i16x8_s", "vv_v"},
	{0xbe, "i32x4.extmul_low_i16x8_u", "vv_v"},
	{0xbf, "i32x4.extmul_high_i16x8_u", "vv_v"},
	{0xc0, "i64x2.abs", "v_v"},
	{0xc1, "i64x2.neg", "v_v"},
	{0xc3, "i64x2.all_true", "v_i"},
	{0xc4, "i64x2.bitmask", "v_i"},
	{0xc7, "i64x2.extend_low_i32x4_s", "v_v"},
	{0xc8, "i64x2.extend_high_i32x4_s", "v_v"},
	{0xc9, "i64x2.extend_low_i32x4_u", "v_v"},
	{0xca, "i64x2.extend_high_i32x4_u", "v_v"},
	{0xcb, "i64x2.shl", "vi_v"},
	{0xcc, "i64x2.shr_s", "vi_v"},
	{0xcd, "i64x2.shr_u", "vi_v"},
	{0xce, "i64x2.add", "vv_v"},
	{0xd1, "i64x2.sub", "vv_v"},
	{0xd5, "i64x2.mul", "vv_v"},
	{0xd6, "i64x2.eq", "vv_v"},
	{0xd7, "i64x2.ne", "vv_v"},
	{0xd8, "i64x2.lt_s", "vv_v"},
	{0xd9, "i64x2.gt_s", "vv_v"},
	{0xda, "i64x2.le_s", "vv_v"},
	{0xdb, "i64x2.ge_s", "vv_v"},
	{0xdc, "i64x2.extmul_low_i32x4_s", "vv_v"},
	{0xdd, "i64x2.extmul_high_i32x4_s", "vv_v"},
	{0xde, "i64x2.extmul_low_i32x4_u", "vv_v"},
	{0xdf, "i64x2.extmul_high_i32x4_u", "vv_v"},
	{0xe0, "f32x4.abs", "v_v"},
	{0xe1, "f32x4.neg", "v_v"},
	{0xe3, "f32x4.sqrt", "v_v"},
	{0xe4, "f32x4.add", "vv_v"},
	{0xe5, "f32x4.sub", "vv_v"},
	{0xe6, "f32x4.mul", "vv_v"},
	{0xe7, "f32x4.div", "vv_v"},
	{0xe8, "f32x4.min", "vv_v"},
	{0xe9, "f32x4.max", "vv_v"},
	{0xea, "f32x4.pmin", "vv_v"},
	{0xeb, "f32x4.pmax", "vv_v"},
	{0xec, "f64x2.abs", "v_v"},
	{0xed, "f64x2.neg", "v_v"},
	{0xef, "f64x2.sqrt", "v_v"},
	{0xf0, "f64x2.add", "vv_v"},
	{0xf1, "f64x2.sub", "vv_v"},
	{0xf2, "f64x2.mul", "vv_v"},
	{0xf3, "f64x2.div", "vv_v"},
	{0xf4, "f64x2.min", "vv_v"},
	{0xf5, "f64x2.max", "vv_v"},
	{0xf6, "f64x2.pmin", "vv_v"},
	{0xf7, "f64x2.pmax", "vv_v"},
	{0xf8, "i32x4.trunc_sat_f32x4_s", "v_v"},
	{0xf9, "i32x4.trunc_sat_f32x4_u", "v_v"},
	{0xfa, "f32x4.convert_i32x4_s", "v_v"},
	{0xfb, "f32x4.convert_i32x4_u", "v_v"},
	{0xfc, "i32x4.trunc_sat_f64x2_s_zero", "v_v"},
	{0xfd, "i32x4.trunc_sat_f64x2_u_zero", "v_v"},
	{0xfe, "f64x2.convert_low_i32x4_s", "v_v"},
	{0xff, "f64x2.convert_low_i32x4_u", "v_v"},
}

// simdLanes lists extract/replace lane opcodes.
var simdLanes = []simdEntry{
	{0x15, "i8x16.extract_lane_s", "v_i"},
	{0x16, "i8x16.extract_lane_u", "v_i"},
	{0x17, "i8x16.replace_lane", "vi_v"},
	{0x18, "i16x8.extract_lane_s", "v_i"},
	{0x19, "i16x8.extract_lane_u", "v_i"},
	{0x1a, "i16x8.replace_lane", "vi_v"},
	{0x1b, "i32x4.extract_lane", "v_i"},
	{0x1c, "i32x4.replace_lane", "vi_v"},
	{0x1d, "i64x2.extract_lane", "v_l"},
	{0x1e, "i64x2.replace_lane", "vl_v"},
	{0x1f, "f32x4.extract_lane", "v_f"},
	{0x20, "f32x4.replace_lane", "vf_v"},
	{0x21, "f64x2.extract_lane", "v_d"},
	{0x22, "f64x2.replace_lane", "vd_v"},
}

func simdOp(sub byte) Opcode {
	return Opcode(PrefixSIMD)<<8 | Opcode(sub)
}

func (b registryBuilder) simd() {
	loads := []struct {
		sub   byte
		name  string
		align uint8
	}{
		{0x00, "v128.load", 4},
		{0x01, "v128.load8x8_s", 3},
		{0x02, "v128.load8x8_u", 3},
		{0x03, "v128.load16x4_s", 3},
		{0x04, "v128.load16x4_u", 3},
		{0x05, "v128.load32x2_s", 3},
		{0x06, "v128.load32x2_u", 3},
		{0x07, "v128.load8_splat", 0},
		{0x08, "v128.load16_splat", 1},
		{0x09, "v128.load32_splat", 2},
		{0x0a, "v128.load64_splat", 3},
		{0x5c, "v128.load32_zero", 2},
		{0x5d, "v128.load64_zero", 3},
	}
	for _, l := range loads {
		b.load(simdOp(l.sub), l.name, ClassVector, ImmMemArg, "i_v", l.align)
	}
	b.store(OpV128Store, "v128.store", ClassVector, ImmMemArg, "iv_", 4)
	b.add(OpV128Const, "v128.const", ClassVector, ImmV128, "_v")
	b.add(OpI8x16Shuffle, "i8x16.shuffle", ClassVector, ImmShuffle, "vv_v")

	for i, w := range []string{"8", "16", "32", "64"} {
		b.load(OpV128Load8Lane+Opcode(i), "v128.load"+w+"_lane", ClassVector, ImmMemArgLane, "iv_v", uint8(i))
		b.store(OpV128Load8Lane+4+Opcode(i), "v128.store"+w+"_lane", ClassVector, ImmMemArgLane, "iv_", uint8(i))
	}
	for _, e := range simdLanes {
		b.add(simdOp(e.sub), e.name, ClassVector, ImmLane, e.sig)
	}
	for _, e := range simdPlain {
		b.add(simdOp(e.sub), e.name, ClassVector, ImmNone, e.sig)
	}
}
