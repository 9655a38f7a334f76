package wasm

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction. Prefixed instructions (0xFC, 0xFD,
// 0xFE) combine the prefix and sub-opcode as (prefix<<8)|sub.
type Opcode uint16

// Prefixed reports whether the opcode uses a prefix byte.
func (op Opcode) Prefixed() bool {
	return op > 0xFF
}

// Prefix returns the prefix byte, or 0 for single-byte opcodes.
func (op Opcode) Prefix() byte {
	if !op.Prefixed() {
		return 0
	}
	return byte(op >> 8)
}

// Sub returns the sub-opcode for prefixed opcodes, or the opcode byte.
func (op Opcode) Sub() byte {
	return byte(op)
}

func (op Opcode) String() string {
	if info, ok := Lookup(op); ok {
		return info.Name
	}
	if op.Prefixed() {
		return fmt.Sprintf("0x%02x 0x%02x", op.Prefix(), op.Sub())
	}
	return fmt.Sprintf("0x%02x", byte(op))
}

// MemArg is the alignment (log2) and offset immediate of memory instructions.
type MemArg struct {
	Align  uint32
	Offset uint64
}

// Instruction is one decoded instruction. Only the fields selected by the
// opcode's immediate kind are meaningful; entity fields hold references
// into the owning module.
type Instruction struct {
	Opcode Opcode

	Func    *Function
	Global  *Global
	Local   *Local
	Table   *Table
	Table2  *Table  // source table of table.copy
	Memory  *Memory // nil encodes memory 0
	Memory2 *Memory // source memory of memory.copy
	Type    *FuncType
	Tag     *Tag
	Data    *DataSegment
	Elem    *ElementSegment

	// Block is the immediate block type when Type is nil.
	Block ValType

	Label  uint32
	Labels []uint32 // br_table targets; Label holds the default

	MemArg MemArg
	Lane   byte

	I32  int32
	I64  int64
	F32  float32
	F64  float64
	V128 [16]byte // v128.const value or i8x16.shuffle lanes

	RefType ValType
	Types   []ValType // typed select

	// Reloc pads the relocatable immediate to a fixed width in
	// relocation mode; ROff receives its absolute offset, -1 until written.
	Reloc bool
	ROff  int
}

// NewInstruction returns an instruction with no immediates.
func NewInstruction(op Opcode) *Instruction {
	return &Instruction{Opcode: op, ROff: -1}
}

// Call returns a call to f.
func Call(f *Function) *Instruction {
	ins := NewInstruction(OpCall)
	ins.Func = f
	return ins
}

// LocalGet returns local.get l.
func LocalGet(l *Local) *Instruction {
	ins := NewInstruction(OpLocalGet)
	ins.Local = l
	return ins
}

// LocalSet returns local.set l.
func LocalSet(l *Local) *Instruction {
	ins := NewInstruction(OpLocalSet)
	ins.Local = l
	return ins
}

// LocalTee returns local.tee l.
func LocalTee(l *Local) *Instruction {
	ins := NewInstruction(OpLocalTee)
	ins.Local = l
	return ins
}

// GlobalGet returns global.get g.
func GlobalGet(g *Global) *Instruction {
	ins := NewInstruction(OpGlobalGet)
	ins.Global = g
	return ins
}

// GlobalSet returns global.set g.
func GlobalSet(g *Global) *Instruction {
	ins := NewInstruction(OpGlobalSet)
	ins.Global = g
	return ins
}

// I32Const returns i32.const v.
func I32Const(v int32) *Instruction {
	ins := NewInstruction(OpI32Const)
	ins.I32 = v
	return ins
}

// I64Const returns i64.const v.
func I64Const(v int64) *Instruction {
	ins := NewInstruction(OpI64Const)
	ins.I64 = v
	return ins
}

// F32Const returns f32.const v.
func F32Const(v float32) *Instruction {
	ins := NewInstruction(OpF32Const)
	ins.F32 = v
	return ins
}

// F64Const returns f64.const v.
func F64Const(v float64) *Instruction {
	ins := NewInstruction(OpF64Const)
	ins.F64 = v
	return ins
}

// RefNull returns ref.null t.
func RefNull(t ValType) *Instruction {
	ins := NewInstruction(OpRefNull)
	ins.RefType = t
	return ins
}

// Block returns a block-like instruction (block, loop, if, try) with an
// immediate value type, or BlockVoid.
func Block(op Opcode, t ValType) *Instruction {
	ins := NewInstruction(op)
	ins.Block = t
	return ins
}

// MemoryOp returns a memory instruction with the opcode's natural alignment.
func MemoryOp(op Opcode, offset uint64) *Instruction {
	ins := NewInstruction(op)
	if info, ok := Lookup(op); ok && info.Mem != nil {
		ins.MemArg.Align = uint32(info.Mem.Align)
	}
	ins.MemArg.Offset = offset
	return ins
}

// End returns an end instruction.
func End() *Instruction {
	return NewInstruction(OpEnd)
}

func (ins *Instruction) String() string {
	var b strings.Builder
	b.WriteString(ins.Opcode.String())
	info, ok := Lookup(ins.Opcode)
	if !ok {
		return b.String()
	}
	switch info.Imm {
	case ImmFunc:
		if ins.Func != nil {
			fmt.Fprintf(&b, " %s", ins.Func)
		}
	case ImmLocal:
		fmt.Fprintf(&b, " %p", ins.Local)
	case ImmGlobal:
		if ins.Global != nil && ins.Global.Import != nil {
			fmt.Fprintf(&b, " %s", ins.Global.Import)
		}
	case ImmLabel:
		fmt.Fprintf(&b, " %d", ins.Label)
	case ImmBrTable:
		fmt.Fprintf(&b, " %v %d", ins.Labels, ins.Label)
	case ImmMemArg, ImmMemArgLane:
		fmt.Fprintf(&b, " offset=%d align=%d", ins.MemArg.Offset, 1<<ins.MemArg.Align)
	case ImmI32:
		fmt.Fprintf(&b, " %d", ins.I32)
	case ImmI64:
		fmt.Fprintf(&b, " %d", ins.I64)
	case ImmF32:
		fmt.Fprintf(&b, " %v", ins.F32)
	case ImmF64:
		fmt.Fprintf(&b, " %v", ins.F64)
	case ImmBlock:
		if ins.Type != nil {
			fmt.Fprintf(&b, " %s", ins.Type)
		} else if ins.Block != BlockVoid {
			fmt.Fprintf(&b, " %s", ins.Block)
		}
	case ImmRefType:
		fmt.Fprintf(&b, " %s", ins.RefType)
	}
	if ins.Reloc {
		b.WriteString(" (reloc)")
	}
	return b.String()
}

// BlockParams returns the parameter types of a block-like instruction.
func (ins *Instruction) BlockParams() []ValType {
	if ins.Type != nil {
		return ins.Type.Params
	}
	return nil
}

// BlockResults returns the result types of a block-like instruction.
func (ins *Instruction) BlockResults() []ValType {
	if ins.Type != nil {
		return ins.Type.Results
	}
	if ins.Block == BlockVoid || ins.Block == ValAny {
		return nil
	}
	return []ValType{ins.Block}
}
