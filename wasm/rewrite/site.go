package rewrite

import (
	"slices"
	"strconv"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

// Site is a call to a builtin being lowered. Index tracks the position of
// the call as the helpers below edit the function's code; once the call
// itself is replaced it points at the last instruction that replaced it.
type Site struct {
	Module  *wasm.Module
	Func    *wasm.Function
	Callee  *wasm.Function
	Inst    *wasm.Instruction
	Index   int
	Builtin *Builtin
}

// Code returns the instructions of the enclosing function.
func (s *Site) Code() []*wasm.Instruction {
	return s.Func.Code
}

// Splice replaces n instructions at at with ins.
func (s *Site) Splice(at, n int, ins ...*wasm.Instruction) {
	s.Func.Code = slices.Replace(s.Func.Code, at, at+n, ins...)
	s.Func.Dirty = true
	switch {
	case at+n <= s.Index:
		s.Index += len(ins) - n
	case at <= s.Index:
		s.Index = at + len(ins) - 1
	}
}

// Replace replaces the call with ins.
func (s *Site) Replace(ins ...*wasm.Instruction) {
	s.Splice(s.Index, 1, ins...)
}

// InsertAt inserts ins before code[at].
func (s *Site) InsertAt(at int, ins ...*wasm.Instruction) {
	s.Splice(at, 0, ins...)
}

// RemoveAt removes code[at].
func (s *Site) RemoveAt(at int) {
	s.Splice(at, 1)
}

// Next returns the instruction after the call, or nil.
func (s *Site) Next() *wasm.Instruction {
	if s.Index+1 < len(s.Func.Code) {
		return s.Func.Code[s.Index+1]
	}
	return nil
}

// FindProducer locates the producer of the value depth slots below the top
// of the stack at the call.
func (s *Site) FindProducer(depth int) (Producer, error) {
	return FindProducer(s.Func, s.Func.Code, s.Index, depth)
}

// Arg locates the producer of the call's k-th argument.
func (s *Site) Arg(k int) (Producer, error) {
	return s.FindProducer(len(s.Callee.Type.Params) - 1 - k)
}

// ArgStart returns the index of the first instruction computing the call's
// k-th argument.
func (s *Site) ArgStart(k int) (int, error) {
	p, err := s.Arg(k)
	if err != nil {
		return 0, err
	}
	return FindArgStart(s.Func, s.Func.Code, p)
}

// ScratchLocal returns the function's scratch local for key.
func (s *Site) ScratchLocal(key string, t wasm.ValType) *wasm.Local {
	return s.Func.ScratchLocal(key, t)
}

// ProducerEnd returns the index of the last instruction of p's unit: p
// itself, or the end of the block p opens.
func (s *Site) ProducerEnd(p Producer) int {
	return lastOf(s.Func.Code, p.Index)
}

// InsertAfter inserts ins right after p so they see its value on top of
// the stack. It returns the insertion index. p must be the top result of
// its instruction.
func (s *Site) InsertAfter(p Producer, ins ...*wasm.Instruction) (int, error) {
	if p.Slot != 0 {
		return 0, errors.New(errors.PhaseRewrite, errors.KindInvalidInput).
			Path(s.Func.String(), strconv.Itoa(p.Index)).
			Detail("value is not the top result of its producer").
			Build()
	}
	at := s.ProducerEnd(p) + 1
	s.InsertAt(at, ins...)
	return at, nil
}
