package rewrite

import (
	"strconv"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

// Producer locates the instruction that pushed a stack value. Slot counts
// the producer's results from the last one, so Slot 0 is its top result.
// When the value comes from a nested block, Index is the block opener.
type Producer struct {
	Index int
	Slot  int
}

// unit is one step of the reverse walk: a single instruction or a
// complete nested block treated as one instruction.
type unit struct {
	start int
	pull  int
	push  int
}

func isOpener(op wasm.Opcode) bool {
	switch op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry:
		return true
	}
	return false
}

func boundary(fn *wasm.Function, i int, detail string) error {
	return errors.New(errors.PhaseRewrite, errors.KindInvalidInput).
		Path(fn.String(), strconv.Itoa(i)).
		Detail(detail).
		Build()
}

// unitAt returns the unit ending at code[i].
func unitAt(fn *wasm.Function, code []*wasm.Instruction, i int) (unit, error) {
	ins := code[i]
	switch {
	case ins.Opcode == wasm.OpEnd || ins.Opcode == wasm.OpDelegate:
		level := 1
		for k := i - 1; k >= 0; k-- {
			op := code[k].Opcode
			switch {
			case op == wasm.OpEnd || op == wasm.OpDelegate:
				level++
			case isOpener(op):
				level--
			}
			if level == 0 {
				opener := code[k]
				info, _ := wasm.Lookup(opener.Opcode)
				return unit{
					start: k,
					pull:  len(info.Pull.Resolve(fn, opener)),
					push:  len(info.Push.Resolve(fn, opener)),
				}, nil
			}
		}
		return unit{}, boundary(fn, i, "end without matching block")
	case isOpener(ins.Opcode):
		return unit{}, boundary(fn, i, "walk reached the start of the enclosing "+ins.Opcode.String())
	case ins.Opcode == wasm.OpElse || ins.Opcode == wasm.OpCatch || ins.Opcode == wasm.OpCatchAll:
		return unit{}, boundary(fn, i, "walk crossed "+ins.Opcode.String())
	}

	info, ok := wasm.Lookup(ins.Opcode)
	if !ok {
		return unit{}, errors.Unsupported(errors.PhaseRewrite, "opcode "+ins.Opcode.String())
	}
	if info.Terminal {
		return unit{}, boundary(fn, i, "walk reached stack-polymorphic "+info.Name)
	}
	return unit{
		start: i,
		pull:  len(info.Pull.Resolve(fn, ins)),
		push:  len(info.Push.Resolve(fn, ins)),
	}, nil
}

// FindProducer walks code backward from index from and returns the
// instruction that pushed the value depth slots below the top of the
// stack as it is just before code[from]. Depth 0 is the top of the stack.
//
// Complete nested blocks are stepped over as one unit. Reaching the opener
// of an enclosing block, an else or catch clause, or an instruction after
// which the stack is polymorphic is an error: the value is not computed in
// straight-line code.
func FindProducer(fn *wasm.Function, code []*wasm.Instruction, from, depth int) (Producer, error) {
	if from > len(code) || depth < 0 {
		return Producer{}, errors.InvalidInput(errors.PhaseRewrite, "producer search out of range")
	}
	for i := from - 1; i >= 0; {
		u, err := unitAt(fn, code, i)
		if err != nil {
			return Producer{}, err
		}
		if depth < u.push {
			return Producer{Index: u.start, Slot: depth}, nil
		}
		depth += u.pull - u.push
		i = u.start - 1
	}
	return Producer{}, boundary(fn, 0, "no producer before function start")
}

// FindArgStart returns the index of the first instruction of the
// expression that computes p, so code can be inserted ahead of the
// whole expression.
func FindArgStart(fn *wasm.Function, code []*wasm.Instruction, p Producer) (int, error) {
	u, err := unitAt(fn, code, lastOf(code, p.Index))
	if err != nil {
		return 0, err
	}
	need := u.pull
	start := u.start
	for need > 0 {
		if start == 0 {
			return 0, boundary(fn, 0, "expression starts before function start")
		}
		v, err := unitAt(fn, code, start-1)
		if err != nil {
			return 0, err
		}
		if v.push > need {
			return 0, boundary(fn, v.start, "expression shares a multi-value result")
		}
		need += v.pull - v.push
		start = v.start
	}
	return start, nil
}

// lastOf returns the index of the instruction that closes the unit
// beginning at i: the matching end of a block opener, or i itself.
func lastOf(code []*wasm.Instruction, i int) int {
	if !isOpener(code[i].Opcode) {
		return i
	}
	level := 0
	for k := i; k < len(code); k++ {
		op := code[k].Opcode
		switch {
		case isOpener(op):
			level++
		case op == wasm.OpEnd || op == wasm.OpDelegate:
			level--
		}
		if level == 0 {
			return k
		}
	}
	return i
}
