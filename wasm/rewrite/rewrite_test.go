package rewrite_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

var unary = &wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}}

type fixture struct {
	m      *wasm.Module
	square *wasm.Function
	caller *wasm.Function
}

// newFixture builds a module importing env.square and defining a caller
// that invokes it calls times on its parameter.
func newFixture(calls int) *fixture {
	m := &wasm.Module{}
	square := m.AddImportedFunction("env", "square", unary)
	caller := m.AddFunction(unary, nil)
	caller.Name = "caller"
	caller.Code = []*wasm.Instruction{wasm.LocalGet(caller.Locals[0])}
	for i := 0; i < calls; i++ {
		caller.Code = append(caller.Code, wasm.Call(square))
	}
	caller.Code = append(caller.Code, wasm.End())
	caller.Dirty = false
	square.Usage = calls
	m.Exports = append(m.Exports, &wasm.Export{Name: "caller", Kind: wasm.KindFunc, Func: caller})
	return &fixture{m: m, square: square, caller: caller}
}

func opcodes(code []*wasm.Instruction) []wasm.Opcode {
	ops := make([]wasm.Opcode, len(code))
	for i, ins := range code {
		ops[i] = ins.Opcode
	}
	return ops
}

// squareInline lowers square(x) to x*x through a scratch local.
func squareInline(site *rewrite.Site) (rewrite.Result, error) {
	tmp := site.ScratchLocal("square", i32)
	site.Replace(
		wasm.LocalTee(tmp),
		wasm.LocalGet(tmp),
		wasm.NewInstruction(wasm.OpI32Mul),
	)
	return rewrite.Replaced(), nil
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestRewriteReplacesAndCollects(t *testing.T) {
	f := newFixture(2)
	r := rewrite.New([]rewrite.Builtin{{Name: "square", Type: unary, Handler: squareInline}}, rewrite.DefaultOptions())

	report, err := r.RewriteCalls(f.m, nil)
	require.NoError(t, err)

	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet,
		wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Mul,
		wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Mul,
		wasm.OpEnd,
	}, opcodes(f.caller.Code))
	assert.Len(t, f.caller.Locals, 2, "scratch local is shared by both sites")
	assert.True(t, f.caller.Dirty)
	assert.Equal(t, 0, f.square.Usage)

	assert.Equal(t, 2, report.Total())
	assert.Equal(t, []rewrite.FunctionReport{{Index: 1, Name: "caller", Rewrites: 2}}, report.Functions)
	assert.Equal(t, []rewrite.BuiltinReport{{Name: "square", Sites: 2}}, report.Builtins)
	assert.Equal(t, []string{"env.square"}, report.Removed)
	assert.Equal(t, -1, f.m.FunctionIndex(f.square))

	out, err := f.m.Encode(wasm.EncodeOptions{})
	require.NoError(t, err)
	m, err := wasm.ParseModule(out, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Functions, 1)
}

func TestRewriteCandidateOrder(t *testing.T) {
	f := newFixture(1)
	var calls []string
	builtins := []rewrite.Builtin{
		{Name: "square", Handler: func(*rewrite.Site) (rewrite.Result, error) {
			calls = append(calls, "first")
			return rewrite.Declined(), nil
		}},
		{Name: "square", Handler: func(site *rewrite.Site) (rewrite.Result, error) {
			calls = append(calls, "second")
			return squareInline(site)
		}},
		{Name: "square", Handler: func(*rewrite.Site) (rewrite.Result, error) {
			calls = append(calls, "third")
			return rewrite.Replaced(), nil
		}},
	}

	_, err := rewrite.New(builtins, rewrite.DefaultOptions()).RewriteCalls(f.m, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, wasm.OpI32Mul, f.caller.Code[3].Opcode)
}

func TestRewriteAllDeclined(t *testing.T) {
	f := newFixture(1)
	before := append([]*wasm.Instruction(nil), f.caller.Code...)
	decline := func(*rewrite.Site) (rewrite.Result, error) { return rewrite.Declined(), nil }

	report, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: decline}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	require.NoError(t, err)

	assert.Equal(t, before, f.caller.Code)
	assert.False(t, f.caller.Dirty)
	assert.Equal(t, 1, f.square.Usage)
	assert.Zero(t, report.Total())
	assert.Empty(t, report.Removed)
	assert.Equal(t, 0, f.m.FunctionIndex(f.square))
}

func TestRewriteKeepRetargets(t *testing.T) {
	f := newFixture(1)
	fast := f.m.AddImportedFunction("env", "square_fast", unary)

	retarget := func(site *rewrite.Site) (rewrite.Result, error) {
		site.Inst.Func = fast
		return rewrite.Keep(), nil
	}
	report, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: retarget}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	require.NoError(t, err)

	assert.Same(t, fast, f.caller.Code[1].Func)
	assert.Equal(t, 1, fast.Usage)
	assert.Equal(t, 0, f.square.Usage)
	assert.Equal(t, []string{"env.square"}, report.Removed)
	assert.Equal(t, 1, report.Total())
}

func TestRewriteKeepUnchanged(t *testing.T) {
	f := newFixture(2)
	var seen []int
	keep := func(site *rewrite.Site) (rewrite.Result, error) {
		seen = append(seen, site.Index)
		return rewrite.Keep(), nil
	}

	report, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: keep}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Zero(t, report.Total())
	assert.Equal(t, 2, f.square.Usage)
	assert.False(t, f.caller.Dirty)
}

func TestRewriteResumeAt(t *testing.T) {
	f := newFixture(1)
	twice := f.m.AddImportedFunction("env", "pow4", unary)
	f.caller.Code[1].Func = twice
	twice.Usage = 1
	f.square.Usage = 0

	expand := func(site *rewrite.Site) (rewrite.Result, error) {
		first := wasm.Call(f.square)
		f.square.Usage += 2
		site.Replace(first, wasm.Call(f.square))
		return rewrite.ResumeAt(first), nil
	}

	r := rewrite.New([]rewrite.Builtin{
		{Name: "pow4", Handler: expand},
		{Name: "square", Handler: squareInline},
	}, rewrite.DefaultOptions())
	report, err := r.RewriteCalls(f.m, nil)
	require.NoError(t, err)

	assert.Equal(t, []wasm.Opcode{
		wasm.OpLocalGet,
		wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Mul,
		wasm.OpLocalTee, wasm.OpLocalGet, wasm.OpI32Mul,
		wasm.OpEnd,
	}, opcodes(f.caller.Code))
	assert.Equal(t, 3, report.Total())
	assert.ElementsMatch(t, []string{"env.square", "env.pow4"}, report.Removed)
}

func TestRewriteResumeOutsideFunction(t *testing.T) {
	f := newFixture(1)
	stray := func(site *rewrite.Site) (rewrite.Result, error) {
		site.Replace(wasm.NewInstruction(wasm.OpNop))
		return rewrite.ResumeAt(wasm.NewInstruction(wasm.OpNop)), nil
	}

	_, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: stray}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	assert.ErrorIs(t, err, errBoundary)
}

func TestRewriteSkipFunction(t *testing.T) {
	f := newFixture(2)
	n := 0
	skip := func(*rewrite.Site) (rewrite.Result, error) {
		n++
		return rewrite.SkipFunction(), nil
	}

	report, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: skip}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, report.Functions)
	assert.Equal(t, 2, f.square.Usage)
	assert.Equal(t, wasm.OpCall, f.caller.Code[1].Opcode)
}

func TestRewriteHandlerError(t *testing.T) {
	f := newFixture(1)
	fail := func(*rewrite.Site) (rewrite.Result, error) {
		return rewrite.Declined(), stderrors.New("no scratch space")
	}

	_, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: fail}}, rewrite.DefaultOptions()).
		RewriteCalls(f.m, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "rewrite caller: square at 1: no scratch space")
}

func TestRewriteSelectedFunctions(t *testing.T) {
	f := newFixture(1)
	other := f.m.AddFunction(unary, []*wasm.Instruction{
		wasm.LocalGet(nil),
		wasm.Call(f.square),
		wasm.End(),
	})
	other.Code[0].Local = other.Locals[0]
	f.square.Usage++

	opts := rewrite.DefaultOptions()
	report, err := rewrite.New([]rewrite.Builtin{{Name: "square", Handler: squareInline}}, opts).
		RewriteCalls(f.m, []*wasm.Function{other})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Total())
	assert.Equal(t, wasm.OpCall, f.caller.Code[1].Opcode)
	assert.Equal(t, 1, f.square.Usage)
	assert.Empty(t, report.Removed)
}

func TestResolve(t *testing.T) {
	m := &wasm.Module{}
	envSquare := m.AddImportedFunction("env", "square", unary)
	mathSquare := m.AddImportedFunction("math", "square", unary)
	wrongType := m.AddImportedFunction("env", "sqrt", &wasm.FuncType{Params: []wasm.ValType{wasm.ValF32}})
	local := m.AddFunction(unary, []*wasm.Instruction{wasm.End()})
	local.Name = "helper"
	exported := m.AddFunction(unary, []*wasm.Instruction{wasm.End()})
	m.Exports = append(m.Exports, &wasm.Export{Name: "cube", Kind: wasm.KindFunc, Func: exported})

	logger, logs := observed()
	opts := rewrite.DefaultOptions()
	opts.Logger = logger
	r := rewrite.New([]rewrite.Builtin{
		{Name: "square", Module: "env", Handler: squareInline},
		{Name: "sqrt", Type: unary, Handler: squareInline},
		{Name: "helper", Handler: squareInline},
		{Name: "cube", Handler: squareInline},
	}, opts)

	targets := r.Resolve(m)
	assert.Len(t, targets[envSquare], 1)
	assert.NotContains(t, targets, mathSquare)
	assert.NotContains(t, targets, wrongType)
	assert.Len(t, targets[local], 1)
	assert.Len(t, targets[exported], 1)

	warnings := logs.FilterMessage("builtin signature mismatch").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "sqrt", warnings[0].ContextMap()["builtin"])
}

func TestPackageLogger(t *testing.T) {
	logger, logs := observed()
	rewrite.SetLogger(logger)
	t.Cleanup(func() { rewrite.SetLogger(nil) })
	assert.Same(t, logger, rewrite.Logger())

	m := &wasm.Module{}
	m.AddImportedFunction("env", "square", &wasm.FuncType{Params: []wasm.ValType{wasm.ValF32}})
	rewrite.New([]rewrite.Builtin{{Name: "square", Type: unary, Handler: squareInline}}, rewrite.Options{}).Resolve(m)
	assert.Equal(t, 1, logs.FilterMessage("builtin signature mismatch").Len())

	rewrite.SetLogger(nil)
	require.NotNil(t, rewrite.Logger())
	assert.NotSame(t, logger, rewrite.Logger())
}

func TestGC(t *testing.T) {
	m := &wasm.Module{}
	leaf := m.AddImportedFunction("env", "leaf", &wasm.FuncType{})
	unused := m.AddFunction(&wasm.FuncType{}, []*wasm.Instruction{wasm.Call(leaf), wasm.End()})
	exported := m.AddFunction(&wasm.FuncType{}, []*wasm.Instruction{wasm.End()})
	broken := m.AddFunction(&wasm.FuncType{}, []*wasm.Instruction{wasm.End()})
	called := m.AddFunction(&wasm.FuncType{}, []*wasm.Instruction{wasm.End()})
	m.Exports = append(m.Exports, &wasm.Export{Name: "keep", Kind: wasm.KindFunc, Func: exported})
	leaf.Usage = 1
	broken.Usage = -1
	called.Usage = 2

	logger, logs := observed()
	opts := rewrite.DefaultOptions()
	opts.Logger = logger
	removed := rewrite.New(nil, opts).GC(m, []*wasm.Function{unused, exported, broken, called})

	assert.Equal(t, []*wasm.Function{unused}, removed)
	assert.Equal(t, 0, leaf.Usage)
	assert.Equal(t, []*wasm.Function{leaf, exported, broken, called}, m.Functions)
	assert.Equal(t, 1, logs.FilterMessage("negative usage count, function kept").Len())
	assert.Equal(t, 1, logs.FilterMessage("unused builtin is still referenced, function kept").Len())
}
