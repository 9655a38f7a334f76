package rewrite

import (
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/raweden/wasm-ylinker-sub002/errors"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

// Handler lowers one call site. It returns Declined to let the next
// candidate builtin try; an error aborts the pass.
type Handler func(site *Site) (Result, error)

// Builtin binds a handler to the functions it lowers. Imported functions
// match on (Module, Name) when Module is set and on Name otherwise; defined
// functions match on their name or an export name. A non-nil Type rejects
// functions with a different signature.
type Builtin struct {
	Name    string
	Module  string
	Type    *wasm.FuncType
	Handler Handler
}

type action uint8

const (
	actionDeclined action = iota
	actionReplaced
	actionKeep
	actionResume
	actionSkip
)

// Result tells the engine what a handler did with a call site.
type Result struct {
	action action
	at     *wasm.Instruction
}

// Replaced reports that the call was replaced in place. Scanning continues
// after the replacement.
func Replaced() Result { return Result{action: actionReplaced} }

// Declined passes the site to the next candidate. When every candidate
// declines the site is left unchanged.
func Declined() Result { return Result{action: actionDeclined} }

// Keep leaves the call in place. If the handler retargeted Inst.Func the
// usage counts of both callees are adjusted.
func Keep() Result { return Result{action: actionKeep} }

// ResumeAt reports that the call was replaced and scanning resumes at ins,
// which must be part of the function's code.
func ResumeAt(ins *wasm.Instruction) Result { return Result{action: actionResume, at: ins} }

// SkipFunction stops scanning the current function. The site is unchanged.
func SkipFunction() Result { return Result{action: actionSkip} }

// Options configures a Rewriter.
type Options struct {
	// GC removes lowered callees whose usage dropped to zero.
	GC bool

	// Logger overrides the package logger.
	Logger *zap.Logger
}

// DefaultOptions returns the default rewriter configuration.
func DefaultOptions() Options {
	return Options{GC: true}
}

// Rewriter replaces calls to builtin functions using registered handlers.
type Rewriter struct {
	builtins []*Builtin
	byName   map[string][]int
	opts     Options
	log      *zap.Logger
}

// New creates a Rewriter. Builtins sharing a name are tried in the order
// given.
func New(builtins []Builtin, opts Options) *Rewriter {
	r := &Rewriter{
		byName: make(map[string][]int),
		opts:   opts,
		log:    opts.Logger,
	}
	if r.log == nil {
		r.log = Logger()
	}
	for i := range builtins {
		b := builtins[i]
		r.builtins = append(r.builtins, &b)
		r.byName[b.Name] = append(r.byName[b.Name], i)
	}
	return r
}

// FunctionReport counts the lowered call sites of one function.
type FunctionReport struct {
	Index    int    `csv:"index"`
	Name     string `csv:"function"`
	Rewrites int    `csv:"rewrites"`
}

// BuiltinReport counts the call sites one builtin lowered.
type BuiltinReport struct {
	Name  string `csv:"builtin"`
	Sites int    `csv:"sites"`
}

// Report summarizes a RewriteCalls pass.
type Report struct {
	Functions []FunctionReport
	Builtins  []BuiltinReport
	Removed   []string
}

// Total returns the number of lowered call sites.
func (r *Report) Total() int {
	n := 0
	for _, f := range r.Functions {
		n += f.Rewrites
	}
	return n
}

// Resolve maps every function of m that a builtin applies to onto its
// candidate builtins, in registration order.
func (r *Rewriter) Resolve(m *wasm.Module) map[*wasm.Function][]*Builtin {
	targets := make(map[*wasm.Function][]*Builtin)
	for _, fn := range m.Functions {
		var names []string
		if fn.Import != nil {
			names = []string{fn.Import.Name}
		} else {
			if fn.Name != "" {
				names = append(names, fn.Name)
			}
			names = append(names, m.ExportNames(fn)...)
		}

		var idx []int
		for _, name := range names {
			for _, i := range r.byName[name] {
				if !slices.Contains(idx, i) {
					idx = append(idx, i)
				}
			}
		}
		sort.Ints(idx)

		for _, i := range idx {
			b := r.builtins[i]
			if b.Module != "" && (fn.Import == nil || fn.Import.Module != b.Module) {
				continue
			}
			if b.Type != nil && !b.Type.Equal(fn.Type) {
				r.log.Warn("builtin signature mismatch",
					zap.String("builtin", b.Name),
					zap.String("func", fn.String()),
					zap.Stringer("want", b.Type),
					zap.Stringer("got", fn.Type))
				continue
			}
			targets[fn] = append(targets[fn], b)
		}
	}
	return targets
}

// RewriteCalls lowers every call to a builtin in funcs, or in all defined
// functions when funcs is nil. With Options.GC set, callees whose usage
// drops to zero are removed afterwards.
func (r *Rewriter) RewriteCalls(m *wasm.Module, funcs []*wasm.Function) (*Report, error) {
	targets := r.Resolve(m)
	if funcs == nil {
		funcs = slices.Clone(m.DefinedFunctions())
	}

	report := &Report{}
	sites := make(map[string]int)
	for _, fn := range funcs {
		if fn.IsImport() || len(targets) == 0 {
			continue
		}
		n, err := r.rewriteFunction(m, fn, targets, sites)
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", fn, err)
		}
		if n > 0 {
			report.Functions = append(report.Functions, FunctionReport{
				Index:    m.FunctionIndex(fn),
				Name:     fn.String(),
				Rewrites: n,
			})
		}
	}

	for _, b := range r.builtins {
		if n, ok := sites[b.Name]; ok {
			report.Builtins = append(report.Builtins, BuiltinReport{Name: b.Name, Sites: n})
			delete(sites, b.Name)
		}
	}

	if r.opts.GC {
		candidates := make([]*wasm.Function, 0, len(targets))
		for _, fn := range m.Functions {
			if _, ok := targets[fn]; ok {
				candidates = append(candidates, fn)
			}
		}
		for _, fn := range r.GC(m, candidates) {
			report.Removed = append(report.Removed, fn.String())
		}
	}
	return report, nil
}

func (r *Rewriter) rewriteFunction(m *wasm.Module, fn *wasm.Function, targets map[*wasm.Function][]*Builtin, sites map[string]int) (int, error) {
	rewrites := 0
	for i := 0; i < len(fn.Code); i++ {
		ins := fn.Code[i]
		if ins.Opcode != wasm.OpCall {
			continue
		}
		candidates := targets[ins.Func]
		if len(candidates) == 0 {
			continue
		}

		callee := ins.Func
		site := &Site{Module: m, Func: fn, Callee: callee, Inst: ins, Index: i}
		res := Declined()
		for _, b := range candidates {
			site.Builtin = b
			var err error
			if res, err = b.Handler(site); err != nil {
				return rewrites, fmt.Errorf("%s at %d: %w", b.Name, i, err)
			}
			if res.action != actionDeclined {
				break
			}
		}

		switch res.action {
		case actionDeclined:
			continue
		case actionSkip:
			return rewrites, nil
		case actionKeep:
			if ins.Func != callee {
				callee.Usage--
				if ins.Func != nil {
					ins.Func.Usage++
				}
				fn.Dirty = true
				rewrites++
				sites[site.Builtin.Name]++
			}
			i = site.Index
		case actionReplaced:
			callee.Usage--
			fn.Dirty = true
			rewrites++
			sites[site.Builtin.Name]++
			i = site.Index
		case actionResume:
			k := fn.IndexOf(res.at)
			if k < 0 {
				return rewrites, errors.New(errors.PhaseRewrite, errors.KindInvalidInput).
					Path(fn.String(), fmt.Sprint(i)).
					Detail("%s resumed at an instruction outside the function", site.Builtin.Name).
					Build()
			}
			callee.Usage--
			fn.Dirty = true
			rewrites++
			sites[site.Builtin.Name]++
			i = k - 1
		}
		r.log.Debug("lowered call",
			zap.String("func", fn.String()),
			zap.String("builtin", site.Builtin.Name),
			zap.Int("usage", callee.Usage))
	}
	return rewrites, nil
}

// GC removes the candidates whose usage is zero and that are not
// referenced from an export, the start function, an element segment or
// ref.func. Calls made by a removed function no longer count toward their
// callees' usage. Negative usage is logged and the function kept.
func (r *Rewriter) GC(m *wasm.Module, candidates []*wasm.Function) []*wasm.Function {
	var removed []*wasm.Function
	for _, fn := range candidates {
		switch {
		case fn.Usage < 0:
			r.log.Warn("negative usage count, function kept",
				zap.String("func", fn.String()),
				zap.Int("usage", fn.Usage))
			continue
		case fn.Usage > 0:
			continue
		case m.FunctionReferenced(fn):
			r.log.Warn("unused builtin is still referenced, function kept",
				zap.String("func", fn.String()))
			continue
		}
		if !m.RemoveFunction(fn) {
			continue
		}
		for _, ins := range fn.Code {
			if (ins.Opcode == wasm.OpCall || ins.Opcode == wasm.OpReturnCall) && ins.Func != nil {
				ins.Func.Usage--
			}
		}
		r.log.Debug("removed function", zap.String("func", fn.String()))
		removed = append(removed, fn)
	}
	return removed
}
