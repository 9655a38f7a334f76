// Package verify checks encoded modules with the wazero runtime.
//
// Compile is the cheap check used after lowering: wazero validates the
// whole module while compiling it, so a lowering that leaves the operand
// stack unbalanced or references a missing entity is rejected here.
// Instantiate goes one step further and links the module so exported
// functions can be called, which the execution tests use.
package verify

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/raweden/wasm-ylinker-sub002/errors"
)

// Config holds configuration for the wazero runtime.
type Config struct {
	// EnableThreads accepts atomic instructions and shared memory.
	EnableThreads bool

	// MemoryLimitPages caps memories in 64KiB pages. 0 keeps the wazero
	// default.
	MemoryLimitPages uint32

	// Interpreter runs functions with the wazero interpreter instead of
	// the ahead-of-time compiler. Execution tests use it for results that
	// do not depend on the host architecture.
	Interpreter bool
}

// DefaultConfig enables threads, since lowered atomics builtins need it.
func DefaultConfig() *Config {
	return &Config{EnableThreads: true}
}

func newRuntime(ctx context.Context, cfg *Config) wazero.Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
}

// Compile reports whether bin compiles. Imports are not resolved.
func Compile(ctx context.Context, bin []byte, cfg *Config) error {
	runtime := newRuntime(ctx, cfg)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, bin)
	if err != nil {
		return errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, err, "module does not compile")
	}
	return compiled.Close(ctx)
}

// Instance is an instantiated module. It owns its runtime.
type Instance struct {
	api.Module
	runtime wazero.Runtime
}

// Instantiate compiles and instantiates bin without host modules, so bin
// must not import anything.
func Instantiate(ctx context.Context, bin []byte, cfg *Config) (*Instance, error) {
	runtime := newRuntime(ctx, cfg)
	mod, err := runtime.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindInvalidData, err, "module does not instantiate")
	}
	return &Instance{Module: mod, runtime: runtime}, nil
}

// Call invokes the exported function name.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseVerify, "function export", name)
	}
	return fn.Call(ctx, params...)
}

// Close releases the instance and its runtime.
func (i *Instance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}
