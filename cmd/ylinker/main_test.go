package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

// writeModule writes a module whose exported copy function calls
// env.memcpy and drops the result.
func writeModule(t *testing.T) string {
	t.Helper()
	i32 := wasm.ValI32
	m := &wasm.Module{}
	memcpy := m.AddImportedFunction("env", "memcpy", &wasm.FuncType{
		Params:  []wasm.ValType{i32, i32, i32},
		Results: []wasm.ValType{i32},
	})
	m.Memories = append(m.Memories, &wasm.Memory{Limits: wasm.Limits{Min: 1}})
	fn := m.AddFunction(&wasm.FuncType{Params: []wasm.ValType{i32, i32}}, nil)
	fn.Code = []*wasm.Instruction{
		wasm.LocalGet(fn.Locals[0]),
		wasm.LocalGet(fn.Locals[1]),
		wasm.I32Const(32),
		wasm.Call(memcpy),
		wasm.NewInstruction(wasm.OpDrop),
		wasm.End(),
	}
	m.Exports = append(m.Exports, &wasm.Export{Name: "copy", Kind: wasm.KindFunc, Func: fn})

	out, err := m.Encode(wasm.EncodeOptions{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "in.wasm")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := configureCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLower(t *testing.T) {
	in := writeModule(t)
	dir := filepath.Dir(in)
	outPath := filepath.Join(dir, "out.wasm")
	reportPath := filepath.Join(dir, "report.csv")

	stdout, err := run(t, "lower", in, "-o", outPath, "--report", reportPath, "--verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "lowered 1 call sites in 1 functions")
	assert.Contains(t, stdout, "removed: env.memcpy")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	m, err := wasm.ParseModule(data, wasm.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	assert.Equal(t, wasm.OpMemoryCopy, m.Functions[0].Code[3].Opcode)

	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, "index,function,rewrites\n1,<anonymous>,1\n", string(report))
}

func TestLowerNoGC(t *testing.T) {
	in := writeModule(t)
	outPath := filepath.Join(filepath.Dir(in), "out.wasm")

	_, err := run(t, "lower", in, "-o", outPath, "--no-gc", "--only", "copy")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	m, err := wasm.ParseModule(data, wasm.DecodeOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Functions, 2)
	assert.Equal(t, 0, m.Functions[0].Usage)
}

func TestLowerErrors(t *testing.T) {
	in := writeModule(t)

	_, err := run(t, "lower", in)
	assert.EqualError(t, err, "--output is required")

	_, err = run(t, "lower", in, "-o", filepath.Join(t.TempDir(), "x.wasm"), "--only", "nope")
	assert.EqualError(t, err, `no function named "nope"`)

	_, err = run(t, "lower", filepath.Join(t.TempDir(), "missing.wasm"), "-o", "x.wasm")
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	in := writeModule(t)

	stdout, err := run(t, "dump", in, "--code")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sections")
	assert.Contains(t, stdout, "env.memcpy")
	assert.Contains(t, stdout, "export=copy")
	assert.Contains(t, stdout, "call env.memcpy")

	stdout, err = run(t, "dump", in, "--func", "copy")
	require.NoError(t, err)
	assert.Contains(t, stdout, "local.get 1 i32")
	assert.NotContains(t, stdout, "sections")
}

func TestStats(t *testing.T) {
	in := writeModule(t)

	stdout, err := run(t, "stats", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "function,funcidx,import,builtin,in,out,local count,instruction count,calls,builtin calls,usage,callers", lines[0])
	assert.Equal(t, "env.memcpy,0,true,true,3,1,0,0,0,0,1,1", lines[1])
	assert.Equal(t, "<anonymous>,1,false,false,2,0,2,6,1,1,0,0", lines[2])
}
