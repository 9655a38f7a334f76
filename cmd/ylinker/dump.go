package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
)

func dumpCommand() *cobra.Command {
	var (
		code     bool
		funcName string
	)

	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Print the sections, functions and code of a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			m, err := readModule(args[0], wasm.DecodeOptions{Reloc: true})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if funcName != "" {
				fn := findFunction(m, funcName)
				if fn == nil {
					return fmt.Errorf("no function named %q", funcName)
				}
				dumpFunction(w, m, fn, true)
				return nil
			}

			fmt.Fprintln(w, titleStyle.Render("sections"))
			for _, sec := range m.Sections {
				fmt.Fprintf(w, "  %s\n", sec)
			}
			fmt.Fprintln(w, titleStyle.Render("functions"))
			for _, fn := range m.Functions {
				dumpFunction(w, m, fn, code)
			}
			return nil
		},
	}

	command.Flags().BoolVar(&code, "code", false, "print instructions")
	command.Flags().StringVar(&funcName, "func", "", "print only this function, with its code")

	return command
}

func dumpFunction(w io.Writer, m *wasm.Module, fn *wasm.Function, code bool) {
	header := fmt.Sprintf("  %4d %s %s", m.FunctionIndex(fn), funcStyle.Render(fn.String()), typeStyle.Render(fn.Type.String()))
	switch {
	case fn.IsImport():
		header += dimStyle.Render(fmt.Sprintf(" import usage=%d", fn.Usage))
	default:
		header += dimStyle.Render(fmt.Sprintf(" locals=%d instructions=%d", len(fn.Locals), len(fn.Code)))
	}
	if names := m.ExportNames(fn); len(names) > 0 {
		header += dimStyle.Render(" export=" + strings.Join(names, ","))
	}
	fmt.Fprintln(w, header)
	if !code || fn.IsImport() {
		return
	}

	depth := 0
	for i, ins := range fn.Code {
		switch ins.Opcode {
		case wasm.OpEnd, wasm.OpDelegate:
			depth--
		case wasm.OpElse, wasm.OpCatch, wasm.OpCatchAll:
			depth--
		}
		indent := strings.Repeat("  ", max(depth, 0))
		fmt.Fprintf(w, "       %s %s%s\n", dimStyle.Render(fmt.Sprintf("%5d", i)), indent, instructionText(fn, ins))
		switch ins.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpTry,
			wasm.OpElse, wasm.OpCatch, wasm.OpCatchAll:
			depth++
		}
	}
}

// instructionText renders ins with function and local operands resolved
// to names and indices.
func instructionText(fn *wasm.Function, ins *wasm.Instruction) string {
	info, ok := wasm.Lookup(ins.Opcode)
	if !ok {
		return ins.String()
	}
	switch {
	case ins.Func != nil && info.Imm == wasm.ImmFunc:
		return info.Name + " " + funcStyle.Render(ins.Func.String())
	case ins.Local != nil:
		return fmt.Sprintf("%s %d %s", info.Name, fn.LocalIndex(ins.Local), typeStyle.Render(ins.Local.Type.String()))
	}
	return ins.String()
}
