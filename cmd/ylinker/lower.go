package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raweden/wasm-ylinker-sub002/verify"
	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite/builtins"
)

func lowerCommand() *cobra.Command {
	var (
		output     string
		reloc      bool
		noGC       bool
		only       []string
		reportPath string
		verifyOut  bool
	)

	command := &cobra.Command{
		Use:   "lower [path to module]",
		Short: "Lower builtin calls to native instructions",
		Long: "Lower calls to builtin imports such as memcpy, alloca, isnan and the atomics " +
			"intrinsics to native instructions and write the re-encoded module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			if output == "" {
				return errors.New("--output is required")
			}

			m, err := readModule(args[0], wasm.DecodeOptions{Reloc: reloc})
			if err != nil {
				return err
			}

			funcs, err := selectFunctions(m, only)
			if err != nil {
				return err
			}

			opts := rewrite.DefaultOptions()
			opts.GC = !noGC
			opts.Logger = log
			report, err := rewrite.New(builtins.Default(), opts).RewriteCalls(m, funcs)
			if err != nil {
				return err
			}

			if err := m.Validate(); err != nil {
				return fmt.Errorf("lowered module: %w", err)
			}
			out, err := m.Encode(wasm.EncodeOptions{Relocatable: reloc})
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if verifyOut {
				if err := verify.Compile(context.Background(), out, verify.DefaultConfig()); err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			log.Info("wrote module", zap.String("path", output), zap.Int("bytes", len(out)))

			if reportPath != "" {
				if err := writeReportFile(reportPath, report); err != nil {
					return err
				}
			}
			printSummary(cmd, report)
			return nil
		},
	}

	command.Flags().StringVarP(&output, "output", "o", "", "path of the lowered module")
	command.Flags().BoolVar(&reloc, "reloc", false, "keep relocatable immediates padded")
	command.Flags().BoolVar(&noGC, "no-gc", false, "keep builtin imports whose calls were all lowered")
	command.Flags().StringSliceVar(&only, "only", nil, "lower only these functions (name or export name)")
	command.Flags().StringVar(&reportPath, "report", "", "write per-function rewrite counts as CSV")
	command.Flags().BoolVar(&verifyOut, "verify", false, "compile the output with wazero before writing it")

	return command
}

// selectFunctions resolves --only names. nil selects every function.
func selectFunctions(m *wasm.Module, names []string) ([]*wasm.Function, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var funcs []*wasm.Function
	for _, name := range names {
		fn := findFunction(m, name)
		if fn == nil {
			return nil, fmt.Errorf("no function named %q", name)
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

func findFunction(m *wasm.Module, name string) *wasm.Function {
	for _, fn := range m.DefinedFunctions() {
		if fn.Name == name {
			return fn
		}
	}
	if e := m.FindExport(name); e != nil && e.Kind == wasm.KindFunc {
		return e.Func
	}
	return nil
}

func printSummary(cmd *cobra.Command, report *rewrite.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("lowered %d call sites in %d functions", report.Total(), len(report.Functions))))
	for _, b := range report.Builtins {
		fmt.Fprintf(w, "  %s %s\n", funcStyle.Render(fmt.Sprintf("%-28s", b.Name)), resultStyle.Render(fmt.Sprint(b.Sites)))
	}
	if len(report.Removed) > 0 {
		fmt.Fprintln(w, dimStyle.Render("removed: "+strings.Join(report.Removed, ", ")))
	}
}
