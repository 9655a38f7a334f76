package main

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"

	"github.com/raweden/wasm-ylinker-sub002/wasm"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite/builtins"
)

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [path to module]",
		Short: "Write per-function statistics as CSV",
		Long: "Write one CSV row per function: signature, locals, instruction count, " +
			"calls, calls to builtins and callers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			m, err := readModule(args[0], wasm.DecodeOptions{})
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), m)
		},
	}
}

type statsRow struct {
	Function     string `csv:"function"`
	Funcidx      int    `csv:"funcidx"`
	Import       bool   `csv:"import"`
	Builtin      bool   `csv:"builtin"`
	In           int    `csv:"in"`
	Out          int    `csv:"out"`
	LocalCount   int    `csv:"local count"`
	Instructions int    `csv:"instruction count"`
	Calls        int    `csv:"calls"`
	BuiltinCalls int    `csv:"builtin calls"`
	Usage        int    `csv:"usage"`
	Callers      int    `csv:"callers"`
}

func writeStats(w io.Writer, m *wasm.Module) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)

	targets := rewrite.New(builtins.Default(), rewrite.Options{Logger: log}).Resolve(m)
	cg := rewrite.BuildCallGraph(m)
	for idx, fn := range m.Functions {
		_, builtin := targets[fn]
		r := statsRow{
			Function:   fn.String(),
			Funcidx:    idx,
			Import:     fn.IsImport(),
			Builtin:    builtin,
			In:         len(fn.Type.Params),
			Out:        len(fn.Type.Results),
			LocalCount: len(fn.Locals),
			Usage:      fn.Usage,
			Callers:    len(cg.Callers(m, fn)),
		}
		if !fn.IsImport() {
			r.Instructions = len(fn.Code)
			for _, ins := range fn.Code {
				if ins.Opcode != wasm.OpCall && ins.Opcode != wasm.OpReturnCall {
					continue
				}
				r.Calls++
				if _, ok := targets[ins.Func]; ok {
					r.BuiltinCalls++
				}
			}
		}
		if err := encoder.Encode(&r); err != nil {
			return err
		}
	}
	return nil
}
