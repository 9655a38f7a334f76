// Command ylinker lowers builtin calls in WebAssembly modules.
//
//	ylinker lower in.wasm -o out.wasm [--reloc] [--no-gc] [--only f,g] [--report r.csv] [--verify]
//	ylinker dump in.wasm [--code] [--func name]
//	ylinker stats in.wasm
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

var version = "<unknown>"

// log is replaced in PersistentPreRunE once --verbose is known.
var log = zap.NewNop()

func configureCLI() *cobra.Command {
	var verbose bool

	rootCommand := &cobra.Command{
		Use:           "ylinker",
		Short:         "WebAssembly builtin lowering",
		Long:          "ylinker - decode, lower builtin calls and re-encode WebAssembly modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if verbose {
				log, err = zap.NewDevelopment()
			} else {
				log, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			rewrite.SetLogger(log)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = log.Sync()
			return nil
		},
	}

	rootCommand.AddCommand(lowerCommand())
	rootCommand.AddCommand(dumpCommand())
	rootCommand.AddCommand(statsCommand())

	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every lowered call site")

	return rootCommand
}

func main() {
	if err := configureCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
