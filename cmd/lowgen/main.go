// lowgen lowers textual IR functions to abstract machine code listings.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/raymyers/lowgen/pkg/arm64"
	"github.com/raymyers/lowgen/pkg/irtext"
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dIR    bool
	dVcode bool
)

var (
	targetName      string
	defaultConv     string
	elideTrapGuards bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lowgen: %v\n", err)
		return 1
	}
	return 0
}

// debugFlagNames lists flags that accept single-dash style.
var debugFlagNames = []string{"dir", "dvcode"}

// normalizeFlags converts single-dash debug flags like -dir to --dir.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

// backends maps target names to their lowering backends.
var backends = map[string]lower.Backend{
	"arm64": arm64.New(),
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lowgen [file]",
		Short: "lowgen selects machine instructions for textual IR functions",
		Long: `lowgen reads functions in textual IR form, resolves their calling
conventions, lowers them through the target's rewrite rules, and
prints the resulting abstract machine code listing. Pass - to read
from standard input.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return compile(args[0], out)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&targetName, "target", env.Str("LOWGEN_TARGET", "arm64"), "target machine")
	flags.StringVar(&defaultConv, "conv", env.Str("LOWGEN_CONV", "aapcs64"),
		"calling convention assumed when a function header omits one")
	flags.BoolVar(&elideTrapGuards, "elide-trap-guards", env.Bool("LOWGEN_ELIDE_TRAP_GUARDS"),
		"omit runtime trap guard sequences")
	flags.BoolVar(&dIR, "dir", false, "dump the parsed IR and exit")
	flags.BoolVar(&dVcode, "dvcode", false, "dump the lowered listing (default; with --dir, print both)")

	return rootCmd
}

func compile(filename string, out io.Writer) error {
	src, err := readInput(filename)
	if err != nil {
		return err
	}

	mod, err := irtext.Parse(src, defaultConv)
	if err != nil {
		return err
	}

	if dIR {
		for _, fn := range mod.Funcs {
			irtext.Fprint(out, fn)
		}
		if !dVcode {
			return nil
		}
	}

	be, ok := backends[targetName]
	if !ok {
		return fmt.Errorf("unknown target %q", targetName)
	}
	cfg := lower.Config{ElideTrapGuards: elideTrapGuards}

	p := vcode.NewPrinter(out)
	for _, fn := range mod.Funcs {
		unit, err := lower.Function(fn, be, cfg)
		if err != nil {
			return err
		}
		p.PrintUnit(unit)
	}
	return nil
}

func readInput(filename string) (string, error) {
	if filename == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
