package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/splanck/viper-sub008/internal/astjson"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/layout"
	"github.com/splanck/viper-sub008/internal/lower"
	"github.com/splanck/viper-sub008/internal/sem"
	"go.uber.org/zap"
)

// frontendInits is an archInits-style dispatch table: one entry per
// supported source frontend, keyed by the name accepted on the command
// line. Each frontend's actual lexer/parser lives upstream of this
// module (spec §2 "AST externally owned"); the entry here only tags
// which frontend produced the JSON AST this driver reads, for the
// diagnostics it prints.
var frontendInits = map[string]func(){
	"basic":  func() {},
	"pascal": func() {},
	"zia":    func() {},
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("vc: ")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vc: %v\n", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vc",
		Short: "vc compiles a JSON-encoded AST through the analyzer/layout/lowerer pipeline",
	}
	root.AddCommand(newCompileCmd("basic"))
	root.AddCommand(newCompileCmd("pascal"))
	root.AddCommand(newCompileCmd("zia"))
	return root
}

func newCompileCmd(frontend string) *cobra.Command {
	var (
		outPath string
		dumpIL  bool
	)

	cmd := &cobra.Command{
		Use:   frontend + " <file>",
		Short: fmt.Sprintf("compile a %s-frontend AST", frontend),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			init, ok := frontendInits[frontend]
			if !ok {
				return fmt.Errorf("unknown frontend %q", frontend)
			}
			init()

			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			return runCompile(log, frontend, args[0], outPath, dumpIL)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path (defaults to stdout)")
	cmd.Flags().BoolVarP(&dumpIL, "S", "S", true, "dump the module's IL text form instead of invoking a backend")
	return cmd
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// runCompile is the driver's one real job: decode a JSON AST, run it
// through the analyzer, layout computer, and lowerer, and emit the
// resulting module's IL text form. There is no machine-code backend
// (spec §1 non-goal), so -S is the only supported output mode; a
// false -S is rejected rather than silently ignored.
func runCompile(log *zap.SugaredLogger, frontend, inputPath, outPath string, dumpIL bool) error {
	if !dumpIL {
		return fmt.Errorf("no backend is implemented; pass -S to emit IL text")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	text, err := compileToIL(log, frontend, data)
	if err != nil {
		return err
	}

	if outPath == "" {
		fmt.Println(text)
		return nil
	}
	return os.WriteFile(outPath, []byte(text), 0o644)
}

// tallyError adapts diag.Tally's accumulated diagnostics into a single
// error the cobra RunE chain can return.
func tallyError(frontend string, tally *diag.Tally) error {
	if !tally.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s: %d diagnostic(s), first: %s", frontend, len(tally.Diagnostics), tally.Diagnostics[0].Render())
}

// compileToIL runs the analyzer -> layout -> lowerer pipeline over the
// JSON-encoded AST in data and renders the resulting module's IL text
// form, the one backend interface this driver has (spec §6).
func compileToIL(log *zap.SugaredLogger, frontend string, data []byte) (string, error) {
	f, err := astjson.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%s: decode AST: %w", frontend, err)
	}

	var tally diag.Tally
	analyzer := sem.NewAnalyzer(&tally)
	implicit := analyzer.Analyze(f)
	if err := tallyError(frontend, &tally); err != nil {
		return "", err
	}

	comp := layout.NewComputer(analyzer.Classes)
	if err := comp.ComputeAll(); err != nil {
		return "", fmt.Errorf("%s: class layout: %w", frontend, err)
	}

	lw := lower.New(analyzer, implicit, comp).WithLogger(log)
	mod, err := lw.LowerFile(f)
	if err != nil {
		return "", fmt.Errorf("%s: lower: %w", frontend, err)
	}

	return il.Render(mod), nil
}
