// Command coilasm is a thin flag-wiring and exit-code wrapper around the
// assembler façade (SPEC_FULL.md §6). All real behavior — validation,
// optimization, code lowering, emission — lives in the assembler package;
// this file never duplicates it.
package main

import (
	"fmt"
	"os"

	env "github.com/xyproto/env/v2"
	"github.com/spf13/cobra"

	"github.com/xyproto/coilasm/assembler"
	"github.com/xyproto/coilasm/cerr"
	"github.com/xyproto/coilasm/coil"
	"github.com/xyproto/coilasm/diag"

	_ "github.com/xyproto/coilasm/targets/arm64"
	_ "github.com/xyproto/coilasm/targets/riscv64"
	_ "github.com/xyproto/coilasm/targets/x86_64"
)

// Exit codes (SPEC_FULL.md §6).
const (
	exitSuccess        = 0
	exitUsageError     = 1
	exitValidateError  = 2
	exitTargetError    = 3
	exitCodegenFailure = 4
	exitIoFailure      = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		targetName string
		optLevel   string
		format     string
		configPath string
		outputPath string
	)

	code := exitSuccess
	root := &cobra.Command{
		Use:          "coilasm <module>",
		Short:        "Translate a COIL module into native machine code",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			c, err := parseExit(posArgs[0], targetName, optLevel, format, configPath, outputPath)
			code = c
			return err
		},
	}

	root.Flags().StringVar(&targetName, "target", "", "target architecture name (required)")
	root.Flags().StringVar(&optLevel, "opt", "1", "optimization level: 0, 1, 2, 3, or s")
	root.Flags().StringVar(&format, "format", "object", "output format: object, assembly, executable, library")
	root.Flags().StringVar(&configPath, "config", "", "optional target configuration file")
	root.Flags().StringVarP(&outputPath, "output", "o", "", "output path (required)")

	if logLevel := env.Str("COILASM_LOG_LEVEL"); logLevel != "" {
		fmt.Fprintf(os.Stderr, "coilasm: log level %s requested via COILASM_LOG_LEVEL\n", logLevel)
	}

	if err := root.Execute(); err != nil {
		if code == exitSuccess {
			code = exitUsageError
		}
		fmt.Fprintln(os.Stderr, "coilasm:", err)
	}
	return code
}

// parseExit resolves the CLI's string flags into façade calls and returns
// the process exit code alongside any error the command should print.
func parseExit(modulePath, targetName, optLevel, format, configPath, outputPath string) (int, error) {
	if targetName == "" {
		return exitUsageError, fmt.Errorf("--target is required")
	}
	if outputPath == "" {
		return exitUsageError, fmt.Errorf("--output is required")
	}
	level, err := parseOptLevel(optLevel)
	if err != nil {
		return exitUsageError, err
	}
	fmtVal, err := parseFormat(format)
	if err != nil {
		return exitUsageError, err
	}

	a := assembler.New()
	defer a.Close()

	var last diag.Record
	var sawRecord bool
	a.SetDiagnosticsHandler(func(r diag.Record) {
		sawRecord = true
		last = r
		fmt.Fprintln(os.Stderr, r.String())
	})

	a.SetOptimizationLevel(level)
	a.SetOutputFormat(fmtVal)

	if err := a.SetTarget(targetName); err != nil {
		return exitTargetError, fmt.Errorf("set target: %w", err)
	}
	if configPath != "" {
		if err := a.SetTargetConfig(configPath); err != nil {
			return exitTargetError, fmt.Errorf("set target config: %w", err)
		}
	}

	m, err := coil.LoadFromFile(modulePath)
	if err != nil {
		return exitValidateError, fmt.Errorf("load module: %w", err)
	}

	if err := a.ProcessModule(m); err != nil {
		code := processErrorExitCode(err)
		if sawRecord && last.Severity >= diag.Error {
			return code, fmt.Errorf("process module: %s", last.String())
		}
		return code, fmt.Errorf("process module: %w", err)
	}

	if err := a.WriteOutput(outputPath); err != nil {
		return exitIoFailure, fmt.Errorf("write output: %w", err)
	}

	return exitSuccess, nil
}

// processErrorExitCode maps a ProcessModule failure onto the §6 exit code
// table. SetTarget/SetTargetConfig failures are mapped to exitTargetError
// by their own call sites in parseExit before ProcessModule ever runs, so
// a TargetError surfacing here is always from the lowering or emission
// stage — a codegen failure, not a target-selection failure.
func processErrorExitCode(err error) int {
	switch {
	case cerr.Is(err, cerr.TargetError):
		return exitCodegenFailure
	case cerr.Is(err, cerr.IoError):
		return exitIoFailure
	default:
		return exitValidateError
	}
}

func parseOptLevel(s string) (assembler.OptLevel, error) {
	switch s {
	case "0":
		return assembler.Opt0, nil
	case "1":
		return assembler.Opt1, nil
	case "2":
		return assembler.Opt2, nil
	case "3":
		return assembler.Opt3, nil
	case "s":
		return assembler.OptSize, nil
	default:
		return 0, fmt.Errorf("invalid --opt value %q: want 0, 1, 2, 3, or s", s)
	}
}

func parseFormat(s string) (assembler.OutputFormat, error) {
	switch s {
	case "object":
		return assembler.FormatObject, nil
	case "assembly":
		return assembler.FormatAssembly, nil
	case "executable":
		return assembler.FormatExecutable, nil
	case "library":
		return assembler.FormatLibrary, nil
	default:
		return 0, fmt.Errorf("invalid --format value %q: want object, assembly, executable, or library", s)
	}
}
