//go:build linux && riscv64

// Command ume executes statically linked RV64 ELF binaries natively in
// the host process, trapping MMIO accesses for serial output, program
// entry, test termination and an optional framebuffer.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/ume/internal/runner"
	"github.com/tinyrange/ume/internal/status"
)

// initList collects repeatable -r flags.
type initList []runner.InitSpec

func (l *initList) String() string { return fmt.Sprintf("%d inits", len(*l)) }

func (l *initList) Set(s string) error {
	spec, err := runner.ParseInit(s)
	if err != nil {
		return err
	}
	*l = append(*l, spec)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var inits initList

	fs := flag.NewFlagSet("ume", flag.ContinueOnError)
	fs.Var(&inits, "r", "register initialiser rN=V or name=V (repeatable)")
	testFile := fs.String("t", "", "run a unit test configuration file")
	suiteFile := fs.String("s", "", "run a YAML suite of unit tests")
	useFB := fs.Bool("fb", false, "enable the framebuffer device")
	_ = fs.Bool("p", false, "accepted for compatibility; ignored")
	debug := fs.Bool("debug", false, "enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <program>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a statically linked RV64 ELF binary natively.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -r a0=0x41 hello.bin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -t addi.conf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -s tests.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return status.HelpDisplayed
		}
		return status.InitializationError
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *testFile != "" && len(inits) > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot set unit test and individual registers at the same time")
		return status.InitializationError
	}

	opts := runner.Options{Framebuffer: *useFB}

	var (
		code int
		err  error
	)
	switch {
	case *suiteFile != "":
		code, err = runner.RunSuite(*suiteFile)
	case *testFile != "":
		code, err = runner.RunConf(*testFile, opts)
	default:
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Error: no executable")
			fs.Usage()
			return status.InitializationError
		}
		code, err = runner.RunBinary(fs.Arg(0), inits, opts)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}
