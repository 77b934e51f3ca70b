//go:build linux && riscv64

package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"

	"github.com/tinyrange/ume/internal/fb"
	"github.com/tinyrange/ume/internal/guest"
	"github.com/tinyrange/ume/internal/mmio"
	"github.com/tinyrange/ume/internal/sdl"
	"github.com/tinyrange/ume/internal/status"
	"github.com/tinyrange/ume/internal/trap"
)

// Options configures one guest execution.
type Options struct {
	// Framebuffer registers the framebuffer device and starts the
	// renderer thread for the duration of the run.
	Framebuffer bool

	// serialFD overrides the serial output descriptor; zero means
	// standard output. Tests use this to capture guest output.
	serialFD int
}

type outcome struct {
	exit    trap.ExitType
	elapsed time.Duration
	regs    trap.RegisterFile
}

// execute loads binary, wires the device set, runs the guest and tears
// everything down again.
func execute(binary string, pre []InitSpec, opts Options) (*outcome, int, error) {
	img, err := guest.Load(binary)
	if err != nil {
		code := status.InitializationError
		var errno unix.Errno
		if errors.As(err, &errno) || errors.Is(err, guest.ErrHostEnv) {
			code = status.AbnormalTermination
		}
		return nil, code, err
	}
	defer img.Close()

	var reg mmio.Registry
	var renderer *fb.Renderer

	if opts.Framebuffer {
		pixels, err := guest.MapAnon(fb.PixelBase, fb.PixelBufSize)
		if err != nil {
			return nil, status.AbnormalTermination,
				fmt.Errorf("runner: map pixel buffer: %w", err)
		}
		defer guest.Unmap(fb.PixelBase, fb.PixelBufSize)

		dev := fb.New(pixels)
		if err := reg.Add(dev); err != nil {
			return nil, status.AbnormalTermination, err
		}
		renderer = fb.NewRenderer(dev, sdl.NewWindow())
	}
	serialFD := opts.serialFD
	if serialFD == 0 {
		serialFD = int(os.Stdout.Fd())
	}
	if err := reg.Add(mmio.NewSysBus(serialFD)); err != nil {
		return nil, status.AbnormalTermination, err
	}

	var init trap.RegisterFile
	for _, p := range pre {
		init.X[p.Reg] = p.Val
	}

	h, err := trap.Activate(&reg, &init)
	if err != nil {
		return nil, status.AbnormalTermination, err
	}

	if renderer != nil {
		renderer.Start()
	}

	exit, elapsed := h.Run(img.EntryPC)
	regs := h.Snapshot()

	deactErr := h.Deactivate()
	if renderer != nil {
		renderer.Stop()
	}
	if deactErr != nil {
		return nil, status.AbnormalTermination, deactErr
	}

	return &outcome{exit: exit, elapsed: elapsed, regs: regs}, status.Success, nil
}

// RunBinary executes a plain binary with command-line register inits and
// reports the termination reason, elapsed time and final register file.
func RunBinary(path string, inits []InitSpec, opts Options) (int, error) {
	res, code, err := execute(path, inits, opts)
	if err != nil {
		return code, err
	}

	fmt.Fprintf(os.Stderr, "Finished execution (%s)\n", res.exit)
	fmt.Fprintf(os.Stderr, "Took %s\n", FormatElapsed(res.elapsed))
	fmt.Fprintln(os.Stderr, "Registers at time of exit:")
	WriteDump(os.Stderr, res.regs)

	return status.Success, nil
}

// RunConf executes a .conf unit test and compares the post-execution
// register file against the [post] assertions.
func RunConf(path string, opts Options) (int, error) {
	cfg, err := ParseConf(path)
	if err != nil {
		return status.InitializationError, err
	}

	res, code, err := execute(cfg.Binary, cfg.Pre, opts)
	if err != nil {
		return code, err
	}

	failed := false
	for _, p := range cfg.Post {
		if p.Reg == 0 {
			continue
		}
		if got := res.regs.X[p.Reg]; got != p.Val {
			fmt.Printf("x%d: expected %.16x, got %.16x\n", p.Reg, p.Val, got)
			failed = true
		}
	}

	if failed {
		return status.UnitTestFailed, nil
	}
	return status.Success, nil
}

// RunSuite executes every test in a YAML suite manifest and prints a
// summary. The framebuffer stays off in suite mode.
func RunSuite(path string) (int, error) {
	suite, err := LoadSuite(path)
	if err != nil {
		return status.InitializationError, err
	}

	bar := progressbar.Default(int64(len(suite.Tests)), suite.Name)

	type result struct {
		name string
		code int
		err  error
	}
	results := make([]result, 0, len(suite.Tests))

	for _, t := range suite.Tests {
		code, err := RunConf(t.Conf, Options{})
		results = append(results, result{name: t.Name, code: code, err: err})
		bar.Add(1)
	}
	bar.Finish()

	passed := 0
	for _, r := range results {
		switch {
		case r.err != nil:
			fmt.Printf("%s %s: %v\n", color(colorRed, "ERR "), r.name, r.err)
		case r.code != status.Success:
			fmt.Printf("%s %s\n", color(colorRed, "FAIL"), r.name)
		default:
			fmt.Printf("%s %s\n", color(colorGreen, "ok  "), r.name)
			passed++
		}
	}
	fmt.Printf("%d/%d tests passed\n", passed, len(suite.Tests))

	if passed != len(suite.Tests) {
		return status.UnitTestFailed, nil
	}
	return status.Success, nil
}
