//go:build linux && riscv64

package trap

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/ume/internal/mmio"
)

// sigStackSize sizes the alternate signal stack. The handler formats
// into fixed buffers, so this is generous.
const sigStackSize = 64 << 10

// Package state shared between the Go handler and the assembly
// trampoline. The trap handler must reach all of it without arguments,
// so the harness is a process-wide singleton; Activate enforces that.
var (
	// regStorage holds the saved host context: [0] validity flag,
	// [1] gp, [2] tp, [3] sp, [4] g. gp/tp/sp are the three words the
	// architected hand-off saves; g is the extra slot Go code cannot
	// run without.
	regStorage [5]uint64

	// jmpBuf is the longjmp target recorded by enterGuest and consumed
	// by safeExit: ra, sp, gp, tp, then the callee-saved x8, x9,
	// x18..x27.
	jmpBuf [16]uint64

	// trapCtx receives (signal, siginfo, ucontext) from the signal
	// trampoline before it calls into Go.
	trapCtx [3]uint64

	// exitCode is written by safeExit from a0.
	exitCode uint64

	initRegs   [NumRegs]uint64
	savedRegs  RegisterFile
	devices    *mmio.Registry
	safeExitPC uintptr

	active atomic.Bool
)

// Defined in trampoline_linux_riscv64.s.
func enterGuest(entry uint64)
func safeExitAddr() uintptr
func sigtrampAddr() uintptr

// Harness owns the signal installation and the per-run state for one
// guest execution.
type Harness struct {
	altStack []byte
}

// Activate installs the alternate stack and the SIGSEGV/SIGILL handlers
// and publishes the device registry and initial register file to the
// handler. Only one harness may be active per process. The calling
// goroutine stays locked to its OS thread until Deactivate: the
// alternate stack is a per-thread property and guest execution must
// fault on the thread that owns it.
func Activate(reg *mmio.Registry, init *RegisterFile) (*Harness, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("trap: harness already active")
	}

	runtime.LockOSThread()

	h := &Harness{}
	if err := h.install(reg, init); err != nil {
		h.teardown()
		runtime.UnlockOSThread()
		active.Store(false)
		return nil, err
	}
	return h, nil
}

func (h *Harness) install(reg *mmio.Registry, init *RegisterFile) error {
	devices = reg
	initRegs = init.X
	initRegs[0] = 0 // guest x0 is hardwired
	savedRegs = RegisterFile{}
	regStorage[0] = 0
	exitCode = uint64(InitialCall)
	safeExitPC = safeExitAddr()

	// The guest may not have a stack at all; handlers need their own.
	stack, err := unix.Mmap(-1, 0, sigStackSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("trap: map signal stack: %w", err)
	}
	h.altStack = stack

	ss := stackT{
		ssSp:   uintptr(unsafe.Pointer(&stack[0])),
		ssSize: sigStackSize,
	}
	if err := sigaltstack(&ss); err != nil {
		return err
	}

	tramp := sigtrampAddr()
	if err := sigaction(int(unix.SIGSEGV), tramp, saSiginfo|saOnstack); err != nil {
		return err
	}
	if err := sigaction(int(unix.SIGILL), tramp, saSiginfo|saOnstack); err != nil {
		return err
	}

	slog.Debug("trap: handlers installed", "stack", fmt.Sprintf("%#x", ss.ssSp))
	return nil
}

// Run transfers control into the guest at entry and blocks until the
// guest terminates through safe exit. The elapsed time covers only the
// guest's execution window.
func (h *Harness) Run(entry uint64) (ExitType, time.Duration) {
	start := time.Now()
	enterGuest(entry)
	elapsed := time.Since(start)

	return ExitType(exitCode), elapsed
}

// Snapshot returns the register file captured at guest termination.
func (h *Harness) Snapshot() RegisterFile {
	return savedRegs
}

// Deactivate restores default signal handling so a second run in the
// same process is safe, releases the alternate stack and unpins the OS
// thread.
func (h *Harness) Deactivate() error {
	err := h.teardown()
	runtime.UnlockOSThread()
	active.Store(false)
	return err
}

func (h *Harness) teardown() error {
	var firstErr error

	if err := sigaction(int(unix.SIGSEGV), sigDfl, 0); err != nil {
		firstErr = err
	}
	if err := sigaction(int(unix.SIGILL), sigDfl, 0); err != nil && firstErr == nil {
		firstErr = err
	}

	ss := stackT{ssFlags: ssDisable}
	if err := sigaltstack(&ss); err != nil && firstErr == nil {
		firstErr = err
	}

	if h.altStack != nil {
		if err := unix.Munmap(h.altStack); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("trap: unmap signal stack: %w", err)
		}
		h.altStack = nil
	}

	regStorage[0] = 0
	devices = nil
	return firstErr
}
