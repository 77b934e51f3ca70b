//go:build linux && riscv64

package trap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel ABI for rt_sigaction on riscv64. The architecture uses the
// generic layout without sa_restorer; sigreturn goes through the vDSO.
type kernelSigaction struct {
	handler uintptr
	flags   uint64
	mask    uint64
}

const (
	saSiginfo = 0x4
	saOnstack = 0x08000000

	sigDfl = 0

	ssDisable = 2

	sigsetSize = 8
)

// stackT mirrors the kernel stack_t.
type stackT struct {
	ssSp    uintptr
	ssFlags int32
	_       int32
	ssSize  uintptr
}

// siginfo carries the head of the kernel siginfo_t. For SIGSEGV the
// faulting address is the first field of the union at offset 16.
type siginfo struct {
	signo int32
	errno int32
	code  int32
	_     int32
	addr  uintptr
}

// sigcontext is the mcontext of a riscv64 ucontext: pc followed by
// x1..x31. The FP state behind it is not touched.
type sigcontext struct {
	pc   uint64
	regs [31]uint64
}

// ucontext mirrors the kernel struct ucontext. The mcontext is 16-byte
// aligned, which puts it at offset 176.
type ucontext struct {
	flags   uint64
	link    *ucontext
	stack   stackT
	sigmask [128]byte
	_       [8]byte
	mc      sigcontext
}

// reg reads general-purpose register n from the context; x0 reads as
// zero.
//
//go:nosplit
func (uc *ucontext) reg(n uint8) uint64 {
	if n == 0 {
		return 0
	}
	return uc.mc.regs[n-1]
}

// setReg writes general-purpose register n; writes to x0 are discarded.
//
//go:nosplit
func (uc *ucontext) setReg(n uint8, v uint64) {
	if n != 0 {
		uc.mc.regs[n-1] = v
	}
}

// sigaction installs or resets a handler via the raw rt_sigaction
// syscall; x/sys/unix exposes no wrapper for it.
func sigaction(sig int, handler uintptr, flags uint64) error {
	act := kernelSigaction{
		handler: handler,
		flags:   flags,
		mask:    ^uint64(0), // all signals masked during handling
	}
	_, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGACTION,
		uintptr(sig), uintptr(unsafe.Pointer(&act)), 0, sigsetSize, 0, 0)
	if errno != 0 {
		return fmt.Errorf("trap: rt_sigaction(%d): %s - %s",
			sig, unix.ErrnoName(errno), errno.Error())
	}
	return nil
}

// sigaltstack points signal delivery at the given stack, or disables the
// alternate stack when ss is flagged SS_DISABLE.
func sigaltstack(ss *stackT) error {
	_, _, errno := unix.RawSyscall(unix.SYS_SIGALTSTACK,
		uintptr(unsafe.Pointer(ss)), 0, 0)
	if errno != 0 {
		return fmt.Errorf("trap: sigaltstack: %s - %s",
			unix.ErrnoName(errno), errno.Error())
	}
	return nil
}
