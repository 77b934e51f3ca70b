//go:build linux && riscv64

package trap

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/ume/internal/decode"
	"github.com/tinyrange/ume/internal/mmio"
)

// Register numbers in the context the hand-off saves and the exit paths
// use. gp is the slot just below tp, kept for per-thread-data
// compatibility.
const (
	regSP = 2
	regGP = 3
	regTP = 4
	regA0 = 10
	regG  = 27 // Go goroutine pointer, s11 in the ABI
)

// trapHandler is called from the assembly signal trampoline with the
// signal number, siginfo and ucontext published in trapCtx. It runs with
// all signals masked on behalf of the guest; everything reachable from
// here must be allocation free.
//
//go:nosplit
func trapHandler() {
	info := (*siginfo)(unsafe.Pointer(uintptr(trapCtx[1])))
	uc := (*ucontext)(unsafe.Pointer(uintptr(trapCtx[2])))

	switch trapCtx[0] {
	case uint64(unix.SIGILL):
		handleIll(uc)
	case uint64(unix.SIGSEGV):
		handleSegv(info, uc)
	default:
		crash("unexpected signal")
	}
}

// handleIll recognises the test-end sentinel; any other illegal
// instruction is fatal.
//
//go:nosplit
func handleIll(uc *ucontext) {
	word := *(*uint32)(unsafe.Pointer(uintptr(uc.mc.pc)))
	if word != TestEndMarker {
		crash("illegal instruction")
	}

	snapshot(uc)
	redirectExit(uc, ExitByMarker)
}

// handleSegv decodes the faulting access and dispatches it to the device
// registry.
//
//go:nosplit
func handleSegv(info *siginfo, uc *ucontext) {
	acc, err := decode.At(uintptr(uc.mc.pc))
	if err != nil {
		crash("unsupported opcode in faulting instruction")
	}

	addr := uint64(info.addr)

	if acc.Store {
		// Stores sourced from x0 carry the value 0.
		val := uc.reg(acc.Reg)
		out, err := devices.DispatchStore(addr, acc.Width, val)
		if err != nil {
			crash(err.Error())
		}
		switch out {
		case mmio.OutcomeHandled:
			uc.mc.pc += acc.Len()
		case mmio.OutcomeEnter:
			enterProgram(uc, val)
		case mmio.OutcomeExit:
			snapshot(uc)
			redirectExit(uc, ExitByStatus)
		default:
			fatalAccess("write", acc.Width, addr, uc.mc.pc)
		}
		return
	}

	val, out, err := devices.DispatchLoad(addr, acc.Width)
	if err != nil {
		crash(err.Error())
	}
	if out != mmio.OutcomeHandled {
		fatalAccess("read", acc.Width, addr, uc.mc.pc)
	}
	// Loads into x0 discard the result.
	uc.setReg(acc.Reg, val)
	uc.mc.pc += acc.Len()
}

// enterProgram completes the program-entry hand-off: the host context is
// saved for restore_regs, the guest register file is loaded, and the PC
// becomes the stored entry point. The PC is not advanced; this is the
// guest's first instruction.
//
//go:nosplit
func enterProgram(uc *ucontext, entry uint64) {
	regStorage[1] = uc.reg(regGP)
	regStorage[2] = uc.reg(regTP)
	regStorage[3] = uc.reg(regSP)
	regStorage[4] = uc.reg(regG)
	regStorage[0] = 1

	for i := uint8(1); i < NumRegs; i++ {
		uc.setReg(i, initRegs[i])
	}
	uc.mc.pc = entry
}

// snapshot copies the guest's register file into the result area.
//
//go:nosplit
func snapshot(uc *ucontext) {
	savedRegs.X[0] = 0
	for i := uint8(1); i < NumRegs; i++ {
		savedRegs.X[i] = uc.reg(i)
	}
	savedRegs.PC = uc.mc.pc
}

// redirectExit points the context at the safe-exit landing pad with the
// exit type in the conventional return register.
//
//go:nosplit
func redirectExit(uc *ucontext, t ExitType) {
	uc.setReg(regA0, uint64(t))
	uc.mc.pc = uint64(safeExitPC)
}
