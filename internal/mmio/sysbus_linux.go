//go:build linux

package mmio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Architected addresses in guest page 0. The page is intentionally left
// unmapped so that every access raises a synchronous fault.
const (
	SerialAddr = 0x200 // 1-byte write: append to standard output
	EntryAddr  = 0x208 // 8-byte write: program-entry hand-off
	ExitAddr   = 0x278 // 1- or 4-byte write: test/system exit
)

// SysBus is the serial/exit/entry device. All three addresses are
// write-only; reads are fatal at the dispatch site.
type SysBus struct {
	fd int // serial output file descriptor, normally stdout
}

// NewSysBus creates the system bus writing serial bytes to fd.
func NewSysBus(fd int) *SysBus {
	return &SysBus{fd: fd}
}

// Store implements Device.
//
//go:nosplit
func (b *SysBus) Store(addr uint64, width uint8, val uint64) (Outcome, error) {
	switch addr {
	case SerialAddr:
		if width != 1 {
			return OutcomeNone, ErrWidth
		}
		ch := byte(val)
		// The direct write syscall; this runs in signal context.
		unix.RawSyscall(unix.SYS_WRITE, uintptr(b.fd), uintptr(unsafe.Pointer(&ch)), 1)
		return OutcomeHandled, nil
	case EntryAddr:
		if width != 8 {
			return OutcomeNone, ErrWidth
		}
		return OutcomeEnter, nil
	case ExitAddr:
		if width != 1 && width != 4 {
			return OutcomeNone, ErrWidth
		}
		return OutcomeExit, nil
	}
	return OutcomeNone, nil
}

// Load implements Device. None of the bus addresses are readable.
//
//go:nosplit
func (b *SysBus) Load(addr uint64, width uint8) (uint64, Outcome, error) {
	switch addr {
	case SerialAddr, EntryAddr, ExitAddr:
		return 0, OutcomeNone, ErrRead
	}
	return 0, OutcomeNone, nil
}

var _ Device = (*SysBus)(nil)
