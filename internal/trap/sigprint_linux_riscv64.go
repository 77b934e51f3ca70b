//go:build linux && riscv64

package trap

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/ume/internal/status"
)

// Diagnostics raised inside the signal handler cannot allocate or take
// locks; they are formatted into a stack buffer and written with the raw
// write syscall, then the process exits immediately. Unwinding out of a
// signal handler cannot be relied on.

const hexDigits = "0123456789abcdef"

//go:nosplit
func rawWrite(fd uintptr, b []byte) {
	if len(b) == 0 {
		return
	}
	unix.RawSyscall(unix.SYS_WRITE, fd, uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)))
}

//go:nosplit
func rawExit(code int) {
	unix.RawSyscall(unix.SYS_EXIT_GROUP, uintptr(code), 0, 0)
}

//go:nosplit
func appendStr(buf []byte, s string) []byte {
	for i := 0; i < len(s) && len(buf) < cap(buf); i++ {
		buf = append(buf, s[i])
	}
	return buf
}

//go:nosplit
func appendHex(buf []byte, v uint64) []byte {
	var tmp [16]byte
	n := 0
	if v == 0 {
		tmp[0] = '0'
		n = 1
	}
	for ; v != 0; v >>= 4 {
		tmp[n] = hexDigits[v&0xf]
		n++
	}
	buf = appendStr(buf, "0x")
	for i := n - 1; i >= 0; i-- {
		if len(buf) < cap(buf) {
			buf = append(buf, tmp[i])
		}
	}
	return buf
}

//go:nosplit
func appendUdec(buf []byte, v uint64) []byte {
	var tmp [20]byte
	n := 0
	if v == 0 {
		tmp[0] = '0'
		n = 1
	}
	for ; v != 0; v /= 10 {
		tmp[n] = byte('0' + v%10)
		n++
	}
	for i := n - 1; i >= 0; i-- {
		if len(buf) < cap(buf) {
			buf = append(buf, tmp[i])
		}
	}
	return buf
}

// crash writes msg and terminates with SigHandlerFailure.
//
//go:nosplit
func crash(msg string) {
	var storage [160]byte
	buf := storage[:0]
	buf = appendStr(buf, msg)
	buf = appendStr(buf, "\n")
	rawWrite(2, buf)
	rawExit(status.SigHandlerFailure)
}

// fatalAccess reports an MMIO access no device claimed:
// "unexpected write of 4 to 0x300 at 0x10024".
//
//go:nosplit
func fatalAccess(dir string, width uint8, addr, pc uint64) {
	var storage [160]byte
	buf := storage[:0]
	buf = appendStr(buf, "unexpected ")
	buf = appendStr(buf, dir)
	buf = appendStr(buf, " of ")
	buf = appendUdec(buf, uint64(width))
	buf = appendStr(buf, " to ")
	buf = appendHex(buf, addr)
	buf = appendStr(buf, " at ")
	buf = appendHex(buf, pc)
	buf = appendStr(buf, "\n")
	rawWrite(2, buf)
	rawExit(status.SigHandlerFailure)
}
