//go:build linux

package guest

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapFixed maps size bytes at exactly addr. unix.Mmap has no address
// parameter, so this goes through the raw syscall. MAP_FIXED_NOREPLACE in
// flags makes silently-overlapping mappings fail with EEXIST instead of
// clobbering whatever lives there.
func mmapFixed(addr, size uintptr, prot, flags, fd int, off int64) ([]byte, error) {
	r0, _, errno := unix.Syscall6(unix.SYS_MMAP,
		addr, size, uintptr(prot), uintptr(flags), uintptr(fd), uintptr(off))
	if errno != 0 {
		return nil, errno
	}
	if r0 != addr {
		// MAP_FIXED_NOREPLACE on ancient kernels degrades to a hint;
		// treat a mapping anywhere else as an overlap.
		munmapRaw(r0, size)
		return nil, unix.EEXIST
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(r0)), size), nil
}

// munmapRaw releases a mapping created by mmapFixed.
func munmapRaw(addr, size uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// MapAnon maps size bytes of zeroed read-write memory at exactly addr.
// The framebuffer pixel buffer is created this way so that guest pixel
// writes never trap.
func MapAnon(addr, size uintptr) ([]byte, error) {
	return mmapFixed(addr, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE, -1, 0)
}

// Unmap releases a mapping created by MapAnon.
func Unmap(addr, size uintptr) error {
	return munmapRaw(addr, size)
}
