//go:build linux

// Package guest validates a statically linked RV64 ELF executable and
// materialises its PT_LOAD segments at their requested virtual addresses
// inside the host process.
package guest

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// pageSize is the only supported host page size. RISC-V Linux uses 4K
// pages; anything else would break the fixed MMIO layout.
const pageSize = 4096

// ErrHostEnv marks failures of the host environment rather than the
// input image; callers exit with AbnormalTermination for these.
var ErrHostEnv = errors.New("guest: host environment")

// Segment is one materialised PT_LOAD region.
type Segment struct {
	Addr       uintptr
	Size       uintptr
	Prot       int
	FileBacked bool
}

// Image is a loaded guest executable. It owns its segment mappings and
// the read-only mapping of the ELF file itself; Close releases both.
type Image struct {
	EntryPC  uint64
	Segments []Segment

	file    *os.File
	fileMap []byte
}

// Load opens, validates and maps the executable at path.
func Load(path string) (*Image, error) {
	if unix.Getpagesize() != pageSize {
		return nil, fmt.Errorf("%w: unexpected page size %d", ErrHostEnv, unix.Getpagesize())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("guest: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("guest: stat %s: %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("guest: %s is a directory", path)
	}

	fileMap, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("guest: mmap %s: %w", path, err)
	}

	img := &Image{file: f, fileMap: fileMap}
	if err := img.load(); err != nil {
		img.Close()
		return nil, err
	}
	return img, nil
}

// load validates the ELF identification and headers, then maps every
// PT_LOAD segment.
func (img *Image) load() error {
	hdr := img.fileMap
	if len(hdr) < 64 {
		return fmt.Errorf("guest: file too small for an ELF header")
	}
	if !bytes.Equal(hdr[:4], []byte(elf.ELFMAG)) {
		return fmt.Errorf("guest: invalid ELF identifier")
	}
	if elf.Version(hdr[elf.EI_VERSION]) != elf.EV_CURRENT {
		return fmt.Errorf("guest: invalid ELF version")
	}
	if elf.Class(hdr[elf.EI_CLASS]) != elf.ELFCLASS64 {
		return fmt.Errorf("guest: unsupported ELF class")
	}
	if elf.Data(hdr[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return fmt.Errorf("guest: not a little-endian ELF")
	}

	f, err := elf.NewFile(bytes.NewReader(img.fileMap))
	if err != nil {
		return fmt.Errorf("guest: parse ELF: %w", err)
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC {
		return fmt.Errorf("guest: not an executable file")
	}
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("guest: not a RISC-V ELF")
	}
	if f.Version != elf.EV_CURRENT {
		return fmt.Errorf("guest: ELF version mismatch")
	}
	if len(f.Progs) == 0 {
		return fmt.Errorf("guest: no program headers present")
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if err := img.mapSegment(p); err != nil {
			return err
		}
	}

	img.EntryPC = f.Entry
	return nil
}

func (img *Image) mapSegment(p *elf.Prog) error {
	prot := 0
	if p.Flags&elf.PF_R != 0 {
		prot |= unix.PROT_READ
	}
	if p.Flags&elf.PF_W != 0 {
		prot |= unix.PROT_WRITE
	}
	if p.Flags&elf.PF_X != 0 {
		prot |= unix.PROT_EXEC
	}

	pageBase := uintptr(p.Vaddr) &^ (pageSize - 1)
	off := uintptr(p.Vaddr) - pageBase

	if prot&unix.PROT_WRITE != 0 {
		// Writable segments are backed by anonymous memory and seeded by
		// copying the file region; p_memsz beyond p_filesz stays zero.
		size := uintptr(p.Memsz) + off
		mem, err := mmapFixed(pageBase, size, prot,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE, -1, 0)
		if err != nil {
			return mapError(p, err)
		}
		copy(mem[off:], img.fileMap[p.Off:p.Off+p.Filesz])
		img.Segments = append(img.Segments, Segment{Addr: pageBase, Size: size, Prot: prot})
		slog.Debug("guest: mapped segment", "vaddr", fmt.Sprintf("%#x", p.Vaddr),
			"size", size, "writable", true)
		return nil
	}

	if p.Filesz != p.Memsz {
		return fmt.Errorf("guest: filesz != memsz on non-writable segment at %#x", p.Vaddr)
	}
	if off != 0 {
		return fmt.Errorf("guest: non-writable segment at %#x is not page-aligned", p.Vaddr)
	}

	_, err := mmapFixed(uintptr(p.Vaddr), uintptr(p.Filesz), prot,
		unix.MAP_PRIVATE|unix.MAP_FIXED_NOREPLACE, int(img.file.Fd()), int64(p.Off))
	if err != nil {
		return mapError(p, err)
	}
	img.Segments = append(img.Segments, Segment{
		Addr: uintptr(p.Vaddr), Size: uintptr(p.Filesz), Prot: prot, FileBacked: true,
	})
	slog.Debug("guest: mapped segment", "vaddr", fmt.Sprintf("%#x", p.Vaddr),
		"size", p.Filesz, "writable", false)
	return nil
}

// Close unmaps every segment and the backing file mapping.
func (img *Image) Close() error {
	for _, s := range img.Segments {
		if err := munmapRaw(s.Addr, s.Size); err != nil {
			slog.Error("guest: unmap segment", "addr", fmt.Sprintf("%#x", s.Addr), "error", err)
		}
	}
	img.Segments = nil

	if img.fileMap != nil {
		if err := unix.Munmap(img.fileMap); err != nil {
			slog.Error("guest: unmap file", "error", err)
		}
		img.fileMap = nil
	}
	if img.file != nil {
		err := img.file.Close()
		img.file = nil
		return err
	}
	return nil
}

func mapError(p *elf.Prog, err error) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return fmt.Errorf("guest: mapping segment at %#x failed: %w", p.Vaddr, err)
	}
	return fmt.Errorf("guest: mapping segment at %#x failed: %s - %w",
		p.Vaddr, unix.ErrnoName(errno), errno)
}
