package asm

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

const (
	ehdrSize = 64
	phdrSize = 56
	pageSize = 4096
)

// BuildExec wraps code into a minimal ET_EXEC RV64 little-endian image
// with a single read-execute PT_LOAD at vaddr. The segment is placed at
// file offset 4096 so that both the virtual address and the file offset
// satisfy the page alignment the loader requires for non-writable
// segments. The entry point is vaddr.
func BuildExec(code []byte, vaddr uint64) ([]byte, error) {
	if vaddr%pageSize != 0 {
		return nil, fmt.Errorf("asm: vaddr %#x is not page aligned", vaddr)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("asm: empty code segment")
	}

	le := binary.LittleEndian
	img := make([]byte, pageSize+len(code))

	// ELF header.
	copy(img, elf.ELFMAG)
	img[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	img[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	img[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(img[16:], uint16(elf.ET_EXEC))
	le.PutUint16(img[18:], uint16(elf.EM_RISCV))
	le.PutUint32(img[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(img[24:], vaddr)    // e_entry
	le.PutUint64(img[32:], ehdrSize) // e_phoff
	le.PutUint16(img[52:], ehdrSize) // e_ehsize
	le.PutUint16(img[54:], phdrSize) // e_phentsize
	le.PutUint16(img[56:], 1)        // e_phnum

	// Program header: one PT_LOAD, R+X, filesz == memsz.
	ph := img[ehdrSize:]
	le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
	le.PutUint64(ph[8:], pageSize)           // p_offset
	le.PutUint64(ph[16:], vaddr)             // p_vaddr
	le.PutUint64(ph[24:], vaddr)             // p_paddr
	le.PutUint64(ph[32:], uint64(len(code))) // p_filesz
	le.PutUint64(ph[40:], uint64(len(code))) // p_memsz
	le.PutUint64(ph[48:], pageSize)          // p_align

	copy(img[pageSize:], code)
	return img, nil
}
