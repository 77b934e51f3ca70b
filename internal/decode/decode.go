// Package decode extracts the memory-access shape of a faulting RV64
// load or store instruction. It is used from the trap handler, so every
// path is allocation free and all errors are predeclared sentinels.
package decode

import (
	"errors"
	"unsafe"
)

var (
	// ErrUnsupported is returned for any faulting encoding that is not a
	// plain integer load or store.
	ErrUnsupported = errors.New("decode: unsupported faulting instruction")
)

// Standard opcodes (bits [6:0], both low bits set).
const (
	opLoad  = 0b0000011
	opStore = 0b0100011
)

// Access describes the memory operation performed by a faulting
// instruction: direction, access width in bytes and the register
// carrying the value (rs2 for stores) or receiving it (rd for loads).
type Access struct {
	Store      bool
	Compressed bool
	Width      uint8
	Reg        uint8
}

// Len returns the instruction length in bytes, used to advance the PC
// past a handled MMIO access.
func (a Access) Len() uint64 {
	if a.Compressed {
		return 2
	}
	return 4
}

// Compressed instruction field extraction, quadrant 0 only. The 3-bit
// register fields map to x8-x15.
func cFunct3(insn uint16) uint16 { return (insn >> 13) & 0x7 }
func cRd_(insn uint16) uint8     { return uint8(((insn >> 2) & 0x7) + 8) }
func cRs2_(insn uint16) uint8    { return uint8(((insn >> 2) & 0x7) + 8) }

// Word decodes a raw instruction word. For compressed encodings only the
// low 16 bits are examined.
//
//go:nosplit
func Word(word uint32) (Access, error) {
	if word&0x3 == 0x3 {
		return stdWord(word)
	}

	insn := uint16(word)
	if insn&0x3 != 0b00 {
		// Quadrants 1 and 2 hold no memory accesses we recognise
		// (stack-pointer relative forms never target MMIO).
		return Access{}, ErrUnsupported
	}

	switch cFunct3(insn) {
	case 0b010: // C.LW
		return Access{Compressed: true, Width: 4, Reg: cRd_(insn)}, nil
	case 0b011: // C.LD
		return Access{Compressed: true, Width: 8, Reg: cRd_(insn)}, nil
	case 0b110: // C.SW
		return Access{Store: true, Compressed: true, Width: 4, Reg: cRs2_(insn)}, nil
	case 0b111: // C.SD
		return Access{Store: true, Compressed: true, Width: 8, Reg: cRs2_(insn)}, nil
	}
	return Access{}, ErrUnsupported
}

//go:nosplit
func stdWord(word uint32) (Access, error) {
	funct3 := (word >> 12) & 0x7

	switch word & 0x7f {
	case opStore:
		// SB, SH, SW, SD. funct3 above 3 is not a store encoding.
		if funct3 > 0b011 {
			return Access{}, ErrUnsupported
		}
		return Access{
			Store: true,
			Width: 1 << funct3,
			Reg:   uint8((word >> 20) & 0x1f),
		}, nil
	case opLoad:
		// LB..LD plus the unsigned variants; LBU/LHU/LWU share the
		// width of their signed counterparts.
		if funct3 == 0b111 {
			return Access{}, ErrUnsupported
		}
		return Access{
			Width: 1 << (funct3 & 0b011),
			Reg:   uint8((word >> 7) & 0x1f),
		}, nil
	}
	return Access{}, ErrUnsupported
}

// At decodes the instruction the given PC points at. The low halfword is
// read first so that a compressed instruction at the end of a mapping
// never causes an out-of-bounds read of the upper half.
//
//go:nosplit
func At(pc uintptr) (Access, error) {
	lo := *(*uint16)(unsafe.Pointer(pc))
	if lo&0x3 != 0x3 {
		return Word(uint32(lo))
	}
	hi := *(*uint16)(unsafe.Pointer(pc + 2))
	return Word(uint32(lo) | uint32(hi)<<16)
}
