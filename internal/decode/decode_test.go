package decode

import (
	"testing"
	"unsafe"

	"github.com/tinyrange/ume/internal/asm"
)

func mustWord(t *testing.T, p *asm.Program) uint32 {
	t.Helper()
	code := p.Bytes()
	if len(code) < 4 {
		// Compressed instructions occupy the low half.
		return uint32(code[0]) | uint32(code[1])<<8
	}
	return uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
}

func TestWordStores(t *testing.T) {
	for _, tt := range []struct {
		desc       string
		emit       func(p *asm.Program) error
		width      uint8
		reg        uint8
		compressed bool
	}{
		{desc: "sb", emit: func(p *asm.Program) error { return p.Store(1, asm.X10, asm.X0, 0x200) }, width: 1, reg: 10},
		{desc: "sh", emit: func(p *asm.Program) error { return p.Store(2, asm.X5, asm.X1, 0) }, width: 2, reg: 5},
		{desc: "sw", emit: func(p *asm.Program) error { return p.Store(4, asm.X0, asm.X0, 0x278) }, width: 4, reg: 0},
		{desc: "sd", emit: func(p *asm.Program) error { return p.Store(8, asm.X31, asm.X2, -8) }, width: 8, reg: 31},
		{desc: "c.sw", emit: func(p *asm.Program) error { return p.CSW(asm.X8, asm.X9) }, width: 4, reg: 8, compressed: true},
		{desc: "c.sd", emit: func(p *asm.Program) error { return p.CSD(asm.X15, asm.X9) }, width: 8, reg: 15, compressed: true},
	} {
		var p asm.Program
		if err := tt.emit(&p); err != nil {
			t.Fatalf("%s: emit: %v", tt.desc, err)
		}
		acc, err := Word(mustWord(t, &p))
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.desc, err)
		}
		if !acc.Store {
			t.Errorf("%s: expected a store", tt.desc)
		}
		if acc.Width != tt.width {
			t.Errorf("%s: width = %d, want %d", tt.desc, acc.Width, tt.width)
		}
		if acc.Reg != tt.reg {
			t.Errorf("%s: reg = %d, want %d", tt.desc, acc.Reg, tt.reg)
		}
		if acc.Compressed != tt.compressed {
			t.Errorf("%s: compressed = %v, want %v", tt.desc, acc.Compressed, tt.compressed)
		}
	}
}

func TestWordLoads(t *testing.T) {
	for _, tt := range []struct {
		desc       string
		emit       func(p *asm.Program) error
		width      uint8
		reg        uint8
		compressed bool
	}{
		{desc: "lb", emit: func(p *asm.Program) error { return p.Load(1, asm.X7, asm.X0, 0) }, width: 1, reg: 7},
		{desc: "lw", emit: func(p *asm.Program) error { return p.Load(4, asm.X10, asm.X9, 4) }, width: 4, reg: 10},
		{desc: "ld", emit: func(p *asm.Program) error { return p.Load(8, asm.X1, asm.X2, 16) }, width: 8, reg: 1},
		{desc: "c.lw", emit: func(p *asm.Program) error { return p.CLW(asm.X10, asm.X9) }, width: 4, reg: 10, compressed: true},
		{desc: "c.ld", emit: func(p *asm.Program) error { return p.CLD(asm.X8, asm.X15) }, width: 8, reg: 8, compressed: true},
	} {
		var p asm.Program
		if err := tt.emit(&p); err != nil {
			t.Fatalf("%s: emit: %v", tt.desc, err)
		}
		acc, err := Word(mustWord(t, &p))
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.desc, err)
		}
		if acc.Store {
			t.Errorf("%s: expected a load", tt.desc)
		}
		if acc.Width != tt.width {
			t.Errorf("%s: width = %d, want %d", tt.desc, acc.Width, tt.width)
		}
		if acc.Reg != tt.reg {
			t.Errorf("%s: reg = %d, want %d", tt.desc, acc.Reg, tt.reg)
		}
		if acc.Compressed != tt.compressed {
			t.Errorf("%s: compressed = %v, want %v", tt.desc, acc.Compressed, tt.compressed)
		}
	}
}

func TestWordUnsignedLoadWidths(t *testing.T) {
	// LBU/LHU/LWU share the width of the signed forms.
	for _, tt := range []struct {
		desc   string
		funct3 uint32
		width  uint8
	}{
		{desc: "lbu", funct3: 0b100, width: 1},
		{desc: "lhu", funct3: 0b101, width: 2},
		{desc: "lwu", funct3: 0b110, width: 4},
	} {
		word := tt.funct3<<12 | 10<<7 | opLoad
		acc, err := Word(word)
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.desc, err)
		}
		if acc.Width != tt.width {
			t.Errorf("%s: width = %d, want %d", tt.desc, acc.Width, tt.width)
		}
	}
}

func TestWordRejectsNonMemory(t *testing.T) {
	for _, tt := range []struct {
		desc string
		word uint32
	}{
		{desc: "add", word: 0x00b50533},  // add a0, a0, a1
		{desc: "addi", word: 0x04100513}, // addi a0, zero, 0x41
		{desc: "jal", word: 0x0000006f},  // jal zero, 0
		{desc: "store funct3=4", word: 0x4<<12 | opStore},
		{desc: "load funct3=7", word: 0x7<<12 | opLoad},
		{desc: "c.addi", word: 0x0505},     // quadrant 1
		{desc: "c.fld", word: 0x2000},      // quadrant 0, funct3=001
		{desc: "c.addi4spn", word: 0x0040}, // quadrant 0, funct3=000
	} {
		if _, err := Word(tt.word); err == nil {
			t.Errorf("%s: expected an error for %#x", tt.desc, tt.word)
		}
	}
}

func TestAtReadsCompressedTail(t *testing.T) {
	// A compressed store placed at the very end of the buffer; At must
	// not read past its two bytes.
	var p asm.Program
	if err := p.CSD(asm.X8, asm.X9); err != nil {
		t.Fatal(err)
	}
	code := p.Bytes()

	acc, err := At(uintptr(unsafe.Pointer(&code[0])))
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if !acc.Store || acc.Width != 8 || !acc.Compressed {
		t.Errorf("unexpected access %+v", acc)
	}
	if acc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", acc.Len())
	}
}

func TestAtStandard(t *testing.T) {
	var p asm.Program
	if err := p.Store(1, asm.X10, asm.X0, 0x200); err != nil {
		t.Fatal(err)
	}
	code := p.Bytes()

	acc, err := At(uintptr(unsafe.Pointer(&code[0])))
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if !acc.Store || acc.Width != 1 || acc.Reg != 10 {
		t.Errorf("unexpected access %+v", acc)
	}
	if acc.Len() != 4 {
		t.Errorf("Len() = %d, want 4", acc.Len())
	}
}
