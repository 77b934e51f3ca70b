// Package fb implements the memory-mapped framebuffer device: a directly
// mapped pixel buffer, a small control/palette MMIO window and a
// background renderer feeding a pixel sink.
package fb

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/tinyrange/ume/internal/mmio"
)

// Fixed guest-visible addresses, compatible with the rv64-emu
// framebuffer layout.
const (
	ControlBase = 0x800
	controlSize = 16 // enable, mode, resx, resy
	PaletteBase = ControlBase + controlSize
	paletteLen  = 256
	PaletteEnd  = PaletteBase + paletteLen*4

	PixelBase = 0x1000000

	// MaxDim bounds both axes; the pixel buffer is sized for the worst
	// case of 32-bit pixels.
	MaxDim       = 4096
	maxPixelSize = 4
	PixelBufSize = MaxDim * MaxDim * maxPixelSize
)

// Mode selects the pixel format of the buffer.
type Mode uint32

const (
	ModeY8 Mode = iota
	ModeIndexed
	ModeRGB332
	ModeRGB555
	ModeRGB24
	ModeRGBA32
	modeCount
)

// BytesPerPixel returns the guest-side pixel pitch of the mode.
func (m Mode) BytesPerPixel() int {
	switch m {
	case ModeY8, ModeIndexed, ModeRGB332:
		return 1
	case ModeRGB555:
		return 2
	case ModeRGB24:
		return 3
	default:
		return 4
	}
}

// Valid reports whether m names a defined display mode.
func (m Mode) Valid() bool { return m < modeCount }

// Device holds the control window state and the pixel buffer. Control
// fields are 32-bit atomics: the trap handler writes them from the guest
// thread while the renderer polls them.
type Device struct {
	enable atomic.Uint32
	mode   atomic.Uint32
	resx   atomic.Uint32
	resy   atomic.Uint32

	palette [paletteLen]atomic.Uint32

	pixels []byte
}

// New creates the device over an existing pixel buffer mapping. The
// mapping must be PixelBufSize bytes at PixelBase; tests may pass any
// buffer of that size.
func New(pixels []byte) *Device {
	return &Device{pixels: pixels}
}

// Pixels returns the raw pixel buffer.
func (d *Device) Pixels() []byte { return d.pixels }

// Enabled reports whether the guest has switched the display on.
func (d *Device) Enabled() bool { return d.enable.Load() != 0 }

// Store implements mmio.Device for the control/palette window. Writes
// must be 4-byte aligned and exactly 4 bytes wide.
//
//go:nosplit
func (d *Device) Store(addr uint64, width uint8, val uint64) (mmio.Outcome, error) {
	if addr < ControlBase || addr+uint64(width) > PaletteEnd {
		return mmio.OutcomeNone, nil
	}
	if width != 4 {
		return mmio.OutcomeNone, mmio.ErrWidth
	}
	if addr%4 != 0 {
		return mmio.OutcomeNone, mmio.ErrAlign
	}

	v := uint32(val)
	switch addr - ControlBase {
	case 0x0:
		d.enable.Store(v)
	case 0x4:
		d.mode.Store(v)
	case 0x8:
		d.resx.Store(v)
	case 0xc:
		d.resy.Store(v)
	default:
		d.palette[(addr-PaletteBase)>>2].Store(v)
	}
	return mmio.OutcomeHandled, nil
}

// Load implements mmio.Device for the control/palette window.
//
//go:nosplit
func (d *Device) Load(addr uint64, width uint8) (uint64, mmio.Outcome, error) {
	if addr < ControlBase || addr+uint64(width) > PaletteEnd {
		return 0, mmio.OutcomeNone, nil
	}
	if width != 4 {
		return 0, mmio.OutcomeNone, mmio.ErrWidth
	}
	if addr%4 != 0 {
		return 0, mmio.OutcomeNone, mmio.ErrAlign
	}

	var v uint32
	switch addr - ControlBase {
	case 0x0:
		v = d.enable.Load()
	case 0x4:
		v = d.mode.Load()
	case 0x8:
		v = d.resx.Load()
	case 0xc:
		v = d.resy.Load()
	default:
		v = d.palette[(addr-PaletteBase)>>2].Load()
	}
	return uint64(v), mmio.OutcomeHandled, nil
}

// snapshotPalette copies the palette for one frame of rendering.
func (d *Device) snapshotPalette(out *[paletteLen]uint32) {
	for i := range d.palette {
		out[i] = d.palette[i].Load()
	}
}

// expandY8 widens luminance bytes to 32-bit RGBA values, v becoming
// (v<<24)|(v<<16)|(v<<8)|0xFF.
func expandY8(src []byte, dst []byte) {
	for i, v := range src {
		raw := uint32(v)
		binary.LittleEndian.PutUint32(dst[i*4:],
			raw<<24|raw<<16|raw<<8|0xff)
	}
}

// expandIndexed resolves each byte through the palette.
func expandIndexed(src []byte, palette *[paletteLen]uint32, dst []byte) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], palette[v])
	}
}

var _ mmio.Device = (*Device)(nil)
