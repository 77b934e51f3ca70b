package fb

import (
	"fmt"
	"os"
	"runtime"

	"github.com/tinyrange/ume/internal/status"
)

// Sink is the pixel sink the renderer draws into. Implementations own
// the window, texture and event queue; the renderer treats them as
// opaque.
type Sink interface {
	// Open creates the render surface for the given mode and size.
	Open(mode Mode, width, height int) error
	// Present pushes one frame. For ModeY8 and ModeIndexed the pixels
	// are pre-expanded 32-bit RGBA; for the direct modes they are the
	// guest's own bytes at the mode's pitch.
	Present(pixels []byte, pitch int) error
	// Poll drains one pending event, reporting whether the user asked
	// to close the display.
	Poll() (quit, more bool)
	// Close destroys the render surface.
	Close()
}

// Renderer copies the pixel buffer to a sink on a background goroutine.
// Pixel reads are unsynchronised; a torn frame is visually tolerable.
type Renderer struct {
	dev  *Device
	sink Sink

	stop chan struct{}
	done chan struct{}
}

// NewRenderer creates a renderer for dev drawing into sink.
func NewRenderer(dev *Device, sink Sink) *Renderer {
	return &Renderer{
		dev:  dev,
		sink: sink,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the render loop.
func (r *Renderer) Start() {
	go r.run()
}

// Stop requests cooperative shutdown and joins the render goroutine.
func (r *Renderer) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Renderer) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Renderer) run() {
	defer close(r.done)

	// Wait for the guest to flip the enable register.
	for !r.dev.Enabled() {
		if r.stopped() {
			return
		}
		runtime.Gosched()
	}

	mode := Mode(r.dev.mode.Load())
	width := int(r.dev.resx.Load())
	height := int(r.dev.resy.Load())

	if !mode.Valid() || width <= 0 || height <= 0 || width > MaxDim || height > MaxDim {
		fmt.Fprintf(os.Stderr, "framebuffer: invalid configuration mode=%d %dx%d\n",
			mode, width, height)
		os.Exit(status.FramebufferError)
	}

	if err := r.sink.Open(mode, width, height); err != nil {
		fmt.Fprintf(os.Stderr, "framebuffer: %v\n", err)
		os.Exit(status.FramebufferError)
	}
	defer r.sink.Close()

	var staging []byte
	if mode == ModeY8 || mode == ModeIndexed {
		staging = make([]byte, width*height*4)
	}
	var palette [paletteLen]uint32

	for {
		if r.stopped() {
			return
		}

		for {
			quit, more := r.sink.Poll()
			if quit {
				// Escape or 'q': switch the display off and end the
				// render thread; the guest keeps running.
				r.dev.enable.Store(0)
				return
			}
			if !more {
				break
			}
		}

		src := r.dev.pixels[:width*height*mode.BytesPerPixel()]
		switch mode {
		case ModeY8:
			expandY8(src, staging)
			r.sink.Present(staging, width*4)
		case ModeIndexed:
			r.dev.snapshotPalette(&palette)
			expandIndexed(src, &palette, staging)
			r.sink.Present(staging, width*4)
		default:
			r.sink.Present(src, width*mode.BytesPerPixel())
		}
	}
}
