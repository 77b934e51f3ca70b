//go:build !cgo || !linux

package sdl

import (
	"fmt"

	"github.com/tinyrange/ume/internal/fb"
)

// Window is the stub sink built when the SDL binding is unavailable.
// The harness itself stays CGO-free; only opening a display requires
// the real binding.
type Window struct{}

// NewWindow returns an unopened sink.
func NewWindow() *Window { return &Window{} }

// Open implements fb.Sink.
func (w *Window) Open(mode fb.Mode, width, height int) error {
	return fmt.Errorf("sdl: built without cgo; no display available")
}

// Present implements fb.Sink.
func (w *Window) Present(pixels []byte, pitch int) error { return nil }

// Poll implements fb.Sink.
func (w *Window) Poll() (quit, more bool) { return false, false }

// Close implements fb.Sink.
func (w *Window) Close() {}

var _ fb.Sink = (*Window)(nil)
