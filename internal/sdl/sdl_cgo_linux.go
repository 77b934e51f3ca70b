//go:build cgo

// Package sdl binds the parts of libSDL2 the framebuffer renderer needs.
// The binding goes through cgo; the rest of the harness only sees it
// through the fb.Sink interface. Without cgo a stub sink is built
// instead and opening the display fails at run time.
package sdl

/*
#cgo pkg-config: sdl2

#include <stdlib.h>

#include <SDL2/SDL.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/tinyrange/ume/internal/fb"
)

// textureFormat maps a framebuffer mode to the SDL texture format. Y8 and
// INDEXED are pre-expanded by the renderer, so both present as RGBA8888.
func textureFormat(mode fb.Mode) C.Uint32 {
	switch mode {
	case fb.ModeRGB332:
		return C.SDL_PIXELFORMAT_RGB332
	case fb.ModeRGB555:
		return C.SDL_PIXELFORMAT_RGB555
	case fb.ModeRGB24:
		return C.SDL_PIXELFORMAT_RGB24
	default:
		return C.SDL_PIXELFORMAT_RGBA8888
	}
}

func sdlError() string {
	return C.GoString(C.SDL_GetError())
}

// The event type lives in the first word of the SDL_Event union; for
// keyboard events the keysym starts at offset 16 with the sym at 20.
func eventType(ev *C.SDL_Event) uint32 {
	return *(*uint32)(unsafe.Pointer(ev))
}

func eventKeySym(ev *C.SDL_Event) int32 {
	return *(*int32)(unsafe.Pointer(uintptr(unsafe.Pointer(ev)) + 20))
}

// Window is an SDL2 window implementing fb.Sink.
type Window struct {
	win *C.SDL_Window
	ren *C.SDL_Renderer
	tex *C.SDL_Texture
}

// NewWindow returns an unopened sink.
func NewWindow() *Window { return &Window{} }

// Open implements fb.Sink.
func (w *Window) Open(mode fb.Mode, width, height int) error {
	if C.SDL_Init(C.SDL_INIT_VIDEO) != 0 {
		return fmt.Errorf("sdl: init: %s", sdlError())
	}
	if C.SDL_CreateWindowAndRenderer(C.int(width), C.int(height), 0, &w.win, &w.ren) != 0 {
		return fmt.Errorf("sdl: create window/renderer: %s", sdlError())
	}

	title := C.CString("ume")
	C.SDL_SetWindowTitle(w.win, title)
	C.free(unsafe.Pointer(title))

	w.tex = C.SDL_CreateTexture(w.ren, textureFormat(mode),
		C.SDL_TEXTUREACCESS_STREAMING, C.int(width), C.int(height))
	if w.tex == nil {
		return fmt.Errorf("sdl: create texture: %s", sdlError())
	}
	return nil
}

// Present implements fb.Sink.
func (w *Window) Present(pixels []byte, pitch int) error {
	if C.SDL_UpdateTexture(w.tex, nil, unsafe.Pointer(&pixels[0]), C.int(pitch)) != 0 {
		return fmt.Errorf("sdl: update texture: %s", sdlError())
	}
	C.SDL_RenderCopy(w.ren, w.tex, nil, nil)
	C.SDL_RenderPresent(w.ren)
	return nil
}

// Poll implements fb.Sink.
func (w *Window) Poll() (quit, more bool) {
	var ev C.SDL_Event
	if C.SDL_PollEvent(&ev) == 0 {
		return false, false
	}
	switch eventType(&ev) {
	case C.SDL_QUIT:
		return true, true
	case C.SDL_KEYUP:
		switch eventKeySym(&ev) {
		case C.SDLK_ESCAPE, C.SDLK_q:
			return true, true
		}
	}
	return false, true
}

// Close implements fb.Sink.
func (w *Window) Close() {
	if w.tex != nil {
		C.SDL_DestroyTexture(w.tex)
		w.tex = nil
	}
	if w.ren != nil {
		C.SDL_DestroyRenderer(w.ren)
		w.ren = nil
	}
	if w.win != nil {
		C.SDL_DestroyWindow(w.win)
		w.win = nil
	}
	C.SDL_Quit()
}

var _ fb.Sink = (*Window)(nil)
