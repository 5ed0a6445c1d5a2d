// Package sdlwindow is the SDL2 display backend.
//
// Every call must come from the main OS thread; the entry point locks the
// main goroutine to it in init.
package sdlwindow

import (
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/e7canasta/sensor-display/display"
)

// DefaultTitle is the window title.
const DefaultTitle = "Output"

// Window shows frames in a resizable SDL2 window.
type Window struct {
	window   *sdl.Window
	renderer *sdl.Renderer

	// texture is (re)created whenever the frame size changes
	texture *sdl.Texture
	texW    int
	texH    int

	closeOnce sync.Once
	closeErr  error
}

// New opens the window with an initial size of width x height.
func New(title string, width, height int) (*Window, error) {
	if title == "" {
		title = DefaultTitle
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdlwindow: failed to initialize SDL2: %v", err)
	}

	window, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("sdlwindow: failed to create window: %v", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		_ = window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("sdlwindow: failed to create renderer: %v", err)
	}

	// scale frames to the window, keeping aspect ratio
	_ = renderer.SetLogicalSize(int32(width), int32(height))

	slog.Info("sdlwindow: window opened", "title", title, "width", width, "height", height)

	return &Window{window: window, renderer: renderer}, nil
}

// Show uploads img to the streaming texture and presents it. The overlay is
// already drawn on img, so lines is not used.
func (w *Window) Show(img *image.RGBA, _ []string) error {
	b := img.Bounds()
	if err := w.ensureTexture(b.Dx(), b.Dy()); err != nil {
		return err
	}

	// PIXELFORMAT_ABGR8888 matches image.RGBA byte order on little endian
	if err := w.texture.Update(nil, img.Pix, img.Stride); err != nil {
		return fmt.Errorf("sdlwindow: texture update: %v", err)
	}
	if err := w.renderer.Clear(); err != nil {
		return fmt.Errorf("sdlwindow: clear: %v", err)
	}
	if err := w.renderer.Copy(w.texture, nil, nil); err != nil {
		return fmt.Errorf("sdlwindow: copy: %v", err)
	}
	w.renderer.Present()

	return nil
}

func (w *Window) ensureTexture(width, height int) error {
	if w.texture != nil && w.texW == width && w.texH == height {
		return nil
	}
	if w.texture != nil {
		_ = w.texture.Destroy()
		w.texture = nil
	}

	texture, err := w.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_ABGR8888), int(sdl.TEXTUREACCESS_STREAMING), int32(width), int32(height))
	if err != nil {
		return fmt.Errorf("sdlwindow: failed to create texture: %v", err)
	}
	_ = w.renderer.SetLogicalSize(int32(width), int32(height))

	w.texture = texture
	w.texW = width
	w.texH = height
	return nil
}

// Poll drains pending window events. Key is the last key pressed in this
// poll, lower-cased ("q", "escape").
func (w *Window) Poll() display.Input {
	var in display.Input

	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch ev := ev.(type) {
		case *sdl.QuitEvent:
			in.Quit = true

		case *sdl.KeyboardEvent:
			if ev.Type == sdl.KEYDOWN && ev.Repeat == 0 {
				in.Key = strings.ToLower(sdl.GetKeyName(ev.Keysym.Sym))
			}
		}
	}

	return in
}

// Close destroys the window and shuts SDL down. Only the first call has an
// effect.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		if w.texture != nil {
			_ = w.texture.Destroy()
		}
		if w.renderer != nil {
			_ = w.renderer.Destroy()
		}
		if w.window != nil {
			w.closeErr = w.window.Destroy()
		}
		sdl.Quit()
		slog.Info("sdlwindow: window closed")
	})
	return w.closeErr
}
