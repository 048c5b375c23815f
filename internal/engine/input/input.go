// Package input turns SDL2 events into viewer actions.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// Action is a viewer command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionTogglePause
	ActionSeekStart
	ActionSeekBack
	ActionSeekForward
	ActionToggleWireframe
	ActionFitCamera
	ActionToggleBounds
	ActionScreenshot
)

var actionNames = map[Action]string{
	ActionNone:            "none",
	ActionQuit:            "quit",
	ActionTogglePause:     "toggle-pause",
	ActionSeekStart:       "seek-start",
	ActionSeekBack:        "seek-back",
	ActionSeekForward:     "seek-forward",
	ActionToggleWireframe: "toggle-wireframe",
	ActionFitCamera:       "fit-camera",
	ActionToggleBounds:    "toggle-bounds",
	ActionScreenshot:      "screenshot",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Bindings maps scancodes to actions.
type Bindings map[sdl.Scancode]Action

// DefaultBindings returns the standard viewer key map.
func DefaultBindings() Bindings {
	return Bindings{
		sdl.SCANCODE_ESCAPE: ActionQuit,
		sdl.SCANCODE_SPACE:  ActionTogglePause,
		sdl.SCANCODE_HOME:   ActionSeekStart,
		sdl.SCANCODE_LEFT:   ActionSeekBack,
		sdl.SCANCODE_RIGHT:  ActionSeekForward,
		sdl.SCANCODE_W:      ActionToggleWireframe,
		sdl.SCANCODE_F:      ActionFitCamera,
		sdl.SCANCODE_B:      ActionToggleBounds,
		sdl.SCANCODE_P:      ActionScreenshot,
	}
}

// Frame is everything that happened since the previous Update.
type Frame struct {
	Quit    bool
	Actions []Action
	DragX   float32 // Mouse motion while the left button is held
	DragY   float32
	Zoom    float32 // Wheel steps, positive away from the user

	Resized       bool
	Width, Height int
}

// Input polls SDL events.
type Input struct {
	bindings Bindings
	dragging bool
	frame    Frame
}

// New creates an input handler with the given bindings.
func New(bindings Bindings) *Input {
	return &Input{
		bindings: bindings,
		frame:    Frame{Actions: make([]Action, 0, 4)},
	}
}

// Update polls SDL events and returns the collected frame. The returned
// value is reused by the next call.
func (i *Input) Update() *Frame {
	i.frame.Quit = false
	i.frame.Actions = i.frame.Actions[:0]
	i.frame.DragX, i.frame.DragY, i.frame.Zoom = 0, 0, 0
	i.frame.Resized = false

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		i.handle(event)
	}
	return &i.frame
}

func (i *Input) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		i.frame.Quit = true

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_RESIZED {
			i.frame.Resized = true
			i.frame.Width = int(e.Data1)
			i.frame.Height = int(e.Data2)
		}

	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
			return
		}
		if a := i.bindings[e.Keysym.Scancode]; a != ActionNone {
			i.frame.Actions = append(i.frame.Actions, a)
			if a == ActionQuit {
				i.frame.Quit = true
			}
		}

	case *sdl.MouseButtonEvent:
		if e.Button == sdl.BUTTON_LEFT {
			i.dragging = e.Type == sdl.MOUSEBUTTONDOWN
		}

	case *sdl.MouseMotionEvent:
		if i.dragging {
			i.frame.DragX += float32(e.XRel)
			i.frame.DragY += float32(e.YRel)
		}

	case *sdl.MouseWheelEvent:
		i.frame.Zoom += float32(e.Y)
	}
}
