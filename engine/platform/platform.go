package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/abyss/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	input    *core.Input
	events   *core.EventBus
	onResize []func(width, height uint32)
}

func New(input *core.Input, events *core.EventBus) (*Platform, error) {
	return &Platform{
		input:  input,
		events: events,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. Returns false once the window should close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// GetAbsoluteTime returns seconds since glfw initialization.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// GetRequiredExtensionNames lists the instance extensions the window system needs.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a surface for the window on the given Vulkan instance.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

// OnResize registers fn to run on every framebuffer size change.
func (p *Platform) OnResize(fn func(width, height uint32)) {
	p.onResize = append(p.onResize, fn)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat || p.input == nil {
		return
	}
	p.input.ProcessKey(translateKey(key), action == glfw.Press)
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if p.input == nil {
		return
	}
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	p.input.ProcessButton(b, action == glfw.Press)
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	if p.input != nil {
		p.input.ProcessMouseMove(xpos, ypos)
	}
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	if p.input != nil {
		p.input.ProcessMouseWheel(yoff)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	for _, fn := range p.onResize {
		fn(uint32(width), uint32(height))
	}
	if p.events != nil {
		p.events.Fire(core.EventContext{
			Type: core.EVENT_CODE_RESIZED,
			Data: core.ResizeEvent{Width: uint32(width), Height: uint32(height)},
		})
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	if p.events != nil {
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}
}

func translateKey(key glfw.Key) core.KeyCode {
	switch key {
	case glfw.KeyBackspace:
		return core.KEY_BACKSPACE
	case glfw.KeyTab:
		return core.KEY_TAB
	case glfw.KeyEnter:
		return core.KEY_ENTER
	case glfw.KeyLeftShift, glfw.KeyRightShift:
		return core.KEY_SHIFT
	case glfw.KeyLeftControl, glfw.KeyRightControl:
		return core.KEY_CONTROL
	case glfw.KeyEscape:
		return core.KEY_ESCAPE
	case glfw.KeySpace:
		return core.KEY_SPACE
	case glfw.KeyLeft:
		return core.KEY_LEFT
	case glfw.KeyUp:
		return core.KEY_UP
	case glfw.KeyRight:
		return core.KEY_RIGHT
	case glfw.KeyDown:
		return core.KEY_DOWN
	case glfw.KeyA:
		return core.KEY_A
	case glfw.KeyD:
		return core.KEY_D
	case glfw.KeyE:
		return core.KEY_E
	case glfw.KeyQ:
		return core.KEY_Q
	case glfw.KeyS:
		return core.KEY_S
	case glfw.KeyW:
		return core.KEY_W
	case glfw.KeyF1:
		return core.KEY_F1
	case glfw.KeyF2:
		return core.KEY_F2
	}
	return core.KEY_UNKNOWN
}
