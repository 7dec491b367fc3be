package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusStopsWhenHandled(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	bus.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "first")
		return true
	})
	bus.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "second")
		return false
	})

	assert.True(t, bus.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: ResizeEvent{Width: 1, Height: 2}}))
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	fired := 0
	id := bus.Register(EVENT_CODE_APPLICATION_QUIT, func(EventContext) bool {
		fired++
		return false
	})

	bus.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, id))
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, id))
	bus.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})

	assert.Equal(t, 1, fired)
}

func TestInputFiresOnChangeOnly(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		pressed++
		assert.Equal(t, KEY_W, ctx.Data.(KeyEvent).KeyCode)
		return false
	})

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, in.KeyPressed(KEY_W))

	in.Update()
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.KeyPressed(KEY_W))

	in.ProcessMouseMove(10, 5)
	in.Update()
	in.ProcessMouseMove(13, 1)
	dx, dy := in.MouseDelta()
	assert.Equal(t, 3.0, dx)
	assert.Equal(t, -4.0, dy)
}
