package pixelmap

import "github.com/hajimehoshi/ebiten/v2"

type syntheticKind uint8

const (
	syntheticPointer syntheticKind = iota
	syntheticKey
	syntheticWheel
	syntheticIdle
)

// syntheticEvent is a single injected input event. Pointer positions are
// window coordinates, identical to real mouse input.
type syntheticEvent struct {
	kind    syntheticKind
	x, y    float64
	pressed bool
	key     ebiten.Key
	wheel   float64
}

// InjectPress queues a left-button press at the given window coordinates.
// Each queued event is consumed by one Update, during which real input is
// ignored.
func (e *Engine) InjectPress(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticPointer, x: x, y: y, pressed: true})
}

// InjectMove queues a pointer move with the button held. Use it between
// InjectPress and InjectRelease to simulate a drag.
func (e *Engine) InjectMove(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticPointer, x: x, y: y, pressed: true})
}

// InjectHover queues a pointer move with no button held.
func (e *Engine) InjectHover(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticPointer, x: x, y: y})
}

// InjectRelease queues a button release at the given window coordinates.
func (e *Engine) InjectRelease(x, y float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticPointer, x: x, y: y})
}

// InjectClick queues a press followed by a release at the same point.
// Consumes two frames.
func (e *Engine) InjectClick(x, y float64) {
	e.InjectPress(x, y)
	e.InjectRelease(x, y)
}

// InjectDrag queues a full drag sequence: press at (fromX, fromY),
// linearly interpolated moves over frames-2 intermediate frames, and release
// at (toX, toY). The total sequence consumes frames frames; the minimum is 2.
func (e *Engine) InjectDrag(fromX, fromY, toX, toY float64, frames int) {
	if frames < 2 {
		frames = 2
	}
	e.InjectPress(fromX, fromY)
	steps := frames - 2
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps+1)
		x := fromX + (toX-fromX)*t
		y := fromY + (toY-fromY)*t
		e.InjectMove(x, y)
	}
	e.InjectRelease(toX, toY)
}

// InjectKey queues key held for the given number of frames (at least 1),
// followed by its release.
func (e *Engine) InjectKey(key ebiten.Key, frames int) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticKey, key: key, pressed: true})
	for i := 1; i < frames; i++ {
		e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticIdle})
	}
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticKey, key: key})
}

// InjectWheel queues a wheel movement with the cursor at (x, y).
func (e *Engine) InjectWheel(x, y, delta float64) {
	e.injectQueue = append(e.injectQueue, syntheticEvent{kind: syntheticWheel, x: x, y: y, wheel: delta})
}

// PendingInput returns the number of injected events not yet consumed.
func (e *Engine) PendingInput() int {
	return len(e.injectQueue)
}

// processInjectedInput pops one event from the inject queue and feeds it
// through the same path as real input. Returns true if an event was
// consumed.
func (e *Engine) processInjectedInput() bool {
	if len(e.injectQueue) == 0 {
		return false
	}
	evt := e.injectQueue[0]
	copy(e.injectQueue, e.injectQueue[1:])
	e.injectQueue = e.injectQueue[:len(e.injectQueue)-1]

	f := &e.frame
	f.reset()
	// Keep the pointer where the last event left it.
	f.CursorX = e.pointer.lastX + float64(e.opts.CanvasX)
	f.CursorY = e.pointer.lastY + float64(e.opts.CanvasY)
	f.Pressed = e.pointer.down

	switch evt.kind {
	case syntheticPointer:
		f.CursorX, f.CursorY = evt.x, evt.y
		f.Pressed = evt.pressed
	case syntheticKey:
		if evt.pressed {
			f.KeysDown = append(f.KeysDown, evt.key)
		} else {
			f.KeysUp = append(f.KeysUp, evt.key)
		}
	case syntheticWheel:
		f.CursorX, f.CursorY = evt.x, evt.y
		f.WheelY = evt.wheel
	}
	e.processFrame(f)
	return true
}
